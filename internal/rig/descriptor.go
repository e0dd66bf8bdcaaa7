// Package rig loads a character's layered images from a declarative TOML
// descriptor into an immutable CharacterRig shared by every render worker.
package rig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/book-expert/toon-service/internal/viseme"
)

// Descriptor defaults.
const (
	DefaultImageExt       = ".png"
	DefaultVisemeDir      = "visemes"
	DefaultBlinkDir       = "blink"
	DefaultBody           = "body.png"
	DefaultEmotionFolder  = "emotions"
	DefaultEmotion        = "neutral"
	DefaultPoseFolder     = "pose_1"
	DefaultCanvasWidth    = 1920
	DefaultCanvasHeight   = 1080
	DefaultCharacterScale = 1.0
)

// DefaultEmotions is the emotion whitelist used when a descriptor lists none.
var DefaultEmotions = []string{"neutral", "cringe", "frown", "mockery", "sad", "smile_2", "smile"}

var (
	// ErrInvalidDescriptor is returned for descriptors that cannot place a
	// character on a canvas.
	ErrInvalidDescriptor = errors.New("invalid rig descriptor")

	errFmtReadDescriptor  = "failed to read rig descriptor %s: %w"
	errFmtParseDescriptor = "failed to parse rig descriptor %s: %w"
)

// Size is a canvas size in pixels.
type Size struct {
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// Point is a canvas position in pixels.
type Point struct {
	X int `toml:"x"`
	Y int `toml:"y"`
}

// PoseRule routes pose names containing a substring to an asset folder.
type PoseRule struct {
	Contains string `toml:"contains"`
	Folder   string `toml:"folder"`
}

// PoseTable resolves pose names to asset folders. The first matching rule
// wins; otherwise Default is used.
type PoseTable struct {
	Default string     `toml:"default"`
	Rules   []PoseRule `toml:"rules"`
}

// Folder returns the folder for a pose name.
func (p PoseTable) Folder(name string) string {
	for _, rule := range p.Rules {
		if rule.Contains != "" && strings.Contains(name, rule.Contains) {
			return rule.Folder
		}
	}

	return p.Default
}

// Descriptor declares a character rig. Relative asset paths resolve against
// Root, and a relative Root resolves against the descriptor's directory.
type Descriptor struct {
	Name           string            `toml:"name"`
	Root           string            `toml:"root"`
	Background     string            `toml:"background"`
	Body           string            `toml:"body"`
	VisemeDir      string            `toml:"viseme_dir"`
	BlinkDir       string            `toml:"blink_dir"`
	ImageExt       string            `toml:"image_ext"`
	EmotionFolder  string            `toml:"emotion_folder"`
	DefaultEmotion string            `toml:"default_emotion"`
	Emotions       []string          `toml:"emotions"`
	Canvas         Size              `toml:"canvas"`
	Anchor         *Point            `toml:"anchor"`
	Scale          float64           `toml:"scale"`
	FlipHorizontal bool              `toml:"flip_horizontal"`
	FlipVertical   bool              `toml:"flip_vertical"`
	Visemes        map[string]string `toml:"visemes"`
	Phonemes       map[string]string `toml:"phonemes"`
	DefaultViseme  string            `toml:"default_viseme"`
	Poses          PoseTable         `toml:"poses"`
}

// DefaultDescriptor returns a descriptor for a rig laid out under root with
// the conventional folder names.
func DefaultDescriptor(root string) Descriptor {
	desc := Descriptor{Root: root}
	desc.applyDefaults()

	return desc
}

// LoadDescriptor reads and validates a TOML rig descriptor.
func LoadDescriptor(path string) (Descriptor, error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return Descriptor{}, fmt.Errorf(errFmtReadDescriptor, path, readErr)
	}

	var desc Descriptor

	unmarshalErr := toml.Unmarshal(data, &desc)
	if unmarshalErr != nil {
		return Descriptor{}, fmt.Errorf(errFmtParseDescriptor, path, unmarshalErr)
	}

	if !filepath.IsAbs(desc.Root) {
		desc.Root = filepath.Join(filepath.Dir(path), desc.Root)
	}

	desc.applyDefaults()

	validateErr := desc.Validate()
	if validateErr != nil {
		return Descriptor{}, fmt.Errorf("%s: %w", path, validateErr)
	}

	return desc, nil
}

func (d *Descriptor) applyDefaults() {
	if d.Body == "" {
		d.Body = DefaultBody
	}

	if d.VisemeDir == "" {
		d.VisemeDir = DefaultVisemeDir
	}

	if d.BlinkDir == "" {
		d.BlinkDir = DefaultBlinkDir
	}

	if d.ImageExt == "" {
		d.ImageExt = DefaultImageExt
	}

	if d.EmotionFolder == "" {
		d.EmotionFolder = DefaultEmotionFolder
	}

	if d.DefaultEmotion == "" {
		d.DefaultEmotion = DefaultEmotion
	}

	if len(d.Emotions) == 0 {
		d.Emotions = append([]string(nil), DefaultEmotions...)
	}

	if d.Canvas.Width == 0 && d.Canvas.Height == 0 {
		d.Canvas = Size{Width: DefaultCanvasWidth, Height: DefaultCanvasHeight}
	}

	if d.Anchor == nil {
		d.Anchor = &Point{X: d.Canvas.Width / 2, Y: d.Canvas.Height / 2}
	}

	if d.Scale == 0 {
		d.Scale = DefaultCharacterScale
	}

	if d.DefaultViseme == "" {
		d.DefaultViseme = viseme.Neutral
	}

	if d.Poses.Default == "" {
		d.Poses.Default = DefaultPoseFolder
	}

	if d.Poses.Rules == nil {
		d.Poses.Rules = []PoseRule{{Contains: "att_2", Folder: "pose_2"}}
	}
}

// Validate checks that the descriptor can place a character on a canvas.
func (d Descriptor) Validate() error {
	if d.Canvas.Width <= 0 || d.Canvas.Height <= 0 {
		return fmt.Errorf("%w: canvas %dx%d", ErrInvalidDescriptor, d.Canvas.Width, d.Canvas.Height)
	}

	if d.Scale <= 0 {
		return fmt.Errorf("%w: scale %.3f", ErrInvalidDescriptor, d.Scale)
	}

	return nil
}

// Catalog returns the viseme catalog with the descriptor's phoneme overrides.
func (d Descriptor) Catalog() *viseme.Catalog {
	return viseme.NewCatalog(d.Phonemes, d.DefaultViseme)
}

// IsEmotion reports whether an emotion name is in the whitelist.
func (d Descriptor) IsEmotion(name string) bool {
	for _, emotion := range d.Emotions {
		if emotion == name {
			return true
		}
	}

	return false
}

// ImageName appends the descriptor's image extension to a logical name.
func (d Descriptor) ImageName(name string) string {
	if filepath.Ext(name) != "" {
		return name
	}

	return name + d.ImageExt
}

func (d Descriptor) resolve(parts ...string) string {
	path := filepath.Join(parts...)
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(d.Root, path)
}

func (d Descriptor) visemePath(shape string) string {
	if file, ok := d.Visemes[shape]; ok {
		return d.resolve(file)
	}

	return d.resolve(d.VisemeDir, d.ImageName(shape))
}
