package rig

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg" // backgrounds are often photos
	_ "image/png"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/book-expert/logger"
	xdraw "golang.org/x/image/draw"

	"github.com/book-expert/toon-service/internal/motion"
	"github.com/book-expert/toon-service/internal/timeline"
	"github.com/book-expert/toon-service/internal/viseme"
)

// Rig is a loaded character: decoded layers plus placement. It is never
// modified after Load, so workers may share one Rig without locking.
type Rig struct {
	desc       Descriptor
	catalog    *viseme.Catalog
	background *image.RGBA
	body       *image.RGBA
	visemes    map[string]*image.RGBA
	blinks     map[string]*image.RGBA
	layers     map[timeline.Pose]*image.RGBA
	missing    []string
	unknown    *image.RGBA
}

// Load decodes every layer the descriptor names plus each pose and emotion
// image referenced by poses. Blink images are loaded for the open state and
// each state in blinkStates. Missing or undecodable files are replaced by a
// labelled placeholder and logged; they never fail the load.
func Load(desc Descriptor, poses timeline.PoseTrack, blinkStates []string, log *logger.Logger) (*Rig, error) {
	validateErr := desc.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	r := &Rig{
		desc:    desc,
		catalog: desc.Catalog(),
		visemes: make(map[string]*image.RGBA),
		blinks:  make(map[string]*image.RGBA),
		layers:  make(map[timeline.Pose]*image.RGBA),
		unknown: Placeholder("missing"),
	}

	loader := &assetLoader{log: log}

	if desc.Background != "" {
		background := loader.load(desc.resolve(desc.Background))
		r.background = scaleTo(background, desc.Canvas.Width, desc.Canvas.Height)
	}

	r.body = loader.load(desc.resolve(desc.Body))

	for _, shape := range r.shapes() {
		r.visemes[shape] = loader.load(desc.visemePath(shape))
	}

	states := append([]string{motion.Open}, blinkStates...)
	for _, state := range states {
		if _, done := r.blinks[state]; done {
			continue
		}

		r.blinks[state] = loader.load(desc.resolve(desc.BlinkDir, desc.ImageName(state)))
	}

	r.loadLayer(loader, r.DefaultEmotion())

	for _, event := range poses {
		r.loadLayer(loader, event.Value)
	}

	r.missing = loader.missing
	sort.Strings(r.missing)

	log.Info("Loaded rig %q from %s: %d visemes, %d blink states, %d pose layers, %d placeholders",
		desc.Name, desc.Root, len(r.visemes), len(r.blinks), len(r.layers), len(r.missing))

	return r, nil
}

func (r *Rig) loadLayer(loader *assetLoader, pose timeline.Pose) {
	if _, done := r.layers[pose]; done {
		return
	}

	// Image already carries its folder, relative to the asset root.
	r.layers[pose] = loader.load(r.desc.resolve(r.desc.ImageName(pose.Image)))
}

// shapes lists every mouth shape the catalog can produce plus any the
// descriptor maps explicitly.
func (r *Rig) shapes() []string {
	seen := make(map[string]bool)

	var out []string

	add := func(shape string) {
		if shape == "" || seen[shape] {
			return
		}

		seen[shape] = true
		out = append(out, shape)
	}

	for _, shape := range viseme.Shapes {
		add(shape)
	}

	add(r.desc.DefaultViseme)

	for _, shape := range r.desc.Phonemes {
		add(viseme.Canonical(shape))
	}

	for shape := range r.desc.Visemes {
		add(viseme.Canonical(shape))
	}

	sort.Strings(out)

	return out
}

// Descriptor returns the descriptor the rig was loaded from.
func (r *Rig) Descriptor() Descriptor {
	return r.desc
}

// Catalog returns the rig's phoneme to mouth shape table.
func (r *Rig) Catalog() *viseme.Catalog {
	return r.catalog
}

// Canvas returns the output frame size.
func (r *Rig) Canvas() image.Rectangle {
	return image.Rect(0, 0, r.desc.Canvas.Width, r.desc.Canvas.Height)
}

// Background returns the background scaled to the canvas, or nil.
func (r *Rig) Background() *image.RGBA {
	return r.background
}

// Body returns the base body layer.
func (r *Rig) Body() *image.RGBA {
	return r.body
}

// DefaultViseme returns the resting mouth shape.
func (r *Rig) DefaultViseme() string {
	return r.catalog.Default()
}

// DefaultEmotion returns the pose track value of the resting emotion.
func (r *Rig) DefaultEmotion() timeline.Pose {
	return timeline.Pose{
		Folder: r.desc.EmotionFolder,
		Image:  path.Join(r.desc.EmotionFolder, r.desc.ImageName(r.desc.DefaultEmotion)),
	}
}

// IsEmotion reports whether a pose track value belongs to the emotion layer.
func (r *Rig) IsEmotion(pose timeline.Pose) bool {
	return pose.Folder == r.desc.EmotionFolder
}

// Viseme returns the image for a mouth shape.
func (r *Rig) Viseme(shape string) *image.RGBA {
	if img, ok := r.visemes[viseme.Canonical(shape)]; ok {
		return img
	}

	return r.unknown
}

// Blink returns the eye image for a blink state.
func (r *Rig) Blink(state string) *image.RGBA {
	if img, ok := r.blinks[state]; ok {
		return img
	}

	return r.unknown
}

// Layer returns the image for a pose or emotion track value.
func (r *Rig) Layer(pose timeline.Pose) *image.RGBA {
	if img, ok := r.layers[pose]; ok {
		return img
	}

	return r.unknown
}

// Missing lists the asset paths replaced by placeholders.
func (r *Rig) Missing() []string {
	out := make([]string, len(r.missing))
	copy(out, r.missing)

	return out
}

type assetLoader struct {
	log     *logger.Logger
	cache   map[string]*image.RGBA
	missing []string
}

func (l *assetLoader) load(path string) *image.RGBA {
	if img, ok := l.cache[path]; ok {
		return img
	}

	if l.cache == nil {
		l.cache = make(map[string]*image.RGBA)
	}

	img, err := decodeImage(path)
	if err != nil {
		l.log.Warn("Missing asset %s, using placeholder: %v", path, err)
		l.missing = append(l.missing, path)
		img = Placeholder(filepath.Base(path))
	}

	l.cache[path] = img

	return img
}

func decodeImage(path string) (*image.RGBA, error) {
	file, openErr := os.Open(path)
	if openErr != nil {
		return nil, fmt.Errorf("open: %w", openErr)
	}

	defer func() { _ = file.Close() }()

	img, _, decodeErr := image.Decode(file)
	if decodeErr != nil {
		return nil, fmt.Errorf("decode: %w", decodeErr)
	}

	return toRGBA(img), nil
}

func toRGBA(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Src)

	return out
}

func scaleTo(src *image.RGBA, width, height int) *image.RGBA {
	if src.Bounds().Dx() == width && src.Bounds().Dy() == height {
		return src
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	return dst
}
