// Package render composites a character rig into frames. For any time t it
// resolves the active mouth shape, pose, emotion and eye state, applies the
// idle motion and draws the layers back to front.
package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"github.com/book-expert/toon-service/internal/motion"
	"github.com/book-expert/toon-service/internal/rig"
	"github.com/book-expert/toon-service/internal/timeline"
)

// DefaultMorphDuration is the crossfade length between mouth shapes.
const DefaultMorphDuration = 0.1

var (
	// ErrInvalidFrameRate is returned for frame rates below one.
	ErrInvalidFrameRate = errors.New("frame rate must be positive")

	// ErrInvalidRange is returned when a frame range is inverted or negative.
	ErrInvalidRange = errors.New("invalid frame range")

	canvasFill = image.NewUniform(color.RGBA{A: 255})
)

// Tracks are the timelines driving one render.
type Tracks struct {
	Visemes timeline.VisemeTrack
	Poses   timeline.PoseTrack
}

// Options tune the compositor.
type Options struct {
	MorphDuration float64
}

// Selection is what the compositor decided to draw at one instant.
type Selection struct {
	Time    float64
	Pose    *timeline.Pose
	Mouth   string
	Emotion timeline.Pose
	// ShowMouth is false when the mouth is at rest and the emotion layer is
	// drawn instead.
	ShowMouth bool
	// MorphFrom is the shape being faded out; empty outside a morph window.
	MorphFrom   string
	MorphWeight float64
	Eyes        string
	Offset      motion.Offset
}

// Compositor renders frames for one session. It is safe for concurrent use:
// all inputs are read-only and cached layers are never modified.
type Compositor struct {
	rig      *rig.Rig
	visemes  timeline.VisemeTrack
	poses    timeline.PoseTrack
	emotions timeline.PoseTrack
	blinks   *motion.BlinkSchedule
	idle     *motion.Idle
	morph    float64
	layers   sync.Map
}

type layerKey struct {
	src *image.RGBA
}

// New builds a compositor. Pose track entries in the rig's emotion folder
// drive the emotion layer; all others drive the pose layer.
func New(r *rig.Rig, tracks Tracks, blinks *motion.BlinkSchedule, idle *motion.Idle, opts Options) *Compositor {
	c := &Compositor{
		rig:     r,
		visemes: tracks.Visemes,
		blinks:  blinks,
		idle:    idle,
		morph:   opts.MorphDuration,
	}

	for _, event := range tracks.Poses {
		if r.IsEmotion(event.Value) {
			c.emotions = append(c.emotions, event)
		} else {
			c.poses = append(c.poses, event)
		}
	}

	return c
}

// Canvas returns the frame bounds.
func (c *Compositor) Canvas() image.Rectangle {
	return c.rig.Canvas()
}

// FrameTime returns the timestamp of frame index at fps.
func FrameTime(index, fps int) float64 {
	return float64(index) / float64(fps)
}

// FrameCount returns floor(duration * fps).
func FrameCount(duration float64, fps int) int {
	if duration <= 0 || fps <= 0 {
		return 0
	}

	return int(math.Floor(duration * float64(fps)))
}

func (c *Compositor) resolve(t float64, state *morphState) Selection {
	defaultMouth := c.rig.DefaultViseme()
	mouth := c.visemes.ValueAt(t, defaultMouth)
	state.advance(mouth, t)

	sel := Selection{
		Time:        t,
		Mouth:       mouth,
		Emotion:     c.emotions.ValueAt(t, c.rig.DefaultEmotion()),
		ShowMouth:   mouth != defaultMouth,
		MorphWeight: 1,
		Eyes:        motion.Open,
		Offset:      motion.Offset{Scale: 1},
	}

	if pose, ok := c.poses.At(t); ok {
		sel.Pose = &pose
	}

	if sel.ShowMouth {
		sel.MorphFrom, sel.MorphWeight = state.blend(t, c.morph)
	}

	if c.blinks != nil {
		sel.Eyes = c.blinks.State(t)
	}

	if c.idle != nil {
		sel.Offset = c.idle.At(t)
	}

	return sel
}

// Select resolves frame index at fps, replaying the mouth history from
// frame zero.
func (c *Compositor) Select(index, fps int) Selection {
	state := c.replay(index, fps)

	return c.resolve(FrameTime(index, fps), &state)
}

// replay rebuilds the morph state as it stands just before frame index.
func (c *Compositor) replay(index, fps int) morphState {
	state := newMorphState(c.rig.DefaultViseme())

	for i := range index {
		t := FrameTime(i, fps)
		state.advance(c.visemes.ValueAt(t, c.rig.DefaultViseme()), t)
	}

	return state
}

// Frame renders frame index at fps.
func (c *Compositor) Frame(index, fps int) *image.RGBA {
	return c.draw(c.Select(index, fps))
}

// RenderRange renders frames [start, end) in order, calling emit for each.
// The morph history before start is replayed first, so any split of a
// sequence into ranges yields the same frames as a single pass.
func (c *Compositor) RenderRange(ctx context.Context, start, end, fps int, emit func(index int, frame *image.RGBA) error) error {
	if fps <= 0 {
		return ErrInvalidFrameRate
	}

	if start < 0 || end < start {
		return fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, start, end)
	}

	state := c.replay(start, fps)

	for index := start; index < end; index++ {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return fmt.Errorf("render cancelled at frame %d: %w", index, ctxErr)
		}

		sel := c.resolve(FrameTime(index, fps), &state)

		emitErr := emit(index, c.draw(sel))
		if emitErr != nil {
			return emitErr
		}
	}

	return nil
}

func (c *Compositor) draw(sel Selection) *image.RGBA {
	canvas := image.NewRGBA(c.rig.Canvas())
	draw.Draw(canvas, canvas.Bounds(), canvasFill, image.Point{}, draw.Src)

	if background := c.rig.Background(); background != nil {
		draw.Draw(canvas, canvas.Bounds(), background, image.Point{}, draw.Over)
	}

	scale := c.rig.Descriptor().Scale * sel.Offset.Scale

	c.place(canvas, c.rig.Body(), scale, sel.Offset, true)

	if sel.Pose != nil {
		c.place(canvas, c.rig.Layer(*sel.Pose), scale, sel.Offset, true)
	}

	c.place(canvas, c.mouthLayer(sel), scale, sel.Offset, sel.MorphFrom == "")
	c.place(canvas, c.rig.Blink(sel.Eyes), scale, sel.Offset, true)

	return canvas
}

func (c *Compositor) mouthLayer(sel Selection) *image.RGBA {
	if !sel.ShowMouth {
		return c.rig.Layer(sel.Emotion)
	}

	current := c.rig.Viseme(sel.Mouth)
	if sel.MorphFrom == "" {
		return current
	}

	from := c.rig.Viseme(sel.MorphFrom)
	if sel.MorphFrom == c.rig.DefaultViseme() {
		from = c.rig.Layer(sel.Emotion)
	}

	return crossfade(from, current, sel.MorphWeight)
}

// place draws layer centred on the anchor plus the idle offset. Layers at the
// rig's base scale are transformed once and reused.
func (c *Compositor) place(canvas, layer *image.RGBA, scale float64, offset motion.Offset, cacheable bool) {
	desc := c.rig.Descriptor()

	var transformed *image.RGBA

	if cacheable && offset.Scale == 1 {
		key := layerKey{src: layer}
		if cached, ok := c.layers.Load(key); ok {
			transformed, _ = cached.(*image.RGBA)
		} else {
			transformed = transform(layer, scale, desc.FlipHorizontal, desc.FlipVertical)
			c.layers.Store(key, transformed)
		}
	} else {
		transformed = transform(layer, scale, desc.FlipHorizontal, desc.FlipVertical)
	}

	size := transformed.Bounds().Size()
	centre := image.Pt(
		desc.Anchor.X+int(math.Round(offset.X)),
		desc.Anchor.Y+int(math.Round(offset.Y)),
	)
	topLeft := centre.Sub(image.Pt(size.X/2, size.Y/2))

	draw.Draw(canvas, image.Rectangle{Min: topLeft, Max: topLeft.Add(size)}, transformed, image.Point{}, draw.Over)
}
