// Package core defines the interfaces the render pipeline depends on.
package core

import (
	"context"

	"github.com/book-expert/toon-service/internal/timeline"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// Synthesizer turns text into speech audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Aligner extracts timed words from an audio file.
type Aligner interface {
	Align(ctx context.Context, audioPath string) (timeline.WordTrack, error)
}

// VideoEncoder assembles numbered frames into a video and muxes in audio.
type VideoEncoder interface {
	Assemble(ctx context.Context, framePattern string, fps int, outputPath string) error
	Mux(ctx context.Context, videoPath, audioPath, outputPath string) error
}

// CommandRunner runs an external program and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// AudioConverter rewrites an audio file into the layout the aligner expects.
type AudioConverter interface {
	Convert(ctx context.Context, input, output string) error
}
