// Package export drives a compositor over every frame of a render, writes
// the frames as a numbered PNG sequence and hands them to the encoder.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/toon-service/internal/core"
	"github.com/book-expert/toon-service/internal/metrics"
	"github.com/book-expert/toon-service/internal/render"
)

const (
	// FramePattern names frame files by zero-padded index.
	FramePattern = "frame_%06d.png"

	tempDirPattern = "toon-frames-*"
	videoFileName  = "video.mp4"
	dirPermissions = 0o750

	logFmtProgress = "Rendered %d/%d frames (%.0fs of video)"
)

var (
	// ErrNoFrames is returned when duration * fps rounds down to zero frames.
	ErrNoFrames = errors.New("render produces no frames")

	// ErrOutputPathEmpty is returned when a job has no output path.
	ErrOutputPathEmpty = errors.New("output path cannot be empty")
)

// Renderer produces frames for index ranges.
type Renderer interface {
	RenderRange(ctx context.Context, start, end, fps int, emit func(index int, frame *image.RGBA) error) error
}

// Job describes one video export.
type Job struct {
	Renderer   Renderer
	Duration   float64
	FPS        int
	AudioPath  string
	OutputPath string
}

// Result summarizes a finished export.
type Result struct {
	Frames     int
	OutputPath string
	Elapsed    time.Duration
}

// Exporter renders jobs into video files.
type Exporter struct {
	encoder core.VideoEncoder
	log     *logger.Logger
	metrics *metrics.Manager
	workers int
	tempDir string
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithWorkers renders in n contiguous chunks concurrently. n <= 1 renders
// sequentially.
func WithWorkers(n int) Option {
	return func(e *Exporter) {
		e.workers = n
	}
}

// WithTempDir places frame directories under dir instead of os.TempDir().
func WithTempDir(dir string) Option {
	return func(e *Exporter) {
		e.tempDir = dir
	}
}

// WithMetrics records frames and encoder failures on m.
func WithMetrics(m *metrics.Manager) Option {
	return func(e *Exporter) {
		e.metrics = m
	}
}

// NewExporter creates an exporter around encoder.
func NewExporter(encoder core.VideoEncoder, log *logger.Logger, opts ...Option) *Exporter {
	e := &Exporter{encoder: encoder, log: log, workers: 1}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Export renders floor(Duration*FPS) frames into a temporary directory,
// encodes them and muxes in the audio. The temporary directory is removed
// whether or not encoding succeeds.
func (e *Exporter) Export(ctx context.Context, job Job) (Result, error) {
	started := time.Now()

	if job.FPS <= 0 {
		return Result{}, render.ErrInvalidFrameRate
	}

	if job.OutputPath == "" {
		return Result{}, ErrOutputPathEmpty
	}

	frames := render.FrameCount(job.Duration, job.FPS)
	if frames == 0 {
		return Result{}, fmt.Errorf("%w: duration %.3fs at %d fps", ErrNoFrames, job.Duration, job.FPS)
	}

	dir, tempErr := os.MkdirTemp(e.tempDir, tempDirPattern)
	if tempErr != nil {
		return Result{}, fmt.Errorf("failed to create frame directory: %w", tempErr)
	}

	defer func() {
		removeErr := os.RemoveAll(dir)
		if removeErr != nil {
			e.log.Warn("Failed to remove frame directory '%s': %v", dir, removeErr)
		}
	}()

	e.log.Info("Rendering %d frames at %d fps with %d workers into %s", frames, job.FPS, e.workerCount(frames), dir)

	renderErr := e.writeFrames(ctx, job, dir, frames)
	if renderErr != nil {
		return Result{}, renderErr
	}

	encodeErr := e.encode(ctx, job, dir)
	if encodeErr != nil {
		return Result{}, encodeErr
	}

	result := Result{Frames: frames, OutputPath: job.OutputPath, Elapsed: time.Since(started)}
	e.log.Info("Exported %s: %d frames in %s", job.OutputPath, frames, result.Elapsed.Round(time.Millisecond))

	return result, nil
}

func (e *Exporter) encode(ctx context.Context, job Job, dir string) error {
	mkdirErr := os.MkdirAll(filepath.Dir(job.OutputPath), dirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf("failed to create output directory: %w", mkdirErr)
	}

	pattern := filepath.Join(dir, FramePattern)

	if job.AudioPath == "" {
		return e.observeEncoder(e.encoder.Assemble(ctx, pattern, job.FPS, job.OutputPath))
	}

	video := filepath.Join(dir, videoFileName)

	assembleErr := e.observeEncoder(e.encoder.Assemble(ctx, pattern, job.FPS, video))
	if assembleErr != nil {
		return assembleErr
	}

	return e.observeEncoder(e.encoder.Mux(ctx, video, job.AudioPath, job.OutputPath))
}

func (e *Exporter) observeEncoder(err error) error {
	if err == nil {
		return nil
	}

	var encoderErr *EncoderError
	if errors.As(err, &encoderErr) {
		e.metrics.EncoderFailure(encoderErr.Stage)
	}

	return err
}

func (e *Exporter) workerCount(frames int) int {
	return max(min(e.workers, frames), 1)
}

// writeFrames splits [0, frames) into contiguous chunks, one per worker. A
// failing chunk cancels the others and its error is returned.
func (e *Exporter) writeFrames(ctx context.Context, job Job, dir string, frames int) error {
	workers := e.workerCount(frames)
	chunkSize := (frames + workers - 1) / workers

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		firstErr  error
		written   int
	)

	progress := func() {
		mutex.Lock()
		defer mutex.Unlock()

		written++
		if written%job.FPS == 0 || written == frames {
			e.log.Info(logFmtProgress, written, frames, float64(written)/float64(job.FPS))
		}
	}

	for start := 0; start < frames; start += chunkSize {
		end := min(start+chunkSize, frames)

		waitGroup.Add(1)

		go func(start, end int) {
			defer waitGroup.Done()

			chunkErr := job.Renderer.RenderRange(ctx, start, end, job.FPS, func(index int, frame *image.RGBA) error {
				writeErr := writeFrame(filepath.Join(dir, fmt.Sprintf(FramePattern, index)), frame)
				if writeErr != nil {
					return writeErr
				}

				progress()

				return nil
			})
			if chunkErr != nil {
				mutex.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("frames [%d, %d): %w", start, end, chunkErr)
				}
				mutex.Unlock()

				cancel()
			}
		}(start, end)
	}

	waitGroup.Wait()

	if firstErr != nil {
		e.log.Error("Frame rendering failed: %v", firstErr)

		return firstErr
	}

	e.metrics.FramesRendered(frames)

	return nil
}

var pngEncoder = &png.Encoder{CompressionLevel: png.BestSpeed}

func writeFrame(path string, frame *image.RGBA) error {
	file, createErr := os.Create(path)
	if createErr != nil {
		return fmt.Errorf("failed to create frame: %w", createErr)
	}

	encodeErr := pngEncoder.Encode(file, frame)
	closeErr := file.Close()

	if encodeErr != nil {
		return fmt.Errorf("failed to encode frame %s: %w", path, encodeErr)
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close frame %s: %w", path, closeErr)
	}

	return nil
}
