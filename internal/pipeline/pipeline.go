// Package pipeline runs a transcript through every stage: synthesis,
// conversion, alignment, phoneme and viseme mapping, pose extraction and the
// frame render with its video export.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/toon-service/internal/audio"
	"github.com/book-expert/toon-service/internal/core"
	"github.com/book-expert/toon-service/internal/export"
	"github.com/book-expert/toon-service/internal/metrics"
	"github.com/book-expert/toon-service/internal/motion"
	"github.com/book-expert/toon-service/internal/phoneme"
	"github.com/book-expert/toon-service/internal/render"
	"github.com/book-expert/toon-service/internal/rig"
	"github.com/book-expert/toon-service/internal/text"
	"github.com/book-expert/toon-service/internal/timeline"
	"github.com/book-expert/toon-service/internal/whisper"
)

// Session document names inside the work directory.
const (
	SpeechFile   = "speech.mp3"
	WaveFile     = "speech.wav"
	WordsFile    = "words.json"
	PhonemesFile = "phonemes.json"
	VisemesFile  = "visemes.json"
	PosesFile    = "poses.json"
	ReportFile   = "report.json"

	// secondsPerWord sizes a silent render when no audio could be produced.
	secondsPerWord  = 0.4
	minimalDuration = 1.0
	dirPermissions  = 0o750
)

var (
	// ErrTranscriptEmpty is returned when a request carries neither text nor
	// audio.
	ErrTranscriptEmpty = errors.New("transcript cannot be empty")

	// ErrMissingAligner is returned when no aligner is configured.
	ErrMissingAligner = errors.New("pipeline requires an aligner")

	// ErrMissingEncoder is returned when no video encoder is configured.
	ErrMissingEncoder = errors.New("pipeline requires a video encoder")

	// ErrMissingSynthesizer is returned when a request needs speech and no
	// synthesizer is configured.
	ErrMissingSynthesizer = errors.New("no synthesizer configured")

	// ErrDegraded marks a run that completed on fallback data.
	ErrDegraded = errors.New("render completed in degraded mode")
)

// Config holds the render settings shared by every session.
type Config struct {
	FPS            int
	Workers        int
	Seed           uint64
	MorphDuration  float64
	DictionaryPath string
	Blink          motion.BlinkConfig
	Idle           motion.IdleConfig
}

// Stages are the external collaborators. Synthesizer may be nil when every
// request supplies its own audio.
type Stages struct {
	Synthesizer core.Synthesizer
	Converter   core.AudioConverter
	Aligner     core.Aligner
	Encoder     core.VideoEncoder
}

// Request is one render.
type Request struct {
	Transcript string
	// AudioPath skips synthesis when set.
	AudioPath string
	// WorkDir keeps the session documents; empty uses a temporary directory
	// removed after the run.
	WorkDir    string
	OutputPath string
	// PoseDocument, when set, is the pose track merged with the transcript
	// tags and rendered.
	PoseDocument string
}

// Pipeline renders requests. It is safe for concurrent use; every Run builds
// its own rig and compositor.
type Pipeline struct {
	cfg          Config
	desc         rig.Descriptor
	stages       Stages
	mapper       *phoneme.Mapper
	preprocessor *text.Preprocessor
	metrics      *metrics.Manager
	log          *logger.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics records fallbacks, frames and job outcomes on m.
func WithMetrics(m *metrics.Manager) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// New creates a pipeline. The pronunciation dictionary is loaded once here.
func New(cfg Config, desc rig.Descriptor, stages Stages, log *logger.Logger, opts ...Option) (*Pipeline, error) {
	if cfg.FPS <= 0 {
		return nil, render.ErrInvalidFrameRate
	}

	if stages.Aligner == nil {
		return nil, ErrMissingAligner
	}

	if stages.Encoder == nil {
		return nil, ErrMissingEncoder
	}

	blinkErr := cfg.Blink.Validate()
	if blinkErr != nil {
		return nil, blinkErr
	}

	descErr := desc.Validate()
	if descErr != nil {
		return nil, descErr
	}

	p := &Pipeline{
		cfg:          cfg,
		desc:         desc,
		stages:       stages,
		mapper:       phoneme.NewMapper(phoneme.LoadDictionary(cfg.DictionaryPath, log), log),
		preprocessor: text.NewPreprocessor(),
		log:          log,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Descriptor is the rig descriptor every session renders with.
func (p *Pipeline) Descriptor() rig.Descriptor {
	return p.desc
}

// Run renders one request. A run that had to substitute fallback data for
// synthesis or alignment still writes its video and returns its report
// together with an error wrapping ErrDegraded.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Report, error) {
	started := time.Now()

	report, runErr := p.run(ctx, req)

	p.metrics.ObserveRender(time.Since(started))

	switch {
	case runErr != nil:
		p.metrics.Job(metrics.JobFailed)
		p.log.Error("Render failed: %v", runErr)

		return report, runErr
	case report.Degraded:
		p.metrics.Job(metrics.JobDegraded)
		p.log.Warn("Session %s rendered in degraded mode: %s", report.SessionID, strings.Join(report.Reasons, "; "))

		return report, fmt.Errorf("%w: %s", ErrDegraded, strings.Join(report.Reasons, "; "))
	default:
		p.metrics.Job(metrics.JobSucceeded)

		return report, nil
	}
}

func (p *Pipeline) run(ctx context.Context, req Request) (*Report, error) {
	transcript := text.Parse(req.Transcript)
	clean := transcript.Clean()

	if clean == "" && req.AudioPath == "" {
		return nil, ErrTranscriptEmpty
	}

	if req.OutputPath == "" {
		return nil, export.ErrOutputPathEmpty
	}

	workDir, cleanup, dirErr := p.workDir(req.WorkDir)
	if dirErr != nil {
		return nil, dirErr
	}

	defer cleanup()

	report := &Report{
		SessionID:  uuid.NewString(),
		Seed:       p.cfg.Seed,
		WorkDir:    workDir,
		OutputPath: req.OutputPath,
	}

	if report.Seed == 0 {
		report.Seed = motion.NewSeed()
	}

	p.log.Info("Session %s: seed %d, work dir %s", report.SessionID, report.Seed, workDir)

	wavPath, duration, audioErr := p.prepareAudio(ctx, req, clean, workDir, report)
	if audioErr != nil {
		return report, audioErr
	}

	report.Duration = duration

	words := p.align(ctx, wavPath, clean, duration, report)

	tracks, trackErr := p.buildTracks(words, transcript, req.PoseDocument, workDir, report)
	if trackErr != nil {
		return report, trackErr
	}

	frames, renderErr := p.render(ctx, tracks, wavPath, report)
	if renderErr != nil {
		return report, renderErr
	}

	report.Frames = frames

	if req.WorkDir != "" {
		writeErr := report.Write(filepath.Join(workDir, ReportFile))
		if writeErr != nil {
			p.log.Warn("Failed to write session report: %v", writeErr)
		}
	}

	return report, nil
}

func (p *Pipeline) workDir(dir string) (string, func(), error) {
	if dir != "" {
		mkdirErr := os.MkdirAll(dir, dirPermissions)
		if mkdirErr != nil {
			return "", nil, fmt.Errorf("failed to create work directory: %w", mkdirErr)
		}

		return dir, func() {}, nil
	}

	tempDir, tempErr := os.MkdirTemp("", "toon-session-*")
	if tempErr != nil {
		return "", nil, fmt.Errorf("failed to create work directory: %w", tempErr)
	}

	return tempDir, func() {
		removeErr := os.RemoveAll(tempDir)
		if removeErr != nil {
			p.log.Warn("Failed to remove work directory '%s': %v", tempDir, removeErr)
		}
	}, nil
}

// prepareAudio synthesizes when needed, converts to WAV and measures it. A
// synthesis failure yields a silent session sized from the transcript.
func (p *Pipeline) prepareAudio(ctx context.Context, req Request, clean, workDir string, report *Report) (string, float64, error) {
	source := req.AudioPath

	if source == "" {
		speech, synthErr := p.synthesize(ctx, clean)
		if synthErr != nil {
			duration := max(float64(len(strings.Fields(clean)))*secondsPerWord, minimalDuration)

			report.degrade("synthesis failed: %v", synthErr)
			p.metrics.Fallback(metrics.FallbackSynthesis, 1)
			p.log.Warn("Speech synthesis failed, rendering %.2fs silent video: %v", duration, synthErr)

			return "", duration, nil
		}

		source = filepath.Join(workDir, SpeechFile)

		writeErr := os.WriteFile(source, speech, 0o600)
		if writeErr != nil {
			return "", 0, fmt.Errorf("failed to write speech audio: %w", writeErr)
		}
	}

	wavPath := source

	if p.stages.Converter != nil {
		wavPath = filepath.Join(workDir, WaveFile)

		convertErr := p.stages.Converter.Convert(ctx, source, wavPath)
		if convertErr != nil {
			return "", 0, convertErr
		}
	}

	length, durationErr := audio.Duration(wavPath)
	if durationErr != nil {
		return "", 0, durationErr
	}

	return wavPath, length.Seconds(), nil
}

func (p *Pipeline) synthesize(ctx context.Context, clean string) ([]byte, error) {
	if p.stages.Synthesizer == nil {
		return nil, ErrMissingSynthesizer
	}

	return p.stages.Synthesizer.Synthesize(ctx, p.preprocessor.Normalize(clean))
}

// align returns the aligner's words or the single-segment fallback.
func (p *Pipeline) align(ctx context.Context, wavPath, clean string, duration float64, report *Report) timeline.WordTrack {
	if wavPath == "" {
		report.degrade("alignment skipped: no audio")
	} else {
		words, alignErr := p.stages.Aligner.Align(ctx, wavPath)
		if alignErr == nil && len(words) > 0 {
			return words
		}

		if alignErr == nil {
			alignErr = whisper.ErrNoWords
		}

		report.degrade("alignment failed: %v", alignErr)
		p.log.Warn("Word alignment failed, using a single segment: %v", alignErr)
	}

	p.metrics.Fallback(metrics.FallbackAlignment, 1)

	return whisper.Fallback(clean, duration)
}

func (p *Pipeline) buildTracks(
	words timeline.WordTrack,
	transcript text.Transcript,
	poseDocument, workDir string,
	report *Report,
) (render.Tracks, error) {
	phonemes, mapping := p.Phonemes(words)
	report.UnmatchedWords = mapping.Unmatched
	p.metrics.Fallback(metrics.FallbackWord, len(mapping.Unmatched))

	visemes := p.Visemes(phonemes)

	cues, cueReport := transcript.Cues(words, p.desc, p.log)
	report.SkippedEmotions = cueReport.Skipped
	p.metrics.Fallback(metrics.FallbackEmotion, len(cueReport.Skipped))

	if poseDocument == "" {
		poseDocument = filepath.Join(workDir, PosesFile)
	}

	poses, mergeErr := timeline.MergePoses(poseDocument, cues)
	if mergeErr != nil {
		return render.Tracks{}, mergeErr
	}

	writers := []func() error{
		func() error { return timeline.WriteWords(filepath.Join(workDir, WordsFile), words) },
		func() error { return timeline.WritePhonemes(filepath.Join(workDir, PhonemesFile), phonemes) },
		func() error { return timeline.WriteVisemes(filepath.Join(workDir, VisemesFile), visemes) },
	}

	for _, write := range writers {
		writeErr := write()
		if writeErr != nil {
			return render.Tracks{}, writeErr
		}
	}

	report.Words, report.Phonemes, report.Visemes, report.Poses = len(words), len(phonemes), len(visemes), len(poses)

	return render.Tracks{Visemes: visemes, Poses: poses}, nil
}

func (p *Pipeline) render(ctx context.Context, tracks render.Tracks, wavPath string, report *Report) (int, error) {
	missing, frames, err := p.Render(ctx, RenderRequest{
		Tracks:     tracks,
		Duration:   report.Duration,
		Seed:       report.Seed,
		AudioPath:  wavPath,
		OutputPath: report.OutputPath,
	})
	report.MissingAssets = missing

	return frames, err
}

// RenderRequest renders prepared tracks without running the earlier stages.
type RenderRequest struct {
	Tracks     render.Tracks
	Duration   float64
	Seed       uint64
	AudioPath  string
	OutputPath string
}

// Phonemes maps aligned words through the pronunciation dictionary.
func (p *Pipeline) Phonemes(words timeline.WordTrack) (timeline.PhonemeTrack, phoneme.Report) {
	return p.mapper.Map(words)
}

// Visemes maps phonemes through the rig's viseme catalog.
func (p *Pipeline) Visemes(phonemes timeline.PhonemeTrack) timeline.VisemeTrack {
	return p.desc.Catalog().Map(phonemes)
}

// Render loads the rig, schedules blinks and exports the frames. It returns
// the assets replaced by placeholders and the number of frames written.
func (p *Pipeline) Render(ctx context.Context, req RenderRequest) ([]string, int, error) {
	states := make([]string, 0, len(p.cfg.Blink.Phases))
	for _, phase := range p.cfg.Blink.Phases {
		states = append(states, phase.State)
	}

	character, rigErr := rig.Load(p.desc, req.Tracks.Poses, states, p.log)
	if rigErr != nil {
		return nil, 0, rigErr
	}

	missing := character.Missing()
	p.metrics.Fallback(metrics.FallbackAsset, len(missing))

	seed := req.Seed
	if seed == 0 {
		seed = motion.NewSeed()
	}

	blinks, blinkErr := motion.GenerateBlinks(seed, req.Duration, p.cfg.Blink)
	if blinkErr != nil {
		return missing, 0, blinkErr
	}

	compositor := render.New(character, req.Tracks, blinks, motion.NewIdle(seed, p.cfg.Idle),
		render.Options{MorphDuration: p.cfg.MorphDuration})

	exporter := export.NewExporter(p.stages.Encoder, p.log,
		export.WithWorkers(p.cfg.Workers), export.WithMetrics(p.metrics))

	result, exportErr := exporter.Export(ctx, export.Job{
		Renderer:   compositor,
		Duration:   req.Duration,
		FPS:        p.cfg.FPS,
		AudioPath:  req.AudioPath,
		OutputPath: req.OutputPath,
	})
	if exportErr != nil {
		return missing, 0, exportErr
	}

	return missing, result.Frames, nil
}
