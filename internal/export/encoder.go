package export

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/book-expert/logger"

	"github.com/book-expert/toon-service/internal/core"
)

// Encoder defaults match a web-friendly H.264 + AAC MP4.
const (
	DefaultBinary       = "ffmpeg"
	DefaultVideoCodec   = "libx264"
	DefaultPixelFormat  = "yuv420p"
	DefaultAudioCodec   = "aac"
	DefaultAudioBitrate = "192k"

	// GrainFilter turns the video black and white with soft film grain.
	GrainFilter = "hue=s=0,boxblur=lr=1.2,noise=c0s=7:allf=t,format=yuv420p"

	stageAssemble = "assemble"
	stageMux      = "mux"
)

// EncoderError is returned when the encoder process fails. Output holds the
// encoder's combined stdout and stderr.
type EncoderError struct {
	Stage  string
	Args   []string
	Output string
	Err    error
}

func (e *EncoderError) Error() string {
	return fmt.Sprintf("encoder %s failed: %v - output: %s", e.Stage, e.Err, strings.TrimSpace(e.Output))
}

func (e *EncoderError) Unwrap() error {
	return e.Err
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args and returns its combined output.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	// #nosec G204 -- binary and arguments come from validated configuration
	cmd := exec.CommandContext(ctx, name, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s: %w", name, err)
	}

	return output, nil
}

// EncoderConfig selects the encoder binary and codecs.
type EncoderConfig struct {
	Binary       string `toml:"binary"`
	VideoCodec   string `toml:"video_codec"`
	PixelFormat  string `toml:"pixel_format"`
	AudioCodec   string `toml:"audio_codec"`
	AudioBitrate string `toml:"audio_bitrate"`
	Filter       string `toml:"filter"`
	Grain        bool   `toml:"grain"`
}

// DefaultEncoderConfig returns the ffmpeg defaults.
func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		Binary:       DefaultBinary,
		VideoCodec:   DefaultVideoCodec,
		PixelFormat:  DefaultPixelFormat,
		AudioCodec:   DefaultAudioCodec,
		AudioBitrate: DefaultAudioBitrate,
	}
}

// FFmpeg drives the ffmpeg command line.
type FFmpeg struct {
	cfg    EncoderConfig
	runner core.CommandRunner
	log    *logger.Logger
}

// NewFFmpeg creates an encoder. A nil runner uses ExecRunner.
func NewFFmpeg(cfg EncoderConfig, runner core.CommandRunner, log *logger.Logger) *FFmpeg {
	defaults := DefaultEncoderConfig()

	if cfg.Binary == "" {
		cfg.Binary = defaults.Binary
	}

	if cfg.VideoCodec == "" {
		cfg.VideoCodec = defaults.VideoCodec
	}

	if cfg.PixelFormat == "" {
		cfg.PixelFormat = defaults.PixelFormat
	}

	if cfg.AudioCodec == "" {
		cfg.AudioCodec = defaults.AudioCodec
	}

	if cfg.AudioBitrate == "" {
		cfg.AudioBitrate = defaults.AudioBitrate
	}

	if runner == nil {
		runner = ExecRunner{}
	}

	return &FFmpeg{cfg: cfg, runner: runner, log: log}
}

// AssembleArgs returns the arguments that encode an image sequence.
func (f *FFmpeg) AssembleArgs(framePattern string, fps int, outputPath string) []string {
	args := []string{
		"-y",
		"-framerate", strconv.Itoa(fps),
		"-i", framePattern,
		"-c:v", f.cfg.VideoCodec,
		"-pix_fmt", f.cfg.PixelFormat,
	}

	if filter := f.filter(); filter != "" {
		args = append(args, "-vf", filter)
	}

	return append(args, outputPath)
}

// MuxArgs returns the arguments that add audio to a video, trimmed to the
// shorter stream.
func (f *FFmpeg) MuxArgs(videoPath, audioPath, outputPath string) []string {
	return []string{
		"-y",
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", f.cfg.AudioCodec,
		"-b:a", f.cfg.AudioBitrate,
		"-shortest",
		outputPath,
	}
}

// Assemble encodes the numbered frames matching framePattern at fps.
func (f *FFmpeg) Assemble(ctx context.Context, framePattern string, fps int, outputPath string) error {
	return f.run(ctx, stageAssemble, f.AssembleArgs(framePattern, fps, outputPath))
}

// Mux adds the audio track to a video.
func (f *FFmpeg) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	return f.run(ctx, stageMux, f.MuxArgs(videoPath, audioPath, outputPath))
}

func (f *FFmpeg) filter() string {
	filters := make([]string, 0, 2)

	if f.cfg.Filter != "" {
		filters = append(filters, f.cfg.Filter)
	}

	if f.cfg.Grain {
		filters = append(filters, GrainFilter)
	}

	return strings.Join(filters, ",")
}

func (f *FFmpeg) run(ctx context.Context, stage string, args []string) error {
	f.log.Info("Running %s %s: %s", f.cfg.Binary, stage, strings.Join(args, " "))

	output, err := f.runner.Run(ctx, f.cfg.Binary, args...)
	if err != nil {
		f.log.Error("Encoder %s failed: %v", stage, err)

		return &EncoderError{Stage: stage, Args: args, Output: string(output), Err: err}
	}

	return nil
}
