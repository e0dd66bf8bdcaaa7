// Package audio prepares synthesized speech for alignment and rendering:
// conversion to the aligner's WAV format and duration inspection.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/faiface/beep/wav"

	"github.com/book-expert/toon-service/internal/core"
)

// Defaults produce 16 kHz mono 16-bit PCM with a second of silence on both
// ends.
const (
	DefaultBinary     = "ffmpeg"
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultCodec      = "pcm_s16le"
	DefaultPadding    = 1.0
)

// Validation limits.
const (
	maxSampleRate = 192000
	maxChannels   = 8
	maxPadding    = 60.0
)

const (
	errFmtSampleRateRange = "%w: sample rate must be between 1 and %d Hz"
	errFmtChannelsRange   = "%w: channels must be between 1 and %d"
	errFmtPaddingRange    = "%w: padding must be between 0 and %.0f seconds"
	errFmtCodecEmpty      = "%w: codec cannot be empty"
)

var (
	// ErrInvalidQuality is wrapped by every Quality validation failure.
	ErrInvalidQuality = errors.New("invalid quality settings")

	// ErrConversionFailed is wrapped when the converter process fails.
	ErrConversionFailed = errors.New("audio conversion failed")
)

// Quality describes the converted WAV.
type Quality struct {
	Binary     string  `toml:"binary"`
	Codec      string  `toml:"codec"`
	SampleRate int     `toml:"sample_rate"`
	Channels   int     `toml:"channels"`
	Padding    float64 `toml:"padding_seconds"`
}

// NewDefaultQuality returns the aligner-friendly defaults.
func NewDefaultQuality() Quality {
	return Quality{
		Binary:     DefaultBinary,
		Codec:      DefaultCodec,
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		Padding:    DefaultPadding,
	}
}

// Validate checks the settings are within reasonable bounds.
func (q *Quality) Validate() error {
	if q.SampleRate <= 0 || q.SampleRate > maxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidQuality, maxSampleRate)
	}

	if q.Channels <= 0 || q.Channels > maxChannels {
		return fmt.Errorf(errFmtChannelsRange, ErrInvalidQuality, maxChannels)
	}

	if q.Padding < 0 || q.Padding > maxPadding {
		return fmt.Errorf(errFmtPaddingRange, ErrInvalidQuality, maxPadding)
	}

	if strings.TrimSpace(q.Codec) == "" {
		return fmt.Errorf(errFmtCodecEmpty, ErrInvalidQuality)
	}

	return nil
}

// Args returns the ffmpeg arguments converting input into output.
func (q *Quality) Args(input, output string) []string {
	args := []string{"-y", "-i", input}

	if q.Padding > 0 {
		millis := strconv.FormatInt(int64(q.Padding*1000), 10)
		seconds := strconv.FormatFloat(q.Padding, 'f', -1, 64)
		args = append(args, "-af", "adelay="+millis+":all=1,apad=pad_dur="+seconds)
	}

	return append(args,
		"-ar", strconv.Itoa(q.SampleRate),
		"-ac", strconv.Itoa(q.Channels),
		"-acodec", q.Codec,
		output,
	)
}

// Converter turns synthesized audio into the WAV layout the aligner and the
// renderer expect.
type Converter struct {
	runner  core.CommandRunner
	log     *logger.Logger
	quality Quality
}

// NewConverter creates a converter. A zero binary uses ffmpeg.
func NewConverter(quality Quality, runner core.CommandRunner, log *logger.Logger) (*Converter, error) {
	validateErr := quality.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	if quality.Binary == "" {
		quality.Binary = DefaultBinary
	}

	return &Converter{runner: runner, log: log, quality: quality}, nil
}

// Convert writes input as output in the configured quality.
func (c *Converter) Convert(ctx context.Context, input, output string) error {
	args := c.quality.Args(input, output)

	c.log.Info("Converting audio %s -> %s (%d Hz, %d ch)", input, output, c.quality.SampleRate, c.quality.Channels)

	out, runErr := c.runner.Run(ctx, c.quality.Binary, args...)
	if runErr != nil {
		c.log.Error("Audio conversion of %s failed: %v", input, runErr)

		return fmt.Errorf("%w: %w - output: %s", ErrConversionFailed, runErr, strings.TrimSpace(string(out)))
	}

	return nil
}

// Duration reports the playing time of a WAV file.
func Duration(path string) (time.Duration, error) {
	file, openErr := os.Open(path) // #nosec G304
	if openErr != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, openErr)
	}

	defer func() { _ = file.Close() }()

	streamer, format, decodeErr := wav.Decode(file)
	if decodeErr != nil {
		return 0, fmt.Errorf("failed to decode %s: %w", path, decodeErr)
	}

	defer func() { _ = streamer.Close() }()

	return format.SampleRate.D(streamer.Len()), nil
}
