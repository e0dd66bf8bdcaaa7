// Package config provides the configuration structure for the toon-service.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"

	"github.com/book-expert/toon-service/internal/audio"
	"github.com/book-expert/toon-service/internal/export"
	"github.com/book-expert/toon-service/internal/motion"
	"github.com/book-expert/toon-service/internal/pipeline"
	"github.com/book-expert/toon-service/internal/render"
	"github.com/book-expert/toon-service/internal/rig"
	"github.com/book-expert/toon-service/internal/tts"
	"github.com/book-expert/toon-service/internal/whisper"
)

// Environment variables consulted when the file leaves a secret empty.
const (
	EnvElevenLabsAPIKey  = "ELEVENLABS_API_KEY"
	EnvElevenLabsVoiceID = "ELEVENLABS_VOICE_ID"
	EnvOpenAIAPIKey      = whisper.EnvAPIKey
)

// Defaults.
const (
	DefaultFPS            = 24
	DefaultTimeoutSeconds = 600
	DefaultLogsDir        = "logs"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                      string `toml:"url"`
	AudioChunkCreatedSubject string `toml:"audio_chunk_created_subject"`
	TextProcessedSubject     string `toml:"text_processed_subject"`
	VideoRenderedSubject     string `toml:"video_rendered_subject"`
	AudioObjectStoreBucket   string `toml:"audio_object_store_bucket"`
	VideoObjectStoreBucket   string `toml:"video_object_store_bucket"`
	TranscriptBucket         string `toml:"transcript_object_store_bucket"`
}

// TTSConfig configures the speech synthesis client.
type TTSConfig struct {
	BaseURL         string  `toml:"base_url"`
	APIKey          string  `toml:"api_key"`
	VoiceID         string  `toml:"voice_id"`
	ModelID         string  `toml:"model_id"`
	Stability       float64 `toml:"stability"`
	SimilarityBoost float64 `toml:"similarity_boost"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
}

// WhisperConfig configures the word aligner.
type WhisperConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// RenderConfig tunes the frame render.
type RenderConfig struct {
	FPS            int     `toml:"fps"`
	Workers        int     `toml:"workers"`
	Seed           uint64  `toml:"seed"`
	MorphDuration  float64 `toml:"morph_duration"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir    string `toml:"base_logs_dir"`
	RigDescriptor  string `toml:"rig_descriptor"`
	AssetsDir      string `toml:"assets_dir"`
	Dictionary     string `toml:"dictionary"`
	WorkDir        string `toml:"work_dir"`
	OutputDir      string `toml:"output_dir"`
	MetricsAddress string `toml:"metrics_address"`
}

// Config is the root configuration structure.
type Config struct {
	NATS    NATSConfig           `toml:"nats"`
	TTS     TTSConfig            `toml:"tts"`
	Whisper WhisperConfig        `toml:"whisper"`
	Render  RenderConfig         `toml:"render"`
	Blink   motion.BlinkConfig   `toml:"blink"`
	Motion  motion.IdleConfig    `toml:"motion"`
	Paths   PathsConfig          `toml:"paths"`
	Encoder export.EncoderConfig `toml:"encoder"`
	Audio   audio.Quality        `toml:"audio"`
}

// Defaults returns a configuration with every optional value filled except
// the blink phases, which ApplyDefaults supplies after decoding so a file's
// phase list replaces them instead of merging into them.
func Defaults() Config {
	blink := motion.DefaultBlinkConfig()
	blink.Phases = nil

	return Config{
		TTS: TTSConfig{
			BaseURL:         tts.DefaultBaseURL,
			ModelID:         tts.DefaultModelID,
			Stability:       tts.DefaultStability,
			SimilarityBoost: tts.DefaultSimilarityBoost,
			TimeoutSeconds:  int(tts.DefaultTimeout / time.Second),
		},
		Whisper: WhisperConfig{
			BaseURL:        whisper.DefaultBaseURL,
			Model:          whisper.DefaultModel,
			Language:       whisper.DefaultLanguage,
			TimeoutSeconds: int(whisper.DefaultTimeout / time.Second),
		},
		Render: RenderConfig{
			FPS:            DefaultFPS,
			Workers:        1,
			MorphDuration:  render.DefaultMorphDuration,
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		Blink:   blink,
		Motion:  motion.DefaultIdleConfig(),
		Paths:   PathsConfig{BaseLogsDir: DefaultLogsDir},
		Encoder: export.DefaultEncoderConfig(),
		Audio:   audio.NewDefaultQuality(),
	}
}

// Load loads the configuration for the toon-service on top of Defaults and
// fills secrets from the environment.
func Load(log *logger.Logger) (*Config, error) {
	cfg := Defaults()

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()
	cfg.ApplyEnvironment()

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, validateErr
	}

	return &cfg, nil
}

// LoadFile reads a TOML configuration file directly, for tools run outside
// the configurator's environment.
func LoadFile(path string) (*Config, error) {
	data, readErr := os.ReadFile(path) // #nosec G304
	if readErr != nil {
		return nil, fmt.Errorf("failed to read configuration %s: %w", path, readErr)
	}

	cfg := Defaults()

	unmarshalErr := toml.Unmarshal(data, &cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse configuration %s: %w", path, unmarshalErr)
	}

	cfg.ApplyDefaults()
	cfg.ApplyEnvironment()

	validateErr := cfg.Validate()
	if validateErr != nil {
		return nil, fmt.Errorf("%s: %w", path, validateErr)
	}

	return &cfg, nil
}

// ApplyDefaults fills values that cannot be pre-set before decoding.
func (c *Config) ApplyDefaults() {
	if len(c.Blink.Phases) == 0 {
		c.Blink.Phases = motion.DefaultBlinkConfig().Phases
	}
}

// ApplyEnvironment reads API keys and the voice from the environment when
// the file leaves them empty.
func (c *Config) ApplyEnvironment() {
	fill := func(target *string, key string) {
		if *target == "" {
			*target = os.Getenv(key)
		}
	}

	fill(&c.TTS.APIKey, EnvElevenLabsAPIKey)
	fill(&c.TTS.VoiceID, EnvElevenLabsVoiceID)
	fill(&c.Whisper.APIKey, EnvOpenAIAPIKey)
}

// Validate checks the values the render cannot run without.
func (c *Config) Validate() error {
	if c.Render.FPS <= 0 {
		return fmt.Errorf("%w: render.fps must be positive, got %d", ErrInvalidConfig, c.Render.FPS)
	}

	if c.Render.Workers < 0 {
		return fmt.Errorf("%w: render.workers cannot be negative", ErrInvalidConfig)
	}

	if c.Render.MorphDuration < 0 {
		return fmt.Errorf("%w: render.morph_duration cannot be negative", ErrInvalidConfig)
	}

	blinkErr := c.Blink.Validate()
	if blinkErr != nil {
		return fmt.Errorf("%w: blink: %w", ErrInvalidConfig, blinkErr)
	}

	audioErr := c.Audio.Validate()
	if audioErr != nil {
		return fmt.Errorf("%w: audio: %w", ErrInvalidConfig, audioErr)
	}

	return nil
}

// TTSClientConfig converts the section into client settings.
func (c *Config) TTSClientConfig() tts.Config {
	return tts.Config{
		BaseURL:         c.TTS.BaseURL,
		APIKey:          c.TTS.APIKey,
		VoiceID:         c.TTS.VoiceID,
		ModelID:         c.TTS.ModelID,
		Stability:       c.TTS.Stability,
		SimilarityBoost: c.TTS.SimilarityBoost,
		Timeout:         seconds(c.TTS.TimeoutSeconds),
	}
}

// WhisperClientConfig converts the section into aligner settings.
func (c *Config) WhisperClientConfig() whisper.Config {
	return whisper.Config{
		BaseURL:  c.Whisper.BaseURL,
		APIKey:   c.Whisper.APIKey,
		Model:    c.Whisper.Model,
		Language: c.Whisper.Language,
		Timeout:  seconds(c.Whisper.TimeoutSeconds),
	}
}

// PipelineConfig converts the render, blink and motion sections.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		FPS:            c.Render.FPS,
		Workers:        c.Render.Workers,
		Seed:           c.Render.Seed,
		MorphDuration:  c.Render.MorphDuration,
		DictionaryPath: c.Paths.Dictionary,
		Blink:          c.Blink,
		Idle:           c.Motion,
	}
}

// Descriptor loads the rig descriptor file, or lays out the conventional
// rig under the assets directory when no descriptor is configured.
func (c *Config) Descriptor() (rig.Descriptor, error) {
	if c.Paths.RigDescriptor == "" {
		return rig.DefaultDescriptor(c.Paths.AssetsDir), nil
	}

	return rig.LoadDescriptor(c.Paths.RigDescriptor)
}

// RenderTimeout bounds one job.
func (c *Config) RenderTimeout() time.Duration {
	return seconds(c.Render.TimeoutSeconds)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
