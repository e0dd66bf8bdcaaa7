// Package config_test tests the configuration loading for the toon-service.
package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/toon-service/internal/config"
	"github.com/book-expert/toon-service/internal/motion"
)

const tomlData = `
[nats]
url = "nats://127.0.0.1:4222"
audio_chunk_created_subject = "audio.chunk.created"
text_processed_subject = "text.processed"
video_rendered_subject = "video.rendered"
audio_object_store_bucket = "AUDIO_FILES"
video_object_store_bucket = "VIDEO_FILES"

[tts]
voice_id = "narrator"
stability = 0.3

[render]
fps = 30
workers = 4
seed = 42

[blink]
min_interval = 1.5
max_interval = 3.0

[[blink.phases]]
state = "closed"
duration = 0.1

[motion]
bob_amplitude = 2.0

[paths]
base_logs_dir = "/var/log/toon"
dictionary = "cmudict.dict"

[encoder]
grain = true

[audio]
sample_rate = 22050
`

func decode(t *testing.T) config.Config {
	t.Helper()

	cfg := config.Defaults()
	require.NoError(t, toml.Unmarshal([]byte(tomlData), &cfg))
	cfg.ApplyDefaults()

	return cfg
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	cfg := decode(t)

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "text.processed", cfg.NATS.TextProcessedSubject)
	assert.Equal(t, "audio.chunk.created", cfg.NATS.AudioChunkCreatedSubject)
	assert.Equal(t, "video.rendered", cfg.NATS.VideoRenderedSubject)
	assert.Equal(t, "AUDIO_FILES", cfg.NATS.AudioObjectStoreBucket)
	assert.Equal(t, "VIDEO_FILES", cfg.NATS.VideoObjectStoreBucket)
	assert.Equal(t, "narrator", cfg.TTS.VoiceID)
	assert.InEpsilon(t, 0.3, cfg.TTS.Stability, 0.001)
	assert.InEpsilon(t, 0.75, cfg.TTS.SimilarityBoost, 0.001, "unset values keep defaults")
	assert.Equal(t, 30, cfg.Render.FPS)
	assert.Equal(t, uint64(42), cfg.Render.Seed)
	assert.Equal(t, []motion.Phase{{State: motion.Closed, Duration: 0.1}}, cfg.Blink.Phases)
	assert.InEpsilon(t, 2.0, cfg.Motion.BobAmplitude, 0.001)
	assert.True(t, cfg.Encoder.Grain)
	assert.Equal(t, "libx264", cfg.Encoder.VideoCodec)
	assert.Equal(t, 22050, cfg.Audio.SampleRate)
	assert.Equal(t, 1, cfg.Audio.Channels)
	require.NoError(t, cfg.Validate())

	pipelineCfg := cfg.PipelineConfig()
	assert.Equal(t, 4, pipelineCfg.Workers)
	assert.Equal(t, "cmudict.dict", pipelineCfg.DictionaryPath)
}

func TestApplyDefaults_FillsBlinkPhases(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	assert.Empty(t, cfg.Blink.Phases)

	cfg.ApplyDefaults()
	assert.Equal(t, motion.DefaultBlinkConfig(), cfg.Blink)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*config.Config){
		"fps":     func(c *config.Config) { c.Render.FPS = 0 },
		"workers": func(c *config.Config) { c.Render.Workers = -1 },
		"morph":   func(c *config.Config) { c.Render.MorphDuration = -0.1 },
		"blink":   func(c *config.Config) { c.Blink.MinInterval = 9 },
		"audio":   func(c *config.Config) { c.Audio.Channels = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Defaults()
			cfg.ApplyDefaults()
			mutate(&cfg)

			require.ErrorIs(t, cfg.Validate(), config.ErrInvalidConfig)
		})
	}
}

func TestApplyEnvironment(t *testing.T) {
	t.Setenv(config.EnvElevenLabsAPIKey, "eleven")
	t.Setenv(config.EnvElevenLabsVoiceID, "voice")
	t.Setenv(config.EnvOpenAIAPIKey, "openai")

	cfg := config.Defaults()
	cfg.TTS.VoiceID = "from-file"
	cfg.ApplyEnvironment()

	assert.Equal(t, "eleven", cfg.TTS.APIKey)
	assert.Equal(t, "from-file", cfg.TTS.VoiceID)
	assert.Equal(t, "openai", cfg.Whisper.APIKey)
	assert.Equal(t, "eleven", cfg.TTSClientConfig().APIKey)
	assert.Equal(t, "openai", cfg.WhisperClientConfig().APIKey)
}

func TestDescriptor(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Paths.AssetsDir = "/assets"

	desc, err := cfg.Descriptor()
	require.NoError(t, err)
	assert.Equal(t, "/assets", desc.Root)

	dir := t.TempDir()
	path := filepath.Join(dir, "rig.toml")
	require.NoError(t, os.WriteFile(path, []byte("name = \"norris\"\nroot = \"art\"\n"), 0o600))

	cfg.Paths.RigDescriptor = path

	desc, err = cfg.Descriptor()
	require.NoError(t, err)
	assert.Equal(t, "norris", desc.Name)
	assert.Equal(t, filepath.Join(dir, "art"), desc.Root)
}

func TestLoadFile(t *testing.T) {
	t.Setenv(config.EnvOpenAIAPIKey, "from-env")

	path := filepath.Join(t.TempDir(), "project.toml")
	require.NoError(t, os.WriteFile(path, []byte(tomlData), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Render.FPS)
	assert.Equal(t, "from-env", cfg.Whisper.APIKey)

	require.NoError(t, os.WriteFile(path, []byte("[render]\nfps = 0\n"), 0o600))

	_, err = config.LoadFile(path)
	require.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = config.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
