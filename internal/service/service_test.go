package service_test

import (
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/toon-service/internal/audio"
	"github.com/book-expert/toon-service/internal/config"
	"github.com/book-expert/toon-service/internal/metrics"
	"github.com/book-expert/toon-service/internal/service"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "service-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func TestNewPipeline_FromDefaults(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.ApplyDefaults()
	cfg.Paths.AssetsDir = t.TempDir()

	pipe, err := service.NewPipeline(&cfg, newTestLogger(t), metrics.New())
	require.NoError(t, err)
	assert.NotNil(t, pipe)
}

func TestStages_RejectsInvalidAudio(t *testing.T) {
	t.Parallel()

	cfg := config.Defaults()
	cfg.Audio.SampleRate = 0

	_, err := service.Stages(&cfg, newTestLogger(t))
	require.ErrorIs(t, err, audio.ErrInvalidQuality)
}
