package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/toon-service/internal/metrics"
)

func TestManager_RecordsCounters(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	manager := metrics.New(metrics.WithRegistry(registry), metrics.WithNamespace("test"))

	manager.FramesRendered(24)
	manager.Fallback(metrics.FallbackWord, 2)
	manager.Fallback(metrics.FallbackWord, 0)
	manager.EncoderFailure("mux")
	manager.Job(metrics.JobDegraded)
	manager.ObserveRender(3 * time.Second)

	count, err := testutil.GatherAndCount(registry,
		"test_frames_rendered_total", "test_fallbacks_total", "test_encoder_failures_total",
		"test_jobs_total", "test_render_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestManager_NilIsNoop(t *testing.T) {
	t.Parallel()

	var manager *metrics.Manager

	assert.NotPanics(t, func() {
		manager.FramesRendered(1)
		manager.Fallback(metrics.FallbackAsset, 1)
		manager.EncoderFailure("assemble")
		manager.Job(metrics.JobFailed)
		manager.ObserveRender(time.Second)
	})
}

func TestManager_Handler(t *testing.T) {
	t.Parallel()

	manager := metrics.New()
	manager.FramesRendered(3)

	recorder := httptest.NewRecorder()
	manager.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "toon_frames_rendered_total 3")
}
