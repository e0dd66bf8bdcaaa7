// Package metrics exposes Prometheus metrics for the render pipeline. A nil
// *Manager is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fallback kinds.
const (
	FallbackWord      = "word"
	FallbackAsset     = "asset"
	FallbackAlignment = "alignment"
	FallbackSynthesis = "synthesis"
	FallbackEmotion   = "emotion"
)

// Job outcomes.
const (
	JobSucceeded = "succeeded"
	JobDegraded  = "degraded"
	JobFailed    = "failed"
)

var renderBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600}

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace sets the metric namespace.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithRegistry registers the metrics on registry instead of a private one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// Manager holds the pipeline's collectors.
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	framesRendered  prometheus.Counter
	fallbacks       *prometheus.CounterVec
	encoderFailures *prometheus.CounterVec
	jobs            *prometheus.CounterVec
	renderDuration  prometheus.Histogram
}

// New creates and registers the collectors.
func New(opts ...Option) *Manager {
	m := &Manager{
		namespace: "toon",
		registry:  prometheus.NewRegistry(),
	}

	for _, opt := range opts {
		opt(m)
	}

	auto := promauto.With(m.registry)

	m.framesRendered = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "frames_rendered_total",
		Help:      "Frames composited and written to disk",
	})

	m.fallbacks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "fallbacks_total",
		Help:      "Fallback substitutions by kind (word, asset, alignment, synthesis, emotion)",
	}, []string{"kind"})

	m.encoderFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "encoder_failures_total",
		Help:      "Failed encoder invocations by stage",
	}, []string{"stage"})

	m.jobs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "jobs_total",
		Help:      "Render jobs by outcome",
	}, []string{"status"})

	m.renderDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "render_duration_seconds",
		Help:      "Wall time spent rendering and encoding one video",
		Buckets:   renderBuckets,
	})

	return m
}

// FramesRendered adds n rendered frames.
func (m *Manager) FramesRendered(n int) {
	if m == nil {
		return
	}

	m.framesRendered.Add(float64(n))
}

// Fallback records n substitutions of kind.
func (m *Manager) Fallback(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}

	m.fallbacks.WithLabelValues(kind).Add(float64(n))
}

// EncoderFailure records a failed encoder stage.
func (m *Manager) EncoderFailure(stage string) {
	if m == nil {
		return
	}

	m.encoderFailures.WithLabelValues(stage).Inc()
}

// Job records a finished job.
func (m *Manager) Job(status string) {
	if m == nil {
		return
	}

	m.jobs.WithLabelValues(status).Inc()
}

// ObserveRender records one render's wall time.
func (m *Manager) ObserveRender(elapsed time.Duration) {
	if m == nil {
		return
	}

	m.renderDuration.Observe(elapsed.Seconds())
}

// Registry returns the registry the collectors are registered on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
