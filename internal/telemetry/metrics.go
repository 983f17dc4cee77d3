package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the assistant.
type Metrics struct {
	RequestTotal       *prometheus.CounterVec
	RequestDurationMs  *prometheus.HistogramVec
	CacheLookupTotal   *prometheus.CounterVec
	UpstreamTotal      *prometheus.CounterVec
	UpstreamDurationMs *prometheus.HistogramVec
	RateLimitedTotal   prometheus.Counter
	ActionsLoaded      prometheus.Gauge
	FallbackTotal      *prometheus.CounterVec
}

// NewMetrics creates the metrics and registers them with reg.
// A nil reg registers with the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		RequestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dentassist_request_total",
			Help: "Total number of assistant requests by action and outcome.",
		}, []string{"endpoint", "action", "outcome"}),

		RequestDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dentassist_request_duration_ms",
			Help:    "End-to-end request processing time in milliseconds.",
			Buckets: []float64{1, 5, 25, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"endpoint", "cached"}),

		CacheLookupTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dentassist_cache_lookup_total",
			Help: "Answer cache lookups by result.",
		}, []string{"result"}),

		UpstreamTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dentassist_upstream_request_total",
			Help: "Calls to the completion service by provider and status.",
		}, []string{"provider", "status"}),

		UpstreamDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dentassist_upstream_duration_ms",
			Help:    "Completion service latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"provider"}),

		RateLimitedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "dentassist_rate_limited_total",
			Help: "Requests rejected by the per-client rate limit.",
		}),

		ActionsLoaded: f.NewGauge(prometheus.GaugeOpts{
			Name: "dentassist_actions_loaded",
			Help: "Number of actions in the active registry snapshot.",
		}),

		FallbackTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dentassist_action_fallback_total",
			Help: "Requests whose unknown action was replaced by the default action.",
		}, []string{"requested"}),
	}
}

// RecordRequest records a completed request.
func (m *Metrics) RecordRequest(labels RequestLabels) {
	if m == nil {
		return
	}
	cached := "false"
	if labels.Cached {
		cached = "true"
	}
	m.RequestTotal.WithLabelValues(labels.Endpoint, labels.Action, labels.Outcome).Inc()
	m.RequestDurationMs.WithLabelValues(labels.Endpoint, cached).Observe(labels.DurationMs)
}

// RecordCacheLookup records a cache hit, miss or error.
func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookupTotal.WithLabelValues(result).Inc()
}

// RecordUpstream records one completion call.
func (m *Metrics) RecordUpstream(provider, status string, durationMs float64) {
	if m == nil {
		return
	}
	m.UpstreamTotal.WithLabelValues(provider, status).Inc()
	m.UpstreamDurationMs.WithLabelValues(provider).Observe(durationMs)
}

func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

func (m *Metrics) RecordFallback(requested string) {
	if m == nil {
		return
	}
	m.FallbackTotal.WithLabelValues(requested).Inc()
}

func (m *Metrics) SetActionsLoaded(n int) {
	if m == nil {
		return
	}
	m.ActionsLoaded.Set(float64(n))
}

// RequestLabels holds the label values for recording a request.
type RequestLabels struct {
	Endpoint   string
	Action     string
	Outcome    string
	Cached     bool
	DurationMs float64
}
