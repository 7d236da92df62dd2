// Package metrics groups the Prometheus instruments recorded by sessions and
// the response cache. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "parley"

// Cache lookup results.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheBypass  = "bypass"
	CacheRefresh = "refresh"
)

// Request modes.
const (
	ModeAsk    = "ask"
	ModeStream = "stream"
)

// Request outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Metrics holds the instruments. Construct it with New.
type Metrics struct {
	Requests        *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	TransportErrors *prometheus.CounterVec
	RequestLatency  *prometheus.HistogramVec
	StreamFragments prometheus.Counter
	ContextMessages prometheus.Gauge
}

// New registers the instruments on reg. Pass a fresh prometheus.Registry in
// tests so repeated construction does not collide.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Completion requests by mode and outcome.",
		}, []string{"mode", "outcome"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache resolutions by result.",
		}, []string{"result"}),
		TransportErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Remote service failures by kind.",
		}, []string{"kind"}),
		RequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_seconds",
			Help:      "Time from request to final response or stream end.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"mode"}),
		StreamFragments: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_fragments_total",
			Help:      "Text fragments delivered by streaming answers.",
		}),
		ContextMessages: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "context_messages",
			Help:      "Messages currently held in the conversation context.",
		}),
	}
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(mode, outcome).Inc()
	m.RequestLatency.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveCache records a cache resolution result.
func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveTransportError records a remote failure classified by kind.
func (m *Metrics) ObserveTransportError(kind string) {
	if m == nil {
		return
	}
	m.TransportErrors.WithLabelValues(kind).Inc()
}

// ObserveFragment counts one streamed fragment.
func (m *Metrics) ObserveFragment() {
	if m == nil {
		return
	}
	m.StreamFragments.Inc()
}

// SetContextSize reports the current context length.
func (m *Metrics) SetContextSize(n int) {
	if m == nil {
		return
	}
	m.ContextMessages.Set(float64(n))
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
