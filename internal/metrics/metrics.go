// Package metrics exposes processing counters for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors of the analyzer
type Metrics struct {
	registry *prometheus.Registry

	matchesTotal *prometheus.CounterVec
	eventsTotal  *prometheus.CounterVec
	offsetTicks  prometheus.Histogram
	durationSecs prometheus.Histogram
	lastRunUnix  prometheus.Gauge
	feedViewers  prometheus.Gauge
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.matchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replay",
		Name:      "matches_processed_total",
		Help:      "Matches processed by reconcile status",
	}, []string{"status"})
	m.eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "replay",
		Name:      "item_events_total",
		Help:      "Item events seen by outcome",
	}, []string{"outcome"})
	m.offsetTicks = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "replay",
		Name:      "reconcile_offset_ticks",
		Help:      "Absolute tick offset applied when aligning the combat log",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	})
	m.durationSecs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "replay",
		Name:      "analyze_duration_seconds",
		Help:      "Time spent analyzing one match",
		Buckets:   prometheus.DefBuckets,
	})
	m.lastRunUnix = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "replay",
		Name:      "last_batch_timestamp_seconds",
		Help:      "Unix timestamp of the last finished batch run",
	})
	m.feedViewers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "replay",
		Name:      "feed_viewers",
		Help:      "Connected websocket viewers",
	})

	m.registry.MustRegister(
		m.matchesTotal, m.eventsTotal, m.offsetTicks,
		m.durationSecs, m.lastRunUnix, m.feedViewers,
	)
	return m
}

// ObserveMatch records one analyzed match
func (m *Metrics) ObserveMatch(status string, offset int64, attributed, dropped int, took time.Duration) {
	m.matchesTotal.WithLabelValues(status).Inc()
	m.eventsTotal.WithLabelValues("attributed").Add(float64(attributed))
	m.eventsTotal.WithLabelValues("dropped").Add(float64(dropped))
	if offset != 0 {
		if offset < 0 {
			offset = -offset
		}
		m.offsetTicks.Observe(float64(offset))
	}
	m.durationSecs.Observe(took.Seconds())
}

// ObserveFailure records a match that could not be analyzed at all
func (m *Metrics) ObserveFailure() {
	m.matchesTotal.WithLabelValues("failed").Inc()
}

// BatchFinished stamps the end of a batch run
func (m *Metrics) BatchFinished(at time.Time) {
	m.lastRunUnix.Set(float64(at.Unix()))
}

// SetViewers reports the websocket audience
func (m *Metrics) SetViewers(n int) {
	m.feedViewers.Set(float64(n))
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
