// Package metrics holds the Prometheus counters exported on the admin server.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kibalert"

type Metrics struct {
	Registry *prometheus.Registry

	evaluated     *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	affected      *prometheus.CounterVec
	duplicates    *prometheus.CounterVec
	fetchErrors   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	enrichments   *prometheus.CounterVec
	lastIteration prometheus.Gauge
}

func New() *Metrics {
	byCategory := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, []string{"category"})
	}
	m := &Metrics{
		Registry:   prometheus.NewRegistry(),
		evaluated:  byCategory("records_evaluated_total", "Records classified as affected or unaffected."),
		skipped:    byCategory("records_skipped_total", "Records skipped because the monitored metric was missing."),
		affected:   byCategory("entities_affected_total", "Entities reported as affected after deduplication."),
		duplicates: byCategory("entities_duplicate_total", "Affected entities dropped as repeats within a batch."),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fetch_errors_total", Help: "Search backend failures by kind.",
		}, []string{"category", "kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total", Help: "Notification attempts by channel and status.",
		}, []string{"channel", "status"}),
		enrichments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "enrichment_runs_total", Help: "LLM report attempts by provider and status.",
		}, []string{"provider", "status"}),
		lastIteration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_iteration_timestamp_seconds", Help: "Completion time of the last polling iteration.",
		}),
	}
	m.Registry.MustRegister(m.evaluated, m.skipped, m.affected, m.duplicates,
		m.fetchErrors, m.notifications, m.enrichments, m.lastIteration)
	return m
}

func (m *Metrics) ObserveBatch(category string, evaluated, skipped, affected, duplicates int) {
	if m == nil {
		return
	}
	m.evaluated.WithLabelValues(category).Add(float64(evaluated))
	m.skipped.WithLabelValues(category).Add(float64(skipped))
	m.affected.WithLabelValues(category).Add(float64(affected))
	m.duplicates.WithLabelValues(category).Add(float64(duplicates))
}

func (m *Metrics) FetchError(category, kind string) {
	if m == nil {
		return
	}
	m.fetchErrors.WithLabelValues(category, kind).Inc()
}

func (m *Metrics) Notification(channel string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(channel, status(err)).Inc()
}

func (m *Metrics) Enrichment(provider string, err error) {
	if m == nil {
		return
	}
	m.enrichments.WithLabelValues(provider, status(err)).Inc()
}

func (m *Metrics) IterationDone(t time.Time) {
	if m == nil {
		return
	}
	m.lastIteration.Set(float64(t.Unix()))
}

func status(err error) string {
	if err != nil {
		return "failed"
	}
	return "sent"
}

// SkippedCounter exposes the per-category skip counter for assertions.
func (m *Metrics) SkippedCounter(category string) prometheus.Counter {
	return m.skipped.WithLabelValues(category)
}

func (m *Metrics) NotificationCounter(channel, status string) prometheus.Counter {
	return m.notifications.WithLabelValues(channel, status)
}

func (m *Metrics) FetchErrorCounter(category, kind string) prometheus.Counter {
	return m.fetchErrors.WithLabelValues(category, kind)
}
