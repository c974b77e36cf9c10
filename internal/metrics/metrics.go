// Package metrics holds the prometheus collectors of the freight service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "freight"

type Metrics struct {
	SyncRuns             *prometheus.CounterVec
	SyncDuration         prometheus.Histogram
	PagesFetched         prometheus.Counter
	ContractsReconciled  *prometheus.CounterVec
	ContractFailures     prometheus.Counter
	LocationLookups      *prometheus.CounterVec
	NotificationsSent    *prometheus.CounterVec
	NotificationsDropped prometheus.Counter

	registry *prometheus.Registry
}

func New() *Metrics {
	return &Metrics{
		SyncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Sync runs by last error kind",
		}, []string{"result"}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Sync run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		PagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pages_fetched_total",
			Help:      "Contract pages fetched from the external source",
		}),
		ContractsReconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contracts",
			Name:      "reconciled_total",
			Help:      "Reconciled contracts by outcome",
		}, []string{"outcome"}),
		ContractFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contracts",
			Name:      "failures_total",
			Help:      "Contracts that failed to reconcile",
		}),
		LocationLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "locations",
			Name:      "lookups_total",
			Help:      "Location lookups by result",
		}, []string{"result"}),
		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Notification deliveries by sink and result",
		}, []string{"sink", "result"}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "dropped_total",
			Help:      "Notifications dropped because the queue was full",
		}),
	}
}

// Register adds all collectors to a fresh registry used by Handler.
func (m *Metrics) Register() error {
	registry := prometheus.NewRegistry()
	all := []prometheus.Collector{
		m.SyncRuns,
		m.SyncDuration,
		m.PagesFetched,
		m.ContractsReconciled,
		m.ContractFailures,
		m.LocationLookups,
		m.NotificationsSent,
		m.NotificationsDropped,
		collectors.NewGoCollector(),
	}
	for _, collector := range all {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	m.registry = registry
	return nil
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveSync(result string, duration time.Duration) {
	if m == nil {
		return
	}
	if result == "" {
		result = "ok"
	}
	m.SyncRuns.WithLabelValues(result).Inc()
	m.SyncDuration.Observe(duration.Seconds())
}

func (m *Metrics) PageFetched() {
	if m == nil {
		return
	}
	m.PagesFetched.Inc()
}

func (m *Metrics) ContractReconciled(outcome string) {
	if m == nil {
		return
	}
	m.ContractsReconciled.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ContractFailed() {
	if m == nil {
		return
	}
	m.ContractFailures.Inc()
}

func (m *Metrics) LocationLookup(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.LocationLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) NotificationSent(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.NotificationsSent.WithLabelValues(sink, result).Inc()
}

func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.NotificationsDropped.Inc()
}
