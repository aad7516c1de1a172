// Package metrics expone los contadores operativos del sincronizador en un
// registry propio de Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "squares"

// Metrics agrupa los collectors. Un *Metrics nil es válido y no registra nada,
// así los tests pueden omitirlo.
type Metrics struct {
	registry *prometheus.Registry

	syncCycles     prometheus.Counter
	poolsSynced    prometheus.Counter
	poolsSkipped   *prometheus.CounterVec
	fetchErrors    prometheus.Counter
	txConflicts    prometheus.Counter
	auditEvents    *prometheus.CounterVec
	auditDeduped   prometheus.Counter
	lockedPrize    prometheus.Gauge
	cycleDurations prometheus.Histogram
}

// New crea un registry nuevo con los collectors del proceso y los propios.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		syncCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sync_cycles_total",
			Help: "Completed poller cycles.",
		}),
		poolsSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "pools_synced_total",
			Help: "Pools whose provider feed was fetched and applied.",
		}),
		poolsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pools_skipped_total",
			Help: "Pools skipped by the poller, by reason.",
		}, []string{"reason"}),
		fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "provider_fetch_errors_total",
			Help: "Failed score provider fetches.",
		}),
		txConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tx_conflicts_total",
			Help: "Optimistic concurrency conflicts retried by the coordinator.",
		}),
		auditEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "audit_events_total",
			Help: "Audit events committed, by kind.",
		}, []string{"kind"}),
		auditDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "audit_deduped_total",
			Help: "Audit events dropped because their dedupe key was already used.",
		}),
		lockedPrize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "locked_prize_total",
			Help: "Global locked-in prize pool aggregate.",
		}),
		cycleDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "sync_cycle_seconds",
			Help:    "Poller cycle duration.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.syncCycles, m.poolsSynced, m.poolsSkipped, m.fetchErrors, m.txConflicts,
		m.auditEvents, m.auditDeduped, m.lockedPrize, m.cycleDurations)
	return m
}

// Handler sirve el registry en formato de exposición de Prometheus.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry devuelve el registry subyacente.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) CycleCompleted(seconds float64) {
	if m == nil {
		return
	}
	m.syncCycles.Inc()
	m.cycleDurations.Observe(seconds)
}

func (m *Metrics) PoolSynced() {
	if m == nil {
		return
	}
	m.poolsSynced.Inc()
}

func (m *Metrics) PoolSkipped(reason string) {
	if m == nil {
		return
	}
	m.poolsSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) FetchFailed() {
	if m == nil {
		return
	}
	m.fetchErrors.Inc()
}

func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.txConflicts.Inc()
}

// AuditCommitted cuenta los eventos insertados por kind y los deduplicados.
func (m *Metrics) AuditCommitted(kinds []string, deduped int) {
	if m == nil {
		return
	}
	for _, k := range kinds {
		m.auditEvents.WithLabelValues(k).Inc()
	}
	if deduped > 0 {
		m.auditDeduped.Add(float64(deduped))
	}
}

func (m *Metrics) SetLockedPrize(total float64) {
	if m == nil {
		return
	}
	m.lockedPrize.Set(total)
}
