package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aminnairi/cristaline/core/es"
	"github.com/aminnairi/cristaline/core/metrics"
)

// esMetrics implements es.Metrics using Prometheus. Every series is
// labelled with the engine name.
type esMetrics struct {
	lockWait *prometheus.HistogramVec

	initializeDuration *prometheus.HistogramVec
	eventsReplayed     *prometheus.GaugeVec
	corruptRecords     *prometheus.CounterVec

	appendDuration     *prometheus.HistogramVec
	eventsAppended     *prometheus.CounterVec
	appendFailures     *prometheus.CounterVec
	transactionAborted *prometheus.CounterVec

	snapshotDuration *prometheus.HistogramVec
	snapshots        *prometheus.CounterVec
	eventsArchived   *prometheus.CounterVec

	listenerPanics *prometheus.CounterVec
}

// NewESMetrics creates Prometheus metrics and registers them with reg.
func NewESMetrics(reg prometheus.Registerer) es.Metrics {
	engine := []string{"engine"}
	m := &esMetrics{
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cristaline_lock_wait_duration_seconds",
			Help:    "Time spent waiting for the engine lock in seconds",
			Buckets: defaultBuckets,
		}, engine),

		initializeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cristaline_initialize_duration_seconds",
			Help:    "Full log replay latency in seconds",
			Buckets: defaultBuckets,
		}, engine),

		eventsReplayed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cristaline_events_replayed",
			Help: "Number of events read by the last successful replay",
		}, engine),

		corruptRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cristaline_corrupt_records_total",
			Help: "Total number of invalid records found while replaying",
		}, engine),

		appendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cristaline_append_duration_seconds",
			Help:    "Adapter append latency in seconds",
			Buckets: defaultBuckets,
		}, engine),

		eventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cristaline_events_appended_total",
			Help: "Total number of events persisted",
		}, engine),

		appendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cristaline_append_failures_total",
			Help: "Total number of failed adapter appends",
		}, engine),

		transactionAborted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cristaline_transactions_aborted_total",
			Help: "Total number of transactions whose body failed",
		}, engine),

		snapshotDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cristaline_snapshot_duration_seconds",
			Help:    "Snapshot latency in seconds",
			Buckets: defaultBuckets,
		}, engine),

		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cristaline_snapshots_total",
			Help: "Total number of snapshots taken",
		}, engine),

		eventsArchived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cristaline_events_archived_total",
			Help: "Total number of events moved to the archive by snapshots",
		}, engine),

		listenerPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cristaline_listener_panics_total",
			Help: "Total number of recovered listener panics",
		}, engine),
	}

	reg.MustRegister(
		m.lockWait,
		m.initializeDuration,
		m.eventsReplayed,
		m.corruptRecords,
		m.appendDuration,
		m.eventsAppended,
		m.appendFailures,
		m.transactionAborted,
		m.snapshotDuration,
		m.snapshots,
		m.eventsArchived,
		m.listenerPanics,
	)

	return m
}

func (m *esMetrics) LockWaitDuration(engine string) metrics.Timer {
	return newTimer(m.lockWait.WithLabelValues(engine))
}

func (m *esMetrics) InitializeDuration(engine string) metrics.Timer {
	return newTimer(m.initializeDuration.WithLabelValues(engine))
}

func (m *esMetrics) EventsReplayed(engine string, count int) {
	m.eventsReplayed.WithLabelValues(engine).Set(float64(count))
}

func (m *esMetrics) CorruptionDetected(engine string, invalidRecords int) {
	m.corruptRecords.WithLabelValues(engine).Add(float64(invalidRecords))
}

func (m *esMetrics) AppendDuration(engine string) metrics.Timer {
	return newTimer(m.appendDuration.WithLabelValues(engine))
}

func (m *esMetrics) EventsAppended(engine string, count int) {
	m.eventsAppended.WithLabelValues(engine).Add(float64(count))
}

func (m *esMetrics) AppendFailed(engine string) {
	m.appendFailures.WithLabelValues(engine).Inc()
}

func (m *esMetrics) TransactionAborted(engine string) {
	m.transactionAborted.WithLabelValues(engine).Inc()
}

func (m *esMetrics) SnapshotDuration(engine string) metrics.Timer {
	return newTimer(m.snapshotDuration.WithLabelValues(engine))
}

func (m *esMetrics) SnapshotTaken(engine string, archivedEvents int) {
	m.snapshots.WithLabelValues(engine).Inc()
	m.eventsArchived.WithLabelValues(engine).Add(float64(archivedEvents))
}

func (m *esMetrics) ListenerPanicked(engine string) {
	m.listenerPanics.WithLabelValues(engine).Inc()
}

var _ es.Metrics = (*esMetrics)(nil)
