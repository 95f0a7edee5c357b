package es

import "github.com/aminnairi/cristaline/core/metrics"

// Metrics defines the instrumentation points of an engine. Every method
// receives the engine name so one implementation can serve many engines;
// implementations must be thread-safe.
type Metrics interface {
	// Lock
	LockWaitDuration(engine string) metrics.Timer

	// Replay
	InitializeDuration(engine string) metrics.Timer
	EventsReplayed(engine string, count int)
	CorruptionDetected(engine string, invalidRecords int)

	// Writes
	AppendDuration(engine string) metrics.Timer
	EventsAppended(engine string, count int)
	AppendFailed(engine string)
	TransactionAborted(engine string)

	// Snapshots
	SnapshotDuration(engine string) metrics.Timer
	SnapshotTaken(engine string, archivedEvents int)

	// Notification
	ListenerPanicked(engine string)
}

// nopMetrics is a no-op implementation of Metrics.
type nopMetrics struct{}

func (nopMetrics) LockWaitDuration(string) metrics.Timer { return metrics.NopTimer() }

func (nopMetrics) InitializeDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) EventsReplayed(string, int)              {}
func (nopMetrics) CorruptionDetected(string, int)          {}

func (nopMetrics) AppendDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) EventsAppended(string, int)          {}
func (nopMetrics) AppendFailed(string)                 {}
func (nopMetrics) TransactionAborted(string)           {}

func (nopMetrics) SnapshotDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) SnapshotTaken(string, int)             {}

func (nopMetrics) ListenerPanicked(string) {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
