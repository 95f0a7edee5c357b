// Package es provides an embeddable event-sourced state engine.
//
// # Overview
//
// Application state is never stored directly. The engine persists an
// append-only sequence of immutable events through an [Adapter] and derives
// state by folding them through a pure [Reducer]. Both the state and the
// event history are cached in memory; reads never block.
//
// # Events
//
// Every event shape an application accepts must be registered with an
// [EventRegistry] under a (type, version) pair. New shapes are added as new
// versions, history is never rewritten:
//
//	registry := es.NewRegistry()
//	es.Register[TodoAdded](registry, "todo-added", 1)
//	es.Register[TodoCompleted](registry, "todo-completed", 1)
//
// # Engine
//
//	engine := es.NewEngine(adapter, registry, State{}, Reduce)
//	if err := engine.Initialize(ctx); err != nil {
//	    // *es.CorruptionError lists every record that failed to parse
//	}
//	err := engine.SaveEvent(ctx, es.NewEvent("todo-added", 1, TodoAdded{Title: "milk"}))
//	state, err := engine.State()
//
// All writes are serialized by a FIFO lock (package fifo): a write issued
// later is never persisted before one issued earlier.
//
// # Transactions
//
// [Engine.Transaction] holds the lock for the whole body. Events committed
// through the [Tx] are buffered and persisted together when the body returns
// nil, or discarded when it fails:
//
//	err := engine.Transaction(ctx, func(ctx context.Context, tx *es.Tx) error {
//	    if err := tx.Commit(a); err != nil {
//	        return err
//	    }
//	    return tx.Commit(b)
//	})
//
// # Snapshots
//
// [Engine.TakeSnapshot] folds the current state into one synthetic event
// (type [SnapshotEventType]) and asks an [Archiver] adapter to move the
// history aside. Replay cost is then bounded by the events written since.
// A [Compactor] can take snapshots on a threshold or interval policy.
package es
