package es

import (
	"context"
	"log/slog"
	"sync"
)

type txKey struct{}

type pendingEvent struct {
	event  Event
	record Record
}

// Tx is the capability handed to a transaction body. Events committed to it
// are buffered and only persisted once the body returns without error.
//
// The buffer belongs to one Transaction call and is never shared.
type Tx struct {
	owner   any
	mu      sync.Mutex
	closed  bool
	pending []pendingEvent
	prepare func(Event) (Event, Record, error)
}

// Commit validates ev and buffers it. Nothing is persisted until the
// transaction body returns.
func (tx *Tx) Commit(ev Event) error {
	canon, rec, err := tx.prepare(ev)
	if err != nil {
		return err
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.closed {
		return ErrTransactionClosed
	}
	tx.pending = append(tx.pending, pendingEvent{event: canon, record: rec})
	return nil
}

// Rollback discards every event buffered so far. The body may keep
// committing afterwards.
func (tx *Tx) Rollback() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.pending = nil
}

// Len returns the number of buffered events.
func (tx *Tx) Len() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return len(tx.pending)
}

// close ends the transaction and hands over whatever is buffered.
func (tx *Tx) close() []pendingEvent {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.closed = true
	pending := tx.pending
	tx.pending = nil
	return pending
}

func (tx *Tx) run(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn(ctx, tx)
}

func txFrom(ctx context.Context, owner any) *Tx {
	tx, ok := ctx.Value(txKey{}).(*Tx)
	if !ok || tx.owner != owner {
		return nil
	}
	return tx
}

// Transaction runs fn while holding the engine lock for its whole duration.
// fn commits events through tx; SaveEvent called with the ctx passed to fn
// commits to tx as well. When fn returns nil, every committed event is
// persisted with a single Append call, folded in commit order and
// subscribers are notified once. When fn returns an error or panics, a
// *TransactionError is returned and nothing is persisted. Adapter errors
// are returned as is, with the cache untouched.
//
// Only the ctx passed to fn routes saves into tx. Calling SaveEvent,
// Initialize or TakeSnapshot from fn with any other context waits for the
// lock the transaction itself holds, and never returns.
func (e *Engine[S]) Transaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	if txFrom(ctx, e) != nil {
		return ErrNestedTransaction
	}

	tx := &Tx{owner: e, prepare: e.prepare}
	txCtx := context.WithValue(ctx, txKey{}, tx)

	var committed int
	stored, err := e.exclusive(ctx, func(cur *view[S]) (*view[S], error) {
		bodyErr := tx.run(txCtx, fn)
		pending := tx.close()
		if bodyErr != nil {
			e.metrics.TransactionAborted(e.name)
			e.log.Debug("transaction aborted", slog.Int("discarded", len(pending)), slog.Any("error", bodyErr))
			return nil, &TransactionError{Err: bodyErr}
		}
		if len(pending) == 0 {
			return nil, nil
		}

		records := make([]Record, 0, len(pending))
		events := make([]Event, 0, len(pending))
		for _, p := range pending {
			records = append(records, p.record)
			events = append(events, p.event)
		}
		if err := e.append(ctx, records...); err != nil {
			return nil, err
		}
		committed = len(events)
		return e.extend(cur, events...), nil
	})
	if err != nil {
		return err
	}
	if stored {
		e.log.Debug("transaction committed", slog.Int("events", committed))
		e.bus.Notify()
	}
	return nil
}
