package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/aminnairi/cristaline/core/fifo"
)

// Reducer folds one event into a state and returns the new state. It must
// be pure, deterministic and total over the registered event set, and must
// never mutate the state it receives. Snapshot events are handled by the
// engine and never reach the reducer.
type Reducer[S any] func(state S, event Event) S

// view is one published (state, events) pair. A view is never modified
// after it has been stored.
type view[S any] struct {
	state  S
	events []Event
}

// Engine replays an event log into a state of type S and keeps both cached
// in memory. All mutating operations are serialized by a FIFO lock; reads
// never take the lock and always observe the last completed mutation.
//
// Cancellation: ctx can abandon the wait for the lock. Once the lock is
// held, the engine waits for the adapter call to return before releasing
// it, even if ctx is cancelled in the meantime; adapters decide whether
// they honour ctx during I/O.
type Engine[S any] struct {
	id      string
	name    string
	log     *slog.Logger
	metrics Metrics
	now     func() time.Time
	newID   func() string

	adapter Adapter
	codec   *Codec[S]
	reduce  Reducer[S]
	initial S

	lock   *fifo.Mutex
	bus    *Bus
	status atomic.Int32
	view   atomic.Pointer[view[S]]
}

// NewEngine creates an uninitialized engine. initial is the zero-state
// replay starts from.
//
// Snapshots store S through encoding/json, so S must survive a JSON round
// trip unchanged (exported fields only, no values JSON cannot represent)
// for TakeSnapshot to succeed.
func NewEngine[S any](
	adapter Adapter,
	registry *EventRegistry,
	initial S,
	reduce Reducer[S],
	opts ...Option,
) *Engine[S] {
	options := newEngineOptions(opts...)
	e := &Engine[S]{
		name:    options.name,
		metrics: options.metrics,
		now:     options.now,
		newID:   options.newID,
		adapter: adapter,
		codec:   NewCodec[S](registry),
		reduce:  reduce,
		initial: initial,
		lock:    fifo.New(),
	}
	e.id = e.newID()
	e.log = options.log.With(slog.String("engine", e.name), slog.String("engine_id", e.id))
	e.bus = NewBus(e.log, func(any) { e.metrics.ListenerPanicked(e.name) })
	return e
}

func (e *Engine[S]) ID() string         { return e.id }
func (e *Engine[S]) Name() string       { return e.name }
func (e *Engine[S]) Status() Status     { return Status(e.status.Load()) }
func (e *Engine[S]) Codec() *Codec[S]   { return e.codec }
func (e *Engine[S]) setStatus(s Status) { e.status.Store(int32(s)) }

// Initialize replays the whole persisted log and replaces the cached state
// and events on success. If any record fails to parse, the cache is left
// untouched, the engine becomes Corrupted and a *CorruptionError listing
// every invalid record is returned.
func (e *Engine[S]) Initialize(ctx context.Context) (err error) {
	if txFrom(ctx, e) != nil {
		return ErrNestedTransaction
	}

	tok, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	defer e.release(tok)

	defer e.metrics.InitializeDuration(e.name).ObserveDuration()

	prev := Status(e.status.Swap(int32(StatusInitializing)))
	e.log.Debug("initializing", slog.String("from", prev.String()))

	records, err := e.adapter.ReadAll(ctx)
	if err != nil {
		e.setStatus(prev)
		e.log.Error("read log failed", slog.Any("error", err))
		return err
	}

	events, err := e.codec.ParseAll(records)
	if err != nil {
		e.setStatus(StatusCorrupted)
		var ce *CorruptionError
		if errors.As(err, &ce) {
			e.metrics.CorruptionDetected(e.name, len(ce.Errors))
		}
		e.log.Error("event log corrupted", slog.Int("records", len(records)), slog.Any("error", err))
		return err
	}

	state := e.initial
	for _, ev := range events {
		state = e.fold(state, ev)
	}
	e.view.Store(&view[S]{state: state, events: events})
	e.setStatus(StatusReady)
	e.metrics.EventsReplayed(e.name, len(events))

	e.log.Info("initialized", slog.Int("events", len(events)))
	return nil
}

// State returns the state after the last completed mutation. The returned
// value is shared and must be treated as immutable.
func (e *Engine[S]) State() (S, error) {
	v, err := e.current()
	if err != nil {
		var zero S
		return zero, err
	}
	return v.state, nil
}

// Events returns the cached event history in log order. The slice is
// clipped, so appending to it never touches the engine's copy; the events
// themselves must not be mutated.
func (e *Engine[S]) Events() ([]Event, error) {
	v, err := e.current()
	if err != nil {
		return nil, err
	}
	return slices.Clip(v.events), nil
}

// SaveEvent persists ev, folds it into the cached state and notifies
// subscribers. If the adapter fails, nothing visible changes and the
// adapter error is returned as is.
//
// When ctx belongs to a transaction of this engine, ev is committed to that
// transaction instead.
func (e *Engine[S]) SaveEvent(ctx context.Context, ev Event) error {
	if tx := txFrom(ctx, e); tx != nil {
		return tx.Commit(ev)
	}

	canon, rec, err := e.prepare(ev)
	if err != nil {
		return err
	}

	stored, err := e.exclusive(ctx, func(cur *view[S]) (*view[S], error) {
		if err := e.append(ctx, rec); err != nil {
			return nil, err
		}
		return e.extend(cur, canon), nil
	})
	if err != nil {
		return err
	}
	if stored {
		e.log.Debug("event saved", canon.SlogAttr())
		e.bus.Notify()
	}
	return nil
}

// Subscribe registers l to be called once after every successful write
// that changed the log. The returned function removes l again.
func (e *Engine[S]) Subscribe(l Listener) (unsubscribe func()) {
	return e.bus.Subscribe(l)
}

// prepare validates ev, rejects the reserved snapshot type and returns the
// event exactly as a replay would decode it, together with its record.
func (e *Engine[S]) prepare(ev Event) (Event, Record, error) {
	if ev.IsSnapshot() {
		return Event{}, nil, fmt.Errorf("%w: %s", ErrReservedEventType, ev.Type)
	}
	return e.codec.canonical(ev)
}

func (e *Engine[S]) append(ctx context.Context, records ...Record) error {
	defer e.metrics.AppendDuration(e.name).ObserveDuration()
	if err := e.adapter.Append(ctx, records...); err != nil {
		e.metrics.AppendFailed(e.name)
		e.log.Error("append failed", slog.Int("records", len(records)), slog.Any("error", err))
		return err
	}
	e.metrics.EventsAppended(e.name, len(records))
	return nil
}

// exclusive runs fn under the engine lock with the engine in Mutating
// state. If fn returns a non-nil view it is published atomically.
func (e *Engine[S]) exclusive(ctx context.Context, fn func(cur *view[S]) (*view[S], error)) (stored bool, err error) {
	tok, err := e.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer e.release(tok)

	cur, err := e.current()
	if err != nil {
		return false, err
	}

	e.setStatus(StatusMutating)
	defer e.status.CompareAndSwap(int32(StatusMutating), int32(StatusReady))

	next, err := fn(cur)
	if err != nil {
		return false, err
	}
	if next == nil {
		return false, nil
	}
	e.view.Store(next)
	return true, nil
}

// extend returns a new view with events folded into cur.
//
// Appending to cur.events in place is safe because views are only ever
// derived from the latest one and readers receive clipped slices.
func (e *Engine[S]) extend(cur *view[S], events ...Event) *view[S] {
	state := cur.state
	for _, ev := range events {
		state = e.fold(state, ev)
	}
	return &view[S]{state: state, events: append(cur.events, events...)}
}

func (e *Engine[S]) fold(state S, ev Event) S {
	if ev.IsSnapshot() {
		if s, ok := ev.Data.(S); ok {
			return s
		}
	}
	return e.reduce(state, ev)
}

func (e *Engine[S]) current() (*view[S], error) {
	if e.Status() == StatusCorrupted {
		return nil, ErrCorrupted
	}
	v := e.view.Load()
	if v == nil {
		return nil, ErrNotInitialized
	}
	return v, nil
}

func (e *Engine[S]) acquire(ctx context.Context) (fifo.Token, error) {
	timer := e.metrics.LockWaitDuration(e.name)
	tok, err := e.lock.Lock(ctx)
	timer.ObserveDuration()
	return tok, err
}

func (e *Engine[S]) release(tok fifo.Token) {
	if err := e.lock.Unlock(tok); err != nil {
		e.log.Error("unlock failed", slog.Any("error", err))
	}
}
