package es

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
)

// TakeSnapshot folds the current state into a single snapshot event and
// asks the adapter to archive the live log and reseed it with that event.
// Afterwards replay only reads the snapshot plus whatever is appended
// later. Observable state does not change.
//
// The snapshot holds the engine lock like any write, so it never straddles
// a transaction. It fails with ErrSnapshotUnsupported if the adapter is not
// an Archiver, with ErrSnapshotNotReplayable if the state decoded from the
// snapshot record differs from the cached one, and with ErrLogChanged if
// another writer appended to the log since this engine loaded it. In every
// failure case the log and the cache are left as they were.
func (e *Engine[S]) TakeSnapshot(ctx context.Context) error {
	if txFrom(ctx, e) != nil {
		return ErrSnapshotInTransaction
	}
	archiver, ok := e.adapter.(Archiver)
	if !ok {
		return ErrSnapshotUnsupported
	}

	var archived int
	_, err := e.exclusive(ctx, func(cur *view[S]) (*view[S], error) {
		defer e.metrics.SnapshotDuration(e.name).ObserveDuration()

		snap, rec, err := e.codec.canonical(Event{
			Type:    SnapshotEventType,
			Version: 1,
			ID:      e.newID(),
			Date:    e.now(),
			Data:    cur.state,
		})
		if err != nil {
			return nil, err
		}
		state, _ := snap.Data.(S)
		if !reflect.DeepEqual(cur.state, state) {
			return nil, fmt.Errorf("%w: %T", ErrSnapshotNotReplayable, state)
		}

		if err := archiver.Archive(ctx, len(cur.events), rec); err != nil {
			e.log.Error("archive failed", slog.Any("error", err))
			return nil, err
		}

		archived = len(cur.events)
		return &view[S]{state: state, events: []Event{snap}}, nil
	})
	if err != nil {
		return err
	}

	e.metrics.SnapshotTaken(e.name, archived)
	e.log.Info("snapshot taken", slog.Int("archived_events", archived))
	return nil
}

// EventsSinceSnapshot returns how many cached events follow the most recent
// snapshot, or the whole history length if there is none.
func (e *Engine[S]) EventsSinceSnapshot() (int, error) {
	v, err := e.current()
	if err != nil {
		return 0, err
	}
	for i := len(v.events) - 1; i >= 0; i-- {
		if v.events[i].IsSnapshot() {
			return len(v.events) - 1 - i, nil
		}
	}
	return len(v.events), nil
}
