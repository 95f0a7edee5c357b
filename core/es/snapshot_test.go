package es_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aminnairi/cristaline/core/es"
	"github.com/aminnairi/cristaline/core/es/estest"
)

type noArchiveAdapter struct {
	es.Adapter
}

type failingArchiver struct {
	*es.MemoryAdapter
	err error
}

func (f failingArchiver) Archive(context.Context, int, es.Record) error { return f.err }

func TestSnapshot_Equivalence(t *testing.T) {
	adapter := es.NewMemoryAdapter()
	e := newCounter(t, adapter)

	require.NoError(t, e.SaveEvent(t.Context(), estest.Add(2)))
	require.NoError(t, e.SaveEvent(t.Context(), estest.Clear()))
	require.NoError(t, e.SaveEvent(t.Context(), estest.Add(5)))
	before := es.MustState(t, e)

	notified := 0
	e.Subscribe(func() { notified++ })

	require.NoError(t, e.TakeSnapshot(t.Context()))
	require.Equal(t, before, es.MustState(t, e))
	require.Zero(t, notified)

	events := es.MustEvents(t, e)
	require.Len(t, events, 1)
	require.True(t, events[0].IsSnapshot())
	require.Equal(t, before, events[0].Data)
	require.Len(t, adapter.Archived(), 3)

	// replay from the snapshot gives the same state
	replayed := newCounter(t, adapter)
	require.Equal(t, before, es.MustState(t, replayed))

	// and keeps folding later events on top of it
	require.NoError(t, e.SaveEvent(t.Context(), estest.Add(1)))
	n, err := e.EventsSinceSnapshot()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, replayed.Initialize(t.Context()))
	require.Equal(t, es.MustState(t, e), es.MustState(t, replayed))
	require.Equal(t, estest.Counter{Value: 6, Adds: 3, Resets: 1}, es.MustState(t, replayed))
}

func TestSnapshot_Twice(t *testing.T) {
	adapter := es.NewMemoryAdapter()
	e := newCounter(t, adapter)

	require.NoError(t, e.SaveEvent(t.Context(), estest.Add(1)))
	require.NoError(t, e.TakeSnapshot(t.Context()))
	require.NoError(t, e.SaveEvent(t.Context(), estest.Add(2)))
	require.NoError(t, e.TakeSnapshot(t.Context()))

	require.Len(t, es.MustEvents(t, e), 1)
	// the first snapshot is archived together with the event after it
	require.Len(t, adapter.Archived(), 3)
	require.Equal(t, 3, es.MustState(t, newCounter(t, adapter)).Value)
}

func TestSnapshot_EmptyLog(t *testing.T) {
	adapter := es.NewMemoryAdapter()
	e := newCounter(t, adapter)

	require.NoError(t, e.TakeSnapshot(t.Context()))
	require.Equal(t, estest.Counter{}, es.MustState(t, newCounter(t, adapter)))
}

func TestSnapshot_Unsupported(t *testing.T) {
	e := newCounter(t, noArchiveAdapter{Adapter: es.NewMemoryAdapter()})
	require.ErrorIs(t, e.TakeSnapshot(t.Context()), es.ErrSnapshotUnsupported)
}

func TestSnapshot_ArchiveFailure(t *testing.T) {
	boom := errors.New("read-only filesystem")
	e := newCounter(t, failingArchiver{MemoryAdapter: es.NewMemoryAdapter(), err: boom})
	require.NoError(t, e.SaveEvent(t.Context(), estest.Add(3)))

	require.ErrorIs(t, e.TakeSnapshot(t.Context()), boom)

	events := es.MustEvents(t, e)
	require.Len(t, events, 1)
	require.False(t, events[0].IsSnapshot())
	require.Equal(t, es.StatusReady, e.Status())
}

func TestSnapshot_LogChangedByAnotherEngine(t *testing.T) {
	adapter := es.NewMemoryAdapter()
	a := newCounter(t, adapter)
	b := newCounter(t, adapter)

	require.NoError(t, a.SaveEvent(t.Context(), estest.Add(1)))
	require.NoError(t, b.SaveEvent(t.Context(), estest.Add(100)))

	require.ErrorIs(t, a.TakeSnapshot(t.Context()), es.ErrLogChanged)
	require.Empty(t, adapter.Archived())
	require.Len(t, es.MustEvents(t, a), 1)

	// nothing was lost: a reload sees both writers and can compact
	require.NoError(t, a.Initialize(t.Context()))
	require.NoError(t, a.TakeSnapshot(t.Context()))
	require.Equal(t, 101, es.MustState(t, newCounter(t, adapter)).Value)
}

// tally keeps part of its state in an unexported field, which a snapshot
// cannot carry.
type tally struct {
	Total int
	seen  map[int]bool
}

func reduceTally(s tally, ev es.Event) tally {
	added, ok := ev.Data.(estest.Added)
	if !ok {
		return s
	}
	seen := make(map[int]bool, len(s.seen)+1)
	for k := range s.seen {
		seen[k] = true
	}
	seen[added.N] = true
	return tally{Total: s.Total + added.N, seen: seen}
}

func TestSnapshot_StateNotReplayable(t *testing.T) {
	adapter := es.NewMemoryAdapter()
	e := es.NewTestEngine(t, adapter, estest.Registry(), tally{}, reduceTally)

	require.NoError(t, e.SaveEvent(t.Context(), estest.Add(1)))
	require.NoError(t, e.SaveEvent(t.Context(), estest.Add(2)))
	before := es.MustState(t, e)

	require.ErrorIs(t, e.TakeSnapshot(t.Context()), es.ErrSnapshotNotReplayable)
	require.Equal(t, before, es.MustState(t, e))
	require.Len(t, es.MustEvents(t, e), 2)
	require.Empty(t, adapter.Archived())

	replayed := es.NewTestEngine(t, adapter, estest.Registry(), tally{}, reduceTally)
	require.Equal(t, before, es.MustState(t, replayed))
}

func TestEventsSinceSnapshot(t *testing.T) {
	e := newCounter(t, es.NewMemoryAdapter())

	n, err := e.EventsSinceSnapshot()
	require.NoError(t, err)
	require.Zero(t, n)

	for i := range 4 {
		require.NoError(t, e.SaveEvent(t.Context(), estest.Add(i)))
	}
	n, err = e.EventsSinceSnapshot()
	require.NoError(t, err)
	require.Equal(t, 4, n)
}
