package estest

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aminnairi/cristaline/core/es"
)

// Factory opens a fresh, empty adapter for one subtest. reopen returns a
// new handle on the same underlying storage, as a restarted process would
// see it.
type Factory func(t *testing.T) (adapter es.Adapter, reopen func() es.Adapter)

func record(i int) es.Record {
	return es.Record(fmt.Sprintf(`{"n":%d,"s":"r%d"}`, i, i))
}

func requireRecords(t *testing.T, expected, actual []es.Record) {
	t.Helper()
	require.Len(t, actual, len(expected))
	for i := range expected {
		require.JSONEq(t, string(expected[i]), string(actual[i]), "record %d", i)
	}
}

// RunAdapterSuite checks the Adapter contract, and the Archiver contract if
// the adapter implements it.
func RunAdapterSuite(t *testing.T, open Factory) {
	t.Run("empty log", func(t *testing.T) {
		a, _ := open(t)
		records, err := a.ReadAll(t.Context())
		require.NoError(t, err)
		require.Empty(t, records)
	})

	t.Run("append preserves order", func(t *testing.T) {
		a, reopen := open(t)
		require.NoError(t, a.Append(t.Context(), record(1)))
		require.NoError(t, a.Append(t.Context(), record(2), record(3)))
		require.NoError(t, a.Append(t.Context(), record(4)))

		expected := []es.Record{record(1), record(2), record(3), record(4)}
		records, err := a.ReadAll(t.Context())
		require.NoError(t, err)
		requireRecords(t, expected, records)

		records, err = reopen().ReadAll(t.Context())
		require.NoError(t, err)
		requireRecords(t, expected, records)
	})

	t.Run("append nothing", func(t *testing.T) {
		a, _ := open(t)
		require.NoError(t, a.Append(t.Context()))
		records, err := a.ReadAll(t.Context())
		require.NoError(t, err)
		require.Empty(t, records)
	})

	t.Run("archive reseeds the live log", func(t *testing.T) {
		a, reopen := open(t)
		archiver, ok := a.(es.Archiver)
		if !ok {
			t.Skip("adapter does not support snapshots")
		}

		require.NoError(t, a.Append(t.Context(), record(1), record(2)))
		snapshot := es.Record(`{"snapshot":true}`)
		require.NoError(t, archiver.Archive(t.Context(), 2, snapshot))

		records, err := a.ReadAll(t.Context())
		require.NoError(t, err)
		requireRecords(t, []es.Record{snapshot}, records)

		require.NoError(t, a.Append(t.Context(), record(3)))
		records, err = reopen().ReadAll(t.Context())
		require.NoError(t, err)
		requireRecords(t, []es.Record{snapshot, record(3)}, records)
	})

	t.Run("archive refuses a changed log", func(t *testing.T) {
		a, reopen := open(t)
		archiver, ok := a.(es.Archiver)
		if !ok {
			t.Skip("adapter does not support snapshots")
		}

		require.NoError(t, a.Append(t.Context(), record(1), record(2)))
		err := archiver.Archive(t.Context(), 1, es.Record(`{"snapshot":true}`))
		require.ErrorIs(t, err, es.ErrLogChanged)

		records, err := reopen().ReadAll(t.Context())
		require.NoError(t, err)
		requireRecords(t, []es.Record{record(1), record(2)}, records)
	})

	t.Run("engines sharing a log", func(t *testing.T) {
		a, reopen := open(t)
		if _, ok := a.(es.Archiver); !ok {
			t.Skip("adapter does not support snapshots")
		}
		first := NewEngine(a)
		require.NoError(t, first.Initialize(t.Context()))
		second := NewEngine(reopen())
		require.NoError(t, second.Initialize(t.Context()))

		require.NoError(t, first.SaveEvent(t.Context(), Add(1)))
		require.NoError(t, second.SaveEvent(t.Context(), Add(100)))
		require.ErrorIs(t, first.TakeSnapshot(t.Context()), es.ErrLogChanged)

		replayed := NewEngine(reopen())
		require.NoError(t, replayed.Initialize(t.Context()))
		require.Equal(t, 101, es.MustState(t, replayed).Value)

		require.NoError(t, first.Initialize(t.Context()))
		require.NoError(t, first.TakeSnapshot(t.Context()))
		require.NoError(t, replayed.Initialize(t.Context()))
		require.Equal(t, 101, es.MustState(t, replayed).Value)
	})

	t.Run("engine round trip", func(t *testing.T) {
		a, reopen := open(t)
		e := NewEngine(a)
		require.NoError(t, e.Initialize(t.Context()))

		require.NoError(t, e.SaveEvent(t.Context(), Add(3)))
		require.NoError(t, e.SaveEvent(t.Context(), Add(4)))
		if _, ok := a.(es.Archiver); ok {
			require.NoError(t, e.TakeSnapshot(t.Context()))
		}
		require.NoError(t, e.SaveEvent(t.Context(), Add(5)))

		expected := es.MustState(t, e)
		require.Equal(t, Counter{Value: 12, Adds: 3}, expected)

		restarted := NewEngine(reopen())
		require.NoError(t, restarted.Initialize(t.Context()))
		require.Equal(t, expected, es.MustState(t, restarted))
		require.Equal(t, es.MustEvents(t, e), es.MustEvents(t, restarted))
	})
}
