package kvlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/aminnairi/cristaline/core/es"
	"github.com/aminnairi/cristaline/core/es/estest"
	"github.com/aminnairi/cristaline/ports/kv"
)

func newTestAdapter(t *testing.T, store kv.Store) *Adapter {
	t.Helper()
	a, err := New(Config{Store: store, Key: "todo"})
	require.NoError(t, err)
	return a
}

func TestKvLog_Conformance(t *testing.T) {
	estest.RunAdapterSuite(t, func(t *testing.T) (es.Adapter, func() es.Adapter) {
		store := kv.NewMemStore()
		return newTestAdapter(t, store), func() es.Adapter { return newTestAdapter(t, store) }
	})
}

func TestKvLog_RequiresStore(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestKvLog_Layout(t *testing.T) {
	store := kv.NewMemStore()
	a := newTestAdapter(t, store)

	_, err := a.ReadAll(t.Context())
	require.NoError(t, err)
	entry, err := store.Get(t.Context(), "todo")
	require.NoError(t, err)
	require.Equal(t, "[\n", string(entry.Value))

	require.NoError(t, a.Append(t.Context(), es.Record(`{"n":1}`)))
	require.NoError(t, a.Archive(t.Context(), 1, es.Record(`{"s":1}`)))

	entry, err = store.Get(t.Context(), "todo")
	require.NoError(t, err)
	require.Equal(t, "[\n{\"s\":1},\n", string(entry.Value))

	entry, err = store.Get(t.Context(), a.ArchiveKey())
	require.NoError(t, err)
	require.Equal(t, "[\n{\"n\":1},\n", string(entry.Value))
}

func TestKvLog_SharedStore(t *testing.T) {
	store := kv.NewMemStore()
	a := newTestAdapter(t, store)
	b := newTestAdapter(t, store)

	var g errgroup.Group
	for range 10 {
		g.Go(func() error { return a.Append(context.Background(), es.Record(`{"from":"a"}`)) })
		g.Go(func() error { return b.Append(context.Background(), es.Record(`{"from":"b"}`)) })
	}
	require.NoError(t, g.Wait())

	records, err := a.ReadAll(t.Context())
	require.NoError(t, err)
	require.Len(t, records, 20)
}

func TestKvLog_ArchiveRetriedAfterCrash(t *testing.T) {
	store := kv.NewMemStore()
	a := newTestAdapter(t, store)
	require.NoError(t, a.Append(t.Context(), es.Record(`{"n":1}`), es.Record(`{"n":2}`)))

	// the archive write landed but the live key was never reseeded
	_, err := store.Put(t.Context(), a.ArchiveKey(), []byte("[\n{\"n\":1},\n{\"n\":2},\n"))
	require.NoError(t, err)

	require.NoError(t, a.Archive(t.Context(), 2, es.Record(`{"s":1}`)))

	entry, err := store.Get(t.Context(), a.ArchiveKey())
	require.NoError(t, err)
	require.Equal(t, "[\n{\"n\":1},\n{\"n\":2},\n", string(entry.Value))
}

// interleavingStore appends to the live log the first time another key is
// written, as a second process would in the middle of a snapshot.
type interleavingStore struct {
	kv.Store
	t    *testing.T
	live string
	done bool
}

func (s *interleavingStore) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	rev, err := s.Store.Update(ctx, key, value, revision)
	if err == nil && key != s.live && !s.done {
		s.done = true
		other := newTestAdapter(s.t, s.Store)
		require.NoError(s.t, other.Append(ctx, es.Record(`{"from":"other"}`)))
	}
	return rev, err
}

func TestKvLog_ArchiveLosesNoConcurrentAppend(t *testing.T) {
	mem := kv.NewMemStore()
	store := &interleavingStore{Store: mem, t: t, live: "todo"}
	a := newTestAdapter(t, store)
	require.NoError(t, a.Append(t.Context(), es.Record(`{"n":1}`)))

	require.ErrorIs(t, a.Archive(t.Context(), 1, es.Record(`{"s":1}`)), es.ErrLogChanged)

	records, err := newTestAdapter(t, mem).ReadAll(t.Context())
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.JSONEq(t, `{"from":"other"}`, string(records[1]))

	// the retry does not archive {"n":1} twice
	require.NoError(t, a.Archive(t.Context(), 2, es.Record(`{"s":2}`)))
	entry, err := mem.Get(t.Context(), a.ArchiveKey())
	require.NoError(t, err)
	require.Equal(t, "[\n{\"n\":1},\n{\"from\":\"other\"},\n", string(entry.Value))
}
