package es_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aminnairi/cristaline/core/es"
	"github.com/aminnairi/cristaline/core/es/estest"
)

func TestCompactor_ExplicitByDefault(t *testing.T) {
	adapter := es.NewMemoryAdapter()
	e := newCounter(t, adapter)
	c := es.NewCompactor(e)

	for i := range 10 {
		require.NoError(t, e.SaveEvent(t.Context(), estest.Add(i)))
	}
	took, err := c.MaybeCompact(t.Context())
	require.NoError(t, err)
	require.False(t, took)
	require.Empty(t, adapter.Archived())

	require.NoError(t, c.Trigger(t.Context()))
	require.Len(t, adapter.Archived(), 10)
}

func TestCompactor_Threshold(t *testing.T) {
	adapter := es.NewMemoryAdapter()
	e := newCounter(t, adapter)
	c := es.NewCompactor(e, es.WithThreshold(3))

	for i := range 2 {
		require.NoError(t, e.SaveEvent(t.Context(), estest.Add(i)))
	}
	took, err := c.MaybeCompact(t.Context())
	require.NoError(t, err)
	require.False(t, took)

	require.NoError(t, e.SaveEvent(t.Context(), estest.Add(2)))
	took, err = c.MaybeCompact(t.Context())
	require.NoError(t, err)
	require.True(t, took)

	n, err := e.EventsSinceSnapshot()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestCompactor_RunThreshold(t *testing.T) {
	adapter := es.NewMemoryAdapter()
	e := newCounter(t, adapter)
	c := es.NewCompactor(e, es.WithThreshold(2))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Run subscribes asynchronously; keep writing until a snapshot shows up
	require.Eventually(t, func() bool {
		if err := e.SaveEvent(ctx, estest.Add(1)); err != nil {
			return false
		}
		events, err := e.Events()
		return err == nil && events[0].IsSnapshot()
	}, 2*time.Second, 10*time.Millisecond)
	require.NotEmpty(t, adapter.Archived())
}

func TestCompactor_RunInterval(t *testing.T) {
	adapter := es.NewMemoryAdapter()
	e := newCounter(t, adapter)
	c := es.NewCompactor(e, es.WithInterval(10*time.Millisecond))

	require.NoError(t, e.SaveEvent(t.Context(), estest.Add(1)))

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(adapter.Archived()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// nothing new was written, so no further snapshots follow
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done
	require.Len(t, adapter.Archived(), 1)
	require.Equal(t, 1, es.MustState(t, e).Value)
}
