package es

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// === Helpers ===

// NewTestEngine creates and initializes an engine over adapter, failing the
// test if initialization fails.
func NewTestEngine[S any](
	t testing.TB,
	adapter Adapter,
	registry *EventRegistry,
	initial S,
	reduce Reducer[S],
	opts ...Option,
) *Engine[S] {
	t.Helper()
	e := NewEngine(adapter, registry, initial, reduce, opts...)
	require.NoError(t, e.Initialize(t.Context()))
	return e
}

// MustState returns the engine state, failing the test on error.
func MustState[S any](t testing.TB, e *Engine[S]) S {
	t.Helper()
	s, err := e.State()
	require.NoError(t, err)
	return s
}

// MustEvents returns the cached events, failing the test on error.
func MustEvents[S any](t testing.TB, e *Engine[S]) []Event {
	t.Helper()
	events, err := e.Events()
	require.NoError(t, err)
	return events
}
