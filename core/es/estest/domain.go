// Package estest holds a small test domain and a conformance suite every
// es.Adapter implementation runs.
package estest

import (
	"github.com/aminnairi/cristaline/core/es"
)

const (
	AddedType = "counter-added"
	ResetType = "counter-reset"
)

type (
	// Counter is the test state. It is a plain value, so reducers never
	// share memory with earlier states.
	Counter struct {
		Value  int `json:"value"`
		Adds   int `json:"adds"`
		Resets int `json:"resets"`
	}

	Added struct {
		N int `json:"n"`
	}

	Reset struct{}
)

// Registry returns a registry with the counter events.
func Registry() *es.EventRegistry {
	r := es.NewRegistry()
	if err := es.Register[Added](r, AddedType, 1); err != nil {
		panic(err)
	}
	if err := es.Register[Reset](r, ResetType, 1); err != nil {
		panic(err)
	}
	return r
}

func Reduce(state Counter, ev es.Event) Counter {
	switch e := ev.Data.(type) {
	case Added:
		state.Value += e.N
		state.Adds++
	case Reset:
		state.Value = 0
		state.Resets++
	}
	return state
}

func Add(n int) es.Event { return es.NewEvent(AddedType, 1, Added{N: n}) }
func Clear() es.Event    { return es.NewEvent(ResetType, 1, Reset{}) }

// NewEngine creates an uninitialized counter engine over adapter.
func NewEngine(adapter es.Adapter, opts ...es.Option) *es.Engine[Counter] {
	return es.NewEngine(adapter, Registry(), Counter{}, Reduce, opts...)
}
