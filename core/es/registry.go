package es

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aminnairi/cristaline/internal/reflector"
)

type (
	eventKey struct {
		t string
		v int
	}

	eventShape struct {
		decode  func(data json.RawMessage) (any, error)
		accepts func(v any) bool
	}
)

// EventRegistry is the closed set of event shapes an application accepts.
// Each (type, version) pair maps to exactly one Go payload type.
type EventRegistry struct {
	mu     sync.RWMutex
	shapes map[eventKey]eventShape
}

func NewRegistry() *EventRegistry {
	return &EventRegistry{shapes: map[eventKey]eventShape{}}
}

// Register adds the payload type T for (eventType, version). Payloads are
// decoded into values of T, and saving accepts either T or *T.
func Register[T any](r *EventRegistry, eventType string, version int) error {
	if eventType == SnapshotEventType {
		return fmt.Errorf("%w: %s", ErrReservedEventType, eventType)
	}
	if eventType == "" || version < 1 {
		return fmt.Errorf("%w: cannot register %q version %d", ErrInvalidEvent, eventType, version)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := eventKey{eventType, version}
	if _, ok := r.shapes[key]; ok {
		return fmt.Errorf("%w: %s v%d", ErrDuplicateEventType, eventType, version)
	}
	r.shapes[key] = eventShape{
		decode:  decodeAs[T],
		accepts: accepts[T],
	}
	return nil
}

// RegisterEvent registers T under the name returned by its EventType method
// or, if it has none, under its fully qualified Go type name.
func RegisterEvent[T any](r *EventRegistry, version int) error {
	return Register[T](r, EventTypeFor[T](), version)
}

// EventTypeFor returns the event type name RegisterEvent uses for T.
func EventTypeFor[T any]() string {
	return reflector.NameFor[T]()
}

// Has reports whether (eventType, version) is registered.
func (r *EventRegistry) Has(eventType string, version int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.shapes[eventKey{eventType, version}]
	return ok
}

// Decode turns a raw payload into the value registered for (eventType, version).
func (r *EventRegistry) Decode(eventType string, version int, data json.RawMessage) (any, error) {
	shape, ok := r.lookup(eventType, version)
	if !ok {
		return nil, fmt.Errorf("%w: %s v%d", ErrUnknownEventType, eventType, version)
	}
	return shape.decode(data)
}

func (r *EventRegistry) lookup(eventType string, version int) (eventShape, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	shape, ok := r.shapes[eventKey{eventType, version}]
	return shape, ok
}

func decodeAs[T any](data json.RawMessage) (any, error) {
	var v T
	if isNull(data) {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func accepts[T any](v any) bool {
	if _, ok := v.(T); ok {
		return true
	}
	_, ok := v.(*T)
	return ok
}

func isNull(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
