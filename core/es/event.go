package es

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// SnapshotEventType is the reserved discriminator of snapshot events.
// Application event sets must not use it.
const SnapshotEventType = "$snapshot"

// Record is the serialized form of an event as handed to and read from an
// Adapter. Adapters must treat it as opaque.
type Record = json.RawMessage

// Event is an immutable fact. Data holds the typed payload registered for
// (Type, Version); it must not be mutated once the event is saved.
type Event struct {
	Type    string
	Version int
	ID      string
	Date    time.Time
	Data    any
}

// NewEvent creates an event with a fresh identifier and the current time.
func NewEvent(eventType string, version int, data any) Event {
	return Event{
		Type:    eventType,
		Version: version,
		ID:      gonanoid.Must(),
		Date:    time.Now(),
		Data:    data,
	}
}

func (e Event) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("%w: event type is empty", ErrInvalidEvent)
	}
	if e.Version < 1 {
		return fmt.Errorf("%w: event %s has version %d", ErrInvalidEvent, e.Type, e.Version)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: event %s has no identifier", ErrInvalidEvent, e.Type)
	}
	if e.Date.IsZero() {
		return fmt.Errorf("%w: event %s has no date", ErrInvalidEvent, e.Type)
	}
	return nil
}

// IsSnapshot reports whether e is a synthetic snapshot event.
func (e Event) IsSnapshot() bool { return e.Type == SnapshotEventType }

func (e Event) SlogAttr() slog.Attr {
	return slog.Group(
		"event",
		slog.String("type", e.Type),
		slog.Int("version", e.Version),
		slog.String("id", e.ID),
	)
}

// wireEvent is the persisted JSON shape of an Event.
type wireEvent struct {
	Type    string          `json:"type"`
	Version int             `json:"version"`
	ID      string          `json:"identifier"`
	Date    time.Time       `json:"date"`
	Data    json.RawMessage `json:"data"`
}
