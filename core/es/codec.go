package es

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Codec converts between Events and persisted Records for a state type S.
// Snapshot records carry an S as payload; every other record must match a
// shape in the registry.
type Codec[S any] struct {
	registry *EventRegistry
}

func NewCodec[S any](registry *EventRegistry) *Codec[S] {
	return &Codec[S]{registry: registry}
}

// Encode validates ev and serializes it. Events whose type is not
// registered, or whose payload is not the registered Go type, are refused
// so that nothing is written that could not be read back.
func (c *Codec[S]) Encode(ev Event) (Record, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	if ev.IsSnapshot() {
		if !accepts[S](ev.Data) {
			return nil, fmt.Errorf("%w: snapshot payload is %T", ErrInvalidEvent, ev.Data)
		}
	} else {
		shape, ok := c.registry.lookup(ev.Type, ev.Version)
		if !ok {
			return nil, fmt.Errorf("%w: %s v%d", ErrUnknownEventType, ev.Type, ev.Version)
		}
		if !shape.accepts(ev.Data) {
			return nil, fmt.Errorf("%w: %s v%d does not accept payload %T", ErrInvalidEvent, ev.Type, ev.Version, ev.Data)
		}
	}

	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", ev.Type, err)
	}
	return json.Marshal(wireEvent{
		Type:    ev.Type,
		Version: ev.Version,
		ID:      ev.ID,
		Date:    ev.Date,
		Data:    data,
	})
}

// Parse decodes the record found at position index of a log. It never
// panics: every failure is reported as a *ParseError holding raw.
func (c *Codec[S]) Parse(index int, raw Record) (ev Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			ev, err = Event{}, &ParseError{Index: index, Raw: raw, Err: fmt.Errorf("decoder panic: %v", r)}
		}
	}()

	fail := func(err error) (Event, error) {
		return Event{}, &ParseError{Index: index, Raw: raw, Err: err}
	}

	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrInvalidEvent, err))
	}

	ev = Event{Type: w.Type, Version: w.Version, ID: w.ID, Date: w.Date}
	if err := ev.Validate(); err != nil {
		return fail(err)
	}

	if ev.IsSnapshot() {
		var state S
		if !isNull(w.Data) {
			if err := json.Unmarshal(w.Data, &state); err != nil {
				return fail(fmt.Errorf("%w: snapshot state: %v", ErrInvalidEvent, err))
			}
		}
		ev.Data = state
		return ev, nil
	}

	data, err := c.registry.Decode(ev.Type, ev.Version, w.Data)
	if err != nil {
		if !errors.Is(err, ErrUnknownEventType) {
			err = fmt.Errorf("%w: %s v%d payload: %v", ErrInvalidEvent, ev.Type, ev.Version, err)
		}
		return fail(err)
	}
	ev.Data = data
	return ev, nil
}

// ParseAll decodes a whole log. It scans every record and returns a
// *CorruptionError listing all failures, never just the first one.
func (c *Codec[S]) ParseAll(raws []Record) ([]Event, error) {
	var (
		events = make([]Event, 0, len(raws))
		failed []*ParseError
	)
	for i, raw := range raws {
		ev, err := c.Parse(i, raw)
		if err != nil {
			var pe *ParseError
			if !errors.As(err, &pe) {
				pe = &ParseError{Index: i, Raw: raw, Err: err}
			}
			failed = append(failed, pe)
			continue
		}
		events = append(events, ev)
	}
	if len(failed) > 0 {
		return nil, &CorruptionError{Errors: failed}
	}
	return events, nil
}

// canonical round-trips ev through its wire form so that the cached copy is
// exactly what a later replay would produce.
func (c *Codec[S]) canonical(ev Event) (Event, Record, error) {
	rec, err := c.Encode(ev)
	if err != nil {
		return Event{}, nil, err
	}
	out, err := c.Parse(0, rec)
	if err != nil {
		return Event{}, nil, err
	}
	return out, rec, nil
}
