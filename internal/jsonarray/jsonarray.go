// Package jsonarray implements the append-friendly JSON array layout used by
// the file and key-value adapters.
//
// A store starts as "[\n". Every record is appended on its own line as
// "<json>,\n". To read, the dangling comma is removed and "]" is appended,
// which yields a regular JSON array.
package jsonarray

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Header is the content of an empty store.
var Header = []byte("[\n")

var ErrMalformed = errors.New("malformed append-friendly array")

// Entries renders records as appendable lines. Records are compacted first
// so that each one occupies exactly one line.
func Entries(records ...json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	for i, r := range records {
		if err := json.Compact(&buf, r); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		buf.WriteString(",\n")
	}
	return buf.Bytes(), nil
}

// Encode renders a complete store holding records.
func Encode(records ...json.RawMessage) ([]byte, error) {
	entries, err := Entries(records...)
	if err != nil {
		return nil, err
	}
	return append(bytes.Clone(Header), entries...), nil
}

// Decode reads a store. Empty input is an empty store.
//
// If the closed array does not parse, Decode falls back to reading one
// record per line and returns the raw lines, so that a single damaged
// record is reported by the caller's decoder instead of hiding the whole
// log.
func Decode(data []byte) ([]json.RawMessage, error) {
	body := bytes.TrimSpace(data)
	if len(body) == 0 {
		return nil, nil
	}
	if body[0] != '[' {
		return nil, fmt.Errorf("%w: missing opening bracket", ErrMalformed)
	}

	closed := bytes.TrimSuffix(body, []byte(","))
	closed = append(bytes.Clone(closed), ']')

	var records []json.RawMessage
	if err := json.Unmarshal(closed, &records); err == nil {
		return records, nil
	}
	return lines(body[1:]), nil
}

// Overlap returns the largest n such that the last n records of tail are
// byte for byte the first n records of head. Both sides must come from
// Decode or Entries, which keep records compacted.
func Overlap(tail, head []json.RawMessage) int {
	for n := min(len(tail), len(head)); n > 0; n-- {
		if equal(tail[len(tail)-n:], head[:n]) {
			return n
		}
	}
	return 0
}

func equal(a, b []json.RawMessage) bool {
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func lines(body []byte) []json.RawMessage {
	var out []json.RawMessage
	for line := range bytes.Lines(body) {
		line = bytes.TrimSpace(line)
		line = bytes.TrimSuffix(line, []byte(","))
		if len(line) == 0 {
			continue
		}
		out = append(out, json.RawMessage(bytes.Clone(line)))
	}
	return out
}
