package es

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotInitialized        = errors.New("engine is not initialized")
	ErrCorrupted             = errors.New("engine is corrupted, re-initialize against a repaired log")
	ErrInvalidEvent          = errors.New("invalid event")
	ErrUnknownEventType      = errors.New("unknown event type")
	ErrReservedEventType     = errors.New("reserved event type")
	ErrSnapshotUnsupported   = errors.New("adapter does not support snapshots")
	ErrSnapshotInTransaction = errors.New("snapshot cannot be taken inside a transaction")
	ErrTransactionClosed     = errors.New("transaction is closed")
	ErrNestedTransaction     = errors.New("transaction already in progress")
	ErrDuplicateEventType    = errors.New("event type already registered")
	ErrLogChanged            = errors.New("log changed since it was loaded")
	ErrSnapshotNotReplayable = errors.New("state does not survive a snapshot round trip")
)

// ParseError describes one persisted record that could not be decoded.
type ParseError struct {
	// Index is the position of the record in the log, starting at 0.
	Index int
	// Raw is the offending record as it was read from the adapter.
	Raw Record
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Index, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// CorruptionError aggregates every ParseError found while loading a log.
type CorruptionError struct {
	Errors []*ParseError
}

func (e *CorruptionError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, pe := range e.Errors {
		msgs = append(msgs, pe.Error())
	}
	return fmt.Sprintf("event log corrupted, %d invalid records: %s", len(e.Errors), strings.Join(msgs, "; "))
}

func (e *CorruptionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errors))
	for _, pe := range e.Errors {
		errs = append(errs, pe)
	}
	return errs
}

// TransactionError wraps a fault raised by a transaction body. When it is
// returned, none of the events committed by the body were persisted.
type TransactionError struct {
	Err error
}

func (e *TransactionError) Error() string { return "transaction aborted: " + e.Err.Error() }
func (e *TransactionError) Unwrap() error { return e.Err }

// PanicError carries a value recovered from a panicking transaction body.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
