package es

import "log/slog"

// Status is the lifecycle state of an Engine.
//
//	Uninitialized → Initializing → Ready ↔ Mutating
//	Initializing → Corrupted (unparseable records)
//
// A Corrupted engine rejects reads and writes until Initialize succeeds
// against a repaired log.
type Status int32

const (
	StatusUninitialized Status = iota
	StatusInitializing
	StatusReady
	StatusMutating
	StatusCorrupted
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusInitializing:
		return "initializing"
	case StatusReady:
		return "ready"
	case StatusMutating:
		return "mutating"
	case StatusCorrupted:
		return "corrupted"
	default:
		return "unknown"
	}
}

func (s Status) SlogAttr() slog.Attr { return slog.String("status", s.String()) }
