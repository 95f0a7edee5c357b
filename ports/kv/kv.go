// Package kv is the port for key-value storage backends. Values are opaque
// bytes; every write bumps a per-key revision that callers can use for
// optimistic concurrency.
package kv

import (
	"context"
	"errors"
)

var (
	ErrNotFound         = errors.New("key not found")
	ErrRevisionMismatch = errors.New("revision mismatch")
)

type Entry struct {
	Value    []byte
	Revision uint64
}

type Store interface {
	// Get returns ErrNotFound if key has no value.
	Get(ctx context.Context, key string) (Entry, error)
	// Put stores value unconditionally and returns the new revision.
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	// Update stores value only if the current revision of key is revision.
	// Revision 0 means the key must not exist yet. It returns
	// ErrRevisionMismatch otherwise.
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
	Delete(ctx context.Context, key string) error
}

// Modify applies fn to the current value of key and writes the result with
// Update, retrying when another writer got in between. fn receives nil if
// the key does not exist.
func Modify(ctx context.Context, store Store, key string, fn func(current []byte) ([]byte, error)) error {
	for {
		var (
			current  []byte
			revision uint64
		)
		entry, err := store.Get(ctx, key)
		switch {
		case err == nil:
			current, revision = entry.Value, entry.Revision
		case errors.Is(err, ErrNotFound):
		default:
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = store.Update(ctx, key, next, revision)
		if errors.Is(err, ErrRevisionMismatch) {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		return err
	}
}
