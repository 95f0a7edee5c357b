// Package kvlog stores a whole event log as one value of a kv.Store, in the
// append-friendly JSON array layout.
//
// Every append rewrites the value through kv.Modify, so concurrent appends
// on a shared store never overwrite each other. Archive writes
// "<key>.archive" before reseeding the live key, and reseeds with a
// revision-checked update: if another writer appended after the archiving
// engine loaded the log, Archive fails with es.ErrLogChanged and the live
// key keeps every record. A retried Archive does not archive records that
// are already at the end of the archive.
package kvlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aminnairi/cristaline/core/es"
	"github.com/aminnairi/cristaline/internal/jsonarray"
	"github.com/aminnairi/cristaline/ports/kv"
)

const (
	defaultKey    = "events"
	archiveSuffix = ".archive"
)

type Config struct {
	Store kv.Store     // Store holding the log. Required.
	Key   string       // Key of the live log. Defaults to "events".
	Log   *slog.Logger // Log for diagnostics (optional)
}

type Adapter struct {
	mu    sync.Mutex
	store kv.Store
	key   string
	log   *slog.Logger
}

func New(cfg Config) (*Adapter, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}

	key := cfg.Key
	if key == "" {
		key = defaultKey
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		store: cfg.Store,
		key:   key,
		log:   log.With(slog.String("adapter", "kvlog"), slog.String("key", key)),
	}, nil
}

func (a *Adapter) Key() string        { return a.key }
func (a *Adapter) ArchiveKey() string { return a.key + archiveSuffix }

func (a *Adapter) Append(ctx context.Context, records ...es.Record) error {
	if len(records) == 0 {
		return ctx.Err()
	}

	entries, err := jsonarray.Entries(records...)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := appendValue(ctx, a.store, a.key, entries); err != nil {
		return err
	}
	a.log.Debug("append", slog.Int("num_records", len(records)))
	return nil
}

func (a *Adapter) ReadAll(ctx context.Context) ([]es.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readLocked(ctx)
}

func (a *Adapter) readLocked(ctx context.Context) ([]es.Record, error) {
	records, _, err := a.read(ctx, a.key)
	return records, err
}

// read returns the records under key and the revision they were read at.
// A missing key is created empty.
func (a *Adapter) read(ctx context.Context, key string) ([]es.Record, uint64, error) {
	entry, err := a.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		rev, err := a.store.Update(ctx, key, jsonarray.Header, 0)
		if errors.Is(err, kv.ErrRevisionMismatch) {
			return a.read(ctx, key)
		}
		if err != nil {
			return nil, 0, fmt.Errorf("create %s: %w", key, err)
		}
		return nil, rev, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", key, err)
	}

	records, err := jsonarray.Decode(entry.Value)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", key, err)
	}
	return records, entry.Revision, nil
}

func (a *Adapter) Archive(ctx context.Context, covered int, snapshot es.Record) error {
	seeded, err := jsonarray.Encode(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	live, rev, err := a.read(ctx, a.key)
	if err != nil {
		return err
	}
	if len(live) != covered {
		return fmt.Errorf("%w: %d live records, snapshot covers %d", es.ErrLogChanged, len(live), covered)
	}

	archived, _, err := a.read(ctx, a.ArchiveKey())
	if err != nil {
		return err
	}
	pending := live[jsonarray.Overlap(archived, live):]
	if len(pending) > 0 {
		entries, err := jsonarray.Entries(pending...)
		if err != nil {
			return fmt.Errorf("encode archive: %w", err)
		}
		if err := appendValue(ctx, a.store, a.ArchiveKey(), entries); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}

	if _, err := a.store.Update(ctx, a.key, seeded, rev); err != nil {
		if errors.Is(err, kv.ErrRevisionMismatch) {
			return fmt.Errorf("%w: %s was written during the snapshot", es.ErrLogChanged, a.key)
		}
		return fmt.Errorf("reseed log: %w", err)
	}

	a.log.Debug("archive", slog.Int("archived", len(pending)), slog.Int("already_archived", len(live)-len(pending)))
	return nil
}

func appendValue(ctx context.Context, store kv.Store, key string, entries []byte) error {
	return kv.Modify(ctx, store, key, func(current []byte) ([]byte, error) {
		if current == nil {
			current = jsonarray.Header
		}
		next := make([]byte, 0, len(current)+len(entries))
		next = append(next, current...)
		return append(next, entries...), nil
	})
}

var (
	_ es.Adapter  = (*Adapter)(nil)
	_ es.Archiver = (*Adapter)(nil)
)
