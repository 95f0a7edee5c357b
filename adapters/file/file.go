// Package file stores an event log in a single file using the
// append-friendly JSON array layout.
//
// Appends are a single write followed by fsync. Snapshots first append the
// live records to "<path>.archive" and fsync it, then write the reseeded log
// to "<path>.tmp", fsync it and rename it over the live file. A crash at any
// point leaves either the old or the new live file in place; a leftover tmp
// file is removed by New. Records already at the end of the archive are not
// appended again when a snapshot is retried after such a crash.
//
// Appends and snapshots hold an advisory lock on "<path>.lock" on platforms
// that support flock, so processes sharing the file serialize their writes.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/aminnairi/cristaline/core/es"
	"github.com/aminnairi/cristaline/internal/jsonarray"
)

const (
	defaultPerm = 0o644

	archiveSuffix = ".archive"
	tmpSuffix     = ".tmp"
	lockSuffix    = ".lock"
)

type Config struct {
	Path string       // Path of the live log. Required.
	Perm fs.FileMode  // Perm for created files. Defaults to 0644.
	Log  *slog.Logger // Log for diagnostics (optional)
}

type Adapter struct {
	mu   sync.Mutex
	path string
	perm fs.FileMode
	log  *slog.Logger
}

func New(cfg Config) (*Adapter, error) {
	if cfg.Path == "" {
		return nil, errors.New("path is required")
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	perm := cfg.Perm
	if perm == 0 {
		perm = defaultPerm
	}

	a := &Adapter{
		path: cfg.Path,
		perm: perm,
		log:  log.With(slog.String("adapter", "file"), slog.String("path", cfg.Path)),
	}

	if err := os.Remove(a.path + tmpSuffix); err == nil {
		a.log.Warn("removed leftover snapshot file")
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove leftover snapshot file: %w", err)
	}

	return a, nil
}

// Path returns the live log path.
func (a *Adapter) Path() string { return a.path }

// ArchivePath returns the path archived records are appended to.
func (a *Adapter) ArchivePath() string { return a.path + archiveSuffix }

func (a *Adapter) Append(ctx context.Context, records ...es.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	entries, err := jsonarray.Entries(records...)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	unlock, err := a.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := appendFile(a.path, entries, a.perm); err != nil {
		return err
	}
	a.log.Debug("append", slog.Int("num_records", len(records)))
	return nil
}

func (a *Adapter) ReadAll(ctx context.Context) ([]es.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readLocked()
}

func (a *Adapter) readLocked() ([]es.Record, error) {
	if err := ensure(a.path, a.perm); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	records, err := jsonarray.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("read log %s: %w", a.path, err)
	}
	return records, nil
}

func (a *Adapter) Archive(ctx context.Context, covered int, snapshot es.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	seeded, err := jsonarray.Encode(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	unlock, err := a.lock()
	if err != nil {
		return err
	}
	defer unlock()

	live, err := a.readLocked()
	if err != nil {
		return err
	}
	if len(live) != covered {
		return fmt.Errorf("%w: %d live records, snapshot covers %d", es.ErrLogChanged, len(live), covered)
	}

	pending, err := a.unarchived(live)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		entries, err := jsonarray.Entries(pending...)
		if err != nil {
			return fmt.Errorf("encode archive: %w", err)
		}
		if err := appendFile(a.ArchivePath(), entries, a.perm); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}

	if err := replaceFile(a.path, seeded, a.perm); err != nil {
		return fmt.Errorf("reseed log: %w", err)
	}

	a.log.Debug("archive", slog.Int("archived", len(pending)), slog.Int("already_archived", len(live)-len(pending)))
	return nil
}

// unarchived drops the leading live records an interrupted snapshot already
// appended to the archive.
func (a *Adapter) unarchived(live []es.Record) ([]es.Record, error) {
	data, err := os.ReadFile(a.ArchivePath())
	if errors.Is(err, fs.ErrNotExist) {
		return live, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	archived, err := jsonarray.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return live[jsonarray.Overlap(archived, live):], nil
}

// lock takes the in-process mutex and the advisory file lock.
func (a *Adapter) lock() (unlock func(), err error) {
	a.mu.Lock()
	release, err := lockFile(a.path+lockSuffix, a.perm)
	if err != nil {
		a.mu.Unlock()
		return nil, fmt.Errorf("lock %s: %w", a.path, err)
	}
	return func() {
		release()
		a.mu.Unlock()
	}, nil
}

// ensure creates path holding an empty array if it does not exist.
func ensure(path string, perm fs.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(jsonarray.Header); err != nil {
		_ = f.Close()
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("create %s: %w", path, err)
	}
	return f.Close()
}

// appendFile writes data at the end of path in one call and syncs it. On a
// failed write or sync the file is truncated back to its previous size.
func appendFile(path string, data []byte, perm fs.FileMode) (err error) {
	if err := ensure(path, perm); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, perm)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Truncate(info.Size())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := syncFile(f); err != nil {
		_ = f.Truncate(info.Size())
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return nil
}

var syncFile = (*os.File).Sync

func replaceFile(path string, data []byte, perm fs.FileMode) error {
	tmp := path + tmpSuffix
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return syncDir(filepath.Dir(path))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

var (
	_ es.Adapter  = (*Adapter)(nil)
	_ es.Archiver = (*Adapter)(nil)
)
