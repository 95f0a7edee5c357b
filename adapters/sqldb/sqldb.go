// Package sqldb stores an event log in a SQL database through database/sql.
// SQLite (modernc.org/sqlite) and PostgreSQL (pgx) are supported.
//
// Records live in "<prefix>events" ordered by an auto-incremented sequence.
// Archive moves every live row into "<prefix>archive" under a fresh UUIDv7
// compaction id and inserts the snapshot, all in one SQL transaction. The
// live row count is checked inside that transaction (under an exclusive
// table lock on PostgreSQL), so rows appended by another process are never
// archived without being covered by the snapshot.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aminnairi/cristaline/core/es"
)

type Config struct {
	DB      *sql.DB      // DB to use. Required.
	Dialect Dialect      // Dialect of DB. Defaults to SQLite.
	Prefix  string       // Prefix for table names, lower case letters, digits and underscores.
	Log     *slog.Logger // Log for diagnostics (optional)
	Now     func() time.Time
}

type Adapter struct {
	db      *sql.DB
	owned   bool
	dialect Dialect
	q       queries
	log     *slog.Logger
	now     func() time.Time
}

// New creates the tables if needed and returns an adapter over cfg.DB. The
// caller keeps ownership of the DB.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.DB == nil {
		return nil, errors.New("db is required")
	}
	if !validPrefix(cfg.Prefix) {
		return nil, fmt.Errorf("invalid table prefix %q", cfg.Prefix)
	}

	dialect := cfg.Dialect
	if dialect.Name == "" {
		dialect = SQLite
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	a := &Adapter{
		db:      cfg.DB,
		dialect: dialect,
		q:       dialect.queries(cfg.Prefix),
		log:     log.With(slog.String("adapter", "sql"), slog.String("dialect", dialect.Name)),
		now:     now,
	}
	if err := a.migrate(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// OpenSQLite opens the SQLite database at path. Close releases it.
func OpenSQLite(ctx context.Context, path string, log *slog.Logger) (*Adapter, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	return open(ctx, SQLite, dsn, log)
}

// OpenPostgres opens the PostgreSQL database at dsn. Close releases it.
func OpenPostgres(ctx context.Context, dsn string, log *slog.Logger) (*Adapter, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	return open(ctx, Postgres, dsn, log)
}

func open(ctx context.Context, dialect Dialect, dsn string, log *slog.Logger) (*Adapter, error) {
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", dialect.Name, err)
	}
	if dialect.Name == SQLite.Name {
		// a single connection serializes writers, which SQLite needs anyway
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", dialect.Name, err)
	}

	a, err := New(ctx, Config{DB: db, Dialect: dialect, Log: log})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.owned = true
	return a, nil
}

// Close closes the database if the adapter opened it.
func (a *Adapter) Close() error {
	if !a.owned {
		return nil
	}
	return a.db.Close()
}

func (a *Adapter) migrate(ctx context.Context) error {
	for _, stmt := range a.q.migrate {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (a *Adapter) Append(ctx context.Context, records ...es.Record) error {
	if len(records) == 0 {
		return ctx.Err()
	}

	err := a.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, a.q.insertEvent)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, r := range records {
			if _, err := stmt.ExecContext(ctx, string(r)); err != nil {
				return fmt.Errorf("insert record %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}
	a.log.Debug("append", slog.Int("num_records", len(records)))
	return nil
}

func (a *Adapter) ReadAll(ctx context.Context) ([]es.Record, error) {
	rows, err := a.db.QueryContext(ctx, a.q.selectEvents)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer rows.Close()

	var records []es.Record
	for rows.Next() {
		var rec string
		if err := rows.Scan(&rec); err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		records = append(records, es.Record(rec))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return records, nil
}

func (a *Adapter) Archive(ctx context.Context, covered int, snapshot es.Record) error {
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}

	var archived int64
	err = a.inTx(ctx, func(tx *sql.Tx) error {
		if a.q.lockEvents != "" {
			if _, err := tx.ExecContext(ctx, a.q.lockEvents); err != nil {
				return fmt.Errorf("lock log: %w", err)
			}
		}
		var live int
		if err := tx.QueryRowContext(ctx, a.q.countEvents).Scan(&live); err != nil {
			return fmt.Errorf("count log: %w", err)
		}
		if live != covered {
			return fmt.Errorf("%w: %d live records, snapshot covers %d", es.ErrLogChanged, live, covered)
		}

		res, err := tx.ExecContext(ctx, a.q.archiveEvents, id.String(), a.now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("copy to archive: %w", err)
		}
		archived, _ = res.RowsAffected()

		if _, err := tx.ExecContext(ctx, a.q.deleteEvents); err != nil {
			return fmt.Errorf("clear log: %w", err)
		}
		if _, err := tx.ExecContext(ctx, a.q.insertEvent, string(snapshot)); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	a.log.Debug("archive", slog.String("compaction_id", id.String()), slog.Int64("archived", archived))
	return nil
}

func (a *Adapter) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
				a.log.Error("rollback failed", slog.Any("error", rerr))
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

var (
	_ es.Adapter  = (*Adapter)(nil)
	_ es.Archiver = (*Adapter)(nil)
)
