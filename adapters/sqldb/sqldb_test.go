package sqldb

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/aminnairi/cristaline/core/es"
	"github.com/aminnairi/cristaline/core/es/estest"
)

func openSQLite(t *testing.T, path string) *Adapter {
	t.Helper()
	a, err := OpenSQLite(t.Context(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestSQLite_Conformance(t *testing.T) {
	estest.RunAdapterSuite(t, func(t *testing.T) (es.Adapter, func() es.Adapter) {
		path := filepath.Join(t.TempDir(), "events.db")
		return openSQLite(t, path), func() es.Adapter { return openSQLite(t, path) }
	})
}

func TestSQLite_ArchiveTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	a, err := New(t.Context(), Config{DB: db, Prefix: "todo_", Now: func() time.Time { return at }})
	require.NoError(t, err)

	require.NoError(t, a.Append(t.Context(), es.Record(`{"n":1}`), es.Record(`{"n":2}`)))
	require.NoError(t, a.Archive(t.Context(), 2, es.Record(`{"s":1}`)))

	rows, err := db.QueryContext(t.Context(), `SELECT compaction_id, position, record, archived_at FROM todo_archive ORDER BY seq`)
	require.NoError(t, err)
	defer rows.Close()

	var (
		records []string
		ids     = map[string]bool{}
	)
	for rows.Next() {
		var (
			id, record, archivedAt string
			position               int64
		)
		require.NoError(t, rows.Scan(&id, &position, &record, &archivedAt))
		parsed, err := uuid.Parse(id)
		require.NoError(t, err)
		require.Equal(t, uuid.Version(7), parsed.Version())
		require.Equal(t, at.Format(time.RFC3339Nano), archivedAt)
		ids[id] = true
		records = append(records, record)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []string{`{"n":1}`, `{"n":2}`}, records)
	require.Len(t, ids, 1)

	live, err := a.ReadAll(t.Context())
	require.NoError(t, err)
	require.Equal(t, []es.Record{es.Record(`{"s":1}`)}, live)
}

func TestSQLite_InvalidConfig(t *testing.T) {
	_, err := New(t.Context(), Config{})
	require.Error(t, err)

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = New(t.Context(), Config{DB: db, Prefix: "drop table;"})
	require.ErrorContains(t, err, "invalid table prefix")

	_, err = OpenSQLite(t.Context(), " ", nil)
	require.Error(t, err)
}

func TestSQLite_AppendOnClosedDB(t *testing.T) {
	a := openSQLite(t, filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, a.Append(t.Context(), es.Record(`{"n":1}`)))

	require.NoError(t, a.db.Close())
	require.Error(t, a.Append(t.Context(), es.Record(`{"n":2}`), es.Record(`{"n":3}`)))
}

func TestPostgres_Conformance(t *testing.T) {
	if testing.Short() {
		t.Skip("needs a postgres container")
	}

	ctx := t.Context()
	pg, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("cristaline"),
		tcpostgres.WithUsername("cristaline"),
		tcpostgres.WithPassword("cristaline"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open(Postgres.Driver, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	n := 0
	estest.RunAdapterSuite(t, func(t *testing.T) (es.Adapter, func() es.Adapter) {
		n++
		cfg := Config{DB: db, Dialect: Postgres, Prefix: fmt.Sprintf("suite%d_", n)}
		open := func() es.Adapter {
			a, err := New(t.Context(), cfg)
			require.NoError(t, err)
			return a
		}
		return open(), open
	})
}
