package sqldb

import (
	"fmt"
	"regexp"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect holds the SQL that differs between database engines.
type Dialect struct {
	Name   string
	Driver string

	// placeholder returns the n-th (1-based) bind parameter.
	placeholder func(n int) string
	serial      string
	// lockTable, if set, is formatted with a table name to block concurrent
	// writers for the rest of a transaction.
	lockTable string
}

var (
	SQLite = Dialect{
		Name:        "sqlite",
		Driver:      "sqlite",
		placeholder: func(int) string { return "?" },
		serial:      "INTEGER PRIMARY KEY AUTOINCREMENT",
	}

	Postgres = Dialect{
		Name:        "postgres",
		Driver:      "pgx",
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		serial:      "BIGSERIAL PRIMARY KEY",
		lockTable:   "LOCK TABLE %s IN EXCLUSIVE MODE",
	}
)

type queries struct {
	migrate       []string
	insertEvent   string
	selectEvents  string
	lockEvents    string
	countEvents   string
	archiveEvents string
	deleteEvents  string
}

func (d Dialect) queries(prefix string) queries {
	events, archive := prefix+"events", prefix+"archive"
	p := d.placeholder

	return queries{
		migrate: []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	seq %s,
	record TEXT NOT NULL
)`, events, d.serial),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	seq %s,
	compaction_id TEXT NOT NULL,
	position BIGINT NOT NULL,
	record TEXT NOT NULL,
	archived_at TEXT NOT NULL
)`, archive, d.serial),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_compaction_idx ON %s (compaction_id, position)`, archive, archive),
		},
		insertEvent:  fmt.Sprintf(`INSERT INTO %s (record) VALUES (%s)`, events, p(1)),
		selectEvents: fmt.Sprintf(`SELECT record FROM %s ORDER BY seq`, events),
		lockEvents:   lockStatement(d.lockTable, events),
		countEvents:  fmt.Sprintf(`SELECT COUNT(*) FROM %s`, events),
		archiveEvents: fmt.Sprintf(
			`INSERT INTO %s (compaction_id, position, record, archived_at) SELECT CAST(%s AS TEXT), seq, record, CAST(%s AS TEXT) FROM %s ORDER BY seq`,
			archive, p(1), p(2), events,
		),
		deleteEvents: fmt.Sprintf(`DELETE FROM %s`, events),
	}
}

func lockStatement(format, table string) string {
	if format == "" {
		return ""
	}
	return fmt.Sprintf(format, table)
}

var prefixPattern = regexp.MustCompile(`^([a-z_][a-z0-9_]*)?$`)

func validPrefix(prefix string) bool { return prefixPattern.MatchString(prefix) }
