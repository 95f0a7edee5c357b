package es

import "context"

type (
	// Adapter is the durable owner of an event log.
	//
	// Append must persist all given records or none of them, and must keep
	// them in call order relative to other Append calls made while the
	// caller holds the engine lock. ReadAll returns every record in original
	// write order.
	Adapter interface {
		Append(ctx context.Context, records ...Record) error
		ReadAll(ctx context.Context) ([]Record, error)
	}

	// Archiver is implemented by adapters that support snapshot compaction.
	//
	// Archive moves every live record to a store that is never replayed and
	// then reseeds the live log so that snapshot is its only record. covered
	// is the number of live records the snapshot summarizes; if the live log
	// holds a different number, another writer got in between and Archive
	// must fail with ErrLogChanged without touching the live log.
	//
	// The archive step must be durable before the live log is reset, so that
	// a crash leaves either the original log or the archive plus a valid
	// seeded log. Retrying after such a crash must not archive the same
	// records twice.
	Archiver interface {
		Archive(ctx context.Context, covered int, snapshot Record) error
	}
)
