package es

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// MemoryAdapter keeps the log in memory. It is meant for tests and for
// embedding where durability is not required.
type MemoryAdapter struct {
	mu       sync.Mutex
	log      *slog.Logger
	records  []Record
	archived []Record
}

// NewMemoryAdapter creates an adapter preloaded with records.
func NewMemoryAdapter(records ...Record) *MemoryAdapter {
	m := &MemoryAdapter{
		log: slog.Default().With(slog.String("adapter", "memory")),
	}
	for _, r := range records {
		m.records = append(m.records, slices.Clone(r))
	}
	return m
}

func (m *MemoryAdapter) Append(ctx context.Context, records ...Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		m.records = append(m.records, slices.Clone(r))
	}
	m.log.Debug("append", slog.Int("num_records", len(records)), slog.Int("total", len(m.records)))
	return nil
}

func (m *MemoryAdapter) ReadAll(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneRecords(m.records), nil
}

func (m *MemoryAdapter) Archive(ctx context.Context, covered int, snapshot Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.records) != covered {
		return fmt.Errorf("%w: %d live records, snapshot covers %d", ErrLogChanged, len(m.records), covered)
	}

	m.archived = append(m.archived, m.records...)
	m.records = []Record{slices.Clone(snapshot)}
	m.log.Debug("archive", slog.Int("archived", len(m.archived)))
	return nil
}

// Archived returns every record moved aside by Archive, oldest first.
func (m *MemoryAdapter) Archived() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneRecords(m.archived)
}

func cloneRecords(in []Record) []Record {
	out := make([]Record, 0, len(in))
	for _, r := range in {
		out = append(out, slices.Clone(r))
	}
	return out
}

var (
	_ Adapter  = (*MemoryAdapter)(nil)
	_ Archiver = (*MemoryAdapter)(nil)
)
