package kv

import (
	"bytes"
	"context"
	"sync"
)

type MemStore struct {
	mu       sync.RWMutex
	data     map[string]Entry
	revision uint64
}

func NewMemStore() *MemStore {
	return &MemStore{data: map[string]Entry{}}
}

func (m *MemStore) Get(ctx context.Context, key string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.data[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return Entry{Value: bytes.Clone(entry.Value), Revision: entry.Revision}, nil
}

func (m *MemStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeLocked(key, value), nil
}

func (m *MemStore) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.data[key].Revision != revision {
		return 0, ErrRevisionMismatch
	}
	return m.storeLocked(key, value), nil
}

func (m *MemStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// storeLocked uses one revision counter for the whole store, like a
// JetStream bucket does.
func (m *MemStore) storeLocked(key string, value []byte) uint64 {
	m.revision++
	m.data[key] = Entry{Value: bytes.Clone(value), Revision: m.revision}
	return m.revision
}

var _ Store = (*MemStore)(nil)
