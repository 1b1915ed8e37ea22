package store

import (
	"context"
	"errors"
	"sync"

	"github.com/NamiraNet/handoff/internal/message"
)

var ErrNotFound = errors.New("message not found")

type Record = message.Timed[message.Message]

// Store keeps processed messages so they can be looked up after they left the
// board. Only results are stored; queued work is never persisted.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, key string) (Record, error)
	Close() error
}

// Memory is an in-process Store, used when redis is disabled.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Value.Key] = rec
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) Close() error { return nil }
