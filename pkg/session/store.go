package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marbledata/explorer/pkg/engine"
	"github.com/marbledata/explorer/pkg/table"
)

// ErrNotFound is returned when a session does not exist in the store.
var ErrNotFound = errors.New("session not found")

// Record is the durable form of a session: the original table plus the
// operation history. The current table is deliberately not stored; it is
// rebuilt by replaying the history, which keeps the history the source of
// truth for how the view was reached.
type Record struct {
	ID        uuid.UUID              `json:"id"`
	Original  *table.Table           `json:"original,omitempty"`
	Profile   *table.DatasetProfile  `json:"profile,omitempty"`
	History   []engine.HistoryEntry  `json:"history,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Store is the persistence boundary. A session must be rehydratable from
// its Record plus exchange log with no loss of the replay invariant.
type Store interface {
	SaveSession(ctx context.Context, rec *Record) error
	AppendExchange(ctx context.Context, id uuid.UUID, ex Exchange) error
	LoadSession(ctx context.Context, id uuid.UUID) (*Record, []Exchange, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
}

// MemoryStore keeps sessions in process memory. It is the default store and
// the one used in tests.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[uuid.UUID]*Record
	exchanges map[uuid.UUID][]Exchange
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[uuid.UUID]*Record),
		exchanges: make(map[uuid.UUID][]Exchange),
	}
}

func (m *MemoryStore) SaveSession(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	if rec.Original != nil {
		cp.Original = rec.Original.Clone()
	}
	cp.History = append([]engine.HistoryEntry(nil), rec.History...)
	m.records[rec.ID] = &cp
	return nil
}

func (m *MemoryStore) AppendExchange(_ context.Context, id uuid.UUID, ex Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	m.exchanges[id] = append(m.exchanges[id], ex)
	return nil
}

func (m *MemoryStore) LoadSession(_ context.Context, id uuid.UUID) (*Record, []Exchange, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	cp := *rec
	if rec.Original != nil {
		cp.Original = rec.Original.Clone()
	}
	cp.History = append([]engine.HistoryEntry(nil), rec.History...)
	return &cp, append([]Exchange(nil), m.exchanges[id]...), nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	delete(m.exchanges, id)
	return nil
}
