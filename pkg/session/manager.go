package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/marbledata/explorer/pkg/engine"
	"github.com/marbledata/explorer/pkg/interpreter"
	"github.com/marbledata/explorer/pkg/metrics"
)

const (
	defaultMaxAge   = 24 * time.Hour
	cleanupInterval = 5 * time.Minute
)

// Manager holds the live sessions. Sessions share no state with each other
// and may be driven concurrently; the manager only guards its own map.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	interp interpreter.Interpreter
	store  Store
	clock  clockwork.Clock
	maxAge time.Duration
	log    *slog.Logger
}

// NewManager creates a session manager. A zero maxAge selects the default
// idle eviction age.
func NewManager(interp interpreter.Interpreter, store Store, clock clockwork.Clock, maxAge time.Duration, log *slog.Logger) *Manager {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	return &Manager{
		sessions: make(map[uuid.UUID]*Session),
		interp:   interp,
		store:    store,
		clock:    clock,
		maxAge:   maxAge,
		log:      log,
	}
}

// Create registers a new empty session.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	now := m.clock.Now()
	s := &Session{
		ID:        uuid.New(),
		createdAt: now,
		updatedAt: now,
		interp:    m.interp,
		store:     m.store,
		clock:     m.clock,
		log:       m.log,
	}

	if err := m.store.SaveSession(ctx, &Record{ID: s.ID, CreatedAt: now, UpdatedAt: now}); err != nil {
		return nil, fmt.Errorf("persist new session: %w", err)
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()
	metrics.ActiveSessions.Set(float64(count))

	m.log.Info("session created", "session", s.ID)
	return s, nil
}

// Get returns a live session, rehydrating it from the store when the
// process no longer holds it in memory.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	rec, exchanges, err := m.store.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}

	s = &Session{
		ID:        rec.ID,
		createdAt: rec.CreatedAt,
		updatedAt: rec.UpdatedAt,
		exchanges: exchanges,
		interp:    m.interp,
		store:     m.store,
		clock:     m.clock,
		log:       m.log,
	}
	if rec.Original != nil {
		// Rebuild the current view by replaying the recorded history
		// against the original table.
		eng := engine.New(rec.Original)
		for _, entry := range rec.History {
			if _, serr := eng.Apply(entry.Op); serr != nil {
				return nil, fmt.Errorf("replay history for session %s: %s", id, serr)
			}
		}
		s.eng = eng
		s.profile = rec.Profile
	}

	m.mu.Lock()
	// Another request may have rehydrated concurrently; keep the first.
	if existing, ok := m.sessions[id]; ok {
		s = existing
	} else {
		m.sessions[id] = s
	}
	count := len(m.sessions)
	m.mu.Unlock()
	metrics.ActiveSessions.Set(float64(count))

	m.log.Debug("session rehydrated", "session", id, "exchanges", len(exchanges))
	return s, nil
}

// Delete evicts a session from memory and removes its durable state.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()
	metrics.ActiveSessions.Set(float64(count))

	err := m.store.DeleteSession(ctx, id)
	if err == ErrNotFound && ok {
		return nil
	}
	return err
}

// StartCleanup starts a background goroutine evicting idle sessions. The
// durable state stays in the store, so an evicted session can still be
// rehydrated on the next request.
func (m *Manager) StartCleanup(ctx context.Context) {
	go func() {
		ticker := m.clock.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				m.cleanup()
			}
		}
	}()
}

func (m *Manager) cleanup() {
	now := m.clock.Now()

	m.mu.Lock()
	var evicted int
	for id, s := range m.sessions {
		if now.Sub(s.UpdatedAt()) > m.maxAge {
			delete(m.sessions, id)
			evicted++
		}
	}
	count := len(m.sessions)
	m.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	if evicted > 0 {
		m.log.Info("evicted idle sessions", "count", evicted, "remaining", count)
	}
}
