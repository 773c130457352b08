// Package session owns per-session conversation state: the original and
// current tables, the operation history, and the ordered log of interpreted
// commands. Sessions are independent of each other; within one session
// commands execute strictly in submission order.
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
	"github.com/marbledata/explorer/pkg/table"
)

// Exchange is one entry of the conversation log: the command, what it was
// interpreted as, and the explanation returned to the user.
type Exchange struct {
	Command     string                   `json:"command"`
	Explanation string                   `json:"explanation"`
	OpType      string                   `json:"operation_type,omitempty"`
	Params      map[string]any           `json:"operation_params,omitempty"`
	Confidence  float64                  `json:"confidence"`
	Suggestions []interpreter.Suggestion `json:"suggestions,omitempty"`
	At          time.Time                `json:"at"`
}

// Summary is a short aggregate of a session's conversation.
type Summary struct {
	Exchanges  int            `json:"exchanges"`
	Operations map[string]int `json:"operations"`
}

// CommandResult is what one executed command hands back to the transport:
// the interpretation, whether an operation was actually applied, and the
// table to display (the current view, or the derived result for read-only
// analyses).
type CommandResult struct {
	Interpretation *interpreter.Result
	Applied        bool
	NoOpReason     engine.Reason
	Table          *table.Table
}

// Session is the unit of multi-turn state. The mutex serializes command
// execution so two in-flight commands for the same session cannot interleave.
type Session struct {
	ID uuid.UUID

	mu        sync.Mutex
	eng       *engine.Engine
	profile   *table.DatasetProfile
	exchanges []Exchange
	createdAt time.Time
	updatedAt time.Time

	interp interpreter.Interpreter
	store  Store
	clock  clockwork.Clock
	log    *slog.Logger
}

// HasTable reports whether a table has been loaded.
func (s *Session) HasTable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eng != nil
}

// LoadTable installs a new original table, discarding any prior state for
// this session.
func (s *Session) LoadTable(ctx context.Context, t *table.Table) (*table.DatasetProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.eng = engine.New(t)
	s.profile = table.Profile(s.eng.Current())
	s.exchanges = nil
	s.updatedAt = s.clock.Now()

	if err := s.persistLocked(ctx); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	return s.profile, nil
}

// Execute interprets and runs one command. The returned table is a snapshot
// the caller may read freely; subsequent operations replace rather than
// mutate it. Interpretation never fails; an inapplicable or unrecognized
// command comes back with Applied=false and the view unchanged.
func (s *Session) Execute(ctx context.Context, command string) (*CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eng == nil {
		return nil, fmt.Errorf("no table loaded")
	}

	res := s.interp.Interpret(ctx, command, s.profile, s.eng.Current())

	out := &CommandResult{
		Interpretation: res,
		Table:          s.eng.Current(),
	}

	if res.Op != nil {
		before := s.eng.Current()
		result, serr := s.eng.Apply(*res.Op)
		if serr != nil {
			out.NoOpReason = serr.Reason
			metrics.OperationsApplied.WithLabelValues(string(res.Op.Type), "noop").Inc()
			s.log.Debug("operation was a no-op", "session", s.ID, "operation", res.Op.Type, "reason", serr.Reason)
		} else {
			out.Applied = true
			out.Table = result
			if res.Op.Type != engine.OpCorrelation {
				// The view changed; its profile must be recomputed.
				s.profile = table.Profile(s.eng.Current())
			}
			metrics.OperationsApplied.WithLabelValues(string(res.Op.Type), "applied").Inc()
		}
		res.Explanation = interpreter.Enhance(res, before, out.Table, serr)
	}

	exchange := Exchange{
		Command:     command,
		Explanation: res.Explanation,
		OpType:      res.OpType,
		Params:      res.Params,
		Confidence:  res.Confidence,
		Suggestions: res.Suggestions,
		At:          s.clock.Now(),
	}
	s.exchanges = append(s.exchanges, exchange)
	s.updatedAt = exchange.At

	// Durable state is best-effort: a store fault must not fail the turn.
	if err := s.persistLocked(ctx); err != nil {
		s.log.Warn("failed to persist session state", "session", s.ID, "error", err)
	}
	if err := s.store.AppendExchange(ctx, s.ID, exchange); err != nil {
		s.log.Warn("failed to persist exchange", "session", s.ID, "error", err)
	}

	return out, nil
}

// Reset restores the current table to the original and clears the in-memory
// history and conversation log. Durable log rows are retained by the store.
func (s *Session) Reset(ctx context.Context) (*table.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eng == nil {
		return nil, fmt.Errorf("no table loaded")
	}

	current := s.eng.Reset()
	s.profile = table.Profile(current)
	s.exchanges = nil
	s.updatedAt = s.clock.Now()

	if err := s.persistLocked(ctx); err != nil {
		s.log.Warn("failed to persist session reset", "session", s.ID, "error", err)
	}
	return current, nil
}

// Current returns the current working view, or nil before a table loads.
func (s *Session) Current() *table.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eng == nil {
		return nil
	}
	return s.eng.Current()
}

// Profile returns the dataset profile of the current view.
func (s *Session) Profile() *table.DatasetProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Conversation returns the ordered exchange log.
func (s *Session) Conversation() []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Exchange(nil), s.exchanges...)
}

// Summarize reports the exchange count and per-operation-type counts.
func (s *Session) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{Exchanges: len(s.exchanges), Operations: make(map[string]int)}
	for _, ex := range s.exchanges {
		if ex.OpType != "" {
			sum.Operations[ex.OpType]++
		}
	}
	return sum
}

// UpdatedAt returns the time of the last activity on the session.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

func (s *Session) persistLocked(ctx context.Context) error {
	rec := &Record{
		ID:        s.ID,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
	if s.eng != nil {
		rec.Original = s.eng.Original()
		rec.Profile = s.profile
		rec.History = s.eng.History()
	}
	return s.store.SaveSession(ctx, rec)
}
