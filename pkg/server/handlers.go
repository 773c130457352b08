package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marbledata/explorer/pkg/interpreter"
	"github.com/marbledata/explorer/pkg/session"
	"github.com/marbledata/explorer/pkg/table"
)

const (
	defaultRowLimit = 100
	maxRowLimit     = 1000
	sampleRowLimit  = 5
)

// Shape reports the row and column counts of a table view.
type Shape struct {
	Rows    int `json:"rows"`
	Columns int `json:"columns"`
}

// CreateSessionResponse is returned by POST /sessions.
type CreateSessionResponse struct {
	SessionID uuid.UUID `json:"session_id"`
}

// LoadTableRequest carries parsed rows from the upload collaborator. Columns
// is optional; when omitted the order is derived from first appearance.
type LoadTableRequest struct {
	Columns []string    `json:"columns,omitempty"`
	Rows    []table.Row `json:"rows"`
}

// LoadTableResponse describes the freshly loaded table.
type LoadTableResponse struct {
	SessionID  uuid.UUID             `json:"session_id"`
	Shape      Shape                 `json:"shape"`
	Profile    *table.DatasetProfile `json:"profile"`
	SampleRows []table.Row           `json:"sample_rows"`
}

// CommandRequest is the body of POST /sessions/{id}/command.
type CommandRequest struct {
	Command string `json:"command"`
}

// CommandResponse reports one executed command: the interpretation and the
// resulting view. Success is false when the command did not change the view,
// either because it was not understood or because the operation was
// structurally inapplicable.
type CommandResponse struct {
	Success       bool                     `json:"success"`
	OperationType string                   `json:"operation_type,omitempty"`
	Explanation   string                   `json:"explanation"`
	Confidence    float64                  `json:"confidence"`
	Suggestions   []interpreter.Suggestion `json:"suggestions,omitempty"`
	Columns       []string                 `json:"columns"`
	Data          []table.Row              `json:"data"`
	Shape         Shape                    `json:"shape"`
}

// DataResponse is one page of the current view.
type DataResponse struct {
	Columns   []string    `json:"columns"`
	Data      []table.Row `json:"data"`
	TotalRows int         `json:"total_rows"`
	Shape     Shape       `json:"shape"`
}

// ConversationResponse is the ordered exchange log plus its summary.
type ConversationResponse struct {
	Exchanges []session.Exchange `json:"exchanges"`
	Summary   session.Summary    `json:"summary"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(r.Context())
	if err != nil {
		s.logger.Error("failed to create session", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	s.writeJSON(w, http.StatusCreated, CreateSessionResponse{SessionID: sess.ID})
}

func (s *Server) handleLoadTable(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req LoadTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Rows) == 0 {
		s.writeError(w, http.StatusBadRequest, "rows are required")
		return
	}

	var t *table.Table
	if len(req.Columns) > 0 {
		t = table.New(req.Columns, req.Rows)
	} else {
		t = table.FromRecords(req.Rows)
	}
	table.SanitizeRows(t.Rows)

	profile, err := sess.LoadTable(r.Context(), t)
	if err != nil {
		s.logger.Error("failed to load table", "session", sess.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load table")
		return
	}

	current := sess.Current()
	s.writeJSON(w, http.StatusOK, LoadTableResponse{
		SessionID:  sess.ID,
		Shape:      Shape{Rows: current.NumRows(), Columns: current.NumColumns()},
		Profile:    profile,
		SampleRows: pageRows(current.Rows, sampleRowLimit),
	})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Command == "" {
		s.writeError(w, http.StatusBadRequest, "command is required")
		return
	}
	if !sess.HasTable() {
		s.writeError(w, http.StatusBadRequest, "no table loaded")
		return
	}

	result, err := sess.Execute(r.Context(), req.Command)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := rowLimit(r)
	res := result.Interpretation
	s.writeJSON(w, http.StatusOK, CommandResponse{
		Success:       result.Applied,
		OperationType: res.OpType,
		Explanation:   res.Explanation,
		Confidence:    res.Confidence,
		Suggestions:   res.Suggestions,
		Columns:       result.Table.Columns,
		Data:          pageRows(result.Table.Rows, limit),
		Shape:         Shape{Rows: result.Table.NumRows(), Columns: result.Table.NumColumns()},
	})
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	current := sess.Current()
	if current == nil {
		s.writeError(w, http.StatusBadRequest, "no table loaded")
		return
	}

	limit := rowLimit(r)
	s.writeJSON(w, http.StatusOK, DataResponse{
		Columns:   current.Columns,
		Data:      pageRows(current.Rows, limit),
		TotalRows: current.NumRows(),
		Shape:     Shape{Rows: current.NumRows(), Columns: current.NumColumns()},
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	profile := sess.Profile()
	if profile == nil {
		s.writeError(w, http.StatusBadRequest, "no table loaded")
		return
	}
	s.writeJSON(w, http.StatusOK, profile)
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	s.writeJSON(w, http.StatusOK, ConversationResponse{
		Exchanges: sess.Conversation(),
		Summary:   sess.Summarize(),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromRequest(w, r)
	if !ok {
		return
	}

	current, err := sess.Reset(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, DataResponse{
		Columns:   current.Columns,
		Data:      pageRows(current.Rows, defaultRowLimit),
		TotalRows: current.NumRows(),
		Shape:     Shape{Rows: current.NumRows(), Columns: current.NumColumns()},
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid session ID")
		return
	}

	if err := s.sessions.Delete(r.Context(), id); err != nil {
		if err == session.ErrNotFound {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("failed to delete session", "session", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// sessionFromRequest resolves the {id} route param to a live session,
// writing the error response itself when it cannot.
func (s *Server) sessionFromRequest(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid session ID")
		return nil, false
	}

	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		if err == session.ErrNotFound {
			s.writeError(w, http.StatusNotFound, "session not found")
			return nil, false
		}
		s.logger.Error("failed to load session", "session", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load session")
		return nil, false
	}
	return sess, true
}

func rowLimit(r *http.Request) int {
	limit := defaultRowLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxRowLimit {
		limit = maxRowLimit
	}
	return limit
}

func pageRows(rows []table.Row, limit int) []table.Row {
	if len(rows) <= limit {
		return rows
	}
	return rows[:limit]
}
