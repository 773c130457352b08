package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marbledata/explorer/pkg/interpreter"
	"github.com/marbledata/explorer/pkg/logger"
	"github.com/marbledata/explorer/pkg/server"
	"github.com/marbledata/explorer/pkg/session"
)

func newTestServer() *httptest.Server {
	log := logger.New(false)
	sessions := session.NewManager(
		interpreter.NewFallbackInterpreter(),
		session.NewMemoryStore(),
		clockwork.NewRealClock(),
		0,
		log,
	)
	return httptest.NewServer(server.NewServer("127.0.0.1:0", sessions, log).Router())
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func createSession(t *testing.T, ts *httptest.Server) uuid.UUID {
	t.Helper()
	var created server.CreateSessionResponse
	resp := doJSON(t, http.MethodPost, ts.URL+"/sessions", nil, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEqual(t, uuid.Nil, created.SessionID)
	return created.SessionID
}

func loadSalesTable(t *testing.T, ts *httptest.Server, id uuid.UUID) server.LoadTableResponse {
	t.Helper()
	var loaded server.LoadTableResponse
	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/sessions/%s/table", ts.URL, id), server.LoadTableRequest{
		Columns: []string{"product", "region", "revenue"},
		Rows: []map[string]any{
			{"product": "Widget", "region": "West", "revenue": 100.0},
			{"product": "Gadget", "region": "East", "revenue": 200.0},
			{"product": "Doohickey", "region": "West", "revenue": 150.0},
		},
	}, &loaded)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return loaded
}

func TestHealthzAndVersion(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	var health map[string]string
	resp := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])

	var version map[string]string
	resp = doJSON(t, http.MethodGet, ts.URL+"/version", nil, &version)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, version["version"])
}

func TestLoadTable(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	id := createSession(t, ts)
	loaded := loadSalesTable(t, ts, id)

	assert.Equal(t, id, loaded.SessionID)
	assert.Equal(t, server.Shape{Rows: 3, Columns: 3}, loaded.Shape)
	require.NotNil(t, loaded.Profile)
	assert.Equal(t, []string{"revenue"}, loaded.Profile.NumericColumns)
	assert.Len(t, loaded.SampleRows, 3)
}

func TestCommandRoundTrip(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	id := createSession(t, ts)
	loadSalesTable(t, ts, id)

	var cmd server.CommandResponse
	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/sessions/%s/command", ts.URL, id),
		server.CommandRequest{Command: "top 2 by revenue"}, &cmd)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.True(t, cmd.Success)
	assert.Equal(t, "top_n", cmd.OperationType)
	assert.Equal(t, server.Shape{Rows: 2, Columns: 3}, cmd.Shape)
	require.Len(t, cmd.Data, 2)
	assert.Equal(t, "Gadget", cmd.Data[0]["product"])
	assert.NotEmpty(t, cmd.Explanation)

	// The follow-up data endpoint sees the advanced view.
	var data server.DataResponse
	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/sessions/%s/data", ts.URL, id), nil, &data)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, data.TotalRows)
}

func TestCommand_Unrecognized(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	id := createSession(t, ts)
	loadSalesTable(t, ts, id)

	var cmd server.CommandResponse
	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/sessions/%s/command", ts.URL, id),
		server.CommandRequest{Command: "make me a sandwich"}, &cmd)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.False(t, cmd.Success)
	assert.Equal(t, server.Shape{Rows: 3, Columns: 3}, cmd.Shape)
	assert.NotEmpty(t, cmd.Suggestions)
}

func TestCommand_NoTableLoaded(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	id := createSession(t, ts)
	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/sessions/%s/command", ts.URL, id),
		server.CommandRequest{Command: "top 5"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConversationAndReset(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	id := createSession(t, ts)
	loadSalesTable(t, ts, id)

	for _, c := range []string{"top 2 by revenue", "group by region"} {
		resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/sessions/%s/command", ts.URL, id),
			server.CommandRequest{Command: c}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	var conv server.ConversationResponse
	resp := doJSON(t, http.MethodGet, fmt.Sprintf("%s/sessions/%s/conversation", ts.URL, id), nil, &conv)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, conv.Exchanges, 2)
	assert.Equal(t, "top 2 by revenue", conv.Exchanges[0].Command)
	assert.Equal(t, 2, conv.Summary.Exchanges)

	var reset server.DataResponse
	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/sessions/%s/reset", ts.URL, id), nil, &reset)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, reset.TotalRows)
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	id := createSession(t, ts)

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/sessions/%s", ts.URL, id), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/sessions/%s/profile", ts.URL, id), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnknownSessionAndBadID(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	resp := doJSON(t, http.MethodGet, fmt.Sprintf("%s/sessions/%s/data", ts.URL, uuid.New()), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/sessions/not-a-uuid/data", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoadTable_EmptyRows(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	id := createSession(t, ts)
	resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/sessions/%s/table", ts.URL, id),
		server.LoadTableRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDataLimit(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	id := createSession(t, ts)
	loadSalesTable(t, ts, id)

	var data server.DataResponse
	resp := doJSON(t, http.MethodGet, fmt.Sprintf("%s/sessions/%s/data?limit=1", ts.URL, id), nil, &data)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, data.Data, 1)
	assert.Equal(t, 3, data.TotalRows)
}
