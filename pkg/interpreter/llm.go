package interpreter

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/marbledata/explorer/pkg/engine"
	"github.com/marbledata/explorer/pkg/metrics"
	"github.com/marbledata/explorer/pkg/table"
)

const defaultBackendTimeout = 30 * time.Second

// LLMInterpreter interprets commands through a language backend, falling
// back to deterministic pattern matching whenever the backend errors, times
// out, or returns output without a parseable JSON object. A single backend
// failure falls back immediately; there is no retry, keeping turnaround
// latency bounded.
type LLMInterpreter struct {
	client   LLMClient
	fallback *FallbackInterpreter
	timeout  time.Duration
	log      *slog.Logger
}

// NewLLMInterpreter creates a backend-assisted interpreter. A zero timeout
// selects the default.
func NewLLMInterpreter(client LLMClient, timeout time.Duration, log *slog.Logger) *LLMInterpreter {
	if timeout <= 0 {
		timeout = defaultBackendTimeout
	}
	return &LLMInterpreter{
		client:   client,
		fallback: NewFallbackInterpreter(),
		timeout:  timeout,
		log:      log,
	}
}

// backendPayload is the loose shape of the JSON object requested from the
// backend. Suggestions may arrive as plain strings or as objects.
type backendPayload struct {
	OperationType   string          `json:"operation_type"`
	OperationParams map[string]any  `json:"operation_params"`
	Confidence      float64         `json:"confidence"`
	Explanation     string          `json:"explanation"`
	Suggestions     []json.RawMessage `json:"suggestions"`
}

// Interpret runs the backend path and degrades to the fallback path on any
// failure. The returned Result is always well-formed.
func (i *LLMInterpreter) Interpret(ctx context.Context, command string, profile *table.DatasetProfile, current *table.Table) *Result {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	raw, err := i.client.Complete(ctx, systemPrompt, userPrompt(command, profile, current))
	if err != nil {
		i.log.Debug("backend unavailable, using fallback", "error", err)
		return i.fallback.Interpret(ctx, command, profile, current)
	}

	payload, ok := extractJSON(raw)
	if !ok {
		i.log.Debug("backend response had no parseable JSON object, using fallback", "responseLen", len(raw))
		return i.fallback.Interpret(ctx, command, profile, current)
	}

	res := &Result{
		Command:     command,
		Confidence:  clampConfidence(payload.Confidence),
		Explanation: payload.Explanation,
		Suggestions: convertSuggestions(payload.Suggestions),
		Strategy:    StrategyBackend,
	}

	if payload.OperationType != "" {
		op, err := engine.FromParams(payload.OperationType, payload.OperationParams)
		if err != nil {
			i.log.Debug("backend returned invalid operation, using fallback", "operationType", payload.OperationType, "error", err)
			return i.fallback.Interpret(ctx, command, profile, current)
		}
		res.Op = &op
		res.OpType = string(op.Type)
		res.Params = op.Params()
	}

	if len(strings.TrimSpace(res.Explanation)) <= 10 {
		res.Explanation = templateExplanation(res.Op, command)
	}

	metrics.CommandsTotal.WithLabelValues(opLabel(res.Op), StrategyBackend).Inc()
	return res
}

// extractJSON scans the response for the first top-level {...} object,
// tolerating leading and trailing prose around it.
func extractJSON(raw string) (*backendPayload, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return nil, false
	}

	var payload backendPayload
	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return nil, false
	}
	return &payload, true
}

// convertSuggestions normalizes backend suggestions: bare strings become
// re-runnable commands, objects keep their fields.
func convertSuggestions(raw []json.RawMessage) []Suggestion {
	var out []Suggestion
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, Suggestion{Type: "command", Description: s, Command: s})
			continue
		}
		var obj Suggestion
		if err := json.Unmarshal(item, &obj); err == nil {
			if obj.Type == "" {
				obj.Type = "command"
			}
			out = append(out, obj)
		}
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func opLabel(op *engine.Op) string {
	if op == nil {
		return "none"
	}
	return string(op.Type)
}
