// Package contract holds the request and response shapes of the HTTP API.
package contract

import (
	"context"
	"errors"
	"strings"

	"github.com/trailhub/trailsuggest/suggest"
)

const TraceIDHeader = "X-Trace-Id"

// Return codes reported in Response.RetCode.
const (
	RetOK              = "OK"
	RetDegraded        = "DEGRADED"
	RetUpstreamTimeout = "UPSTREAM_TIMEOUT"
	RetCircuitOpen     = "CIRCUIT_OPEN"
	RetRateLimited     = "RATE_LIMITED"
	RetBadRequest      = "BAD_REQUEST"
)

// Request captures inbound suggest parameters.
type Request struct {
	Query    string
	BudgetMS int
	TraceID  string
}

// Validate ensures the inbound request parameters are consistent. A query
// below the matching threshold is valid and simply yields no suggestions.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return errors.New("q required")
	}
	if r.BudgetMS < 0 {
		return errors.New("budget_ms must not be negative")
	}
	return nil
}

// Timings reports where a request spent its time.
type Timings struct {
	TotalMS   int64            `json:"total_ms" msgpack:"total_ms"`
	PerSource map[string]int64 `json:"per_source_ms" msgpack:"per_source_ms"`
	CacheHit  bool             `json:"cache_hit" msgpack:"cache_hit"`
}

// Response is the public response schema for /v1/suggest.
type Response struct {
	Query    string               `json:"query" msgpack:"query"`
	Items    []suggest.Suggestion `json:"items" msgpack:"items"`
	Timings  Timings              `json:"timings" msgpack:"timings"`
	RetCode  string               `json:"ret_code" msgpack:"ret_code"`
	Degraded bool                 `json:"degraded" msgpack:"degraded"`
	TraceURL string               `json:"trace_url,omitempty" msgpack:"trace_url,omitempty"`
}

// ReverseResponse is the public response schema for /v1/reverse.
type ReverseResponse struct {
	Name        string              `json:"name" msgpack:"name"`
	PlaceName   string              `json:"place_name" msgpack:"place_name"`
	Coordinates suggest.Coordinates `json:"coordinates" msgpack:"coordinates"`
}

// CorpusResponse acknowledges a corpus replacement.
type CorpusResponse struct {
	Trails  int    `json:"trails" msgpack:"trails"`
	Version uint64 `json:"version" msgpack:"version"`
}

// SessionView is the externally visible state of a search session.
type SessionView struct {
	ID          string               `json:"id" msgpack:"id"`
	Query       string               `json:"query" msgpack:"query"`
	Suggestions []suggest.Suggestion `json:"suggestions" msgpack:"suggestions"`
	Visible     bool                 `json:"visible" msgpack:"visible"`
	State       string               `json:"state" msgpack:"state"`
	Generation  uint64               `json:"generation" msgpack:"generation"`
}

// QueryRequest is the body of session query and submit calls.
type QueryRequest struct {
	Query string `json:"query"`
}

// SubmitResponse reports where a submitted search navigates to.
type SubmitResponse struct {
	Query      string `json:"query" msgpack:"query"`
	NavigateTo string `json:"navigate_to" msgpack:"navigate_to"`
}

// ErrorResponse is written for every non-2xx status.
type ErrorResponse struct {
	Error   string `json:"error" msgpack:"error"`
	TraceID string `json:"trace_id,omitempty" msgpack:"trace_id,omitempty"`
}

type contextKey string

const traceIDKey contextKey = "trailsuggest_trace_id"

// WithTraceID stores the trace identifier in context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext extracts the trace identifier.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value := ctx.Value(traceIDKey)
	if value == nil {
		return "", false
	}
	traceID, ok := value.(string)
	return traceID, ok
}
