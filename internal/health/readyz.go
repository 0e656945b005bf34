// Package health serves the readiness probe.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/trailhub/trailsuggest/match"
)

// MaxPingLatency is the slowest geocoder ping still reported as ready.
const MaxPingLatency = 500 * time.Millisecond

// Checker is what the probe inspects.
type Checker interface {
	Ping(ctx context.Context) error
	GeocoderEnabled() bool
	Index() *match.Index
}

// Readyz returns an http.Handler that reports geocoder reachability and the
// loaded corpus. A disabled geocoder counts as ready.
func Readyz(c Checker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		err := c.Ping(r.Context())
		latency := time.Since(start)

		ok := err == nil && latency <= MaxPingLatency
		status := http.StatusOK
		if !ok {
			status = http.StatusServiceUnavailable
		}

		idx := c.Index()
		payload := map[string]any{
			"geocoder_enabled": c.GeocoderEnabled(),
			"geocoder_ok":      err == nil,
			"last_ping_ms":     latency.Milliseconds(),
			"corpus_trails":    idx.Len(),
			"corpus_version":   idx.Version(),
		}
		if err != nil {
			payload["error"] = err.Error()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(payload)
	}
}
