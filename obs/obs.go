//go:build !nometrics

package obs

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

var (
	setupOnce sync.Once
	shutdown  = func(context.Context) error { return nil }
)

var (
	suggestRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailsuggest_requests_total",
		Help: "Total suggest requests by return code.",
	}, []string{"code"})
	suggestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trailsuggest_request_duration_ms",
		Help:    "Histogram of suggest request latency in ms.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trailsuggest_geocode_cache_total",
		Help: "Geocode cache lookups by result.",
	}, []string{"result"})
	staleDiscards = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailsuggest_stale_responses_total",
		Help: "Remote results dropped because a newer query superseded them.",
	})
	debounceCollapses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trailsuggest_debounce_collapsed_total",
		Help: "Pending remote lookups replaced by a newer keystroke.",
	})
	corpusTrails = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trailsuggest_corpus_trails",
		Help: "Number of trail records in the active corpus snapshot.",
	})
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trailsuggest_sessions_active",
		Help: "Search sessions currently held by the server.",
	})
)

// ObserveSuggest records request-level metrics.
func ObserveSuggest(code string, duration time.Duration, traceID string) {
	suggestRequests.WithLabelValues(code).Inc()
	ms := float64(duration.Microseconds()) / 1000
	if eo, ok := suggestDuration.(prometheus.ExemplarObserver); ok && traceID != "" {
		eo.ObserveWithExemplar(ms, prometheus.Labels{"trace_id": traceID})
		return
	}
	suggestDuration.Observe(ms)
}

// RecordCacheLookup counts a geocode cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(result).Inc()
}

// IncStaleDiscard counts a remote result that arrived for an old generation.
func IncStaleDiscard() {
	staleDiscards.Inc()
}

// IncDebounceCollapse counts a pending lookup cancelled by a newer one.
func IncDebounceCollapse() {
	debounceCollapses.Inc()
}

// SetCorpusSize reports the active corpus size.
func SetCorpusSize(n int) {
	corpusTrails.Set(float64(n))
}

// SetSessionsActive reports the number of live sessions.
func SetSessionsActive(n int) {
	sessionsActive.Set(float64(n))
}

// InitTracer sets up a minimal OpenTelemetry tracer provider. A ratio
// outside (0, 1] samples 30% of root spans.
func InitTracer(serviceName string, ratio float64) (func(context.Context) error, error) {
	if ratio <= 0 || ratio > 1 {
		ratio = 0.3
	}
	var initErr error
	setupOnce.Do(func() {
		res, err := resource.New(context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(serviceName),
			),
		)
		if err != nil {
			initErr = err
			return
		}

		provider := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(provider)
		shutdown = provider.Shutdown
	})
	return shutdown, initErr
}
