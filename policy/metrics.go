//go:build !nometrics

package policy

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps geocoder call metrics.
type Metrics struct {
	perSourceLatency *prometheus.HistogramVec
	perSourceErrRate *prometheus.GaugeVec
	totalLatency     prometheus.Histogram
	circuitState     *prometheus.GaugeVec
	budgetHit        prometheus.Counter

	requestsMu sync.Mutex
	requests   map[string]*sourceRequestStats
}

type sourceRequestStats struct {
	success int
	fail    int
}

// MetricsOption allows customizing the metrics registry.
type MetricsOption func(*metricsConfig)

type metricsConfig struct {
	registerer prometheus.Registerer
	buckets    []float64
}

// WithRegisterer overrides the default Prometheus registerer.
func WithRegisterer(r prometheus.Registerer) MetricsOption {
	return func(cfg *metricsConfig) {
		cfg.registerer = r
	}
}

// WithLatencyBuckets overrides the default latency histogram buckets (in ms).
func WithLatencyBuckets(buckets []float64) MetricsOption {
	return func(cfg *metricsConfig) {
		cfg.buckets = buckets
	}
}

// NewMetrics constructs Metrics and registers its collectors. Collectors
// that are already registered are reused.
func NewMetrics(opts ...MetricsOption) *Metrics {
	cfg := metricsConfig{
		registerer: prometheus.DefaultRegisterer,
		buckets:    []float64{5, 10, 20, 50, 100, 200, 500, 1000, 2000},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Metrics{
		perSourceLatency: register(cfg.registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trailsuggest_geocoder_latency_ms",
			Help:    "Latency in milliseconds for each geocoder endpoint.",
			Buckets: cfg.buckets,
		}, []string{"source"})),
		perSourceErrRate: register(cfg.registerer, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trailsuggest_geocoder_error_rate",
			Help: "Lifetime error rate for each geocoder endpoint.",
		}, []string{"source"})),
		totalLatency: register(cfg.registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trailsuggest_suggest_total_latency_ms",
			Help:    "Total latency in milliseconds of a merged suggest request.",
			Buckets: cfg.buckets,
		})),
		circuitState: register(cfg.registerer, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trailsuggest_geocoder_circuit_state",
			Help: "Circuit breaker state per geocoder endpoint. 0=closed, 1=half-open, 2=open.",
		}, []string{"source"})),
		budgetHit: register(cfg.registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trailsuggest_budget_hit_total",
			Help: "Total number of suggest requests that hit their latency budget.",
		})),
		requests: make(map[string]*sourceRequestStats),
	}
}

// ObserveSource records the latency and error status for a source.
func (m *Metrics) ObserveSource(source string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	m.perSourceLatency.WithLabelValues(source).Observe(milliseconds(latency))

	m.requestsMu.Lock()
	stats, ok := m.requests[source]
	if !ok {
		stats = &sourceRequestStats{}
		m.requests[source] = stats
	}
	if err != nil {
		stats.fail++
	} else {
		stats.success++
	}
	rate := float64(stats.fail) / float64(stats.fail+stats.success)
	m.requestsMu.Unlock()

	m.perSourceErrRate.WithLabelValues(source).Set(rate)
}

// ObserveTotal records the total latency of a suggest request.
func (m *Metrics) ObserveTotal(latency time.Duration) {
	if m == nil {
		return
	}
	m.totalLatency.Observe(milliseconds(latency))
}

// IncBudgetHit increments the budget hit counter.
func (m *Metrics) IncBudgetHit() {
	if m == nil {
		return
	}
	m.budgetHit.Inc()
}

// SetCircuitState records the circuit breaker state for a source.
func (m *Metrics) SetCircuitState(source string, state CircuitState) {
	if m == nil {
		return
	}
	m.circuitState.WithLabelValues(source).Set(float64(state))
}

func milliseconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return float64(d.Milliseconds())
}

func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if registerer == nil {
		return collector
	}
	if err := registerer.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
			return collector
		}
		panic(err)
	}
	return collector
}
