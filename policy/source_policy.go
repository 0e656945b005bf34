package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// RateLimitConfig configures the token bucket limiter.
type RateLimitConfig struct {
	Capacity     int
	RefillTokens int
	RefillEvery  time.Duration
}

// SourceConfig configures the protections around one upstream endpoint.
type SourceConfig struct {
	Name    string
	Timeout time.Duration
	Rate    RateLimitConfig
	Circuit CircuitBreakerConfig
}

// SourcePolicy applies timeout, rate limiting and circuit breaking to calls
// against a single upstream endpoint.
type SourcePolicy struct {
	name    string
	timeout time.Duration
	rate    *TokenBucket
	circuit *CircuitBreaker
	metrics *Metrics
}

// NewSourcePolicy constructs a SourcePolicy. metrics and logger may be nil.
func NewSourcePolicy(cfg SourceConfig, metrics *Metrics, logger *log.Logger) (*SourcePolicy, error) {
	if cfg.Name == "" {
		return nil, errors.New("source name required")
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("source timeout must be positive")
	}

	return &SourcePolicy{
		name:    cfg.Name,
		timeout: cfg.Timeout,
		rate:    NewTokenBucket(cfg.Rate.Capacity, cfg.Rate.RefillTokens, cfg.Rate.RefillEvery),
		circuit: NewCircuitBreaker(cfg.Name, normalizeCircuitConfig(cfg.Circuit), metrics, logger),
		metrics: metrics,
	}, nil
}

// Name returns the source name used in metrics.
func (s *SourcePolicy) Name() string {
	return s.name
}

// State returns the circuit breaker state.
func (s *SourcePolicy) State() CircuitState {
	return s.circuit.State()
}

// Execute runs fn under the policy. Rejected calls never reach fn and are
// reported as ErrCircuitOpen or ErrRateLimited.
func (s *SourcePolicy) Execute(parent context.Context, fn func(context.Context) error) error {
	if parent == nil {
		parent = context.Background()
	}

	now := time.Now()
	if !s.circuit.Allow(now) {
		s.metrics.ObserveSource(s.name, 0, ErrCircuitOpen)
		return ErrCircuitOpen
	}
	if ok, wait := s.rate.Reserve(now); !ok {
		return fmt.Errorf("%w: retry in %s", ErrRateLimited, wait.Round(time.Millisecond))
	}

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	s.metrics.ObserveSource(s.name, time.Since(start), err)

	// A caller that gave up is not evidence against the upstream.
	if errors.Is(err, context.Canceled) && parent.Err() != nil {
		return err
	}
	s.circuit.Record(time.Now(), err == nil)
	return err
}

func normalizeCircuitConfig(cfg CircuitBreakerConfig) CircuitBreakerConfig {
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	if cfg.FailureRateThreshold <= 0 {
		cfg.FailureRateThreshold = 0.5
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	return cfg
}
