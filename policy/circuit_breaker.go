package policy

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets every geocoder call through.
	CircuitClosed CircuitState = iota
	// CircuitHalfOpen lets a limited number of probes through.
	CircuitHalfOpen
	// CircuitOpen short-circuits every call to an empty geocoded result.
	CircuitOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitHalfOpen:
		return "half-open"
	case CircuitOpen:
		return "open"
	default:
		return "closed"
	}
}

type outcome struct {
	at      time.Time
	success bool
}

// CircuitBreakerConfig configures the circuit breaker behaviour.
type CircuitBreakerConfig struct {
	Window               time.Duration
	FailureRateThreshold float64
	MinSamples           int
	Cooldown             time.Duration
	HalfOpenMaxCalls     int
}

// CircuitBreaker trips when the failure rate over a rolling window crosses
// the threshold and probes recovery after a cooldown.
type CircuitBreaker struct {
	cfg     CircuitBreakerConfig
	source  string
	metrics *Metrics
	logger  *log.Logger

	mu             sync.Mutex
	state          CircuitState
	changedAt      time.Time
	outcomes       []outcome
	probes         int
	probeSuccesses int
}

// NewCircuitBreaker constructs a closed CircuitBreaker. metrics and logger
// may be nil.
func NewCircuitBreaker(source string, cfg CircuitBreakerConfig, metrics *Metrics, logger *log.Logger) *CircuitBreaker {
	cb := &CircuitBreaker{
		cfg:     cfg,
		source:  source,
		metrics: metrics,
		logger:  logger,
		state:   CircuitClosed,
	}
	metrics.SetCircuitState(source, CircuitClosed)
	return cb
}

// Allow returns whether the circuit permits a call at now.
func (c *CircuitBreaker) Allow(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evaluate(now)

	switch c.state {
	case CircuitOpen:
		return false
	case CircuitHalfOpen:
		if c.cfg.HalfOpenMaxCalls > 0 && c.probes >= c.cfg.HalfOpenMaxCalls {
			return false
		}
		c.probes++
	}
	return true
}

// Record records the outcome of a call.
func (c *CircuitBreaker) Record(now time.Time, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outcomes = append(c.outcomes, outcome{at: now, success: success})
	c.prune(now)
	c.evaluate(now)

	if c.state != CircuitHalfOpen {
		return
	}
	if !success {
		c.transition(CircuitOpen, now)
		return
	}
	c.probeSuccesses++
	if c.cfg.HalfOpenMaxCalls > 0 && c.probeSuccesses >= c.cfg.HalfOpenMaxCalls {
		// Failures from before the trip must not reopen the circuit.
		c.outcomes = c.outcomes[:0]
		c.transition(CircuitClosed, now)
	}
}

func (c *CircuitBreaker) prune(now time.Time) {
	windowStart := now.Add(-c.cfg.Window)
	idx := 0
	for _, o := range c.outcomes {
		if !o.at.Before(windowStart) {
			break
		}
		idx++
	}
	if idx > 0 {
		c.outcomes = c.outcomes[idx:]
	}
}

func (c *CircuitBreaker) evaluate(now time.Time) {
	switch c.state {
	case CircuitOpen:
		if now.Sub(c.changedAt) >= c.cfg.Cooldown {
			c.transition(CircuitHalfOpen, now)
		}
		return
	case CircuitHalfOpen:
		return
	}

	c.prune(now)
	total := len(c.outcomes)
	if total == 0 || total < c.cfg.MinSamples {
		return
	}

	failures := 0
	for _, o := range c.outcomes {
		if !o.success {
			failures++
		}
	}
	if float64(failures)/float64(total) >= c.cfg.FailureRateThreshold {
		c.transition(CircuitOpen, now)
	}
}

func (c *CircuitBreaker) transition(state CircuitState, now time.Time) {
	if c.state == state {
		return
	}
	if c.logger != nil {
		c.logger.Warn("circuit state change", "source", c.source, "from", c.state, "to", state)
	}
	c.state = state
	c.changedAt = now
	c.probes = 0
	c.probeSuccesses = 0
	c.metrics.SetCircuitState(c.source, state)
}

// State returns the current state of the circuit breaker.
func (c *CircuitBreaker) State() CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
