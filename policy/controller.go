package policy

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
)

// Controller owns the per-endpoint source policies and hands out
// per-request budget arbiters.
type Controller struct {
	sources  map[string]*SourcePolicy
	budgetMs int
	metrics  *Metrics
}

// ControllerConfig groups the top-level policy configuration.
type ControllerConfig struct {
	BudgetMs int
	Sources  []SourceConfig
}

// NewController creates a policy controller. A nil metrics is allowed and
// disables policy metrics.
func NewController(cfg ControllerConfig, metrics *Metrics, logger *log.Logger) (*Controller, error) {
	if cfg.BudgetMs <= 0 {
		return nil, fmt.Errorf("default budget: %w", ErrInvalidBudget)
	}

	sources := make(map[string]*SourcePolicy, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		if _, dup := sources[sc.Name]; dup {
			return nil, fmt.Errorf("source %q configured twice", sc.Name)
		}
		sp, err := NewSourcePolicy(sc, metrics, logger)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", sc.Name, err)
		}
		sources[sc.Name] = sp
	}

	return &Controller{
		sources:  sources,
		budgetMs: cfg.BudgetMs,
		metrics:  metrics,
	}, nil
}

// Budget starts a budget arbiter for one request. A non-positive budgetMs
// uses the configured default.
func (c *Controller) Budget(parent context.Context, budgetMs int) (*BudgetArbiter, error) {
	if budgetMs <= 0 {
		budgetMs = c.budgetMs
	}
	return NewBudgetArbiter(parent, budgetMs, c.metrics)
}

// DefaultBudgetMs returns the configured default budget.
func (c *Controller) DefaultBudgetMs() int {
	return c.budgetMs
}

// Source returns the policy for the requested source.
func (c *Controller) Source(name string) (*SourcePolicy, bool) {
	policy, ok := c.sources[name]
	return policy, ok
}

// Metrics returns the metrics collector.
func (c *Controller) Metrics() *Metrics {
	return c.metrics
}
