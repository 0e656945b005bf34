package policy

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// BudgetArbiter bounds a single request to a latency budget and records
// whether the budget was reached.
type BudgetArbiter struct {
	ctx    context.Context
	cancel context.CancelFunc
	budget time.Duration
	hit    atomic.Bool
}

// NewBudgetArbiter derives a deadline-bound context from parent. The budget
// must be positive.
func NewBudgetArbiter(parent context.Context, budgetMS int, metrics *Metrics) (*BudgetArbiter, error) {
	if budgetMS <= 0 {
		return nil, ErrInvalidBudget
	}
	if parent == nil {
		parent = context.Background()
	}

	budget := time.Duration(budgetMS) * time.Millisecond
	ctx, cancel := context.WithTimeout(parent, budget)
	arbiter := &BudgetArbiter{
		ctx:    ctx,
		cancel: cancel,
		budget: budget,
	}

	go func() {
		<-ctx.Done()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			arbiter.hit.Store(true)
			metrics.IncBudgetHit()
		}
	}()
	return arbiter, nil
}

// Context returns the budget-bound context.
func (b *BudgetArbiter) Context() context.Context {
	return b.ctx
}

// Budget returns the configured budget.
func (b *BudgetArbiter) Budget() time.Duration {
	return b.budget
}

// Cancel releases the arbiter's resources.
func (b *BudgetArbiter) Cancel() {
	b.cancel()
}

// Hit reports whether the allotted budget was consumed.
func (b *BudgetArbiter) Hit() bool {
	if b == nil {
		return false
	}
	return b.hit.Load()
}

// Err returns ErrBudgetExceeded once the budget was reached, nil otherwise.
func (b *BudgetArbiter) Err() error {
	if b.Hit() {
		return ErrBudgetExceeded
	}
	return nil
}
