package policy

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBudgetArbiterRejectsInvalidBudget(t *testing.T) {
	_, err := NewBudgetArbiter(context.Background(), -1, nil)
	if err != ErrInvalidBudget {
		t.Fatalf("expected ErrInvalidBudget, got %v", err)
	}
}

func TestBudgetArbiterCancelsWithinBudget(t *testing.T) {
	arbiter, err := NewBudgetArbiter(context.Background(), 50, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer arbiter.Cancel()

	ctx := arbiter.Context()
	select {
	case <-ctx.Done():
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected context to cancel within budget window")
	}

	if ctx.Err() != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", ctx.Err())
	}

	deadline := time.Now().Add(100 * time.Millisecond)
	for !arbiter.Hit() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !arbiter.Hit() {
		t.Fatal("expected budget hit to be recorded")
	}
	if !errors.Is(arbiter.Err(), ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", arbiter.Err())
	}
}

func TestBudgetArbiterCancelIsNotAHit(t *testing.T) {
	arbiter, err := NewBudgetArbiter(context.Background(), 1000, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	arbiter.Cancel()
	<-arbiter.Context().Done()
	time.Sleep(10 * time.Millisecond)

	if arbiter.Hit() || arbiter.Err() != nil {
		t.Fatal("explicit cancel must not count as a budget hit")
	}
}
