package policy

import (
	"sync"
	"time"
)

// TokenBucket keeps geocoder traffic inside the provider's request quota.
type TokenBucket struct {
	mu           sync.Mutex
	capacity     float64
	tokens       float64
	refillAmount float64
	refillEvery  time.Duration
	lastRefill   time.Time
}

// NewTokenBucket returns a full bucket, or nil (unlimited) when any
// parameter is non-positive.
func NewTokenBucket(capacity int, refillAmount int, refillEvery time.Duration) *TokenBucket {
	if capacity <= 0 || refillAmount <= 0 || refillEvery <= 0 {
		return nil
	}
	return &TokenBucket{
		capacity:     float64(capacity),
		tokens:       float64(capacity),
		refillAmount: float64(refillAmount),
		refillEvery:  refillEvery,
		lastRefill:   time.Now(),
	}
}

// Allow consumes a token if one is available. A nil bucket always allows.
func (b *TokenBucket) Allow(now time.Time) bool {
	ok, _ := b.Reserve(now)
	return ok
}

// Reserve consumes a token if one is available; otherwise it reports how
// long until the next token is due.
func (b *TokenBucket) Reserve(now time.Time) (bool, time.Duration) {
	if b == nil {
		return true, 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	missing := 1 - b.tokens
	wait := time.Duration(missing / b.refillAmount * float64(b.refillEvery))
	return false, wait
}

// Remaining reports the whole tokens currently available.
func (b *TokenBucket) Remaining(now time.Time) int {
	if b == nil {
		return -1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill(now)
	return int(b.tokens)
}

func (b *TokenBucket) refill(now time.Time) {
	if now.Before(b.lastRefill) {
		b.lastRefill = now
		return
	}
	elapsed := now.Sub(b.lastRefill)
	if elapsed < b.refillEvery {
		return
	}

	b.tokens += float64(elapsed) / float64(b.refillEvery) * b.refillAmount
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}
