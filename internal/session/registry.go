package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/trailhub/trailsuggest/match"
	"github.com/trailhub/trailsuggest/obs"
)

var (
	// ErrNotFound is returned for unknown or evicted session ids.
	ErrNotFound = errors.New("session not found")
	// ErrTooManySessions is returned by Create when the registry is full.
	ErrTooManySessions = errors.New("too many sessions")
)

// RegistryConfig configures server-held sessions.
type RegistryConfig struct {
	// IdleTTL evicts sessions with no query-changing call for this long.
	// Zero disables eviction.
	IdleTTL time.Duration
	// MaxSessions caps live sessions. Zero means unbounded.
	MaxSessions int
	// Options is applied to every session the registry creates.
	Options Options
}

// Registry holds sessions keyed by id for clients that drive a session over
// HTTP.
type Registry struct {
	remote Remote
	nav    Navigator
	index  func() *match.Index
	cfg    RegistryConfig
	logger *log.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry creates a registry. index supplies the corpus snapshot new
// sessions start from.
func NewRegistry(remote Remote, nav Navigator, index func() *match.Index, cfg RegistryConfig) *Registry {
	cfg.Options = cfg.Options.withDefaults()
	if index == nil {
		empty := match.NewIndex(nil)
		index = func() *match.Index { return empty }
	}
	return &Registry{
		remote:   remote,
		nav:      nav,
		index:    index,
		cfg:      cfg,
		logger:   cfg.Options.Logger,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session and returns its id.
func (r *Registry) Create() (string, *Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return "", nil, ErrClosed
	}
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		return "", nil, fmt.Errorf("%w: limit %d", ErrTooManySessions, r.cfg.MaxSessions)
	}

	id := uuid.NewString()
	s := New(r.remote, r.nav, r.index(), r.cfg.Options)
	r.sessions[id] = s
	obs.SetSessionsActive(len(r.sessions))
	r.logger.Debug("session created", "id", id)
	return id, s, nil
}

// Get returns the session for id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete closes and forgets the session for id.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		obs.SetSessionsActive(len(r.sessions))
	}
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	return s.Close()
}

// Broadcast hands a new corpus snapshot to every live session. Active
// suggestions are not recomputed.
func (r *Registry) Broadcast(idx *match.Index) int {
	r.mu.RLock()
	live := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.RUnlock()

	updated := 0
	for _, s := range live {
		if err := s.UpdateIndex(idx); err == nil {
			updated++
		}
	}
	return updated
}

// Sweep closes sessions idle since before now minus IdleTTL and returns how
// many were evicted.
func (r *Registry) Sweep(now time.Time) int {
	if r.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-r.cfg.IdleTTL)

	r.mu.Lock()
	var evicted []*Session
	for id, s := range r.sessions {
		if s.LastActive().Before(cutoff) {
			delete(r.sessions, id)
			evicted = append(evicted, s)
		}
	}
	obs.SetSessionsActive(len(r.sessions))
	r.mu.Unlock()

	for _, s := range evicted {
		_ = s.Close()
	}
	if len(evicted) > 0 {
		r.logger.Debug("evicted idle sessions", "count", len(evicted))
	}
	return len(evicted)
}

// Run sweeps idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 || r.cfg.IdleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close closes every session and refuses new ones.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	live := r.sessions
	r.sessions = make(map[string]*Session)
	obs.SetSessionsActive(0)
	r.mu.Unlock()

	for _, s := range live {
		_ = s.Close()
	}
}
