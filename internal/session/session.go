// Package session owns the query and suggestion state of one search box:
// synchronous local matches, a debounced remote lookup, and a generation
// counter that keeps superseded remote results from being applied.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/trailhub/trailsuggest/fuse"
	"github.com/trailhub/trailsuggest/match"
	"github.com/trailhub/trailsuggest/obs"
	"github.com/trailhub/trailsuggest/suggest"
	"github.com/trailhub/trailsuggest/trails"
)

// DefaultDebounce is the quiet period before a remote lookup is issued.
const DefaultDebounce = 300 * time.Millisecond

// ErrClosed is returned by every mutating call after Close.
var ErrClosed = errors.New("session closed")

// Remote supplies geocoded suggestions. Implementations return an empty
// list on any failure.
type Remote interface {
	Geocode(ctx context.Context, query string) []suggest.Suggestion
}

// RemoteFunc adapts a function to Remote.
type RemoteFunc func(ctx context.Context, query string) []suggest.Suggestion

// Geocode calls f.
func (f RemoteFunc) Geocode(ctx context.Context, query string) []suggest.Suggestion {
	return f(ctx, query)
}

// Navigator receives the literal query of a submitted search.
type Navigator interface {
	Navigate(query string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(query string)

// Navigate calls f.
func (f NavigatorFunc) Navigate(query string) {
	f(query)
}

// State is the session's position in the suggestion lifecycle.
type State int

const (
	// StateEmpty means no suggestions and nothing scheduled.
	StateEmpty State = iota
	// StateQuerying means local matches are shown and a remote lookup is
	// pending or in flight.
	StateQuerying
	// StateReady means the merged list is shown.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateQuerying:
		return "querying"
	case StateReady:
		return "ready"
	default:
		return "empty"
	}
}

// Options configures a Session. Zero values take defaults.
type Options struct {
	Debounce     time.Duration
	PreviewLimit int
	Fuse         fuse.Config
	// OnChange receives state changes in order, never an older state after
	// a newer one. It runs outside the session lock but must not call back
	// into the session synchronously.
	OnChange func(Snapshot)
	Logger   *log.Logger
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = DefaultDebounce
	}
	if o.PreviewLimit <= 0 {
		o.PreviewLimit = match.DefaultPreviewLimit
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

// Snapshot is a copy of the session state.
type Snapshot struct {
	Query       string
	Suggestions []suggest.Suggestion
	Visible     bool
	State       State
	Generation  uint64

	revision uint64
}

// Stats counts remote activity over the session's lifetime.
type Stats struct {
	RemoteCalls   uint64
	Applied       uint64
	StaleDiscards uint64
}

// Session is one search box's state. It is safe for concurrent use.
type Session struct {
	remote   Remote
	nav      Navigator
	opts     Options
	debounce *Debouncer
	ctx      context.Context
	cancel   context.CancelFunc

	mu          sync.Mutex
	index       *match.Index
	query       string
	suggestions []suggest.Suggestion
	visible     bool
	state       State
	generation  uint64
	revision    uint64
	closed      bool
	lastActive  time.Time
	stats       Stats

	notifyMu  sync.Mutex
	delivered uint64
}

// New constructs a session over idx. remote and nav may be nil: without a
// remote only local matches are shown, without a navigator submits are
// dropped after clearing the state.
func New(remote Remote, nav Navigator, idx *match.Index, opts Options) *Session {
	if idx == nil {
		idx = match.NewIndex(nil)
	}
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		remote:      remote,
		nav:         nav,
		opts:        opts,
		debounce:    NewDebouncer(opts.Debounce),
		ctx:         ctx,
		cancel:      cancel,
		index:       idx,
		suggestions: []suggest.Suggestion{},
		lastActive:  time.Now(),
	}
}

// UpdateQuery sets the query. Below the matching threshold the suggestions
// are cleared and any pending lookup is cancelled. Otherwise the local
// matches are shown at once and a remote lookup is scheduled, replacing any
// pending one.
func (s *Session) UpdateQuery(text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.generation++
	s.query = text
	s.lastActive = time.Now()

	if !match.MeetsThreshold(text) {
		s.debounce.Cancel()
		s.resetLocked(StateEmpty)
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
		return nil
	}

	local := s.index.Match(text)
	s.suggestions = match.Preview(local, s.opts.PreviewLimit)
	if s.suggestions == nil {
		s.suggestions = []suggest.Suggestion{}
	}
	s.visible = len(s.suggestions) > 0
	s.state = StateQuerying
	s.revision++

	gen := s.generation
	s.debounce.Trigger(func() { s.fetch(gen, text, local) })
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// SubmitSearch clears the suggestions, cancels any pending lookup and hands
// the literal query to the navigator.
func (s *Session) SubmitSearch(text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.generation++
	s.query = text
	s.lastActive = time.Now()
	s.debounce.Cancel()
	s.resetLocked(StateEmpty)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	if s.nav != nil {
		s.nav.Navigate(text)
	}
	return nil
}

// Clear resets the session to an empty query.
func (s *Session) Clear() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.generation++
	s.query = ""
	s.lastActive = time.Now()
	s.debounce.Cancel()
	s.resetLocked(StateEmpty)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// UpdateCorpus replaces the trail corpus. Current suggestions are left as
// they are; the new corpus is used from the next query change.
func (s *Session) UpdateCorpus(records []trails.Record) error {
	return s.UpdateIndex(match.NewIndex(records))
}

// UpdateIndex is UpdateCorpus for a prebuilt snapshot.
func (s *Session) UpdateIndex(idx *match.Index) error {
	if idx == nil {
		idx = match.NewIndex(nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.index = idx
	return nil
}

// Close cancels the pending lookup and any in-flight request context. No
// change is delivered after Close returns. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.debounce.Stop()
	s.cancel()
	s.mu.Unlock()

	// Wait out a notification that raced with Close.
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Stats returns the remote activity counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// LastActive is the time of the last query-changing call.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// CorpusVersion is the version of the snapshot used for matching.
func (s *Session) CorpusVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Version()
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) fetch(gen uint64, query string, local []suggest.Suggestion) {
	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.stats.RemoteCalls++
	s.mu.Unlock()

	var geocoded []suggest.Suggestion
	if s.remote != nil {
		geocoded = s.remote.Geocode(s.ctx, query)
	}
	s.resolve(gen, query, local, geocoded)
}

// resolve applies a remote result only if no query-changing call happened
// since it was scheduled.
func (s *Session) resolve(gen uint64, query string, local, geocoded []suggest.Suggestion) {
	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.stats.StaleDiscards++
		current := s.generation
		s.mu.Unlock()
		obs.IncStaleDiscard()
		s.opts.Logger.Debug("discarding stale remote result", "query", query, "generation", gen, "current", current)
		return
	}

	s.suggestions = fuse.Merge(local, geocoded, s.opts.Fuse)
	s.visible = len(s.suggestions) > 0
	s.state = StateReady
	s.revision++
	s.stats.Applied++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

func (s *Session) resetLocked(state State) {
	s.suggestions = []suggest.Suggestion{}
	s.visible = false
	s.state = state
	s.revision++
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Query:       s.query,
		Suggestions: suggest.Clone(s.suggestions),
		Visible:     s.visible,
		State:       s.state,
		Generation:  s.generation,
		revision:    s.revision,
	}
}

// notify delivers snap unless a newer revision was already delivered.
func (s *Session) notify(snap Snapshot) {
	if s.opts.OnChange == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if snap.revision <= s.delivered {
		return
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}
	s.delivered = snap.revision
	s.opts.OnChange(snap)
}
