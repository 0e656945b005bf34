// Package controller runs the suggestion pipeline: local matching against
// the active corpus snapshot, protected and cached geocoding, and the merge.
package controller

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/text/cases"

	"github.com/trailhub/trailsuggest/fuse"
	"github.com/trailhub/trailsuggest/internal/contract"
	"github.com/trailhub/trailsuggest/match"
	"github.com/trailhub/trailsuggest/obs"
	"github.com/trailhub/trailsuggest/policy"
	"github.com/trailhub/trailsuggest/sources"
	"github.com/trailhub/trailsuggest/suggest"
	"github.com/trailhub/trailsuggest/trails"
)

// Policy source names.
const (
	SourceForward = "geocoder.forward"
	SourceReverse = "geocoder.reverse"
	sourceLocal   = "local"
)

var (
	// ErrBadRequest indicates the request was invalid.
	ErrBadRequest = errors.New("bad request")
	// ErrGeocoderDisabled is returned by Reverse when no token is configured.
	ErrGeocoderDisabled = errors.New("geocoder disabled")
)

// Geocoder is the remote provider the controller protects and caches.
type Geocoder interface {
	Enabled() bool
	Limit() int
	Forward(ctx context.Context, query string) (sources.Result, error)
	Reverse(ctx context.Context, lon, lat float64) (sources.Place, error)
	Ping(ctx context.Context) error
}

// Config groups controller dependencies.
type Config struct {
	Fuse            fuse.Config
	CacheTTL        time.Duration
	CacheMaxEntries int
	PolicyVersion   string
	TraceHost       string
	TraceProject    string
	Logger          *log.Logger
}

// Controller coordinates matching, policy, caching, and merging.
type Controller struct {
	geocoder   Geocoder
	policies   *policy.Controller
	forward    *policy.SourcePolicy
	reverse    *policy.SourcePolicy
	fuseConfig fuse.Config
	cache      *Cache
	policyHash string
	host       string
	project    string
	logger     *log.Logger
	index      atomic.Pointer[match.Index]
}

// geocodeOutcome is the result of one protected geocoder lookup.
type geocodeOutcome struct {
	items    []suggest.Suggestion
	tookMs   int64
	cacheHit bool
	retCode  string
}

// New constructs a controller. policies must carry a SourceForward and a
// SourceReverse policy.
func New(geo Geocoder, policies *policy.Controller, cfg Config) (*Controller, error) {
	if geo == nil {
		return nil, fmt.Errorf("geocoder required")
	}
	if policies == nil {
		return nil, fmt.Errorf("policy controller required")
	}
	forward, ok := policies.Source(SourceForward)
	if !ok {
		return nil, fmt.Errorf("policy %q not configured", SourceForward)
	}
	reverse, ok := policies.Source(SourceReverse)
	if !ok {
		return nil, fmt.Errorf("policy %q not configured", SourceReverse)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	c := &Controller{
		geocoder:   geo,
		policies:   policies,
		forward:    forward,
		reverse:    reverse,
		fuseConfig: cfg.Fuse,
		cache:      NewCache(cfg.CacheTTL, cfg.CacheMaxEntries),
		policyHash: cfg.PolicyVersion,
		host:       cfg.TraceHost,
		project:    cfg.TraceProject,
		logger:     logger,
	}
	c.index.Store(match.NewIndex(nil))
	return c, nil
}

// UpdateCorpus atomically replaces the corpus snapshot used by Local and
// Suggest. Sessions keep their own snapshot until they are handed this one.
func (c *Controller) UpdateCorpus(records []trails.Record) *match.Index {
	idx := match.NewIndex(records)
	c.index.Store(idx)
	obs.SetCorpusSize(idx.Len())
	c.logger.Info("corpus replaced", "trails", idx.Len(), "version", idx.Version())
	return idx
}

// Index returns the active corpus snapshot.
func (c *Controller) Index() *match.Index {
	return c.index.Load()
}

// Local returns ranked trail matches for query against the active snapshot.
func (c *Controller) Local(query string) []suggest.Suggestion {
	return c.index.Load().Match(query)
}

// Geocode returns geocoded suggestions for query. Every failure degrades to
// an empty list; without a token no request is made.
func (c *Controller) Geocode(ctx context.Context, query string) []suggest.Suggestion {
	return c.geocode(ctx, query).items
}

// Suggest executes the one-shot pipeline: local matches, geocoding within
// the request budget, and the merge.
func (c *Controller) Suggest(ctx context.Context, req contract.Request) (resp contract.Response, err error) {
	ctx, span := otel.Tracer(obs.TracerName).Start(ctx, "controller.Suggest")
	defer span.End()

	resp.Query = req.Query
	resp.Items = []suggest.Suggestion{}
	resp.Timings.PerSource = make(map[string]int64)
	resp.RetCode = contract.RetOK
	resp.TraceURL = c.BuildTraceURL(req.TraceID)

	if err := req.Validate(); err != nil {
		resp.RetCode = contract.RetBadRequest
		return resp, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	start := time.Now()
	defer func() {
		resp.Timings.TotalMS = time.Since(start).Milliseconds()
		c.policies.Metrics().ObserveTotal(time.Since(start))
	}()

	local := c.Local(req.Query)
	resp.Timings.PerSource[sourceLocal] = time.Since(start).Milliseconds()
	span.SetAttributes(attribute.Int("suggest.local", len(local)))
	if !match.MeetsThreshold(req.Query) {
		return resp, nil
	}

	arbiter, err := c.policies.Budget(ctx, req.BudgetMS)
	if err != nil {
		resp.RetCode = contract.RetBadRequest
		return resp, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	defer arbiter.Cancel()

	geo := c.geocode(arbiter.Context(), req.Query)
	if c.geocoder.Enabled() {
		resp.Timings.PerSource[SourceForward] = geo.tookMs
	}
	resp.Timings.CacheHit = geo.cacheHit
	resp.RetCode = geo.retCode
	resp.Degraded = geo.retCode != contract.RetOK
	if errors.Is(arbiter.Err(), policy.ErrBudgetExceeded) && resp.Degraded {
		resp.RetCode = contract.RetUpstreamTimeout
	}

	resp.Items = fuse.Merge(local, geo.items, c.fuseConfig)
	span.SetAttributes(
		attribute.Int("suggest.geocoded", len(geo.items)),
		attribute.Int("suggest.items", len(resp.Items)),
		attribute.String("suggest.ret_code", resp.RetCode),
	)
	return resp, nil
}

func (c *Controller) geocode(ctx context.Context, query string) geocodeOutcome {
	out := geocodeOutcome{retCode: contract.RetOK}
	if !c.geocoder.Enabled() || !match.MeetsThreshold(query) {
		return out
	}

	key := BuildCacheKey(cacheQuery(query), c.geocoder.Limit(), c.policyHash)
	if entry, ok := c.cache.Get(key); ok {
		obs.RecordCacheLookup(true)
		out.items = entry.Items
		out.tookMs = entry.TookMs
		out.cacheHit = true
		return out
	}
	obs.RecordCacheLookup(false)

	ctx, span := otel.Tracer(obs.TracerName).Start(ctx, "geocoder.Forward")
	defer span.End()

	var result sources.Result
	err := c.forward.Execute(ctx, func(callCtx context.Context) error {
		var callErr error
		result, callErr = c.geocoder.Forward(callCtx, query)
		return callErr
	})
	out.tookMs = result.TookMs
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		out.retCode = retCodeFor(err)
		c.logger.Debug("geocode degraded", "query", query, "ret_code", out.retCode, "err", err)
		return out
	}

	out.items = result.Suggestions
	span.SetAttributes(attribute.Int("geocoder.results", len(out.items)))
	c.cache.Set(key, CacheEntry{Items: out.items, TookMs: out.tookMs})
	return out
}

// Reverse resolves coordinates to a place name through the reverse policy.
func (c *Controller) Reverse(ctx context.Context, lon, lat float64) (sources.Place, error) {
	if !c.geocoder.Enabled() {
		return sources.Place{}, ErrGeocoderDisabled
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return sources.Place{}, fmt.Errorf("%w: coordinates out of range", ErrBadRequest)
	}

	ctx, span := otel.Tracer(obs.TracerName).Start(ctx, "geocoder.Reverse")
	defer span.End()

	var place sources.Place
	err := c.reverse.Execute(ctx, func(callCtx context.Context) error {
		var callErr error
		place, callErr = c.geocoder.Reverse(callCtx, lon, lat)
		return callErr
	})
	if err != nil {
		span.RecordError(err)
		return sources.Place{}, err
	}
	return place, nil
}

// BuildTraceURL builds a trace viewer link if configured.
func (c *Controller) BuildTraceURL(traceID string) string {
	if c.host == "" || c.project == "" || traceID == "" {
		return ""
	}
	base := strings.TrimSuffix(c.host, "/")
	return fmt.Sprintf("%s/project/%s/traces?query=%s", base, c.project, url.QueryEscape(traceID))
}

// Ping validates upstream readiness. A disabled geocoder is always ready.
func (c *Controller) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return c.geocoder.Ping(ctx)
}

// GeocoderEnabled reports whether remote lookups are configured.
func (c *Controller) GeocoderEnabled() bool {
	return c.geocoder.Enabled()
}

func retCodeFor(err error) string {
	switch {
	case errors.Is(err, policy.ErrCircuitOpen):
		return contract.RetCircuitOpen
	case errors.Is(err, policy.ErrRateLimited):
		return contract.RetRateLimited
	case errors.Is(err, context.DeadlineExceeded):
		return contract.RetUpstreamTimeout
	default:
		return contract.RetDegraded
	}
}

// cacheQuery folds case and collapses whitespace so equivalent queries share
// a cache entry. A Caser is stateful, so each call gets its own.
func cacheQuery(q string) string {
	return cases.Fold().String(strings.Join(strings.Fields(q), " "))
}
