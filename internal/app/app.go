// Package app assembles the suggestion pipeline from a loaded configuration.
// The HTTP server and the terminal client share it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/trailhub/trailsuggest/fuse"
	"github.com/trailhub/trailsuggest/internal/config"
	"github.com/trailhub/trailsuggest/internal/controller"
	"github.com/trailhub/trailsuggest/internal/session"
	"github.com/trailhub/trailsuggest/policy"
	"github.com/trailhub/trailsuggest/sources"
	"github.com/trailhub/trailsuggest/trails"
)

// App holds the long-lived components built from a Config.
type App struct {
	Config     *config.Config
	Controller *controller.Controller
	Policies   *policy.Controller
	Geocoder   *sources.Geocoder
	// Corpus is nil when no trail source is configured.
	Corpus trails.Source

	logger *log.Logger
	db     *sql.DB
}

// Build wires the geocoder, the policies and the controller, and loads the
// initial corpus when a trail source is configured. A corpus that fails to
// load is an error; an unconfigured one leaves the corpus empty.
func Build(ctx context.Context, cfg *config.Config, metrics *policy.Metrics, logger *log.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if logger == nil {
		logger = log.Default()
	}

	geo, err := sources.NewGeocoder(GeocoderConfig(cfg), NewHTTPClient(config.Ms(cfg.Geocoder.TimeoutMs)))
	if err != nil {
		return nil, fmt.Errorf("geocoder: %w", err)
	}
	if !geo.Enabled() {
		logger.Warn("no geocoder token configured; only trail matches will be suggested")
	}

	policies, err := policy.NewController(PolicyConfig(cfg), metrics, logger.WithPrefix("policy"))
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}

	ctrl, err := controller.New(geo, policies, controller.Config{
		Fuse:            FuseConfig(cfg),
		CacheTTL:        config.Ms(cfg.Search.CacheTTLMs),
		CacheMaxEntries: cfg.Search.CacheMaxEntries,
		PolicyVersion:   cfg.Policy.Version,
		TraceHost:       cfg.Trace.Host,
		TraceProject:    cfg.Trace.Project,
		Logger:          logger.WithPrefix("controller"),
	})
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}

	a := &App{
		Config:     cfg,
		Controller: ctrl,
		Policies:   policies,
		Geocoder:   geo,
		logger:     logger,
	}

	switch {
	case cfg.Trails.File != "":
		a.Corpus = trails.FileSource{Path: cfg.Trails.File}
	case cfg.Trails.SQLite != "":
		db, err := trails.OpenSQLite(cfg.Trails.SQLite)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.Corpus = trails.SQLiteSource{DB: db, Name: filepath.Base(cfg.Trails.SQLite)}
	}

	if a.Corpus != nil {
		if _, err := a.Reload(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

// Reload reads the corpus source and swaps the controller's snapshot. It
// returns the number of trails loaded.
func (a *App) Reload(ctx context.Context) (int, error) {
	if a.Corpus == nil {
		return 0, nil
	}
	records, err := a.Corpus.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load corpus %s: %w", a.Corpus, err)
	}
	idx := a.Controller.UpdateCorpus(records)
	return idx.Len(), nil
}

// RunRefresh reloads the corpus every interval until ctx is done, handing
// each new snapshot to registry. Failed reloads keep the current snapshot.
func (a *App) RunRefresh(ctx context.Context, interval time.Duration, registry *session.Registry) {
	if a.Corpus == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Reload(ctx); err != nil {
				a.logger.Error("corpus refresh failed", "source", a.Corpus.String(), "err", err)
				continue
			}
			if registry != nil {
				registry.Broadcast(a.Controller.Index())
			}
		}
	}
}

// SessionOptions returns the per-session settings from the config.
func (a *App) SessionOptions(logger *log.Logger) session.Options {
	return session.Options{
		Debounce:     config.Ms(a.Config.Search.DebounceMs),
		PreviewLimit: a.Config.Search.PreviewLimit,
		Fuse:         FuseConfig(a.Config),
		Logger:       logger,
	}
}

// Close releases the corpus database, if any.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// GeocoderConfig maps the [geocoder] section to the client config.
func GeocoderConfig(cfg *config.Config) sources.GeocoderConfig {
	return sources.GeocoderConfig{
		BaseURL:  cfg.Geocoder.BaseURL,
		Token:    cfg.Geocoder.Token,
		Country:  cfg.Geocoder.Country,
		BBox:     sources.BBox(cfg.Geocoder.BBox),
		Types:    cfg.Geocoder.Types,
		Limit:    cfg.Geocoder.Limit,
		RetryMax: cfg.Geocoder.RetryMax,
	}
}

// FuseConfig maps the [search] limits to the merge config.
func FuseConfig(cfg *config.Config) fuse.Config {
	return fuse.Config{
		MaxTotal:             cfg.Search.MaxSuggestions,
		GeocodedMax:          cfg.Search.GeocodedMax,
		GeocodedReduced:      cfg.Search.GeocodedReduced,
		StrongLocalThreshold: cfg.Search.StrongLocalThreshold,
	}
}

// PolicyConfig builds one source policy per geocoder endpoint. Both share
// the [policy] limits and the geocoder timeout.
func PolicyConfig(cfg *config.Config) policy.ControllerConfig {
	source := func(name string) policy.SourceConfig {
		return policy.SourceConfig{
			Name:    name,
			Timeout: config.Ms(cfg.Geocoder.TimeoutMs),
			Rate: policy.RateLimitConfig{
				Capacity:     cfg.Policy.RateCapacity,
				RefillTokens: cfg.Policy.RateRefill,
				RefillEvery:  config.Ms(cfg.Policy.RateIntervalMs),
			},
			Circuit: policy.CircuitBreakerConfig{
				Window:               config.Ms(cfg.Policy.CircuitWindowMs),
				FailureRateThreshold: cfg.Policy.CircuitThreshold,
				MinSamples:           cfg.Policy.CircuitMinSamples,
				Cooldown:             config.Ms(cfg.Policy.CircuitCooldownMs),
				HalfOpenMaxCalls:     cfg.Policy.CircuitHalfOpenMax,
			},
		}
	}
	return policy.ControllerConfig{
		BudgetMs: cfg.Search.BudgetMs,
		Sources:  []policy.SourceConfig{source(controller.SourceForward), source(controller.SourceReverse)},
	}
}

// NewHTTPClient returns a pooled client for the geocoder.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxConnsPerHost:     64,
		MaxIdleConns:        128,
		MaxIdleConnsPerHost: 64,
		IdleConnTimeout:     90 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
