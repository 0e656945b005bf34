/*
Package config loads the service configuration: built-in defaults, then an
optional TOML file, then environment overrides.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "TRAILSUGGEST_CONFIG"

// Config holds the entire config structure.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
	Geocoder GeocoderConfig `toml:"geocoder"`
	Search   SearchConfig   `toml:"search"`
	Policy   PolicyConfig   `toml:"policy"`
	Trails   TrailsConfig   `toml:"trails"`
	Sessions SessionsConfig `toml:"sessions"`
	Trace    TraceConfig    `toml:"trace"`
}

// ServerConfig has HTTP server options.
type ServerConfig struct {
	Port           int `toml:"port"`
	ReadTimeoutMs  int `toml:"read_timeout_ms"`
	WriteTimeoutMs int `toml:"write_timeout_ms"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// GeocoderConfig configures the remote provider. An empty token disables
// remote lookups.
type GeocoderConfig struct {
	BaseURL   string     `toml:"base_url"`
	Token     string     `toml:"token"`
	Country   string     `toml:"country"`
	BBox      [4]float64 `toml:"bbox"`
	Types     []string   `toml:"types"`
	Limit     int        `toml:"limit"`
	RetryMax  int        `toml:"retry_max"`
	TimeoutMs int        `toml:"timeout_ms"`
}

// SearchConfig holds the suggestion list limits.
type SearchConfig struct {
	DebounceMs           int `toml:"debounce_ms"`
	PreviewLimit         int `toml:"preview_limit"`
	MaxSuggestions       int `toml:"max_suggestions"`
	GeocodedMax          int `toml:"geocoded_max"`
	GeocodedReduced      int `toml:"geocoded_reduced"`
	StrongLocalThreshold int `toml:"strong_local_threshold"`
	BudgetMs             int `toml:"budget_ms"`
	CacheTTLMs           int `toml:"cache_ttl_ms"`
	CacheMaxEntries      int `toml:"cache_max_entries"`
}

// PolicyConfig holds the call protections around the geocoder.
type PolicyConfig struct {
	RateCapacity       int     `toml:"rate_capacity"`
	RateRefill         int     `toml:"rate_refill"`
	RateIntervalMs     int     `toml:"rate_interval_ms"`
	CircuitWindowMs    int     `toml:"circuit_window_ms"`
	CircuitThreshold   float64 `toml:"circuit_threshold"`
	CircuitMinSamples  int     `toml:"circuit_min_samples"`
	CircuitCooldownMs  int     `toml:"circuit_cooldown_ms"`
	CircuitHalfOpenMax int     `toml:"circuit_half_open_max"`
	Version            string  `toml:"version"`
}

// TrailsConfig points at the trail corpus. File wins over SQLite.
type TrailsConfig struct {
	File        string `toml:"file"`
	SQLite      string `toml:"sqlite"`
	RefreshMs   int    `toml:"refresh_ms"`
	AllowUpload bool   `toml:"allow_upload"`
}

// SessionsConfig configures server-held search sessions.
type SessionsConfig struct {
	IdleTTLMs   int `toml:"idle_ttl_ms"`
	SweepMs     int `toml:"sweep_ms"`
	MaxSessions int `toml:"max_sessions"`
}

// TraceConfig configures tracing and trace viewer links.
type TraceConfig struct {
	SampleRatio float64 `toml:"sample_ratio"`
	Host        string  `toml:"host"`
	Project     string  `toml:"project"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           7070,
			ReadTimeoutMs:  15000,
			WriteTimeoutMs: 30000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Geocoder: GeocoderConfig{
			BaseURL:   "https://api.mapbox.com",
			Country:   "za",
			BBox:      [4]float64{18.30, -34.36, 19.00, -33.47},
			Types:     []string{"address", "poi", "locality", "neighborhood", "region"},
			Limit:     5,
			RetryMax:  2,
			TimeoutMs: 5000,
		},
		Search: SearchConfig{
			DebounceMs:           300,
			PreviewLimit:         6,
			MaxSuggestions:       8,
			GeocodedMax:          5,
			GeocodedReduced:      3,
			StrongLocalThreshold: 5,
			BudgetMs:             2000,
			CacheTTLMs:           60000,
			CacheMaxEntries:      1024,
		},
		Policy: PolicyConfig{
			RateCapacity:       10,
			RateRefill:         10,
			RateIntervalMs:     1000,
			CircuitWindowMs:    30000,
			CircuitThreshold:   0.5,
			CircuitMinSamples:  5,
			CircuitCooldownMs:  5000,
			CircuitHalfOpenMax: 1,
			Version:            "v1",
		},
		Trails: TrailsConfig{
			RefreshMs:   0,
			AllowUpload: true,
		},
		Sessions: SessionsConfig{
			IdleTTLMs:   15 * 60 * 1000,
			SweepMs:     60 * 1000,
			MaxSessions: 10000,
		},
		Trace: TraceConfig{
			SampleRatio: 0.3,
		},
	}
}

// Load builds the configuration. path may be empty, in which case the
// EnvConfigPath variable is consulted; an empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnvInt("PORT", c.Server.Port)
	c.Log.Level = getEnvStr("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvStr("LOG_FORMAT", c.Log.Format)

	c.Geocoder.BaseURL = getEnvStr("GEOCODER_URL", c.Geocoder.BaseURL)
	c.Geocoder.Token = getEnvStr("MAPBOX_ACCESS_TOKEN", c.Geocoder.Token)
	c.Geocoder.Country = getEnvStr("GEOCODER_COUNTRY", c.Geocoder.Country)
	c.Geocoder.Limit = getEnvInt("GEOCODER_LIMIT", c.Geocoder.Limit)
	c.Geocoder.RetryMax = getEnvInt("GEOCODER_RETRY_MAX", c.Geocoder.RetryMax)
	c.Geocoder.TimeoutMs = getEnvInt("GEOCODER_TIMEOUT_MS", c.Geocoder.TimeoutMs)

	c.Search.DebounceMs = getEnvInt("DEBOUNCE_MS", c.Search.DebounceMs)
	c.Search.BudgetMs = getEnvInt("BUDGET_MS", c.Search.BudgetMs)
	c.Search.CacheTTLMs = getEnvInt("CACHE_TTL_MS", c.Search.CacheTTLMs)

	c.Policy.RateCapacity = getEnvInt("SOURCE_RATE_CAPACITY", c.Policy.RateCapacity)
	c.Policy.RateRefill = getEnvInt("SOURCE_RATE_REFILL", c.Policy.RateRefill)
	c.Policy.RateIntervalMs = getEnvInt("SOURCE_RATE_INTERVAL_MS", c.Policy.RateIntervalMs)
	c.Policy.CircuitWindowMs = getEnvInt("CIRCUIT_WINDOW_MS", c.Policy.CircuitWindowMs)
	c.Policy.CircuitThreshold = getEnvFloat("CIRCUIT_THRESHOLD", c.Policy.CircuitThreshold)
	c.Policy.CircuitMinSamples = getEnvInt("CIRCUIT_MIN_SAMPLES", c.Policy.CircuitMinSamples)
	c.Policy.CircuitCooldownMs = getEnvInt("CIRCUIT_COOLDOWN_MS", c.Policy.CircuitCooldownMs)
	c.Policy.CircuitHalfOpenMax = getEnvInt("CIRCUIT_HALF_OPEN_MAX", c.Policy.CircuitHalfOpenMax)

	c.Trails.File = getEnvStr("TRAILS_FILE", c.Trails.File)
	c.Trails.SQLite = getEnvStr("TRAILS_SQLITE", c.Trails.SQLite)
	c.Trails.RefreshMs = getEnvInt("TRAILS_REFRESH_MS", c.Trails.RefreshMs)

	c.Sessions.IdleTTLMs = getEnvInt("SESSION_IDLE_TTL_MS", c.Sessions.IdleTTLMs)
	c.Sessions.MaxSessions = getEnvInt("SESSION_MAX", c.Sessions.MaxSessions)

	c.Trace.Host = getEnvStr("TRACE_HOST", c.Trace.Host)
	c.Trace.Project = getEnvStr("TRACE_PROJECT", c.Trace.Project)
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Geocoder.BaseURL == "" {
		errs = append(errs, errors.New("geocoder.base_url required"))
	}
	if c.Geocoder.Limit <= 0 {
		errs = append(errs, errors.New("geocoder.limit must be positive"))
	}
	if c.Geocoder.TimeoutMs <= 0 {
		errs = append(errs, errors.New("geocoder.timeout_ms must be positive"))
	}
	if b := c.Geocoder.BBox; b != [4]float64{} && (b[0] >= b[2] || b[1] >= b[3]) {
		errs = append(errs, fmt.Errorf("geocoder.bbox %v must be west,south,east,north", b))
	}
	if c.Search.DebounceMs <= 0 {
		errs = append(errs, errors.New("search.debounce_ms must be positive"))
	}
	if c.Search.PreviewLimit <= 0 || c.Search.MaxSuggestions <= 0 {
		errs = append(errs, errors.New("search limits must be positive"))
	}
	if c.Search.GeocodedReduced > c.Search.GeocodedMax {
		errs = append(errs, errors.New("search.geocoded_reduced exceeds search.geocoded_max"))
	}
	if c.Search.BudgetMs <= 0 {
		errs = append(errs, errors.New("search.budget_ms must be positive"))
	}
	if c.Policy.CircuitThreshold <= 0 || c.Policy.CircuitThreshold > 1 {
		errs = append(errs, fmt.Errorf("policy.circuit_threshold %v must be in (0, 1]", c.Policy.CircuitThreshold))
	}
	if c.Trace.SampleRatio < 0 || c.Trace.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("trace.sample_ratio %v must be in [0, 1]", c.Trace.SampleRatio))
	}
	return errors.Join(errs...)
}

// Ms converts a millisecond setting to a duration.
func Ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func getEnvStr(key string, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
