// Package sources talks to the remote geocoding provider.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/trailhub/trailsuggest/suggest"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultRetryMax = 2
	defaultLimit    = 5
	minBackoff      = 100 * time.Millisecond
	maxBackoff      = 2 * time.Second
	geocodePath     = "/geocoding/v5/mapbox.places/%s.json"
	contentTypeJSON = "application/json"
)

var (
	// ErrNoToken means no provider access token is configured. Callers treat
	// it as "geocoding disabled", not as a failure.
	ErrNoToken = errors.New("geocoder access token not configured")
	// ErrNoResults is returned by Reverse when the provider knows no place
	// at the given coordinates.
	ErrNoResults = errors.New("no geocoding results")
)

// DefaultPlaceTypes are the provider categories requested for suggestions.
var DefaultPlaceTypes = []string{"address", "poi", "locality", "neighborhood", "region"}

// HTTPClient represents a minimal http client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// BBox is a west, south, east, north bounding box.
type BBox [4]float64

func (b BBox) String() string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

// IsZero reports whether the box is unset.
func (b BBox) IsZero() bool {
	return b == BBox{}
}

// GeocoderConfig configures the provider client.
type GeocoderConfig struct {
	BaseURL  string
	Token    string
	Country  string
	BBox     BBox
	Types    []string
	Limit    int
	RetryMax int
}

// DefaultGeocoderConfig returns settings for the Cape Peninsula.
func DefaultGeocoderConfig() GeocoderConfig {
	return GeocoderConfig{
		BaseURL:  "https://api.mapbox.com",
		Country:  "za",
		BBox:     BBox{18.30, -34.36, 19.00, -33.47},
		Types:    DefaultPlaceTypes,
		Limit:    defaultLimit,
		RetryMax: defaultRetryMax,
	}
}

// Result carries the suggestions from one forward geocoding call.
type Result struct {
	Suggestions []suggest.Suggestion
	TookMs      int64
	Code        int
}

// Place is the outcome of a reverse lookup.
type Place struct {
	Name        string              `json:"name"`
	PlaceName   string              `json:"place_name"`
	Coordinates suggest.Coordinates `json:"coordinates"`
}

// Geocoder is a client for the provider's forward and reverse geocoding
// endpoints with retry on transient failures.
type Geocoder struct {
	cfg    GeocoderConfig
	client HTTPClient
}

// NewGeocoder creates a geocoder. An empty token is valid and turns every
// call into a no-op.
func NewGeocoder(cfg GeocoderConfig, client HTTPClient) (*Geocoder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("geocoder baseURL required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("geocoder baseURL: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = defaultRetryMax
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}
	if len(cfg.Types) == 0 {
		cfg.Types = DefaultPlaceTypes
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.Token = strings.TrimSpace(cfg.Token)

	return &Geocoder{cfg: cfg, client: client}, nil
}

// Enabled reports whether an access token is configured.
func (g *Geocoder) Enabled() bool {
	return g.cfg.Token != ""
}

// Limit is the number of features requested per forward call.
func (g *Geocoder) Limit() int {
	return g.cfg.Limit
}

// Forward geocodes query into geocoded suggestions. Without a token it
// returns ErrNoToken and makes no request. An empty feature list is a
// successful, empty result.
func (g *Geocoder) Forward(ctx context.Context, query string) (Result, error) {
	if !g.Enabled() {
		return Result{}, ErrNoToken
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{Code: http.StatusOK}, nil
	}

	start := time.Now()
	body, code, err := g.execute(ctx, g.forwardURL(query))
	result := Result{TookMs: time.Since(start).Milliseconds(), Code: code}
	if err != nil {
		return result, err
	}
	result.Suggestions = ParseFeatures(body)
	return result, nil
}

// Reverse turns coordinates into the nearest place name.
func (g *Geocoder) Reverse(ctx context.Context, lon, lat float64) (Place, error) {
	if !g.Enabled() {
		return Place{}, ErrNoToken
	}
	body, _, err := g.execute(ctx, g.reverseURL(lon, lat))
	if err != nil {
		return Place{}, err
	}
	place, ok := ParsePlace(body)
	if !ok {
		return Place{}, ErrNoResults
	}
	return place, nil
}

// Ping checks the provider is reachable. It is a no-op without a token.
func (g *Geocoder) Ping(ctx context.Context) error {
	if !g.Enabled() {
		return nil
	}
	values := url.Values{}
	values.Set("access_token", g.cfg.Token)
	values.Set("limit", "1")
	_, _, err := g.execute(ctx, g.endpoint(escapeSegment("ping"), values))
	return err
}

func (g *Geocoder) forwardURL(query string) string {
	values := url.Values{}
	values.Set("access_token", g.cfg.Token)
	values.Set("limit", strconv.Itoa(g.cfg.Limit))
	values.Set("types", strings.Join(g.cfg.Types, ","))
	if g.cfg.Country != "" {
		values.Set("country", g.cfg.Country)
	}
	if !g.cfg.BBox.IsZero() {
		values.Set("bbox", g.cfg.BBox.String())
	}
	return g.endpoint(escapeSegment(query), values)
}

func (g *Geocoder) reverseURL(lon, lat float64) string {
	values := url.Values{}
	values.Set("access_token", g.cfg.Token)
	values.Set("limit", "1")
	coords := strconv.FormatFloat(lon, 'f', -1, 64) + "," + strconv.FormatFloat(lat, 'f', -1, 64)
	return g.endpoint(coords, values)
}

func (g *Geocoder) endpoint(segment string, values url.Values) string {
	return g.cfg.BaseURL + fmt.Sprintf(geocodePath, segment) + "?" + values.Encode()
}

// escapeSegment percent-encodes free text for the search path segment.
// QueryEscape encodes spaces as '+', which is literal in a path.
func escapeSegment(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func (g *Geocoder) execute(ctx context.Context, fullURL string) ([]byte, int, error) {
	var (
		attempt   int
		lastError error
		status    int
		backoff   = minBackoff
	)

	for {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, status, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", contentTypeJSON)

		resp, err := g.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, status, ctx.Err()
			}
			lastError = err
		} else {
			status = resp.StatusCode
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()

			switch {
			case readErr != nil:
				lastError = fmt.Errorf("read response: %w", readErr)
			case status >= 500:
				lastError = fmt.Errorf("geocoder server error %d: %s", status, snippet(body))
			case status >= 400:
				return nil, status, fmt.Errorf("geocoder error %d: %s", status, snippet(body))
			default:
				return body, status, nil
			}
		}

		if attempt > g.cfg.RetryMax {
			if lastError == nil {
				lastError = fmt.Errorf("request failed after %d attempts", attempt)
			}
			return nil, status, lastError
		}

		if !sleepWithContext(ctx, backoff) {
			return nil, status, ctx.Err()
		}
		backoff = nextBackoff(backoff)
	}
}

func (g *Geocoder) String() string {
	return fmt.Sprintf("geocoder{base=%s,enabled=%t,retry_max=%d}", g.cfg.BaseURL, g.Enabled(), g.cfg.RetryMax)
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit]
	}
	return s
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
