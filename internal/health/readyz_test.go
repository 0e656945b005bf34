package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trailhub/trailsuggest/match"
	"github.com/trailhub/trailsuggest/trails"
)

type fakeChecker struct {
	err     error
	enabled bool
	idx     *match.Index
}

func (f fakeChecker) Ping(context.Context) error { return f.err }
func (f fakeChecker) GeocoderEnabled() bool      { return f.enabled }
func (f fakeChecker) Index() *match.Index        { return f.idx }

func TestReadyzReportsCorpus(t *testing.T) {
	idx := match.NewIndex([]trails.Record{{Name: "Lion's Head"}, {Name: "Pipe Track"}})
	rec := httptest.NewRecorder()
	Readyz(fakeChecker{idx: idx})(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["corpus_trails"].(float64) != 2 {
		t.Fatalf("expected 2 trails, got %v", body["corpus_trails"])
	}
	if body["geocoder_enabled"].(bool) {
		t.Fatal("expected geocoder disabled")
	}
}

func TestReadyzUnavailableOnPingError(t *testing.T) {
	rec := httptest.NewRecorder()
	Readyz(fakeChecker{err: errors.New("dial tcp: refused"), enabled: true})(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
