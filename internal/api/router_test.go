package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/trailhub/trailsuggest/fuse"
	"github.com/trailhub/trailsuggest/internal/contract"
	"github.com/trailhub/trailsuggest/internal/controller"
	"github.com/trailhub/trailsuggest/internal/session"
	"github.com/trailhub/trailsuggest/policy"
	"github.com/trailhub/trailsuggest/sources"
	"github.com/trailhub/trailsuggest/suggest"
	"github.com/trailhub/trailsuggest/testutil"
)

const corpusJSON = `[
	{"id": "t1", "name": "Table Mountain Trail", "difficulty": "Moderate", "distanceKm": 5.2},
	{"id": "t2", "name": "Lion's Head", "location": {"_lat": -33.93, "_long": 18.39}}
]`

type testServer struct {
	server   *httptest.Server
	fake     *testutil.FakeSource
	registry *session.Registry
}

func newTestServer(t *testing.T, token string, allowUpload bool) *testServer {
	t.Helper()
	fake := testutil.NewFakeSource(testutil.FakeResponse{Body: testutil.FeatureCollection(testutil.Place("Lion's Battery"))})
	t.Cleanup(fake.Close)

	geoCfg := sources.DefaultGeocoderConfig()
	geoCfg.BaseURL = fake.URL()
	geoCfg.Token = token
	geoCfg.RetryMax = 0
	geo, err := sources.NewGeocoder(geoCfg, fake.Client())
	require.NoError(t, err)

	policies, err := policy.NewController(policy.ControllerConfig{
		BudgetMs: 1000,
		Sources: []policy.SourceConfig{
			{Name: controller.SourceForward, Timeout: time.Second},
			{Name: controller.SourceReverse, Timeout: time.Second},
		},
	}, nil, nil)
	require.NoError(t, err)

	quiet := log.New(io.Discard)
	ctrl, err := controller.New(geo, policies, controller.Config{Fuse: fuse.DefaultConfig(), Logger: quiet})
	require.NoError(t, err)

	registry := session.NewRegistry(ctrl, nil, ctrl.Index, session.RegistryConfig{
		Options: session.Options{Debounce: 50 * time.Millisecond, Logger: quiet},
	})
	t.Cleanup(registry.Close)

	router, err := NewRouter(ctrl, registry, Options{AllowUpload: allowUpload, Logger: quiet})
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{server: srv, fake: fake, registry: registry}
}

func (ts *testServer) do(t *testing.T, method, path, body string, header http.Header) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.server.URL+path, reader)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, "", false)
	resp := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ready := ts.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, ready.StatusCode)
}

func TestSuggestEndToEnd(t *testing.T) {
	ts := newTestServer(t, "", true)

	upload := ts.do(t, http.MethodPut, "/v1/trails", corpusJSON, nil)
	require.Equal(t, http.StatusOK, upload.StatusCode)
	assert.Equal(t, 2, decode[contract.CorpusResponse](t, upload).Trails)

	resp := ts.do(t, http.MethodGet, "/v1/suggest?q=Table", "", http.Header{contract.TraceIDHeader: {"trace-123"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "trace-123", resp.Header.Get(contract.TraceIDHeader))

	body := decode[contract.Response](t, resp)
	require.Len(t, body.Items, 1)
	item := body.Items[0]
	assert.Equal(t, suggest.KindTrail, item.Kind)
	assert.Equal(t, "Table Mountain Trail", item.DisplayName)
	assert.Equal(t, "5.2 km", item.DistanceLabel)
	assert.Equal(t, "", item.ElevationLabel)
	assert.Equal(t, contract.RetOK, body.RetCode)
	assert.Equal(t, 0, ts.fake.Calls(), "no token means no geocoder calls")
}

func TestSuggestMsgpack(t *testing.T) {
	ts := newTestServer(t, "tok", true)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/v1/trails", corpusJSON, nil).StatusCode)

	resp := ts.do(t, http.MethodGet, "/v1/suggest?q=lion", "", http.Header{"Accept": {"application/msgpack"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, contentTypeMsgpack, resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get(contract.TraceIDHeader), "trace id is generated when absent")

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var body contract.Response
	require.NoError(t, msgpack.Unmarshal(raw, &body))

	require.Len(t, body.Items, 2)
	assert.Equal(t, "Lion's Head", body.Items[0].DisplayName)
	require.NotNil(t, body.Items[0].Coordinates)
	assert.Equal(t, -33.93, body.Items[0].Coordinates.Lat)
	assert.Equal(t, "Lion's Battery, Cape Town", body.Items[1].DisplayName)
	assert.Equal(t, 1, ts.fake.Calls())
}

func TestSuggestBadRequests(t *testing.T) {
	ts := newTestServer(t, "", false)

	missing := ts.do(t, http.MethodGet, "/v1/suggest", "", nil)
	assert.Equal(t, http.StatusBadRequest, missing.StatusCode)
	assert.NotEmpty(t, decode[contract.ErrorResponse](t, missing).TraceID)

	badBudget := ts.do(t, http.MethodGet, "/v1/suggest?q=lion&budget_ms=soon", "", nil)
	assert.Equal(t, http.StatusBadRequest, badBudget.StatusCode)

	short := ts.do(t, http.MethodGet, "/v1/suggest?q=l", "", nil)
	require.Equal(t, http.StatusOK, short.StatusCode)
	assert.Empty(t, decode[contract.Response](t, short).Items)
}

func TestReverseEndpoint(t *testing.T) {
	disabled := newTestServer(t, "", false)
	assert.Equal(t, http.StatusServiceUnavailable, disabled.do(t, http.MethodGet, "/v1/reverse?lon=18.4&lat=-33.9", "", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, disabled.do(t, http.MethodGet, "/v1/reverse?lon=east", "", nil).StatusCode)

	enabled := newTestServer(t, "tok", false)
	resp := enabled.do(t, http.MethodGet, "/v1/reverse?lon=18.4&lat=-33.9", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Lion's Battery, Cape Town", decode[contract.ReverseResponse](t, resp).Name)
}

func TestTrailsUpload(t *testing.T) {
	locked := newTestServer(t, "", false)
	assert.Equal(t, http.StatusForbidden, locked.do(t, http.MethodPut, "/v1/trails", corpusJSON, nil).StatusCode)

	open := newTestServer(t, "", true)
	assert.Equal(t, http.StatusBadRequest, open.do(t, http.MethodPut, "/v1/trails", `{"trails": 3}`, nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, open.do(t, http.MethodPut, "/v1/trails", `[{`, nil).StatusCode)
}

func TestSessionFlow(t *testing.T) {
	ts := newTestServer(t, "tok", true)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/v1/trails", corpusJSON, nil).StatusCode)

	created := ts.do(t, http.MethodPost, "/v1/sessions", "", nil)
	require.Equal(t, http.StatusCreated, created.StatusCode)
	view := decode[contract.SessionView](t, created)
	require.NotEmpty(t, view.ID)
	assert.Equal(t, "empty", view.State)
	base := "/v1/sessions/" + view.ID

	updated := ts.do(t, http.MethodPut, base+"/query", `{"query":"lion"}`, nil)
	require.Equal(t, http.StatusOK, updated.StatusCode)
	view = decode[contract.SessionView](t, updated)
	assert.Equal(t, "querying", view.State)
	assert.Equal(t, []string{"Lion's Head"}, displayNames(view.Suggestions))

	require.Eventually(t, func() bool {
		resp := ts.do(t, http.MethodGet, base, "", nil)
		view = decode[contract.SessionView](t, resp)
		return view.State == "ready"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"Lion's Head", "Lion's Battery, Cape Town"}, displayNames(view.Suggestions))

	submitted := ts.do(t, http.MethodPost, base+"/submit", `{"query":"Lion's Head"}`, nil)
	require.Equal(t, http.StatusOK, submitted.StatusCode)
	assert.Equal(t, "/search?q=Lion%27s+Head", decode[contract.SubmitResponse](t, submitted).NavigateTo)

	after := decode[contract.SessionView](t, ts.do(t, http.MethodGet, base, "", nil))
	assert.Empty(t, after.Suggestions)
	assert.False(t, after.Visible)

	cleared := ts.do(t, http.MethodPost, base+"/clear", "", nil)
	require.Equal(t, http.StatusOK, cleared.StatusCode)

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, base, "", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, base, "", nil).StatusCode)
}

func TestSessionBadBody(t *testing.T) {
	ts := newTestServer(t, "", false)
	view := decode[contract.SessionView](t, ts.do(t, http.MethodPost, "/v1/sessions", "", nil))
	resp := ts.do(t, http.MethodPut, "/v1/sessions/"+view.ID+"/query", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWantsMsgpack(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.False(t, wantsMsgpack(req))
	req.Header.Set("Accept", "text/html, application/x-msgpack;q=0.9")
	assert.True(t, wantsMsgpack(req))
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "lion head", normalizeQuery("  lion \t head "))
	// Full-width letters fold to ASCII under NFKC.
	assert.Equal(t, "Lion", normalizeQuery("Ｌｉｏｎ"))
}

func displayNames(items []suggest.Suggestion) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.DisplayName
	}
	return out
}
