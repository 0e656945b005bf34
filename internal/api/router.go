// Package api wires the HTTP surface: one-shot suggestions, reverse
// geocoding, corpus upload and server-held search sessions.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/text/unicode/norm"

	"github.com/trailhub/trailsuggest/internal/contract"
	"github.com/trailhub/trailsuggest/internal/controller"
	"github.com/trailhub/trailsuggest/internal/health"
	"github.com/trailhub/trailsuggest/internal/session"
	"github.com/trailhub/trailsuggest/obs"
	"github.com/trailhub/trailsuggest/policy"
	"github.com/trailhub/trailsuggest/sources"
	"github.com/trailhub/trailsuggest/trails"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeMsgpack = "application/msgpack"
	defaultMaxBody     = 8 << 20
	searchPath         = "/search"
)

// Options configures the router.
type Options struct {
	// DefaultBudgetMs applies when a request carries no budget_ms.
	DefaultBudgetMs int
	// AllowUpload enables PUT /v1/trails.
	AllowUpload bool
	// MaxBodyBytes caps request bodies. Zero uses 8 MiB.
	MaxBodyBytes int64
	Logger       *log.Logger
}

// Router wires the HTTP endpoints for the suggestion service.
type Router struct {
	controller    *controller.Controller
	sessions      *session.Registry
	logger        *log.Logger
	defaultBudget int
	allowUpload   bool
	maxBody       int64
}

// NewRouter constructs the HTTP router.
func NewRouter(ctrl *controller.Controller, registry *session.Registry, opts Options) (*chi.Mux, error) {
	if ctrl == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBody
	}
	r := &Router{
		controller:    ctrl,
		sessions:      registry,
		logger:        opts.Logger,
		defaultBudget: opts.DefaultBudgetMs,
		allowUpload:   opts.AllowUpload,
		maxBody:       opts.MaxBodyBytes,
	}

	mux := chi.NewRouter()
	mux.Use(middleware.Recoverer)
	mux.Use(requestLogger(r.logger))

	mux.Get("/healthz", r.handleHealthz)
	mux.Get("/readyz", health.Readyz(ctrl))
	mux.Handle("/metrics", promhttp.Handler())

	mux.Route("/v1", func(v1 chi.Router) {
		v1.Use(traceID)
		v1.Get("/suggest", r.handleSuggest)
		v1.Get("/reverse", r.handleReverse)
		v1.Put("/trails", r.handleTrails)

		v1.Post("/sessions", r.handleSessionCreate)
		v1.Route("/sessions/{id}", func(s chi.Router) {
			s.Get("/", r.handleSessionGet)
			s.Delete("/", r.handleSessionDelete)
			s.Put("/query", r.handleSessionQuery)
			s.Post("/submit", r.handleSessionSubmit)
			s.Post("/clear", r.handleSessionClear)
		})
	})

	return mux, nil
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Router) handleSuggest(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	traceID, _ := contract.TraceIDFromContext(req.Context())

	budgetMS, err := parseInt(req.URL.Query().Get("budget_ms"), r.defaultBudget)
	if err != nil {
		writeError(w, req, http.StatusBadRequest, "invalid budget_ms")
		return
	}

	resp, err := r.controller.Suggest(req.Context(), contract.Request{
		Query:    normalizeQuery(req.URL.Query().Get("q")),
		BudgetMS: budgetMS,
		TraceID:  traceID,
	})
	obs.ObserveSuggest(resp.RetCode, time.Since(start), traceID)
	if err != nil {
		if errors.Is(err, controller.ErrBadRequest) {
			writeError(w, req, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, req, http.StatusInternalServerError, err.Error())
		return
	}

	writePayload(w, req, http.StatusOK, resp)
}

func (r *Router) handleReverse(w http.ResponseWriter, req *http.Request) {
	lon, errLon := strconv.ParseFloat(req.URL.Query().Get("lon"), 64)
	lat, errLat := strconv.ParseFloat(req.URL.Query().Get("lat"), 64)
	if errLon != nil || errLat != nil {
		writeError(w, req, http.StatusBadRequest, "lon and lat must be numbers")
		return
	}

	place, err := r.controller.Reverse(req.Context(), lon, lat)
	switch {
	case err == nil:
		writePayload(w, req, http.StatusOK, contract.ReverseResponse{
			Name:        place.Name,
			PlaceName:   place.PlaceName,
			Coordinates: place.Coordinates,
		})
	case errors.Is(err, controller.ErrBadRequest):
		writeError(w, req, http.StatusBadRequest, err.Error())
	case errors.Is(err, sources.ErrNoResults):
		writeError(w, req, http.StatusNotFound, err.Error())
	case errors.Is(err, controller.ErrGeocoderDisabled),
		errors.Is(err, policy.ErrCircuitOpen),
		errors.Is(err, policy.ErrRateLimited):
		writeError(w, req, http.StatusServiceUnavailable, err.Error())
	default:
		r.logger.Warn("reverse geocoding failed", "lon", lon, "lat", lat, "err", err)
		writeError(w, req, http.StatusBadGateway, "geocoder unavailable")
	}
}

func (r *Router) handleTrails(w http.ResponseWriter, req *http.Request) {
	if !r.allowUpload {
		writeError(w, req, http.StatusForbidden, "corpus upload disabled")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, r.maxBody))
	if err != nil {
		writeError(w, req, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	records, err := trails.ParseJSON(body)
	if err != nil {
		writeError(w, req, http.StatusBadRequest, err.Error())
		return
	}

	idx := r.controller.UpdateCorpus(records)
	updated := r.sessions.Broadcast(idx)
	r.logger.Info("corpus uploaded", "trails", idx.Len(), "sessions", updated)
	writePayload(w, req, http.StatusOK, contract.CorpusResponse{Trails: idx.Len(), Version: idx.Version()})
}

func (r *Router) handleSessionCreate(w http.ResponseWriter, req *http.Request) {
	id, s, err := r.sessions.Create()
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, session.ErrTooManySessions) {
			status = http.StatusTooManyRequests
		}
		writeError(w, req, status, err.Error())
		return
	}
	writePayload(w, req, http.StatusCreated, sessionView(id, s.Snapshot()))
}

func (r *Router) handleSessionGet(w http.ResponseWriter, req *http.Request) {
	id, s, ok := r.lookup(w, req)
	if !ok {
		return
	}
	writePayload(w, req, http.StatusOK, sessionView(id, s.Snapshot()))
}

func (r *Router) handleSessionDelete(w http.ResponseWriter, req *http.Request) {
	if err := r.sessions.Delete(chi.URLParam(req, "id")); err != nil {
		writeSessionError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleSessionQuery(w http.ResponseWriter, req *http.Request) {
	id, s, ok := r.lookup(w, req)
	if !ok {
		return
	}
	body, ok := r.decodeQuery(w, req)
	if !ok {
		return
	}
	if err := s.UpdateQuery(norm.NFKC.String(body.Query)); err != nil {
		writeSessionError(w, req, err)
		return
	}
	writePayload(w, req, http.StatusOK, sessionView(id, s.Snapshot()))
}

func (r *Router) handleSessionSubmit(w http.ResponseWriter, req *http.Request) {
	_, s, ok := r.lookup(w, req)
	if !ok {
		return
	}
	body, ok := r.decodeQuery(w, req)
	if !ok {
		return
	}
	if err := s.SubmitSearch(body.Query); err != nil {
		writeSessionError(w, req, err)
		return
	}
	writePayload(w, req, http.StatusOK, contract.SubmitResponse{
		Query:      body.Query,
		NavigateTo: SearchTarget(body.Query),
	})
}

func (r *Router) handleSessionClear(w http.ResponseWriter, req *http.Request) {
	id, s, ok := r.lookup(w, req)
	if !ok {
		return
	}
	if err := s.Clear(); err != nil {
		writeSessionError(w, req, err)
		return
	}
	writePayload(w, req, http.StatusOK, sessionView(id, s.Snapshot()))
}

func (r *Router) lookup(w http.ResponseWriter, req *http.Request) (string, *session.Session, bool) {
	id := chi.URLParam(req, "id")
	s, err := r.sessions.Get(id)
	if err != nil {
		writeSessionError(w, req, err)
		return "", nil, false
	}
	return id, s, true
}

func (r *Router) decodeQuery(w http.ResponseWriter, req *http.Request) (contract.QueryRequest, bool) {
	var body contract.QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, r.maxBody)).Decode(&body); err != nil {
		writeError(w, req, http.StatusBadRequest, "invalid body: "+err.Error())
		return body, false
	}
	return body, true
}

// SearchTarget is the navigation target for a submitted query.
func SearchTarget(query string) string {
	return searchPath + "?q=" + url.QueryEscape(query)
}

func sessionView(id string, snap session.Snapshot) contract.SessionView {
	return contract.SessionView{
		ID:          id,
		Query:       snap.Query,
		Suggestions: snap.Suggestions,
		Visible:     snap.Visible,
		State:       snap.State.String(),
		Generation:  snap.Generation,
	}
}

func writeSessionError(w http.ResponseWriter, req *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, req, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrClosed):
		writeError(w, req, http.StatusGone, err.Error())
	default:
		writeError(w, req, http.StatusInternalServerError, err.Error())
	}
}

// traceID takes the trace id from the header or the trace_id parameter,
// generating one when absent, and echoes it back.
func traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id := req.Header.Get(contract.TraceIDHeader)
		if id == "" {
			id = req.URL.Query().Get("trace_id")
		}
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(contract.TraceIDHeader, id)
		next.ServeHTTP(w, req.WithContext(contract.WithTraceID(req.Context(), id)))
	})
}

func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", status,
				"duration", time.Since(start),
				"trace_id", ww.Header().Get(contract.TraceIDHeader),
			)
		})
	}
}

func normalizeQuery(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return q
	}
	q = norm.NFKC.String(q)
	fields := strings.Fields(q)
	return strings.Join(fields, " ")
}

func parseInt(value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	num, err := strconv.Atoi(value)
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid integer %q", value)
	}
	if num == 0 {
		return fallback, nil
	}
	return num, nil
}

func wantsMsgpack(req *http.Request) bool {
	for _, part := range strings.Split(req.Header.Get("Accept"), ",") {
		mediaType, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(mediaType, contentTypeMsgpack) || strings.EqualFold(mediaType, "application/x-msgpack") {
			return true
		}
	}
	return false
}

// writePayload encodes payload as msgpack when the client accepts it and as
// JSON otherwise.
func writePayload(w http.ResponseWriter, req *http.Request, status int, payload any) {
	if wantsMsgpack(req) {
		body, err := msgpack.Marshal(payload)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", contentTypeMsgpack)
		w.WriteHeader(status)
		_, _ = w.Write(body)
		return
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func writeError(w http.ResponseWriter, req *http.Request, status int, msg string) {
	traceID, _ := contract.TraceIDFromContext(req.Context())
	writePayload(w, req, status, contract.ErrorResponse{Error: msg, TraceID: traceID})
}
