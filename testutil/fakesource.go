// Package testutil provides an httptest-backed geocoder stand-in.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"
)

// FakeResponse describes the behaviour of a single fake upstream call.
type FakeResponse struct {
	Delay  time.Duration
	Status int
	Body   string
}

// FakeSource is a controllable httptest server simulating the geocoding
// provider with scripted latency, status codes and bodies. Every request URL
// is recorded so tests can count network calls and inspect their queries.
type FakeSource struct {
	server    *httptest.Server
	mu        sync.Mutex
	responses []FakeResponse
	index     int
	calls     int
	requests  []*url.URL
}

// NewFakeSource constructs a FakeSource with the provided response plan.
// Once the plan is exhausted the last response is reused.
func NewFakeSource(responses ...FakeResponse) *FakeSource {
	if len(responses) == 0 {
		responses = []FakeResponse{{Status: http.StatusOK}}
	}

	fs := &FakeSource{
		responses: responses,
	}

	fs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := fs.nextResponse(r.URL)
		if resp.Delay > 0 {
			timer := time.NewTimer(resp.Delay)
			select {
			case <-timer.C:
			case <-r.Context().Done():
				timer.Stop()
				return
			}
		}

		status := resp.Status
		if status == 0 {
			status = http.StatusOK
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if resp.Body != "" {
			_, _ = w.Write([]byte(resp.Body))
		}
	}))

	return fs
}

func (f *FakeSource) nextResponse(u *url.URL) FakeResponse {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	copied := *u
	f.requests = append(f.requests, &copied)

	if f.index >= len(f.responses) {
		return f.responses[len(f.responses)-1]
	}
	resp := f.responses[f.index]
	f.index++
	return resp
}

// URL returns the base URL for the fake source.
func (f *FakeSource) URL() string {
	if f == nil || f.server == nil {
		return ""
	}
	return f.server.URL
}

// Client returns an http.Client wired to the fake server.
func (f *FakeSource) Client() *http.Client {
	return f.server.Client()
}

// Calls returns the number of requests handled so far.
func (f *FakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Requests returns copies of the request URLs seen so far, oldest first.
func (f *FakeSource) Requests() []*url.URL {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*url.URL, len(f.requests))
	copy(out, f.requests)
	return out
}

// LastRequest returns the most recent request URL, or nil.
func (f *FakeSource) LastRequest() *url.URL {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

// SetResponses replaces the response plan and resets the call counters.
func (f *FakeSource) SetResponses(responses ...FakeResponse) {
	if f == nil {
		return
	}
	if len(responses) == 0 {
		responses = []FakeResponse{{Status: http.StatusOK}}
	}
	f.mu.Lock()
	f.responses = responses
	f.index = 0
	f.calls = 0
	f.requests = nil
	f.mu.Unlock()
}

// Close terminates the hosted httptest server.
func (f *FakeSource) Close() {
	if f == nil || f.server == nil {
		return
	}
	f.server.Close()
}
