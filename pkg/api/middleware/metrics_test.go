package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type recordedRequest struct {
	method string
	path   string
	status string
}

type fakeRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
	active   int
}

func (f *fakeRecorder) RecordHTTPRequest(method, path, status string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{method, path, status})
}

func (f *fakeRecorder) IncActiveConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active++
}

func (f *fakeRecorder) DecActiveConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--
}

func TestMetrics_RecordsRequest(t *testing.T) {
	recorder := &fakeRecorder{}
	handler := Metrics(recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/workflows", nil))

	if len(recorder.requests) != 1 {
		t.Fatalf("expected 1 recorded request, got %d", len(recorder.requests))
	}
	got := recorder.requests[0]
	if got.method != http.MethodPost || got.path != "/api/v1/workflows" || got.status != "201" {
		t.Errorf("unexpected record: %+v", got)
	}
	if recorder.active != 0 {
		t.Errorf("active connections not balanced: %d", recorder.active)
	}
}

func TestMetrics_SkipsMetricsEndpoint(t *testing.T) {
	recorder := &fakeRecorder{}
	handler := Metrics(recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if len(recorder.requests) != 0 {
		t.Errorf("expected no recording for /metrics, got %d", len(recorder.requests))
	}
}

func TestMetrics_RecordsPanicAs500(t *testing.T) {
	recorder := &fakeRecorder{}
	handler := Metrics(recorder)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil))
	}()

	if len(recorder.requests) != 1 {
		t.Fatalf("expected 1 recorded request, got %d", len(recorder.requests))
	}
	if recorder.requests[0].status != "500" {
		t.Errorf("expected status 500, got %s", recorder.requests[0].status)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/workflows", "/api/v1/workflows"},
		{"/api/v1/workflows/4f6f6c64-1111-2222-3333-444455556666", "/api/v1/workflows/:id"},
		{"/api/v1/workflows/12345/steps/validate/result", "/api/v1/workflows/:id/steps/validate/result"},
		{"/health", "/health"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
