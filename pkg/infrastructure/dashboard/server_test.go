package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lokus-ai/lokus-plugins/pkg/domain/events"
	"github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
)

// mockProvider implements DataProvider for testing.
type mockProvider struct {
	snap    *Snapshot
	history []*events.Event
	err     error
	outcome plugin.Outcome

	mu       sync.Mutex
	reloaded []plugin.ID
	limit    int
}

func (m *mockProvider) Snapshot() (*Snapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.snap, nil
}

func (m *mockProvider) History(limit int) ([]*events.Event, error) {
	m.mu.Lock()
	m.limit = limit
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.history, nil
}

func (m *mockProvider) Reload(_ context.Context, id plugin.ID) plugin.ReloadResult {
	m.mu.Lock()
	m.reloaded = append(m.reloaded, id)
	m.mu.Unlock()

	res := plugin.ReloadResult{Plugin: id, Outcome: plugin.OutcomeReloaded, Duration: 5 * time.Millisecond}
	if m.outcome != "" {
		res.Outcome = m.outcome
	}
	if res.Outcome == plugin.OutcomeFailed {
		res.Err = &plugin.ReloadError{Plugin: id, Cause: errors.New("boom")}
	}
	return res
}

func newTestServer(t *testing.T, provider DataProvider, opts Options) *Server {
	t.Helper()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	server, err := NewServer(":0", provider, opts)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return server
}

func sampleProvider() *mockProvider {
	return &mockProvider{
		snap: &Snapshot{
			Root:    "/home/u/.lokus/plugins",
			State:   "running",
			Pending: []string{"foo"},
			Plugins: []PluginStatus{
				{ID: "foo", Version: "1.0.0", Enabled: true, Status: "available", Loaded: true, LoadedAt: time.Now()},
				{ID: "bar", Status: "invalid", Error: "manifest not found"},
			},
		},
		history: []*events.Event{
			{ID: "1", Type: events.EventTypeReloadFailed, Plugin: "bar", Error: "boom", Timestamp: time.Now()},
		},
	}
}

func TestNewServer(t *testing.T) {
	server := newTestServer(t, &mockProvider{}, Options{})
	if server.addr != ":0" {
		t.Errorf("Expected addr :0, got %s", server.addr)
	}
	if err := server.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown before Start should be a no-op, got %v", err)
	}
}

func TestHandleIndex(t *testing.T) {
	server := newTestServer(t, sampleProvider(), Options{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"/home/u/.lokus/plugins", "foo", "1.0.0", "status-failed", "(disabled)"} {
		if !strings.Contains(body, want) {
			t.Errorf("index page missing %q", want)
		}
	}
}

func TestHandleIndex_ProviderError(t *testing.T) {
	server := newTestServer(t, &mockProvider{err: errors.New("no root")}, Options{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "no root") {
		t.Errorf("expected the error rendered on the page, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandleAPIStatus(t *testing.T) {
	server := newTestServer(t, sampleProvider(), Options{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.State != "running" || len(snap.Plugins) != 2 || snap.Pending[0] != "foo" {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	failing := newTestServer(t, &mockProvider{err: errors.New("down")}, Options{})
	rec = httptest.NewRecorder()
	failing.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", rec.Code)
	}
}

func TestHandleAPIHistory(t *testing.T) {
	provider := sampleProvider()
	server := newTestServer(t, provider, Options{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?limit=3", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if provider.limit != 3 {
		t.Errorf("expected limit 3, got %d", provider.limit)
	}
	var list []events.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Errorf("unexpected history %s (%v)", rec.Body.String(), err)
	}

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if provider.limit != DefaultHistoryLimit {
		t.Errorf("expected default limit, got %d", provider.limit)
	}

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?limit=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestHandleAPIHistory_Empty(t *testing.T) {
	server := newTestServer(t, &mockProvider{}, Options{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected an empty list, got %q", rec.Body.String())
	}
}

func TestHandleAPIReload(t *testing.T) {
	tests := []struct {
		outcome plugin.Outcome
		status  int
	}{
		{plugin.OutcomeReloaded, http.StatusOK},
		{plugin.OutcomeSkipped, http.StatusConflict},
		{plugin.OutcomeFailed, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			provider := &mockProvider{outcome: tt.outcome}
			server := newTestServer(t, provider, Options{})

			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/plugins/foo/reload", nil))

			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, rec.Code)
			}
			var resp reloadResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Plugin != "foo" || resp.Outcome != string(tt.outcome) {
				t.Errorf("unexpected response %+v", resp)
			}
			if tt.outcome == plugin.OutcomeFailed && resp.Error == "" {
				t.Error("failed reload must carry its error")
			}
		})
	}
}

func TestHandleAPIReload_MethodNotAllowed(t *testing.T) {
	server := newTestServer(t, &mockProvider{}, Options{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/plugins/foo/reload", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rec.Code)
	}
}

func TestHandleAPIReload_Signature(t *testing.T) {
	provider := &mockProvider{}
	server := newTestServer(t, provider, Options{Secret: "s3cret"})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/plugins/foo/reload", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unsigned request: expected 401, got %d", rec.Code)
	}

	body := `{"reason":"build finished"}`
	req := httptest.NewRequest(http.MethodPost, "/api/plugins/foo/reload", strings.NewReader(body))
	req.Header.Set(SignatureHeader, Sign(http.MethodPost, "/api/plugins/foo/reload", []byte(body), "wrong"))
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad signature: expected 401, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/plugins/foo/reload", strings.NewReader(body))
	req.Header.Set(SignatureHeader, Sign(http.MethodPost, "/api/plugins/foo/reload", []byte(body), "s3cret"))
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("signed request: expected 200, got %d", rec.Code)
	}
	if len(provider.reloaded) != 1 {
		t.Errorf("expected exactly one reload, got %v", provider.reloaded)
	}

	// The same signature sent to another plugin's endpoint is refused.
	req = httptest.NewRequest(http.MethodPost, "/api/plugins/bar/reload", strings.NewReader(body))
	req.Header.Set(SignatureHeader, Sign(http.MethodPost, "/api/plugins/foo/reload", []byte(body), "s3cret"))
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("replayed signature: expected 401, got %d", rec.Code)
	}
	if len(provider.reloaded) != 1 {
		t.Errorf("replay must not reload, got %v", provider.reloaded)
	}
}

func TestHandler_StreamRoutes(t *testing.T) {
	stream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	})

	bare := newTestServer(t, &mockProvider{}, Options{})
	rec := httptest.NewRecorder()
	bare.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unmounted stream: expected 404, got %d", rec.Code)
	}

	server := newTestServer(t, &mockProvider{}, Options{Events: stream, Socket: stream})
	for _, path := range []string{"/events", "/ws"} {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Body.String() != path {
			t.Errorf("%s: expected the stream handler, got %q", path, rec.Body.String())
		}
	}
}

func TestHealth(t *testing.T) {
	server := newTestServer(t, &mockProvider{}, Options{})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func TestStatusClass(t *testing.T) {
	tests := map[string]string{
		events.EventTypeReloaded:       "status-done",
		events.EventTypeReloadFailed:   "status-failed",
		events.EventTypeReloadSkipped:  "status-skipped",
		events.EventTypeWatcherStarted: "status-info",
	}
	for in, want := range tests {
		if got := statusClass(in); got != want {
			t.Errorf("statusClass(%q) = %q, want %q", in, got, want)
		}
	}
	if formatTime(time.Time{}) != "-" {
		t.Error("zero time should render as -")
	}
}
