// Package dashboard serves the hot-reload status page, its JSON API and the
// live event streams over HTTP.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lokus-ai/lokus-plugins/pkg/domain/events"
	"github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
)

// DefaultHistoryLimit bounds /api/history when no limit is given.
const DefaultHistoryLimit = 50

// DataProvider provides data for the dashboard.
type DataProvider interface {
	Snapshot() (*Snapshot, error)
	History(limit int) ([]*events.Event, error)
	Reload(ctx context.Context, id plugin.ID) plugin.ReloadResult
}

// Snapshot is the watcher and plugin state at one point in time.
type Snapshot struct {
	Root     string         `json:"root"`
	State    string         `json:"state"`
	Pending  []string       `json:"pending"`
	InFlight []string       `json:"in_flight"`
	Plugins  []PluginStatus `json:"plugins"`
}

// PluginStatus describes one installed plugin.
type PluginStatus struct {
	ID       string    `json:"id"`
	Version  string    `json:"version,omitempty"`
	Enabled  bool      `json:"enabled"`
	Status   string    `json:"status"`
	Loaded   bool      `json:"loaded"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Options configures the optional parts of the server.
type Options struct {
	// Events and Socket stream live events; nil leaves the route unmounted.
	Events http.Handler
	Socket http.Handler
	// Secret, when set, is required to sign manual reload requests.
	Secret string
	Logger *slog.Logger
}

// Server is the dashboard HTTP server.
type Server struct {
	addr     string
	provider DataProvider
	opts     Options
	logger   *slog.Logger
	server   *http.Server
	tmpl     *template.Template
}

// NewServer creates a new dashboard server.
func NewServer(addr string, provider DataProvider, opts Options) (*Server, error) {
	funcMap := template.FuncMap{
		"statusClass": statusClass,
		"formatTime":  formatTime,
	}

	tmpl, err := template.New("index.html").Funcs(funcMap).Parse(indexTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:     addr,
		provider: provider,
		opts:     opts,
		logger:   logger,
		tmpl:     tmpl,
	}, nil
}

// Handler returns the routes served by the dashboard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/status", s.handleAPIStatus)
	mux.HandleFunc("GET /api/history", s.handleAPIHistory)
	mux.HandleFunc("POST /api/plugins/{id}/reload", s.handleAPIReload)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.opts.Events != nil {
		mux.Handle("GET /events", s.opts.Events)
	}
	if s.opts.Socket != nil {
		mux.Handle("GET /ws", s.opts.Socket)
	}
	return mux
}

// Start serves until Shutdown is called. It returns http.ErrServerClosed
// after a graceful shutdown.
func (s *Server) Start() error {
	// No write timeout: /events responses stay open for the whole session.
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
	}

	s.logger.Info("dashboard server starting", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// PageData holds data for template rendering.
type PageData struct {
	Title    string
	Snapshot *Snapshot
	Recent   []*events.Event
	Error    string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := PageData{Title: "Plugin hot reload"}

	snap, err := s.provider.Snapshot()
	if err != nil {
		data.Error = err.Error()
	} else {
		data.Snapshot = snap
	}

	recent, _ := s.provider.History(10)
	data.Recent = recent

	s.render(w, data)
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.provider.Snapshot()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	limit := DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	recent, err := s.provider.History(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if recent == nil {
		recent = []*events.Event{}
	}
	writeJSON(w, http.StatusOK, recent)
}

// reloadResponse is the body returned by a manual reload.
type reloadResponse struct {
	Plugin     string `json:"plugin"`
	Outcome    string `json:"outcome"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleAPIReload(w http.ResponseWriter, r *http.Request) {
	if s.opts.Secret != "" && !ValidateSignature(w, r, s.opts.Secret) {
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	id := plugin.ID(r.PathValue("id"))
	res := s.provider.Reload(r.Context(), id)
	s.logger.Info("manual reload", "plugin", id, "outcome", res.Outcome)

	status := http.StatusOK
	switch res.Outcome {
	case plugin.OutcomeSkipped:
		status = http.StatusConflict
	case plugin.OutcomeFailed:
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, reloadResponse{
		Plugin:     string(res.Plugin),
		Outcome:    string(res.Outcome),
		DurationMS: res.Duration.Milliseconds(),
		Error:      res.Message(),
	})
}

func (s *Server) render(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.Execute(w, data); err != nil {
		s.logger.Error("template error", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Template helper functions
func statusClass(eventType string) string {
	switch eventType {
	case events.EventTypeReloaded:
		return "status-done"
	case events.EventTypeReloadFailed:
		return "status-failed"
	case events.EventTypeReloadSkipped:
		return "status-skipped"
	default:
		return "status-info"
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

const indexTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
td, th { padding: 4px 10px; border-bottom: 1px solid #ddd; text-align: left; }
.status-done { color: #2e7d32; }
.status-failed { color: #c62828; }
.status-skipped { color: #ef6c00; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{if .Error}}<p class="status-failed">{{.Error}}</p>{{end}}
{{with .Snapshot}}
<p>Watching <code>{{.Root}}</code>: <strong>{{.State}}</strong></p>
{{if .Pending}}<p>Pending: {{range .Pending}}{{.}} {{end}}</p>{{end}}
{{if .InFlight}}<p>Reloading: {{range .InFlight}}{{.}} {{end}}</p>{{end}}
<h2>Plugins</h2>
<table>
<tr><th>Plugin</th><th>Version</th><th>Status</th><th>Loaded</th></tr>
{{range .Plugins}}<tr><td>{{.ID}}</td><td>{{.Version}}</td><td>{{.Status}}{{if not .Enabled}} (disabled){{end}}</td><td>{{if .Loaded}}{{formatTime .LoadedAt}}{{else}}-{{end}}</td></tr>
{{end}}
</table>
{{end}}
<h2>Recent events</h2>
<table>
<tr><th>Time</th><th>Event</th><th>Plugin</th><th>Error</th></tr>
{{range .Recent}}<tr class="{{statusClass .Type}}"><td>{{formatTime .Timestamp}}</td><td>{{.Type}}</td><td>{{.Plugin}}</td><td>{{.Error}}</td></tr>
{{end}}
</table>
</body>
</html>
`
