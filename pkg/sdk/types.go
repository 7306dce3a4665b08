package sdk

import "time"

// Plugin statuses.
const (
	StatusAvailable = "available"
	StatusMissing   = "missing"
	StatusInvalid   = "invalid"
)

// Reload outcomes.
const (
	OutcomeReloaded = "reloaded"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
)

// Plugin is an installed plugin as reported by the server.
type Plugin struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Dir         string `json:"dir"`
	Main        string `json:"main,omitempty"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// Installed describes a plugin placed in the plugin root by Install.
type Installed struct {
	ID  string `json:"id"`
	Dir string `json:"dir"`
}

// Validation is the result of validating one plugin.
type Validation struct {
	Name  string `json:"name"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ReloadResult is the outcome of reloading one plugin.
type ReloadResult struct {
	Plugin     string `json:"plugin"`
	Outcome    string `json:"outcome"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// OK reports whether the plugin was reloaded.
func (r ReloadResult) OK() bool {
	return r.Outcome == OutcomeReloaded
}

// WatchStatus describes the watcher and every installed plugin.
type WatchStatus struct {
	Root     string         `json:"root"`
	State    string         `json:"state"`
	Pending  []string       `json:"pending"`
	InFlight []string       `json:"in_flight"`
	Plugins  []PluginStatus `json:"plugins"`
}

type PluginStatus struct {
	ID       string    `json:"id"`
	Version  string    `json:"version,omitempty"`
	Enabled  bool      `json:"enabled"`
	Status   string    `json:"status"`
	Loaded   bool      `json:"loaded"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Event is one recorded hot-reload event.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Plugin     string            `json:"plugin,omitempty"`
	CycleID    string            `json:"cycle_id,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	DurationMS int64             `json:"duration_ms,omitempty"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Classification maps a changed path to the plugin it would reload. Plugin
// is empty when the path triggers nothing.
type Classification struct {
	Path   string `json:"path"`
	Plugin string `json:"plugin,omitempty"`
}
