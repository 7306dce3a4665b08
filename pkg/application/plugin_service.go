package application

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
)

// Plugin statuses reported by PluginService.
const (
	StatusAvailable = "available"
	StatusMissing   = "missing"
	StatusInvalid   = "invalid"
)

// PluginInfo represents enriched plugin information.
type PluginInfo struct {
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

// ValidationResult holds the result of plugin validation.
type ValidationResult struct {
	Name  string `json:"name"`
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// SettingsSaver persists plugin settings after they change.
type SettingsSaver func(*plugin.Settings) error

// Unloader stops a running plugin.
type Unloader interface {
	Unload(id plugin.ID) error
}

// PluginServiceOption configures a PluginService.
type PluginServiceOption func(*PluginService)

// WithSettingsSaver persists enable, disable and uninstall changes. Without
// it they only last for the life of the service.
func WithSettingsSaver(save SettingsSaver) PluginServiceOption {
	return func(s *PluginService) { s.save = save }
}

// WithUnloader stops a plugin before it is uninstalled.
func WithUnloader(u Unloader) PluginServiceOption {
	return func(s *PluginService) { s.unloader = u }
}

// PluginService inspects and manages the plugins installed under a root
// directory.
type PluginService struct {
	root     string
	settings *plugin.Settings
	save     SettingsSaver
	unloader Unloader

	// mu serializes installs and settings changes.
	mu sync.Mutex
}

// NewPluginService creates a new PluginService. settings may be nil, in
// which case every plugin is enabled and Enable/Disable fail.
func NewPluginService(root string, settings *plugin.Settings, opts ...PluginServiceOption) *PluginService {
	s := &PluginService{root: root, settings: settings}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Root returns the scanned plugin directory.
func (s *PluginService) Root() string {
	return s.root
}

// ListPlugins returns every plugin directory under the root with status
// information, sorted by directory name. A missing root yields no plugins.
func (s *PluginService) ListPlugins() ([]PluginInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read plugin root: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	result := make([]PluginInfo, 0, len(names))
	for _, name := range names {
		result = append(result, s.inspect(filepath.Join(s.root, name)))
	}
	return result, nil
}

// Info resolves a plugin by folder name, manifest id or manifest name.
func (s *PluginService) Info(nameOrID string) (*PluginInfo, error) {
	dir, err := plugin.ResolveDir(s.root, nameOrID)
	if err != nil {
		return nil, err
	}
	info := s.inspect(dir)
	return &info, nil
}

// ValidatePlugin checks that a plugin's entry point exists and can be
// started by the host.
func (s *PluginService) ValidatePlugin(nameOrID string) (*ValidationResult, error) {
	info, err := s.Info(nameOrID)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{Name: info.ID}
	if info.Status != StatusAvailable {
		result.Error = info.Error
		return result, nil
	}

	stat, err := os.Stat(info.Main)
	if err != nil {
		result.Error = fmt.Sprintf("entry point not found: %s", info.Main)
		return result, nil
	}
	if stat.Mode()&0111 == 0 {
		result.Error = "entry point is not executable"
		return result, nil
	}

	result.Valid = true
	return result, nil
}

func (s *PluginService) inspect(dir string) PluginInfo {
	folder := filepath.Base(dir)
	info := PluginInfo{
		ID:   folder,
		Name: folder,
		Dir:  dir,
	}

	m, err := plugin.LoadManifest(dir)
	if err != nil {
		info.Status = StatusInvalid
		info.Error = err.Error()
		info.Enabled = s.settings.IsEnabled(plugin.ID(folder))
		return info
	}

	if m.PluginID() != "" {
		info.ID = m.PluginID()
	}
	if m.Name != "" {
		info.Name = m.Name
	}
	info.Version = m.Version
	info.Description = m.Description
	info.Enabled = s.settings.IsEnabled(plugin.ID(info.ID))

	if m.Main == "" {
		info.Status = StatusInvalid
		info.Error = "manifest has no main entry"
		return info
	}

	info.Main = filepath.Join(dir, filepath.FromSlash(m.Main))
	if _, err := os.Stat(info.Main); err != nil {
		info.Status = StatusMissing
		info.Error = fmt.Sprintf("entry point not found: %s", m.Main)
		return info
	}

	info.Status = StatusAvailable
	return info
}
