// Package config loads the hot-reload settings file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lokus-ai/lokus-plugins/pkg/domain/events"
	"github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the settings file name inside the Lokus home directory.
	FileName = "hotreload.yaml"

	// DefaultPluginDir is the plugin root relative to the user's home.
	DefaultPluginDir = ".lokus/plugins"

	// DefaultHistoryMax is the number of events kept in the reload history.
	DefaultHistoryMax = 1000
)

// Config stores hot-reload settings. Every field is optional.
type Config struct {
	PluginDir string          `yaml:"plugin_dir,omitempty"`
	Debounce  time.Duration   `yaml:"debounce,omitempty"`
	Marker    string          `yaml:"marker,omitempty"`
	Suffixes  []string        `yaml:"suffixes,omitempty"`
	Ignore    []string        `yaml:"ignore,omitempty"`
	Listen    string          `yaml:"listen,omitempty"`
	History   string          `yaml:"history,omitempty"`
	// HistoryMax caps the recorded events kept across restarts; 0 keeps all.
	HistoryMax int             `yaml:"history_max,omitempty"`
	Reload     ReloadConfig    `yaml:"reload"`
	Plugins    plugin.Settings `yaml:"plugins"`
	// Notify lists outgoing webhooks that receive hot-reload events.
	Notify []events.WebhookEndpoint `yaml:"notify,omitempty"`
}

// ReloadConfig tunes plugin reload retries.
type ReloadConfig struct {
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	Attempts int           `yaml:"attempts,omitempty"`
	Backoff  time.Duration `yaml:"backoff,omitempty"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		PluginDir:  DefaultPluginDir,
		Debounce:   500 * time.Millisecond,
		HistoryMax: DefaultHistoryMax,
		Reload: ReloadConfig{
			Attempts: 2,
			Backoff:  200 * time.Millisecond,
		},
		Plugins: *plugin.NewSettings(),
	}
}

// DefaultPath returns ~/.lokus/hotreload.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".lokus", FileName), nil
}

// Load reads the settings file at path. A missing file yields the defaults;
// fields absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	// #nosec G304 -- path is chosen by the user
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating the parent directory.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// SavePlugins replaces the plugins section of the settings file at path and
// leaves every other key as written.
func SavePlugins(path string, settings plugin.Settings) error {
	doc := map[string]any{}
	// #nosec G304 -- path is chosen by the user
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("failed to read config: %w", err)
	}

	doc["plugins"] = settings
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, out, 0600)
}

// Validate rejects negative durations and attempt counts.
func (c *Config) Validate() error {
	if c.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative: %s", c.Debounce)
	}
	if c.Reload.Attempts < 0 {
		return fmt.Errorf("reload.attempts must not be negative: %d", c.Reload.Attempts)
	}
	if c.HistoryMax < 0 {
		return fmt.Errorf("history_max must not be negative: %d", c.HistoryMax)
	}
	if c.Reload.Timeout < 0 || c.Reload.Backoff < 0 {
		return errors.New("reload durations must not be negative")
	}
	return nil
}

// ResolveRoot returns the absolute plugin root. A relative plugin_dir is
// taken relative to the user's home directory.
func (c *Config) ResolveRoot() (string, error) {
	dir := c.PluginDir
	if dir == "" {
		dir = DefaultPluginDir
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, filepath.FromSlash(dir)), nil
}

// HistoryDir returns the directory the reload history file is kept in.
// It defaults to the parent of the plugin root.
func (c *Config) HistoryDir() (string, error) {
	if c.History != "" {
		return c.History, nil
	}
	root, err := c.ResolveRoot()
	if err != nil {
		return "", err
	}
	return filepath.Dir(root), nil
}

// Classifier builds the path classifier for plugins installed under root.
// Without an explicit marker the root's own directory name is used, which is
// "plugins" for the default location.
func (c *Config) Classifier(root string) plugin.Classifier {
	marker := c.Marker
	if marker == "" && root != "" {
		marker = filepath.Base(root)
	}
	return plugin.NewClassifier(marker, c.Suffixes)
}
