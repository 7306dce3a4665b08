package cli

import (
	"log/slog"
	"path/filepath"

	"github.com/lokus-ai/lokus-plugins/internal/infrastructure/config"
	"github.com/lokus-ai/lokus-plugins/internal/infrastructure/wiring"
	"github.com/lokus-ai/lokus-plugins/pkg/plugin"
)

// pluginLauncher starts plugin processes; nil selects go-plugin.
var pluginLauncher plugin.Launcher

// loadConfig reads the settings file selected by --config and applies
// --plugin-dir on top.
func loadConfig() (*config.Config, error) {
	path, err := settingsPath()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, NewCLIError("failed to load settings", "Check "+path+" for YAML errors", err)
	}
	if pluginDir != "" {
		// the flag is relative to the working directory, not the home
		abs, err := filepath.Abs(pluginDir)
		if err != nil {
			return nil, err
		}
		cfg.PluginDir = abs
	}
	return cfg, nil
}

// settingsPath returns --config or the default settings file.
func settingsPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DefaultPath()
}

func loadServices(cfg *config.Config) (*wiring.AppServices, error) {
	path, err := settingsPath()
	if err != nil {
		return nil, err
	}
	return wiring.BuildAppServices(cfg, wiring.Options{
		Launcher:   pluginLauncher,
		Logger:     slog.Default(),
		ConfigPath: path,
	})
}

func loadServicesFromFlags() (*wiring.AppServices, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return loadServices(cfg)
}
