package wiring

import (
	"log/slog"
	"path/filepath"

	"github.com/lokus-ai/lokus-plugins/internal/infrastructure/config"
	"github.com/lokus-ai/lokus-plugins/internal/infrastructure/notify"
	"github.com/lokus-ai/lokus-plugins/internal/infrastructure/watch"
	"github.com/lokus-ai/lokus-plugins/pkg/application"
	domainPlugin "github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
	"github.com/lokus-ai/lokus-plugins/pkg/plugin"
)

// Options customises service construction.
type Options struct {
	// Launcher starts plugin executables. Nil uses go-plugin.
	Launcher plugin.Launcher
	Logger   *slog.Logger
	// ConfigPath is the settings file enable, disable and uninstall write
	// to. Empty keeps those changes in memory.
	ConfigPath string
}

// AppServices exposes the application layer services wired together with a workspace.
type AppServices struct {
	Workspace  *Workspace
	Plugins    *application.PluginService
	Loader     *plugin.Loader
	Reloader   application.Reloader
	Source     *watch.FSNotifySource
	Controller *application.HotReloadController
	// Notifier is nil when no notification endpoint is enabled.
	Notifier *notify.Notifier
}

// BuildAppServices constructs the hot-reload pipeline from cfg:
// fsnotify source -> controller -> resilient reloader -> go-plugin loader,
// with every event recorded in the reload history.
func BuildAppServices(cfg *config.Config, opts Options) (*AppServices, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	workspace, err := NewWorkspace(cfg)
	if err != nil {
		return nil, err
	}
	cfg = workspace.Config

	source, err := watch.NewFSNotifySource(watch.Options{
		Ignore: cfg.Ignore,
		Logger: logger.With("component", "watch"),
	})
	if err != nil {
		return nil, err
	}

	loader := plugin.NewLoader(workspace.Root, plugin.LoaderOptions{
		Settings: &cfg.Plugins,
		Launcher: opts.Launcher,
		Logger:   logger.With("component", "loader"),
	})
	reloader := plugin.NewResilientReloader(loader, plugin.ResilienceConfig{
		MaxAttempts:  cfg.Reload.Attempts,
		InitialDelay: cfg.Reload.Backoff,
		Timeout:      cfg.Reload.Timeout,
	})

	controller, err := application.NewHotReloadController(source, application.StaticRoot(workspace.Root), reloader, application.HotReloadOptions{
		Debounce:   cfg.Debounce,
		Classifier: cfg.Classifier(workspace.Root),
		Publisher:  workspace.Publisher,
		Logger:     logger.With("component", "hotreload"),
	})
	if err != nil {
		return nil, err
	}

	var notifier *notify.Notifier
	if len(cfg.Notify) > 0 {
		deadLetters := notify.NewDeadLetterStore(filepath.Join(filepath.Dir(workspace.History.Path()), notify.DeadLetterFile))
		notifier, err = notify.NewNotifier(cfg.Notify, deadLetters, logger.With("component", "notify"))
		if err != nil {
			return nil, err
		}
		if len(notifier.Endpoints()) == 0 {
			notifier = nil
		} else {
			workspace.Publisher.Subscribe(notifier.Handler())
		}
	}

	pluginOpts := []application.PluginServiceOption{application.WithUnloader(loader)}
	if opts.ConfigPath != "" {
		path := opts.ConfigPath
		pluginOpts = append(pluginOpts, application.WithSettingsSaver(func(s *domainPlugin.Settings) error {
			return config.SavePlugins(path, *s)
		}))
	}

	return &AppServices{
		Workspace:  workspace,
		Plugins:    application.NewPluginService(workspace.Root, &cfg.Plugins, pluginOpts...),
		Loader:     loader,
		Reloader:   reloader,
		Source:     source,
		Controller: controller,
		Notifier:   notifier,
	}, nil
}

// Close stops watching, kills every plugin process and waits for pending
// notifications.
func (s *AppServices) Close() {
	s.Controller.Stop()
	s.Loader.Cleanup()
	if s.Notifier != nil {
		s.Notifier.Wait()
	}
}
