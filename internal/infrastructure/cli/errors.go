package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/lokus-ai/lokus-plugins/internal/infrastructure/watch"
	domainPlugin "github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
	"github.com/lokus-ai/lokus-plugins/pkg/plugin"
)

// CLIError wraps domain errors with user-facing messages and actionable hints.
type CLIError struct {
	Message  string
	Hint     string
	Err      error
	ExitCode int
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a CLIError with a default exit code of 1.
func NewCLIError(msg, hint string, err error) *CLIError {
	return &CLIError{
		Message:  msg,
		Hint:     hint,
		Err:      err,
		ExitCode: 1,
	}
}

// MapError converts known domain errors into CLIErrors with actionable hints.
// Unmapped errors are returned as-is.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return err
	}

	switch {
	case errors.Is(err, domainPlugin.ErrPluginNotFound):
		return NewCLIError("plugin not found", "Run 'lokus-plugins plugin list' to see installed plugins", err)
	case errors.Is(err, domainPlugin.ErrPluginExists):
		return NewCLIError("plugin already installed", "Run 'lokus-plugins plugin uninstall' first to replace it", err)
	case errors.Is(err, domainPlugin.ErrInvalidManifest):
		return NewCLIError("plugin manifest is not valid", "Give plugin.json a name and a main entry inside the plugin directory", err)
	case errors.Is(err, domainPlugin.ErrManifestNotFound):
		return NewCLIError("plugin manifest not found", "Add a plugin.json with name and main to the plugin directory", err)
	case errors.Is(err, plugin.ErrPluginDisabled):
		return NewCLIError("plugin is disabled", "Add the plugin id to plugins.enabled in hotreload.yaml", err)
	case errors.Is(err, plugin.ErrNotExecutable):
		return NewCLIError("plugin entry point is not executable", "Rebuild the plugin or run chmod +x on its main file", err)
	case errors.Is(err, watch.ErrWatchLost):
		return NewCLIError("plugin watch stopped", "Raise fs.inotify.max_user_watches or the open file limit, then restart", err)
	case errors.Is(err, watch.ErrRootNotDirectory):
		return NewCLIError("plugin root is not a directory", "Point --plugin-dir or plugin_dir at a directory", err)
	case errors.Is(err, os.ErrNotExist):
		return NewCLIError("plugin root does not exist", "Create it or point --plugin-dir at an existing directory", err)
	}

	return err
}
