package cli

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/lokus-ai/lokus-plugins/internal/infrastructure/watch"
	domainPlugin "github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
	"github.com/lokus-ai/lokus-plugins/pkg/plugin"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCLI  bool
		wantHint string
	}{
		{"nil", nil, false, ""},
		{"unknown", errors.New("boom"), false, ""},
		{"not found", fmt.Errorf("resolve: %w", domainPlugin.ErrPluginNotFound), true, "Run 'lokus-plugins plugin list' to see installed plugins"},
		{"exists", fmt.Errorf("%w: foo", domainPlugin.ErrPluginExists), true, "Run 'lokus-plugins plugin uninstall' first to replace it"},
		{"bad manifest", fmt.Errorf("%w: name is required", domainPlugin.ErrInvalidManifest), true, "Give plugin.json a name and a main entry inside the plugin directory"},
		{"no manifest", domainPlugin.ErrManifestNotFound, true, "Add a plugin.json with name and main to the plugin directory"},
		{"disabled", plugin.ErrPluginDisabled, true, "Add the plugin id to plugins.enabled in hotreload.yaml"},
		{"not executable", plugin.ErrNotExecutable, true, "Rebuild the plugin or run chmod +x on its main file"},
		{"watch lost", fmt.Errorf("%w: no space left on device", watch.ErrWatchLost), true, "Raise fs.inotify.max_user_watches or the open file limit, then restart"},
		{"root is file", watch.ErrRootNotDirectory, true, "Point --plugin-dir or plugin_dir at a directory"},
		{"root missing", fmt.Errorf("stat: %w", os.ErrNotExist), true, "Create it or point --plugin-dir at an existing directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if tt.err == nil {
				if got != nil {
					t.Errorf("expected nil, got %v", got)
				}
				return
			}

			var cliErr *CLIError
			isCLI := errors.As(got, &cliErr)
			if isCLI != tt.wantCLI {
				t.Fatalf("CLIError = %v, want %v (%v)", isCLI, tt.wantCLI, got)
			}
			if isCLI {
				if cliErr.Hint != tt.wantHint {
					t.Errorf("hint = %q, want %q", cliErr.Hint, tt.wantHint)
				}
				if !errors.Is(got, tt.err) {
					t.Error("mapped error must wrap the original")
				}
			}
		})
	}
}

func TestMapError_KeepsCLIError(t *testing.T) {
	orig := NewCLIError("custom", "hint", nil)
	if got := MapError(orig); got != orig {
		t.Errorf("CLIError must pass through unchanged, got %v", got)
	}
}

func TestCLIError_Error(t *testing.T) {
	if got := NewCLIError("msg", "", nil).Error(); got != "msg" {
		t.Errorf("unexpected message %q", got)
	}
	if got := NewCLIError("msg", "", errors.New("cause")).Error(); got != "msg: cause" {
		t.Errorf("unexpected message %q", got)
	}
}
