package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	domainPlugin "github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
	"github.com/lokus-ai/lokus-plugins/pkg/plugin"
)

// runCLI executes the root command with args and returns what it printed.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	configPath, pluginDir, logLevel, logFormat = "", "", "error", "text"
	pluginJSON, historyPlugin, historyLimit = false, "", 20

	var out, errOut bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&errOut)
	RootCmd.SetArgs(args)
	t.Cleanup(func() {
		RootCmd.SetOut(nil)
		RootCmd.SetErr(nil)
		RootCmd.SetArgs(nil)
	})

	err := RootCmd.Execute()
	return out.String(), err
}

// testWorkspace creates a plugin root and returns the global flags that
// select it.
func testWorkspace(t *testing.T) (root string, flags []string) {
	t.Helper()
	dir := t.TempDir()
	root = filepath.Join(dir, "plugins")
	if err := os.MkdirAll(root, 0700); err != nil {
		t.Fatal(err)
	}
	return root, []string{
		"--config", filepath.Join(dir, "hotreload.yaml"),
		"--plugin-dir", root,
		"--log-level", "error",
	}
}

func installPlugin(t *testing.T, root, name, version string, mode os.FileMode) {
	t.Helper()
	dist := filepath.Join(root, name, "dist")
	if err := os.MkdirAll(dist, 0700); err != nil {
		t.Fatal(err)
	}
	manifest := `{"name":"` + name + `","version":"` + version + `","main":"dist/plugin"}`
	if err := os.WriteFile(filepath.Join(root, name, "plugin.json"), []byte(manifest), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dist, "plugin"), []byte("#!/bin/sh\n"), mode); err != nil {
		t.Fatal(err)
	}
}

type stubExtension struct {
	activateErr error
}

func (s stubExtension) Activate(map[string]string) error { return s.activateErr }
func (stubExtension) Deactivate() error                  { return nil }
func (stubExtension) Describe() (*domainPlugin.Descriptor, error) {
	return &domainPlugin.Descriptor{Name: "stub", Version: "0.1.0"}, nil
}

type stubProcess struct{ ext stubExtension }

func (p stubProcess) Extension() domainPlugin.Extension { return p.ext }
func (stubProcess) Kill()                               {}

type stubLauncher struct {
	mu          sync.Mutex
	launched    []string
	activateErr error
}

func (l *stubLauncher) launch(_ context.Context, path string) (plugin.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launched = append(l.launched, path)
	return stubProcess{ext: stubExtension{activateErr: l.activateErr}}, nil
}

// useStubLauncher routes plugin starts to an in-process stub for the test.
func useStubLauncher(t *testing.T) *stubLauncher {
	t.Helper()
	l := &stubLauncher{}
	pluginLauncher = l.launch
	t.Cleanup(func() { pluginLauncher = nil })
	return l
}

func removeManifest(root, name string) error {
	return os.Remove(filepath.Join(root, name, "plugin.json"))
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
