package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	goplugin "github.com/hashicorp/go-plugin"
	domainPlugin "github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
)

var HandshakeConfig = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "LOKUS_PLUGIN",
	MagicCookieValue: "lokus",
}

// ExtensionKey is the name plugins register their Extension under.
const ExtensionKey = "extension"

var PluginMap = map[string]goplugin.Plugin{
	ExtensionKey: &domainPlugin.ExtensionPlugin{},
}

var (
	// ErrPluginDisabled indicates the plugin is not in the enabled list.
	ErrPluginDisabled = errors.New("plugin disabled")

	// ErrNotExecutable indicates the plugin entry point cannot be started.
	ErrNotExecutable = errors.New("plugin is not executable")
)

// Process is a running plugin executable.
type Process interface {
	Extension() domainPlugin.Extension
	Kill()
}

// Launcher starts the plugin executable at path.
type Launcher func(ctx context.Context, path string) (Process, error)

// Instance describes a loaded plugin.
type Instance struct {
	ID         domainPlugin.ID
	Dir        string
	Path       string
	Manifest   *domainPlugin.Manifest
	Descriptor *domainPlugin.Descriptor
	LoadedAt   time.Time

	proc Process
}

// LoaderOptions configures a Loader. Zero values select the defaults.
type LoaderOptions struct {
	Settings *domainPlugin.Settings
	Launcher Launcher
	Logger   *slog.Logger
}

// Loader starts, stops and reloads plugin executables installed under a
// root directory. Operations on the same plugin are serialized.
type Loader struct {
	root     string
	settings *domainPlugin.Settings
	launch   Launcher
	logger   *slog.Logger

	mu      sync.Mutex
	plugins map[domainPlugin.ID]*Instance
	locks   map[domainPlugin.ID]*sync.Mutex
}

func NewLoader(root string, opts LoaderOptions) *Loader {
	launch := opts.Launcher
	if launch == nil {
		launch = LaunchRPC
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		root:     root,
		settings: opts.Settings,
		launch:   launch,
		logger:   logger,
		plugins:  make(map[domainPlugin.ID]*Instance),
		locks:    make(map[domainPlugin.ID]*sync.Mutex),
	}
}

// Load starts the plugin and activates it with its configured settings.
// Loading a plugin that is already running returns the running instance.
func (l *Loader) Load(ctx context.Context, id domainPlugin.ID) (*Instance, error) {
	unlock := l.lockPlugin(id)
	defer unlock()

	if inst := l.get(id); inst != nil {
		return inst, nil
	}
	return l.load(ctx, id)
}

// Unload deactivates and kills the plugin. Unloading a plugin that is not
// running is a no-op.
func (l *Loader) Unload(id domainPlugin.ID) error {
	unlock := l.lockPlugin(id)
	defer unlock()
	return l.unload(id)
}

// ReloadFromDisk replaces the running plugin with a fresh process started
// from the files currently on disk. A plugin that was not running is loaded.
func (l *Loader) ReloadFromDisk(ctx context.Context, id domainPlugin.ID) error {
	unlock := l.lockPlugin(id)
	defer unlock()

	if err := l.unload(id); err != nil {
		l.logger.Warn("plugin deactivation failed, continuing reload", "plugin", id, "error", err)
	}
	if _, err := l.load(ctx, id); err != nil {
		return err
	}
	return nil
}

// Loaded returns the running plugins sorted by id.
func (l *Loader) Loaded() []Instance {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Instance, 0, len(l.plugins))
	for _, inst := range l.plugins {
		out = append(out, *inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Cleanup kills every running plugin.
func (l *Loader) Cleanup() {
	l.mu.Lock()
	ids := make([]domainPlugin.ID, 0, len(l.plugins))
	for id := range l.plugins {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	for _, id := range ids {
		if err := l.Unload(id); err != nil {
			l.logger.Warn("plugin deactivation failed", "plugin", id, "error", err)
		}
	}
}

func (l *Loader) load(ctx context.Context, id domainPlugin.ID) (*Instance, error) {
	if !l.settings.IsEnabled(id) {
		return nil, fmt.Errorf("%w: %s", ErrPluginDisabled, id)
	}

	dir, err := domainPlugin.ResolveDir(l.root, string(id))
	if err != nil {
		return nil, err
	}
	manifest, err := domainPlugin.LoadManifest(dir)
	if err != nil {
		return nil, err
	}
	if manifest.Main == "" {
		return nil, fmt.Errorf("plugin %s: manifest has no main entry", id)
	}

	path, err := validateExecutable(filepath.Join(dir, filepath.FromSlash(manifest.Main)))
	if err != nil {
		return nil, err
	}

	proc, err := l.launch(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("start plugin %s: %w", id, err)
	}

	ext := proc.Extension()
	if err := ext.Activate(l.settings.Get(id)); err != nil {
		proc.Kill()
		return nil, fmt.Errorf("activate plugin %s: %w", id, err)
	}

	desc, err := ext.Describe()
	if err != nil {
		l.logger.Warn("plugin did not describe itself", "plugin", id, "error", err)
	}

	inst := &Instance{
		ID:         id,
		Dir:        dir,
		Path:       path,
		Manifest:   manifest,
		Descriptor: desc,
		LoadedAt:   time.Now(),
		proc:       proc,
	}

	l.mu.Lock()
	l.plugins[id] = inst
	l.mu.Unlock()

	l.logger.Debug("plugin loaded", "plugin", id, "path", path)
	return inst, nil
}

func (l *Loader) unload(id domainPlugin.ID) error {
	l.mu.Lock()
	inst, ok := l.plugins[id]
	delete(l.plugins, id)
	l.mu.Unlock()

	if !ok {
		return nil
	}

	err := inst.proc.Extension().Deactivate()
	inst.proc.Kill()
	l.logger.Debug("plugin unloaded", "plugin", id)
	return err
}

func (l *Loader) get(id domainPlugin.ID) *Instance {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.plugins[id]
}

func (l *Loader) lockPlugin(id domainPlugin.ID) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func validateExecutable(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid plugin path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("plugin not found: %s", absPath)
		}
		return "", fmt.Errorf("cannot access plugin: %w", err)
	}

	if info.IsDir() {
		return "", fmt.Errorf("plugin path is a directory: %s", absPath)
	}

	// Check executable permission on Unix systems
	if runtime.GOOS != "windows" {
		if info.Mode()&0111 == 0 {
			return "", fmt.Errorf("%w: %s", ErrNotExecutable, absPath)
		}
	}
	return absPath, nil
}

type rpcProcess struct {
	client *goplugin.Client
	ext    domainPlugin.Extension
}

func (p *rpcProcess) Extension() domainPlugin.Extension { return p.ext }
func (p *rpcProcess) Kill()                             { p.client.Kill() }

// LaunchRPC starts a go-plugin executable over net/rpc and dispenses its
// Extension.
func LaunchRPC(_ context.Context, path string) (Process, error) {
	cmd := exec.Command(path) // #nosec G204 -- path is validated by the loader
	cmd.Dir = filepath.Dir(path)

	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         PluginMap,
		Cmd:             cmd,
		AllowedProtocols: []goplugin.Protocol{
			goplugin.ProtocolNetRPC,
		},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to create plugin client: %w", err)
	}

	raw, err := rpcClient.Dispense(ExtensionKey)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense plugin: %w", err)
	}

	ext, ok := raw.(domainPlugin.Extension)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin dispensed %T, not an extension", raw)
	}
	return &rpcProcess{client: client, ext: ext}, nil
}
