package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Manifest file names, in lookup order.
const (
	ManifestFile         = "plugin.json"
	FallbackManifestFile = "manifest.json"
)

var (
	// ErrManifestNotFound indicates a plugin directory has no manifest.
	ErrManifestNotFound = errors.New("plugin manifest not found")

	// ErrPluginNotFound indicates no installed plugin matches a name or id.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrPluginExists indicates an install target is already taken.
	ErrPluginExists = errors.New("plugin already installed")

	// ErrInvalidManifest indicates a manifest lacks fields the host needs.
	ErrInvalidManifest = errors.New("invalid plugin manifest")
)

// Manifest is the subset of plugin.json the host needs to locate and start a
// plugin. Unknown fields are ignored.
type Manifest struct {
	Name        string   `json:"name"`
	ID          string   `json:"id,omitempty"`
	Version     string   `json:"version"`
	Description string   `json:"description,omitempty"`
	Author      string   `json:"author,omitempty"`
	Main        string   `json:"main"`
	Permissions []string `json:"permissions,omitempty"`
}

// PluginID returns the manifest id, falling back to the name.
func (m *Manifest) PluginID() string {
	if m.ID != "" {
		return m.ID
	}
	return m.Name
}

// Validate checks the fields needed to install the plugin: a name, an entry
// point and an id usable as a directory name.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidManifest)
	}
	if strings.TrimSpace(m.Main) == "" {
		return fmt.Errorf("%w: main is required", ErrInvalidManifest)
	}
	id := m.PluginID()
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q cannot be used as a directory name", ErrInvalidManifest, id)
	}
	entry := filepath.ToSlash(filepath.Clean(m.Main))
	if filepath.IsAbs(m.Main) || entry == ".." || strings.HasPrefix(entry, "../") {
		return fmt.Errorf("%w: main must stay inside the plugin directory", ErrInvalidManifest)
	}
	return nil
}

// LoadManifest reads the manifest of the plugin installed in dir.
func LoadManifest(dir string) (*Manifest, error) {
	for _, name := range []string{ManifestFile, FallbackManifestFile} {
		path := filepath.Join(dir, name)
		// #nosec G304 -- path is built from the plugin directory
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", name, err)
		}

		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		return &m, nil
	}
	return nil, fmt.Errorf("%w in %s", ErrManifestNotFound, dir)
}

// ResolveDir finds the directory of a plugin under root. It matches the
// folder name first, then a manifest id, then a manifest name.
func ResolveDir(root, nameOrID string) (string, error) {
	if nameOrID == "" {
		return "", fmt.Errorf("plugin name cannot be empty")
	}

	direct := filepath.Join(root, nameOrID)
	if info, err := os.Stat(direct); err == nil && info.IsDir() {
		return direct, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("read plugin root: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		dir := filepath.Join(root, name)
		m, err := LoadManifest(dir)
		if err != nil {
			continue
		}
		if m.ID == nameOrID || m.Name == nameOrID {
			return dir, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrPluginNotFound, nameOrID)
}
