package application

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
)

// maxArchiveFile bounds a single extracted archive entry.
const maxArchiveFile = 256 << 20

// InstallResult describes a freshly installed plugin.
type InstallResult struct {
	ID  string `json:"id"`
	Dir string `json:"dir"`
}

// Install copies the plugin at src, a directory or a .zip archive holding a
// plugin.json, into the root. The plugin is staged next to the root and
// renamed into place, so a running watcher sees it appear in one step and
// reloads it.
func (s *PluginService) Install(src string) (*InstallResult, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("install source: %w", err)
	}

	if !info.IsDir() {
		if !strings.EqualFold(filepath.Ext(src), ".zip") {
			return nil, fmt.Errorf("install source must be a directory or a .zip archive: %s", src)
		}
		tmp, err := os.MkdirTemp("", "lokus-plugin-*")
		if err != nil {
			return nil, fmt.Errorf("create extraction directory: %w", err)
		}
		defer func() { _ = os.RemoveAll(tmp) }()

		dir, err := extractArchive(src, tmp)
		if err != nil {
			return nil, err
		}
		src = dir
	}

	return s.installDir(src)
}

func (s *PluginService) installDir(src string) (*InstallResult, error) {
	if _, err := os.Stat(filepath.Join(src, plugin.ManifestFile)); err != nil {
		return nil, fmt.Errorf("%w in %s", plugin.ErrManifestNotFound, src)
	}
	m, err := plugin.LoadManifest(src)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := m.PluginID()
	dest := filepath.Join(s.root, id)
	if _, err := os.Stat(dest); err == nil {
		return nil, fmt.Errorf("%w: %s", plugin.ErrPluginExists, id)
	}

	parent := filepath.Dir(s.root)
	if err := os.MkdirAll(s.root, 0750); err != nil {
		return nil, fmt.Errorf("create plugin root: %w", err)
	}
	stage, err := os.MkdirTemp(parent, ".install-"+id+"-*")
	if err != nil {
		return nil, fmt.Errorf("create staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(stage) }()

	if err := copyTree(src, stage); err != nil {
		return nil, fmt.Errorf("copy plugin: %w", err)
	}
	if err := os.Rename(stage, dest); err != nil {
		return nil, fmt.Errorf("move plugin into place: %w", err)
	}
	return &InstallResult{ID: id, Dir: dest}, nil
}

// Uninstall stops the plugin, removes its directory and forgets its
// settings.
func (s *PluginService) Uninstall(nameOrID string) (*PluginInfo, error) {
	info, err := s.Info(nameOrID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unloader != nil {
		for _, id := range unloadIDs(info) {
			if err := s.unloader.Unload(id); err != nil {
				return nil, fmt.Errorf("stop %s: %w", id, err)
			}
		}
	}
	if err := os.RemoveAll(info.Dir); err != nil {
		return nil, fmt.Errorf("remove plugin directory: %w", err)
	}

	if s.settings != nil {
		s.settings.Remove(plugin.ID(info.ID))
		if err := s.persist(); err != nil {
			return nil, err
		}
	}
	return info, nil
}

// Enable allows the plugin to run and persists the change.
func (s *PluginService) Enable(nameOrID string) (*PluginInfo, error) {
	return s.setEnabled(nameOrID, true)
}

// Disable stops the plugin from being loaded and persists the change. A
// running instance keeps running until it is next reloaded or the host
// exits.
func (s *PluginService) Disable(nameOrID string) (*PluginInfo, error) {
	return s.setEnabled(nameOrID, false)
}

func (s *PluginService) setEnabled(nameOrID string, enabled bool) (*PluginInfo, error) {
	if s.settings == nil {
		return nil, errors.New("plugin settings are not available")
	}
	info, err := s.Info(nameOrID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if enabled {
		s.settings.Enable(plugin.ID(info.ID))
	} else {
		s.settings.Disable(plugin.ID(info.ID))
	}
	if err := s.persist(); err != nil {
		return nil, err
	}
	info.Enabled = s.settings.IsEnabled(plugin.ID(info.ID))
	return info, nil
}

func (s *PluginService) persist() error {
	if s.save == nil {
		return nil
	}
	if err := s.save(s.settings); err != nil {
		return fmt.Errorf("save plugin settings: %w", err)
	}
	return nil
}

// unloadIDs lists the keys a running instance may be registered under: the
// folder name used by the watcher and the manifest id.
func unloadIDs(info *PluginInfo) []plugin.ID {
	folder := filepath.Base(info.Dir)
	if folder == info.ID {
		return []plugin.ID{plugin.ID(folder)}
	}
	return []plugin.ID{plugin.ID(folder), plugin.ID(info.ID)}
}

// copyTree copies the regular files and directories below src into dest,
// keeping file modes so entry points stay executable.
func copyTree(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0750)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dest string, mode fs.FileMode) error {
	// #nosec G304 -- src is inside the directory being installed
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // read-only file

	return writeFile(dest, in, mode)
}

func writeFile(dest string, r io.Reader, mode fs.FileMode) error {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// extractArchive unpacks the zip at path into dir and returns the directory
// holding plugin.json: dir itself or its single top-level folder.
func extractArchive(path, dir string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close() //nolint:errcheck // read-only archive

	pluginDir := ""
	for _, f := range zr.File {
		name := filepath.FromSlash(f.Name)
		target := filepath.Join(dir, name)
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
			return "", fmt.Errorf("archive entry escapes the plugin directory: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0750); err != nil {
				return "", err
			}
			continue
		}
		if !f.Mode().IsRegular() {
			continue
		}
		if f.UncompressedSize64 > maxArchiveFile {
			return "", fmt.Errorf("archive entry too large: %s", f.Name)
		}
		if pluginDir == "" && filepath.Base(name) == plugin.ManifestFile && strings.Count(f.Name, "/") <= 1 {
			pluginDir = filepath.Dir(target)
		}

		if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
			return "", err
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", f.Name, err)
		}
		err = writeFile(target, io.LimitReader(rc, maxArchiveFile), f.Mode().Perm()|0600)
		_ = rc.Close()
		if err != nil {
			return "", fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}

	if pluginDir == "" {
		return "", fmt.Errorf("%w in archive %s", plugin.ErrManifestNotFound, path)
	}
	return pluginDir, nil
}
