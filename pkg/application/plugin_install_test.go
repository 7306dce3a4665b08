package application_test

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/lokus-ai/lokus-plugins/pkg/application"
	"github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
)

// recordingUnloader remembers which plugins were stopped.
type recordingUnloader struct {
	mu  sync.Mutex
	ids []plugin.ID
	err error
}

func (u *recordingUnloader) Unload(id plugin.ID) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ids = append(u.ids, id)
	return u.err
}

func newManagedService(t *testing.T) (svc *application.PluginService, root string, settings *plugin.Settings, saved *[]plugin.Settings) {
	t.Helper()
	root = filepath.Join(t.TempDir(), "plugins")
	settings = plugin.NewSettings()
	var snapshots []plugin.Settings
	svc = application.NewPluginService(root, settings, application.WithSettingsSaver(func(s *plugin.Settings) error {
		snapshots = append(snapshots, *s)
		return nil
	}))
	return svc, root, settings, &snapshots
}

func TestPluginService_InstallDirectory(t *testing.T) {
	svc, root, _, _ := newManagedService(t)
	src := t.TempDir()
	installPlugin(t, src, "word-count", `{"id":"word-count","name":"Word Count","main":"dist/plugin"}`, "dist/plugin", 0755)

	res, err := svc.Install(filepath.Join(src, "word-count"))
	if err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if res.ID != "word-count" || res.Dir != filepath.Join(root, "word-count") {
		t.Errorf("unexpected result %+v", res)
	}

	v, err := svc.ValidatePlugin("word-count")
	if err != nil {
		t.Fatal(err)
	}
	if !v.Valid {
		t.Errorf("installed plugin should keep its executable entry point: %+v", v)
	}

	entries, err := os.ReadDir(filepath.Dir(root))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("staging directory left behind: %v", entries)
	}

	if _, err := svc.Install(filepath.Join(src, "word-count")); !errors.Is(err, plugin.ErrPluginExists) {
		t.Errorf("expected ErrPluginExists on second install, got %v", err)
	}
}

func TestPluginService_InstallRejectsInvalid(t *testing.T) {
	svc, root, _, _ := newManagedService(t)
	src := t.TempDir()
	installPlugin(t, src, "no-main", `{"name":"no-main"}`, "", 0)
	installPlugin(t, src, "no-manifest", "", "", 0)

	if _, err := svc.Install(filepath.Join(src, "no-main")); !errors.Is(err, plugin.ErrInvalidManifest) {
		t.Errorf("expected ErrInvalidManifest, got %v", err)
	}
	if _, err := svc.Install(filepath.Join(src, "no-manifest")); !errors.Is(err, plugin.ErrManifestNotFound) {
		t.Errorf("expected ErrManifestNotFound, got %v", err)
	}
	if _, err := svc.Install(filepath.Join(src, "absent")); err == nil {
		t.Error("expected error for a missing source")
	}
	if _, err := os.Stat(root); err == nil {
		if entries, _ := os.ReadDir(root); len(entries) != 0 {
			t.Errorf("nothing should be installed, got %v", entries)
		}
	}
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, body := range files {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
		hdr.SetMode(0755)
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestPluginService_InstallArchive(t *testing.T) {
	svc, root, _, _ := newManagedService(t)
	archive := filepath.Join(t.TempDir(), "todo.zip")
	writeZip(t, archive, map[string]string{
		"todo/plugin.json":  `{"name":"todo","main":"dist/plugin"}`,
		"todo/dist/plugin": "#!/bin/sh\n",
	})

	res, err := svc.Install(archive)
	if err != nil {
		t.Fatalf("install failed: %v", err)
	}
	if res.ID != "todo" {
		t.Errorf("unexpected id %q", res.ID)
	}
	if _, err := os.Stat(filepath.Join(root, "todo", "dist", "plugin")); err != nil {
		t.Errorf("entry point not extracted: %v", err)
	}
}

func TestPluginService_InstallArchiveRejectsEscapes(t *testing.T) {
	svc, _, _, _ := newManagedService(t)
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	writeZip(t, archive, map[string]string{
		"plugin.json":     `{"name":"evil","main":"dist/plugin"}`,
		"../../escape.sh": "#!/bin/sh\n",
	})

	if _, err := svc.Install(archive); err == nil {
		t.Fatal("expected an error for an entry outside the plugin")
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.sh")); err == nil {
		t.Error("archive entry was written outside the extraction directory")
	}
}

func TestPluginService_Uninstall(t *testing.T) {
	root := filepath.Join(t.TempDir(), "plugins")
	installPlugin(t, root, "folder", `{"id":"lokus.todo","name":"Todo","main":"dist/plugin"}`, "dist/plugin", 0755)
	installPlugin(t, root, "other", `{"name":"other","main":"dist/plugin"}`, "dist/plugin", 0755)

	settings := plugin.NewSettings()
	settings.Enabled = []string{"lokus.todo", "other"}
	settings.Set("lokus.todo", map[string]string{"k": "v"})
	unloader := &recordingUnloader{}
	saves := 0
	svc := application.NewPluginService(root, settings,
		application.WithUnloader(unloader),
		application.WithSettingsSaver(func(*plugin.Settings) error { saves++; return nil }),
	)

	info, err := svc.Uninstall("Todo")
	if err != nil {
		t.Fatalf("uninstall failed: %v", err)
	}
	if info.ID != "lokus.todo" {
		t.Errorf("unexpected info %+v", info)
	}
	if _, err := os.Stat(filepath.Join(root, "folder")); !os.IsNotExist(err) {
		t.Errorf("plugin directory should be gone, got %v", err)
	}
	if len(unloader.ids) != 2 || unloader.ids[0] != "folder" || unloader.ids[1] != "lokus.todo" {
		t.Errorf("expected folder and id unloaded, got %v", unloader.ids)
	}
	if len(settings.Enabled) != 1 || len(settings.Get("lokus.todo")) != 0 {
		t.Errorf("settings not cleaned up: %+v", settings)
	}
	if saves != 1 {
		t.Errorf("expected one save, got %d", saves)
	}

	if _, err := svc.Uninstall("Todo"); !errors.Is(err, plugin.ErrPluginNotFound) {
		t.Errorf("expected ErrPluginNotFound, got %v", err)
	}
}

func TestPluginService_UninstallKeepsFilesWhenStopFails(t *testing.T) {
	root := filepath.Join(t.TempDir(), "plugins")
	installPlugin(t, root, "foo", `{"name":"foo","main":"dist/plugin"}`, "dist/plugin", 0755)
	svc := application.NewPluginService(root, nil, application.WithUnloader(&recordingUnloader{err: errBoom}))

	if _, err := svc.Uninstall("foo"); !errors.Is(err, errBoom) {
		t.Fatalf("expected the stop error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "foo")); err != nil {
		t.Errorf("plugin should still be installed: %v", err)
	}
}

func TestPluginService_EnableDisable(t *testing.T) {
	svc, root, settings, saved := newManagedService(t)
	installPlugin(t, root, "foo", `{"name":"foo","main":"dist/plugin"}`, "dist/plugin", 0755)
	installPlugin(t, root, "bar", `{"name":"bar","main":"dist/plugin"}`, "dist/plugin", 0755)

	info, err := svc.Disable("foo")
	if err != nil {
		t.Fatal(err)
	}
	if info.Enabled || settings.IsEnabled("foo") || !settings.IsEnabled("bar") {
		t.Errorf("only foo should be disabled: %+v", settings)
	}

	info, err = svc.Enable("foo")
	if err != nil {
		t.Fatal(err)
	}
	if !info.Enabled || !settings.IsEnabled("foo") {
		t.Errorf("foo should be enabled again: %+v", settings)
	}

	if len(*saved) != 2 {
		t.Fatalf("expected two saves, got %d", len(*saved))
	}
	if first := (*saved)[0]; len(first.Disabled) != 1 || first.Disabled[0] != "foo" {
		t.Errorf("first save should disable foo, got %+v", first)
	}

	if _, err := svc.Enable("ghost"); !errors.Is(err, plugin.ErrPluginNotFound) {
		t.Errorf("expected ErrPluginNotFound, got %v", err)
	}
}

func TestPluginService_EnableSaveFailure(t *testing.T) {
	root := t.TempDir()
	installPlugin(t, root, "foo", `{"name":"foo","main":"dist/plugin"}`, "dist/plugin", 0755)
	svc := application.NewPluginService(root, plugin.NewSettings(), application.WithSettingsSaver(func(*plugin.Settings) error {
		return errBoom
	}))

	if _, err := svc.Disable("foo"); !errors.Is(err, errBoom) {
		t.Errorf("expected the save error, got %v", err)
	}
	if _, err := application.NewPluginService(root, nil).Enable("foo"); err == nil {
		t.Error("expected an error without settings")
	}
}
