package wiring

import (
	"context"

	"github.com/lokus-ai/lokus-plugins/pkg/domain/events"
	domainPlugin "github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
	"github.com/lokus-ai/lokus-plugins/pkg/infrastructure/dashboard"
)

var _ dashboard.DataProvider = (*AppServices)(nil)

// Snapshot reports the watcher state together with every installed plugin
// and whether it is running.
func (s *AppServices) Snapshot() (*dashboard.Snapshot, error) {
	infos, err := s.Plugins.ListPlugins()
	if err != nil {
		return nil, err
	}

	loaded := make(map[string]dashboard.PluginStatus)
	for _, inst := range s.Loader.Loaded() {
		loaded[inst.ID.String()] = dashboard.PluginStatus{Loaded: true, LoadedAt: inst.LoadedAt}
	}

	snap := &dashboard.Snapshot{
		Root:     s.Workspace.Root,
		State:    string(s.Controller.State()),
		Pending:  idStrings(s.Controller.Pending()),
		InFlight: idStrings(s.Controller.InFlight()),
		Plugins:  make([]dashboard.PluginStatus, 0, len(infos)),
	}
	for _, info := range infos {
		st := loaded[info.ID]
		st.ID = info.ID
		st.Version = info.Version
		st.Enabled = info.Enabled
		st.Status = info.Status
		st.Error = info.Error
		snap.Plugins = append(snap.Plugins, st)
	}
	return snap, nil
}

// History returns the newest recorded events.
func (s *AppServices) History(limit int) ([]*events.Event, error) {
	return s.Workspace.History.LoadRecent(limit)
}

// Reload reloads one plugin immediately.
func (s *AppServices) Reload(ctx context.Context, id domainPlugin.ID) domainPlugin.ReloadResult {
	return s.Controller.Reload(ctx, []domainPlugin.ID{id})[0]
}

func idStrings(ids []domainPlugin.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
