// Package mcp exposes the plugin hot-reload services to MCP clients.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/mcp-go"
	"github.com/lokus-ai/lokus-plugins/internal/infrastructure/wiring"
	"github.com/lokus-ai/lokus-plugins/pkg/application"
	"github.com/lokus-ai/lokus-plugins/pkg/domain/events"
	domainPlugin "github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
)

var (
	Version     = "dev"
	BuildCommit = "unknown"
	BuildDate   = "unknown"
)

// DefaultHistoryLimit bounds lokus_reload_history when no limit is given.
const DefaultHistoryLimit = 20

type Server struct {
	mcpServer *mcp.Server
	services  *wiring.AppServices
}

// mcpErr returns a user-friendly error for MCP clients.
func mcpErr(friendly string) error {
	return fmt.Errorf("%s", friendly)
}

// NewServer registers the plugin tools on top of services. The caller owns
// services and closes it after the server stops.
func NewServer(services *wiring.AppServices) (*Server, error) {
	if services == nil {
		return nil, fmt.Errorf("services must not be nil")
	}

	info := mcp.ServerInfo{
		Name:    "lokus-plugins",
		Version: Version,
	}

	s := &Server{
		mcpServer: mcp.NewServer(info,
			mcp.WithTitle("Lokus Plugins MCP Server"),
			mcp.WithDescription("Inspect installed Lokus plugins and trigger hot reloads."),
			mcp.WithBuildInfo(BuildCommit, BuildDate),
			mcp.WithInstructions("Use lokus_list_plugins to discover plugins and lokus_reload_plugin to reload them. lokus_reload_history shows what happened."),
		),
		services: services,
	}
	s.registerTools()
	return s, nil
}

type PluginArgs struct {
	Plugin string `json:"plugin" jsonschema:"description=Plugin identifier or manifest name"`
}

type ReloadArgs struct {
	Plugins []string `json:"plugins" jsonschema:"description=Identifiers of the plugins to reload"`
}

type HistoryArgs struct {
	Plugin string `json:"plugin,omitempty" jsonschema:"description=Only return events for this plugin"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum number of events (default 20)"`
}

type InstallArgs struct {
	Source string `json:"source" jsonschema:"description=Plugin directory or .zip archive to install"`
}

type ClassifyArgs struct {
	Paths []string `json:"paths" jsonschema:"description=Changed file paths to map to plugin identifiers"`
}

func (s *Server) registerTools() {
	s.mcpServer.Tool("lokus_list_plugins").
		Description("List the plugins installed under the plugin root with their status").
		Handler(s.handleListPlugins)

	s.mcpServer.Tool("lokus_plugin_info").
		Description("Show the manifest and status of one plugin").
		Handler(s.handlePluginInfo)

	s.mcpServer.Tool("lokus_validate_plugin").
		Description("Check that a plugin has a manifest and an executable entry point").
		Handler(s.handleValidatePlugin)

	s.mcpServer.Tool("lokus_install_plugin").
		Description("Install a plugin from a directory or .zip archive into the plugin root").
		Handler(s.handleInstallPlugin)

	s.mcpServer.Tool("lokus_uninstall_plugin").
		Description("Stop a plugin and remove it from the plugin root").
		Handler(s.handleUninstallPlugin)

	s.mcpServer.Tool("lokus_enable_plugin").
		Description("Allow a plugin to be loaded").
		Handler(s.handleEnablePlugin)

	s.mcpServer.Tool("lokus_disable_plugin").
		Description("Stop a plugin from being loaded").
		Handler(s.handleDisablePlugin)

	s.mcpServer.Tool("lokus_reload_plugin").
		Description("Reload one or more plugins from disk immediately").
		Handler(s.handleReloadPlugin)

	s.mcpServer.Tool("lokus_watch_status").
		Description("Report the watcher state, pending and in-flight reloads and which plugins are running").
		Handler(s.handleWatchStatus)

	s.mcpServer.Tool("lokus_reload_history").
		Description("Return the most recent recorded hot-reload events").
		Handler(s.handleReloadHistory)

	s.mcpServer.Tool("lokus_classify_paths").
		Description("Show which plugin a changed path would reload").
		Handler(s.handleClassifyPaths)
}

func (s *Server) handleListPlugins(ctx context.Context, args struct{}) (any, error) {
	infos, err := s.services.Plugins.ListPlugins()
	if err != nil {
		return nil, mcpErr("Failed to list plugins. Check that the plugin root exists.")
	}
	if infos == nil {
		infos = []application.PluginInfo{}
	}
	return infos, nil
}

func (s *Server) handlePluginInfo(ctx context.Context, args PluginArgs) (any, error) {
	if strings.TrimSpace(args.Plugin) == "" {
		return nil, mcpErr("plugin is required")
	}
	info, err := s.services.Plugins.Info(args.Plugin)
	if err != nil {
		return nil, mcpErr(fmt.Sprintf("Plugin %q not found.", args.Plugin))
	}
	return info, nil
}

func (s *Server) handleValidatePlugin(ctx context.Context, args PluginArgs) (any, error) {
	if strings.TrimSpace(args.Plugin) == "" {
		return nil, mcpErr("plugin is required")
	}
	res, err := s.services.Plugins.ValidatePlugin(args.Plugin)
	if err != nil {
		return nil, mcpErr(fmt.Sprintf("Plugin %q not found.", args.Plugin))
	}
	return res, nil
}

func (s *Server) handleInstallPlugin(ctx context.Context, args InstallArgs) (any, error) {
	if strings.TrimSpace(args.Source) == "" {
		return nil, mcpErr("source is required")
	}
	res, err := s.services.Plugins.Install(args.Source)
	switch {
	case errors.Is(err, domainPlugin.ErrPluginExists):
		return nil, mcpErr("Plugin is already installed. Uninstall it first to replace it.")
	case errors.Is(err, domainPlugin.ErrInvalidManifest), errors.Is(err, domainPlugin.ErrManifestNotFound):
		return nil, mcpErr(fmt.Sprintf("Cannot install %s: %v", args.Source, err))
	case err != nil:
		return nil, mcpErr(fmt.Sprintf("Failed to install %s.", args.Source))
	}
	return res, nil
}

func (s *Server) handleUninstallPlugin(ctx context.Context, args PluginArgs) (any, error) {
	if strings.TrimSpace(args.Plugin) == "" {
		return nil, mcpErr("plugin is required")
	}
	info, err := s.services.Plugins.Uninstall(args.Plugin)
	if errors.Is(err, domainPlugin.ErrPluginNotFound) {
		return nil, mcpErr(fmt.Sprintf("Plugin %q not found.", args.Plugin))
	}
	if err != nil {
		return nil, mcpErr(fmt.Sprintf("Failed to uninstall %q.", args.Plugin))
	}
	return info, nil
}

func (s *Server) handleEnablePlugin(ctx context.Context, args PluginArgs) (any, error) {
	return s.setEnabled(args, s.services.Plugins.Enable)
}

func (s *Server) handleDisablePlugin(ctx context.Context, args PluginArgs) (any, error) {
	return s.setEnabled(args, s.services.Plugins.Disable)
}

func (s *Server) setEnabled(args PluginArgs, change func(string) (*application.PluginInfo, error)) (any, error) {
	if strings.TrimSpace(args.Plugin) == "" {
		return nil, mcpErr("plugin is required")
	}
	info, err := change(args.Plugin)
	if errors.Is(err, domainPlugin.ErrPluginNotFound) {
		return nil, mcpErr(fmt.Sprintf("Plugin %q not found.", args.Plugin))
	}
	if err != nil {
		return nil, mcpErr("Failed to save plugin settings.")
	}
	return info, nil
}

// reloadEntry is the client-facing form of a reload result.
type reloadEntry struct {
	Plugin     string `json:"plugin"`
	Outcome    string `json:"outcome"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleReloadPlugin(ctx context.Context, args ReloadArgs) (any, error) {
	ids := make([]domainPlugin.ID, 0, len(args.Plugins))
	for _, p := range args.Plugins {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, domainPlugin.ID(p))
		}
	}
	if len(ids) == 0 {
		return nil, mcpErr("at least one plugin is required")
	}

	results := s.services.Controller.Reload(ctx, ids)
	out := make([]reloadEntry, 0, len(results))
	for _, r := range results {
		out = append(out, reloadEntry{
			Plugin:     r.Plugin.String(),
			Outcome:    string(r.Outcome),
			DurationMS: r.Duration.Milliseconds(),
			Error:      r.Message(),
		})
	}
	return out, nil
}

func (s *Server) handleWatchStatus(ctx context.Context, args struct{}) (any, error) {
	snap, err := s.services.Snapshot()
	if err != nil {
		return nil, mcpErr("Failed to read watcher status.")
	}
	snap.Pending = orEmpty(snap.Pending)
	snap.InFlight = orEmpty(snap.InFlight)
	return snap, nil
}

func (s *Server) handleReloadHistory(ctx context.Context, args HistoryArgs) (any, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	var (
		list []*events.Event
		err  error
	)
	if args.Plugin != "" {
		list, err = s.services.Workspace.History.LoadByPlugin(args.Plugin)
		if len(list) > limit {
			list = list[len(list)-limit:]
		}
	} else {
		list, err = s.services.Workspace.History.LoadRecent(limit)
	}
	if err != nil {
		return nil, mcpErr("Failed to read reload history.")
	}
	if list == nil {
		list = []*events.Event{}
	}
	return list, nil
}

type classification struct {
	Path   string `json:"path"`
	Plugin string `json:"plugin,omitempty"`
}

func (s *Server) handleClassifyPaths(ctx context.Context, args ClassifyArgs) (any, error) {
	if len(args.Paths) == 0 {
		return nil, mcpErr("at least one path is required")
	}
	ws := s.services.Workspace
	classifier := ws.Config.Classifier(ws.Root)

	out := make([]classification, 0, len(args.Paths))
	for _, p := range args.Paths {
		c := classification{Path: p}
		if id, ok := classifier.Classify(p); ok {
			c.Plugin = id.String()
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr, mcp.WithDefaultCORS())
}

func (s *Server) ServeWebSocket(ctx context.Context, addr string) error {
	return mcp.ServeWebSocket(ctx, s.mcpServer, addr)
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
