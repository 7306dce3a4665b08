package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/mcp-go/client"
)

// Client is a typed Go client for the lokus-plugins MCP server.
type Client struct {
	mcp      *client.Client
	retryCfg retry.Config
	timeout  time.Duration
}

// NewClient wraps transport. The handshake is not performed until
// Initialize is called.
func NewClient(transport client.Transport, opts ...Option) *Client {
	c := &Client{
		timeout: DefaultTimeout,
		retryCfg: retry.Config{
			MaxAttempts:   DefaultMaxAttempts,
			InitialDelay:  DefaultInitialDelay,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.mcp = client.New(transport, client.WithTimeout(c.timeout))
	return c
}

// Initialize performs the MCP initialize handshake.
func (c *Client) Initialize(ctx context.Context) (*client.ServerInfo, error) {
	return c.mcp.Initialize(ctx)
}

// Close closes the underlying transport.
func (c *Client) Close() error {
	return c.mcp.Close()
}

// call invokes a tool with retry. Error results are not retried.
func (c *Client) call(ctx context.Context, tool string, args map[string]any) (*client.ToolResult, error) {
	r := retry.New[*client.ToolResult](c.retryCfg)
	result, err := r.Do(ctx, func(ctx context.Context) (*client.ToolResult, error) {
		return c.mcp.CallTool(ctx, tool, args)
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", tool, err)
	}
	if result.IsError {
		msg := ""
		if len(result.Content) > 0 {
			msg = result.Content[0].Text
		}
		return nil, &ToolError{Tool: tool, Message: msg}
	}
	return result, nil
}

// decode parses the JSON text of the first content item.
func decode[T any](result *client.ToolResult) (T, error) {
	var v T
	text, err := firstText(result)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return v, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}

func firstText(result *client.ToolResult) (string, error) {
	if len(result.Content) == 0 {
		return "", ErrNoContent
	}
	return result.Content[0].Text, nil
}

// ListPlugins returns every plugin installed under the server's plugin root.
func (c *Client) ListPlugins(ctx context.Context) ([]Plugin, error) {
	res, err := c.call(ctx, "lokus_list_plugins", nil)
	if err != nil {
		return nil, err
	}
	return decode[[]Plugin](res)
}

// PluginInfo resolves a plugin by folder name, manifest id or manifest name.
func (c *Client) PluginInfo(ctx context.Context, plugin string) (*Plugin, error) {
	res, err := c.call(ctx, "lokus_plugin_info", map[string]any{"plugin": plugin})
	if err != nil {
		return nil, err
	}
	return decode[*Plugin](res)
}

// ValidatePlugin checks a plugin's manifest and entry point.
func (c *Client) ValidatePlugin(ctx context.Context, plugin string) (*Validation, error) {
	res, err := c.call(ctx, "lokus_validate_plugin", map[string]any{"plugin": plugin})
	if err != nil {
		return nil, err
	}
	return decode[*Validation](res)
}

// Install copies a plugin directory or .zip archive, given as a path on the
// server's machine, into the plugin root.
func (c *Client) Install(ctx context.Context, source string) (*Installed, error) {
	res, err := c.call(ctx, "lokus_install_plugin", map[string]any{"source": source})
	if err != nil {
		return nil, err
	}
	return decode[*Installed](res)
}

// Uninstall stops a plugin and removes it.
func (c *Client) Uninstall(ctx context.Context, plugin string) (*Plugin, error) {
	return c.pluginTool(ctx, "lokus_uninstall_plugin", plugin)
}

// Enable allows a plugin to be loaded.
func (c *Client) Enable(ctx context.Context, plugin string) (*Plugin, error) {
	return c.pluginTool(ctx, "lokus_enable_plugin", plugin)
}

// Disable stops a plugin from being loaded.
func (c *Client) Disable(ctx context.Context, plugin string) (*Plugin, error) {
	return c.pluginTool(ctx, "lokus_disable_plugin", plugin)
}

func (c *Client) pluginTool(ctx context.Context, tool, plugin string) (*Plugin, error) {
	res, err := c.call(ctx, tool, map[string]any{"plugin": plugin})
	if err != nil {
		return nil, err
	}
	return decode[*Plugin](res)
}

// Reload reloads the named plugins and returns one result per plugin.
func (c *Client) Reload(ctx context.Context, plugins ...string) ([]ReloadResult, error) {
	if len(plugins) == 0 {
		return nil, fmt.Errorf("reload: no plugins given")
	}
	res, err := c.call(ctx, "lokus_reload_plugin", map[string]any{"plugins": plugins})
	if err != nil {
		return nil, err
	}
	return decode[[]ReloadResult](res)
}

// WatchStatus reports the watcher state and which plugins are running.
func (c *Client) WatchStatus(ctx context.Context) (*WatchStatus, error) {
	res, err := c.call(ctx, "lokus_watch_status", nil)
	if err != nil {
		return nil, err
	}
	return decode[*WatchStatus](res)
}

// History returns up to limit of the newest events, optionally for one
// plugin. A zero limit uses the server default.
func (c *Client) History(ctx context.Context, plugin string, limit int) ([]Event, error) {
	args := map[string]any{}
	if plugin != "" {
		args["plugin"] = plugin
	}
	if limit > 0 {
		args["limit"] = limit
	}
	res, err := c.call(ctx, "lokus_reload_history", args)
	if err != nil {
		return nil, err
	}
	return decode[[]Event](res)
}

// ClassifyPaths reports which plugin each changed path would reload.
func (c *Client) ClassifyPaths(ctx context.Context, paths ...string) ([]Classification, error) {
	res, err := c.call(ctx, "lokus_classify_paths", map[string]any{"paths": paths})
	if err != nil {
		return nil, err
	}
	return decode[[]Classification](res)
}
