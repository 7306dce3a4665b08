package plugin

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// Extension is the interface that plugin executables must implement.
type Extension interface {
	// Activate starts the plugin with its host-side configuration.
	Activate(config map[string]string) error

	// Deactivate releases plugin resources before the process is killed.
	Deactivate() error

	// Describe reports what the running plugin identifies itself as.
	Describe() (*Descriptor, error)
}

// Descriptor is the self-description a running plugin returns.
type Descriptor struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// ExtensionPlugin is the implementation of plugin.Plugin so we can serve/consume this.
type ExtensionPlugin struct {
	Impl Extension
}

func (p *ExtensionPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &ExtensionRPCServer{Impl: p.Impl}, nil
}

func (p *ExtensionPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &ExtensionRPCClient{Client: c}, nil
}

type ExtensionRPCClient struct{ Client *rpc.Client }

func (g *ExtensionRPCClient) Activate(config map[string]string) error {
	var resp interface{}
	return g.Client.Call("Plugin.Activate", config, &resp)
}

func (g *ExtensionRPCClient) Deactivate() error {
	var resp interface{}
	return g.Client.Call("Plugin.Deactivate", new(interface{}), &resp)
}

func (g *ExtensionRPCClient) Describe() (*Descriptor, error) {
	var resp Descriptor
	err := g.Client.Call("Plugin.Describe", new(interface{}), &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

type ExtensionRPCServer struct{ Impl Extension }

func (s *ExtensionRPCServer) Activate(config map[string]string, resp *interface{}) error {
	return s.Impl.Activate(config)
}

func (s *ExtensionRPCServer) Deactivate(args interface{}, resp *interface{}) error {
	return s.Impl.Deactivate()
}

func (s *ExtensionRPCServer) Describe(args interface{}, resp *Descriptor) error {
	d, err := s.Impl.Describe()
	if d != nil {
		*resp = *d
	}
	return err
}
