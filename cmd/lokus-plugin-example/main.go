// Command lokus-plugin-example is a minimal extension served over go-plugin.
// Build it into <plugin>/dist/plugin to try hot reload end to end.
package main

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/hashicorp/go-plugin"
	domainPlugin "github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
	infraPlugin "github.com/lokus-ai/lokus-plugins/pkg/plugin"
)

const version = "0.1.0"

type ExampleExtension struct {
	mu     sync.Mutex
	config map[string]string
	active bool
}

func (e *ExampleExtension) Activate(config map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if config["fail"] == "true" {
		return fmt.Errorf("activation refused by configuration")
	}
	e.config = config
	e.active = true

	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	// go-plugin forwards plugin stderr to the host log
	log.Printf("activated with settings %v", keys)
	return nil
}

func (e *ExampleExtension) Deactivate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = false
	log.Printf("deactivated")
	return nil
}

func (e *ExampleExtension) Describe() (*domainPlugin.Descriptor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	caps := []string{"hot-reload"}
	if e.active {
		caps = append(caps, "active")
	}
	return &domainPlugin.Descriptor{
		Name:         "lokus-plugin-example",
		Version:      version,
		Capabilities: caps,
	}, nil
}

func main() {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: infraPlugin.HandshakeConfig,
		Plugins: map[string]plugin.Plugin{
			infraPlugin.ExtensionKey: &domainPlugin.ExtensionPlugin{Impl: &ExampleExtension{}},
		},
	})
}
