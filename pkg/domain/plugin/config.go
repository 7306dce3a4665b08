package plugin

import (
	"sort"
)

// Settings holds host-side configuration for installed plugins.
type Settings struct {
	// Enabled lists the plugin ids allowed to run. An empty list enables
	// every installed plugin.
	Enabled []string `yaml:"enabled" json:"enabled"`
	// Disabled lists plugin ids that never run, whatever Enabled says.
	Disabled []string `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	// Config holds per-plugin key-value pairs passed on activation.
	Config map[string]map[string]string `yaml:"settings" json:"settings"`
}

// NewSettings creates empty plugin settings.
func NewSettings() *Settings {
	return &Settings{
		Config: make(map[string]map[string]string),
	}
}

// IsEnabled reports whether the plugin may be loaded.
func (s *Settings) IsEnabled(id ID) bool {
	if s == nil {
		return true
	}
	if contains(s.Disabled, string(id)) {
		return false
	}
	return len(s.Enabled) == 0 || contains(s.Enabled, string(id))
}

// Enable allows the plugin to run. With an explicit Enabled list the id is
// added to it.
func (s *Settings) Enable(id ID) {
	s.Disabled = without(s.Disabled, string(id))
	if len(s.Enabled) > 0 && !contains(s.Enabled, string(id)) {
		s.Enabled = append(s.Enabled, string(id))
	}
}

// Disable stops the plugin from running. Enabled is left alone so an
// emptied list never turns into "everything enabled".
func (s *Settings) Disable(id ID) {
	if !contains(s.Disabled, string(id)) {
		s.Disabled = append(s.Disabled, string(id))
	}
}

// Get returns a copy of the configuration for the plugin, never nil.
func (s *Settings) Get(id ID) map[string]string {
	out := make(map[string]string)
	if s == nil || s.Config == nil {
		return out
	}
	for k, v := range s.Config[string(id)] {
		out[k] = v
	}
	return out
}

// Set replaces the configuration for the plugin.
func (s *Settings) Set(id ID, cfg map[string]string) {
	if s.Config == nil {
		s.Config = make(map[string]map[string]string)
	}
	s.Config[string(id)] = cfg
}

// Remove deletes a plugin's configuration and drops it from both lists.
func (s *Settings) Remove(id ID) {
	if s.Config != nil {
		delete(s.Config, string(id))
	}
	s.Enabled = without(s.Enabled, string(id))
	s.Disabled = without(s.Disabled, string(id))
}

// Names returns the plugins that have configuration, sorted.
func (s *Settings) Names() []string {
	if s == nil || s.Config == nil {
		return nil
	}
	names := make([]string, 0, len(s.Config))
	for name := range s.Config {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}

func without(list []string, name string) []string {
	if !contains(list, name) {
		return list
	}
	kept := make([]string, 0, len(list)-1)
	for _, n := range list {
		if n != name {
			kept = append(kept, n)
		}
	}
	return kept
}
