package plugin

import (
	"strings"
)

// DefaultMarker is the directory name under which every plugin lives.
const DefaultMarker = "plugins"

// DefaultSuffixes are the plugin-relative files whose change means the plugin
// must be reloaded: its built entry point or its top-level manifest.
var DefaultSuffixes = []string{
	"dist/index.js",
	"dist/plugin",
	"dist/plugin.exe",
	"plugin.json",
	"manifest.json",
}

// ID names one installed plugin: the directory segment that follows the
// plugins marker in a path.
type ID string

func (id ID) String() string { return string(id) }

// ExtractID returns the segment following the first segment equal to marker.
// Both '/' and '\' are treated as separators so that paths reported by any
// platform classify the same way.
func ExtractID(path, marker string) (ID, bool) {
	if marker == "" {
		return "", false
	}
	segments := splitSegments(path)
	for i, seg := range segments {
		if seg != marker {
			continue
		}
		if i+1 < len(segments) {
			return ID(segments[i+1]), true
		}
		return "", false
	}
	return "", false
}

// Classifier maps raw changed paths to the plugin they belong to.
// The zero value uses DefaultMarker and DefaultSuffixes.
type Classifier struct {
	Marker   string
	Suffixes []string
}

// NewClassifier creates a classifier. Empty arguments fall back to defaults.
func NewClassifier(marker string, suffixes []string) Classifier {
	if marker == "" {
		marker = DefaultMarker
	}
	if len(suffixes) == 0 {
		suffixes = DefaultSuffixes
	}
	return Classifier{Marker: marker, Suffixes: suffixes}
}

// Classify returns the plugin affected by a change to path. Paths that do
// not end in a relevant file, or that carry no plugins segment followed by a
// name, yield false.
func (c Classifier) Classify(path string) (ID, bool) {
	if !c.relevant(path) {
		return "", false
	}
	marker := c.Marker
	if marker == "" {
		marker = DefaultMarker
	}
	return ExtractID(path, marker)
}

// relevant reports whether path ends with one of the suffixes on a segment
// boundary, so "myplugin.json" never matches "plugin.json".
func (c Classifier) relevant(path string) bool {
	suffixes := c.Suffixes
	if len(suffixes) == 0 {
		suffixes = DefaultSuffixes
	}
	normalized := strings.ReplaceAll(path, `\`, "/")
	for _, s := range suffixes {
		s = strings.Trim(strings.ReplaceAll(s, `\`, "/"), "/")
		if s == "" {
			continue
		}
		if normalized == s || strings.HasSuffix(normalized, "/"+s) {
			return true
		}
	}
	return false
}

func splitSegments(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
}
