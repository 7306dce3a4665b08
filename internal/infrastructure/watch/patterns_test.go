package watch_test

import (
	"testing"

	"github.com/lokus-ai/lokus-plugins/internal/infrastructure/watch"
)

func TestIgnoreFilter_Defaults(t *testing.T) {
	f, err := watch.NewIgnoreFilter(watch.DefaultIgnores)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path    string
		ignored bool
	}{
		{"foo/dist/index.js", false},
		{"foo/plugin.json", false},
		{"foo/node_modules/lib/index.js", true},
		{"foo/.git/HEAD", true},
		{"foo/.plugin.json.swp", true},
		{"foo/plugin.json~", true},
		{".DS_Store", true},
		{"foo/4913", true},
	}

	for _, tt := range tests {
		if got := f.Ignored(tt.path); got != tt.ignored {
			t.Errorf("Ignored(%q) = %v, want %v", tt.path, got, tt.ignored)
		}
	}
}

func TestIgnoreFilter_PathPatterns(t *testing.T) {
	f, err := watch.NewIgnoreFilter([]string{"*/src/**", "build/*.map"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path    string
		ignored bool
	}{
		{"foo/src/main.ts", true},
		{"foo/src/deep/util.ts", true},
		{"foo/dist/index.js", false},
		{"bar/build/index.js.map", true},
		{"bar/build/index.js", false},
	}

	for _, tt := range tests {
		if got := f.Ignored(tt.path); got != tt.ignored {
			t.Errorf("Ignored(%q) = %v, want %v", tt.path, got, tt.ignored)
		}
	}
}

func TestIgnoreFilter_Empty(t *testing.T) {
	f, err := watch.NewIgnoreFilter(nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.Ignored("anything/at/all") {
		t.Error("empty filter should ignore nothing")
	}

	var nilFilter *watch.IgnoreFilter
	if nilFilter.Ignored("x") {
		t.Error("nil filter should ignore nothing")
	}
}

func TestIgnoreFilter_InvalidPattern(t *testing.T) {
	if _, err := watch.NewIgnoreFilter([]string{"[unclosed"}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
