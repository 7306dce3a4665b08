package lifecycle

import (
	"testing"
)

func TestWatcherMachine_HappyPath(t *testing.T) {
	m, err := NewWatcherMachine("test")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !m.Is(Stopped) {
		t.Fatalf("expected initial state stopped, got %s", m.Current())
	}

	steps := []struct {
		event string
		want  WatcherState
	}{
		{EventStart, Starting},
		{EventReady, Running},
		{EventStop, Stopped},
		{EventStart, Starting},
		{EventFail, Stopped},
		{EventStart, Starting},
		{EventReady, Running},
		{EventFail, Stopped},
	}

	for _, s := range steps {
		if err := m.Transition(s.event); err != nil {
			t.Fatalf("transition %q failed: %v", s.event, err)
		}
		if got := m.Current(); got != s.want {
			t.Fatalf("after %q expected %s, got %s", s.event, s.want, got)
		}
	}
}

func TestWatcherMachine_InvalidTransitions(t *testing.T) {
	m, err := NewWatcherMachine("test")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		setup []string
		event string
	}{
		{"stop while stopped", nil, EventStop},
		{"ready while stopped", nil, EventReady},
		{"start while running", []string{EventStart, EventReady}, EventStart},
		{"fail while stopped", nil, EventFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ = NewWatcherMachine("test")
			for _, e := range tt.setup {
				if err := m.Transition(e); err != nil {
					t.Fatalf("setup %q failed: %v", e, err)
				}
			}
			before := m.Current()
			if err := m.Transition(tt.event); err == nil {
				t.Errorf("expected %q to be rejected in %s", tt.event, before)
			}
			if m.Current() != before {
				t.Errorf("rejected event changed state from %s to %s", before, m.Current())
			}
		})
	}
}
