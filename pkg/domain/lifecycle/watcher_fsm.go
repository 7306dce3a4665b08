// Package lifecycle models the start/stop state of the plugin watcher.
package lifecycle

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// State constants for statekit integration.
// These must remain as untyped string constants for statekit.StateID compatibility.
const (
	StateStopped  = "stopped"
	StateStarting = "starting"
	StateRunning  = "running"
)

// Events accepted by the watcher machine.
const (
	EventStart = "start"
	EventReady = "ready"
	EventFail  = "fail"
	EventStop  = "stop"
)

// WatcherState is the lifecycle state of a watcher.
type WatcherState string

const (
	Stopped  WatcherState = StateStopped
	Starting WatcherState = StateStarting
	Running  WatcherState = StateRunning
)

// WatcherContext carries state data.
type WatcherContext struct {
	Name string
}

// WatcherMachine defines the valid watcher transitions:
//
//	stopped --start--> starting --ready--> running --stop--> stopped
//	                   starting --fail---> stopped
//	                                       running --fail--> stopped
type WatcherMachine struct {
	interpreter *statekit.Interpreter[WatcherContext]
}

// NewWatcherMachine builds a machine in the stopped state.
func NewWatcherMachine(name string) (*WatcherMachine, error) {
	builder := statekit.NewMachine[WatcherContext]("watcher-machine").
		WithInitial(statekit.StateID(StateStopped)).
		WithContext(WatcherContext{Name: name})

	builder.State(StateStopped).
		On(EventStart).Target(StateStarting).
		Done()

	builder.State(StateStarting).
		On(EventReady).Target(StateRunning).
		On(EventFail).Target(StateStopped).
		On(EventStop).Target(StateStopped).
		Done()

	builder.State(StateRunning).
		On(EventStop).Target(StateStopped).
		On(EventFail).Target(StateStopped).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build watcher state machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()

	return &WatcherMachine{interpreter: interpreter}, nil
}

// Transition sends event to the machine. It returns an error when the event
// is not valid in the current state.
func (m *WatcherMachine) Transition(event string) error {
	before := m.Current()
	m.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	if m.Current() != before {
		return nil
	}
	return fmt.Errorf("watcher cannot %s while %s", event, before)
}

// Current returns the current state.
func (m *WatcherMachine) Current() WatcherState {
	return WatcherState(m.interpreter.State().Value)
}

// Is reports whether the machine is in state s.
func (m *WatcherMachine) Is(s WatcherState) bool {
	return m.Current() == s
}
