package application

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_CoalescesRapidTriggers(t *testing.T) {
	var count atomic.Int32
	d := NewDebouncer(50*time.Millisecond, func() {
		count.Add(1)
	})
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(10 * time.Millisecond)
	}

	// Wait for debounce window to expire
	time.Sleep(150 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 callback invocation, got %d", got)
	}
	if d.Pending() {
		t.Error("no callback should be pending after firing")
	}
}

func TestDebouncer_Stop(t *testing.T) {
	var count atomic.Int32
	d := NewDebouncer(50*time.Millisecond, func() {
		count.Add(1)
	})

	d.Trigger()
	if !d.Pending() {
		t.Error("expected pending callback after Trigger")
	}
	d.Stop()
	d.Stop()

	time.Sleep(100 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected 0 callback invocations after stop, got %d", got)
	}
}

func TestDebouncer_SeparateWindows(t *testing.T) {
	var count atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() {
		count.Add(1)
	})
	defer d.Stop()

	d.Trigger()
	time.Sleep(80 * time.Millisecond)
	d.Trigger()
	time.Sleep(80 * time.Millisecond)

	if got := count.Load(); got != 2 {
		t.Errorf("expected 2 callback invocations, got %d", got)
	}
}

func TestDebouncer_StaleFireIgnored(t *testing.T) {
	var count atomic.Int32
	d := NewDebouncer(time.Hour, func() {
		count.Add(1)
	})

	d.Trigger()
	d.mu.Lock()
	stale := d.gen
	d.mu.Unlock()
	d.Stop()

	// Simulate a timer that expired concurrently with Stop.
	d.fire(stale)

	if got := count.Load(); got != 0 {
		t.Errorf("stale timer must not run the callback, got %d", got)
	}
}
