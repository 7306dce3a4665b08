package application_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lokus-ai/lokus-plugins/pkg/application"
	"github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource is an in-memory ChangeSource whose batches are pushed by the test.
type fakeSource struct {
	mu         sync.Mutex
	err        error
	root       string
	onBatch    func([]string)
	sub        *fakeSubscription
	subscribes int
	closes     int
}

func (f *fakeSource) Subscribe(root string, onBatch func([]string)) (application.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	if f.err != nil {
		return nil, f.err
	}
	f.root = root
	f.onBatch = onBatch
	f.sub = &fakeSubscription{src: f, done: make(chan struct{})}
	return f.sub, nil
}

// fail ends the current subscription with err, as a watcher that ran out of
// resources would.
func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	sub := f.sub
	f.mu.Unlock()
	sub.end(err)
}

func (f *fakeSource) emit(paths ...string) {
	f.mu.Lock()
	cb := f.onBatch
	f.mu.Unlock()
	if cb != nil {
		cb(paths)
	}
}

func (f *fakeSource) counts() (subscribes, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes, f.closes
}

type fakeSubscription struct {
	src     *fakeSource
	once    sync.Once
	endOnce sync.Once
	done    chan struct{}
	err     error
}

func (s *fakeSubscription) Done() <-chan struct{} { return s.done }

func (s *fakeSubscription) Err() error {
	s.src.mu.Lock()
	defer s.src.mu.Unlock()
	return s.err
}

func (s *fakeSubscription) end(err error) {
	s.endOnce.Do(func() {
		s.src.mu.Lock()
		s.err = err
		s.src.onBatch = nil
		s.src.mu.Unlock()
		close(s.done)
	})
}

func (s *fakeSubscription) Close() error {
	s.once.Do(func() {
		s.src.mu.Lock()
		s.src.closes++
		s.src.onBatch = nil
		s.src.mu.Unlock()
	})
	s.end(nil)
	return nil
}

// fakeReloader records reload calls and fails for the configured plugins.
type fakeReloader struct {
	mu    sync.Mutex
	calls []plugin.ID
	fail  map[plugin.ID]error
	block map[plugin.ID]chan struct{}
}

func newFakeReloader() *fakeReloader {
	return &fakeReloader{
		fail:  make(map[plugin.ID]error),
		block: make(map[plugin.ID]chan struct{}),
	}
}

func (r *fakeReloader) ReloadFromDisk(ctx context.Context, id plugin.ID) error {
	r.mu.Lock()
	r.calls = append(r.calls, id)
	err := r.fail[id]
	gate := r.block[id]
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (r *fakeReloader) Calls() []plugin.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]plugin.ID, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *fakeReloader) countFor(id plugin.ID) int {
	n := 0
	for _, c := range r.Calls() {
		if c == id {
			n++
		}
	}
	return n
}

var errBoom = errors.New("boom")

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
