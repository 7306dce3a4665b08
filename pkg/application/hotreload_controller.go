package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lokus-ai/lokus-plugins/pkg/domain/events"
	"github.com/lokus-ai/lokus-plugins/pkg/domain/lifecycle"
	"github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
)

// ChangeSource delivers batches of changed absolute paths below a root.
type ChangeSource interface {
	Subscribe(root string, onBatch func(paths []string)) (Subscription, error)
}

// Subscription is an open watch on a ChangeSource. Done is closed when the
// watch ends; Err then reports the fatal error, or nil after Close.
type Subscription interface {
	Done() <-chan struct{}
	Err() error
	Close() error
}

// RootResolver returns the directory plugins are installed in.
type RootResolver func() (string, error)

// StaticRoot resolves to a fixed directory.
func StaticRoot(dir string) RootResolver {
	return func() (string, error) {
		if dir == "" {
			return "", errors.New("plugin root is empty")
		}
		return dir, nil
	}
}

// HotReloadOptions configures a HotReloadController. Zero values select the
// defaults.
type HotReloadOptions struct {
	Debounce   time.Duration
	Classifier plugin.Classifier
	Publisher  events.Publisher
	Logger     *slog.Logger
}

// HotReloadController owns the watch subscription and drives the
// classify -> aggregate -> dispatch pipeline while running. It is safe for
// concurrent use; each instance is independent.
type HotReloadController struct {
	source      ChangeSource
	resolveRoot RootResolver
	aggregator  *ChangeAggregator
	dispatcher  *ReloadDispatcher
	publisher   events.Publisher
	logger      *slog.Logger

	mu      sync.Mutex
	machine *lifecycle.WatcherMachine
	sub     Subscription
	root    string
	ctx     context.Context
	failed  chan struct{}
	err     error
}

// NewHotReloadController wires a controller in the stopped state.
func NewHotReloadController(source ChangeSource, resolveRoot RootResolver, reloader Reloader, opts HotReloadOptions) (*HotReloadController, error) {
	if source == nil {
		return nil, errors.New("change source is required")
	}
	if resolveRoot == nil {
		return nil, errors.New("root resolver is required")
	}
	if reloader == nil {
		return nil, errors.New("reloader is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	machine, err := lifecycle.NewWatcherMachine("plugin-watcher")
	if err != nil {
		return nil, err
	}

	c := &HotReloadController{
		source:      source,
		resolveRoot: resolveRoot,
		dispatcher:  NewReloadDispatcher(reloader, opts.Publisher, logger),
		publisher:   opts.Publisher,
		logger:      logger,
		machine:     machine,
		ctx:         context.Background(),
	}
	c.aggregator = NewChangeAggregator(opts.Classifier, opts.Debounce, c.runCycle, logger)
	return c, nil
}

// Start opens a recursive watch on the plugin root. Starting a running
// controller is a no-op. When the watch cannot be opened the error is logged
// and returned, and the controller stays stopped so Start may be retried.
// ctx is handed to every reload triggered while running.
func (c *HotReloadController) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.machine.Is(lifecycle.Running) {
		return nil
	}
	if err := c.machine.Transition(lifecycle.EventStart); err != nil {
		return err
	}

	root, err := c.resolveRoot()
	if err != nil {
		return c.failStart(fmt.Errorf("resolve plugin root: %w", err))
	}

	if ctx == nil {
		ctx = context.Background()
	}
	c.ctx = ctx
	c.aggregator.Activate()

	sub, err := c.source.Subscribe(root, c.onBatch)
	if err != nil {
		c.aggregator.Reset()
		return c.failStart(fmt.Errorf("watch %s: %w", root, err))
	}

	c.sub = sub
	c.root = root
	c.err = nil
	c.failed = make(chan struct{})
	if err := c.machine.Transition(lifecycle.EventReady); err != nil {
		return err
	}
	go c.monitor(sub)

	c.logger.Info("plugin watcher started", "root", root)
	c.emit(events.EventTypeWatcherStarted, root)
	return nil
}

// Stop releases the watch, cancels a pending cycle and forgets pending
// changes. A cycle that is already dispatching runs to completion. Stop is
// safe to call any number of times.
func (c *HotReloadController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		if err := c.sub.Close(); err != nil {
			c.logger.Error("failed to close plugin watch", "root", c.root, "error", err)
		}
		c.sub = nil
	}
	c.aggregator.Reset()

	if c.machine.Is(lifecycle.Stopped) {
		return
	}
	if err := c.machine.Transition(lifecycle.EventStop); err != nil {
		c.logger.Error("watcher state transition failed", "error", err)
		return
	}
	c.logger.Info("plugin watcher stopped", "root", c.root)
	c.emit(events.EventTypeWatcherStopped, c.root)
}

// State returns the current lifecycle state.
func (c *HotReloadController) State() lifecycle.WatcherState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current()
}

// Err returns the error that stopped the last watch, or nil when it was
// stopped on request or is still running.
func (c *HotReloadController) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Wait blocks until ctx is done or the running watch fails. It returns the
// watch error in the second case and nil otherwise.
func (c *HotReloadController) Wait(ctx context.Context) error {
	c.mu.Lock()
	failed := c.failed
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil
	case <-failed:
		return c.Err()
	}
}

// Root returns the watched directory of the last successful Start.
func (c *HotReloadController) Root() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root
}

// Pending returns the plugins waiting for the next reload cycle.
func (c *HotReloadController) Pending() []plugin.ID {
	return c.aggregator.Pending()
}

// InFlight returns the plugins being reloaded right now.
func (c *HotReloadController) InFlight() []plugin.ID {
	return c.dispatcher.InFlight()
}

// Reload runs a reload cycle for ids right away, outside the debounce
// window. It works whether or not the watcher is running and shares the
// in-flight bookkeeping of watcher-triggered cycles.
func (c *HotReloadController) Reload(ctx context.Context, ids []plugin.ID) []plugin.ReloadResult {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.dispatcher.Dispatch(ctx, ids)
}

func (c *HotReloadController) onBatch(paths []string) {
	c.aggregator.OnRawBatch(paths)
}

// runCycle is the aggregator's flush callback; it runs on the debounce
// timer's goroutine.
func (c *HotReloadController) runCycle(ids []plugin.ID) {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	results := c.dispatcher.Dispatch(ctx, ids)

	var skipped []plugin.ID
	for _, r := range results {
		if r.Outcome == plugin.OutcomeSkipped {
			skipped = append(skipped, r.Plugin)
		}
	}
	c.aggregator.Requeue(skipped)
}

// monitor waits for sub to end. A watch that ends with an error moves the
// controller from running to stopped.
func (c *HotReloadController) monitor(sub Subscription) {
	<-sub.Done()
	err := sub.Err()
	if err == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != sub {
		return
	}
	_ = sub.Close()
	c.sub = nil
	c.aggregator.Reset()
	c.err = err

	if terr := c.machine.Transition(lifecycle.EventFail); terr != nil {
		c.logger.Error("watcher state transition failed", "error", terr)
	}
	c.logger.Error("plugin watcher stopped after watch error", "root", c.root, "error", err)
	c.emitError(events.EventTypeWatcherStopped, c.root, err)
	close(c.failed)
}

func (c *HotReloadController) failStart(err error) error {
	if terr := c.machine.Transition(lifecycle.EventFail); terr != nil {
		c.logger.Error("watcher state transition failed", "error", terr)
	}
	c.logger.Error("failed to start plugin watcher", "error", err)
	return err
}

func (c *HotReloadController) emit(eventType, root string) {
	c.emitError(eventType, root, nil)
}

func (c *HotReloadController) emitError(eventType, root string, cause error) {
	if c.publisher == nil {
		return
	}
	e := events.New(eventType)
	e.Metadata = map[string]string{"root": root}
	if cause != nil {
		e.Error = cause.Error()
	}
	if err := c.publisher.Publish(e); err != nil {
		c.logger.Warn("failed to publish watcher event", "type", eventType, "error", err)
	}
}
