package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lokus-ai/lokus-plugins/pkg/domain/events"
	"github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
)

// Reloader unloads a plugin and loads it again from disk.
type Reloader interface {
	ReloadFromDisk(ctx context.Context, id plugin.ID) error
}

// ReloaderFunc adapts a function to the Reloader interface.
type ReloaderFunc func(ctx context.Context, id plugin.ID) error

func (f ReloaderFunc) ReloadFromDisk(ctx context.Context, id plugin.ID) error {
	return f(ctx, id)
}

// ReloadDispatcher reloads the plugins of one cycle one after another.
// A failing plugin never prevents the others from being attempted.
//
// Reloads are awaited without a timeout: a reload that hangs stalls the rest
// of its cycle. Wrap the Reloader (see plugin.ResilientReloader) to bound it.
type ReloadDispatcher struct {
	reloader  Reloader
	publisher events.Publisher
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[plugin.ID]string
}

// NewReloadDispatcher creates a dispatcher. publisher may be nil.
func NewReloadDispatcher(reloader Reloader, publisher events.Publisher, logger *slog.Logger) *ReloadDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReloadDispatcher{
		reloader:  reloader,
		publisher: publisher,
		logger:    logger,
		inflight:  make(map[plugin.ID]string),
	}
}

// Dispatch runs one reload cycle over ids in lexical order and returns one
// result per id. A plugin still being reloaded by an overlapping cycle is
// reported as skipped with plugin.ErrReloadInFlight.
func (d *ReloadDispatcher) Dispatch(ctx context.Context, ids []plugin.ID) []plugin.ReloadResult {
	if len(ids) == 0 {
		return nil
	}

	ordered := make([]plugin.ID, len(ids))
	copy(ordered, ids)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	cycle := uuid.New().String()
	d.logger.Info("reload cycle started", "cycle", cycle, "plugins", ordered)

	results := make([]plugin.ReloadResult, 0, len(ordered))
	failed := 0
	for _, id := range ordered {
		res := d.reloadOne(ctx, cycle, id)
		if res.Outcome == plugin.OutcomeFailed {
			failed++
		}
		results = append(results, res)
		d.publish(res)
	}

	d.logger.Info("reload cycle finished", "cycle", cycle, "plugins", len(results), "failed", failed)
	return results
}

// InFlight returns the plugins currently being reloaded, sorted.
func (d *ReloadDispatcher) InFlight() []plugin.ID {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]plugin.ID, 0, len(d.inflight))
	for id := range d.inflight {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (d *ReloadDispatcher) reloadOne(ctx context.Context, cycle string, id plugin.ID) plugin.ReloadResult {
	res := plugin.ReloadResult{CycleID: cycle, Plugin: id, Started: time.Now()}

	if owner, ok := d.acquire(id, cycle); !ok {
		res.Outcome = plugin.OutcomeSkipped
		res.Err = &plugin.ReloadError{Plugin: id, Cause: plugin.ErrReloadInFlight}
		d.logger.Debug("plugin reload already in flight", "plugin", id, "cycle", cycle, "owner", owner)
		return res
	}
	defer d.release(id)

	err := d.safeReload(ctx, id)
	res.Duration = time.Since(res.Started)
	if err != nil {
		res.Outcome = plugin.OutcomeFailed
		res.Err = &plugin.ReloadError{Plugin: id, Cause: err}
		d.logger.Error("plugin reload failed", "plugin", id, "cycle", cycle, "error", err)
		return res
	}

	res.Outcome = plugin.OutcomeReloaded
	d.logger.Info("plugin reloaded", "plugin", id, "cycle", cycle, "duration", res.Duration)
	return res
}

// safeReload turns a panicking reloader into an ordinary failure.
func (d *ReloadDispatcher) safeReload(ctx context.Context, id plugin.ID) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reload panicked: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.reloader.ReloadFromDisk(ctx, id)
}

func (d *ReloadDispatcher) acquire(id plugin.ID, cycle string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if owner, busy := d.inflight[id]; busy {
		return owner, false
	}
	d.inflight[id] = cycle
	return "", true
}

func (d *ReloadDispatcher) release(id plugin.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, id)
}

func (d *ReloadDispatcher) publish(res plugin.ReloadResult) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(events.FromResult(res)); err != nil {
		d.logger.Warn("failed to publish reload event", "plugin", res.Plugin, "error", err)
	}
}
