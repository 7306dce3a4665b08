package application

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
)

// DefaultDebounce is the quiet period after the last relevant change before a
// reload cycle starts. A single logical write usually produces a burst of
// create/modify/chmod events; they collapse into one cycle.
const DefaultDebounce = 500 * time.Millisecond

// ChangeAggregator collects the plugins touched by raw filesystem batches and
// hands them to flush once the debounce window has passed without new
// relevant changes.
type ChangeAggregator struct {
	classifier plugin.Classifier
	logger     *slog.Logger
	flush      func(ids []plugin.ID)

	mu        sync.Mutex
	active    bool
	pending   map[plugin.ID]struct{}
	debouncer *Debouncer
}

// NewChangeAggregator creates an inactive aggregator. Zero or negative windows
// fall back to DefaultDebounce.
func NewChangeAggregator(classifier plugin.Classifier, window time.Duration, flush func(ids []plugin.ID), logger *slog.Logger) *ChangeAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = DefaultDebounce
	}
	a := &ChangeAggregator{
		classifier: classifier,
		logger:     logger,
		flush:      flush,
		pending:    make(map[plugin.ID]struct{}),
	}
	a.debouncer = NewDebouncer(window, a.drain)
	return a
}

// Activate lets the aggregator accept batches.
func (a *ChangeAggregator) Activate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = true
}

// OnRawBatch classifies every path and restarts the debounce window if any
// of them belongs to a plugin. It returns the number of plugin paths seen.
// Batches arriving while inactive are dropped.
func (a *ChangeAggregator) OnRawBatch(paths []string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active {
		return 0
	}

	matched := 0
	for _, p := range paths {
		id, ok := a.classifier.Classify(p)
		if !ok {
			continue
		}
		a.pending[id] = struct{}{}
		matched++
	}

	if matched > 0 {
		a.logger.Debug("plugin change detected", "paths", len(paths), "matched", matched, "pending", len(a.pending))
		a.debouncer.Trigger()
	}
	return matched
}

// Requeue puts ids back into the pending set and restarts the window.
func (a *ChangeAggregator) Requeue(ids []plugin.ID) {
	if len(ids) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.active {
		return
	}
	for _, id := range ids {
		a.pending[id] = struct{}{}
	}
	a.debouncer.Trigger()
}

// Pending returns the plugins waiting for the next cycle, sorted.
func (a *ChangeAggregator) Pending() []plugin.ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return sortedIDs(a.pending)
}

// Reset cancels the debounce timer, empties the pending set and deactivates
// the aggregator.
func (a *ChangeAggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.active = false
	a.debouncer.Stop()
	clear(a.pending)
}

// drain runs on timer expiry. The pending set is cleared before flushing so
// slow or failing reloads never make it grow.
func (a *ChangeAggregator) drain() {
	a.mu.Lock()
	if !a.active || len(a.pending) == 0 {
		a.mu.Unlock()
		return
	}
	snapshot := sortedIDs(a.pending)
	clear(a.pending)
	a.mu.Unlock()

	if a.flush != nil {
		a.flush(snapshot)
	}
}

func sortedIDs(set map[plugin.ID]struct{}) []plugin.ID {
	ids := make([]plugin.ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
