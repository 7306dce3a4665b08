// Package watch provides the fsnotify-backed change source for the plugin
// hot-reload pipeline.
package watch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/lokus-ai/lokus-plugins/pkg/application"
)

var (
	// ErrRootNotDirectory indicates the watch root exists but is a file.
	ErrRootNotDirectory = errors.New("watch root is not a directory")

	// ErrWatchLost wraps the watcher error that ended a subscription.
	ErrWatchLost = errors.New("plugin watch lost")
)

// Options configures an FSNotifySource.
type Options struct {
	// Ignore lists glob patterns, relative to the root, that never produce
	// events. Nil selects DefaultIgnores.
	Ignore []string
	Logger *slog.Logger
}

// FSNotifySource watches a directory tree with fsnotify and delivers every
// change queued at once as a single batch of absolute paths.
type FSNotifySource struct {
	filter *IgnoreFilter
	logger *slog.Logger
}

var _ application.ChangeSource = (*FSNotifySource)(nil)

// NewFSNotifySource creates a change source.
func NewFSNotifySource(opts Options) (*FSNotifySource, error) {
	patterns := opts.Ignore
	if patterns == nil {
		patterns = DefaultIgnores
	}
	filter, err := NewIgnoreFilter(patterns)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FSNotifySource{filter: filter, logger: logger}, nil
}

// Subscribe starts a recursive watch on root. onBatch is called from the
// watch goroutine, never concurrently with itself.
func (s *FSNotifySource) Subscribe(root string, onBatch func(paths []string)) (application.Subscription, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDirectory, absRoot)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	sub := &Subscription{
		fsw:     fsw,
		root:    absRoot,
		filter:  s.filter,
		logger:  s.logger,
		onBatch: onBatch,
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	if _, err := sub.addTree(absRoot); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	sub.wg.Add(1)
	go sub.run()
	return sub, nil
}

// Subscription is an open recursive watch.
type Subscription struct {
	fsw     *fsnotify.Watcher
	root    string
	filter  *IgnoreFilter
	logger  *slog.Logger
	onBatch func([]string)

	done      chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu  sync.Mutex
	err error
}

// Root returns the absolute watched directory.
func (s *Subscription) Root() string {
	return s.root
}

// Done is closed once the watch has ended, either through Close or after a
// fatal watcher error.
func (s *Subscription) Done() <-chan struct{} {
	return s.exited
}

// Err returns the fatal error that ended the watch, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the watch and waits for the event goroutine to exit. It is
// safe to call more than once.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.fsw.Close()
		s.wg.Wait()
	})
	return err
}

func (s *Subscription) run() {
	defer s.wg.Done()
	defer close(s.exited)

	for {
		select {
		case <-s.done:
			return

		case evt, ok := <-s.fsw.Events:
			if !ok {
				return
			}
			batch := s.collect(nil, evt)

			// Everything already queued belongs to the same batch.
		drain:
			for {
				select {
				case evt, ok := <-s.fsw.Events:
					if !ok {
						break drain
					}
					batch = s.collect(batch, evt)
				default:
					break drain
				}
			}

			if len(batch) > 0 && s.onBatch != nil {
				select {
				case <-s.done:
					return
				default:
				}
				s.onBatch(batch)
			}

		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}
			// isFatalFsnotifyError is platform-specific (see fatal_*.go).
			if isFatalFsnotifyError(err) {
				s.mu.Lock()
				s.err = fmt.Errorf("%w: %w", ErrWatchLost, err)
				s.mu.Unlock()
				s.logger.Error("plugin watch failed", "root", s.root, "error", err)
				_ = s.fsw.Close()
				return
			}
			s.logger.Warn("plugin watch error", "root", s.root, "error", err)
		}
	}
}

func (s *Subscription) collect(batch []string, evt fsnotify.Event) []string {
	if evt.Op == fsnotify.Chmod {
		return batch
	}
	if s.ignored(evt.Name) {
		return batch
	}

	// New directories are watched and their contents reported, so a plugin
	// copied into place in one step is seen.
	if evt.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			files, err := s.addTree(evt.Name)
			if err != nil {
				s.logger.Warn("failed to watch new directory", "path", evt.Name, "error", err)
			}
			batch = append(batch, evt.Name)
			return append(batch, files...)
		}
	}
	return append(batch, evt.Name)
}

// addTree adds dir and every non-ignored directory below it to the watcher
// and returns the regular files found.
func (s *Subscription) addTree(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			s.logger.Debug("skipping inaccessible path", "path", path, "error", walkErr)
			return nil //nolint:nilerr // inaccessible paths are skipped
		}
		if path != s.root && s.ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files = append(files, path)
			return nil
		}
		if err := s.fsw.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
	return files, err
}

func (s *Subscription) ignored(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		rel = path
	}
	return s.filter.Ignored(rel)
}
