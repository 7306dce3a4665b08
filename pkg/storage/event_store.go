package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lokus-ai/lokus-plugins/pkg/domain/events"
)

// HistoryFile is the JSON Lines file reload events are appended to.
const HistoryFile = "hotreload-events.jsonl"

const maxLineSize = 1024 * 1024

// FileEventStore keeps the reload history as a JSON Lines file, one event
// per line, oldest first.
type FileEventStore struct {
	mu  sync.RWMutex
	dir string
}

// NewFileEventStore creates a store writing to dir/HistoryFile. The
// directory is created on first write.
func NewFileEventStore(dir string) *FileEventStore {
	return &FileEventStore{dir: dir}
}

// Path returns the history file location.
func (s *FileEventStore) Path() string {
	return filepath.Join(s.dir, HistoryFile)
}

// Append records one event, filling in a missing id or timestamp.
func (s *FileEventStore) Append(event *events.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return fmt.Errorf("create history directory: %w", err)
	}
	f, err := os.OpenFile(s.Path(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("write event: %w", err)
	}
	return f.Close()
}

// Handler adapts the store to an events.Handler so it can subscribe to a
// publisher.
func (s *FileEventStore) Handler() events.Handler {
	return s.Append
}

// LoadAll returns every recorded event, oldest first. A missing file is an
// empty history.
func (s *FileEventStore) LoadAll() ([]*events.Event, error) {
	return s.load(func(*events.Event) bool { return true })
}

// LoadByPlugin returns the events recorded for one plugin.
func (s *FileEventStore) LoadByPlugin(id string) ([]*events.Event, error) {
	return s.load(func(e *events.Event) bool { return e.Plugin == id })
}

// LoadRecent returns at most n of the newest events, oldest first. n <= 0
// returns everything.
func (s *FileEventStore) LoadRecent(n int) ([]*events.Event, error) {
	all, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	return tail(all, n), nil
}

// Trim drops all but the newest keep events. The file is rewritten through
// a temporary file and renamed into place.
func (s *FileEventStore) Trim(keep int) error {
	if keep <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readLocked(func(*events.Event) bool { return true })
	if err != nil || len(all) <= keep {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, HistoryFile+".*")
	if err != nil {
		return fmt.Errorf("create temporary history: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, e := range tail(all, keep) {
		if err := enc.Encode(e); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("write event: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flush history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path()); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}

func (s *FileEventStore) load(keep func(*events.Event) bool) ([]*events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readLocked(keep)
}

func (s *FileEventStore) readLocked(keep func(*events.Event) bool) ([]*events.Event, error) {
	f, err := os.Open(s.Path())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	return decodeLines(f, keep)
}

func decodeLines(r io.Reader, keep func(*events.Event) bool) ([]*events.Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var result []*events.Event
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		e := new(events.Event)
		if err := json.Unmarshal(line, e); err != nil {
			return nil, fmt.Errorf("history line %d: %w", lineNo, err)
		}
		if keep(e) {
			result = append(result, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return result, nil
}

func tail(list []*events.Event, n int) []*events.Event {
	if n <= 0 || len(list) <= n {
		return list
	}
	return list[len(list)-n:]
}

// InMemoryEventPublisher fans events out to subscribed handlers in
// subscription order.
type InMemoryEventPublisher struct {
	mu       sync.RWMutex
	handlers []events.Handler
}

func NewInMemoryEventPublisher() *InMemoryEventPublisher {
	return &InMemoryEventPublisher{}
}

// Publish delivers event to every handler. A failing handler does not stop
// delivery to the others; Publish itself never fails.
func (p *InMemoryEventPublisher) Publish(event *events.Event) error {
	p.mu.RLock()
	handlers := append([]events.Handler(nil), p.handlers...)
	p.mu.RUnlock()

	for _, h := range handlers {
		_ = h(event)
	}
	return nil
}

// Subscribe registers a handler for every later event.
func (p *InMemoryEventPublisher) Subscribe(handler events.Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, handler)
}
