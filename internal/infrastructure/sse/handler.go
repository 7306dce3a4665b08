// Package sse provides Server-Sent Events streaming for reload events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/lokus-ai/lokus-plugins/pkg/domain/events"
	"github.com/lokus-ai/lokus-plugins/pkg/storage"
)

// SSEHandler streams events via Server-Sent Events.
type SSEHandler struct {
	publisher *storage.InMemoryEventPublisher
	mu        sync.RWMutex
	clients   map[chan *events.Event]struct{}
}

// NewSSEHandler creates a new SSE handler subscribed to the publisher.
func NewSSEHandler(publisher *storage.InMemoryEventPublisher) *SSEHandler {
	h := &SSEHandler{
		publisher: publisher,
		clients:   make(map[chan *events.Event]struct{}),
	}

	publisher.Subscribe(func(e *events.Event) error {
		h.mu.RLock()
		defer h.mu.RUnlock()
		for ch := range h.clients {
			select {
			case ch <- e:
			default:
				// Drop if client is slow
			}
		}
		return nil
	})

	return h
}

// Clients returns the number of connected streams.
func (h *SSEHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP handles SSE connections. The optional query parameters types
// and plugin restrict the stream, both as comma-separated lists.
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	filter := ParseFilter(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := make(chan *events.Event, 64)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
		close(ch)
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if !filter.Allows(event) {
				continue
			}

			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(w, "id: %s\n", event.ID)
			_, _ = fmt.Fprintf(w, "event: %s\n", event.Type)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// Filter restricts a stream to some event types and plugins. Empty sets
// allow everything.
type Filter struct {
	Types   map[string]bool
	Plugins map[string]bool
}

// ParseFilter reads the types and plugin query parameters.
func ParseFilter(r *http.Request) Filter {
	q := r.URL.Query()
	return Filter{
		Types:   splitSet(q.Get("types")),
		Plugins: splitSet(q.Get("plugin")),
	}
}

// Allows reports whether e passes the filter.
func (f Filter) Allows(e *events.Event) bool {
	if len(f.Types) > 0 && !f.Types[e.Type] {
		return false
	}
	if len(f.Plugins) > 0 && !f.Plugins[e.Plugin] {
		return false
	}
	return true
}

func splitSet(list string) map[string]bool {
	set := make(map[string]bool)
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			set[item] = true
		}
	}
	return set
}
