// Package notify forwards hot-reload events to outgoing webhooks and Slack.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/lokus-ai/lokus-plugins/pkg/domain/events"
)

// SignatureHeader carries the HMAC-SHA256 of a signed webhook body.
const SignatureHeader = "X-Lokus-Signature-256"

// Notifier sends outgoing notifications for hot-reload events.
type Notifier struct {
	endpoints  []events.WebhookEndpoint
	client     *http.Client
	deadLetter *DeadLetterStore
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewNotifier creates a notifier with the given endpoints and dead letter
// store. deadLetter may be nil. Disabled endpoints are dropped.
func NewNotifier(endpoints []events.WebhookEndpoint, deadLetter *DeadLetterStore, logger *slog.Logger) (*Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	active := make([]events.WebhookEndpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if !ep.Enabled {
			continue
		}
		switch ep.Type {
		case "", events.EndpointWebhook, events.EndpointSlack:
		default:
			return nil, fmt.Errorf("endpoint %q: unknown type %q", ep.Name, ep.Type)
		}
		if ep.URL == "" {
			return nil, fmt.Errorf("endpoint %q: url is required", ep.Name)
		}
		active = append(active, ep)
	}

	return &Notifier{
		endpoints: active,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		deadLetter: deadLetter,
		logger:     logger,
	}, nil
}

// Endpoints returns the enabled endpoints.
func (n *Notifier) Endpoints() []events.WebhookEndpoint {
	return n.endpoints
}

// Handler adapts the notifier to an event subscription.
func (n *Notifier) Handler() events.Handler {
	return func(e *events.Event) error {
		n.Notify(context.Background(), e)
		return nil
	}
}

// Payload is the JSON body sent to webhook endpoints.
type Payload struct {
	EventType string        `json:"event_type"`
	Timestamp time.Time     `json:"timestamp"`
	Data      *events.Event `json:"data"`
}

// Notify sends an event to all matching endpoints. Delivery happens in the
// background; use Wait to block until it has finished.
func (n *Notifier) Notify(ctx context.Context, event *events.Event) {
	for _, ep := range n.endpoints {
		if !ep.Matches(event.Type) {
			continue
		}
		body, err := encode(ep, event)
		if err != nil {
			n.logger.Warn("failed to encode notification", "endpoint", ep.Name, "error", err)
			continue
		}

		n.wg.Add(1)
		go func(ep events.WebhookEndpoint) {
			defer n.wg.Done()
			n.deliver(ctx, ep, event.Type, body)
		}(ep)
	}
}

// Wait blocks until every started delivery has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func encode(ep events.WebhookEndpoint, event *events.Event) ([]byte, error) {
	if ep.Type == events.EndpointSlack {
		text := formatSlackMessage(event)
		return json.Marshal(map[string]interface{}{
			"text": text,
			"blocks": []map[string]interface{}{
				{
					"type": "section",
					"text": map[string]string{
						"type": "mrkdwn",
						"text": text,
					},
				},
			},
		})
	}
	return json.Marshal(Payload{
		EventType: event.Type,
		Timestamp: event.Timestamp,
		Data:      event,
	})
}

func (n *Notifier) deliver(ctx context.Context, ep events.WebhookEndpoint, eventType string, body []byte) {
	maxRetries := ep.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := ep.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	r := retry.New[struct{}](retry.Config{
		MaxAttempts:   maxRetries,
		InitialDelay:  retryDelay,
		BackoffPolicy: retry.BackoffExponential,
	})
	_, err := r.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, n.send(ctx, ep, body)
	})
	if err == nil {
		return
	}

	n.logger.Warn("notification delivery failed", "endpoint", ep.Name, "event", eventType, "attempts", maxRetries, "error", err)
	if n.deadLetter == nil {
		return
	}
	dl := events.DeadLetter{
		Timestamp:   time.Now(),
		WebhookName: ep.Name,
		URL:         ep.URL,
		EventType:   eventType,
		Payload:     string(body),
		Error:       err.Error(),
		Attempts:    maxRetries,
	}
	if err := n.deadLetter.Append(dl); err != nil {
		n.logger.Error("failed to record dead letter", "endpoint", ep.Name, "error", err)
	}
}

func (n *Notifier) send(ctx context.Context, ep events.WebhookEndpoint, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Lokus-Plugins-Webhook/1.0")

	if ep.Secret != "" {
		req.Header.Set(SignatureHeader, sign(body, ep.Secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// sign computes HMAC-SHA256 of the payload using the secret.
func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func formatSlackMessage(event *events.Event) string {
	switch event.Type {
	case events.EventTypeReloaded:
		return fmt.Sprintf(":white_check_mark: Plugin reloaded: %s (%dms)", event.Plugin, event.DurationMS)
	case events.EventTypeReloadFailed:
		return fmt.Sprintf(":x: Plugin reload failed: %s\n%s", event.Plugin, event.Error)
	case events.EventTypeReloadSkipped:
		return fmt.Sprintf(":hourglass: Plugin reload skipped: %s", event.Plugin)
	case events.EventTypeWatcherStarted:
		return fmt.Sprintf(":eyes: Watching %s", event.Metadata["root"])
	case events.EventTypeWatcherStopped:
		return ":stop_sign: Plugin watcher stopped"
	default:
		return fmt.Sprintf("Lokus plugin event: %s", event.Type)
	}
}
