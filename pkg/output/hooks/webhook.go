// Package hooks provides event hooks for real-time integrations: structured
// logs, Prometheus metrics, OpenTelemetry traces and breaker alert
// webhooks.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/scanguard/scanguard/pkg/defaults"
	"github.com/scanguard/scanguard/pkg/duration"
	"github.com/scanguard/scanguard/pkg/output/dispatcher"
	"github.com/scanguard/scanguard/pkg/output/events"
)

// Compile-time interface check.
var _ dispatcher.Hook = (*WebhookHook)(nil)

// WebhookHook posts breaker transitions as JSON to an HTTP endpoint, with
// retries and exponential backoff. Invocation events are sent only when
// IncludeInvocations is set.
type WebhookHook struct {
	endpoint string
	client   *http.Client
	opts     WebhookOptions
	logger   *slog.Logger
}

// WebhookOptions configures the webhook hook behavior.
type WebhookOptions struct {
	// Headers to include in requests.
	Headers map[string]string

	// Timeout for one HTTP request (default: 10s).
	Timeout time.Duration

	// RetryCount is the number of delivery attempts (default: 3).
	RetryCount int

	// Backoff is the first retry delay, doubled per attempt (default: 1s).
	Backoff time.Duration

	// OnlyOpen restricts alerts to transitions into OPEN.
	OnlyOpen bool

	// IncludeInvocations also sends invocation events.
	IncludeInvocations bool

	// Logger receives delivery failures.
	Logger *slog.Logger
}

// NewWebhookHook creates a new webhook hook that sends events to endpoint.
// The hook is safe for concurrent use.
func NewWebhookHook(endpoint string, opts WebhookOptions) *WebhookHook {
	if opts.Timeout == 0 {
		opts.Timeout = duration.WebhookTimeout
	}
	if opts.RetryCount == 0 {
		opts.RetryCount = defaults.RetryMedium
	}
	if opts.Backoff == 0 {
		opts.Backoff = duration.WebhookBackoff
	}

	return &WebhookHook{
		endpoint: endpoint,
		client:   &http.Client{Timeout: opts.Timeout},
		opts:     opts,
		logger:   orDefault(opts.Logger),
	}
}

// OnEvent sends the event to the configured endpoint. Delivery failures
// are logged and never returned.
func (h *WebhookHook) OnEvent(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case *events.BreakerEvent:
		if h.opts.OnlyOpen && e.To != "OPEN" {
			return nil
		}
	case *events.InvocationEvent:
		if !h.opts.IncludeInvocations {
			return nil
		}
	default:
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("webhook: failed to marshal event", slog.String("error", err.Error()))
		return nil
	}

	if err := h.sendWithRetry(ctx, event.EventType(), body); err != nil {
		h.logger.Warn("webhook: failed to send event after retries",
			slog.String("endpoint", h.endpoint),
			slog.String("error", err.Error()))
	}
	return nil
}

// EventTypes returns the event types this hook handles.
func (h *WebhookHook) EventTypes() []events.EventType {
	if h.opts.IncludeInvocations {
		return []events.EventType{events.EventTypeBreaker, events.EventTypeInvocation}
	}
	return []events.EventType{events.EventTypeBreaker}
}

// sendWithRetry sends the request with exponential backoff retries.
func (h *WebhookHook) sendWithRetry(ctx context.Context, eventType events.EventType, body []byte) error {
	var lastErr error

	for attempt := 0; attempt < h.opts.RetryCount; attempt++ {
		if attempt > 0 {
			backoff := h.opts.Backoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		status, err := h.send(ctx, eventType, body)
		switch {
		case err != nil:
			lastErr = err
		case status >= 200 && status < 300:
			return nil
		case status >= 500:
			lastErr = fmt.Errorf("server error: %d", status)
		default:
			// 4xx is not retried.
			return fmt.Errorf("client error: %d", status)
		}
	}
	return lastErr
}

func (h *WebhookHook) send(ctx context.Context, eventType events.EventType, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", defaults.UserAgent("webhook"))
	req.Header.Set("X-Scanguard-Event-Type", string(eventType))
	for key, value := range h.opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
