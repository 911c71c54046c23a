// Package notify implements the Notifier port over an outbound webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonmartin721/devwatch/internal/domain/model"
	"github.com/jonmartin721/devwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.Notifier = (*WebhookNotifier)(nil)
	_ driven.Notifier = (*LogNotifier)(nil)
)

// WebhookNotifier delivers grouped notifications by POSTing a JSON payload
// to a configured endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a WebhookNotifier for the given endpoint URL.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewWebhookNotifierWithClient creates a WebhookNotifier with a custom
// http.Client. Intended for testing with an httptest server.
func NewWebhookNotifierWithClient(url string, client *http.Client) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: client}
}

// Notify posts the notification as JSON. Any non-2xx response is an error;
// the dispatcher treats delivery as fire-and-forget, so there is no retry.
func (n *WebhookNotifier) Notify(ctx context.Context, notification model.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// LogNotifier writes notifications to the structured log. It is the
// fallback sink when no webhook URL is configured, so grouped summaries
// still land somewhere visible.
type LogNotifier struct{}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify logs the notification.
func (n *LogNotifier) Notify(_ context.Context, notification model.Notification) error {
	slog.Info("activity notification",
		"repo", notification.RepoFullName,
		"summary", notification.Summary,
		"count", notification.Count,
		"url", notification.URL,
	)
	return nil
}
