// Package notify delivers the final pipeline result to external consumers.
// Notification failures are logged and never affect the pipeline result.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vk/gridci/internal/aggregate"
	"github.com/vk/gridci/internal/ctxlog"
)

// Notifier is invoked once per run with the final pipeline result.
type Notifier interface {
	Notify(ctx context.Context, result *aggregate.PipelineResult) error
}

// Webhook POSTs the pipeline result as JSON to a fixed URL.
type Webhook struct {
	URL    string
	Client *http.Client
}

// NewWebhook creates a webhook notifier with a sane request timeout.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify implements Notifier.
func (w *Webhook) Notify(ctx context.Context, result *aggregate.PipelineResult) error {
	logger := ctxlog.FromContext(ctx)

	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("delivering notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %s", resp.Status)
	}

	logger.Debug("Notification delivered.", "url", w.URL, "status", resp.Status)
	return nil
}
