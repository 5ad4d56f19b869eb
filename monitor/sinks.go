package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Sink receives fired alerts. Implementations must be safe for
// concurrent use.
type Sink interface {
	Notify(ctx context.Context, a Alert) error
}

// LogSink writes alerts to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Notify(_ context.Context, a Alert) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("alert", "type", a.Type, "site", a.Site, "message", a.Message)
	return nil
}

// WebhookSink POSTs alerts as JSON to a configured URL.
type WebhookSink struct {
	URL    string
	Client *http.Client
}

func (s WebhookSink) Notify(ctx context.Context, a Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
