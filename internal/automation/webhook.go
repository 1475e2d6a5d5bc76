package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/persistorai/cadence/internal/models"
)

// WebhookPayload is the JSON body posted for a triggered WEBHOOK rule.
type WebhookPayload struct {
	RuleID      string  `json:"ruleId"`
	MetricValue float64 `json:"metricValue"`
	Triggered   bool    `json:"triggered"`
}

// HTTPDeliverer posts webhook payloads over HTTP.
type HTTPDeliverer struct {
	client *http.Client
}

// NewHTTPDeliverer creates an HTTPDeliverer whose requests are bounded by timeout.
func NewHTTPDeliverer(timeout time.Duration) *HTTPDeliverer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPDeliverer{client: &http.Client{Timeout: timeout}}
}

// Deliver posts p to target. Transport errors and non-2xx responses are
// reported as models.ErrUpstream.
func (d *HTTPDeliverer) Deliver(ctx context.Context, target string, p WebhookPayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: delivering webhook: %w", models.ErrUpstream, err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body is discarded.

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: webhook responded with status %d", models.ErrUpstream, resp.StatusCode)
	}

	return nil
}
