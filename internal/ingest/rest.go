package ingest

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/persistorai/cadence/internal/models"
)

// maxResponseBytes caps how much of a polled response is read.
const maxResponseBytes = 10 << 20

// Fetcher polls REST endpoints for records.
type Fetcher struct {
	client *http.Client
	now    func() time.Time
}

// NewFetcher creates a Fetcher whose requests are bounded by timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

// Fetch GETs endpoint and decodes the records it returns. An empty endpoint
// yields a single simulated record so that sources can be exercised before
// they are wired to a real system.
func (f *Fetcher) Fetch(ctx context.Context, endpoint string) ([]map[string]any, error) {
	if endpoint == "" {
		return []map[string]any{{
			"date":     f.now().UTC().Format(time.RFC3339Nano),
			"value":    float64(rand.IntN(1000)), //nolint:gosec // simulated sample data.
			"category": "simulated",
		}}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building poll request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: polling %s: %w", models.ErrUpstream, endpoint, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body.

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: polling %s: status %d", models.ErrUpstream, endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading poll response: %w", models.ErrUpstream, err)
	}

	recs, err := ParseJSON(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrUpstream, err)
	}

	return recs, nil
}
