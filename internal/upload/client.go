package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/claude/cyclesense/internal/models"
)

// allowedMetric mirrors storage.AllowedMetric without importing the storage package
// (which would pull in pgx and other server-side dependencies).
type allowedMetric struct {
	MetricName string `json:"metric_name"`
	Enabled    bool   `json:"enabled"`
}

// Client sends data to the CycleSense server over HTTP.
type Client struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client

	// backoff is the wait before the second attempt; it doubles afterwards.
	backoff time.Duration
}

// NewClient creates a new HTTP client for the CycleSense server.
func NewClient(serverURL, apiKey string) *Client {
	return &Client{
		serverURL: serverURL,
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		backoff: time.Second,
	}
}

// FetchAllowlist retrieves the enabled metric names from the server.
func (c *Client) FetchAllowlist(ctx context.Context) (map[string]bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/api/v1/allowlist", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching allowlist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("allowlist request failed (status %d): %s", resp.StatusCode, body)
	}

	var metrics []allowedMetric
	if err := json.NewDecoder(resp.Body).Decode(&metrics); err != nil {
		return nil, fmt.Errorf("decoding allowlist: %w", err)
	}

	allowlist := make(map[string]bool, len(metrics))
	for _, m := range metrics {
		if m.Enabled {
			allowlist[m.MetricName] = true
		}
	}
	return allowlist, nil
}

// SendPayload POSTs an HAEPayload to the server's ingest endpoint.
// Retries up to 3 times with exponential backoff on failure. Client errors
// (4xx) are not retried.
func (c *Client) SendPayload(ctx context.Context, payload models.HAEPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff << uint(attempt-1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/api/v1/ingest/", bytes.NewReader(data))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			return nil
		}
		lastErr = fmt.Errorf("ingest failed (status %d): %s", resp.StatusCode, body)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return lastErr
		}
	}

	return fmt.Errorf("after 3 attempts: %w", lastErr)
}
