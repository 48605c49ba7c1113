package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// PagingClientConfig holds the HTTP client options for the paging service.
type PagingClientConfig struct {
	// EnqueueURL is the alert-enqueue endpoint.
	EnqueueURL string
	// LogEntriesURL is the log-entries listing endpoint.
	LogEntriesURL string
	// APIKey authenticates the log-entries reads.
	APIKey string
	// Timeout bounds one HTTP round trip.
	Timeout time.Duration
}

// HTTPPagingClient talks to the paging service's REST API. Enqueue calls are
// retried with exponential backoff since the service occasionally sheds load.
type HTTPPagingClient struct {
	cfg    PagingClientConfig
	client *http.Client
}

// NewHTTPPagingClient creates the client.
func NewHTTPPagingClient(cfg PagingClientConfig) (*HTTPPagingClient, error) {
	if cfg.EnqueueURL == "" || cfg.LogEntriesURL == "" {
		return nil, fmt.Errorf("paging client requires enqueue and log-entries URLs")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPPagingClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Enqueue posts one event to the alert-enqueue endpoint.
func (c *HTTPPagingClient) Enqueue(ctx context.Context, event PagingEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize paging event: %w", err)
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.EnqueueURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("paging enqueue returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("paging enqueue returned %d", resp.StatusCode))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(operation, policy)
}

// LogEntries fetches the most recent log entries.
func (c *HTTPPagingClient) LogEntries(ctx context.Context, limit int) ([]PagingLogEntry, error) {
	u, err := url.Parse(c.cfg.LogEntriesURL)
	if err != nil {
		return nil, fmt.Errorf("invalid log-entries URL: %w", err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("paging log-entries returned %d", resp.StatusCode)
	}

	var payload struct {
		LogEntries []PagingLogEntry `json:"log_entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode log entries: %w", err)
	}
	return payload.LogEntries, nil
}

func (c *HTTPPagingClient) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Token token="+c.cfg.APIKey)
	}
}
