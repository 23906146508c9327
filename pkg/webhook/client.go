package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxBody caps how much of a sink response is kept for inspection.
const maxBody = 1 << 20

// Response is what a sink answered.
type Response struct {
	StatusCode int
	Body       []byte
}

// StatusError is returned for non-2xx answers.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook %s answered %d: %s", e.URL, e.StatusCode, e.Body)
}

// Observer receives one call per POST, e.g. for metrics.
type Observer func(url string, status int, took time.Duration, err error)

// Client posts JSON payloads to automation webhooks.
type Client struct {
	http     *http.Client
	logger   *zap.Logger
	observer Observer
}

// NewClient builds a client. The per-call timeout is applied through the context, so the
// underlying http.Client carries only a generous ceiling.
func NewClient(logger *zap.Logger, observer Observer) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:     &http.Client{Timeout: 5 * time.Minute},
		logger:   logger,
		observer: observer,
	}
}

// PostJSON marshals payload, posts it to url within timeout and returns the answer.
func (c *Client) PostJSON(ctx context.Context, url string, timeout time.Duration, payload interface{}) (*Response, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	took := time.Since(start)
	if err != nil {
		c.observe(url, 0, took, err)
		return nil, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		c.observe(url, resp.StatusCode, took, err)
		return nil, fmt.Errorf("read webhook response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{URL: url, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		c.observe(url, resp.StatusCode, took, statusErr)
		return nil, statusErr
	}

	c.observe(url, resp.StatusCode, took, nil)
	c.logger.Debug("webhook delivered", zap.String("url", url), zap.Int("status", resp.StatusCode), zap.Duration("took", took))
	return &Response{StatusCode: resp.StatusCode, Body: raw}, nil
}

func (c *Client) observe(url string, status int, took time.Duration, err error) {
	if c.observer != nil {
		c.observer(url, status, took, err)
	}
}

// ReportsError tells whether a sink body flags a failure: a JSON object with a truthy
// "Error" key, or any body containing the word "Error".
func (r *Response) ReportsError() bool {
	if r == nil || len(r.Body) == 0 {
		return false
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(r.Body, &obj); err == nil {
		return truthy(obj["Error"])
	}
	return strings.Contains(string(r.Body), "Error")
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	}
	return true
}
