// Package client is an HTTP client for the activitygate admin API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/TimurManjosov/activitygate/internal/events"
	"github.com/TimurManjosov/activitygate/internal/rules"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// TestResult is the outcome of a synchronous test delivery.
type TestResult struct {
	Outcome string `json:"outcome"`
	Status  int    `json:"status,omitempty"`
	Body    string `json:"body,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// IngestResult lists the jobs created for an event.
type IngestResult struct {
	Matched int      `json:"matched"`
	JobIDs  []string `json:"job_ids"`
}

// Client is an HTTP client for the activitygate API
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			// test deliveries wait for the remote endpoint
			Timeout: 60 * time.Second,
		},
	}
}

// ListRules retrieves every rule.
func (c *Client) ListRules(ctx context.Context) ([]rules.Rule, error) {
	var out []rules.Rule
	if err := c.do(ctx, http.MethodGet, "/v1/rules", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRule retrieves a single rule by key.
func (c *Client) GetRule(ctx context.Context, key string) (*rules.Rule, error) {
	var out rules.Rule
	if err := c.do(ctx, http.MethodGet, "/v1/rules/"+url.PathEscape(key), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveRule creates or replaces a rule and returns it as stored.
func (c *Client) SaveRule(ctx context.Context, r rules.Rule) (*rules.Rule, error) {
	var out rules.Rule
	if err := c.do(ctx, http.MethodPost, "/v1/rules", r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRule removes a rule.
func (c *Client) DeleteRule(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, "/v1/rules/"+url.PathEscape(key), nil, nil)
}

// ToggleRule flips a rule's isOn flag and returns the updated rule.
func (c *Client) ToggleRule(ctx context.Context, key string) (*rules.Rule, error) {
	var out rules.Rule
	if err := c.do(ctx, http.MethodPost, "/v1/rules/"+url.PathEscape(key)+"/toggle", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TestRule sends sample data through a rule and waits for the result.
func (c *Client) TestRule(ctx context.Context, key string) (*TestResult, error) {
	var out TestResult
	if err := c.do(ctx, http.MethodPost, "/v1/rules/"+url.PathEscape(key)+"/test", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendEvent ingests one event.
func (c *Client) SendEvent(ctx context.Context, env events.Envelope) (*IngestResult, error) {
	var out IngestResult
	if err := c.do(ctx, http.MethodPost, "/v1/events", env, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PendingJobs returns the delivery backlog.
func (c *Client) PendingJobs(ctx context.Context) (int, error) {
	var out struct {
		Pending int `json:"pending"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/queue", nil, &out); err != nil {
		return 0, err
	}
	return out.Pending, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
