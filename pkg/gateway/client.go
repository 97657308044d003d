package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxResponse bounds how much of a webhook response is read.
const maxResponse = 1 << 20

// Client posts prompts to the webhook.
type Client struct {
	url  string
	http *http.Client
}

// NewClient returns a client for the webhook at url.
func NewClient(url string) *Client {
	return &Client{url: url, http: &http.Client{Timeout: 60 * time.Second}}
}

type request struct {
	Prompt string `json:"prompt"`
	Task   string `json:"task,omitempty"`
}

// Complete sends prompt and returns the normalised response.  Transport
// failures and non-2xx statuses are errors; a 2xx with an unusable body is a
// Malformed result.
func (c *Client) Complete(ctx context.Context, task, prompt string) (Result, error) {
	body, err := json.Marshal(request{Prompt: prompt, Task: task})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling gateway: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return nil, fmt.Errorf("reading gateway response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("gateway returned %s", resp.Status)
	}

	res := Normalize(raw)
	if m, ok := res.(Malformed); ok {
		slog.Warn("malformed gateway response", "reason", m.Reason, "body", m.Raw)
	}
	return res, nil
}

// SuggestDescription asks for a one or two sentence description of a
// document.
func (c *Client) SuggestDescription(ctx context.Context, title, content string) (Result, error) {
	prompt := fmt.Sprintf("Write a one or two sentence description for the following document.\n\nTitle: %s\n\n%s", title, content)
	return c.Complete(ctx, "describe", prompt)
}
