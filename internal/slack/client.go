package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebhookClient posts a text payload to an incoming-webhook URL.
// Defined as an interface so the sender can be tested without a network.
type WebhookClient interface {
	Post(ctx context.Context, webhookURL, text string) error
}

// Client is the HTTP implementation of WebhookClient.
type Client struct {
	client *http.Client
}

var _ WebhookClient = (*Client)(nil)

// NewClient creates a webhook client with a bounded timeout.
func NewClient(client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{client: client}
}

type payload struct {
	Text string `json:"text"`
}

// Post sends {"text": text}. Any non-2xx response is an error.
func (c *Client) Post(ctx context.Context, webhookURL, text string) error {
	data, err := json.Marshal(payload{Text: text})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
