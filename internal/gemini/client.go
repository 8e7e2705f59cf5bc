package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"
)

// ErrNoAPIKey is returned when the client is created without credentials.
var ErrNoAPIKey = errors.New("gemini API key is required")

// GeminiClient generates text for a prompt. Mocked in tests.
type GeminiClient interface {
	GenerateText(ctx context.Context, model string, prompt string) (string, error)
}

// Client wraps the official genai SDK.
type Client struct {
	client *genai.Client
	retry  retryPolicy
}

var _ GeminiClient = (*Client)(nil)

// retryPolicy bounds how long a single TL;DR request may keep retrying.
// The digest must not wait for the model for long, so these are short.
type retryPolicy struct {
	maxAttempts  int
	baseDelay    time.Duration
	maxDelay     time.Duration
	rateLimitGap time.Duration
}

var defaultRetry = retryPolicy{
	maxAttempts:  3,
	baseDelay:    5 * time.Second,
	maxDelay:     30 * time.Second,
	rateLimitGap: time.Minute,
}

// NewClient creates a client for the given API key.
func NewClient(ctx context.Context, apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &Client{client: client, retry: defaultRetry}, nil
}

// GenerateText sends the prompt and returns the text response.
// Rate limits and 5xx responses are retried a bounded number of times;
// quota exhaustion and other errors are returned immediately.
func (c *Client) GenerateText(ctx context.Context, model string, prompt string) (string, error) {
	var lastErr error
	var rateLimited bool

	for attempt := 0; attempt < c.retry.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.retry.delay(attempt, rateLimited)
			log.Printf("Retrying Gemini request (attempt %d/%d) after %v...", attempt+1, c.retry.maxAttempts, delay)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
		if err == nil {
			text, textErr := result.Text()
			if textErr != nil {
				return "", fmt.Errorf("get text from result: %w", textErr)
			}
			return text, nil
		}

		lastErr = err
		errStr := err.Error()

		switch {
		case isDailyQuotaError(errStr):
			return "", fmt.Errorf("gemini daily quota exceeded: %w", err)
		case isRateLimitError(errStr):
			log.Printf("Rate limit from Gemini: %v", err)
			rateLimited = true
		case isTemporaryError(errStr):
			log.Printf("Temporary error from Gemini: %v", err)
			rateLimited = false
		case isQuotaExceededError(errStr):
			return "", fmt.Errorf("gemini quota exceeded: %w", err)
		default:
			return "", fmt.Errorf("generate content: %w", err)
		}
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (p retryPolicy) delay(attempt int, rateLimited bool) time.Duration {
	if rateLimited {
		return p.rateLimitGap
	}
	d := p.baseDelay * time.Duration(attempt)
	if d > p.maxDelay {
		d = p.maxDelay
	}
	return d
}

// isDailyQuotaError reports a 429 caused by the free-tier daily request cap.
// Retrying it is pointless until the next day.
func isDailyQuotaError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	if !strings.Contains(errLower, "429") {
		return false
	}
	return strings.Contains(errLower, "generate_content_free_tier_requests") ||
		strings.Contains(errLower, "per day")
}

func isRateLimitError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	return strings.Contains(errLower, "429") ||
		strings.Contains(errLower, "rate limit") ||
		strings.Contains(errLower, "too many requests") ||
		strings.Contains(errLower, "resource exhausted")
}

// isTemporaryError covers 5xx responses and an overloaded model.
func isTemporaryError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	return strings.Contains(errLower, "500") ||
		strings.Contains(errLower, "502") ||
		strings.Contains(errLower, "503") ||
		strings.Contains(errLower, "504") ||
		strings.Contains(errLower, "internal server error") ||
		strings.Contains(errLower, "service unavailable") ||
		strings.Contains(errLower, "overloaded") ||
		strings.Contains(errLower, "gateway timeout")
}

func isQuotaExceededError(errStr string) bool {
	errLower := strings.ToLower(errStr)
	return strings.Contains(errLower, "quota") ||
		strings.Contains(errLower, "403")
}
