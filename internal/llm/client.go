// Package llm produces bot replies by calling an external chat-completion
// endpoint. Upstream failures never escape: every call yields a string, with
// canned fallbacks for errors and rate-limit exhaustion.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/playroomhq/playroom/internal/logger"
)

const (
	defaultEndpoint = "https://api.openai.com/v1/chat/completions"

	// maxAttempts bounds the retry loop for rate-limited calls; backoff
	// doubles from backoffBase each attempt (1x, 2x, 4x...).
	maxAttempts = 3
	backoffBase = time.Second

	// maxReplyTokens caps the length of bot replies.
	maxReplyTokens = 150

	// FallbackError is returned when the upstream fails for any reason
	// other than rate limiting.
	FallbackError = "Sorry, I'm having trouble thinking right now."
	// FallbackBusy is returned after the retry budget is exhausted.
	FallbackBusy = "Sorry, I'm a bit overwhelmed right now. Ask me again in a moment."
)

var errRateLimited = errors.New("upstream rate limited")

// Config wires a Client. Endpoint, HTTPClient and Sleep exist for tests and
// default to the real endpoint, a 30s-timeout client and time.Sleep.
type Config struct {
	APIKey     string
	Model      string
	Endpoint   string
	HTTPClient *http.Client
	Sleep      func(time.Duration)
}

// Client calls the chat-completion endpoint.
type Client struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
	sleep      func(time.Duration)
}

// New creates a responder client.
func New(cfg Config) *Client {
	c := &Client{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		endpoint:   cfg.Endpoint,
		httpClient: cfg.HTTPClient,
		sleep:      cfg.Sleep,
	}
	if c.endpoint == "" {
		c.endpoint = defaultEndpoint
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.sleep == nil {
		c.sleep = time.Sleep
	}
	return c
}

// Respond turns a system prompt and a user message into a reply. Retries up
// to maxAttempts times on rate limiting, sleeping the backoff between
// attempts; any other upstream failure returns the generic fallback at once.
func (c *Client) Respond(ctx context.Context, systemPrompt, userMessage string) string {
	backoff := backoffBase
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		reply, err := c.complete(ctx, systemPrompt, userMessage)
		if err == nil {
			return reply
		}
		if !errors.Is(err, errRateLimited) {
			logger.Warnf("[llm] completion failed: %v", err)
			return FallbackError
		}
		if attempt == maxAttempts {
			break
		}
		logger.Debugf("[llm] rate limited, retrying in %v (attempt %d/%d)", backoff, attempt, maxAttempts)
		c.sleep(backoff)
		backoff *= 2
	}
	logger.Warnf("[llm] rate limited after %d attempts; giving up", maxAttempts)
	return FallbackBusy
}

// complete issues one chat-completion request.
func (c *Client) complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	requestBody, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userMessage},
		},
		"max_tokens": maxReplyTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests {
		return "", errRateLimited
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("completion request status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}
	content := strings.TrimSpace(payload.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("completion response missing content")
	}
	return content, nil
}
