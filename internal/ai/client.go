// Package ai talks to an OpenAI-compatible API for chat completions and
// embeddings. Calls go through a circuit breaker so a failing provider is
// skipped quickly instead of stalling every survey page.
package ai

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

	"github.com/sony/gobreaker/v2"
)

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("ai: api key not configured")
	// ErrEmptyResponse is returned when the provider answers without choices or vectors.
	ErrEmptyResponse = errors.New("ai: empty response")
)

// HTTPClient is the subset of *http.Client the client needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
}

// Message is one chat-completion message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StatusError carries a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ai: provider returned %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	cfg    Config
	http   HTTPClient
	chat   *gobreaker.CircuitBreaker[string]
	embed  *gobreaker.CircuitBreaker[[][]float32]
	onTrip func(name string, from, to gobreaker.State)
}

// New builds a client. A nil httpClient falls back to a client with a 60s timeout.
func New(cfg Config, httpClient HTTPClient) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if strings.TrimSpace(cfg.EmbeddingModel) == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	c := &Client{cfg: cfg, http: httpClient}
	c.chat = gobreaker.NewCircuitBreaker[string](c.breakerSettings("ai-chat"))
	c.embed = gobreaker.NewCircuitBreaker[[][]float32](c.breakerSettings("ai-embeddings"))
	return c
}

func (c *Client) breakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// caller cancellations say nothing about provider health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if c.onTrip != nil {
				c.onTrip(name, from, to)
			}
		},
	}
}

// OnStateChange registers a hook for breaker transitions (used for logging).
func (c *Client) OnStateChange(fn func(name string, from, to gobreaker.State)) {
	c.onTrip = fn
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && strings.TrimSpace(c.cfg.APIKey) != ""
}

// Model returns the chat model name.
func (c *Client) Model() string { return c.cfg.Model }

// Chat sends messages and returns the first choice's content, trimmed.
func (c *Client) Chat(ctx context.Context, messages []Message, temperature float64) (string, error) {
	if !c.Enabled() {
		return "", ErrNotConfigured
	}
	return c.chat.Execute(func() (string, error) {
		payload := map[string]any{
			"model":       c.cfg.Model,
			"temperature": temperature,
			"messages":    messages,
		}
		var cc struct {
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
		}
		if err := c.post(ctx, endpoint(c.cfg.BaseURL, "chat/completions"), payload, &cc); err != nil {
			return "", err
		}
		if len(cc.Choices) == 0 {
			return "", ErrEmptyResponse
		}
		return strings.TrimSpace(cc.Choices[0].Message.Content), nil
	})
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}
	if len(texts) == 0 {
		return nil, nil
	}
	return c.embed.Execute(func() ([][]float32, error) {
		payload := map[string]any{
			"model": c.cfg.EmbeddingModel,
			"input": texts,
		}
		var er struct {
			Data []struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			} `json:"data"`
		}
		if err := c.post(ctx, endpoint(c.cfg.BaseURL, "embeddings"), payload, &er); err != nil {
			return nil, err
		}
		if len(er.Data) != len(texts) {
			return nil, ErrEmptyResponse
		}
		out := make([][]float32, len(texts))
		for i, d := range er.Data {
			idx := d.Index
			if idx < 0 || idx >= len(out) {
				idx = i
			}
			out[idx] = d.Embedding
		}
		return out, nil
	})
}

func (c *Client) post(ctx context.Context, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ai: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ai: decode response: %w", err)
	}
	return nil
}

// endpoint accepts bases with or without /v1 or a full resource path.
func endpoint(base, resource string) string {
	e := strings.TrimRight(strings.TrimSpace(base), "/")
	if e == "" {
		e = "https://api.openai.com"
	}
	switch {
	case strings.HasSuffix(e, "/"+resource):
		return e
	case strings.HasSuffix(e, "/chat/completions"):
		return strings.TrimSuffix(e, "/chat/completions") + "/" + resource
	case strings.HasSuffix(e, "/embeddings"):
		return strings.TrimSuffix(e, "/embeddings") + "/" + resource
	case strings.HasSuffix(e, "/v1"):
		return e + "/" + resource
	default:
		return e + "/v1/" + resource
	}
}
