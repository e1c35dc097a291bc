// Package embedding provides the client for the Ollama embeddings endpoint.
//
// The client turns arbitrary text into a fixed-length dense vector by calling
// POST {host}/api/embeddings. Callers validate the returned dimension against
// the index configuration before persisting anything; see internal/index.
package embedding

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

	"github.com/orgpedia/orgpedia/internal/log"
)

// DefaultTimeout bounds a single embedding call.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an upstream error response is retained.
const maxErrorBody = 2048

// ErrNoContent indicates the text to embed was empty. No network call is
// made for empty input.
var ErrNoContent = errors.New("no content to embed")

// BackendError reports a non-success response from the embedding backend.
type BackendError struct {
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("embedding backend returned %d: %s", e.Status, e.Message)
}

// Client calls the Ollama embeddings endpoint.
type Client struct {
	host   string
	model  string
	http   *http.Client
	logger log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default 30s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client. Tests use this to
// point the client at an httptest server transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// NewClient creates an embedding client for the given Ollama host and model.
func NewClient(host, model string, logger log.Logger, opts ...Option) *Client {
	c := &Client{
		host:   strings.TrimRight(host, "/"),
		model:  model,
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the embedding vector for text.
//
// Empty or whitespace-only text returns ErrNoContent without touching the
// network. Non-2xx responses return a *BackendError carrying the backend's
// message.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoContent
	}

	body, err := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("encoding embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling embedding backend: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Error("embedding backend error",
			"status", resp.StatusCode,
			"model", c.model)
		return nil, &BackendError{Status: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding embedding response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, &BackendError{Status: resp.StatusCode, Message: "empty embedding returned"}
	}

	c.logger.Debug("embedded text", "model", c.model, "dims", len(out.Embedding), "text_len", len(text))
	return out.Embedding, nil
}
