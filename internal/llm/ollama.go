package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/orgpedia/orgpedia/internal/log"
)

// Ollama streams chat completions from an Ollama server using its NDJSON
// protocol: POST {host}/api/chat with stream=true returns one JSON object
// per line, the last with "done": true.
type Ollama struct {
	host   string
	opts   Options
	http   *http.Client
	logger log.Logger
}

// NewOllama creates an Ollama provider for the given host.
func NewOllama(host string, opts Options, logger log.Logger) *Ollama {
	return &Ollama{
		host: strings.TrimRight(host, "/"),
		opts: opts,
		// No Timeout on the client: it would cut long generations short.
		// Cancellation comes from the request context.
		http:   &http.Client{},
		logger: logger,
	}
}

// Name implements Provider.
func (o *Ollama) Name() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatPart struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

// Stream implements Provider.
func (o *Ollama) Stream(ctx context.Context, model string, msgs []Message) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		body, err := json.Marshal(ollamaChatRequest{
			Model:    model,
			Messages: msgs,
			Stream:   true,
			Options: map[string]any{
				"temperature": o.opts.Temperature,
				"num_predict": o.opts.MaxTokens,
			},
		})
		if err != nil {
			yield(Chunk{}, fmt.Errorf("encoding chat request: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/chat", bytes.NewReader(body))
		if err != nil {
			yield(Chunk{}, fmt.Errorf("building chat request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.http.Do(req)
		if err != nil {
			yield(Chunk{}, fmt.Errorf("calling chat backend: %w", err))
			return
		}
		defer func() {
			// Draining is skipped on early exit: closing the body tells the
			// backend to stop generating.
			_ = resp.Body.Close()
		}()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			yield(Chunk{}, fmt.Errorf("chat backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var part ollamaChatPart
			if err := json.Unmarshal(line, &part); err != nil {
				yield(Chunk{}, fmt.Errorf("malformed chat chunk: %w", err))
				return
			}
			if part.Error != "" {
				yield(Chunk{}, fmt.Errorf("chat backend error: %s", part.Error))
				return
			}

			if part.Message.Content != "" {
				if !yield(Chunk{Content: part.Message.Content}, nil) {
					return
				}
			}
			if part.Done {
				yield(Chunk{Done: true}, nil)
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				yield(Chunk{}, ctx.Err())
				return
			}
			yield(Chunk{}, fmt.Errorf("reading chat stream: %w", err))
			return
		}

		// Stream ended without a done marker.
		yield(Chunk{}, fmt.Errorf("chat stream closed before completion"))
	}
}
