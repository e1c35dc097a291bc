// Package llm provides streaming chat-completion providers.
//
// A Provider turns a message list into a lazy, finite, non-restartable
// sequence of chunks. The sequence always ends with a single Done chunk
// carrying no content, so consumers can tell "more data" from "stream
// closed" without sentinel strings. Errors terminate the sequence; a
// provider stream is never resumed.
//
// The provider set is closed: Ollama and OpenAI. Adding a backend means
// adding a type that implements Provider and a case in ForProvider, not
// editing a conditional at every call site.
package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/orgpedia/orgpedia/internal/config"
	"github.com/orgpedia/orgpedia/internal/log"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrUnknownProvider indicates a provider name outside the closed set.
var ErrUnknownProvider = errors.New("unknown chat provider")

// Message is one chat turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chunk is one increment of a streaming completion. Exactly one chunk per
// stream has Done set; it is the terminator and carries no content.
type Chunk struct {
	Content string
	Done    bool
}

// Options carries sampling parameters shared by all providers.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Provider streams chat completions. Implementations must honor ctx
// cancellation by stopping the upstream request; callers stop consuming by
// breaking out of the range loop.
type Provider interface {
	// Name returns the provider identifier ("ollama", "openai").
	Name() string

	// Stream starts a completion and yields chunks as they arrive.
	// The yielded error, when non-nil, terminates the sequence.
	Stream(ctx context.Context, model string, msgs []Message) iter.Seq2[Chunk, error]
}

// ForProvider constructs the provider selected by cfg. The set is closed;
// unknown names fail here, at startup, rather than per request.
func ForProvider(cfg *config.Config, logger log.Logger) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		return NewOllama(cfg.OllamaHost, Options{
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}, logger), nil
	case config.ProviderOpenAI:
		return NewOpenAI(cfg.OpenAIAPIKey, Options{
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
