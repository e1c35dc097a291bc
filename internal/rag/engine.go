// Package rag orchestrates one retrieval-augmented answer turn: embed the
// question, search the index with progressively relaxed thresholds, assemble
// the context prompt, relay the streamed completion and persist the
// finished transcript.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/orgpedia/orgpedia/internal/chat"
	"github.com/orgpedia/orgpedia/internal/index"
	"github.com/orgpedia/orgpedia/internal/llm"
	"github.com/orgpedia/orgpedia/internal/log"
	"github.com/orgpedia/orgpedia/internal/prompt"
)

// SimilarityThresholds is the retrieval ladder: the first threshold yielding
// at least one hit wins. If none hit, the answer proceeds with zero context.
var SimilarityThresholds = []float64{0.7, 0.5, 0.3}

// searchSize caps the documents retrieved per threshold.
const searchSize = 3

// titleLimit bounds the chat title derived from the question.
const titleLimit = 64

// ErrNoQuestion indicates the transcript does not end with a user turn.
var ErrNoQuestion = errors.New("transcript must end with a user message")

// ErrPersistFailed marks a fully streamed answer whose transcript could not
// be saved. The streamed tokens are not retracted; callers surface the
// failure after the fact.
var ErrPersistFailed = errors.New("persisting transcript failed")

// QueryEmbeddingError is fatal: without a query vector no retrieval and no
// answer is possible.
type QueryEmbeddingError struct {
	Err error
}

func (e *QueryEmbeddingError) Error() string {
	return fmt.Sprintf("embedding query failed: %v", e.Err)
}
func (e *QueryEmbeddingError) Unwrap() error { return e.Err }

// Embedder produces the query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher ranks indexed documents against a query vector.
type Searcher interface {
	Search(ctx context.Context, query []float32, size int, minScore float64) ([]index.SearchResult, error)
}

// TranscriptStore saves the finished conversation.
type TranscriptStore interface {
	Create(ctx context.Context, userID, title string, turns []chat.Turn) (*chat.Chat, error)
}

// Engine ties the pipeline together. All collaborators are injected; the
// engine holds no ambient state and is safe for concurrent use.
type Engine struct {
	embedder Embedder
	searcher Searcher
	provider llm.Provider
	chats    TranscriptStore
	model    string
	logger   log.Logger
}

// NewEngine creates an Engine.
func NewEngine(embedder Embedder, searcher Searcher, provider llm.Provider, chats TranscriptStore, model string, logger log.Logger) *Engine {
	return &Engine{
		embedder: embedder,
		searcher: searcher,
		provider: provider,
		chats:    chats,
		model:    model,
		logger:   logger,
	}
}

// Answer runs one RAG turn. Every streamed chunk is passed to emit as it
// arrives; the accumulated answer is returned once the stream completes.
//
// After a complete stream the transcript (incoming turns plus the assistant
// turn with its context documents) is saved as a new chat. A persistence
// failure after a complete answer is reported as ErrPersistFailed together
// with the answer text. If ctx is cancelled mid-stream the partial answer is
// dropped and never persisted.
func (e *Engine) Answer(ctx context.Context, userID string, turns []chat.Turn, emit func(llm.Chunk) error) (string, error) {
	if len(turns) == 0 || turns[len(turns)-1].Role != llm.RoleUser {
		return "", ErrNoQuestion
	}
	question := turns[len(turns)-1].Content

	vec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return "", &QueryEmbeddingError{Err: err}
	}

	docs, err := e.retrieve(ctx, vec)
	if err != nil {
		return "", err
	}

	msgs := prompt.BuildMessages(docs, question)

	var answer strings.Builder
	for chunk, err := range e.provider.Stream(ctx, e.model, msgs) {
		if err != nil {
			return "", fmt.Errorf("streaming completion: %w", err)
		}
		answer.WriteString(chunk.Content)
		if err := emit(chunk); err != nil {
			e.logger.Info("consumer gone mid-stream, dropping partial answer",
				"user_id", userID, "error", err)
			return "", fmt.Errorf("emitting chunk: %w", err)
		}
		if chunk.Done {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		e.logger.Info("answer cancelled, skipping persistence", "user_id", userID)
		return "", err
	}

	final := answer.String()
	saved := append(append([]chat.Turn{}, turns...), chat.Turn{
		Role:    llm.RoleAssistant,
		Content: final,
		Context: docs,
	})
	if _, err := e.chats.Create(ctx, userID, deriveTitle(question), saved); err != nil {
		e.logger.Error("saving transcript failed", "user_id", userID, "error", err)
		return final, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	e.logger.Info("answer complete",
		"user_id", userID, "context_docs", len(docs), "answer_len", len(final))
	return final, nil
}

// retrieve walks the threshold ladder and returns the contents of the first
// non-empty result set. An index with no matches at any threshold yields
// zero documents, not an error.
func (e *Engine) retrieve(ctx context.Context, vec []float32) ([]string, error) {
	for _, threshold := range SimilarityThresholds {
		results, err := e.searcher.Search(ctx, vec, searchSize, threshold)
		if err != nil {
			return nil, fmt.Errorf("searching at threshold %.1f: %w", threshold, err)
		}
		if len(results) == 0 {
			continue
		}

		docs := make([]string, 0, len(results))
		for _, r := range results {
			docs = append(docs, r.Content)
		}
		e.logger.Debug("context retrieved",
			"threshold", threshold, "docs", len(docs), "top_score", results[0].Score)
		return docs, nil
	}

	e.logger.Debug("no documents above any threshold, answering without context")
	return nil, nil
}

// deriveTitle makes a chat title from the question.
func deriveTitle(question string) string {
	title := strings.Join(strings.Fields(question), " ")
	if title == "" {
		return "New chat"
	}
	if utf8.RuneCountInString(title) <= titleLimit {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:titleLimit])) + "…"
}
