package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/orgpedia/orgpedia/internal/chat"
	"github.com/orgpedia/orgpedia/internal/llm"
	"github.com/orgpedia/orgpedia/internal/log"
	"github.com/orgpedia/orgpedia/internal/rag"
)

// ChatStore is the persistence surface the chat endpoints need.
type ChatStore interface {
	Create(ctx context.Context, userID, title string, turns []chat.Turn) (*chat.Chat, error)
	Get(ctx context.Context, id, userID string) (*chat.Chat, error)
	List(ctx context.Context, userID string) ([]*chat.Chat, error)
	Update(ctx context.Context, id, userID string, title *string, turns []chat.Turn) error
}

// AnswerStreamer runs one retrieval-augmented answer turn.
type AnswerStreamer interface {
	Answer(ctx context.Context, userID string, turns []chat.Turn, emit func(llm.Chunk) error) (string, error)
}

// ChatHandler handles chat CRUD and the streaming query endpoint.
type ChatHandler struct {
	chats  ChatStore
	engine AnswerStreamer
	logger log.Logger
}

// RegisterRoutes registers chat routes on the given mux, each wrapped in
// the auth guard.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	mux.Handle("POST /api/business/start-chat", guard(http.HandlerFunc(h.startChat)))
	mux.Handle("GET /api/business/chats", guard(http.HandlerFunc(h.list)))
	mux.Handle("POST /api/business/chats", guard(http.HandlerFunc(h.query)))
	mux.Handle("GET /api/business/chats/{id}", guard(http.HandlerFunc(h.get)))
	mux.Handle("PATCH /api/business/chats/{id}", guard(http.HandlerFunc(h.update)))
}

type startChatRequest struct {
	Title    string      `json:"title"`
	Messages []chat.Turn `json:"messages"`
}

func (h *ChatHandler) startChat(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	var req startChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.chats.Create(r.Context(), claims.UserID, req.Title, req.Messages)
	if err != nil {
		h.logger.Error("creating chat failed", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "an error occurred while creating the chat")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Chat created successfully",
		"id":      created.ID,
	})
}

func (h *ChatHandler) list(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	chats, err := h.chats.List(r.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("listing chats failed", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "an error occurred while fetching chats")
		return
	}
	if chats == nil {
		chats = []*chat.Chat{}
	}
	writeJSON(w, http.StatusOK, chats)
}

func (h *ChatHandler) get(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	c, err := h.chats.Get(r.Context(), r.PathValue("id"), claims.UserID)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return
		}
		h.logger.Error("loading chat failed", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "an error occurred while fetching the chat")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type updateChatRequest struct {
	Title    *string     `json:"title"`
	Messages []chat.Turn `json:"messages"`
}

func (h *ChatHandler) update(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())
	id := r.PathValue("id")

	var req updateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == nil && req.Messages == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}

	if err := h.chats.Update(r.Context(), id, claims.UserID, req.Title, req.Messages); err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat not found")
			return
		}
		h.logger.Error("updating chat failed", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "an error occurred while updating the chat")
		return
	}

	c, err := h.chats.Get(r.Context(), id, claims.UserID)
	if err != nil {
		h.logger.Error("reloading chat failed", "user_id", claims.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "an error occurred while updating the chat")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type queryRequest struct {
	Messages []chat.Turn `json:"messages"`
}

// query answers the last user message with retrieved context and streams
// the reply as data-only SSE frames: {"content":...} fragments, a single
// {"error":...} frame on failure, and the "[DONE]" terminator.
func (h *ChatHandler) query(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Messages) == 0 || req.Messages[len(req.Messages)-1].Role != llm.RoleUser {
		writeError(w, http.StatusBadRequest, "messages must end with a user message")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	_, err := h.engine.Answer(ctx, claims.UserID, req.Messages, func(c llm.Chunk) error {
		return writeSSEFrame(w, flusher, map[string]string{"content": c.Content})
	})
	if err != nil {
		switch {
		case ctx.Err() != nil:
			// Client is gone, nothing left to write.
			h.logger.Info("query cancelled", "user_id", claims.UserID)
			return
		case errors.Is(err, rag.ErrPersistFailed):
			// The answer streamed fully; report the save failure without
			// retracting it.
			_ = writeSSEFrame(w, flusher, map[string]string{"error": "failed to save the conversation"})
		default:
			h.logger.Error("query failed", "user_id", claims.UserID, "error", err)
			_ = writeSSEFrame(w, flusher, map[string]string{"error": "error processing request"})
			return
		}
	}

	_ = writeSSERaw(w, flusher, "[DONE]")
}

// writeSSEFrame writes one data-only SSE event with a JSON payload.
func writeSSEFrame(w http.ResponseWriter, flusher http.Flusher, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding SSE payload: %w", err)
	}
	return writeSSERaw(w, flusher, string(data))
}

// writeSSERaw writes one data-only SSE event with a literal payload.
func writeSSERaw(w http.ResponseWriter, flusher http.Flusher, payload string) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
