// Package chat persists chat transcripts. A transcript is stored as one
// JSONB document on its chat row and replaced as a unit after each
// assistant turn, so a chat is always either fully updated or untouched.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/orgpedia/orgpedia/internal/log"
)

// ErrNotFound indicates the chat does not exist or belongs to another user.
// The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("chat not found")

// Turn is a single transcript entry. Context carries the documents that
// grounded an assistant turn; it is empty on user turns.
type Turn struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Context []string `json:"context,omitempty"`
}

// Chat is a persisted conversation.
type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Title     string    `json:"title"`
	Turns     []Turn    `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists chats.
type Store struct {
	db     DB
	logger log.Logger
}

// NewStore creates a chat store.
func NewStore(db DB, logger log.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Create starts a new chat for the user.
func (s *Store) Create(ctx context.Context, userID, title string, turns []Turn) (*Chat, error) {
	doc, err := marshalTurns(turns)
	if err != nil {
		return nil, err
	}

	c := &Chat{ID: uuid.NewString(), UserID: userID, Title: title, Turns: turns}
	const q = `
		INSERT INTO chats (id, user_id, title, messages, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING created_at`
	if err := s.db.QueryRow(ctx, q, c.ID, userID, title, doc).Scan(&c.CreatedAt); err != nil {
		return nil, fmt.Errorf("creating chat: %w", err)
	}

	s.logger.Info("chat created", "chat_id", c.ID, "user_id", userID)
	return c, nil
}

// Get returns the user's chat by ID.
func (s *Store) Get(ctx context.Context, id, userID string) (*Chat, error) {
	const q = `
		SELECT id, user_id, title, messages, created_at
		FROM chats
		WHERE id = $1 AND user_id = $2`

	var c Chat
	var doc []byte
	err := s.db.QueryRow(ctx, q, id, userID).Scan(&c.ID, &c.UserID, &c.Title, &doc, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading chat %q: %w", id, err)
	}
	if err := json.Unmarshal(doc, &c.Turns); err != nil {
		return nil, fmt.Errorf("decoding transcript of chat %q: %w", id, err)
	}
	return &c, nil
}

// List returns the user's chats, newest first. Transcripts are included.
func (s *Store) List(ctx context.Context, userID string) ([]*Chat, error) {
	const q = `
		SELECT id, user_id, title, messages, created_at
		FROM chats
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}
	defer rows.Close()

	var chats []*Chat
	for rows.Next() {
		var c Chat
		var doc []byte
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &doc, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat: %w", err)
		}
		if err := json.Unmarshal(doc, &c.Turns); err != nil {
			return nil, fmt.Errorf("decoding transcript of chat %q: %w", c.ID, err)
		}
		chats = append(chats, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading chats: %w", err)
	}
	return chats, nil
}

// Update modifies the user's chat. A nil title leaves the title unchanged;
// nil turns leave the transcript unchanged.
func (s *Store) Update(ctx context.Context, id, userID string, title *string, turns []Turn) error {
	var doc []byte
	if turns != nil {
		var err error
		if doc, err = marshalTurns(turns); err != nil {
			return err
		}
	}

	const q = `
		UPDATE chats
		SET title = COALESCE($3, title),
		    messages = COALESCE($4, messages)
		WHERE id = $1 AND user_id = $2`

	tag, err := s.db.Exec(ctx, q, id, userID, title, doc)
	if err != nil {
		return fmt.Errorf("updating chat %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTurns replaces the transcript of the user's chat.
func (s *Store) SetTurns(ctx context.Context, id, userID string, turns []Turn) error {
	if turns == nil {
		turns = []Turn{}
	}
	return s.Update(ctx, id, userID, nil, turns)
}

// marshalTurns encodes a transcript for the JSONB column. A nil slice is
// stored as an empty array, never as JSON null.
func marshalTurns(turns []Turn) ([]byte, error) {
	if turns == nil {
		turns = []Turn{}
	}
	doc, err := json.Marshal(turns)
	if err != nil {
		return nil, fmt.Errorf("encoding transcript: %w", err)
	}
	return doc, nil
}
