// Package user persists user accounts created from external identity
// provider profiles.
package user

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/orgpedia/orgpedia/internal/log"
)

// Profile is the identity information delivered by the frontend after a
// Google sign-in. The access token is the provider's, stored opaquely.
type Profile struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	GoogleID    string `json:"uid"`
	PhotoURL    string `json:"photoURL"`
	AccessToken string `json:"accessToken"`
}

// User is a persisted account.
type User struct {
	ID          string
	Email       string
	DisplayName string
	GoogleID    string
	PhotoURL    string
	CreatedAt   time.Time
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists users.
type Store struct {
	db     DB
	logger log.Logger
}

// NewStore creates a user store.
func NewStore(db DB, logger log.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// FindOrCreate upserts the account keyed by email. A revisit refreshes the
// mutable profile fields (display name, photo, google id, access token) but
// keeps the original account ID.
func (s *Store) FindOrCreate(ctx context.Context, p Profile) (*User, error) {
	const q = `
		INSERT INTO users (id, email, display_name, user_google_id, photo_url, access_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (email) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    user_google_id = EXCLUDED.user_google_id,
		    photo_url = EXCLUDED.photo_url,
		    access_token = EXCLUDED.access_token,
		    updated_at = now()
		RETURNING id, email, display_name, user_google_id, photo_url, created_at`

	var u User
	err := s.db.QueryRow(ctx, q,
		uuid.NewString(), p.Email, p.DisplayName, p.GoogleID, p.PhotoURL, p.AccessToken,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.GoogleID, &u.PhotoURL, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upserting user %q: %w", p.Email, err)
	}

	s.logger.Info("user signed in", "user_id", u.ID, "email", u.Email)
	return &u, nil
}
