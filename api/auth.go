package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/orgpedia/orgpedia/internal/auth"
	"github.com/orgpedia/orgpedia/internal/log"
	"github.com/orgpedia/orgpedia/internal/user"
)

// UserStore persists accounts from identity provider profiles.
type UserStore interface {
	FindOrCreate(ctx context.Context, p user.Profile) (*user.User, error)
}

// TokenIssuer signs and verifies session tokens.
type TokenIssuer interface {
	Token(u *user.User) (string, error)
	Verify(token string) (*auth.Claims, error)
}

// AuthHandler handles registration. Identity verification itself happens at
// the external provider; this endpoint trusts the delivered profile and
// exchanges it for a session token.
type AuthHandler struct {
	users  UserStore
	tokens TokenIssuer
	logger log.Logger
}

// RegisterRoutes registers auth routes on the given mux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/register", h.register)
}

type registerResponse struct {
	Message     string `json:"message"`
	AccessToken string `json:"access_token"`
	User        struct {
		ID          string `json:"id"`
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
		PhotoURL    string `json:"photo_url"`
	} `json:"user"`
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var profile user.Profile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(profile.Email) == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	u, err := h.users.FindOrCreate(r.Context(), profile)
	if err != nil {
		h.logger.Error("sign in failed", "email", profile.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "an error occurred during sign in")
		return
	}

	token, err := h.tokens.Token(u)
	if err != nil {
		h.logger.Error("issuing token failed", "user_id", u.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "an error occurred during sign in")
		return
	}

	resp := registerResponse{Message: "Signed in successfully", AccessToken: token}
	resp.User.ID = u.ID
	resp.User.Email = u.Email
	resp.User.DisplayName = u.DisplayName
	resp.User.PhotoURL = u.PhotoURL
	writeJSON(w, http.StatusOK, resp)
}
