package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgpedia/orgpedia/internal/user"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testUser() *user.User {
	return &user.User{
		ID:          "u-1",
		Email:       "ada@example.com",
		DisplayName: "Ada Lovelace",
		PhotoURL:    "https://example.com/ada.png",
	}
}

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	issuer := NewIssuer(testSecret)
	token, err := issuer.Token(testUser())
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, "Ada Lovelace", claims.DisplayName)
	assert.Equal(t, "https://example.com/ada.png", claims.PhotoURL)

	ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	assert.Equal(t, TokenTTL, ttl)
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	token, err := NewIssuer(testSecret).Token(testUser())
	require.NoError(t, err)

	_, err = NewIssuer("another-secret-another-secret-xx").Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	issuer := NewIssuer(testSecret)
	issuer.now = func() time.Time { return time.Now().Add(-TokenTTL - time.Hour) }
	token, err := issuer.Token(testUser())
	require.NoError(t, err)

	_, err = NewIssuer(testSecret).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Garbage(t *testing.T) {
	t.Parallel()

	_, err := NewIssuer(testSecret).Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
