package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	body := `{"email":"ada@example.com","displayName":"Ada Lovelace","uid":"g-1","photoURL":"https://example.com/ada.png"}`
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/auth/register", strings.NewReader(body))
	resp := ts.do(t, req)

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got registerResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "Signed in successfully", got.Message)
	assert.Equal(t, "u-1", got.User.ID)
	assert.Equal(t, "ada@example.com", got.User.Email)

	// The returned token must pass verification.
	claims, err := ts.issuer.Verify(got.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
}

func TestRegister_MissingEmail(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/auth/register", strings.NewReader(`{"displayName":"x"}`))
	resp := ts.do(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegister_InvalidBody(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/auth/register", strings.NewReader(`{not json`))
	resp := ts.do(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegister_StoreFailure(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.users.err = errBackend

	body := `{"email":"ada@example.com"}`
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/auth/register", strings.NewReader(body))
	resp := ts.do(t, req)

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var got ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.NotContains(t, got.Error, "backend failure", "internal details must not leak")
}
