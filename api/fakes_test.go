package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orgpedia/orgpedia/internal/auth"
	"github.com/orgpedia/orgpedia/internal/chat"
	"github.com/orgpedia/orgpedia/internal/ingest"
	"github.com/orgpedia/orgpedia/internal/llm"
	"github.com/orgpedia/orgpedia/internal/log"
	"github.com/orgpedia/orgpedia/internal/rag"
	"github.com/orgpedia/orgpedia/internal/user"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeUsers struct {
	err  error
	last user.Profile
}

func (f *fakeUsers) FindOrCreate(_ context.Context, p user.Profile) (*user.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.last = p
	return &user.User{ID: "u-1", Email: p.Email, DisplayName: p.DisplayName, PhotoURL: p.PhotoURL}, nil
}

type fakeChats struct {
	chats map[string]*chat.Chat
	err   error
}

func newFakeChats() *fakeChats {
	return &fakeChats{chats: map[string]*chat.Chat{}}
}

func (f *fakeChats) Create(_ context.Context, userID, title string, turns []chat.Turn) (*chat.Chat, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := &chat.Chat{ID: "c-1", UserID: userID, Title: title, Turns: turns}
	f.chats[c.ID] = c
	return c, nil
}

func (f *fakeChats) Get(_ context.Context, id, userID string) (*chat.Chat, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.chats[id]
	if !ok || c.UserID != userID {
		return nil, chat.ErrNotFound
	}
	return c, nil
}

func (f *fakeChats) List(_ context.Context, userID string) ([]*chat.Chat, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*chat.Chat
	for _, c := range f.chats {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChats) Update(_ context.Context, id, userID string, title *string, turns []chat.Turn) error {
	c, ok := f.chats[id]
	if !ok || c.UserID != userID {
		return chat.ErrNotFound
	}
	if title != nil {
		c.Title = *title
	}
	if turns != nil {
		c.Turns = turns
	}
	return nil
}

// fakeEngine emits scripted chunks, then optionally fails.
type fakeEngine struct {
	chunks     []llm.Chunk
	err        error // returned after emitting chunks
	answer     string
	gotUserID  string
	gotTurns   []chat.Turn
	persistErr bool // wrap err as rag.ErrPersistFailed
}

func (f *fakeEngine) Answer(_ context.Context, userID string, turns []chat.Turn, emit func(llm.Chunk) error) (string, error) {
	f.gotUserID = userID
	f.gotTurns = turns
	for _, c := range f.chunks {
		if err := emit(c); err != nil {
			return "", err
		}
	}
	if f.persistErr {
		return f.answer, rag.ErrPersistFailed
	}
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeIngester struct {
	receipt *ingest.Receipt
	err     error
	gotMIME string
	gotData []byte
}

func (f *fakeIngester) Ingest(_ context.Context, data []byte, mimeType string) (*ingest.Receipt, error) {
	f.gotData = data
	f.gotMIME = mimeType
	if f.err != nil {
		return nil, f.err
	}
	return f.receipt, nil
}

type testServer struct {
	*httptest.Server
	users  *fakeUsers
	chats  *fakeChats
	engine *fakeEngine
	ingest *fakeIngester
	issuer *auth.Issuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		users:  &fakeUsers{},
		chats:  newFakeChats(),
		engine: &fakeEngine{},
		ingest: &fakeIngester{receipt: &ingest.Receipt{DocumentID: "d-1", DocumentCount: 1}},
		issuer: auth.NewIssuer(testSecret),
	}

	srv := NewServer(Deps{
		Users:  ts.users,
		Chats:  ts.chats,
		Engine: ts.engine,
		Ingest: ts.ingest,
		Tokens: ts.issuer,
		Logger: log.NewNop(),
	})
	ts.Server = httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Server.Close)
	return ts
}

// bearerFor issues a valid token for the canonical test user u-1.
func (ts *testServer) bearerFor(t *testing.T) string {
	t.Helper()
	token, err := ts.issuer.Token(&user.User{ID: "u-1", Email: "ada@example.com"})
	require.NoError(t, err)
	return "Bearer " + token
}

func (ts *testServer) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

var errBackend = errors.New("backend failure")
