//go:build integration

package chat_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgpedia/orgpedia/internal/chat"
	"github.com/orgpedia/orgpedia/internal/log"
	"github.com/orgpedia/orgpedia/internal/testutil"
	"github.com/orgpedia/orgpedia/internal/user"
)

// Run with: go test -tags=integration ./internal/chat -v

func TestStore_Integration(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	logger := log.NewNop()

	users := user.NewStore(tdb.Pool, logger)
	owner, err := users.FindOrCreate(ctx, user.Profile{
		Email:       "ada@example.com",
		DisplayName: "Ada Lovelace",
		GoogleID:    "g-1",
	})
	require.NoError(t, err)

	other, err := users.FindOrCreate(ctx, user.Profile{
		Email:       "grace@example.com",
		DisplayName: "Grace Hopper",
		GoogleID:    "g-2",
	})
	require.NoError(t, err)

	t.Run("find or create keeps id on revisit", func(t *testing.T) {
		again, err := users.FindOrCreate(ctx, user.Profile{
			Email:       "ada@example.com",
			DisplayName: "Ada L.",
			GoogleID:    "g-1",
			PhotoURL:    "https://example.com/new.png",
		})
		require.NoError(t, err)
		assert.Equal(t, owner.ID, again.ID)
		assert.Equal(t, "Ada L.", again.DisplayName)
		assert.Equal(t, "https://example.com/new.png", again.PhotoURL)
	})

	store := chat.NewStore(tdb.Pool, logger)

	created, err := store.Create(ctx, owner.ID, "First chat", []chat.Turn{
		{Role: "user", Content: "hello"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	t.Run("get round-trips the transcript", func(t *testing.T) {
		got, err := store.Get(ctx, created.ID, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, "First chat", got.Title)
		require.Len(t, got.Turns, 1)
		assert.Equal(t, "hello", got.Turns[0].Content)
	})

	t.Run("foreign chat is not found", func(t *testing.T) {
		_, err := store.Get(ctx, created.ID, other.ID)
		assert.ErrorIs(t, err, chat.ErrNotFound)
	})

	t.Run("missing chat is not found", func(t *testing.T) {
		_, err := store.Get(ctx, "no-such-chat", owner.ID)
		assert.ErrorIs(t, err, chat.ErrNotFound)
	})

	t.Run("list is newest first", func(t *testing.T) {
		second, err := store.Create(ctx, owner.ID, "Second chat", nil)
		require.NoError(t, err)

		chats, err := store.List(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, chats, 2)
		assert.Equal(t, second.ID, chats[0].ID)
		assert.Equal(t, created.ID, chats[1].ID)
	})

	t.Run("update title only", func(t *testing.T) {
		title := "Renamed"
		require.NoError(t, store.Update(ctx, created.ID, owner.ID, &title, nil))

		got, err := store.Get(ctx, created.ID, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Title)
		require.Len(t, got.Turns, 1) // transcript untouched
	})

	t.Run("set turns replaces the transcript", func(t *testing.T) {
		turns := []chat.Turn{
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi there", Context: []string{"doc one"}},
		}
		require.NoError(t, store.SetTurns(ctx, created.ID, owner.ID, turns))

		got, err := store.Get(ctx, created.ID, owner.ID)
		require.NoError(t, err)
		require.Len(t, got.Turns, 2)
		assert.Equal(t, []string{"doc one"}, got.Turns[1].Context)
	})

	t.Run("update of foreign chat is not found", func(t *testing.T) {
		title := "hijack"
		err := store.Update(ctx, created.ID, other.ID, &title, nil)
		assert.ErrorIs(t, err, chat.ErrNotFound)
	})
}
