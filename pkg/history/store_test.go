package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelworks/agentchat/pkg/blocks"
	"github.com/kestrelworks/agentchat/pkg/chat"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("should round-trip a session", func(t *testing.T) {
		store := newTestStore(t)

		saved := []chat.Message{
			chat.NewUserMessage("what is 6 times 7"),
			chat.NewAssistantMessage("42"),
		}
		saved[1].ContentBlocks = blocks.Blocks{
			blocks.TextBlock{Text: "42"},
			blocks.ToolBlock{
				ID:     "t1",
				Name:   "calculator",
				Input:  map[string]any{"expr": "6*7"},
				Result: "42",
				Status: blocks.ToolSuccess,
			},
		}

		require.NoError(t, store.SaveSession(ctx, "s1", saved))

		loaded, err := store.LoadSession(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		assert.Equal(t, "what is 6 times 7", loaded[0].Content)
		assert.Equal(t, "42", loaded[1].Content)

		require.Len(t, loaded[1].ContentBlocks, 2)
		tool, ok := loaded[1].ContentBlocks[1].(blocks.ToolBlock)
		require.True(t, ok)
		assert.Equal(t, "calculator", tool.Name)
		assert.Equal(t, blocks.ToolSuccess, tool.Status)
		assert.Equal(t, "42", tool.Result)
	})

	t.Run("should overwrite on repeated save", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.SaveSession(ctx, "s1", []chat.Message{chat.NewUserMessage("one")}))
		require.NoError(t, store.SaveSession(ctx, "s1", []chat.Message{
			chat.NewUserMessage("one"),
			chat.NewAssistantMessage("two"),
		}))

		loaded, err := store.LoadSession(ctx, "s1")
		require.NoError(t, err)
		assert.Len(t, loaded, 2)

		ids, err := store.SessionIDs(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"s1"}, ids)
	})

	t.Run("should report a missing session", func(t *testing.T) {
		store := newTestStore(t)

		_, err := store.LoadSession(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)

		_, _, err = store.LatestSession(ctx)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("should return the latest session", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.SaveSession(ctx, "s1", []chat.Message{chat.NewUserMessage("hi")}))

		id, messages, err := store.LatestSession(ctx)
		require.NoError(t, err)
		assert.Equal(t, "s1", id)
		require.Len(t, messages, 1)
		assert.Equal(t, "hi", messages[0].Content)
	})

	t.Run("should delete a session", func(t *testing.T) {
		store := newTestStore(t)

		require.NoError(t, store.SaveSession(ctx, "s1", nil))
		require.NoError(t, store.DeleteSession(ctx, "s1"))

		_, err := store.LoadSession(ctx, "s1")
		assert.ErrorIs(t, err, ErrNotFound)

		// Deleting again is a no-op
		require.NoError(t, store.DeleteSession(ctx, "s1"))
	})

	t.Run("should list sessions up to the limit", func(t *testing.T) {
		store := newTestStore(t)

		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, store.SaveSession(ctx, id, nil))
		}

		ids, err := store.SessionIDs(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, ids, 2)

		ids, err = store.SessionIDs(ctx, 10)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)
	})

	t.Run("should answer ping", func(t *testing.T) {
		store := newTestStore(t)
		assert.NoError(t, store.Ping(ctx))
	})
}
