package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFixtures returns both store implementations so every behavior is
// exercised against each.
func storeFixtures(t *testing.T) map[string]Store {
	t.Helper()
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
	}
}

func saveSequence(t *testing.T, store Store, sessionID string, contents ...string) []*UniversalMessage {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Duration(len(contents)) * time.Second)
	messages := make([]*UniversalMessage, len(contents))
	for i, content := range contents {
		m := NewMessage(RoleUser, content, TypeText)
		m.SessionID = sessionID
		m.Timestamp = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.SaveMessage(ctx, m))
		messages[i] = m
	}
	return messages
}

func TestSaveMessageRequiresSessionID(t *testing.T) {
	for name, store := range storeFixtures(t) {
		t.Run(name, func(t *testing.T) {
			m := NewMessage(RoleUser, "orphan", TypeText)
			err := store.SaveMessage(context.Background(), m)
			require.ErrorIs(t, err, ErrInvalidSessionID)
		})
	}
}

func TestStoreHistoryOrderAndFilters(t *testing.T) {
	for name, store := range storeFixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			saved := saveSequence(t, store, "s1", "one", "two", "three", "four")

			// Full history comes back in save order.
			history, err := store.GetConversationHistory(ctx, "s1", nil)
			require.NoError(t, err)
			require.Len(t, history, 4)
			for i, m := range history {
				assert.Equal(t, saved[i].MessageID, m.MessageID)
			}

			// Limit keeps the most recent messages.
			history, err = store.GetConversationHistory(ctx, "s1", &HistoryOptions{Limit: 2})
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.Equal(t, "three", history[0].Content)
			assert.Equal(t, "four", history[1].Content)

			// BeforeMessageID excludes the named message and everything after.
			history, err = store.GetConversationHistory(ctx, "s1", &HistoryOptions{
				BeforeMessageID: saved[2].MessageID,
			})
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.Equal(t, "two", history[1].Content)

			// Unknown sessions yield an empty history, not an error.
			history, err = store.GetConversationHistory(ctx, "nope", nil)
			require.NoError(t, err)
			assert.Empty(t, history)
		})
	}
}

func TestStoreHistoryTypeFilter(t *testing.T) {
	for name, store := range storeFixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			text := NewMessage(RoleUser, "quote V", TypeText)
			text.SessionID = "s1"
			require.NoError(t, store.SaveMessage(ctx, text))

			call := NewMessage(RoleAssistant, "", TypeToolCall)
			call.SessionID = "s1"
			call.ToolCalls = []*ToolCall{{ID: "t1", Name: "fetch"}}
			require.NoError(t, store.SaveMessage(ctx, call))

			history, err := store.GetConversationHistory(ctx, "s1", &HistoryOptions{
				MessageTypes: []MessageType{TypeToolCall},
			})
			require.NoError(t, err)
			require.Len(t, history, 1)
			assert.Equal(t, TypeToolCall, history[0].MessageType)
			require.Len(t, history[0].ToolCalls, 1)
			assert.Equal(t, "fetch", history[0].ToolCalls[0].Name)
		})
	}
}

func TestStoreSessionLifecycle(t *testing.T) {
	for name, store := range storeFixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.GetSession(ctx, "missing")
			require.ErrorIs(t, err, ErrSessionNotFound)

			session := NewSession("s1", "alice", "cli")
			require.NoError(t, store.SaveSession(ctx, session))

			loaded, err := store.GetSession(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, "alice", loaded.UserID)
			assert.Equal(t, "cli", loaded.ClientType)

			saveSequence(t, store, "s1", "one", "two")
			before := loaded.LastActivity
			time.Sleep(10 * time.Millisecond)
			require.NoError(t, store.UpdateSessionActivity(ctx, "s1"))

			loaded, err = store.GetSession(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, 2, loaded.MessageCount)
			assert.True(t, loaded.LastActivity.After(before))
		})
	}
}

func TestStoreDeleteSessionCascades(t *testing.T) {
	for name, store := range storeFixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.SaveSession(ctx, NewSession("s1", "alice", "cli")))
			saveSequence(t, store, "s1", "one", "two")

			require.NoError(t, store.DeleteSession(ctx, "s1"))

			_, err := store.GetSession(ctx, "s1")
			require.ErrorIs(t, err, ErrSessionNotFound)
			history, err := store.GetConversationHistory(ctx, "s1", nil)
			require.NoError(t, err)
			assert.Empty(t, history)

			// Deleting again is a no-op.
			require.NoError(t, store.DeleteSession(ctx, "s1"))
		})
	}
}

func TestStoreSearchMessages(t *testing.T) {
	for name, store := range storeFixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			saveSequence(t, store, "s1", "the Visa quote", "unrelated", "VISA again")
			saveSequence(t, store, "s2", "visa in another session")

			matches, err := store.SearchMessages(ctx, "visa", nil)
			require.NoError(t, err)
			require.Len(t, matches, 3)
			// Newest first.
			for i := 1; i < len(matches); i++ {
				assert.False(t, matches[i].Timestamp.After(matches[i-1].Timestamp))
			}

			matches, err = store.SearchMessages(ctx, "visa", &SearchOptions{
				SessionIDs: []string{"s2"},
			})
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, "s2", matches[0].SessionID)

			matches, err = store.SearchMessages(ctx, "visa", &SearchOptions{Limit: 1})
			require.NoError(t, err)
			assert.Len(t, matches, 1)
		})
	}
}

func TestStoreCleanupOldSessions(t *testing.T) {
	for name, store := range storeFixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			stale := NewSession("stale", "alice", "cli")
			stale.LastActivity = time.Now().UTC().Add(-48 * time.Hour)
			require.NoError(t, store.SaveSession(ctx, stale))
			saveSequence(t, store, "stale", "old message")

			fresh := NewSession("fresh", "alice", "cli")
			require.NoError(t, store.SaveSession(ctx, fresh))

			deleted, err := store.CleanupOldSessions(ctx, 24*time.Hour)
			require.NoError(t, err)
			assert.Equal(t, 1, deleted)

			_, err = store.GetSession(ctx, "stale")
			require.ErrorIs(t, err, ErrSessionNotFound)
			history, err := store.GetConversationHistory(ctx, "stale", nil)
			require.NoError(t, err)
			assert.Empty(t, history)
			_, err = store.GetSession(ctx, "fresh")
			require.NoError(t, err)
		})
	}
}

func TestStoreGetUserSessions(t *testing.T) {
	for name, store := range storeFixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				session := NewSession(fmt.Sprintf("s%d", i), "alice", "cli")
				session.LastActivity = time.Now().UTC().Add(time.Duration(i) * time.Minute)
				require.NoError(t, store.SaveSession(ctx, session))
			}
			require.NoError(t, store.SaveSession(ctx, NewSession("other", "bob", "cli")))

			sessions, err := store.GetUserSessions(ctx, "alice", 0)
			require.NoError(t, err)
			require.Len(t, sessions, 3)
			assert.Equal(t, "s2", sessions[0].SessionID)
			assert.Equal(t, "s0", sessions[2].SessionID)

			sessions, err = store.GetUserSessions(ctx, "alice", 2)
			require.NoError(t, err)
			assert.Len(t, sessions, 2)
		})
	}
}

func TestStoreStats(t *testing.T) {
	for name, store := range storeFixtures(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.SaveSession(ctx, NewSession("s1", "alice", "cli")))
			require.NoError(t, store.SaveSession(ctx, NewSession("s2", "bob", "cli")))
			saveSequence(t, store, "s1", "one", "two", "three")

			stats, err := store.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, stats.SessionCount)
			assert.Equal(t, 3, stats.MessageCount)
			assert.Equal(t, 2, stats.UserCount)
		})
	}
}

func TestFileStoreSkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()
	saveSequence(t, store, "s1", "first", "second")

	// Simulate a truncated write in the middle of the log.
	path := filepath.Join(dir, "messages", "s1.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{\"role\":\"user\",\"cont\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	saveSequence(t, store, "s1", "third")

	history, err := store.GetConversationHistory(ctx, "s1", nil)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "third", history[2].Content)
}

func TestFileStoreRejectsTraversalIDs(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	for _, id := range []string{"", ".", "..", "../escape", "a/b", `a\b`} {
		m := NewMessage(RoleUser, "hi", TypeText)
		m.SessionID = id
		require.ErrorIs(t, store.SaveMessage(ctx, m), ErrInvalidSessionID, "id %q", id)
		_, err := store.GetSession(ctx, id)
		require.ErrorIs(t, err, ErrInvalidSessionID, "id %q", id)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.SaveSession(ctx, NewSession("s1", "alice", "cli")))
	saveSequence(t, store, "s1", "persisted")

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	session, err := reopened.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "alice", session.UserID)
	history, err := reopened.GetConversationHistory(ctx, "s1", nil)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "persisted", history[0].Content)
}
