package memory

import (
	"context"
	"strings"
	"time"
)

// HistoryOptions filter a conversation history read. Limit caps the result to
// the most recent N messages after filtering; zero means no cap.
// BeforeMessageID restricts the result to messages strictly older than the
// named message. MessageTypes, when non-empty, keeps only matching types.
type HistoryOptions struct {
	Limit           int
	BeforeMessageID string
	MessageTypes    []MessageType
}

// SearchOptions scope a message search. Limit caps the result count; zero
// means no cap.
type SearchOptions struct {
	UserID     string
	SessionIDs []string
	Limit      int
}

// StoreStats summarizes the contents of a store.
type StoreStats struct {
	SessionCount int `json:"session_count"`
	MessageCount int `json:"message_count"`
	UserCount    int `json:"user_count"`
}

// Store persists universal messages and session records. Implementations are
// safe for concurrent use. Saving a message or session with an id that
// already exists overwrites (for sessions) or appends (for messages).
type Store interface {
	// SaveMessage appends a message to its session's history. The message
	// is normalized (id and timestamp filled in) and validated first.
	SaveMessage(ctx context.Context, message *UniversalMessage) error

	// GetConversationHistory returns a session's messages in chronological
	// order, filtered per opts. A nil opts means the full history. An
	// unknown session yields an empty slice, not an error.
	GetConversationHistory(ctx context.Context, sessionID string, opts *HistoryOptions) ([]*UniversalMessage, error)

	// SaveSession upserts a session record.
	SaveSession(ctx context.Context, session *ConversationSession) error

	// GetSession returns the session record, or ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (*ConversationSession, error)

	// UpdateSessionActivity bumps the session's last-activity stamp to now
	// and refreshes its message count.
	UpdateSessionActivity(ctx context.Context, sessionID string) error

	// DeleteSession removes the session record and all of its messages.
	// Deleting an unknown session is a no-op.
	DeleteSession(ctx context.Context, sessionID string) error

	// SearchMessages returns messages whose flattened content contains the
	// query, case-insensitively, newest first.
	SearchMessages(ctx context.Context, query string, opts *SearchOptions) ([]*UniversalMessage, error)

	// CleanupOldSessions deletes sessions whose last activity is older than
	// the cutoff, cascading to their messages. Returns the number deleted.
	CleanupOldSessions(ctx context.Context, olderThan time.Duration) (int, error)

	// GetUserSessions returns a user's sessions ordered by last activity,
	// newest first. Limit zero means no cap.
	GetUserSessions(ctx context.Context, userID string, limit int) ([]*ConversationSession, error)

	// Stats reports aggregate counts.
	Stats(ctx context.Context) (*StoreStats, error)
}

// filterHistory applies HistoryOptions to a chronologically ordered slice.
// Shared by store implementations.
func filterHistory(messages []*UniversalMessage, opts *HistoryOptions) []*UniversalMessage {
	if opts == nil {
		opts = &HistoryOptions{}
	}
	if opts.BeforeMessageID != "" {
		cut := len(messages)
		for i, m := range messages {
			if m.MessageID == opts.BeforeMessageID {
				cut = i
				break
			}
		}
		messages = messages[:cut]
	}
	if len(opts.MessageTypes) > 0 {
		wanted := make(map[MessageType]bool, len(opts.MessageTypes))
		for _, mt := range opts.MessageTypes {
			wanted[mt] = true
		}
		filtered := make([]*UniversalMessage, 0, len(messages))
		for _, m := range messages {
			if wanted[m.MessageType] {
				filtered = append(filtered, m)
			}
		}
		messages = filtered
	}
	if opts.Limit > 0 && len(messages) > opts.Limit {
		messages = messages[len(messages)-opts.Limit:]
	}
	return messages
}

func matchesSearch(m *UniversalMessage, query string, opts *SearchOptions) bool {
	if opts != nil {
		if opts.UserID != "" && m.UserID != opts.UserID {
			return false
		}
		if len(opts.SessionIDs) > 0 {
			found := false
			for _, id := range opts.SessionIDs {
				if m.SessionID == id {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return containsFold(m.TextContent(), query)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
