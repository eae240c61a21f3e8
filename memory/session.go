package memory

import (
	"errors"
	"time"
)

// ErrSessionNotFound is returned by stores when a session id has no record.
var ErrSessionNotFound = errors.New("session not found")

// MemoryStrategy controls how a session trims history when it outgrows its
// context budget. Only FIFO trimming is implemented.
type MemoryStrategy string

const (
	StrategyFIFO MemoryStrategy = "fifo"
)

// ConversationSession is the durable record of one conversation.
type ConversationSession struct {
	SessionID        string         `json:"session_id"`
	UserID           string         `json:"user_id,omitempty"`
	ClientType       string         `json:"client_type,omitempty"`
	SystemPrompt     string         `json:"system_prompt,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	LastActivity     time.Time      `json:"last_activity"`
	MessageCount     int            `json:"message_count"`
	MaxContextLength int            `json:"max_context_length,omitempty"`
	MemoryStrategy   MemoryStrategy `json:"memory_strategy,omitempty"`
	ContextTags      []string       `json:"context_tags,omitempty"`
	SessionMetadata  map[string]any `json:"session_metadata,omitempty"`
}

// NewSession creates a session record with UTC creation and activity stamps.
func NewSession(sessionID, userID, clientType string) *ConversationSession {
	now := time.Now().UTC()
	return &ConversationSession{
		SessionID:      sessionID,
		UserID:         userID,
		ClientType:     clientType,
		CreatedAt:      now,
		LastActivity:   now,
		MemoryStrategy: StrategyFIFO,
	}
}

// Copy returns a copy with independent metadata and tags.
func (s *ConversationSession) Copy() *ConversationSession {
	cp := *s
	if s.SessionMetadata != nil {
		cp.SessionMetadata = make(map[string]any, len(s.SessionMetadata))
		for k, v := range s.SessionMetadata {
			cp.SessionMetadata[k] = v
		}
	}
	if len(s.ContextTags) > 0 {
		cp.ContextTags = append([]string(nil), s.ContextTags...)
	}
	return &cp
}
