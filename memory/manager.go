package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vianexus/agent-sdk-go/slogger"
)

// SessionManager creates, clones, and inspects sessions on top of a Store.
// Session ids are generated from the client type, user id, and context label
// so that histories group naturally on disk.
type SessionManager struct {
	store  Store
	logger slogger.Logger

	createMu sync.Mutex
	creating map[string]*sync.Mutex
}

// SessionManagerOption configures a SessionManager.
type SessionManagerOption func(*SessionManager)

// WithSessionManagerLogger sets the manager's logger.
func WithSessionManagerLogger(logger slogger.Logger) SessionManagerOption {
	return func(m *SessionManager) {
		m.logger = logger
	}
}

// NewSessionManager creates a manager backed by the given store.
func NewSessionManager(store Store, opts ...SessionManagerOption) *SessionManager {
	m := &SessionManager{
		store:    store,
		logger:   slogger.DefaultLogger,
		creating: map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GenerateSessionID builds an id of the form
// <client_type>_<user_id>_<context>_<YYYYMMDD_HHMMSS>_<hex>. Empty parts are
// skipped; underscores in parts are preserved so ids only split reliably
// from the right.
func GenerateSessionID(clientType, userID, contextLabel string) string {
	var parts []string
	for _, part := range []string{clientType, userID, contextLabel} {
		if part != "" {
			parts = append(parts, sanitizeIDPart(part))
		}
	}
	parts = append(parts, time.Now().UTC().Format("20060102_150405"))
	parts = append(parts, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return strings.Join(parts, "_")
}

func sanitizeIDPart(part string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '_', r == '-':
			return r
		default:
			return '-'
		}
	}, part)
}

// lockFor returns a mutex dedicated to one session id, so concurrent creates
// of the same id serialize without blocking unrelated sessions.
func (m *SessionManager) lockFor(sessionID string) *sync.Mutex {
	m.createMu.Lock()
	defer m.createMu.Unlock()
	mu, ok := m.creating[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		m.creating[sessionID] = mu
	}
	return mu
}

// CreateSession generates a fresh session id and persists its record. On the
// unlikely chance the generated id already exists, a numeric suffix is
// appended until a free id is found.
func (m *SessionManager) CreateSession(ctx context.Context, clientType, userID, contextLabel string) (*ConversationSession, error) {
	base := GenerateSessionID(clientType, userID, contextLabel)
	sessionID := base
	for attempt := 1; ; attempt++ {
		mu := m.lockFor(sessionID)
		mu.Lock()
		_, err := m.store.GetSession(ctx, sessionID)
		if errors.Is(err, ErrSessionNotFound) {
			session := NewSession(sessionID, userID, clientType)
			if contextLabel != "" {
				session.ContextTags = []string{contextLabel}
			}
			saveErr := m.store.SaveSession(ctx, session)
			mu.Unlock()
			if saveErr != nil {
				return nil, saveErr
			}
			m.logger.Debug("created session", "session_id", sessionID)
			return session, nil
		}
		mu.Unlock()
		if err != nil {
			return nil, err
		}
		sessionID = fmt.Sprintf("%s_%d", base, attempt)
	}
}

// EnsureSessionExists creates a session record for the id if none exists.
// Idempotent: a concurrent or repeated call for the same id leaves exactly
// one record.
func (m *SessionManager) EnsureSessionExists(ctx context.Context, sessionID, clientType, userID string) (*ConversationSession, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	mu := m.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()
	session, err := m.store.GetSession(ctx, sessionID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	session = NewSession(sessionID, userID, clientType)
	if err := m.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// CloneSession copies a session and its full history under a new id. The new
// session's metadata records the source session id; each cloned message gets
// a fresh message id and records the id of the message it was copied from.
// An optional new user id reassigns the clone and its copied messages to that
// user. The histories diverge from the moment of the clone.
func (m *SessionManager) CloneSession(ctx context.Context, sourceID string, newUserID ...string) (*ConversationSession, error) {
	source, err := m.store.GetSession(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	history, err := m.store.GetConversationHistory(ctx, sourceID, nil)
	if err != nil {
		return nil, err
	}

	userID := source.UserID
	if len(newUserID) > 0 && newUserID[0] != "" {
		userID = newUserID[0]
	}
	clone, err := m.CreateSession(ctx, source.ClientType, userID, "clone")
	if err != nil {
		return nil, err
	}
	clone.SystemPrompt = source.SystemPrompt
	clone.MaxContextLength = source.MaxContextLength
	clone.MemoryStrategy = source.MemoryStrategy
	clone.ContextTags = append([]string(nil), source.ContextTags...)
	if clone.SessionMetadata == nil {
		clone.SessionMetadata = map[string]any{}
	}
	clone.SessionMetadata["cloned_from"] = sourceID
	if err := m.store.SaveSession(ctx, clone); err != nil {
		return nil, err
	}

	for _, message := range history {
		cp := message.Copy()
		cp.MessageID = uuid.NewString()
		cp.SessionID = clone.SessionID
		if userID != source.UserID {
			cp.UserID = userID
		}
		if cp.Metadata == nil {
			cp.Metadata = map[string]any{}
		}
		cp.Metadata["cloned_from"] = message.MessageID
		if err := m.store.SaveMessage(ctx, cp); err != nil {
			return nil, err
		}
	}
	if err := m.store.UpdateSessionActivity(ctx, clone.SessionID); err != nil {
		return nil, err
	}
	m.logger.Debug("cloned session",
		"source_session_id", sourceID,
		"clone_session_id", clone.SessionID,
		"messages", len(history))
	return m.store.GetSession(ctx, clone.SessionID)
}

// SessionStatistics summarizes one session's history.
type SessionStatistics struct {
	SessionID    string              `json:"session_id"`
	MessageCount int                 `json:"message_count"`
	RoleCounts   map[Role]int        `json:"role_counts"`
	TypeCounts   map[MessageType]int `json:"type_counts"`
	Providers    []string            `json:"providers,omitempty"`
	Duration     time.Duration       `json:"duration"`
	ApproxBytes  int                 `json:"approx_bytes"`
}

// GetSessionStatistics computes a role and type histogram, the set of
// providers seen, the first-to-last timestamp span, and the approximate
// serialized size of the history.
func (m *SessionManager) GetSessionStatistics(ctx context.Context, sessionID string) (*SessionStatistics, error) {
	if _, err := m.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	history, err := m.store.GetConversationHistory(ctx, sessionID, nil)
	if err != nil {
		return nil, err
	}
	stats := &SessionStatistics{
		SessionID:    sessionID,
		MessageCount: len(history),
		RoleCounts:   map[Role]int{},
		TypeCounts:   map[MessageType]int{},
	}
	providers := map[string]bool{}
	for _, message := range history {
		stats.RoleCounts[message.Role]++
		stats.TypeCounts[message.MessageType]++
		if message.Provider != "" {
			providers[message.Provider] = true
		}
		if data, err := message.ToJSON(); err == nil {
			stats.ApproxBytes += len(data) + 1
		}
	}
	for provider := range providers {
		stats.Providers = append(stats.Providers, provider)
	}
	sort.Strings(stats.Providers)
	if len(history) > 1 {
		stats.Duration = history[len(history)-1].Timestamp.Sub(history[0].Timestamp)
	}
	return stats, nil
}

// ListUserSessions returns a user's sessions, newest activity first.
func (m *SessionManager) ListUserSessions(ctx context.Context, userID string, limit int) ([]*ConversationSession, error) {
	return m.store.GetUserSessions(ctx, userID, limit)
}

// DeleteSession removes a session and its history.
func (m *SessionManager) DeleteSession(ctx context.Context, sessionID string) error {
	return m.store.DeleteSession(ctx, sessionID)
}
