package memory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps sessions and messages in process memory. Suitable for
// tests and short-lived clients; everything is lost on exit.
type MemoryStore struct {
	mu           sync.RWMutex
	sessions     map[string]*ConversationSession
	messages     map[string][]*UniversalMessage
	userSessions map[string][]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:     map[string]*ConversationSession{},
		messages:     map[string][]*UniversalMessage{},
		userSessions: map[string][]string{},
	}
}

func (s *MemoryStore) SaveMessage(ctx context.Context, message *UniversalMessage) error {
	message.Normalize()
	if err := message.Validate(); err != nil {
		return err
	}
	if err := validateSessionID(message.SessionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[message.SessionID] = append(s.messages[message.SessionID], message.Copy())
	return nil
}

func (s *MemoryStore) GetConversationHistory(ctx context.Context, sessionID string, opts *HistoryOptions) ([]*UniversalMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.messages[sessionID]
	messages := make([]*UniversalMessage, len(stored))
	for i, m := range stored {
		messages[i] = m.Copy()
	}
	return filterHistory(messages, opts), nil
}

func (s *MemoryStore) SaveSession(ctx context.Context, session *ConversationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prior, exists := s.sessions[session.SessionID]
	s.sessions[session.SessionID] = session.Copy()
	if session.UserID == "" {
		return nil
	}
	if exists && prior.UserID == session.UserID {
		return nil
	}
	s.userSessions[session.UserID] = append(s.userSessions[session.UserID], session.SessionID)
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (*ConversationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.Copy(), nil
}

func (s *MemoryStore) UpdateSessionActivity(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	session.LastActivity = time.Now().UTC()
	session.MessageCount = len(s.messages[sessionID])
	return nil
}

func (s *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteSessionLocked(sessionID)
	return nil
}

func (s *MemoryStore) deleteSessionLocked(sessionID string) {
	session, ok := s.sessions[sessionID]
	if ok && session.UserID != "" {
		ids := s.userSessions[session.UserID]
		for i, id := range ids {
			if id == sessionID {
				s.userSessions[session.UserID] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(s.userSessions[session.UserID]) == 0 {
			delete(s.userSessions, session.UserID)
		}
	}
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
}

func (s *MemoryStore) SearchMessages(ctx context.Context, query string, opts *SearchOptions) ([]*UniversalMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matches []*UniversalMessage
	for _, messages := range s.messages {
		for _, m := range messages {
			if matchesSearch(m, query, opts) {
				matches = append(matches, m.Copy())
			}
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Timestamp.After(matches[j].Timestamp)
	})
	if opts != nil && opts.Limit > 0 && len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

func (s *MemoryStore) CleanupOldSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []string
	for id, session := range s.sessions {
		if session.LastActivity.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		s.deleteSessionLocked(id)
	}
	return len(stale), nil
}

func (s *MemoryStore) GetUserSessions(ctx context.Context, userID string, limit int) ([]*ConversationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.userSessions[userID]
	sessions := make([]*ConversationSession, 0, len(ids))
	for _, id := range ids {
		if session, ok := s.sessions[id]; ok {
			sessions = append(sessions, session.Copy())
		}
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (*StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &StoreStats{
		SessionCount: len(s.sessions),
		UserCount:    len(s.userSessions),
	}
	for _, messages := range s.messages {
		stats.MessageCount += len(messages)
	}
	return stats, nil
}
