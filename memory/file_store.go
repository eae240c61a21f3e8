package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vianexus/agent-sdk-go/slogger"
)

// ErrInvalidSessionID indicates a session id that is empty or would escape
// the store's root directory.
var ErrInvalidSessionID = errors.New("invalid session id")

// FileStore persists sessions and messages on disk. Session records live at
// <root>/sessions/<id>.json and message histories at
// <root>/messages/<id>.jsonl, one JSON document per line, append-only.
type FileStore struct {
	mu     sync.RWMutex
	root   string
	logger slogger.Logger
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithFileStoreLogger sets the logger used for corrupt-line warnings.
func WithFileStoreLogger(logger slogger.Logger) FileStoreOption {
	return func(s *FileStore) {
		s.logger = logger
	}
}

// NewFileStore creates the store rooted at dir, creating the sessions and
// messages subdirectories if needed.
func NewFileStore(dir string, opts ...FileStoreOption) (*FileStore, error) {
	s := &FileStore{root: dir, logger: slogger.DefaultLogger}
	for _, opt := range opts {
		opt(s)
	}
	for _, sub := range []string{"sessions", "messages"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("error creating store directory: %w", err)
		}
	}
	return s, nil
}

func validateSessionID(id string) error {
	if id == "" || id == "." || id == ".." {
		return ErrInvalidSessionID
	}
	if strings.ContainsAny(id, `/\`) {
		return ErrInvalidSessionID
	}
	return nil
}

func (s *FileStore) sessionPath(id string) (string, error) {
	if err := validateSessionID(id); err != nil {
		return "", err
	}
	path := filepath.Join(s.root, "sessions", id+".json")
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(s.root)) {
		return "", ErrInvalidSessionID
	}
	return path, nil
}

func (s *FileStore) messagesPath(id string) (string, error) {
	if err := validateSessionID(id); err != nil {
		return "", err
	}
	path := filepath.Join(s.root, "messages", id+".jsonl")
	if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(s.root)) {
		return "", ErrInvalidSessionID
	}
	return path, nil
}

func (s *FileStore) SaveMessage(ctx context.Context, message *UniversalMessage) error {
	message.Normalize()
	if err := message.Validate(); err != nil {
		return err
	}
	path, err := s.messagesPath(message.SessionID)
	if err != nil {
		return err
	}
	line, err := message.ToJSON()
	if err != nil {
		return fmt.Errorf("error marshaling message: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error opening messages file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("error appending message: %w", err)
	}
	return nil
}

func (s *FileStore) GetConversationHistory(ctx context.Context, sessionID string, opts *HistoryOptions) ([]*UniversalMessage, error) {
	path, err := s.messagesPath(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages, err := s.readMessages(path, sessionID)
	if err != nil {
		return nil, err
	}
	return filterHistory(messages, opts), nil
}

// readMessages loads a jsonl history, skipping lines that fail to parse. A
// truncated trailing line from an interrupted write must not poison the rest
// of the history.
func (s *FileStore) readMessages(path, sessionID string) ([]*UniversalMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("error opening messages file: %w", err)
	}
	defer f.Close()

	var messages []*UniversalMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		message, err := FromJSON([]byte(line))
		if err != nil {
			s.logger.Warn("skipping corrupt message line",
				"session_id", sessionID,
				"line", lineNo,
				"error", err)
			continue
		}
		messages = append(messages, message)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading messages file: %w", err)
	}
	return messages, nil
}

func (s *FileStore) SaveSession(ctx context.Context, session *ConversationSession) error {
	path, err := s.sessionPath(session.SessionID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling session: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing session file: %w", err)
	}
	return nil
}

func (s *FileStore) GetSession(ctx context.Context, sessionID string) (*ConversationSession, error) {
	path, err := s.sessionPath(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readSession(path)
}

func (s *FileStore) readSession(path string) (*ConversationSession, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("error reading session file: %w", err)
	}
	var session ConversationSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("error unmarshaling session: %w", err)
	}
	return &session, nil
}

func (s *FileStore) UpdateSessionActivity(ctx context.Context, sessionID string) error {
	sessionPath, err := s.sessionPath(sessionID)
	if err != nil {
		return err
	}
	messagesPath, err := s.messagesPath(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.readSession(sessionPath)
	if err != nil {
		return err
	}
	messages, err := s.readMessages(messagesPath, sessionID)
	if err != nil {
		return err
	}
	session.LastActivity = time.Now().UTC()
	session.MessageCount = len(messages)
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling session: %w", err)
	}
	if err := os.WriteFile(sessionPath, data, 0644); err != nil {
		return fmt.Errorf("error writing session file: %w", err)
	}
	return nil
}

func (s *FileStore) DeleteSession(ctx context.Context, sessionID string) error {
	sessionPath, err := s.sessionPath(sessionID)
	if err != nil {
		return err
	}
	messagesPath, err := s.messagesPath(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(sessionPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error removing session file: %w", err)
	}
	if err := os.Remove(messagesPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error removing messages file: %w", err)
	}
	return nil
}

func (s *FileStore) SearchMessages(ctx context.Context, query string, opts *SearchOptions) ([]*UniversalMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids, err := s.listSessionIDs()
	if err != nil {
		return nil, err
	}
	var matches []*UniversalMessage
	for _, id := range ids {
		path, err := s.messagesPath(id)
		if err != nil {
			continue
		}
		messages, err := s.readMessages(path, id)
		if err != nil {
			return nil, err
		}
		for _, m := range messages {
			if matchesSearch(m, query, opts) {
				matches = append(matches, m)
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

func (s *FileStore) listSessionIDs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "messages"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("error listing messages directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".jsonl"))
	}
	return ids, nil
}

func (s *FileStore) CleanupOldSessions(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := os.ReadDir(filepath.Join(s.root, "sessions"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("error listing sessions directory: %w", err)
	}
	deleted := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		sessionPath, err := s.sessionPath(id)
		if err != nil {
			continue
		}
		session, err := s.readSession(sessionPath)
		if err != nil {
			s.logger.Warn("skipping unreadable session file",
				"session_id", id,
				"error", err)
			continue
		}
		if !session.LastActivity.Before(cutoff) {
			continue
		}
		messagesPath, err := s.messagesPath(id)
		if err != nil {
			continue
		}
		if err := os.Remove(sessionPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return deleted, fmt.Errorf("error removing session file: %w", err)
		}
		if err := os.Remove(messagesPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return deleted, fmt.Errorf("error removing messages file: %w", err)
		}
		deleted++
	}
	return deleted, nil
}

func (s *FileStore) GetUserSessions(ctx context.Context, userID string, limit int) ([]*ConversationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(filepath.Join(s.root, "sessions"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("error listing sessions directory: %w", err)
	}
	var sessions []*ConversationSession
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		path, err := s.sessionPath(id)
		if err != nil {
			continue
		}
		session, err := s.readSession(path)
		if err != nil {
			s.logger.Warn("skipping unreadable session file",
				"session_id", id,
				"error", err)
			continue
		}
		if session.UserID != userID {
			continue
		}
		sessions = append(sessions, session)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

func (s *FileStore) Stats(ctx context.Context) (*StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &StoreStats{}
	users := map[string]bool{}
	entries, err := os.ReadDir(filepath.Join(s.root, "sessions"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error listing sessions directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		path, err := s.sessionPath(id)
		if err != nil {
			continue
		}
		session, err := s.readSession(path)
		if err != nil {
			continue
		}
		stats.SessionCount++
		if session.UserID != "" {
			users[session.UserID] = true
		}
	}
	ids, err := s.listSessionIDs()
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		path, err := s.messagesPath(id)
		if err != nil {
			continue
		}
		messages, err := s.readMessages(path, id)
		if err != nil {
			return nil, err
		}
		stats.MessageCount += len(messages)
	}
	stats.UserCount = len(users)
	return stats, nil
}
