package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/vianexus/agent-sdk-go/llm"
	"github.com/vianexus/agent-sdk-go/slogger"
)

// Converter translates between universal messages and the provider wire
// shape. Implementations live in the convert package, one per provider.
type Converter interface {
	// Provider names the provider this converter serves.
	Provider() string

	// ToUniversal lifts a provider message into the universal model,
	// preserving the original shape in RawContent for lossless replay.
	ToUniversal(sessionID string, message *llm.Message) (*UniversalMessage, error)

	// FromUniversal lowers a universal message back to the provider shape.
	FromUniversal(message *UniversalMessage) (*llm.Message, error)
}

// Conversation is the high-level memory facade: it binds a store, a session
// manager, and a provider converter to one active session, so callers save
// and load history without touching store mechanics.
type Conversation struct {
	mu        sync.Mutex
	store     Store
	manager   *SessionManager
	converter Converter
	logger    slogger.Logger

	sessionID  string
	userID     string
	clientType string
	provider   string

	mcpSessionID string
}

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithConversationLogger sets the facade's logger.
func WithConversationLogger(logger slogger.Logger) ConversationOption {
	return func(c *Conversation) {
		c.logger = logger
	}
}

// WithConversationUserID attributes saved messages and sessions to a user.
func WithConversationUserID(userID string) ConversationOption {
	return func(c *Conversation) {
		c.userID = userID
	}
}

// WithConversationClientType labels the session with the client type.
func WithConversationClientType(clientType string) ConversationOption {
	return func(c *Conversation) {
		c.clientType = clientType
	}
}

// NewConversation creates a facade over the store for one session. The
// session record is created lazily on the first save.
func NewConversation(store Store, converter Converter, sessionID string, opts ...ConversationOption) *Conversation {
	c := &Conversation{
		store:     store,
		manager:   NewSessionManager(store),
		converter: converter,
		logger:    slogger.DefaultLogger,
		sessionID: sessionID,
	}
	if converter != nil {
		c.provider = converter.Provider()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionID returns the active session id.
func (c *Conversation) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SetMCPSessionID records the tool channel session id so saved messages can
// be correlated with tool traffic.
func (c *Conversation) SetMCPSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mcpSessionID = id
}

// Save converts a provider message to universal form and persists it,
// creating the session record if needed and bumping its activity stamp.
func (c *Conversation) Save(ctx context.Context, message *llm.Message) error {
	if c.converter == nil {
		return fmt.Errorf("no converter configured")
	}
	c.mu.Lock()
	sessionID := c.sessionID
	mcpSessionID := c.mcpSessionID
	c.mu.Unlock()

	universal, err := c.converter.ToUniversal(sessionID, message)
	if err != nil {
		return fmt.Errorf("error converting message: %w", err)
	}
	return c.saveUniversal(ctx, universal, mcpSessionID)
}

// SaveUniversal persists an already-universal message into the active
// session.
func (c *Conversation) SaveUniversal(ctx context.Context, message *UniversalMessage) error {
	c.mu.Lock()
	message.SessionID = c.sessionID
	mcpSessionID := c.mcpSessionID
	c.mu.Unlock()
	return c.saveUniversal(ctx, message, mcpSessionID)
}

func (c *Conversation) saveUniversal(ctx context.Context, message *UniversalMessage, mcpSessionID string) error {
	if _, err := c.manager.EnsureSessionExists(ctx, message.SessionID, c.clientType, c.userID); err != nil {
		return err
	}
	if c.userID != "" && message.UserID == "" {
		message.UserID = c.userID
	}
	if c.provider != "" && message.Provider == "" {
		message.Provider = c.provider
	}
	if mcpSessionID != "" {
		if message.Metadata == nil {
			message.Metadata = map[string]any{}
		}
		message.Metadata["mcp_session_correlation"] = mcpSessionID
	}
	if err := c.store.SaveMessage(ctx, message); err != nil {
		return err
	}
	if err := c.store.UpdateSessionActivity(ctx, message.SessionID); err != nil {
		return err
	}
	c.logger.Debug("saved message",
		"session_id", message.SessionID,
		"role", message.Role,
		"message_type", message.MessageType)
	return nil
}

// LoadHistory returns the session's messages in universal form, most recent
// limit messages when limit is positive.
func (c *Conversation) LoadHistory(ctx context.Context, limit int) ([]*UniversalMessage, error) {
	return c.store.GetConversationHistory(ctx, c.SessionID(), &HistoryOptions{Limit: limit})
}

// LoadProviderHistory returns the session's messages lowered to the provider
// wire shape, ready to seed a request. Messages the converter cannot lower
// are skipped with a warning rather than failing the whole load.
func (c *Conversation) LoadProviderHistory(ctx context.Context, limit int) ([]*llm.Message, error) {
	if c.converter == nil {
		return nil, fmt.Errorf("no converter configured")
	}
	history, err := c.LoadHistory(ctx, limit)
	if err != nil {
		return nil, err
	}
	messages := make([]*llm.Message, 0, len(history))
	for _, universal := range history {
		message, err := c.converter.FromUniversal(universal)
		if err != nil {
			c.logger.Warn("skipping unconvertible message",
				"session_id", universal.SessionID,
				"message_id", universal.MessageID,
				"error", err)
			continue
		}
		messages = append(messages, message)
	}
	return messages, nil
}

// Search finds messages in the active session matching the query.
func (c *Conversation) Search(ctx context.Context, query string, limit int) ([]*UniversalMessage, error) {
	return c.store.SearchMessages(ctx, query, &SearchOptions{
		SessionIDs: []string{c.SessionID()},
		Limit:      limit,
	})
}

// SwitchSession points the facade at a different session id. Subsequent
// saves and loads use the new session.
func (c *Conversation) SwitchSession(sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
	return nil
}

// ClearSession deletes the active session's record and history. The session
// id stays bound, so the next save recreates it empty.
func (c *Conversation) ClearSession(ctx context.Context) error {
	return c.store.DeleteSession(ctx, c.SessionID())
}

// Manager exposes the underlying session manager.
func (c *Conversation) Manager() *SessionManager {
	return c.manager
}

// Store exposes the underlying store.
func (c *Conversation) Store() Store {
	return c.store
}
