package agent

import (
	"context"

	"github.com/vianexus/agent-sdk-go/mcp"
	"github.com/vianexus/agent-sdk-go/slogger"
)

// PersistentClient keeps the tool channel alive across turns. The memory
// session id exists from construction, so callers can correlate before the
// first connect; the transport session id appears once the channel is up.
type PersistentClient struct {
	agent         *Agent
	logger        slogger.Logger
	autoEstablish bool
	active        bool
}

// PersistentOption configures a PersistentClient.
type PersistentOption func(*PersistentClient)

// WithAutoEstablish controls whether Ask calls reconnect an unhealthy
// channel themselves. On by default.
func WithAutoEstablish(auto bool) PersistentOption {
	return func(p *PersistentClient) {
		p.autoEstablish = auto
	}
}

// WithPersistentLogger sets the overlay's logger.
func WithPersistentLogger(logger slogger.Logger) PersistentOption {
	return func(p *PersistentClient) {
		p.logger = logger
	}
}

// NewPersistent wraps an agent in the persistent-connection overlay.
func NewPersistent(agent *Agent, opts ...PersistentOption) *PersistentClient {
	p := &PersistentClient{
		agent:         agent,
		logger:        slogger.DefaultLogger,
		autoEstablish: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Agent returns the wrapped agent.
func (p *PersistentClient) Agent() *Agent {
	return p.agent
}

// SessionID returns the memory session id, available from construction.
func (p *PersistentClient) SessionID() string {
	return p.agent.SessionID()
}

// ConnectionSessionID returns the transport session id, empty until a
// connection is established.
func (p *PersistentClient) ConnectionSessionID() string {
	if p.agent.channel == nil {
		return ""
	}
	return p.agent.channel.SessionID()
}

// IsConnectionActive reports whether the last probe or connect left the
// channel healthy.
func (p *PersistentClient) IsConnectionActive() bool {
	return p.active
}

// EstablishPersistentConnection returns the existing transport session id
// when the channel is healthy, otherwise tears the old transport down and
// connects fresh.
func (p *PersistentClient) EstablishPersistentConnection(ctx context.Context) (string, error) {
	channel := p.agent.channel
	if channel == nil {
		return "", mcp.ErrNotConnected
	}

	if p.active && channel.IsConnected() {
		if err := channel.HealthCheck(ctx); err == nil {
			return channel.SessionID(), nil
		}
		p.logger.Warn("tool channel unhealthy, reconnecting")
		p.active = false
	}

	// A reconnect always starts from a clean transport; the old one is
	// discarded along with its cleanup state.
	if err := channel.Close(); err != nil {
		p.logger.Debug("absorbed close error before reconnect", "error", err)
	}
	if err := channel.Connect(ctx); err != nil {
		return "", err
	}
	sessionID := channel.SessionID()
	if sessionID == "" {
		if err := channel.Close(); err != nil {
			p.logger.Debug("absorbed close error after failed connect", "error", err)
		}
		return "", mcp.NewChannelError("connect", "", mcp.ErrNoSessionID)
	}
	if p.agent.conversation != nil {
		p.agent.conversation.SetMCPSessionID(sessionID)
	}
	p.active = true
	p.logger.Info("persistent tool channel established", "session_id", sessionID)
	return sessionID, nil
}

// AskWithPersistentSession health-checks the channel, reconnects when
// allowed, and delegates to AskQuestion with history and memory on.
func (p *PersistentClient) AskWithPersistentSession(ctx context.Context, question string, opts ...AskOption) (string, error) {
	channel := p.agent.channel
	if p.active && channel != nil {
		if err := channel.HealthCheck(ctx); err != nil {
			p.logger.Warn("tool channel failed health probe", "error", err)
			p.active = false
		}
	}
	if !p.active {
		if !p.autoEstablish {
			return "", mcp.ErrNotConnected
		}
		if _, err := p.EstablishPersistentConnection(ctx); err != nil {
			return "", err
		}
	}
	askOpts := append([]AskOption{
		WithMaintainHistory(true),
		WithUseMemory(true),
	}, opts...)
	return p.agent.AskQuestion(ctx, question, askOpts...)
}

// Cleanup tears the channel down tolerantly and leaves the overlay ready
// for a fresh EstablishPersistentConnection.
func (p *PersistentClient) Cleanup() error {
	p.active = false
	return p.agent.Cleanup()
}
