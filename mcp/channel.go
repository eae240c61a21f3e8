package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vianexus/agent-sdk-go/llm"
	"github.com/vianexus/agent-sdk-go/slogger"
)

const (
	clientName    = "vianexus-agent-sdk"
	clientVersion = "1.0.0"

	initializeTimeout = 30 * time.Second

	// MaxToolPayloadBytes caps the reduced text of one tool result.
	MaxToolPayloadBytes = 1_000_000
)

// Channel is the persistent tool channel: one streamable-HTTP connection to
// a viaNexus MCP server with OAuth and the category header on every request.
// A channel is owned by a single client task; tool calls are serialized
// through it.
type Channel struct {
	config    *Config
	logger    slogger.Logger
	oauth     bool
	client    *client.Client
	tools     []mcp.Tool
	connected bool
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithChannelLogger sets the channel's logger.
func WithChannelLogger(logger slogger.Logger) ChannelOption {
	return func(c *Channel) {
		c.logger = logger
	}
}

// WithoutOAuth opens the transport without the OAuth handshake. Intended for
// tests against local servers.
func WithoutOAuth() ChannelOption {
	return func(c *Channel) {
		c.oauth = false
	}
}

// NewChannel creates a channel for the configured tool server. The channel
// is inert until Connect.
func NewChannel(config *Config, opts ...ChannelOption) (*Channel, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	c := &Channel{
		config: config,
		logger: slogger.DefaultLogger,
		oauth:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect opens the transport, runs the protocol handshake, and leaves the
// channel ready for tool calls. The software statement is presented as the
// OAuth client credential.
func (c *Channel) Connect(ctx context.Context) error {
	endpoint := c.config.Endpoint()
	headers := transport.WithHTTPHeaders(c.config.Headers())

	var mcpClient *client.Client
	var err error
	if c.oauth {
		mcpClient, err = client.NewOAuthStreamableHttpClient(endpoint, client.OAuthConfig{
			ClientID:     clientName,
			ClientSecret: c.config.SoftwareStatement,
			Scopes:       []string{"mcp.read", "mcp.write"},
			TokenStore:   client.NewMemoryTokenStore(),
			PKCEEnabled:  true,
		}, headers)
	} else {
		mcpClient, err = client.NewStreamableHttpClient(endpoint, headers)
	}
	if err != nil {
		return NewChannelError("setup", endpoint, err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return NewChannelError("start", endpoint, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, initializeTimeout)
	defer cancel()
	_, err = mcpClient.Initialize(initCtx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
		},
	})
	if err != nil {
		c.teardown(mcpClient)
		if initCtx.Err() == context.DeadlineExceeded {
			return NewChannelError("initialize", endpoint,
				fmt.Errorf("timeout after %s: %w", initializeTimeout, ErrInitializationFailed))
		}
		return NewChannelError("initialize", endpoint,
			fmt.Errorf("%w: %v", ErrInitializationFailed, err))
	}

	c.client = mcpClient
	c.connected = true
	c.logger.Info("tool channel connected",
		"endpoint", endpoint,
		"categories", c.config.ToolCategories(),
		"session_id", c.SessionID())
	return nil
}

// IsConnected reports whether Connect succeeded and Close has not run.
func (c *Channel) IsConnected() bool {
	return c.connected
}

// SessionID returns the transport session id, empty before Connect.
func (c *Channel) SessionID() string {
	if c.client == nil {
		return ""
	}
	return c.client.GetSessionId()
}

// ListTools fetches the catalogue from the server and caches it.
func (c *Channel) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if !c.connected {
		return nil, NewChannelError("list_tools", c.config.Endpoint(), ErrNotConnected)
	}
	response, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, NewChannelError("list_tools", c.config.Endpoint(), err)
	}
	c.tools = response.Tools
	return response.Tools, nil
}

// HealthCheck probes the channel by listing tools. Any failure means the
// connection should be considered dead.
func (c *Channel) HealthCheck(ctx context.Context) error {
	_, err := c.ListTools(ctx)
	return err
}

// CallTool invokes a named tool on the server.
func (c *Channel) CallTool(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	if !c.connected {
		return nil, NewChannelError("call_tool", c.config.Endpoint(), ErrNotConnected)
	}
	result, err := c.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: arguments,
		},
	})
	if err != nil {
		return nil, NewChannelError("call_tool", c.config.Endpoint(), err)
	}
	return result, nil
}

// Invoke calls a tool and reduces its payload to a single string. Error
// results come back as a non-nil error so the orchestrator can synthesize an
// Error-prefixed tool result.
func (c *Channel) Invoke(ctx context.Context, name string, arguments map[string]any) (string, error) {
	result, err := c.CallTool(ctx, name, arguments)
	if err != nil {
		return "", err
	}
	text, isError := ReduceResult(result)
	if isError {
		return "", fmt.Errorf("tool %s returned an error: %s", name, text)
	}
	return text, nil
}

// Tools returns the server catalogue adapted to the llm tool interface. The
// catalogue is re-listed on every call so each turn sees the server's current
// tools; when the refresh fails the last good catalogue is used instead.
func (c *Channel) Tools(ctx context.Context) ([]llm.Tool, error) {
	catalogue, err := c.ListTools(ctx)
	if err != nil {
		if len(c.tools) == 0 {
			return nil, err
		}
		c.logger.Warn("tool catalogue refresh failed, using cached catalogue", "error", err)
		catalogue = c.tools
	}
	tools := make([]llm.Tool, len(catalogue))
	for i, tool := range catalogue {
		tools[i] = NewToolAdapter(c, tool)
	}
	return tools, nil
}

// Close tears the channel down. Transport closes frequently run on a
// different task than the one that opened the connection, so close errors
// are logged at debug level and absorbed; the channel always ends up
// disconnected and reusable via a fresh Connect.
func (c *Channel) Close() error {
	if c.client == nil {
		return nil
	}
	c.teardown(c.client)
	c.client = nil
	c.tools = nil
	return nil
}

func (c *Channel) teardown(mcpClient *client.Client) {
	c.connected = false
	if err := mcpClient.Close(); err != nil {
		c.logger.Debug("absorbed tool channel close error",
			"endpoint", c.config.Endpoint(),
			"error", err)
	}
}

// ReduceResult flattens a tool result payload to one string: the text of the
// first element when present, otherwise the first element serialized,
// otherwise the whole payload serialized. The result is capped at
// MaxToolPayloadBytes.
func ReduceResult(result *mcp.CallToolResult) (string, bool) {
	if result == nil {
		return "", false
	}
	var text string
	switch len(result.Content) {
	case 0:
		text = ""
	default:
		if tc, ok := result.Content[0].(mcp.TextContent); ok {
			text = tc.Text
		} else if data, err := json.Marshal(result.Content[0]); err == nil {
			text = string(data)
		} else if data, err := json.Marshal(result.Content); err == nil {
			text = string(data)
		}
	}
	return capPayload(text), result.IsError
}

func capPayload(text string) string {
	if len(text) <= MaxToolPayloadBytes {
		return text
	}
	return text[:MaxToolPayloadBytes] + "\n[payload truncated]"
}
