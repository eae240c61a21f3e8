// Package memory provides provider-neutral conversation persistence: the
// universal message model, the store interface with in-memory and file-backed
// implementations, session management, and the conversation facade consumed
// by the provider clients.
package memory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role of a universal message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
	RoleFunction  Role = "function"
)

var validRoles = map[Role]bool{
	RoleUser:      true,
	RoleAssistant: true,
	RoleSystem:    true,
	RoleTool:      true,
	RoleFunction:  true,
}

// MessageType classifies a message payload.
type MessageType string

const (
	TypeText       MessageType = "text"
	TypeToolCall   MessageType = "tool_call"
	TypeToolResult MessageType = "tool_result"
	TypeImage      MessageType = "image"
	TypeAudio      MessageType = "audio"
	TypeMultimodal MessageType = "multimodal"
)

var validMessageTypes = map[MessageType]bool{
	TypeText:       true,
	TypeToolCall:   true,
	TypeToolResult: true,
	TypeImage:      true,
	TypeAudio:      true,
	TypeMultimodal: true,
}

// UnknownRoleError is returned when deserializing a message with a role
// outside the known set.
type UnknownRoleError struct {
	Role string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown message role: %q", e.Role)
}

// UnknownMessageTypeError is returned when deserializing a message with an
// unrecognized message type.
type UnknownMessageTypeError struct {
	MessageType string
}

func (e *UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("unknown message type: %q", e.MessageType)
}

// ToolCall records one tool invocation requested by the assistant.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResult records the outcome of one tool invocation.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// UniversalMessage is a single conversational utterance in provider-neutral
// form. Content is free-form: a plain string, or a list of structured blocks
// preserved from the originating provider.
type UniversalMessage struct {
	Role        Role            `json:"role"`
	Content     any             `json:"content"`
	MessageType MessageType     `json:"message_type"`
	Timestamp   time.Time       `json:"timestamp"`
	MessageID   string          `json:"message_id"`
	SessionID   string          `json:"session_id,omitempty"`
	Provider    string          `json:"provider,omitempty"`
	RawContent  json.RawMessage `json:"raw_content,omitempty"`
	ToolCalls   []*ToolCall     `json:"tool_calls,omitempty"`
	ToolResults []*ToolResult   `json:"tool_results,omitempty"`
	TokenCount  int             `json:"token_count,omitempty"`
	UserID      string          `json:"user_id,omitempty"`
	ContextTags []string        `json:"context_tags,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}

// NewMessage creates a universal message with a fresh message id and a UTC
// timestamp.
func NewMessage(role Role, content any, messageType MessageType) *UniversalMessage {
	return &UniversalMessage{
		Role:        role,
		Content:     content,
		MessageType: messageType,
		Timestamp:   time.Now().UTC(),
		MessageID:   uuid.NewString(),
	}
}

// Normalize fills in the message id and timestamp if absent.
func (m *UniversalMessage) Normalize() {
	if m.MessageID == "" {
		m.MessageID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	if m.MessageType == "" {
		m.MessageType = TypeText
	}
}

// Validate checks the role and message type against the known sets.
func (m *UniversalMessage) Validate() error {
	if !validRoles[m.Role] {
		return &UnknownRoleError{Role: string(m.Role)}
	}
	if !validMessageTypes[m.MessageType] {
		return &UnknownMessageTypeError{MessageType: string(m.MessageType)}
	}
	return nil
}

// Copy returns a shallow copy with independent metadata and tool records.
func (m *UniversalMessage) Copy() *UniversalMessage {
	cp := *m
	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	if len(m.ToolCalls) > 0 {
		cp.ToolCalls = make([]*ToolCall, len(m.ToolCalls))
		for i, call := range m.ToolCalls {
			c := *call
			cp.ToolCalls[i] = &c
		}
	}
	if len(m.ToolResults) > 0 {
		cp.ToolResults = make([]*ToolResult, len(m.ToolResults))
		for i, result := range m.ToolResults {
			r := *result
			cp.ToolResults[i] = &r
		}
	}
	return &cp
}

// ToJSON serializes the message. Timestamps are ISO-8601 UTC.
func (m *UniversalMessage) ToJSON() ([]byte, error) {
	cp := *m
	cp.Timestamp = m.Timestamp.UTC()
	return json.Marshal(&cp)
}

// FromJSON deserializes a message, rejecting unknown role or type values.
func FromJSON(data []byte) (*UniversalMessage, error) {
	var m UniversalMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("error unmarshaling message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	m.Timestamp = m.Timestamp.UTC()
	return &m, nil
}

// TextContent flattens the message content into a searchable plain string.
// Structured blocks contribute their text; tool blocks contribute
// "[Tool: name]" / "[Tool Result]" placeholders.
func (m *UniversalMessage) TextContent() string {
	return FlattenContent(m.Content)
}

// FlattenContent reduces a free-form content payload to plain text.
func FlattenContent(content any) string {
	switch c := content.(type) {
	case nil:
		return ""
	case string:
		return c
	case []any:
		var parts []string
		for _, item := range c {
			if text := flattenBlock(item); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, " ")
	case map[string]any:
		if text := flattenBlock(c); text != "" {
			return text
		}
		return fmt.Sprintf("%v", c)
	default:
		return fmt.Sprintf("%v", c)
	}
}

func flattenBlock(block any) string {
	m, ok := block.(map[string]any)
	if !ok {
		return fmt.Sprintf("%v", block)
	}
	switch m["type"] {
	case "text", "output_text":
		if text, ok := m["text"].(string); ok {
			return text
		}
	case "tool_use", "function_call":
		if name, ok := m["name"].(string); ok {
			return fmt.Sprintf("[Tool: %s]", name)
		}
		return "[Tool: unknown]"
	case "tool_result", "function_response":
		return "[Tool Result]"
	}
	if text, ok := m["text"].(string); ok {
		return text
	}
	return ""
}
