package llm

import (
	"encoding/json"
	"strings"
)

// Role indicates the role of a message in a conversation. Either "user",
// "assistant", or "system".
type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
	System    Role = "system"
)

func (r Role) String() string {
	return string(r)
}

// Usage contains token usage information for an LLM response.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates another usage count into this one.
func (u *Usage) Add(other *Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// ContentType indicates the type of a content block in a message.
type ContentType string

const (
	ContentTypeText       ContentType = "text"
	ContentTypeImage      ContentType = "image"
	ContentTypeToolUse    ContentType = "tool_use"
	ContentTypeToolResult ContentType = "tool_result"
)

// Content is a single block of content in a message. A message may contain
// multiple content blocks.
type Content struct {
	// Type: text, image, tool_use, tool_result
	Type ContentType `json:"type"`

	// Text content
	Text string `json:"text,omitempty"`

	// Data is base64 encoded media data
	Data string `json:"data,omitempty"`

	// MediaType is the media type of the content, e.g. "image/jpeg"
	MediaType string `json:"media_type,omitempty"`

	// ID identifies a tool_use block
	ID string `json:"id,omitempty"`

	// Name is the tool name on a tool_use block
	Name string `json:"name,omitempty"`

	// Input carries the tool call arguments on a tool_use block
	Input json.RawMessage `json:"input,omitempty"`

	// ToolUseID links a tool_result block back to its tool_use block
	ToolUseID string `json:"tool_use_id,omitempty"`

	// IsError marks a tool_result block that conveys a failure
	IsError bool `json:"is_error,omitempty"`
}

// Message containing content passed to or from an LLM.
type Message struct {
	Role    Role       `json:"role"`
	Content []*Content `json:"content"`
}

// Text returns the last text content in the message. To retrieve a
// concatenated text from all content blocks, use CompleteText instead.
func (m *Message) Text() string {
	for i := len(m.Content) - 1; i >= 0; i-- {
		if m.Content[i].Type == ContentTypeText {
			return m.Content[i].Text
		}
	}
	return ""
}

// CompleteText returns a concatenated text from all message content. Multiple
// text blocks are separated by two newlines.
func (m *Message) CompleteText() string {
	var sb strings.Builder
	for _, content := range m.Content {
		if content.Type == ContentTypeText {
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(content.Text)
		}
	}
	return sb.String()
}

// ToolCalls returns all tool_use blocks in the message.
func (m *Message) ToolCalls() []*Content {
	var calls []*Content
	for _, content := range m.Content {
		if content.Type == ContentTypeToolUse {
			calls = append(calls, content)
		}
	}
	return calls
}

// Copy returns a deep copy of the message.
func (m *Message) Copy() *Message {
	cp := &Message{Role: m.Role}
	if len(m.Content) > 0 {
		cp.Content = make([]*Content, len(m.Content))
		for i, c := range m.Content {
			cc := *c
			if c.Input != nil {
				cc.Input = append(json.RawMessage(nil), c.Input...)
			}
			cp.Content[i] = &cc
		}
	}
	return cp
}

// NewMessage creates a new message with the given role and content blocks.
func NewMessage(role Role, content []*Content) *Message {
	return &Message{Role: role, Content: content}
}

// NewUserMessage creates a new user message with a single text content block.
func NewUserMessage(text string) *Message {
	return &Message{
		Role:    User,
		Content: []*Content{{Type: ContentTypeText, Text: text}},
	}
}

// NewAssistantMessage creates a new assistant message with a single text
// content block.
func NewAssistantMessage(text string) *Message {
	return &Message{
		Role:    Assistant,
		Content: []*Content{{Type: ContentTypeText, Text: text}},
	}
}

// ToolOutput is the reduced result of one tool invocation, keyed by the
// provider-assigned tool call id.
type ToolOutput struct {
	ID      string
	Name    string
	Output  string
	IsError bool
}

// NewToolOutputMessage creates a new message with the user role and a list of
// tool results. Used to pass the results of tool calls back to an LLM.
func NewToolOutputMessage(outputs []*ToolOutput) *Message {
	content := make([]*Content, len(outputs))
	for i, output := range outputs {
		content[i] = &Content{
			Type:      ContentTypeToolResult,
			ToolUseID: output.ID,
			Name:      output.Name,
			Text:      output.Output,
			IsError:   output.IsError,
		}
	}
	return &Message{Role: User, Content: content}
}
