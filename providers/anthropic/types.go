package anthropic

import (
	"encoding/json"

	"github.com/vianexus/agent-sdk-go/schema"
)

type Message struct {
	Role    string          `json:"role"`
	Content []*ContentBlock `json:"content"`
}

type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Source    *ImageSource    `json:"source,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   []*ContentBlock `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema *schema.Schema `json:"input_schema"`
}

type ToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type Request struct {
	Model       string      `json:"model"`
	Messages    []*Message  `json:"messages"`
	MaxTokens   *int        `json:"max_tokens,omitempty"`
	Temperature *float64    `json:"temperature,omitempty"`
	System      string      `json:"system,omitempty"`
	Tools       []*Tool     `json:"tools,omitempty"`
	ToolChoice  *ToolChoice `json:"tool_choice,omitempty"`
	Stream      bool        `json:"stream,omitempty"`
}

type Response struct {
	ID           string          `json:"id"`
	Content      []*ContentBlock `json:"content"`
	Model        string          `json:"model"`
	Role         string          `json:"role"`
	StopReason   string          `json:"stop_reason"`
	StopSequence *string         `json:"stop_sequence"`
	Type         string          `json:"type"`
	Usage        Usage           `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type StreamEvent struct {
	Type         string        `json:"type"`
	Index        int           `json:"index"`
	Message      StreamMessage `json:"message"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`
	Delta        StreamDelta   `json:"delta"`
	Usage        Usage         `json:"usage"`
}

type StreamMessage struct {
	ID      string          `json:"id"`
	Model   string          `json:"model"`
	Content []*ContentBlock `json:"content"`
	Usage   Usage           `json:"usage"`
}

type StreamDelta struct {
	Type         string `json:"type"`
	Text         string `json:"text,omitempty"`
	PartialJSON  string `json:"partial_json,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
	StopSequence string `json:"stop_sequence,omitempty"`
}
