// Package convert translates between the universal message model and the
// per-provider wire shapes. Each provider gets a converter; a process-wide
// registry maps provider names to converters so the factory can look them up
// by detected provider.
package convert

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/vianexus/agent-sdk-go/llm"
	"github.com/vianexus/agent-sdk-go/memory"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]memory.Converter{}
)

// Register installs a converter under its provider name, replacing any prior
// registration.
func Register(converter memory.Converter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[converter.Provider()] = converter
}

// For returns the converter registered for the provider.
func For(provider string) (memory.Converter, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	converter, ok := registry[provider]
	if !ok {
		return nil, fmt.Errorf("no converter registered for provider %q", provider)
	}
	return converter, nil
}

func init() {
	Register(NewAnthropicConverter())
	Register(NewOpenAIConverter())
	Register(NewGeminiConverter())
}

// ToUniversalBatch converts a slice of provider messages, failing on the
// first conversion error.
func ToUniversalBatch(converter memory.Converter, sessionID string, messages []*llm.Message) ([]*memory.UniversalMessage, error) {
	out := make([]*memory.UniversalMessage, 0, len(messages))
	for _, message := range messages {
		universal, err := converter.ToUniversal(sessionID, message)
		if err != nil {
			return nil, err
		}
		out = append(out, universal)
	}
	return out, nil
}

// FromUniversalBatch converts a slice of universal messages back to the
// provider shape, failing on the first conversion error.
func FromUniversalBatch(converter memory.Converter, messages []*memory.UniversalMessage) ([]*llm.Message, error) {
	out := make([]*llm.Message, 0, len(messages))
	for _, universal := range messages {
		message, err := converter.FromUniversal(universal)
		if err != nil {
			return nil, err
		}
		out = append(out, message)
	}
	return out, nil
}

// ExtractTextContent flattens any universal content payload to plain text.
// Tool blocks become "[Tool: name]" and "[Tool Result]" placeholders.
func ExtractTextContent(content any) string {
	return memory.FlattenContent(content)
}

// converter holds the provider-independent conversion logic. The three
// provider converters differ only in name and in which role carries tool
// results back to the model.
type converter struct {
	provider       string
	toolResultRole memory.Role
}

func (c *converter) Provider() string {
	return c.provider
}

// ToUniversal lifts a provider message into the universal model. The original
// content block array is preserved verbatim in RawContent so a later
// FromUniversal for the same provider loses nothing.
func (c *converter) ToUniversal(sessionID string, message *llm.Message) (*memory.UniversalMessage, error) {
	if message == nil {
		return nil, fmt.Errorf("nil message")
	}
	raw, err := json.Marshal(message.Content)
	if err != nil {
		return nil, fmt.Errorf("error marshaling content blocks: %w", err)
	}

	universal := memory.NewMessage(mapRoleToUniversal(message.Role), nil, memory.TypeText)
	universal.SessionID = sessionID
	universal.Provider = c.provider
	universal.RawContent = raw

	var hasToolUse, hasToolResult, hasMedia bool
	for _, block := range message.Content {
		switch block.Type {
		case llm.ContentTypeToolUse:
			hasToolUse = true
			args := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					return nil, fmt.Errorf("error unmarshaling tool arguments: %w", err)
				}
			}
			universal.ToolCalls = append(universal.ToolCalls, &memory.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		case llm.ContentTypeToolResult:
			hasToolResult = true
			universal.ToolResults = append(universal.ToolResults, &memory.ToolResult{
				ToolCallID: block.ToolUseID,
				Content:    block.Text,
				IsError:    block.IsError,
			})
		case llm.ContentTypeImage:
			hasMedia = true
		}
	}

	switch {
	case hasToolUse:
		universal.MessageType = memory.TypeToolCall
	case hasToolResult:
		universal.MessageType = memory.TypeToolResult
		universal.Role = c.toolResultRole
	case hasMedia:
		universal.MessageType = memory.TypeMultimodal
	}

	switch universal.MessageType {
	case memory.TypeText:
		universal.Content = message.CompleteText()
	default:
		// Tool and media payloads keep the structured block array so
		// search and display still have something to flatten.
		var blocks []any
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return nil, fmt.Errorf("error unmarshaling content blocks: %w", err)
		}
		universal.Content = blocks
	}
	return universal, nil
}

// FromUniversal lowers a universal message back to the provider shape. When
// the message was recorded by this same provider, the preserved RawContent is
// replayed verbatim. Messages from other providers are rebuilt from the
// neutral fields.
func (c *converter) FromUniversal(message *memory.UniversalMessage) (*llm.Message, error) {
	if message == nil {
		return nil, fmt.Errorf("nil message")
	}
	role := mapRoleToProvider(message.Role)

	if message.Provider == c.provider && len(message.RawContent) > 0 {
		var content []*llm.Content
		if err := json.Unmarshal(message.RawContent, &content); err != nil {
			return nil, fmt.Errorf("error unmarshaling raw content: %w", err)
		}
		return llm.NewMessage(role, content), nil
	}

	switch message.MessageType {
	case memory.TypeText:
		return llm.NewMessage(role, []*llm.Content{
			{Type: llm.ContentTypeText, Text: message.TextContent()},
		}), nil
	case memory.TypeToolCall:
		var content []*llm.Content
		if text := textOnly(message.Content); text != "" {
			content = append(content, &llm.Content{Type: llm.ContentTypeText, Text: text})
		}
		for _, call := range message.ToolCalls {
			input, err := json.Marshal(call.Arguments)
			if err != nil {
				return nil, fmt.Errorf("error marshaling tool arguments: %w", err)
			}
			content = append(content, &llm.Content{
				Type:  llm.ContentTypeToolUse,
				ID:    call.ID,
				Name:  call.Name,
				Input: input,
			})
		}
		if len(content) == 0 {
			return nil, fmt.Errorf("tool call message has no tool calls")
		}
		return llm.NewMessage(llm.Assistant, content), nil
	case memory.TypeToolResult:
		if len(message.ToolResults) == 0 {
			return nil, fmt.Errorf("tool result message has no tool results")
		}
		outputs := make([]*llm.ToolOutput, len(message.ToolResults))
		for i, result := range message.ToolResults {
			outputs[i] = &llm.ToolOutput{
				ID:      result.ToolCallID,
				Output:  result.Content,
				IsError: result.IsError,
			}
		}
		return llm.NewToolOutputMessage(outputs), nil
	default:
		return nil, fmt.Errorf("cannot rebuild %s content for provider %s", message.MessageType, c.provider)
	}
}

// textOnly extracts the plain text portions of a content payload, ignoring
// tool placeholders.
func textOnly(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var text string
		for _, item := range v {
			block, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if block["type"] == "text" {
				if t, ok := block["text"].(string); ok {
					if text != "" {
						text += "\n\n"
					}
					text += t
				}
			}
		}
		return text
	default:
		return ""
	}
}

func mapRoleToUniversal(role llm.Role) memory.Role {
	switch role {
	case llm.Assistant:
		return memory.RoleAssistant
	case llm.System:
		return memory.RoleSystem
	default:
		return memory.RoleUser
	}
}

func mapRoleToProvider(role memory.Role) llm.Role {
	switch role {
	case memory.RoleAssistant:
		return llm.Assistant
	case memory.RoleSystem:
		return llm.System
	default:
		// Tool and function results ride the user role on the wire.
		return llm.User
	}
}
