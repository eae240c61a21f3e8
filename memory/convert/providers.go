package convert

import (
	"github.com/vianexus/agent-sdk-go/memory"
	"github.com/vianexus/agent-sdk-go/providers"
)

// NewAnthropicConverter creates the converter for Anthropic-shaped messages.
// Tool results ride the user role, matching the Messages API.
func NewAnthropicConverter() memory.Converter {
	return &converter{
		provider:       string(providers.Anthropic),
		toolResultRole: memory.RoleUser,
	}
}

// NewOpenAIConverter creates the converter for OpenAI-shaped messages. Tool
// results are recorded under the tool role, matching function_call_output
// items in the Responses API.
func NewOpenAIConverter() memory.Converter {
	return &converter{
		provider:       string(providers.OpenAI),
		toolResultRole: memory.RoleTool,
	}
}

// NewGeminiConverter creates the converter for Gemini-shaped messages. Tool
// results are recorded under the tool role, matching functionResponse parts.
func NewGeminiConverter() memory.Converter {
	return &converter{
		provider:       string(providers.Gemini),
		toolResultRole: memory.RoleTool,
	}
}
