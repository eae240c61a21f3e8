// Package llm defines the provider-neutral model interface shared by the
// Anthropic, OpenAI, and Gemini providers: messages, content blocks, tools,
// generation options, responses, and streaming.
package llm

import (
	"context"
	"net/http"

	"github.com/vianexus/agent-sdk-go/slogger"
)

// LLM is implemented by every model provider.
type LLM interface {
	// Name returns the provider name, e.g. "anthropic".
	Name() string

	// Generate a response from the LLM by passing messages.
	Generate(ctx context.Context, messages []*Message, opts ...Option) (*Response, error)
}

// StreamingLLM is implemented by providers that support streamed generation.
type StreamingLLM interface {
	LLM

	// Stream a response from the LLM by passing messages.
	Stream(ctx context.Context, messages []*Message, opts ...Option) (Stream, error)
}

// Option is a function that configures LLM calls.
type Option func(*Config)

// Config holds configuration parameters for LLM generation.
type Config struct {
	Model        string
	SystemPrompt string
	MaxTokens    *int
	Temperature  *float64
	Tools        []Tool
	ToolChoice   ToolChoice
	Client       *http.Client
	Logger       slogger.Logger
}

// Apply applies the given options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// WithModel sets the LLM model for the generation.
func WithModel(model string) Option {
	return func(config *Config) {
		config.Model = model
	}
}

// WithMaxTokens sets the max tokens.
func WithMaxTokens(maxTokens int) Option {
	return func(config *Config) {
		config.MaxTokens = &maxTokens
	}
}

// WithTemperature sets the temperature.
func WithTemperature(temperature float64) Option {
	return func(config *Config) {
		config.Temperature = &temperature
	}
}

// WithSystemPrompt sets the system prompt.
func WithSystemPrompt(systemPrompt string) Option {
	return func(config *Config) {
		config.SystemPrompt = systemPrompt
	}
}

// WithTools sets the tools for the interaction.
func WithTools(tools ...Tool) Option {
	return func(config *Config) {
		config.Tools = tools
	}
}

// WithToolChoice sets the tool choice for the interaction.
func WithToolChoice(toolChoice ToolChoice) Option {
	return func(config *Config) {
		config.ToolChoice = toolChoice
	}
}

// WithClient sets the HTTP client.
func WithClient(client *http.Client) Option {
	return func(config *Config) {
		config.Client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger slogger.Logger) Option {
	return func(config *Config) {
		config.Logger = logger
	}
}
