package agent

import (
	"fmt"

	"github.com/vianexus/agent-sdk-go/config"
	"github.com/vianexus/agent-sdk-go/llm"
	"github.com/vianexus/agent-sdk-go/mcp"
	"github.com/vianexus/agent-sdk-go/memory"
	"github.com/vianexus/agent-sdk-go/memory/convert"
	"github.com/vianexus/agent-sdk-go/providers"
	"github.com/vianexus/agent-sdk-go/providers/anthropic"
	"github.com/vianexus/agent-sdk-go/providers/google"
	"github.com/vianexus/agent-sdk-go/providers/openai"
	"github.com/vianexus/agent-sdk-go/slogger"
)

// New builds an agent from configuration: the provider is detected, the tool
// channel prepared, the system prompt resolved, and the memory store chosen
// per the memory section.
func New(cfg *config.Config, opts ...AgentOption) (*Agent, error) {
	cfg.ApplyDefaults()
	switch cfg.Memory.StoreType {
	case config.StoreNone:
		return NewWithoutMemory(cfg, opts...)
	case config.StoreFile:
		return NewWithFileMemory(cfg, cfg.Memory.FilePath, opts...)
	default:
		return NewWithMemory(cfg, opts...)
	}
}

// NewWithMemory builds an agent persisting to an in-process store.
func NewWithMemory(cfg *config.Config, opts ...AgentOption) (*Agent, error) {
	return build(cfg, memory.NewMemoryStore(), opts...)
}

// NewWithFileMemory builds an agent persisting to a file store rooted at
// dir.
func NewWithFileMemory(cfg *config.Config, dir string, opts ...AgentOption) (*Agent, error) {
	store, err := memory.NewFileStore(dir)
	if err != nil {
		return nil, err
	}
	return build(cfg, store, opts...)
}

// NewWithoutMemory builds an agent with no persistence at all.
func NewWithoutMemory(cfg *config.Config, opts ...AgentOption) (*Agent, error) {
	return build(cfg, nil, opts...)
}

// NewPersistentClient builds an agent from configuration and wraps it in the
// persistent-connection overlay.
func NewPersistentClient(cfg *config.Config, opts ...AgentOption) (*PersistentClient, error) {
	agent, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return NewPersistent(agent), nil
}

func build(cfg *config.Config, store memory.Store, opts ...AgentOption) (*Agent, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	name, err := providers.Detect(cfg.Provider, cfg.LLMModel, cfg.LLMAPIKey, cfg.Serialized())
	if err != nil {
		return nil, err
	}
	provider, err := newProvider(name, cfg)
	if err != nil {
		return nil, err
	}

	vianexus := cfg.AgentServers.ViaNexus
	channel, err := mcp.NewChannel(vianexus)
	if err != nil {
		return nil, err
	}

	systemPrompt := ResolveSystemPrompt(cfg.SystemPrompt, vianexus.SoftwareStatement, slogger.DefaultLogger)

	baseOpts := []AgentOption{
		WithChannel(channel),
		WithSystemPrompt(systemPrompt),
		WithMaxTokens(cfg.MaxTokens),
		WithMaxHistoryLength(cfg.MaxHistoryLength),
	}
	if store != nil {
		converter, err := convert.For(string(name))
		if err != nil {
			return nil, err
		}
		clientType := "vianexus"
		if vianexus.ClientContext != nil && vianexus.ClientContext.Type != "" {
			clientType = vianexus.ClientContext.Type
		}
		sessionID := memory.GenerateSessionID(clientType, "", "")
		conversation := memory.NewConversation(store, converter, sessionID,
			memory.WithConversationClientType(clientType))
		baseOpts = append(baseOpts, WithConversation(conversation))
	}

	return NewAgent(provider, append(baseOpts, opts...)...), nil
}

func newProvider(name providers.Name, cfg *config.Config) (llm.LLM, error) {
	switch name {
	case providers.Anthropic:
		opts := []anthropic.Option{
			anthropic.WithAPIKey(cfg.LLMAPIKey),
			anthropic.WithMaxTokens(cfg.MaxTokens),
		}
		if cfg.LLMModel != "" {
			opts = append(opts, anthropic.WithModel(cfg.LLMModel))
		}
		return anthropic.New(opts...), nil
	case providers.OpenAI:
		opts := []openai.Option{
			openai.WithAPIKey(cfg.LLMAPIKey),
			openai.WithMaxTokens(cfg.MaxTokens),
		}
		if cfg.LLMModel != "" {
			opts = append(opts, openai.WithModel(cfg.LLMModel))
		}
		return openai.New(opts...), nil
	case providers.Gemini:
		opts := []google.Option{
			google.WithAPIKey(cfg.LLMAPIKey),
			google.WithMaxTokens(cfg.MaxTokens),
		}
		if cfg.LLMModel != "" {
			opts = append(opts, google.WithModel(cfg.LLMModel))
		}
		return google.New(opts...), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", name)
	}
}
