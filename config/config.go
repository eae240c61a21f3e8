// Package config defines the client configuration and its YAML loader.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/vianexus/agent-sdk-go/mcp"
)

const (
	DefaultMaxTokens        = 1000
	DefaultMaxHistoryLength = 50
)

// Memory store types.
const (
	StoreInMemory = "in_memory"
	StoreFile     = "file"
	StoreNone     = "none"
)

// MemoryConfig selects the conversation store.
type MemoryConfig struct {
	StoreType string `json:"store_type" yaml:"store_type"`
	FilePath  string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
}

// AgentServers names the tool servers the client talks to. Only viaNexus is
// supported.
type AgentServers struct {
	ViaNexus *mcp.Config `json:"viaNexus" yaml:"viaNexus"`
}

// Config is the full client configuration.
type Config struct {
	LLMAPIKey        string        `json:"LLM_API_KEY" yaml:"LLM_API_KEY"`
	LLMModel         string        `json:"LLM_MODEL,omitempty" yaml:"LLM_MODEL,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	MaxHistoryLength int           `json:"max_history_length,omitempty" yaml:"max_history_length,omitempty"`
	SystemPrompt     string        `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Provider         string        `json:"provider,omitempty" yaml:"provider,omitempty"`
	Memory           *MemoryConfig `json:"memory,omitempty" yaml:"memory,omitempty"`
	AgentServers     AgentServers  `json:"agentServers" yaml:"agentServers"`
}

// ApplyDefaults fills in unset numeric fields.
func (c *Config) ApplyDefaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.MaxHistoryLength <= 0 {
		c.MaxHistoryLength = DefaultMaxHistoryLength
	}
	if c.Memory == nil {
		c.Memory = &MemoryConfig{StoreType: StoreInMemory}
	}
	if c.Memory.StoreType == "" {
		c.Memory.StoreType = StoreInMemory
	}
}

// Validate checks the fields a client cannot run without.
func (c *Config) Validate() error {
	if c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.AgentServers.ViaNexus == nil {
		return fmt.Errorf("agentServers.viaNexus is required")
	}
	if err := c.AgentServers.ViaNexus.Validate(); err != nil {
		return fmt.Errorf("agentServers.viaNexus: %w", err)
	}
	switch c.Memory.StoreType {
	case StoreInMemory, StoreNone:
	case StoreFile:
		if c.Memory.FilePath == "" {
			return fmt.Errorf("memory.file_path is required for the file store")
		}
	default:
		return fmt.Errorf("unknown memory store type %q", c.Memory.StoreType)
	}
	return nil
}

// Serialized renders the configuration for provider detection. The API key
// is redacted.
func (c *Config) Serialized() string {
	cp := *c
	cp.LLMAPIKey = ""
	data, err := yaml.Marshal(&cp)
	if err != nil {
		return ""
	}
	return string(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("error parsing configuration: %w", err)
	}
	c.ApplyDefaults()
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading configuration file: %w", err)
	}
	return Parse(data)
}
