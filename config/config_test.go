package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
LLM_API_KEY: sk-ant-test
LLM_MODEL: claude-sonnet-4-20250514
max_tokens: 2000
system_prompt: "You are terse."
memory:
  store_type: file
  file_path: /tmp/vianexus-memory
agentServers:
  viaNexus:
    server_url: api.vianexus.com
    server_port: 8443
    software_statement: eyJhbGciOiJub25lIn0.e30.
    client_context:
      type: openbb
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "sk-ant-test", c.LLMAPIKey)
	assert.Equal(t, "claude-sonnet-4-20250514", c.LLMModel)
	assert.Equal(t, 2000, c.MaxTokens)
	assert.Equal(t, DefaultMaxHistoryLength, c.MaxHistoryLength)
	assert.Equal(t, "You are terse.", c.SystemPrompt)
	assert.Equal(t, StoreFile, c.Memory.StoreType)

	vn := c.AgentServers.ViaNexus
	require.NotNil(t, vn)
	assert.Equal(t, "https://api.vianexus.com:8443/mcp", vn.Endpoint())
	assert.Equal(t, "financial,openbb", vn.ToolCategories())
}

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(`LLM_API_KEY: sk-test`))
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxTokens, c.MaxTokens)
	assert.Equal(t, DefaultMaxHistoryLength, c.MaxHistoryLength)
	require.NotNil(t, c.Memory)
	assert.Equal(t, StoreInMemory, c.Memory.StoreType)
}

func TestValidate(t *testing.T) {
	base, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	missingKey := *base
	missingKey.LLMAPIKey = ""
	require.Error(t, missingKey.Validate())

	missingServer := *base
	missingServer.AgentServers = AgentServers{}
	require.Error(t, missingServer.Validate())

	badStore := *base
	badStore.Memory = &MemoryConfig{StoreType: "redis"}
	require.Error(t, badStore.Validate())

	fileWithoutPath := *base
	fileWithoutPath.Memory = &MemoryConfig{StoreType: StoreFile}
	require.Error(t, fileWithoutPath.Validate())
}

func TestSerializedRedactsAPIKey(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	serialized := c.Serialized()
	assert.NotContains(t, serialized, "sk-ant-test")
	assert.Contains(t, serialized, "claude-sonnet-4-20250514")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", c.LLMAPIKey)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
