package mcp

import (
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{
			"bare host defaults to https",
			Config{ServerURL: "api.vianexus.com", ServerPort: 8443},
			"https://api.vianexus.com:8443/mcp",
		},
		{
			"explicit http scheme is preserved",
			Config{ServerURL: "http://localhost", ServerPort: 8080},
			"http://localhost:8080/mcp",
		},
		{
			"path and port on server_url are dropped",
			Config{ServerURL: "https://api.vianexus.com:9999/ignored", ServerPort: 8443},
			"https://api.vianexus.com:8443/mcp",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.Endpoint())
		})
	}
}

func TestToolCategories(t *testing.T) {
	base := Config{ServerURL: "api.vianexus.com", ServerPort: 8443}
	assert.Equal(t, "financial", base.ToolCategories())

	openbb := base
	openbb.ClientContext = &ClientContext{Type: "openbb"}
	assert.Equal(t, "financial,openbb", openbb.ToolCategories())

	other := base
	other.ClientContext = &ClientContext{Type: "terminal"}
	assert.Equal(t, "financial", other.ToolCategories())

	headers := openbb.Headers()
	assert.Equal(t, "financial,openbb", headers["X-Tool-Categories"])
}

func TestConfigValidate(t *testing.T) {
	valid := &Config{
		ServerURL:         "api.vianexus.com",
		ServerPort:        8443,
		SoftwareStatement: "eyJhbGciOiJub25lIn0.e30.",
	}
	require.NoError(t, valid.Validate())

	missingURL := *valid
	missingURL.ServerURL = ""
	require.Error(t, missingURL.Validate())

	missingPort := *valid
	missingPort.ServerPort = 0
	require.Error(t, missingPort.Validate())

	missingStatement := *valid
	missingStatement.SoftwareStatement = ""
	require.Error(t, missingStatement.Validate())

	var nilConfig *Config
	require.Error(t, nilConfig.Validate())
}

func TestReduceResultPrefersFirstText(t *testing.T) {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "the quote is 42"},
			mcp.TextContent{Type: "text", Text: "ignored second block"},
		},
	}
	text, isError := ReduceResult(result)
	assert.Equal(t, "the quote is 42", text)
	assert.False(t, isError)
}

func TestReduceResultNonTextFirstElement(t *testing.T) {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.ImageContent{Type: "image", Data: "aGk=", MIMEType: "image/png"},
		},
	}
	text, isError := ReduceResult(result)
	assert.Contains(t, text, "image/png")
	assert.False(t, isError)
}

func TestReduceResultErrorFlag(t *testing.T) {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: "upstream timeout"},
		},
		IsError: true,
	}
	text, isError := ReduceResult(result)
	assert.Equal(t, "upstream timeout", text)
	assert.True(t, isError)
}

func TestReduceResultEmptyAndNil(t *testing.T) {
	text, isError := ReduceResult(&mcp.CallToolResult{})
	assert.Equal(t, "", text)
	assert.False(t, isError)

	text, isError = ReduceResult(nil)
	assert.Equal(t, "", text)
	assert.False(t, isError)
}

func TestReduceResultCapsPayload(t *testing.T) {
	huge := strings.Repeat("x", MaxToolPayloadBytes+100)
	result := &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: huge}},
	}
	text, _ := ReduceResult(result)
	assert.Less(t, len(text), len(huge))
	assert.Contains(t, text, "[payload truncated]")
}

func TestToolAdapterSchema(t *testing.T) {
	channel := &Channel{config: &Config{ServerURL: "api.vianexus.com", ServerPort: 8443}}

	adapter := NewToolAdapter(channel, mcp.Tool{
		Name:        "fetch_quote",
		Description: "Fetch a quote",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"symbol": map[string]any{
					"type":        "string",
					"description": "Ticker symbol",
				},
			},
			Required: []string{"symbol"},
		},
	})
	assert.Equal(t, "fetch_quote", adapter.Name())
	assert.Equal(t, "Fetch a quote", adapter.Description())

	s := adapter.Schema()
	assert.Equal(t, "object", s.Type)
	assert.Equal(t, []string{"symbol"}, s.Required)
	require.Contains(t, s.Properties, "symbol")
	assert.Equal(t, "string", s.Properties["symbol"].Type)
}

func TestToolAdapterSchemaDefaultsToEmptyObject(t *testing.T) {
	channel := &Channel{config: &Config{ServerURL: "api.vianexus.com", ServerPort: 8443}}
	adapter := NewToolAdapter(channel, mcp.Tool{Name: "ping"})
	s := adapter.Schema()
	assert.Equal(t, "object", s.Type)
	assert.NotNil(t, s.Properties)
	assert.Empty(t, s.Properties)
}

func TestToolsFallsBackToCachedCatalogue(t *testing.T) {
	channel, err := NewChannel(&Config{
		ServerURL:         "api.vianexus.com",
		ServerPort:        8443,
		SoftwareStatement: "eyJhbGciOiJub25lIn0.e30.",
	})
	require.NoError(t, err)

	// No catalogue at all: the refresh failure propagates.
	_, err = channel.Tools(t.Context())
	require.Error(t, err)

	// With a previously listed catalogue, a failed refresh serves the cache.
	channel.tools = []mcp.Tool{{Name: "search"}, {Name: "fetch"}}
	tools, err := channel.Tools(t.Context())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "search", tools[0].Name())
	assert.Equal(t, "fetch", tools[1].Name())
}

func TestChannelRequiresConnect(t *testing.T) {
	channel, err := NewChannel(&Config{
		ServerURL:         "api.vianexus.com",
		ServerPort:        8443,
		SoftwareStatement: "eyJhbGciOiJub25lIn0.e30.",
	})
	require.NoError(t, err)

	_, err = channel.ListTools(t.Context())
	assert.True(t, IsNotConnectedError(err))

	_, err = channel.CallTool(t.Context(), "fetch_quote", nil)
	assert.True(t, IsNotConnectedError(err))

	assert.Empty(t, channel.SessionID())
	assert.False(t, channel.IsConnected())
	require.NoError(t, channel.Close())
}
