package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/vianexus/agent-sdk-go/schema"
)

// ToolAdapter exposes one server-side tool through the llm tool interface so
// the orchestrator can offer it to a model and dispatch calls back over the
// channel.
type ToolAdapter struct {
	channel *Channel
	info    mcp.Tool
}

// NewToolAdapter wraps a discovered tool.
func NewToolAdapter(channel *Channel, info mcp.Tool) *ToolAdapter {
	return &ToolAdapter{channel: channel, info: info}
}

func (t *ToolAdapter) Name() string {
	return t.info.Name
}

func (t *ToolAdapter) Description() string {
	if t.info.Description != "" {
		return t.info.Description
	}
	return fmt.Sprintf("Tool %s from %s", t.info.Name, t.channel.config.Endpoint())
}

// Schema converts the server's inputSchema. Tools with no declared schema
// get an empty object schema, which every provider accepts.
func (t *ToolAdapter) Schema() *schema.Schema {
	if t.info.InputSchema.Type == "" {
		return &schema.Schema{
			Type:       "object",
			Properties: map[string]*schema.Property{},
		}
	}
	s := schema.FromMap(map[string]any{
		"type":       t.info.InputSchema.Type,
		"properties": t.info.InputSchema.Properties,
		"required":   t.info.InputSchema.Required,
	})
	if s.Properties == nil {
		s.Properties = map[string]*schema.Property{}
	}
	return s
}

// Invoke dispatches the call over the channel and returns the reduced text.
func (t *ToolAdapter) Invoke(ctx context.Context, input json.RawMessage) (string, error) {
	arguments := map[string]any{}
	if len(input) > 0 && string(input) != "null" && string(input) != `""` {
		if err := json.Unmarshal(input, &arguments); err != nil {
			return "", fmt.Errorf("error unmarshaling tool input: %w", err)
		}
	}
	return t.channel.Invoke(ctx, t.info.Name, arguments)
}
