package llm

import (
	"context"
	"encoding/json"

	"github.com/vianexus/agent-sdk-go/schema"
)

// Tool describes a callable tool offered to the model.
type Tool interface {
	// Name of the tool, unique within a turn's catalogue.
	Name() string

	// Description of what the tool does.
	Description() string

	// Schema describing the tool's input parameters.
	Schema() *schema.Schema
}

// InvokableTool is a Tool that can be executed locally by the orchestrator.
type InvokableTool interface {
	Tool

	// Invoke runs the tool with the given JSON input and returns the result
	// as text. Failures are returned as an error; the orchestrator converts
	// them into synthetic error results rather than aborting the turn.
	Invoke(ctx context.Context, input json.RawMessage) (string, error)
}

// ToolChoice influences how the model selects tools.
type ToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

var (
	ToolChoiceAuto = ToolChoice{Type: "auto"}
	ToolChoiceAny  = ToolChoice{Type: "any"}
	ToolChoiceNone = ToolChoice{Type: "none"}
)

// FuncTool adapts a plain function to the InvokableTool interface.
type FuncTool struct {
	name        string
	description string
	schema      *schema.Schema
	fn          func(ctx context.Context, input json.RawMessage) (string, error)
}

// NewFuncTool creates an InvokableTool backed by the given function.
func NewFuncTool(name, description string, s *schema.Schema, fn func(ctx context.Context, input json.RawMessage) (string, error)) *FuncTool {
	return &FuncTool{name: name, description: description, schema: s, fn: fn}
}

func (t *FuncTool) Name() string { return t.name }

func (t *FuncTool) Description() string { return t.description }

func (t *FuncTool) Schema() *schema.Schema { return t.schema }

func (t *FuncTool) Invoke(ctx context.Context, input json.RawMessage) (string, error) {
	return t.fn(ctx, input)
}
