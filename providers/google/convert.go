package google

import (
	"encoding/json"
	"fmt"

	"google.golang.org/genai"

	"github.com/vianexus/agent-sdk-go/llm"
	"github.com/vianexus/agent-sdk-go/schema"
)

// messagesToContents converts llm messages to genai contents. Gemini uses
// "model" where the rest of the world says "assistant", and tool results
// travel as function_response parts on a user content.
func messagesToContents(messages []*llm.Message) ([]*genai.Content, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}
	var contents []*genai.Content
	for i, msg := range messages {
		if len(msg.Content) == 0 {
			return nil, fmt.Errorf("empty message detected (index %d)", i)
		}
		role := genai.RoleUser
		if msg.Role == llm.Assistant {
			role = genai.RoleModel
		}
		var parts []*genai.Part
		for _, c := range msg.Content {
			switch c.Type {
			case llm.ContentTypeText:
				parts = append(parts, &genai.Part{Text: c.Text})
			case llm.ContentTypeToolUse:
				var args map[string]any
				if len(c.Input) > 0 {
					if err := json.Unmarshal(c.Input, &args); err != nil {
						return nil, fmt.Errorf("error unmarshaling function call args: %w", err)
					}
				}
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   c.ID,
						Name: c.Name,
						Args: args,
					},
				})
			case llm.ContentTypeToolResult:
				response := map[string]any{"result": c.Text}
				if c.IsError {
					response = map[string]any{"error": c.Text}
				}
				parts = append(parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       c.ToolUseID,
						Name:     c.Name,
						Response: response,
					},
				})
			case llm.ContentTypeImage:
				parts = append(parts, &genai.Part{
					InlineData: &genai.Blob{
						MIMEType: c.MediaType,
						Data:     []byte(c.Data),
					},
				})
			default:
				return nil, fmt.Errorf("unsupported content type: %s", c.Type)
			}
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents, nil
}

// convertResponse converts a genai response to an llm.Response.
func convertResponse(resp *genai.GenerateContentResponse, model string) (*llm.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from gemini")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return nil, fmt.Errorf("no content in response")
	}

	var content []*llm.Content
	for _, part := range candidate.Content.Parts {
		switch {
		case part.Text != "":
			content = append(content, &llm.Content{
				Type: llm.ContentTypeText,
				Text: part.Text,
			})
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("error marshaling function call args: %w", err)
			}
			id := part.FunctionCall.ID
			if id == "" {
				id = fmt.Sprintf("call_%s", part.FunctionCall.Name)
			}
			content = append(content, &llm.Content{
				Type:  llm.ContentTypeToolUse,
				ID:    id,
				Name:  part.FunctionCall.Name,
				Input: json.RawMessage(args),
			})
		}
	}

	var usage llm.Usage
	if resp.UsageMetadata != nil {
		usage = llm.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	return &llm.Response{
		ID:         resp.ResponseID,
		Model:      model,
		Role:       llm.Assistant,
		StopReason: stopReason(candidate, content),
		Message:    llm.NewMessage(llm.Assistant, content),
		Usage:      usage,
	}, nil
}

func stopReason(candidate *genai.Candidate, content []*llm.Content) string {
	for _, c := range content {
		if c.Type == llm.ContentTypeToolUse {
			return "tool_use"
		}
	}
	switch candidate.FinishReason {
	case genai.FinishReasonStop:
		return "end_turn"
	case genai.FinishReasonMaxTokens:
		return "max_tokens"
	}
	return "other"
}

// sanitizeSchema converts a tool schema to the genai shape, keeping only the
// fields Gemini accepts: type, description, enum, items, properties, required.
func sanitizeSchema(s *schema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:     genaiType(s.Type),
		Required: s.Required,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = sanitizeProperty(p)
		}
	}
	return out
}

func sanitizeProperty(p *schema.Property) *genai.Schema {
	out := &genai.Schema{
		Type:        genaiType(p.Type),
		Description: p.Description,
		Enum:        p.Enum,
		Required:    p.Required,
	}
	if p.Items != nil {
		out.Items = sanitizeProperty(p.Items)
	}
	if len(p.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(p.Properties))
		for name, sub := range p.Properties {
			out.Properties[name] = sanitizeProperty(sub)
		}
	}
	return out
}

func genaiType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	}
	return genai.TypeUnspecified
}
