// Package openai implements the OpenAI Responses API provider using the
// official openai-go SDK.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/vianexus/agent-sdk-go/llm"
)

var (
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 4096
)

var _ llm.LLM = &Provider{}

type Provider struct {
	client    openai.Client
	model     string
	maxTokens int
	options   []option.RequestOption
}

func New(opts ...Option) *Provider {
	p := &Provider{
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client = openai.NewClient(p.options...)
	return p
}

func (p *Provider) Name() string {
	return "openai"
}

func (p *Provider) Generate(ctx context.Context, messages []*llm.Message, opts ...llm.Option) (*llm.Response, error) {
	config := &llm.Config{}
	config.Apply(opts...)

	params, err := p.buildRequestParams(config, messages)
	if err != nil {
		return nil, err
	}

	response, err := p.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	return p.convertResponse(response)
}

// buildRequestParams converts llm.Config to responses.ResponseNewParams
func (p *Provider) buildRequestParams(config *llm.Config, messages []*llm.Message) (responses.ResponseNewParams, error) {
	if len(messages) == 0 {
		return responses.ResponseNewParams{}, fmt.Errorf("no messages provided")
	}

	input, err := encodeMessages(messages)
	if err != nil {
		return responses.ResponseNewParams{}, err
	}

	model := config.Model
	if model == "" {
		model = p.model
	}

	params := responses.ResponseNewParams{
		Model: model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: input,
		},
	}

	if config.SystemPrompt != "" {
		params.Instructions = openai.String(config.SystemPrompt)
	}
	if config.MaxTokens != nil && *config.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(*config.MaxTokens))
	} else if p.maxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(p.maxTokens))
	}
	if config.Temperature != nil {
		params.Temperature = openai.Float(*config.Temperature)
	}

	if config.ToolChoice.Type != "" {
		switch config.ToolChoice.Type {
		case "auto":
			params.ToolChoice = responses.ResponseNewParamsToolChoiceUnion{
				OfToolChoiceMode: openai.Opt(responses.ToolChoiceOptionsAuto),
			}
		case "none":
			params.ToolChoice = responses.ResponseNewParamsToolChoiceUnion{
				OfToolChoiceMode: openai.Opt(responses.ToolChoiceOptionsNone),
			}
		case "required", "any", "tool":
			params.ToolChoice = responses.ResponseNewParamsToolChoiceUnion{
				OfToolChoiceMode: openai.Opt(responses.ToolChoiceOptionsRequired),
			}
		default:
			return responses.ResponseNewParams{}, fmt.Errorf("invalid tool choice: %s", config.ToolChoice.Type)
		}
	}

	if len(config.Tools) > 0 {
		var tools []responses.ToolUnionParam
		for _, tool := range config.Tools {
			tools = append(tools, responses.ToolUnionParam{
				OfFunction: &responses.FunctionToolParam{
					Name:        tool.Name(),
					Strict:      openai.Bool(false),
					Description: openai.String(tool.Description()),
					Parameters:  tool.Schema().AsMap(),
				},
			})
		}
		params.Tools = tools
	}
	return params, nil
}

// encodeMessages converts llm messages to Responses API input items. Tool
// calls and tool results round-trip as function_call / function_call_output
// items so that tool context survives across turns.
func encodeMessages(messages []*llm.Message) ([]responses.ResponseInputItemUnionParam, error) {
	var items []responses.ResponseInputItemUnionParam
	for _, msg := range messages {
		if msg.Role == llm.Assistant {
			assistantItems, err := encodeAssistantMessage(msg)
			if err != nil {
				return nil, err
			}
			items = append(items, assistantItems...)
			continue
		}

		var contentItems []responses.ResponseInputContentUnionParam
		var standaloneItems []responses.ResponseInputItemUnionParam
		for _, c := range msg.Content {
			switch c.Type {
			case llm.ContentTypeText:
				contentItems = append(contentItems, responses.ResponseInputContentUnionParam{
					OfInputText: &responses.ResponseInputTextParam{
						Text: c.Text,
					},
				})
			case llm.ContentTypeImage:
				dataURL := fmt.Sprintf("data:%s;base64,%s", c.MediaType, c.Data)
				contentItems = append(contentItems, responses.ResponseInputContentUnionParam{
					OfInputImage: &responses.ResponseInputImageParam{
						Detail:   responses.ResponseInputImageDetailAuto,
						ImageURL: openai.String(dataURL),
					},
				})
			case llm.ContentTypeToolResult:
				standaloneItems = append(standaloneItems,
					responses.ResponseInputItemParamOfFunctionCallOutput(c.ToolUseID, c.Text))
			default:
				return nil, fmt.Errorf("unsupported content type: %s", c.Type)
			}
		}
		if len(contentItems) > 0 {
			items = append(items, responses.ResponseInputItemUnionParam{
				OfMessage: &responses.EasyInputMessageParam{
					Role: responses.EasyInputMessageRole(msg.Role),
					Content: responses.EasyInputMessageContentUnionParam{
						OfInputItemContentList: contentItems,
					},
				},
			})
		}
		items = append(items, standaloneItems...)
	}
	return items, nil
}

func encodeAssistantMessage(msg *llm.Message) ([]responses.ResponseInputItemUnionParam, error) {
	var items []responses.ResponseInputItemUnionParam
	for _, c := range msg.Content {
		switch c.Type {
		case llm.ContentTypeText:
			content := []responses.ResponseOutputMessageContentUnionParam{
				{
					OfOutputText: &responses.ResponseOutputTextParam{
						Text: c.Text,
						Type: "output_text",
					},
				},
			}
			items = append(items, responses.ResponseInputItemParamOfOutputMessage(content, "", ""))
		case llm.ContentTypeToolUse:
			if c.Name == "" {
				return nil, fmt.Errorf("tool use content name is empty")
			}
			items = append(items, responses.ResponseInputItemParamOfFunctionCall(string(c.Input), c.ID, c.Name))
		default:
			return nil, fmt.Errorf("unsupported assistant content type: %s", c.Type)
		}
	}
	return items, nil
}

// convertResponse converts SDK response to llm.Response
func (p *Provider) convertResponse(response *responses.Response) (*llm.Response, error) {
	var contentBlocks []*llm.Content
	for _, item := range response.Output {
		switch item.Type {
		case "message":
			outputMsg := item.AsMessage()
			for _, content := range outputMsg.Content {
				if content.Type == "output_text" {
					contentBlocks = append(contentBlocks, &llm.Content{
						Type: llm.ContentTypeText,
						Text: content.AsOutputText().Text,
					})
				}
			}
		case "function_call":
			functionCall := item.AsFunctionCall()
			contentBlocks = append(contentBlocks, &llm.Content{
				Type:  llm.ContentTypeToolUse,
				ID:    functionCall.CallID,
				Name:  functionCall.Name,
				Input: []byte(functionCall.Arguments),
			})
		}
	}

	return &llm.Response{
		ID:         response.ID,
		Model:      string(response.Model),
		Role:       llm.Assistant,
		StopReason: determineStopReason(response),
		Message:    llm.NewMessage(llm.Assistant, contentBlocks),
		Usage: llm.Usage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}

// determineStopReason maps SDK response data to standard stop reasons
func determineStopReason(response *responses.Response) string {
	for _, item := range response.Output {
		if strings.HasSuffix(item.Type, "_call") {
			return "tool_use"
		}
	}
	return "end_turn"
}
