// Package anthropic implements the Anthropic Messages API over raw HTTP,
// including SSE streaming.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/vianexus/agent-sdk-go/llm"
	"github.com/vianexus/agent-sdk-go/providers"
	"github.com/vianexus/agent-sdk-go/retry"
	"github.com/vianexus/agent-sdk-go/slogger"
)

var (
	DefaultModel         = "claude-sonnet-4-20250514"
	DefaultEndpoint      = "https://api.anthropic.com/v1/messages"
	DefaultVersion       = "2023-06-01"
	DefaultMaxTokens     = 4096
	DefaultMaxRetries    = 6
	DefaultRetryBaseWait = 2 * time.Second
)

var _ llm.StreamingLLM = &Provider{}

type Provider struct {
	apiKey        string
	client        *http.Client
	endpoint      string
	model         string
	version       string
	maxTokens     int
	maxRetries    int
	retryBaseWait time.Duration
	logger        slogger.Logger
}

func New(opts ...Option) *Provider {
	p := &Provider{
		client:        http.DefaultClient,
		endpoint:      DefaultEndpoint,
		version:       DefaultVersion,
		model:         DefaultModel,
		maxTokens:     DefaultMaxTokens,
		maxRetries:    DefaultMaxRetries,
		retryBaseWait: DefaultRetryBaseWait,
		logger:        slogger.DefaultLogger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string {
	return "anthropic"
}

func (p *Provider) Generate(ctx context.Context, messages []*llm.Message, opts ...llm.Option) (*llm.Response, error) {
	config := &llm.Config{}
	config.Apply(opts...)

	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}
	for i, message := range messages {
		if len(message.Content) == 0 {
			return nil, fmt.Errorf("empty message detected (index %d)", i)
		}
	}

	reqBody, err := p.buildRequest(config, messages, false)
	if err != nil {
		return nil, err
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	client := p.client
	if config.Client != nil {
		client = config.Client
	}

	var result Response
	err = retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint, bytes.NewBuffer(jsonBody))
		if err != nil {
			return fmt.Errorf("error creating request: %w", err)
		}
		req.Header.Set("x-api-key", p.apiKey)
		req.Header.Set("anthropic-version", p.version)
		req.Header.Set("content-type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("error making request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode == http.StatusTooManyRequests {
				p.logger.Warn("rate limit exceeded",
					"status", resp.StatusCode, "body", string(body))
			}
			return providers.NewError(resp.StatusCode, string(body))
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("error decoding response: %w", err)
		}
		return nil
	}, retry.WithMaxRetries(p.maxRetries), retry.WithBaseWait(p.retryBaseWait))
	if err != nil {
		return nil, err
	}

	if len(result.Content) == 0 {
		return nil, fmt.Errorf("empty response from anthropic api")
	}

	model := reqBody.Model
	return &llm.Response{
		ID:         result.ID,
		Model:      model,
		Role:       llm.Assistant,
		StopReason: result.StopReason,
		Usage: llm.Usage{
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
		},
		Message: llm.NewMessage(llm.Assistant, processContentBlocks(result.Content)),
	}, nil
}

func (p *Provider) Stream(ctx context.Context, messages []*llm.Message, opts ...llm.Option) (llm.Stream, error) {
	config := &llm.Config{}
	config.Apply(opts...)

	reqBody, err := p.buildRequest(config, messages, true)
	if err != nil {
		return nil, err
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	client := p.client
	if config.Client != nil {
		client = config.Client
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", p.version)
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, providers.NewError(resp.StatusCode, string(body))
	}

	return &Stream{
		reader:        bufio.NewReader(resp.Body),
		body:          resp.Body,
		contentBlocks: make(map[int]*ContentBlockAccumulator),
	}, nil
}

func (p *Provider) buildRequest(config *llm.Config, messages []*llm.Message, stream bool) (*Request, error) {
	model := config.Model
	if model == "" {
		model = p.model
	}
	maxTokens := config.MaxTokens
	if maxTokens == nil {
		maxTokens = &p.maxTokens
	}
	msgs, err := convertMessages(messages)
	if err != nil {
		return nil, fmt.Errorf("error converting messages: %w", err)
	}
	reqBody := &Request{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: config.Temperature,
		System:      config.SystemPrompt,
		Stream:      stream,
	}
	// The API has no "none" tool choice. Omitting the catalogue entirely
	// achieves the same thing: the model cannot call tools it was not given.
	if len(config.Tools) > 0 && config.ToolChoice.Type != "none" {
		var tools []*Tool
		for _, tool := range config.Tools {
			tools = append(tools, &Tool{
				Name:        tool.Name(),
				Description: tool.Description(),
				InputSchema: tool.Schema(),
			})
		}
		reqBody.Tools = tools
		if config.ToolChoice.Type != "" {
			reqBody.ToolChoice = &ToolChoice{
				Type: config.ToolChoice.Type,
				Name: config.ToolChoice.Name,
			}
		}
	}
	return reqBody, nil
}

// processContentBlocks converts Anthropic content blocks to llm content
// blocks. Text blocks whose entire body is a stringified tool-use literal are
// recovered as real tool_use blocks.
func processContentBlocks(blocks []*ContentBlock) []*llm.Content {
	var contentBlocks []*llm.Content
	for _, block := range blocks {
		switch block.Type {
		case "text":
			if recovered, ok := RecoverToolUseBlocks(block.Text); ok {
				contentBlocks = append(contentBlocks, recovered...)
				continue
			}
			contentBlocks = append(contentBlocks, &llm.Content{
				Type: llm.ContentTypeText,
				Text: block.Text,
			})
		case "tool_use":
			contentBlocks = append(contentBlocks, &llm.Content{
				Type:  llm.ContentTypeToolUse,
				ID:    block.ID, // e.g. "toolu_01A09q90qw90lq917835lq9"
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}
	return contentBlocks
}

func convertMessages(messages []*llm.Message) ([]*Message, error) {
	var result []*Message
	for _, msg := range messages {
		var blocks []*ContentBlock
		for _, c := range msg.Content {
			switch c.Type {
			case llm.ContentTypeText:
				blocks = append(blocks, &ContentBlock{
					Type: "text",
					Text: c.Text,
				})
			case llm.ContentTypeImage:
				blocks = append(blocks, &ContentBlock{
					Type: "image",
					Source: &ImageSource{
						Type:      "base64",
						MediaType: c.MediaType,
						Data:      c.Data,
					},
				})
			case llm.ContentTypeToolUse:
				blocks = append(blocks, &ContentBlock{
					Type:  "tool_use",
					ID:    c.ID,
					Name:  c.Name,
					Input: c.Input,
				})
			case llm.ContentTypeToolResult:
				blocks = append(blocks, &ContentBlock{
					Type:      "tool_result",
					ToolUseID: c.ToolUseID,
					IsError:   c.IsError,
					Content: []*ContentBlock{
						{Type: "text", Text: c.Text},
					},
				})
			default:
				return nil, fmt.Errorf("unsupported content type: %s", c.Type)
			}
		}
		result = append(result, &Message{
			Role:    strings.ToLower(string(msg.Role)),
			Content: blocks,
		})
	}
	return result, nil
}

// Stream implements the llm.Stream interface for Anthropic streaming responses
type Stream struct {
	reader         *bufio.Reader
	body           io.ReadCloser
	err            error
	contentBlocks  map[int]*ContentBlockAccumulator
	currentMessage *StreamEvent
	usage          Usage
}

type ContentBlockAccumulator struct {
	Type        string
	Text        string
	PartialJSON string
	ID          string
	Name        string
	IsComplete  bool
}

func (s *Stream) Next(ctx context.Context) (*llm.Event, bool) {
	for {
		if err := ctx.Err(); err != nil {
			s.err = err
			return nil, false
		}
		event, err := s.next()
		if err != nil {
			if err != io.EOF {
				// EOF is the expected error when the stream ends
				s.err = err
			}
			return nil, false
		}
		if event != nil {
			return event, true
		}
	}
}

func (s *Stream) next() (*llm.Event, error) {
	line, err := s.reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}

	// Skip empty lines
	if len(bytes.TrimSpace(line)) == 0 {
		return nil, nil
	}

	// Parse the event type from the SSE format
	if bytes.HasPrefix(line, []byte("event: ")) {
		return nil, nil
	}

	// Remove "data: " prefix if present
	line = bytes.TrimPrefix(line, []byte("data: "))

	// Check for stream end
	if bytes.Equal(bytes.TrimSpace(line), []byte("[DONE]")) {
		return nil, nil
	}

	var event StreamEvent
	if err := json.Unmarshal(line, &event); err != nil {
		return nil, err
	}

	switch event.Type {
	case "message_start":
		s.currentMessage = &event
		s.usage = event.Message.Usage

	case "content_block_start":
		acc := &ContentBlockAccumulator{}
		if event.ContentBlock != nil {
			acc.Type = event.ContentBlock.Type
			acc.Text = event.ContentBlock.Text
			acc.ID = event.ContentBlock.ID
			acc.Name = event.ContentBlock.Name
		}
		s.contentBlocks[event.Index] = acc

	case "content_block_stop":
		if block, exists := s.contentBlocks[event.Index]; exists {
			block.IsComplete = true
		}

	case "content_block_delta":
		block, exists := s.contentBlocks[event.Index]
		if !exists {
			block = &ContentBlockAccumulator{Type: event.Delta.Type}
			s.contentBlocks[event.Index] = block
		}
		// Accumulate both the text and the partial JSON on the block
		switch event.Delta.Type {
		case "text_delta":
			if event.Delta.Text != "" {
				block.Text += event.Delta.Text
				return &llm.Event{
					Type:  llm.EventContentBlockDelta,
					Index: event.Index,
					Delta: &llm.Delta{
						Type: "text_delta",
						Text: event.Delta.Text,
					},
				}, nil
			}
		case "input_json_delta":
			if event.Delta.PartialJSON != "" {
				block.PartialJSON += event.Delta.PartialJSON
				return &llm.Event{
					Type:  llm.EventContentBlockDelta,
					Index: event.Index,
					Delta: &llm.Delta{
						Type:        "input_json_delta",
						PartialJSON: event.Delta.PartialJSON,
					},
				}, nil
			}
		}

	case "message_delta":
		// Combine initial usage with this updated usage
		usage := s.usage
		usage.InputTokens += event.Usage.InputTokens
		usage.OutputTokens += event.Usage.OutputTokens
		response := s.buildFinalResponse(event.Delta.StopReason, usage)
		return &llm.Event{
			Type:  llm.EventMessageDelta,
			Index: event.Index,
			Delta: &llm.Delta{
				Type:       "message_delta",
				StopReason: event.Delta.StopReason,
			},
			Response: response,
		}, nil

	case "message_stop":
		return &llm.Event{Type: llm.EventMessageStop}, nil

	case "ping":
		return &llm.Event{Type: llm.EventPing}, nil
	}
	return nil, nil
}

func (s *Stream) buildFinalResponse(stopReason string, usage Usage) *llm.Response {
	indexes := make([]int, 0, len(s.contentBlocks))
	for index := range s.contentBlocks {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	blocks := make([]*ContentBlock, 0, len(indexes))
	for _, index := range indexes {
		acc := s.contentBlocks[index]
		contentBlock := &ContentBlock{
			Type: acc.Type,
			Text: acc.Text,
		}
		if acc.Type == "tool_use" {
			contentBlock.ID = acc.ID
			contentBlock.Name = acc.Name
			contentBlock.Input = json.RawMessage(acc.PartialJSON)
		}
		blocks = append(blocks, contentBlock)
	}

	var id, model string
	if s.currentMessage != nil {
		id = s.currentMessage.Message.ID
		model = s.currentMessage.Message.Model
	}
	return &llm.Response{
		ID:         id,
		Model:      model,
		Role:       llm.Assistant,
		StopReason: stopReason,
		Message:    llm.NewMessage(llm.Assistant, processContentBlocks(blocks)),
		Usage: llm.Usage{
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
		},
	}
}

func (s *Stream) Close() error {
	return s.body.Close()
}

func (s *Stream) Err() error {
	return s.err
}
