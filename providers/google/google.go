// Package google implements the Gemini provider using the google.golang.org/genai SDK.
package google

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/genai"

	"github.com/vianexus/agent-sdk-go/llm"
	"github.com/vianexus/agent-sdk-go/retry"
)

const ProviderName = "gemini"

var (
	DefaultModel         = "gemini-2.5-flash"
	DefaultMaxTokens     = 4096
	DefaultMaxRetries    = 3
	DefaultRetryBaseWait = 1 * time.Second
)

var _ llm.StreamingLLM = &Provider{}

type Provider struct {
	client        *genai.Client
	projectID     string
	location      string
	apiKey        string
	model         string
	maxTokens     int
	maxRetries    int
	retryBaseWait time.Duration
	mutex         sync.Mutex
}

func New(opts ...Option) *Provider {
	p := &Provider{
		model:         DefaultModel,
		maxTokens:     DefaultMaxTokens,
		maxRetries:    DefaultMaxRetries,
		retryBaseWait: DefaultRetryBaseWait,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) initClient(ctx context.Context) (*genai.Client, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:   p.apiKey,
		Project:  p.projectID,
		Location: p.location,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google genai client: %w", err)
	}
	p.client = client
	return p.client, nil
}

func (p *Provider) Name() string {
	return ProviderName
}

func (p *Provider) Generate(ctx context.Context, messages []*llm.Message, opts ...llm.Option) (*llm.Response, error) {
	if _, err := p.initClient(ctx); err != nil {
		return nil, err
	}

	config := &llm.Config{}
	config.Apply(opts...)

	model := config.Model
	if model == "" {
		model = p.model
	}

	contents, err := messagesToContents(messages)
	if err != nil {
		return nil, err
	}
	genConfig, err := p.buildGenerateConfig(config)
	if err != nil {
		return nil, err
	}

	var result *llm.Response
	err = retry.Do(ctx, func() error {
		resp, err := p.client.Models.GenerateContent(ctx, model, contents, genConfig)
		if err != nil {
			return fmt.Errorf("error generating content: %w", err)
		}
		var convErr error
		result, convErr = convertResponse(resp, model)
		if convErr != nil {
			return retry.MarkPermanent(fmt.Errorf("error converting response: %w", convErr))
		}
		return nil
	}, retry.WithMaxRetries(p.maxRetries), retry.WithBaseWait(p.retryBaseWait))
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Provider) Stream(ctx context.Context, messages []*llm.Message, opts ...llm.Option) (llm.Stream, error) {
	if _, err := p.initClient(ctx); err != nil {
		return nil, err
	}

	config := &llm.Config{}
	config.Apply(opts...)

	model := config.Model
	if model == "" {
		model = p.model
	}

	contents, err := messagesToContents(messages)
	if err != nil {
		return nil, fmt.Errorf("error converting messages: %w", err)
	}
	genConfig, err := p.buildGenerateConfig(config)
	if err != nil {
		return nil, err
	}

	seq := p.client.Models.GenerateContentStream(ctx, model, contents, genConfig)
	return newStream(seq, model), nil
}

func (p *Provider) buildGenerateConfig(config *llm.Config) (*genai.GenerateContentConfig, error) {
	genConfig := &genai.GenerateContentConfig{}

	maxTokens := p.maxTokens
	if config.MaxTokens != nil {
		maxTokens = *config.MaxTokens
	}
	genConfig.MaxOutputTokens = int32(maxTokens)

	if config.Temperature != nil {
		genConfig.Temperature = genai.Ptr(float32(*config.Temperature))
	}
	if config.SystemPrompt != "" {
		genConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: config.SystemPrompt}},
		}
	}

	if len(config.Tools) > 0 {
		var declarations []*genai.FunctionDeclaration
		for _, tool := range config.Tools {
			declarations = append(declarations, &genai.FunctionDeclaration{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  sanitizeSchema(tool.Schema()),
			})
		}
		genConfig.Tools = []*genai.Tool{{FunctionDeclarations: declarations}}

		if config.ToolChoice.Type != "" {
			mode, err := functionCallingMode(config.ToolChoice.Type)
			if err != nil {
				return nil, err
			}
			genConfig.ToolConfig = &genai.ToolConfig{
				FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode},
			}
		}
	}
	return genConfig, nil
}

func functionCallingMode(choice string) (genai.FunctionCallingConfigMode, error) {
	switch choice {
	case "auto":
		return genai.FunctionCallingConfigModeAuto, nil
	case "any", "required", "tool":
		return genai.FunctionCallingConfigModeAny, nil
	case "none":
		return genai.FunctionCallingConfigModeNone, nil
	}
	return "", fmt.Errorf("invalid tool choice: %s", choice)
}
