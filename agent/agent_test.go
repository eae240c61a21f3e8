package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vianexus/agent-sdk-go/llm"
	"github.com/vianexus/agent-sdk-go/memory"
	"github.com/vianexus/agent-sdk-go/memory/convert"
	"github.com/vianexus/agent-sdk-go/schema"
)

// scriptedProvider returns queued responses and records the buffers it was
// called with.
type scriptedProvider struct {
	responses []*llm.Response
	requests  [][]*llm.Message
}

func (p *scriptedProvider) Name() string {
	return "anthropic"
}

func (p *scriptedProvider) Generate(ctx context.Context, messages []*llm.Message, opts ...llm.Option) (*llm.Response, error) {
	copied := make([]*llm.Message, len(messages))
	copy(copied, messages)
	p.requests = append(p.requests, copied)
	if len(p.responses) == 0 {
		return nil, fmt.Errorf("no scripted response left")
	}
	response := p.responses[0]
	p.responses = p.responses[1:]
	return response, nil
}

func textResponse(text string) *llm.Response {
	return &llm.Response{
		Role:       llm.Assistant,
		StopReason: "end_turn",
		Message:    llm.NewAssistantMessage(text),
	}
}

func toolUseResponse(id, name, input string) *llm.Response {
	return &llm.Response{
		Role:       llm.Assistant,
		StopReason: "tool_use",
		Message: llm.NewMessage(llm.Assistant, []*llm.Content{
			{Type: llm.ContentTypeToolUse, ID: id, Name: name, Input: json.RawMessage(input)},
		}),
	}
}

func quoteTool(t *testing.T, result string, err error) llm.Tool {
	t.Helper()
	return llm.NewFuncTool("fetch_quote", "Fetch a quote",
		&schema.Schema{
			Type: "object",
			Properties: map[string]*schema.Property{
				"symbol": {Type: "string"},
			},
			Required: []string{"symbol"},
		},
		func(ctx context.Context, input json.RawMessage) (string, error) {
			return result, err
		})
}

func TestAskSingleQuestionToolLoop(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolUseResponse("t1", "fetch_quote", `{"symbol":"V"}`),
		textResponse("V trades at 42."),
	}}
	agent := NewAgent(provider, WithTools(quoteTool(t, "42", nil)))

	answer, err := agent.AskSingleQuestion(context.Background(), "quote V")
	require.NoError(t, err)
	assert.Equal(t, "V trades at 42.", answer)

	// Two requests: the original question, then the question plus the
	// assistant tool call and its result.
	require.Len(t, provider.requests, 2)
	require.Len(t, provider.requests[0], 1)
	assert.Equal(t, llm.User, provider.requests[0][0].Role)

	second := provider.requests[1]
	require.Len(t, second, 3)
	assert.Equal(t, llm.User, second[0].Role)
	assert.Equal(t, llm.Assistant, second[1].Role)
	require.Len(t, second[1].ToolCalls(), 1)
	assert.Equal(t, llm.User, second[2].Role)
	require.Len(t, second[2].Content, 1)
	assert.Equal(t, llm.ContentTypeToolResult, second[2].Content[0].Type)
	assert.Equal(t, "t1", second[2].Content[0].ToolUseID)
	assert.Equal(t, "42", second[2].Content[0].Text)
}

func TestToolFailureBecomesErrorResult(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolUseResponse("t1", "fetch_quote", `{"symbol":"V"}`),
		textResponse("I could not fetch the quote."),
	}}
	agent := NewAgent(provider, WithTools(quoteTool(t, "", fmt.Errorf("upstream timeout"))))

	answer, err := agent.AskSingleQuestion(context.Background(), "quote V")
	require.NoError(t, err)
	assert.Equal(t, "I could not fetch the quote.", answer)

	second := provider.requests[1]
	result := second[2].Content[0]
	assert.True(t, result.IsError)
	assert.True(t, strings.HasPrefix(result.Text, "Error:"), "got %q", result.Text)
}

func TestUnknownToolBecomesErrorResult(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolUseResponse("t1", "nonexistent", `{}`),
		textResponse("done"),
	}}
	agent := NewAgent(provider, WithTools(quoteTool(t, "42", nil)))

	_, err := agent.AskSingleQuestion(context.Background(), "quote V")
	require.NoError(t, err)
	result := provider.requests[1][2].Content[0]
	assert.True(t, result.IsError)
	assert.Contains(t, result.Text, "unknown tool")
}

func TestAskQuestionPersistsTurn(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		toolUseResponse("t1", "fetch_quote", `{"symbol":"V"}`),
		textResponse("V trades at 42."),
	}}
	store := memory.NewMemoryStore()
	converter, err := convert.For("anthropic")
	require.NoError(t, err)
	conversation := memory.NewConversation(store, converter, "s1")
	agent := NewAgent(provider,
		WithTools(quoteTool(t, "42", nil)),
		WithConversation(conversation))

	answer, err := agent.AskQuestion(context.Background(), "quote V")
	require.NoError(t, err)
	assert.Equal(t, "V trades at 42.", answer)

	history, err := store.GetConversationHistory(context.Background(), "s1", nil)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, memory.RoleUser, history[0].Role)
	assert.Equal(t, memory.TypeText, history[0].MessageType)
	assert.Equal(t, memory.RoleAssistant, history[1].Role)
	assert.Equal(t, memory.TypeToolCall, history[1].MessageType)
	assert.Equal(t, memory.RoleUser, history[2].Role)
	assert.Equal(t, memory.TypeToolResult, history[2].MessageType)
	assert.Equal(t, memory.RoleAssistant, history[3].Role)
	assert.Equal(t, "V trades at 42.", history[3].Content)
}

func TestAskQuestionLoadsStoredHistory(t *testing.T) {
	store := memory.NewMemoryStore()
	converter, err := convert.For("anthropic")
	require.NoError(t, err)
	conversation := memory.NewConversation(store, converter, "s1")
	require.NoError(t, conversation.Save(context.Background(), llm.NewUserMessage("earlier question")))
	require.NoError(t, conversation.Save(context.Background(), llm.NewAssistantMessage("earlier answer")))

	provider := &scriptedProvider{responses: []*llm.Response{textResponse("follow-up answer")}}
	agent := NewAgent(provider, WithConversation(conversation))

	_, err = agent.AskQuestion(context.Background(), "follow-up")
	require.NoError(t, err)

	// The request buffer starts with the stored turns.
	require.Len(t, provider.requests, 1)
	buffer := provider.requests[0]
	require.Len(t, buffer, 3)
	assert.Equal(t, "earlier question", buffer[0].Text())
	assert.Equal(t, "earlier answer", buffer[1].Text())
	assert.Equal(t, "follow-up", buffer[2].Text())
}

func TestAskQuestionWithoutMemoryDoesNotPersist(t *testing.T) {
	store := memory.NewMemoryStore()
	converter, err := convert.For("anthropic")
	require.NoError(t, err)
	conversation := memory.NewConversation(store, converter, "s1")
	provider := &scriptedProvider{responses: []*llm.Response{textResponse("answer")}}
	agent := NewAgent(provider, WithConversation(conversation))

	_, err = agent.AskQuestion(context.Background(), "question", WithUseMemory(false))
	require.NoError(t, err)

	history, err := store.GetConversationHistory(context.Background(), "s1", nil)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMaintainHistoryTrimsTrailing(t *testing.T) {
	provider := &scriptedProvider{}
	agent := NewAgent(provider, WithMaxHistoryLength(4))
	for i := 0; i < 4; i++ {
		provider.responses = append(provider.responses, textResponse(fmt.Sprintf("answer %d", i)))
	}
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := agent.AskQuestion(ctx, fmt.Sprintf("question %d", i),
			WithMaintainHistory(true), WithUseMemory(false))
		require.NoError(t, err)
	}
	require.Len(t, agent.history, 4)
	assert.Equal(t, "question 2", agent.history[0].Text())
	assert.Equal(t, "answer 3", agent.history[3].Text())
}

func TestInputValidation(t *testing.T) {
	provider := &scriptedProvider{}
	agent := NewAgent(provider)
	ctx := context.Background()

	_, err := agent.AskSingleQuestion(ctx, "")
	require.Error(t, err)
	_, err = agent.AskSingleQuestion(ctx, "   \n\t ")
	require.Error(t, err)
	_, err = agent.AskSingleQuestion(ctx, "has a \x00 byte")
	require.Error(t, err)

	// Exactly at the limit passes validation and reaches the provider.
	provider.responses = []*llm.Response{textResponse("ok")}
	atLimit := strings.Repeat("a", MaxQuestionLength)
	_, err = agent.AskSingleQuestion(ctx, atLimit)
	require.NoError(t, err)

	overLimit := strings.Repeat("a", MaxQuestionLength+1)
	_, err = agent.AskSingleQuestion(ctx, overLimit)
	require.Error(t, err)
	var validationErr *ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

// streamingProvider implements StreamingLLM over scripted responses, emitting
// the response text as single-rune deltas.
type streamingProvider struct {
	scriptedProvider
}

func (p *streamingProvider) Stream(ctx context.Context, messages []*llm.Message, opts ...llm.Option) (llm.Stream, error) {
	response, err := p.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	return &scriptedStream{response: response}, nil
}

type scriptedStream struct {
	response *llm.Response
	events   []*llm.Event
	pos      int
}

func (s *scriptedStream) Next(ctx context.Context) (*llm.Event, bool) {
	if s.events == nil {
		for _, r := range s.response.Text() {
			s.events = append(s.events, &llm.Event{
				Type:  llm.EventContentBlockDelta,
				Delta: &llm.Delta{Type: "text_delta", Text: string(r)},
			})
		}
		s.events = append(s.events,
			&llm.Event{Type: llm.EventMessageDelta, Response: s.response},
			&llm.Event{Type: llm.EventMessageStop})
	}
	if s.pos >= len(s.events) {
		return nil, false
	}
	event := s.events[s.pos]
	s.pos++
	return event, true
}

func (s *scriptedStream) Err() error   { return nil }
func (s *scriptedStream) Close() error { return nil }

func TestProcessQueryStreamsToOutput(t *testing.T) {
	provider := &streamingProvider{scriptedProvider{
		responses: []*llm.Response{textResponse("streamed answer")},
	}}
	var out bytes.Buffer
	agent := NewAgent(provider, WithOutput(&out))

	answer, err := agent.ProcessQuery(context.Background(), "quote V")
	require.NoError(t, err)
	assert.Empty(t, answer)
	assert.Equal(t, "streamed answer\n", out.String())

	// ProcessQuery keeps in-process history.
	require.Len(t, agent.history, 2)
}

func TestProcessQueryFallsBackWithoutStreaming(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{textResponse("plain answer")}}
	var out bytes.Buffer
	agent := NewAgent(provider, WithOutput(&out))

	answer, err := agent.ProcessQuery(context.Background(), "quote V")
	require.NoError(t, err)
	assert.Empty(t, answer)
	// The answer still reaches the output stream when the provider cannot
	// stream it incrementally.
	assert.Equal(t, "plain answer\n", out.String())
}
