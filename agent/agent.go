// Package agent implements the viaNexus client: the per-turn tool-call
// orchestration loop, the public question-answering surface, provider
// selection, and the persistent-connection overlay.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vianexus/agent-sdk-go/llm"
	"github.com/vianexus/agent-sdk-go/mcp"
	"github.com/vianexus/agent-sdk-go/memory"
	"github.com/vianexus/agent-sdk-go/slogger"
)

// Agent drives one conversation against a model provider, dispatching tool
// calls over the viaNexus channel and optionally persisting turns to memory.
// An agent is not safe for concurrent Ask calls; callers must serialize.
type Agent struct {
	provider         llm.LLM
	channel          *mcp.Channel
	conversation     *memory.Conversation
	tools            []llm.Tool
	systemPrompt     string
	maxTokens        int
	maxHistoryLength int
	logger           slogger.Logger
	out              io.Writer

	history     []*llm.Message
	initialized bool
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithChannel attaches the tool channel used for discovery and dispatch.
func WithChannel(channel *mcp.Channel) AgentOption {
	return func(a *Agent) {
		a.channel = channel
	}
}

// WithConversation attaches the memory facade for persistence.
func WithConversation(conversation *memory.Conversation) AgentOption {
	return func(a *Agent) {
		a.conversation = conversation
	}
}

// WithTools supplies a fixed tool catalogue instead of discovering one over
// the channel.
func WithTools(tools ...llm.Tool) AgentOption {
	return func(a *Agent) {
		a.tools = tools
	}
}

// WithSystemPrompt sets the resolved system prompt.
func WithSystemPrompt(prompt string) AgentOption {
	return func(a *Agent) {
		a.systemPrompt = prompt
	}
}

// WithMaxTokens sets the per-request output token budget.
func WithMaxTokens(maxTokens int) AgentOption {
	return func(a *Agent) {
		a.maxTokens = maxTokens
	}
}

// WithMaxHistoryLength sets the trailing history cap applied after each
// turn.
func WithMaxHistoryLength(length int) AgentOption {
	return func(a *Agent) {
		a.maxHistoryLength = length
	}
}

// WithAgentLogger sets the agent's logger.
func WithAgentLogger(logger slogger.Logger) AgentOption {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithOutput redirects streamed text, which goes to stdout by default.
func WithOutput(out io.Writer) AgentOption {
	return func(a *Agent) {
		a.out = out
	}
}

// NewAgent creates an agent around a model provider.
func NewAgent(provider llm.LLM, opts ...AgentOption) *Agent {
	a := &Agent{
		provider:         provider,
		systemPrompt:     DefaultSystemPrompt,
		maxTokens:        1000,
		maxHistoryLength: 50,
		logger:           slogger.DefaultLogger,
		out:              os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SessionID returns the memory session id, empty without memory.
func (a *Agent) SessionID() string {
	if a.conversation == nil {
		return ""
	}
	return a.conversation.SessionID()
}

// Channel returns the attached tool channel, nil when none.
func (a *Agent) Channel() *mcp.Channel {
	return a.channel
}

// Initialize connects the tool channel and primes the tool catalogue.
// Idempotent.
func (a *Agent) Initialize(ctx context.Context) error {
	if a.initialized {
		return nil
	}
	if a.channel != nil {
		if !a.channel.IsConnected() {
			if err := a.channel.Connect(ctx); err != nil {
				return err
			}
		}
		if a.conversation != nil {
			a.conversation.SetMCPSessionID(a.channel.SessionID())
		}
		if _, err := a.channel.ListTools(ctx); err != nil {
			return err
		}
	}
	a.initialized = true
	return nil
}

// Cleanup tears down the tool channel. The agent can be re-initialized
// afterwards.
func (a *Agent) Cleanup() error {
	a.initialized = false
	if a.channel != nil {
		return a.channel.Close()
	}
	return nil
}

// AskSingleQuestion runs one turn with no history and no persistence.
func (a *Agent) AskSingleQuestion(ctx context.Context, question string) (string, error) {
	return a.runTurn(ctx, question, turnOptions{})
}

// AskOption adjusts one AskQuestion call.
type AskOption func(*turnOptions)

// WithMaintainHistory keeps the turn's buffer as in-process history for
// subsequent calls.
func WithMaintainHistory(maintain bool) AskOption {
	return func(o *turnOptions) {
		o.maintainHistory = maintain
	}
}

// WithUseMemory persists the turn's messages to the memory store.
func WithUseMemory(use bool) AskOption {
	return func(o *turnOptions) {
		o.useMemory = use
	}
}

// WithLoadFromMemory seeds the turn's buffer from stored history.
func WithLoadFromMemory(load bool) AskOption {
	return func(o *turnOptions) {
		o.loadFromMemory = load
	}
}

// AskQuestion runs one turn. By default the turn is persisted to memory and
// seeded from stored history; in-process history is off unless requested.
func (a *Agent) AskQuestion(ctx context.Context, question string, opts ...AskOption) (string, error) {
	options := turnOptions{useMemory: true, loadFromMemory: true}
	for _, opt := range opts {
		opt(&options)
	}
	return a.runTurn(ctx, question, options)
}

// ProcessQuery runs one streamed turn, writing text to the configured output
// as it arrives, keeping in-process history but persisting nothing. Returns
// the empty string when the text already went to the output stream.
func (a *Agent) ProcessQuery(ctx context.Context, question string) (string, error) {
	_, err := a.runTurn(ctx, question, turnOptions{maintainHistory: true, streaming: true})
	if err != nil {
		return "", err
	}
	return "", nil
}

type turnOptions struct {
	maintainHistory bool
	useMemory       bool
	loadFromMemory  bool
	streaming       bool
}

// runTurn is the per-turn loop: send, parse, dispatch tools, re-inject
// results, repeat until the model answers in text.
func (a *Agent) runTurn(ctx context.Context, question string, options turnOptions) (string, error) {
	if err := ValidateQuestion(question); err != nil {
		return "", err
	}

	var buffer []*llm.Message
	if options.maintainHistory {
		buffer = a.history
	}
	if options.useMemory && options.loadFromMemory && a.conversation != nil {
		stored, err := a.conversation.LoadProviderHistory(ctx, a.maxHistoryLength)
		if err != nil {
			a.logger.Warn("failed to load stored history, starting fresh", "error", err)
		} else {
			buffer = stored
		}
	}

	userMessage := llm.NewUserMessage(question)
	buffer = append(buffer, userMessage)
	a.persist(ctx, options.useMemory, userMessage)

	tools, err := a.toolCatalogue(ctx)
	if err != nil {
		return "", err
	}

	var result strings.Builder
	for {
		response, err := a.send(ctx, buffer, tools, options.streaming)
		if err != nil {
			return "", err
		}

		// The full assistant block list goes back into the buffer so
		// tool-call blocks can be echoed on the next request.
		buffer = append(buffer, response.Message)
		a.persist(ctx, options.useMemory, response.Message)

		if text := response.Text(); text != "" {
			if result.Len() > 0 {
				result.WriteString("\n")
			}
			result.WriteString(text)
		}

		calls := response.ToolCalls()
		if len(calls) == 0 {
			break
		}

		outputs := a.dispatch(ctx, calls, tools)
		toolMessage := llm.NewToolOutputMessage(outputs)
		buffer = append(buffer, toolMessage)
		a.persist(ctx, options.useMemory, toolMessage)
	}

	if options.streaming {
		fmt.Fprintln(a.out)
	}
	if options.maintainHistory {
		if len(buffer) > a.maxHistoryLength {
			buffer = buffer[len(buffer)-a.maxHistoryLength:]
		}
		a.history = buffer
	}
	return result.String(), nil
}

// send issues one model request. In streaming mode textual deltas are
// flushed to the output as they arrive and the accumulated response is
// returned at the end.
func (a *Agent) send(ctx context.Context, buffer []*llm.Message, tools []llm.Tool, streaming bool) (*llm.Response, error) {
	opts := []llm.Option{
		llm.WithSystemPrompt(a.systemPrompt),
		llm.WithMaxTokens(a.maxTokens),
		llm.WithLogger(a.logger),
	}
	if len(tools) > 0 {
		opts = append(opts, llm.WithTools(tools...))
	}

	streamer, ok := a.provider.(llm.StreamingLLM)
	if !streaming || !ok {
		response, err := a.provider.Generate(ctx, buffer, opts...)
		if err != nil {
			return nil, err
		}
		// A streamed turn on a provider without streaming support still owes
		// the caller the text on the output stream.
		if streaming {
			if text := response.Text(); text != "" {
				fmt.Fprint(a.out, text)
			}
		}
		return response, nil
	}

	stream, err := streamer.Stream(ctx, buffer, opts...)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var response *llm.Response
	for {
		event, ok := stream.Next(ctx)
		if !ok {
			break
		}
		switch event.Type {
		case llm.EventContentBlockDelta:
			if event.Delta != nil && event.Delta.Text != "" {
				fmt.Fprint(a.out, event.Delta.Text)
			}
		case llm.EventMessageDelta:
			if event.Response != nil {
				response = event.Response
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	if response == nil {
		return nil, fmt.Errorf("stream ended without a final response")
	}
	return response, nil
}

// toolCatalogue returns the fixed catalogue when one was supplied, otherwise
// the channel's discovered tools.
func (a *Agent) toolCatalogue(ctx context.Context) ([]llm.Tool, error) {
	if len(a.tools) > 0 {
		return a.tools, nil
	}
	if a.channel != nil {
		return a.channel.Tools(ctx)
	}
	return nil, nil
}

// dispatch runs the turn's tool calls serially. Failures never abort the
// turn; they become synthetic results whose text starts with "Error:".
func (a *Agent) dispatch(ctx context.Context, calls []*llm.Content, tools []llm.Tool) []*llm.ToolOutput {
	outputs := make([]*llm.ToolOutput, len(calls))
	for i, call := range calls {
		text, err := a.invokeTool(ctx, call, tools)
		output := &llm.ToolOutput{ID: call.ID, Name: call.Name}
		if err != nil {
			a.logger.Warn("tool call failed",
				"tool", call.Name,
				"tool_use_id", call.ID,
				"error", err)
			output.Output = fmt.Sprintf("Error: %s", err)
			output.IsError = true
		} else {
			output.Output = capToolOutput(text)
		}
		outputs[i] = output
	}
	return outputs
}

func (a *Agent) invokeTool(ctx context.Context, call *llm.Content, tools []llm.Tool) (string, error) {
	for _, tool := range tools {
		if tool.Name() != call.Name {
			continue
		}
		invokable, ok := tool.(llm.InvokableTool)
		if !ok {
			return "", fmt.Errorf("tool %q is not invokable", call.Name)
		}
		input := call.Input
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		return invokable.Invoke(ctx, input)
	}
	return "", fmt.Errorf("unknown tool %q", call.Name)
}

// capToolOutput applies the uniform payload ceiling to locally produced tool
// results; channel results are already capped.
func capToolOutput(text string) string {
	if len(text) <= mcp.MaxToolPayloadBytes {
		return text
	}
	return text[:mcp.MaxToolPayloadBytes] + "\n[payload truncated]"
}

// persist writes one message to memory when enabled for this turn. Store
// failures are logged, never propagated: memory must not abort a turn
// already in flight.
func (a *Agent) persist(ctx context.Context, useMemory bool, message *llm.Message) {
	if !useMemory || a.conversation == nil {
		return
	}
	if err := a.conversation.Save(ctx, message); err != nil {
		a.logger.Error("failed to persist message",
			"session_id", a.conversation.SessionID(),
			"error", err)
	}
}
