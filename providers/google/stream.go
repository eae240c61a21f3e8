package google

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"

	"github.com/vianexus/agent-sdk-go/llm"
)

// Stream adapts the genai streaming sequence to the llm.Stream interface. The
// final message_delta event carries the fully accumulated response.
type Stream struct {
	next  func() (*genai.GenerateContentResponse, error, bool)
	stop  func()
	model string

	err        error
	text       strings.Builder
	toolCalls  []*llm.Content
	usage      llm.Usage
	finish     genai.FinishReason
	responseID string
	state      streamState
}

type streamState int

const (
	streamActive streamState = iota
	streamFinalEmitted
	streamDone
)

func newStream(seq iter.Seq2[*genai.GenerateContentResponse, error], model string) *Stream {
	next, stop := iter.Pull2(seq)
	return &Stream{next: next, stop: stop, model: model}
}

func (s *Stream) Next(ctx context.Context) (*llm.Event, bool) {
	for {
		if err := ctx.Err(); err != nil {
			s.err = err
			return nil, false
		}
		switch s.state {
		case streamDone:
			return nil, false
		case streamFinalEmitted:
			s.state = streamDone
			return &llm.Event{Type: llm.EventMessageStop}, true
		}

		resp, err, ok := s.next()
		if !ok {
			s.state = streamFinalEmitted
			return &llm.Event{
				Type:     llm.EventMessageDelta,
				Delta:    &llm.Delta{Type: "message_delta", StopReason: s.stopReason()},
				Response: s.buildFinalResponse(),
			}, true
		}
		if err != nil {
			s.err = err
			s.state = streamDone
			return nil, false
		}

		event, err := s.absorb(resp)
		if err != nil {
			s.err = err
			s.state = streamDone
			return nil, false
		}
		if event != nil {
			return event, true
		}
	}
}

// absorb folds one chunk into the accumulated state and returns a delta event
// when the chunk carried text.
func (s *Stream) absorb(resp *genai.GenerateContentResponse) (*llm.Event, error) {
	if resp.ResponseID != "" {
		s.responseID = resp.ResponseID
	}
	if resp.UsageMetadata != nil {
		s.usage = llm.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 {
		return nil, nil
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason != "" {
		s.finish = candidate.FinishReason
	}
	if candidate.Content == nil {
		return nil, nil
	}

	var deltaText string
	for _, part := range candidate.Content.Parts {
		switch {
		case part.Text != "":
			deltaText += part.Text
		case part.FunctionCall != nil:
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("error marshaling function call args: %w", err)
			}
			id := part.FunctionCall.ID
			if id == "" {
				id = fmt.Sprintf("call_%s", part.FunctionCall.Name)
			}
			s.toolCalls = append(s.toolCalls, &llm.Content{
				Type:  llm.ContentTypeToolUse,
				ID:    id,
				Name:  part.FunctionCall.Name,
				Input: json.RawMessage(args),
			})
		}
	}
	if deltaText == "" {
		return nil, nil
	}
	s.text.WriteString(deltaText)
	return &llm.Event{
		Type:  llm.EventContentBlockDelta,
		Delta: &llm.Delta{Type: "text_delta", Text: deltaText},
	}, nil
}

func (s *Stream) buildFinalResponse() *llm.Response {
	var content []*llm.Content
	if s.text.Len() > 0 {
		content = append(content, &llm.Content{
			Type: llm.ContentTypeText,
			Text: s.text.String(),
		})
	}
	content = append(content, s.toolCalls...)
	return &llm.Response{
		ID:         s.responseID,
		Model:      s.model,
		Role:       llm.Assistant,
		StopReason: s.stopReason(),
		Message:    llm.NewMessage(llm.Assistant, content),
		Usage:      s.usage,
	}
}

func (s *Stream) stopReason() string {
	if len(s.toolCalls) > 0 {
		return "tool_use"
	}
	switch s.finish {
	case genai.FinishReasonStop:
		return "end_turn"
	case genai.FinishReasonMaxTokens:
		return "max_tokens"
	}
	return "end_turn"
}

func (s *Stream) Err() error {
	return s.err
}

func (s *Stream) Close() error {
	s.stop()
	s.state = streamDone
	return nil
}
