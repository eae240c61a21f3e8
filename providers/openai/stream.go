package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/responses"

	"github.com/vianexus/agent-sdk-go/llm"
)

var _ llm.StreamingLLM = &Provider{}

func (p *Provider) Stream(ctx context.Context, messages []*llm.Message, opts ...llm.Option) (llm.Stream, error) {
	config := &llm.Config{}
	config.Apply(opts...)

	params, err := p.buildRequestParams(config, messages)
	if err != nil {
		return nil, err
	}
	return &streamIterator{
		provider: p,
		stream:   p.client.Responses.NewStreaming(ctx, params),
	}, nil
}

// streamIterator adapts the Responses SSE stream to the llm.Stream contract:
// output text deltas become content_block_delta events and the final
// response.completed event becomes a message_delta carrying the converted
// response, followed by message_stop.
type streamIterator struct {
	provider *Provider
	stream   *ssestream.Stream[responses.ResponseStreamEventUnion]
	queue    []*llm.Event
	err      error
	done     bool
}

func (s *streamIterator) Next(ctx context.Context) (*llm.Event, bool) {
	for {
		if len(s.queue) > 0 {
			event := s.queue[0]
			s.queue = s.queue[1:]
			return event, true
		}
		if s.done {
			return nil, false
		}
		if err := ctx.Err(); err != nil {
			s.err = err
			s.done = true
			return nil, false
		}
		if !s.stream.Next() {
			s.done = true
			s.err = s.stream.Err()
			return nil, false
		}
		if err := s.enqueue(s.stream.Current()); err != nil {
			s.err = err
			s.done = true
			return nil, false
		}
	}
}

// enqueue translates one wire event into zero or more llm events.
func (s *streamIterator) enqueue(event responses.ResponseStreamEventUnion) error {
	switch event.Type {
	case "response.created":
		s.queue = append(s.queue, &llm.Event{Type: llm.EventMessageStart})
	case "response.output_text.delta":
		if delta := event.Delta.OfString; delta != "" {
			s.queue = append(s.queue, &llm.Event{
				Type:  llm.EventContentBlockDelta,
				Delta: &llm.Delta{Type: "text_delta", Text: delta},
			})
		}
	case "response.function_call_arguments.delta":
		if delta := event.Delta.OfString; delta != "" {
			s.queue = append(s.queue, &llm.Event{
				Type:  llm.EventContentBlockDelta,
				Delta: &llm.Delta{Type: "input_json_delta", PartialJSON: delta},
			})
		}
	case "response.completed":
		response, err := s.provider.convertResponse(&event.Response)
		if err != nil {
			return err
		}
		s.queue = append(s.queue,
			&llm.Event{Type: llm.EventMessageDelta, Response: response},
			&llm.Event{Type: llm.EventMessageStop})
	case "response.failed", "response.incomplete":
		return fmt.Errorf("response stream ended: %s", event.Type)
	case "error":
		return fmt.Errorf("response stream error: %s", event.Message)
	}
	return nil
}

func (s *streamIterator) Err() error {
	return s.err
}

func (s *streamIterator) Close() error {
	return s.stream.Close()
}
