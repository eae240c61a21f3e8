package openai

import (
	"testing"

	"github.com/openai/openai-go/responses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vianexus/agent-sdk-go/llm"
)

func TestStreamEventTextDelta(t *testing.T) {
	s := &streamIterator{provider: New()}
	err := s.enqueue(responses.ResponseStreamEventUnion{
		Type:  "response.output_text.delta",
		Delta: responses.ResponseStreamEventUnionDelta{OfString: "the quote"},
	})
	require.NoError(t, err)
	require.Len(t, s.queue, 1)
	assert.Equal(t, llm.EventContentBlockDelta, s.queue[0].Type)
	assert.Equal(t, "the quote", s.queue[0].Delta.Text)
}

func TestStreamEventFunctionCallDelta(t *testing.T) {
	s := &streamIterator{provider: New()}
	err := s.enqueue(responses.ResponseStreamEventUnion{
		Type:  "response.function_call_arguments.delta",
		Delta: responses.ResponseStreamEventUnionDelta{OfString: `{"symbol":`},
	})
	require.NoError(t, err)
	require.Len(t, s.queue, 1)
	assert.Equal(t, llm.EventContentBlockDelta, s.queue[0].Type)
	assert.Equal(t, `{"symbol":`, s.queue[0].Delta.PartialJSON)
}

func TestStreamEventIgnoresBookkeeping(t *testing.T) {
	s := &streamIterator{provider: New()}
	for _, eventType := range []string{
		"response.in_progress",
		"response.output_item.added",
		"response.content_part.added",
		"response.output_text.done",
	} {
		require.NoError(t, s.enqueue(responses.ResponseStreamEventUnion{Type: eventType}))
	}
	assert.Empty(t, s.queue)
}

func TestStreamEventFailureBecomesError(t *testing.T) {
	s := &streamIterator{provider: New()}
	err := s.enqueue(responses.ResponseStreamEventUnion{Type: "response.failed"})
	require.Error(t, err)

	err = s.enqueue(responses.ResponseStreamEventUnion{
		Type:    "error",
		Message: "rate limited",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}
