package google

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/vianexus/agent-sdk-go/llm"
)

func chunkSeq(chunks ...*genai.GenerateContentResponse) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, chunk := range chunks {
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func textChunk(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

func TestStreamAccumulatesText(t *testing.T) {
	final := textChunk("!")
	final.Candidates[0].FinishReason = genai.FinishReasonStop
	final.UsageMetadata = &genai.GenerateContentResponseUsageMetadata{
		PromptTokenCount:     7,
		CandidatesTokenCount: 3,
	}
	stream := newStream(chunkSeq(textChunk("Hel"), textChunk("lo"), final), "gemini-2.5-flash")
	defer stream.Close()

	ctx := context.Background()
	var deltas string
	var finalResponse *llm.Response
	var sawStop bool
	for {
		event, ok := stream.Next(ctx)
		if !ok {
			break
		}
		switch event.Type {
		case llm.EventContentBlockDelta:
			deltas += event.Delta.Text
		case llm.EventMessageDelta:
			finalResponse = event.Response
		case llm.EventMessageStop:
			sawStop = true
		}
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, "Hello!", deltas)
	assert.True(t, sawStop)
	require.NotNil(t, finalResponse)
	assert.Equal(t, "Hello!", finalResponse.Text())
	assert.Equal(t, "end_turn", finalResponse.StopReason)
	assert.Equal(t, 7, finalResponse.Usage.InputTokens)
	assert.Equal(t, 3, finalResponse.Usage.OutputTokens)
}

func TestStreamCollectsToolCalls(t *testing.T) {
	chunk := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Role: genai.RoleModel,
					Parts: []*genai.Part{
						{FunctionCall: &genai.FunctionCall{Name: "fetch", Args: map[string]any{"symbol": "V"}}},
					},
				},
			},
		},
	}
	stream := newStream(chunkSeq(chunk), "gemini-2.5-flash")
	defer stream.Close()

	ctx := context.Background()
	var finalResponse *llm.Response
	for {
		event, ok := stream.Next(ctx)
		if !ok {
			break
		}
		if event.Type == llm.EventMessageDelta {
			finalResponse = event.Response
		}
	}
	require.NoError(t, stream.Err())
	require.NotNil(t, finalResponse)
	calls := finalResponse.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "fetch", calls[0].Name)
	assert.Equal(t, "tool_use", finalResponse.StopReason)
}
