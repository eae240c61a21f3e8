package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vianexus/agent-sdk-go/llm"
)

func TestRecoverToolUseBlocks(t *testing.T) {
	text := "[ToolUseBlock(id='t1', input={'symbol': 'V'}, name='fetch', type='tool_use')]"
	contents, ok := RecoverToolUseBlocks(text)
	require.True(t, ok)
	require.Len(t, contents, 1)
	assert.Equal(t, llm.ContentTypeToolUse, contents[0].Type)
	assert.Equal(t, "t1", contents[0].ID)
	assert.Equal(t, "fetch", contents[0].Name)
	assert.JSONEq(t, `{"symbol":"V"}`, string(contents[0].Input))
}

func TestRecoverToolUseBlocksMultiple(t *testing.T) {
	text := "[ToolUseBlock(id='t1', input={'symbol': 'AAPL'}, name='quote', type='tool_use'), " +
		"ToolUseBlock(id='t2', input={'symbol': 'MSFT', 'limit': 10}, name='quote', type='tool_use')]"
	contents, ok := RecoverToolUseBlocks(text)
	require.True(t, ok)
	require.Len(t, contents, 2)
	assert.Equal(t, "t1", contents[0].ID)
	assert.Equal(t, "t2", contents[1].ID)
	assert.JSONEq(t, `{"symbol":"MSFT","limit":10}`, string(contents[1].Input))
}

func TestRecoverToolUseBlocksNestedInput(t *testing.T) {
	text := "[ToolUseBlock(id='t1', input={'filters': {'active': True, 'tags': ['a', 'b']}, 'note': None, 'ratio': 1.5}, name='screen', type='tool_use')]"
	contents, ok := RecoverToolUseBlocks(text)
	require.True(t, ok)
	require.Len(t, contents, 1)
	assert.JSONEq(t, `{"filters":{"active":true,"tags":["a","b"]},"note":null,"ratio":1.5}`, string(contents[0].Input))
}

func TestRecoverToolUseBlocksEscapedQuote(t *testing.T) {
	text := `[ToolUseBlock(id='t1', input={'query': 'it\'s fine'}, name='search', type='tool_use')]`
	contents, ok := RecoverToolUseBlocks(text)
	require.True(t, ok)
	assert.JSONEq(t, `{"query":"it's fine"}`, string(contents[0].Input))
}

func TestRecoverToolUseBlocksWithSurroundingProse(t *testing.T) {
	text := "I'll fetch that now: [ToolUseBlock(id='t1', input={'symbol': 'V'}, name='fetch', type='tool_use')] one moment."
	contents, ok := RecoverToolUseBlocks(text)
	require.True(t, ok)
	require.Len(t, contents, 3)
	assert.Equal(t, llm.ContentTypeText, contents[0].Type)
	assert.Equal(t, "I'll fetch that now:", contents[0].Text)
	assert.Equal(t, llm.ContentTypeToolUse, contents[1].Type)
	assert.Equal(t, "fetch", contents[1].Name)
	assert.Equal(t, llm.ContentTypeText, contents[2].Type)
	assert.Equal(t, "one moment.", contents[2].Text)
}

func TestRecoverToolUseBlocksBareLiteral(t *testing.T) {
	text := "ToolUseBlock(id='t1', input={'symbol': 'V'}, name='fetch', type='tool_use')"
	contents, ok := RecoverToolUseBlocks(text)
	require.True(t, ok)
	require.Len(t, contents, 1)
	assert.Equal(t, llm.ContentTypeToolUse, contents[0].Type)
	assert.Equal(t, "t1", contents[0].ID)
}

func TestRecoverToolUseBlocksRejectsPlainText(t *testing.T) {
	for _, text := range []string{
		"The answer is 42.",
		"",
		"[ToolUseBlock(",                      // truncated
		"Starting now: ToolUseBlock(oops",     // malformed literal inside prose
		"[ToolUseBlock(input={'a': 1}, type='tool_use')]",      // missing name
		"[ToolUseBlock(id='t1', name='x', type='text_block')]", // wrong type
	} {
		_, ok := RecoverToolUseBlocks(text)
		assert.False(t, ok, text)
	}
}
