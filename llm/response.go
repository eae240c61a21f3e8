package llm

// Response from an LLM.
type Response struct {
	ID         string   `json:"id"`
	Model      string   `json:"model"`
	StopReason string   `json:"stop_reason"`
	Role       Role     `json:"role"`
	Message    *Message `json:"message"`
	Usage      Usage    `json:"usage"`
}

// ToolCalls returns the tool_use blocks in the response message.
func (r *Response) ToolCalls() []*Content {
	if r.Message == nil {
		return nil
	}
	return r.Message.ToolCalls()
}

// Text returns the concatenated text content of the response message.
func (r *Response) Text() string {
	if r.Message == nil {
		return ""
	}
	return r.Message.CompleteText()
}
