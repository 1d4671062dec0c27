package domain

// ToolCall is one invocation requested by the model.
type ToolCall struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
	Thought    string         `json:"thought,omitempty"`
}

// ParsedAgentResponse is the structured intent recovered from model text.
// When ToolCalls is non-empty FinalAnswer is ignored by the loop.
type ParsedAgentResponse struct {
	Thought     string     `json:"thought,omitempty"`
	ToolCalls   []ToolCall `json:"tool_calls,omitempty"`
	FinalAnswer string     `json:"final_answer,omitempty"`
	RawText     string     `json:"raw_text"`
}

type ToolResult struct {
	Success  bool           `json:"success"`
	Result   any            `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func ToolFailure(message string) ToolResult {
	return ToolResult{Success: false, Error: message}
}
