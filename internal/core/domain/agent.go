package domain

import "time"

type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

type ChatOptions struct {
	Temperature float64
	JSON        bool
}

type AgentLimits struct {
	MaxIterations  int           `json:"max_iterations"`
	Timeout        time.Duration `json:"timeout"`
	PlannerTimeout time.Duration `json:"planner_timeout"`
	ToolTimeout    time.Duration `json:"tool_timeout"`
	HistoryTokens  int           `json:"history_tokens"`
}

// AgentProfile configures one named agent. A nil Tools list grants every
// registered tool; an empty non-nil list grants none.
type AgentProfile struct {
	Name          string           `json:"name" yaml:"name"`
	Tools         []string         `json:"tools,omitempty" yaml:"tools"`
	Retrieval     *RetrievalParams `json:"retrieval,omitempty" yaml:"retrieval"`
	ReputableOnly bool             `json:"reputable_only,omitempty" yaml:"reputable_only"`
	SystemPrompt  string           `json:"system_prompt,omitempty" yaml:"system_prompt"`
}

type AgentRequest struct {
	Query   string
	Profile AgentProfile
}

type AgentToolEvent struct {
	Iteration  int            `json:"iteration"`
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Result     ToolResult     `json:"result"`
}

type AgentRunResult struct {
	RunID          string           `json:"run_id"`
	Answer         string           `json:"answer"`
	Iterations     int              `json:"iterations"`
	FallbackReason string           `json:"fallback_reason,omitempty"`
	ToolEvents     []AgentToolEvent `json:"tool_events,omitempty"`
	Citations      []Citation       `json:"citations,omitempty"`
}
