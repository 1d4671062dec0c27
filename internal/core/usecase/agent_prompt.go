package usecase

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/knowledge-assistant/internal/core/tools"
)

const defaultAgentPersona = "You are a personal knowledge assistant. Answer using the user's knowledge base and cite sources as [n]."

func buildAgentSystemPrompt(profile domain.AgentProfile, schemas []tools.Schema) string {
	persona := strings.TrimSpace(profile.SystemPrompt)
	if persona == "" {
		persona = defaultAgentPersona
	}

	catalog := "(no tools available)"
	if len(schemas) > 0 {
		raw, err := json.MarshalIndent(schemas, "", "  ")
		if err == nil {
			catalog = string(raw)
		}
	}

	return fmt.Sprintf(`%s

You work in steps. At each step return ONLY one JSON object, in one of two shapes:
{"thought":"...","tool_calls":[{"tool":"<name>","parameters":{...},"thought":"..."}]}
or
{"thought":"...","final_answer":"..."}

Rules:
- Call only tools from the catalog below and pass only the declared parameters.
- Several independent tool calls may be requested in one step.
- When the observations are enough, return final_answer and cite sources as [n].

Tool catalog:
%s`, persona, catalog)
}

func formatObservation(iteration int, calls []domain.ToolCall, results []domain.ToolResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tool results for step %d:", iteration)
	for i, call := range calls {
		payload, err := json.Marshal(results[i])
		if err != nil {
			payload = []byte(fmt.Sprintf(`{"success":false,"error":%q}`, err.Error()))
		}
		params, _ := json.Marshal(call.Parameters)
		fmt.Fprintf(&b, "\n- %s %s -> %s", call.Tool, params, payload)
	}
	return b.String()
}

func summarizeObservation(iteration int, calls []domain.ToolCall, results []domain.ToolResult) string {
	parts := make([]string, 0, len(calls))
	for i, call := range calls {
		status := "ok"
		if !results[i].Success {
			status = "failed"
		}
		parts = append(parts, fmt.Sprintf("%s %s", call.Tool, status))
	}
	return fmt.Sprintf("Tool results for step %d (summarized): %s", iteration, strings.Join(parts, ", "))
}
