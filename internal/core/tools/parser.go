package tools

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
)

type extractStrategy struct {
	name string
	fn   func(string) (map[string]any, bool)
}

var extractStrategies = []extractStrategy{
	{name: "direct", fn: extractDirect},
	{name: "fenced", fn: extractFenced},
	{name: "brace_scan", fn: extractBraceScan},
}

var fencedBlockPattern = regexp.MustCompile("(?s)```[ \\t]*(?:json|JSON)?[ \\t]*\\r?\\n?(.*?)```")

var intentKeys = []string{"tool_calls", "final_answer", "thought"}

// ParseAgentResponse recovers the model's intent from free text. It never
// fails: text without recoverable JSON becomes the final answer.
func ParseAgentResponse(raw string) domain.ParsedAgentResponse {
	text := strings.TrimSpace(raw)
	out := domain.ParsedAgentResponse{RawText: raw}

	for _, strategy := range extractStrategies {
		obj, ok := strategy.fn(text)
		if !ok {
			continue
		}
		out.Thought = stringField(obj, "thought")
		out.FinalAnswer = answerField(obj["final_answer"])
		out.ToolCalls = toolCallsField(obj["tool_calls"])
		break
	}

	if len(out.ToolCalls) == 0 && out.FinalAnswer == "" {
		out.FinalAnswer = text
	}
	return out
}

func extractDirect(text string) (map[string]any, bool) {
	return decodeObject(text)
}

func extractFenced(text string) (map[string]any, bool) {
	for _, match := range fencedBlockPattern.FindAllStringSubmatch(text, -1) {
		if obj, ok := decodeObject(strings.TrimSpace(match[1])); ok {
			return obj, true
		}
	}
	return nil, false
}

// extractBraceScan tries every '{' as a span start and returns the first
// balanced object carrying an intent key.
func extractBraceScan(text string) (map[string]any, bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := balancedEnd(text, start); end > start {
			if obj, ok := decodeObject(text[start : end+1]); ok && hasIntentKey(obj) {
				return obj, true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, false
}

// balancedEnd returns the index of the brace closing text[start], or -1.
// Braces inside JSON strings are ignored.
func balancedEnd(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func decodeObject(text string) (map[string]any, bool) {
	if text == "" || text[0] != '{' {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, false
	}
	return obj, obj != nil
}

func hasIntentKey(obj map[string]any) bool {
	for _, key := range intentKeys {
		if _, ok := obj[key]; ok {
			return true
		}
	}
	return false
}

func stringField(obj map[string]any, key string) string {
	value, _ := obj[key].(string)
	return strings.TrimSpace(value)
}

func answerField(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(encoded)
	}
}

func toolCallsField(value any) []domain.ToolCall {
	entries, ok := value.([]any)
	if !ok {
		return nil
	}
	calls := make([]domain.ToolCall, 0, len(entries))
	for i, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			slog.Warn("tool_call_dropped", "index", i, "reason", "entry is not an object")
			continue
		}
		name := stringField(obj, "tool")
		if name == "" {
			slog.Warn("tool_call_dropped", "index", i, "reason", "missing tool field")
			continue
		}
		params, _ := obj["parameters"].(map[string]any)
		if params == nil {
			params = map[string]any{}
		}
		calls = append(calls, domain.ToolCall{
			Tool:       name,
			Parameters: params,
			Thought:    stringField(obj, "thought"),
		})
	}
	return calls
}
