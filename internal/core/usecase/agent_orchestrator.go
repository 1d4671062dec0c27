package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/knowledge-assistant/internal/core/ports"
	"github.com/kirillkom/knowledge-assistant/internal/core/tools"
)

const (
	FallbackMaxIterations = "max_iterations"
	FallbackTimeout       = "timeout"
	FallbackPlannerError  = "planner_error"
	FallbackEmptyAnswer   = "empty_final_answer"
)

// AgentOrchestrator drives the think, act, observe loop over a chat model
// and the tool executor.
type AgentOrchestrator struct {
	chat     ports.ChatModel
	executor *tools.Executor
	counter  ports.TokenCounter
	limits   domain.AgentLimits
}

func NewAgentOrchestrator(chat ports.ChatModel, executor *tools.Executor, counter ports.TokenCounter, limits domain.AgentLimits) *AgentOrchestrator {
	if limits.MaxIterations <= 0 {
		limits.MaxIterations = 5
	}
	if limits.Timeout <= 0 {
		limits.Timeout = 90 * time.Second
	}
	if limits.PlannerTimeout <= 0 {
		limits.PlannerTimeout = 30 * time.Second
	}
	if limits.ToolTimeout <= 0 {
		limits.ToolTimeout = 20 * time.Second
	}
	if limits.HistoryTokens <= 0 {
		limits.HistoryTokens = 3000
	}
	return &AgentOrchestrator{chat: chat, executor: executor, counter: counter, limits: limits}
}

func (o *AgentOrchestrator) Run(ctx context.Context, req domain.AgentRequest) (*domain.AgentRunResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "agent run", fmt.Errorf("query is required"))
	}

	runID := uuid.NewString()
	profile := req.Profile
	logger := slog.With("run_id", runID, "agent", profile.Name)

	loopCtx, cancel := context.WithTimeout(WithAgentProfile(ctx, profile), o.limits.Timeout)
	defer cancel()

	system := buildAgentSystemPrompt(profile, o.executor.Registry().Schemas(profile.Tools))
	history := newAgentHistory(system, query, o.counter, o.limits.HistoryTokens)
	citations := newCitationCollector()

	toolEvents := make([]domain.AgentToolEvent, 0, o.limits.MaxIterations)
	finalAnswer := ""
	fallbackReason := ""
	lastThought := ""
	iterations := 0

	for i := 1; i <= o.limits.MaxIterations; i++ {
		if loopCtx.Err() != nil {
			fallbackReason = FallbackTimeout
			break
		}
		iterations = i

		if collapsed, dropped := history.trim(); collapsed+dropped > 0 {
			logger.Debug("agent_history_trimmed", "iteration", i, "collapsed", collapsed, "dropped", dropped)
		}

		plannerCtx, plannerCancel := context.WithTimeout(loopCtx, o.limits.PlannerTimeout)
		raw, err := o.chat.Chat(plannerCtx, history.messages(), domain.ChatOptions{Temperature: 0.1, JSON: true})
		plannerCancel()
		if err != nil {
			if isAgentTimeoutError(err) || loopCtx.Err() != nil {
				fallbackReason = FallbackTimeout
			} else {
				fallbackReason = FallbackPlannerError
			}
			logger.Warn("agent_planner_failed", "iteration", i, "error", err.Error())
			break
		}

		step := tools.ParseAgentResponse(raw)
		if step.Thought != "" {
			lastThought = step.Thought
		}
		logger.Info("agent_iteration", "iteration", i, "tool_calls", len(step.ToolCalls))

		if len(step.ToolCalls) == 0 {
			finalAnswer = strings.TrimSpace(step.FinalAnswer)
			if finalAnswer == "" {
				fallbackReason = FallbackEmptyAnswer
			}
			break
		}

		toolCtx, toolCancel := context.WithTimeout(loopCtx, o.limits.ToolTimeout)
		results := o.executor.ExecuteBatch(toolCtx, step.ToolCalls, profile.Tools)
		toolCancel()

		for j, call := range step.ToolCalls {
			toolEvents = append(toolEvents, domain.AgentToolEvent{
				Iteration:  i,
				Tool:       call.Tool,
				Parameters: call.Parameters,
				Result:     results[j],
			})
			citations.add(results[j])
		}
		history.add(raw, formatObservation(i, step.ToolCalls, results), summarizeObservation(i, step.ToolCalls, results))
	}

	if finalAnswer == "" && fallbackReason == "" {
		fallbackReason = FallbackMaxIterations
	}
	if finalAnswer == "" {
		finalAnswer = bestEffortAnswer(fallbackReason, lastThought)
	}
	if fallbackReason != "" {
		logger.Warn("agent_run_fallback", "reason", fallbackReason, "iterations", iterations)
	}

	return &domain.AgentRunResult{
		RunID:          runID,
		Answer:         finalAnswer,
		Iterations:     iterations,
		FallbackReason: fallbackReason,
		ToolEvents:     toolEvents,
		Citations:      citations.list(),
	}, nil
}

func isAgentTimeoutError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func bestEffortAnswer(reason, lastThought string) string {
	var msg string
	switch reason {
	case FallbackTimeout:
		msg = "I ran out of time before finishing this request."
	case FallbackPlannerError:
		msg = "The language model is unavailable right now, so I could not finish this request."
	case FallbackEmptyAnswer:
		msg = "I could not produce a final answer from the current context."
	default:
		msg = "I reached the step limit before finishing this request."
	}
	if lastThought != "" {
		msg += " Last progress: " + lastThought
	}
	return msg
}

// citationCollector merges citations from every successful search tool call
// and renumbers them by first appearance.
type citationCollector struct {
	seen  map[string]struct{}
	items []domain.Citation
}

func newCitationCollector() *citationCollector {
	return &citationCollector{seen: make(map[string]struct{})}
}

func (c *citationCollector) add(result domain.ToolResult) {
	if !result.Success {
		return
	}
	switch payload := result.Result.(type) {
	case *domain.RAGResult:
		for _, citation := range payload.Citations {
			c.push(citation)
		}
	case []domain.WebResult:
		for _, web := range payload {
			c.push(domain.Citation{
				SourceType:  domain.SourceWeb,
				SourceID:    web.URL,
				SourceTitle: web.Title,
				Distance:    -1,
				URL:         web.URL,
			})
		}
	}
}

// push keeps the first citation per source id; source ids are unique
// within one citation list.
func (c *citationCollector) push(citation domain.Citation) {
	if citation.SourceID == "" {
		return
	}
	if _, ok := c.seen[citation.SourceID]; ok {
		return
	}
	c.seen[citation.SourceID] = struct{}{}
	citation.DisplayIndex = len(c.items) + 1
	c.items = append(c.items, citation)
}

func (c *citationCollector) list() []domain.Citation {
	if c.items == nil {
		return []domain.Citation{}
	}
	return c.items
}
