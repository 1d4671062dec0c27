package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
)

// CallObserver is notified once per executed call with status
// ok|error|not_found|not_authorized|invalid.
type CallObserver func(tool, status string)

// Executor runs registry tools. It never returns an error: every failure is
// reported as an unsuccessful domain.ToolResult.
type Executor struct {
	registry    *Registry
	timeout     time.Duration
	concurrency int
	observer    CallObserver
}

type ExecutorOption func(*Executor)

// WithTimeout bounds each tool body. Zero leaves only the caller's deadline.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

func WithConcurrency(n int) ExecutorOption {
	return func(e *Executor) { e.concurrency = n }
}

func WithCallObserver(fn CallObserver) ExecutorOption {
	return func(e *Executor) { e.observer = fn }
}

func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{registry: registry, concurrency: 4}
	for _, opt := range opts {
		opt(e)
	}
	if e.concurrency <= 0 {
		e.concurrency = 1
	}
	return e
}

func (e *Executor) Registry() *Registry {
	return e.registry
}

func (e *Executor) Execute(ctx context.Context, name string, params map[string]any, access []string) domain.ToolResult {
	tool, ok := e.registry.Get(name)
	if !ok {
		e.observe(name, "not_found")
		return domain.ToolFailure(domain.WrapError(domain.ErrToolNotFound, name, fmt.Errorf("unknown tool")).Error())
	}
	if !e.registry.IsToolAvailable(name, access) {
		e.observe(name, "not_authorized")
		return domain.ToolFailure(domain.WrapError(domain.ErrToolNotAuthorized, name, fmt.Errorf("tool is not in the agent access list")).Error())
	}
	if params == nil {
		params = map[string]any{}
	}
	if err := Validate(tool.Schema(), params); err != nil {
		e.observe(name, "invalid")
		return domain.ToolFailure(domain.WrapError(domain.ErrToolValidation, name, err).Error())
	}

	started := time.Now()
	result, err := e.run(ctx, tool, params)
	if err != nil {
		slog.Warn("tool_execution_failed", "tool", name, "error", err.Error())
		e.observe(name, "error")
		return domain.ToolFailure(err.Error())
	}
	e.observe(name, "ok")
	return domain.ToolResult{
		Success:  true,
		Result:   result,
		Metadata: map[string]any{"duration_ms": time.Since(started).Milliseconds()},
	}
}

// ExecuteBatch runs calls concurrently and returns one result per call in
// input order. Individual failures do not stop the batch.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []domain.ToolCall, access []string) []domain.ToolResult {
	results := make([]domain.ToolResult, len(calls))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.Execute(ctx, call.Tool, call.Parameters, access)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (e *Executor) run(ctx context.Context, tool Tool, params map[string]any) (result any, err error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("tool %s panicked: %v", tool.Schema().Name, r)
		}
	}()
	return tool.Execute(ctx, params)
}

func (e *Executor) observe(tool, status string) {
	if e.observer != nil {
		e.observer(tool, status)
	}
}
