package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Executor applies withRetry(withCircuitBreaker(call)) per named operation.
// Breakers are created lazily, one per operation, and shared by all callers.
type Executor struct {
	cfg      Config
	observer StateObserver

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*CircuitBreaker),
	}
}

// WithStateObserver registers a hook for breaker transitions. It must be set
// before the first Execute call.
func (e *Executor) WithStateObserver(observer StateObserver) *Executor {
	e.observer = observer
	return e
}

func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	call := fn
	if e.cfg.BreakerEnabled {
		breaker := e.Breaker(op, classifier)
		call = func(ctx context.Context) error {
			return breaker.Call(ctx, fn)
		}
	}
	return e.executeWithRetry(ctx, op, call, classifier)
}

// Do is Execute for calls that produce a value.
func Do[T any](
	ctx context.Context,
	e *Executor,
	operation string,
	fn func(context.Context) (T, error),
	classifier ErrorClassifier,
) (T, error) {
	var out T
	if e == nil {
		return fn(ctx)
	}
	err := e.Execute(ctx, operation, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, classifier)
	return out, err
}

func (e *Executor) executeWithRetry(
	ctx context.Context,
	operation string,
	fn func(context.Context) error,
	classifier ErrorClassifier,
) error {
	maxAttempts := e.cfg.RetryMaxAttempts

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsCircuitOpen(err) {
			return err
		}

		class := classifier(err)
		if !class.Retryable || attempt == maxAttempts {
			return err
		}

		wait := e.cfg.backoffFor(attempt - 1)
		slog.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"backoff_ms", float64(wait.Microseconds())/1000.0,
			"error", err,
		)

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}
	}

	return nil
}

// Breaker returns the breaker for operation, creating it on first use.
func (e *Executor) Breaker(operation string, classifier ErrorClassifier) *CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[operation]; ok {
		return breaker
	}
	breaker := NewCircuitBreaker(operation, e.cfg.BreakerFailureThreshold, e.cfg.BreakerRecoveryTimeout, classifier, e.observer)
	e.breakers[operation] = breaker
	return breaker
}

// States snapshots every known breaker, sorted by operation name.
func (e *Executor) States() []BreakerSnapshot {
	e.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(e.breakers))
	for _, b := range e.breakers {
		breakers = append(breakers, b)
	}
	e.mu.Unlock()

	out := make([]BreakerSnapshot, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, BreakerSnapshot{
			Operation:    b.Name(),
			State:        b.State(),
			FailureCount: b.FailureCount(),
			LastFailure:  b.LastFailureTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

type BreakerSnapshot struct {
	Operation    string       `json:"operation"`
	State        BreakerState `json:"state"`
	FailureCount uint32       `json:"failure_count"`
	LastFailure  time.Time    `json:"last_failure,omitempty"`
}

func defaultClassifier(err error) ErrorClassification {
	if errors.Is(err, context.Canceled) {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}
