package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
)

func failing(context.Context) error { return errors.New("upstream down") }

func TestCircuitBreakerStateMachine(t *testing.T) {
	var transitions []BreakerState
	var mu sync.Mutex
	b := NewCircuitBreaker("llm", 3, 40*time.Millisecond, nil, func(_ string, _, to BreakerState) {
		mu.Lock()
		transitions = append(transitions, to)
		mu.Unlock()
	})

	for i := 0; i < 3; i++ {
		if err := b.Call(context.Background(), failing); err == nil {
			t.Fatalf("expected failure on call %d", i)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open after threshold, got %s", b.State())
	}
	if b.LastFailureTime().IsZero() {
		t.Fatalf("expected last failure time to be recorded")
	}

	var invoked int32
	err := b.Call(context.Background(), func(context.Context) error {
		atomic.AddInt32(&invoked, 1)
		return nil
	})
	if !domain.IsKind(err, domain.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if atomic.LoadInt32(&invoked) != 0 {
		t.Fatalf("wrapped function must not run while open")
	}

	time.Sleep(60 * time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatalf("expected half_open after recovery timeout, got %s", b.State())
	}

	if err := b.Call(context.Background(), func(context.Context) error {
		atomic.AddInt32(&invoked, 1)
		return nil
	}); err != nil {
		t.Fatalf("expected trial call to pass, got %v", err)
	}
	if atomic.LoadInt32(&invoked) != 1 {
		t.Fatalf("expected trial call to run once")
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after successful trial, got %s", b.State())
	}
	if b.FailureCount() != 0 {
		t.Fatalf("expected failure count reset, got %d", b.FailureCount())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 3 || transitions[0] != StateOpen || transitions[1] != StateHalfOpen || transitions[2] != StateClosed {
		t.Fatalf("unexpected transitions: %v", transitions)
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewCircuitBreaker("search", 1, 30*time.Millisecond, nil, nil)

	_ = b.Call(context.Background(), failing)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	time.Sleep(45 * time.Millisecond)

	if err := b.Call(context.Background(), failing); err == nil || domain.IsKind(err, domain.ErrCircuitOpen) {
		t.Fatalf("expected the trial call to run and fail, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open again after failed trial, got %s", b.State())
	}
}

func upstreamDeadline(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, time.Millisecond)
	defer cancel()
	<-callCtx.Done()
	return fmt.Errorf("ollama chat: %w", callCtx.Err())
}

func TestCircuitBreakerHalfOpenTimeoutReopens(t *testing.T) {
	b := NewCircuitBreaker("ollama.chat", 2, 30*time.Millisecond, ClassifyHTTPError, nil)

	for i := 0; i < 2; i++ {
		_ = b.Call(context.Background(), func(context.Context) error {
			return statusErr(503)
		})
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open after two 503s, got %s", b.State())
	}
	time.Sleep(45 * time.Millisecond)

	err := b.Call(context.Background(), upstreamDeadline)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the trial's deadline error, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected a timed-out trial to reopen the breaker, got %s", b.State())
	}
}

func TestCircuitBreakerUpstreamTimeoutsTrip(t *testing.T) {
	b := NewCircuitBreaker("qdrant.search", 3, time.Minute, ClassifyHTTPError, nil)

	for i := 0; i < 3; i++ {
		_ = b.Call(context.Background(), upstreamDeadline)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected repeated upstream timeouts to trip, got %s (failures=%d)", b.State(), b.FailureCount())
	}
}

func TestCircuitBreakerExcludesCallerAbort(t *testing.T) {
	b := NewCircuitBreaker("ollama.embed", 1, 30*time.Millisecond, ClassifyHTTPError, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	err := b.Call(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return fmt.Errorf("embed: %w", ctx.Err())
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the caller's deadline error unchanged, got %v", err)
	}
	var abort *callerAbortError
	if errors.As(err, &abort) {
		t.Fatalf("internal marker must not leak to callers")
	}
	if b.State() != StateClosed || b.FailureCount() != 0 {
		t.Fatalf("caller deadline must not count, got %s failures=%d", b.State(), b.FailureCount())
	}

	_ = b.Call(context.Background(), failing)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	time.Sleep(45 * time.Millisecond)

	canceled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_ = b.Call(canceled, func(ctx context.Context) error { return ctx.Err() })
	if b.State() != StateHalfOpen {
		t.Fatalf("a canceled trial must leave the breaker half-open, got %s", b.State())
	}
	if err := b.Call(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("expected the next trial to be admitted, got %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after a successful trial, got %s", b.State())
	}
}

func TestCircuitBreakerSuccessResetsConsecutiveFailures(t *testing.T) {
	b := NewCircuitBreaker("embed", 3, time.Minute, nil, nil)

	_ = b.Call(context.Background(), failing)
	_ = b.Call(context.Background(), failing)
	_ = b.Call(context.Background(), func(context.Context) error { return nil })
	_ = b.Call(context.Background(), failing)

	if b.State() != StateClosed {
		t.Fatalf("expected closed, non-consecutive failures must not trip, got %s", b.State())
	}
	if b.FailureCount() != 1 {
		t.Fatalf("expected failure count 1, got %d", b.FailureCount())
	}
}

func TestCircuitBreakerIgnoresUnrecordedFailures(t *testing.T) {
	b := NewCircuitBreaker("op", 1, time.Minute, func(error) ErrorClassification {
		return ErrorClassification{RecordFailure: false}
	}, nil)

	for i := 0; i < 3; i++ {
		_ = b.Call(context.Background(), failing)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed when failures are not recorded, got %s", b.State())
	}
}

func TestCircuitBreakerConcurrentFailuresTripOnce(t *testing.T) {
	var opens int32
	b := NewCircuitBreaker("op", 10, time.Minute, nil, func(_ string, _, to BreakerState) {
		if to == StateOpen {
			atomic.AddInt32(&opens, 1)
		}
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Call(context.Background(), failing)
		}()
	}
	wg.Wait()

	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	if atomic.LoadInt32(&opens) != 1 {
		t.Fatalf("expected exactly one open transition, got %d", opens)
	}
}
