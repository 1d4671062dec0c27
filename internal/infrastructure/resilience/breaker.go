package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
)

type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half_open"
)

// StateObserver is notified on every breaker transition.
type StateObserver func(operation string, from, to BreakerState)

// CircuitBreaker protects one upstream operation. It trips after
// failureThreshold consecutive failures, rejects calls while open, and lets
// exactly one probe through once recoveryTimeout has elapsed.
type CircuitBreaker struct {
	name      string
	threshold uint32
	recovery  time.Duration
	cb        *gobreaker.CircuitBreaker[any]

	mu          sync.Mutex
	lastFailure time.Time
}

func NewCircuitBreaker(name string, failureThreshold uint32, recoveryTimeout time.Duration, classifier ErrorClassifier, observer StateObserver) *CircuitBreaker {
	if failureThreshold == 0 {
		failureThreshold = DefaultConfig().BreakerFailureThreshold
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = DefaultConfig().BreakerRecoveryTimeout
	}
	if classifier == nil {
		classifier = defaultClassifier
	}

	b := &CircuitBreaker{
		name:      name,
		threshold: failureThreshold,
		recovery:  recoveryTimeout,
	}
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     recoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			return !classifier(err).RecordFailure
		},
		IsExcluded: isCallerAbort,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
			if observer != nil {
				observer(name, mapState(from), mapState(to))
			}
		},
	})
	return b
}

// callerAbortError marks a failure observed after the caller's own context
// was done. Such calls say nothing about upstream health.
type callerAbortError struct {
	err error
}

func (e *callerAbortError) Error() string { return e.err.Error() }

func (e *callerAbortError) Unwrap() error { return e.err }

func isCallerAbort(err error) bool {
	var abort *callerAbortError
	return errors.As(err, &abort) || errors.Is(err, context.Canceled)
}

// Call runs fn through the breaker. Rejections are reported as domain.ErrCircuitOpen.
// Failures after the caller's context ended are neither successes nor
// failures; a deadline that fn hits on its own counts as a failure.
func (b *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	_, err := b.cb.Execute(func() (any, error) {
		err := fn(ctx)
		if err != nil && ctx.Err() != nil {
			return nil, &callerAbortError{err: err}
		}
		return nil, err
	})
	if err == nil {
		return nil
	}
	var abort *callerAbortError
	if errors.As(err, &abort) {
		return abort.err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.WrapError(domain.ErrCircuitOpen, b.name, err)
	}
	b.mu.Lock()
	b.lastFailure = time.Now()
	b.mu.Unlock()
	return err
}

func (b *CircuitBreaker) Name() string { return b.name }

func (b *CircuitBreaker) State() BreakerState {
	return mapState(b.cb.State())
}

// FailureCount is the current run of consecutive recorded failures.
func (b *CircuitBreaker) FailureCount() uint32 {
	return b.cb.Counts().ConsecutiveFailures
}

func (b *CircuitBreaker) LastFailureTime() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFailure
}

func (b *CircuitBreaker) FailureThreshold() uint32 { return b.threshold }

func (b *CircuitBreaker) RecoveryTimeout() time.Duration { return b.recovery }

func mapState(s gobreaker.State) BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, domain.ErrCircuitOpen) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}
