package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/knowledge-assistant/internal/infrastructure/resilience"
)

type fakeConn struct {
	subject string
	data    []byte
	calls   int
	errs    []error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return err
		}
	}
	c.subject = subject
	c.data = data
	return nil
}

func TestPublishWebResultsPayload(t *testing.T) {
	conn := &fakeConn{}
	p := newPublisher(conn, "knowledge.web_results", nil)
	fixed := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	results := []domain.WebResult{{Title: "Go", Snippet: "lang", URL: "https://go.dev"}}
	if err := p.PublishWebResults(context.Background(), "what is go", results); err != nil {
		t.Fatalf("PublishWebResults() error = %v", err)
	}
	if conn.subject != "knowledge.web_results" {
		t.Fatalf("unexpected subject %q", conn.subject)
	}

	var msg WebResultsMessage
	if err := json.Unmarshal(conn.data, &msg); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if msg.Query != "what is go" || len(msg.Results) != 1 || msg.Results[0].URL != "https://go.dev" || !msg.FetchedAt.Equal(fixed) {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestPublishWebResultsSkipsEmpty(t *testing.T) {
	conn := &fakeConn{}
	if err := newPublisher(conn, "s", nil).PublishWebResults(context.Background(), "q", nil); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if conn.calls != 0 {
		t.Fatalf("expected no publish for empty results")
	}
}

func TestPublishRetriesTransientErrors(t *testing.T) {
	conn := &fakeConn{errs: []error{nats.ErrConnectionReconnecting, nil}}
	executor := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     1,
	})
	p := newPublisher(conn, "s", executor)

	if err := p.PublishWebResults(context.Background(), "q", []domain.WebResult{{URL: "u"}}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if conn.calls != 2 {
		t.Fatalf("expected 2 publish attempts, got %d", conn.calls)
	}
}

func TestPublishWrapsTransientAsTemporary(t *testing.T) {
	conn := &fakeConn{errs: []error{nats.ErrNoServers}}
	err := newPublisher(conn, "s", nil).PublishWebResults(context.Background(), "q", []domain.WebResult{{URL: "u"}})
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{"canceled", context.Canceled, false, false},
		{"deadline", fmt.Errorf("publish: %w", context.DeadlineExceeded), true, true},
		{"circuit open", domain.WrapError(domain.ErrCircuitOpen, "nats.publish", errors.New("open")), false, false},
		{"timeout", fmt.Errorf("nats publish: %w", nats.ErrTimeout), true, true},
		{"bad subject", nats.ErrBadSubject, false, true},
	}
	for _, tc := range cases {
		got := classifyNATSError(tc.err)
		if got.Retryable != tc.retryable || got.RecordFailure != tc.record {
			t.Fatalf("%s: got %+v", tc.name, got)
		}
	}
}
