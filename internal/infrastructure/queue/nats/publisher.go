package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/knowledge-assistant/internal/infrastructure/resilience"
)

const opPublish = "nats.publish"

type conn interface {
	Publish(subject string, data []byte) error
}

// Publisher hands fetched web results to the ingestion pipeline, which
// subscribes on the configured subject.
type Publisher struct {
	nc       *nats.Conn
	conn     conn
	subject  string
	executor *resilience.Executor
	now      func() time.Time
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewPublisher(url, subject string, options Options) (*Publisher, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	nc, err := nats.Connect(
		url,
		nats.Name("knowledge-assistant"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	p := newPublisher(nc, subject, options.ResilienceExecutor)
	p.nc = nc
	return p, nil
}

func newPublisher(c conn, subject string, executor *resilience.Executor) *Publisher {
	return &Publisher{conn: c, subject: subject, executor: executor, now: time.Now}
}

func (p *Publisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.nc.Close()
		}
	}
}

// WebResultsMessage is the payload on the web results subject.
type WebResultsMessage struct {
	Query     string             `json:"query"`
	Results   []domain.WebResult `json:"results"`
	FetchedAt time.Time          `json:"fetched_at"`
}

func (p *Publisher) PublishWebResults(ctx context.Context, query string, results []domain.WebResult) error {
	if len(results) == 0 {
		return nil
	}
	data, err := json.Marshal(WebResultsMessage{
		Query:     query,
		Results:   results,
		FetchedAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal web results: %w", err)
	}

	call := func(_ context.Context) error {
		if err := p.conn.Publish(p.subject, data); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if p.executor != nil {
		err = p.executor.Execute(ctx, opPublish, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}
