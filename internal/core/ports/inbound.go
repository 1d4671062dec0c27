package ports

import (
	"context"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
)

// RAGService is the inbound contract for the retrieval pipeline.
type RAGService interface {
	ProcessQuery(ctx context.Context, req domain.RAGRequest) (*domain.RAGResult, error)
}

// AgentRunner is the inbound contract for the tool-calling loop.
type AgentRunner interface {
	Run(ctx context.Context, req domain.AgentRequest) (*domain.AgentRunResult, error)
}
