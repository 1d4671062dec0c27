package ports

import (
	"context"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
)

// Embedder builds vectors for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChunkStore exposes semantic and keyword rankings over one chunk corpus.
// VectorSearch scores are distances (lower is better); KeywordSearch scores
// are BM25-style relevance (higher is better). Both return best-first order.
type ChunkStore interface {
	VectorSearch(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.RankedResult, error)
	KeywordSearch(ctx context.Context, queryTokens []string, limit int, filter domain.SearchFilter) ([]domain.RankedResult, error)
	GetChunks(ctx context.Context, ids []string) ([]domain.Chunk, error)
}

// ScoringOracle is a cross-encoder: one score per text, input order preserved,
// higher is more relevant.
type ScoringOracle interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// ChatModel is the text-completion oracle.
type ChatModel interface {
	Chat(ctx context.Context, messages []domain.ChatMessage, opts domain.ChatOptions) (string, error)
}

// WebSearcher is the external web-search oracle.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]domain.WebResult, error)
}

// SourceRef identifies a source whose display title is needed for citations.
type SourceRef struct {
	Type domain.SourceType
	ID   string
}

// Key is the map key SourceCatalog implementations return titles under.
func (r SourceRef) Key() string {
	return string(r.Type) + ":" + r.ID
}

// SourceCatalog resolves display titles for citation sources.
type SourceCatalog interface {
	SourceTitles(ctx context.Context, refs []SourceRef) (map[string]string, error)
}

// WebResultPublisher hands fetched web results to the ingestion pipeline.
type WebResultPublisher interface {
	PublishWebResults(ctx context.Context, query string, results []domain.WebResult) error
}

// TokenCounter measures text against model token budgets.
type TokenCounter interface {
	Count(text string) int
}
