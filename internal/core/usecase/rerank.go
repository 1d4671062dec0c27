package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/knowledge-assistant/internal/core/ports"
)

// RerankHit points back into the texts slice passed to Rerank.
type RerankHit struct {
	Index int
	Score float64
}

type Reranker struct {
	oracle ports.ScoringOracle
}

func NewReranker(oracle ports.ScoringOracle) *Reranker {
	return &Reranker{oracle: oracle}
}

// Rerank scores texts against query and returns the topK best hits. Equal
// scores keep ascending original index order.
func (r *Reranker) Rerank(ctx context.Context, query string, texts []string, topK int) ([]RerankHit, error) {
	if topK <= 0 || len(texts) == 0 {
		return []RerankHit{}, nil
	}

	scores, err := r.oracle.Score(ctx, query, texts)
	if err != nil {
		return nil, fmt.Errorf("rerank score: %w", err)
	}
	if len(scores) != len(texts) {
		return nil, fmt.Errorf("rerank score: oracle returned %d scores for %d texts", len(scores), len(texts))
	}

	hits := make([]RerankHit, len(scores))
	for i, score := range scores {
		hits[i] = RerankHit{Index: i, Score: score}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

// RerankChunks reorders chunks by oracle relevance and keeps topK.
func (r *Reranker) RerankChunks(ctx context.Context, query string, chunks []domain.RetrievedChunk, topK int) ([]domain.RetrievedChunk, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	hits, err := r.Rerank(ctx, query, texts, topK)
	if err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedChunk, len(hits))
	for i, hit := range hits {
		chunk := chunks[hit.Index]
		chunk.RerankScore = hit.Score
		chunk.Reranked = true
		out[i] = chunk
	}
	return out, nil
}
