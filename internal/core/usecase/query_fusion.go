package usecase

import (
	"sort"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
)

const (
	defaultRRFK           = 60
	defaultSemanticWeight = 0.7
	defaultBM25Weight     = 0.3
)

type FusionConfig struct {
	K              int
	SemanticWeight float64
	BM25Weight     float64
}

func DefaultFusionConfig() FusionConfig {
	return FusionConfig{K: defaultRRFK, SemanticWeight: defaultSemanticWeight, BM25Weight: defaultBM25Weight}
}

// HybridRanker fuses a semantic and a keyword ranking by weighted Reciprocal
// Rank Fusion. Only list positions are used, never raw scores.
type HybridRanker struct {
	cfg FusionConfig
}

func NewHybridRanker(cfg FusionConfig) *HybridRanker {
	if cfg.K <= 0 {
		cfg.K = defaultRRFK
	}
	if cfg.SemanticWeight < 0 {
		cfg.SemanticWeight = 0
	}
	if cfg.BM25Weight < 0 {
		cfg.BM25Weight = 0
	}
	return &HybridRanker{cfg: cfg}
}

type fusedCandidate struct {
	id    string
	score float64
}

// Fuse returns chunk ids ordered by descending fused score. Ties keep first
// appearance order: semantic list first, then keyword list. Rank is 1-based.
func (h *HybridRanker) Fuse(semantic, keyword []domain.RankedResult) []domain.RankedResult {
	acc := make(map[string]int, len(semantic)+len(keyword))
	order := make([]fusedCandidate, 0, len(semantic)+len(keyword))

	addList := func(results []domain.RankedResult, weight float64) {
		for pos, result := range results {
			contribution := weight / float64(h.cfg.K+pos+1)
			idx, seen := acc[result.ChunkID]
			if !seen {
				idx = len(order)
				acc[result.ChunkID] = idx
				order = append(order, fusedCandidate{id: result.ChunkID})
			}
			order[idx].score += contribution
		}
	}
	addList(semantic, h.cfg.SemanticWeight)
	addList(keyword, h.cfg.BM25Weight)

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].score > order[j].score
	})

	out := make([]domain.RankedResult, len(order))
	for i, c := range order {
		out[i] = domain.RankedResult{ChunkID: c.id, Score: c.score, Rank: i + 1}
	}
	return out
}

func trimRanked(results []domain.RankedResult, limit int) []domain.RankedResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}
