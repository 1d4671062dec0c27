package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/knowledge-assistant/internal/core/ports"
)

type RetrievalMode string

const (
	RetrievalHybrid   RetrievalMode = "hybrid"
	RetrievalSemantic RetrievalMode = "semantic"
)

type RAGConfig struct {
	Mode          RetrievalMode
	RerankEnabled bool
}

// RAGOrchestrator runs analyze, retrieve, rerank, assemble and web fallback
// for a single query. It holds no per-request state.
type RAGOrchestrator struct {
	analyzer  *QueryAnalyzer
	embedder  ports.Embedder
	store     ports.ChunkStore
	ranker    *HybridRanker
	reranker  *Reranker
	assembler *ContextAssembler
	web       *WebSearchFallback
	catalog   ports.SourceCatalog
	cfg       RAGConfig
}

func NewRAGOrchestrator(
	analyzer *QueryAnalyzer,
	embedder ports.Embedder,
	store ports.ChunkStore,
	ranker *HybridRanker,
	reranker *Reranker,
	assembler *ContextAssembler,
	web *WebSearchFallback,
	catalog ports.SourceCatalog,
	cfg RAGConfig,
) *RAGOrchestrator {
	if analyzer == nil {
		analyzer = NewQueryAnalyzer()
	}
	if ranker == nil {
		ranker = NewHybridRanker(DefaultFusionConfig())
	}
	if assembler == nil {
		assembler = NewContextAssembler(nil, defaultMaxContextTokens)
	}
	if cfg.Mode == "" {
		cfg.Mode = RetrievalHybrid
	}
	return &RAGOrchestrator{
		analyzer:  analyzer,
		embedder:  embedder,
		store:     store,
		ranker:    ranker,
		reranker:  reranker,
		assembler: assembler,
		web:       web,
		catalog:   catalog,
		cfg:       cfg,
	}
}

func (o *RAGOrchestrator) ProcessQuery(ctx context.Context, req domain.RAGRequest) (*domain.RAGResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "process query", fmt.Errorf("query is required"))
	}

	analysis := o.analyzer.Analyze(query)
	meta := domain.RAGMetadata{
		QueryType:  analysis.QueryType,
		Complexity: analysis.Complexity,
	}
	if !analysis.NeedsRetrieval {
		meta.RetrievalSkipped = true
		return &domain.RAGResult{Context: "", Citations: []domain.Citation{}, Metadata: meta}, nil
	}

	params := mergeRetrievalParams(analysis.RetrievalParams, req.Retrieval)
	filter := domain.SearchFilter{}
	if req.ReputableOnly {
		filter.ExcludeSourceType = domain.SourceNote
	}

	candidates, err := o.retrieve(ctx, query, params.InitialK, filter)
	if err != nil {
		return nil, err
	}

	finalK := min(params.TopK, params.MaxFinalChunks)
	if o.cfg.RerankEnabled && o.reranker != nil && len(candidates) > 0 {
		candidates, err = o.reranker.RerankChunks(ctx, query, candidates, finalK)
		if err != nil {
			return nil, fmt.Errorf("rerank candidates: %w", err)
		}
		meta.Reranked = true
	} else if len(candidates) > finalK {
		candidates = candidates[:finalK]
	}

	assembled := o.assembler.Assemble(candidates, o.sourceTitles(ctx, candidates))
	contextText := assembled.Text
	citations := assembled.Citations
	meta.ChunksRetrieved = len(assembled.Chunks)
	meta.UniqueSources = len(citations)

	// The decision is reported even without a configured oracle; Search is
	// then a no-op and nothing is merged.
	if useWeb, reason := o.web.Decide(req.WebSearch, analysis, assembled.Chunks); useWeb {
		slog.Debug("web_search_triggered", "reason", reason, "query_type", analysis.QueryType, "oracle", o.web.Enabled())
		meta.WebSearchUsed = true
		results := o.web.Search(ctx, query)
		contextText, citations = o.web.Merge(contextText, citations, results)
	}

	return &domain.RAGResult{Context: contextText, Citations: citations, Metadata: meta}, nil
}

// retrieve returns up to limit candidates in fused order with their chunk
// payloads attached.
func (o *RAGOrchestrator) retrieve(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	var semantic, keyword []domain.RankedResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vector, err := o.embedder.EmbedQuery(gctx, query)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		semantic, err = o.store.VectorSearch(gctx, vector, limit, filter)
		if err != nil {
			return fmt.Errorf("vector search: %w", err)
		}
		return nil
	})
	if o.cfg.Mode == RetrievalHybrid {
		g.Go(func() error {
			tokens := keywordTokens(query)
			if len(tokens) == 0 {
				return nil
			}
			var err error
			keyword, err = o.store.KeywordSearch(gctx, tokens, limit, filter)
			if err != nil {
				return fmt.Errorf("keyword search: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := trimRanked(o.ranker.Fuse(semantic, keyword), limit)
	if len(fused) == 0 {
		return []domain.RetrievedChunk{}, nil
	}

	ids := make([]string, len(fused))
	for i, r := range fused {
		ids[i] = r.ChunkID
	}
	chunks, err := o.store.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	byID := make(map[string]domain.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	distances := make(map[string]float64, len(semantic))
	for _, r := range semantic {
		distances[r.ChunkID] = r.Score
	}

	out := make([]domain.RetrievedChunk, 0, len(fused))
	for _, r := range fused {
		chunk, ok := byID[r.ChunkID]
		if !ok {
			continue
		}
		distance, ok := distances[r.ChunkID]
		if !ok {
			distance = -1
		}
		out = append(out, domain.RetrievedChunk{Chunk: chunk, Distance: distance, FusedScore: r.Score})
	}
	return out, nil
}

func (o *RAGOrchestrator) sourceTitles(ctx context.Context, chunks []domain.RetrievedChunk) map[string]string {
	if o.catalog == nil || len(chunks) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(chunks))
	refs := make([]ports.SourceRef, 0, len(chunks))
	for _, c := range chunks {
		key := sourceKey(c.SourceType, c.SourceID)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		refs = append(refs, ports.SourceRef{Type: c.SourceType, ID: c.SourceID})
	}
	titles, err := o.catalog.SourceTitles(ctx, refs)
	if err != nil {
		slog.Warn("source_titles_failed", "error", err.Error())
		return nil
	}
	return titles
}

// mergeRetrievalParams lets non-zero override fields win over the analyzer.
func mergeRetrievalParams(base domain.RetrievalParams, override *domain.RetrievalParams) domain.RetrievalParams {
	if override != nil {
		if override.InitialK > 0 {
			base.InitialK = override.InitialK
		}
		if override.TopK > 0 {
			base.TopK = override.TopK
			if override.MaxFinalChunks <= 0 {
				base.MaxFinalChunks = override.TopK
			}
		}
		if override.MaxFinalChunks > 0 {
			base.MaxFinalChunks = override.MaxFinalChunks
		}
	}
	if base.InitialK < base.TopK {
		base.InitialK = base.TopK
	}
	return base
}
