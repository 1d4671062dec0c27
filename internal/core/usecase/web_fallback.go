package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/knowledge-assistant/internal/core/ports"
)

const (
	defaultConfidenceThreshold = 0.5
	defaultWebMaxResults       = 5
)

// Reasons reported by WebSearchFallback.Decide.
const (
	webReasonOverride      = "override"
	webReasonNoChunks      = "no_chunks"
	webReasonAnalyzer      = "analyzer"
	webReasonLowConfidence = "low_confidence"
	webReasonConfident     = "confident"
)

type WebSearchFallback struct {
	searcher   ports.WebSearcher
	publisher  ports.WebResultPublisher
	threshold  float64
	maxResults int
}

func NewWebSearchFallback(searcher ports.WebSearcher, publisher ports.WebResultPublisher, threshold float64, maxResults int) *WebSearchFallback {
	if threshold <= 0 {
		threshold = defaultConfidenceThreshold
	}
	if maxResults <= 0 {
		maxResults = defaultWebMaxResults
	}
	return &WebSearchFallback{
		searcher:   searcher,
		publisher:  publisher,
		threshold:  threshold,
		maxResults: maxResults,
	}
}

func (w *WebSearchFallback) Enabled() bool {
	return w != nil && w.searcher != nil
}

// Decide applies, in order: caller override, forced search on empty
// retrieval, the analyzer's hard recommendation, then the confidence threshold.
// A nil fallback decides with the default threshold.
func (w *WebSearchFallback) Decide(mode domain.WebSearchMode, analysis domain.QueryAnalysis, chunks []domain.RetrievedChunk) (bool, string) {
	switch mode {
	case domain.WebSearchAlways:
		return true, webReasonOverride
	case domain.WebSearchNever:
		return false, webReasonOverride
	}
	if len(chunks) == 0 {
		return true, webReasonNoChunks
	}
	switch analysis.NeedsWebSearch {
	case domain.WebSearchYes:
		return true, webReasonAnalyzer
	case domain.WebSearchNo:
		return false, webReasonAnalyzer
	}
	threshold := defaultConfidenceThreshold
	if w != nil {
		threshold = w.threshold
	}
	if bestConfidence(chunks) < threshold {
		return true, webReasonLowConfidence
	}
	return false, webReasonConfident
}

// Search never fails: oracle errors are logged and yield no results.
func (w *WebSearchFallback) Search(ctx context.Context, query string) []domain.WebResult {
	if !w.Enabled() {
		return nil
	}
	results, err := w.searcher.Search(ctx, query, w.maxResults)
	if err != nil {
		slog.Warn("web_search_failed", "error", err.Error())
		return nil
	}
	if len(results) > w.maxResults {
		results = results[:w.maxResults]
	}
	if w.publisher != nil && len(results) > 0 {
		if err := w.publisher.PublishWebResults(ctx, query, results); err != nil {
			slog.Warn("web_results_publish_failed", "error", err.Error())
		}
	}
	return results
}

// Merge appends a labeled web block and one web citation per new URL.
func (w *WebSearchFallback) Merge(contextText string, citations []domain.Citation, results []domain.WebResult) (string, []domain.Citation) {
	if len(results) == 0 {
		return contextText, citations
	}
	seen := make(map[string]struct{}, len(citations))
	for _, c := range citations {
		seen[c.SourceID] = struct{}{}
	}

	lines := make([]string, 0, len(results))
	for _, result := range results {
		url := strings.TrimSpace(result.URL)
		if url == "" {
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		display := len(citations) + 1
		title := strings.TrimSpace(result.Title)
		if title == "" {
			title = url
		}
		citations = append(citations, domain.Citation{
			DisplayIndex: display,
			SourceType:   domain.SourceWeb,
			SourceID:     url,
			SourceTitle:  title,
			Distance:     -1,
			URL:          url,
		})
		lines = append(lines, fmt.Sprintf("[%d] %s (web)\n%s\n%s", display, title, strings.TrimSpace(result.Snippet), url))
	}
	if len(lines) == 0 {
		return contextText, citations
	}

	block := "Web results:\n" + strings.Join(lines, "\n\n")
	if contextText == "" {
		return block, citations
	}
	return contextText + "\n\n" + block, citations
}

// bestConfidence maps each chunk to [0,1]: the cross-encoder score when
// reranked, else 1 - cosine distance. Lexical-only chunks carry no signal.
func bestConfidence(chunks []domain.RetrievedChunk) float64 {
	best := 0.0
	for _, chunk := range chunks {
		var c float64
		switch {
		case chunk.Reranked:
			c = chunk.RerankScore
		case chunk.Distance >= 0:
			c = 1 - chunk.Distance
		default:
			continue
		}
		best = max(best, min(max(c, 0), 1))
	}
	return best
}
