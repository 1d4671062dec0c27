package usecase

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/knowledge-assistant/internal/core/ports"
)

const defaultMaxContextTokens = 2000

type AssembledContext struct {
	Text      string
	Citations []domain.Citation
	Chunks    []domain.RetrievedChunk
}

// ContextAssembler turns ranked chunks into a prompt-ready context block.
type ContextAssembler struct {
	counter   ports.TokenCounter
	maxTokens int
}

func NewContextAssembler(counter ports.TokenCounter, maxTokens int) *ContextAssembler {
	if maxTokens <= 0 {
		maxTokens = defaultMaxContextTokens
	}
	return &ContextAssembler{counter: counter, maxTokens: maxTokens}
}

// Assemble walks chunks best-first. Repeated chunks are skipped, chunks of an
// already cited source reuse its citation number, and once the token budget
// is hit every lower-ranked chunk is dropped. Citations are keyed by source
// id alone, so a chunk whose id is already cited under another source type is
// skipped. titles is keyed by sourceKey.
func (a *ContextAssembler) Assemble(chunks []domain.RetrievedChunk, titles map[string]string) AssembledContext {
	out := AssembledContext{Citations: []domain.Citation{}, Chunks: []domain.RetrievedChunk{}}
	citationBySource := make(map[string]int)
	typeBySource := make(map[string]domain.SourceType)
	seenChunks := make(map[string]struct{})
	seenTexts := make(map[string]struct{})

	var b strings.Builder
	used := 0
	for _, chunk := range chunks {
		chunkKey := fmt.Sprintf("%s:%d", sourceKey(chunk.SourceType, chunk.SourceID), chunk.ChunkIndex)
		textKey := strings.TrimSpace(chunk.Text)
		if _, dup := seenChunks[chunkKey]; dup {
			continue
		}
		if _, dup := seenTexts[textKey]; dup || textKey == "" {
			continue
		}

		if citedType, ok := typeBySource[chunk.SourceID]; ok && citedType != chunk.SourceType {
			slog.Warn("citation_source_id_collision", "source_id", chunk.SourceID, "cited_type", citedType, "skipped_type", chunk.SourceType)
			continue
		}
		display, cited := citationBySource[chunk.SourceID]
		if !cited {
			display = len(out.Citations) + 1
		}
		title := resolveTitle(titles, chunk)
		block := formatChunkBlock(display, title, chunk.SourceType, textKey)

		cost := a.count(block)
		if used+cost > a.maxTokens {
			if len(out.Chunks) > 0 {
				break
			}
			// The best chunk alone exceeds the budget: keep a prefix of it.
			textKey = truncateToBudget(textKey, cost, a.maxTokens)
			block = formatChunkBlock(display, title, chunk.SourceType, textKey)
			cost = a.count(block)
		}

		seenChunks[chunkKey] = struct{}{}
		seenTexts[textKey] = struct{}{}
		if !cited {
			citationBySource[chunk.SourceID] = display
			typeBySource[chunk.SourceID] = chunk.SourceType
			out.Citations = append(out.Citations, domain.Citation{
				DisplayIndex: display,
				SourceType:   chunk.SourceType,
				SourceID:     chunk.SourceID,
				SourceTitle:  title,
				ChunkIndex:   chunk.ChunkIndex,
				Distance:     chunk.Distance,
			})
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(block)
		used += cost
		out.Chunks = append(out.Chunks, chunk)
		if used >= a.maxTokens {
			break
		}
	}

	out.Text = b.String()
	return out
}

func (a *ContextAssembler) count(text string) int {
	if a.counter == nil {
		return estimateTokens(text)
	}
	return a.counter.Count(text)
}

func formatChunkBlock(display int, title string, sourceType domain.SourceType, text string) string {
	return fmt.Sprintf("[%d] %s (%s)\n%s", display, title, sourceType, text)
}

func truncateToBudget(text string, cost, budget int) string {
	if cost <= 0 || budget <= 0 {
		return ""
	}
	runes := []rune(text)
	keep := len(runes) * budget / cost
	if keep >= len(runes) {
		return text
	}
	// Leave room for the header line.
	keep = max(keep-16, 0)
	return strings.TrimSpace(string(runes[:keep]))
}

func sourceKey(sourceType domain.SourceType, sourceID string) string {
	return ports.SourceRef{Type: sourceType, ID: sourceID}.Key()
}

func resolveTitle(titles map[string]string, chunk domain.RetrievedChunk) string {
	if title := strings.TrimSpace(titles[sourceKey(chunk.SourceType, chunk.SourceID)]); title != "" {
		return title
	}
	if title := strings.TrimSpace(chunk.SourceTitle); title != "" {
		return title
	}
	return chunk.SourceID
}

// estimateTokens approximates tokens as four characters each.
func estimateTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
