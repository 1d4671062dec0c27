// Package memory is an in-process ChunkStore for development and tests.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

type entry struct {
	chunk  domain.Chunk
	vector []float32
	terms  map[string]int
	length int
}

// Store ranks chunks by brute-force cosine distance and Okapi BM25.
type Store struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	order    []string
	docFreq  map[string]int
	totalLen int
}

func NewStore() *Store {
	return &Store{
		entries: make(map[string]*entry),
		docFreq: make(map[string]int),
	}
}

// Add inserts or replaces a chunk together with its embedding.
func (s *Store) Add(chunk domain.Chunk, vector []float32) error {
	if strings.TrimSpace(chunk.ID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "memory.add", fmt.Errorf("chunk id is required"))
	}

	tokens := tokenize(chunk.Text)
	terms := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		terms[tok]++
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[chunk.ID]; ok {
		s.removeStatsLocked(old)
	} else {
		s.order = append(s.order, chunk.ID)
	}
	e := &entry{chunk: chunk, vector: append([]float32(nil), vector...), terms: terms, length: len(tokens)}
	s.entries[chunk.ID] = e
	for term := range terms {
		s.docFreq[term]++
	}
	s.totalLen += e.length
	return nil
}

func (s *Store) removeStatsLocked(e *entry) {
	for term := range e.terms {
		s.docFreq[term]--
		if s.docFreq[term] <= 0 {
			delete(s.docFreq, term)
		}
	}
	s.totalLen -= e.length
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) VectorSearch(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.RankedResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(queryVector) == 0 || limit <= 0 {
		return []domain.RankedResult{}, nil
	}

	s.mu.RLock()
	scored := make([]domain.RankedResult, 0, len(s.entries))
	for _, id := range s.order {
		e := s.entries[id]
		if excluded(e.chunk, filter) || len(e.vector) != len(queryVector) {
			continue
		}
		scored = append(scored, domain.RankedResult{ChunkID: id, Score: cosineDistance(queryVector, e.vector)})
	}
	s.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score < scored[j].Score })
	return rank(scored, limit), nil
}

func (s *Store) KeywordSearch(ctx context.Context, queryTokens []string, limit int, filter domain.SearchFilter) ([]domain.RankedResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(queryTokens) == 0 || limit <= 0 {
		return []domain.RankedResult{}, nil
	}

	s.mu.RLock()
	n := float64(len(s.entries))
	avgLen := 0.0
	if n > 0 {
		avgLen = float64(s.totalLen) / n
	}
	scored := make([]domain.RankedResult, 0)
	for _, id := range s.order {
		e := s.entries[id]
		if excluded(e.chunk, filter) {
			continue
		}
		score := 0.0
		for _, term := range queryTokens {
			tf := float64(e.terms[strings.ToLower(term)])
			if tf == 0 {
				continue
			}
			df := float64(s.docFreq[strings.ToLower(term)])
			idf := math.Log(1 + (n-df+0.5)/(df+0.5))
			norm := 1 - bm25B
			if avgLen > 0 {
				norm += bm25B * float64(e.length) / avgLen
			}
			score += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
		if score > 0 {
			scored = append(scored, domain.RankedResult{ChunkID: id, Score: score})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return rank(scored, limit), nil
}

func (s *Store) GetChunks(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			out = append(out, e.chunk)
		}
	}
	return out, nil
}

func excluded(chunk domain.Chunk, filter domain.SearchFilter) bool {
	return filter.ExcludeSourceType != "" && chunk.SourceType == filter.ExcludeSourceType
}

func rank(results []domain.RankedResult, limit int) []domain.RankedResult {
	if len(results) > limit {
		results = results[:limit]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// cosineDistance is 1 - cosine similarity; zero vectors are maximally distant.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
