package usecase

import (
	"context"
	"errors"
	"hash/fnv"
	"testing"

	"pgregory.net/rapid"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
)

func scoreByTable(table map[string]float64) func([]string) []float64 {
	return func(texts []string) []float64 {
		out := make([]float64, len(texts))
		for i, text := range texts {
			out[i] = table[text]
		}
		return out
	}
}

func TestRerankerTopKBounds(t *testing.T) {
	oracle := &fakeOracle{scores: scoreByTable(map[string]float64{"a": 0.1, "b": 0.9, "c": 0.5})}
	reranker := NewReranker(oracle)

	hits, err := reranker.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 0)
	if err != nil || len(hits) != 0 {
		t.Fatalf("expected empty result for top_k=0, got %v err=%v", hits, err)
	}
	if oracle.calls != 0 {
		t.Fatalf("expected oracle not to be called for top_k=0")
	}

	hits, err = reranker.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 10)
	if err != nil {
		t.Fatalf("rerank: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected all 3 hits, got %d", len(hits))
	}
	wantOrder := []int{1, 2, 0}
	for i, hit := range hits {
		if hit.Index != wantOrder[i] {
			t.Fatalf("expected index order %v, got %+v", wantOrder, hits)
		}
	}
}

func TestRerankerTiesKeepOriginalIndexOrder(t *testing.T) {
	oracle := &fakeOracle{scores: func(texts []string) []float64 { return make([]float64, len(texts)) }}

	hits, err := NewReranker(oracle).Rerank(context.Background(), "q", []string{"x", "y", "z"}, 2)
	if err != nil {
		t.Fatalf("rerank: %v", err)
	}
	if len(hits) != 2 || hits[0].Index != 0 || hits[1].Index != 1 {
		t.Fatalf("expected ties ordered by index, got %+v", hits)
	}
}

func TestRerankerErrors(t *testing.T) {
	failing := &fakeOracle{err: errors.New("cross-encoder down")}
	if _, err := NewReranker(failing).Rerank(context.Background(), "q", []string{"a"}, 1); err == nil {
		t.Fatalf("expected oracle error to propagate")
	}

	short := &fakeOracle{scores: func([]string) []float64 { return []float64{1} }}
	if _, err := NewReranker(short).Rerank(context.Background(), "q", []string{"a", "b"}, 2); err == nil {
		t.Fatalf("expected score count mismatch to fail")
	}
}

func TestRerankChunksMapsBackToChunks(t *testing.T) {
	oracle := &fakeOracle{scores: scoreByTable(map[string]float64{"first": 0.2, "second": 0.8})}
	chunks := []domain.RetrievedChunk{
		{Chunk: domain.Chunk{ID: "c1", Text: "first"}, Distance: 0.1},
		{Chunk: domain.Chunk{ID: "c2", Text: "second"}, Distance: 0.4},
	}

	out, err := NewReranker(oracle).RerankChunks(context.Background(), "q", chunks, 2)
	if err != nil {
		t.Fatalf("rerank chunks: %v", err)
	}
	if out[0].ID != "c2" || out[0].RerankScore != 0.8 || !out[0].Reranked || out[0].Distance != 0.4 {
		t.Fatalf("unexpected first chunk %+v", out[0])
	}
}

func textScore(text string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	return float64(h.Sum32()%1000) / 1000
}

func TestRerankerIndexFidelity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		texts := rapid.SliceOfDistinct(rapid.StringMatching(`[a-z]{1,8}`), func(s string) string { return s }).Draw(rt, "texts")
		topK := rapid.IntRange(0, len(texts)+3).Draw(rt, "top_k")
		oracle := &fakeOracle{scores: func(in []string) []float64 {
			out := make([]float64, len(in))
			for i, text := range in {
				out[i] = textScore(text)
			}
			return out
		}}

		hits, err := NewReranker(oracle).Rerank(context.Background(), "q", texts, topK)
		if err != nil {
			rt.Fatalf("rerank: %v", err)
		}
		if want := min(topK, len(texts)); len(hits) != want {
			rt.Fatalf("expected %d hits, got %d", want, len(hits))
		}
		seen := map[int]struct{}{}
		for i, hit := range hits {
			if hit.Index < 0 || hit.Index >= len(texts) {
				rt.Fatalf("index %d out of range", hit.Index)
			}
			if _, dup := seen[hit.Index]; dup {
				rt.Fatalf("duplicate index %d", hit.Index)
			}
			seen[hit.Index] = struct{}{}
			if hit.Score != textScore(texts[hit.Index]) {
				rt.Fatalf("hit %d score does not belong to text %q", i, texts[hit.Index])
			}
			if i > 0 && hit.Score > hits[i-1].Score {
				rt.Fatalf("hits not sorted descending")
			}
		}
	})
}
