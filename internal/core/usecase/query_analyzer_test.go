package usecase

import (
	"testing"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
)

func TestQueryAnalyzerGeneralKnowledgeBypass(t *testing.T) {
	analyzer := NewQueryAnalyzer()

	for _, query := range []string{"What is 2 + 2?", "capital of France", "What is the capital of Japan?", "hello", "Thanks!", "12 * 7"} {
		if analyzer.Analyze(query).NeedsRetrieval {
			t.Fatalf("expected %q to bypass retrieval", query)
		}
	}
	for _, query := range []string{"What is agentic RAG in my notes?", "capital of France in my notes", "explain circuit breakers"} {
		if !analyzer.Analyze(query).NeedsRetrieval {
			t.Fatalf("expected %q to need retrieval", query)
		}
	}
}

func TestQueryAnalyzerClassification(t *testing.T) {
	analyzer := NewQueryAnalyzer()

	tests := []struct {
		query      string
		queryType  domain.QueryType
		complexity domain.Complexity
		topK       int
		web        domain.WebSearchDecision
	}{
		{"What is agentic RAG in my notes?", domain.QueryConceptual, domain.ComplexitySimple, 3, domain.WebSearchUndecided},
		{"Compare pgvector and qdrant for hybrid search", domain.QueryComparative, domain.ComplexityModerate, 5, domain.WebSearchUndecided},
		{"Compare pgvector and qdrant and milvus", domain.QueryComparative, domain.ComplexityComplex, 5, domain.WebSearchUndecided},
		{"How to configure the reranker", domain.QueryProcedural, domain.ComplexitySimple, 4, domain.WebSearchUndecided},
		{"How to set up ollama and qdrant and redis", domain.QueryProcedural, domain.ComplexityComplex, 5, domain.WebSearchUndecided},
		{"tell me about distributed tracing", domain.QueryExploratory, domain.ComplexitySimple, 4, domain.WebSearchYes},
		{"Who wrote the note about Kafka", domain.QueryFactual, domain.ComplexitySimple, 3, domain.WebSearchUndecided},
		{"Which database stores the embeddings for the notes app", domain.QueryFactual, domain.ComplexityModerate, 3, domain.WebSearchUndecided},
		{"Which of the sixteen words in this very long query about nothing in particular should be counted here", domain.QueryFactual, domain.ComplexityComplex, 4, domain.WebSearchUndecided},
		{"Who won the 2024 election", domain.QueryFactual, domain.ComplexitySimple, 3, domain.WebSearchYes},
		{"Who is the latest maintainer of pgx", domain.QueryFactual, domain.ComplexitySimple, 3, domain.WebSearchYes},
	}

	for _, tc := range tests {
		got := analyzer.Analyze(tc.query)
		if got.QueryType != tc.queryType {
			t.Fatalf("%q: expected type %s, got %s", tc.query, tc.queryType, got.QueryType)
		}
		if got.Complexity != tc.complexity {
			t.Fatalf("%q: expected complexity %s, got %s", tc.query, tc.complexity, got.Complexity)
		}
		if got.RetrievalParams.TopK != tc.topK || got.RetrievalParams.MaxFinalChunks != tc.topK {
			t.Fatalf("%q: expected top_k %d, got %+v", tc.query, tc.topK, got.RetrievalParams)
		}
		if got.RetrievalParams.InitialK != 10 {
			t.Fatalf("%q: expected initial_k 10, got %d", tc.query, got.RetrievalParams.InitialK)
		}
		if got.NeedsWebSearch != tc.web {
			t.Fatalf("%q: expected web decision %s, got %s", tc.query, tc.web, got.NeedsWebSearch)
		}
	}
}
