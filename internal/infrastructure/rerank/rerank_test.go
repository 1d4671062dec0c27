package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
)

func TestCrossEncoderRestoresInputOrder(t *testing.T) {
	var captured rerankRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/rerank" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"results":[
			{"index":2,"relevance_score":0.9},
			{"index":0,"relevance_score":0.5},
			{"index":1,"relevance_score":0.1}
		]}`))
	}))
	defer server.Close()

	encoder := NewCrossEncoder(server.URL, "bge-reranker", nil)
	scores, err := encoder.Score(context.Background(), "q", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if len(scores) != 3 || scores[0] != 0.5 || scores[1] != 0.1 || scores[2] != 0.9 {
		t.Fatalf("unexpected scores %v", scores)
	}
	if captured.Model != "bge-reranker" || captured.TopN != 3 || len(captured.Documents) != 3 {
		t.Fatalf("unexpected request %+v", captured)
	}
}

func TestCrossEncoderRejectsIncompleteResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"index":0,"relevance_score":0.5}]}`))
	}))
	defer server.Close()

	_, err := NewCrossEncoder(server.URL, "", nil).Score(context.Background(), "q", []string{"a", "b"})
	if err == nil {
		t.Fatalf("expected error for missing score")
	}
}

func TestCrossEncoderUnavailableIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "warming up", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewCrossEncoder(server.URL, "", nil).Score(context.Background(), "q", []string{"a"})
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestCrossEncoderEmptyInputSkipsRequest(t *testing.T) {
	scores, err := NewCrossEncoder("http://127.0.0.1:1", "", nil).Score(context.Background(), "q", nil)
	if err != nil || len(scores) != 0 {
		t.Fatalf("expected empty scores, got %v, %v", scores, err)
	}
}

func TestLexicalScoresOverlapAndPhrase(t *testing.T) {
	scores, err := NewLexical().Score(context.Background(), "circuit breaker", []string{
		"The circuit breaker opens after failures.",
		"A breaker panel in the basement.",
		"Nothing relevant here.",
	})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if math.Abs(scores[0]-1.0) > 1e-9 {
		t.Fatalf("expected full overlap plus phrase bonus, got %v", scores[0])
	}
	if math.Abs(scores[1]-0.35) > 1e-9 {
		t.Fatalf("expected half overlap, got %v", scores[1])
	}
	if scores[2] != 0 {
		t.Fatalf("expected zero score, got %v", scores[2])
	}
}
