package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
)

func TestVectorSearchConvertsScoreToDistance(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/chunks/points/query" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"result":{"points":[
			{"id":"p1","score":0.9,"payload":{"chunk_id":"c1"}},
			{"id":"p2","score":0.4,"payload":{"chunk_id":"c2"}}
		]}}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks", nil)
	got, err := client.VectorSearch(context.Background(), []float32{0.1, 0.2}, 5, domain.SearchFilter{ExcludeSourceType: domain.SourceNote})
	if err != nil {
		t.Fatalf("VectorSearch() error = %v", err)
	}
	if len(got) != 2 || got[0].ChunkID != "c1" || got[1].ChunkID != "c2" {
		t.Fatalf("unexpected results %+v", got)
	}
	if math.Abs(got[0].Score-0.1) > 1e-9 || math.Abs(got[1].Score-0.6) > 1e-9 {
		t.Fatalf("expected distances 0.1 and 0.6, got %+v", got)
	}
	if got[0].Rank != 1 || got[1].Rank != 2 {
		t.Fatalf("expected 1-based ranks, got %+v", got)
	}
	if captured["using"] != denseVectorName {
		t.Fatalf("expected dense vector query, got %v", captured["using"])
	}
	filter, _ := captured["filter"].(map[string]any)
	mustNot, _ := filter["must_not"].([]any)
	if len(mustNot) != 1 {
		t.Fatalf("expected must_not source_type filter, got %v", captured["filter"])
	}
}

func TestKeywordSearchUsesSparseVector(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"result":{"points":[{"id":"p1","score":3.5,"payload":{"chunk_id":"c9"}}]}}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks", nil)
	got, err := client.KeywordSearch(context.Background(), []string{"goroutine", "leak"}, 10, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("KeywordSearch() error = %v", err)
	}
	if len(got) != 1 || got[0].ChunkID != "c9" || got[0].Score != 3.5 {
		t.Fatalf("unexpected results %+v", got)
	}
	if captured["using"] != sparseVectorName {
		t.Fatalf("expected bm25 vector query, got %v", captured["using"])
	}
	if _, ok := captured["filter"]; ok {
		t.Fatalf("expected no filter for empty SearchFilter")
	}
	query, _ := captured["query"].(map[string]any)
	if indices, _ := query["indices"].([]any); len(indices) != 2 {
		t.Fatalf("expected 2 sparse indices, got %v", captured["query"])
	}
}

func TestKeywordSearchSkipsEmptyQuery(t *testing.T) {
	client := New("http://127.0.0.1:1", "chunks", nil)
	got, err := client.KeywordSearch(context.Background(), nil, 10, domain.SearchFilter{})
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result without a request, got %v, %v", got, err)
	}
}

func TestGetChunksPreservesRequestOrder(t *testing.T) {
	var captured struct {
		IDs []string `json:"ids"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/collections/chunks/points" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"result":[
			{"id":"x","payload":{"chunk_id":"b","source_type":"note","source_id":"n1","chunk_index":2,"text":"second","token_count":1}},
			{"id":"y","payload":{"chunk_id":"a","source_type":"document","source_id":"d1","source_title":"Guide","chunk_index":0,"text":"first"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks", nil)
	got, err := client.GetChunks(context.Background(), []string{"a", "missing", "b"})
	if err != nil {
		t.Fatalf("GetChunks() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("unexpected chunks %+v", got)
	}
	if got[0].SourceType != domain.SourceDocument || got[0].SourceTitle != "Guide" || got[1].ChunkIndex != 2 {
		t.Fatalf("payload not mapped: %+v", got)
	}
	if len(captured.IDs) != 3 || captured.IDs[0] != PointID("a") {
		t.Fatalf("expected hashed point ids, got %v", captured.IDs)
	}
}

func TestPointIDKeepsUUIDs(t *testing.T) {
	id := "6f1c2a4e-8e3b-4d8f-9b7a-2f0d5c1e3a90"
	if PointID(id) != id {
		t.Fatalf("expected uuid passthrough, got %s", PointID(id))
	}
	if PointID("chunk-1") != PointID("chunk-1") || PointID("chunk-1") == PointID("chunk-2") {
		t.Fatalf("expected deterministic distinct ids")
	}
}

func TestSearchErrorIncludesBodyAndIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL, "chunks", nil)
	_, err := client.VectorSearch(context.Background(), []float32{1}, 3, domain.SearchFilter{})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}
