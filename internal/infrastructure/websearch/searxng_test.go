package websearch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
)

func TestSearchTruncatesAndMapsResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("format") != "json" || r.URL.Query().Get("q") != "go generics" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"results":[
			{"title":" Generics ","url":"https://go.dev/doc/tutorial/generics","content":"Tutorial"},
			{"title":"no url","url":"","content":"skip me"},
			{"title":"Spec","url":"https://go.dev/ref/spec","content":"Type parameters"},
			{"title":"Blog","url":"https://go.dev/blog/intro-generics","content":"Intro"}
		]}`))
	}))
	defer server.Close()

	results, err := NewSearxNG(server.URL, nil).Search(context.Background(), "go generics", 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %+v", results)
	}
	if results[0].Title != "Generics" || results[0].Snippet != "Tutorial" || results[1].URL != "https://go.dev/ref/spec" {
		t.Fatalf("unexpected mapping %+v", results)
	}
}

func TestSearchRejectsBlankQuery(t *testing.T) {
	_, err := NewSearxNG("http://127.0.0.1:1", nil).Search(context.Background(), "  ", 5)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSearchRateLimitedIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewSearxNG(server.URL, nil).Search(context.Background(), "q", 5)
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}
