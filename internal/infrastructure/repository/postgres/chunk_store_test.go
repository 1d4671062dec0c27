package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/knowledge-assistant/internal/core/ports"
)

func newStoreWithMock(t *testing.T) (*ChunkStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewChunkStore(db), mock, func() { _ = db.Close() }
}

func TestVectorSearchRanksByDistance(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, embedding <=> \\$1 AS distance").
		WithArgs(sqlmock.AnyArg(), 5, "note").
		WillReturnRows(sqlmock.NewRows([]string{"id", "distance"}).
			AddRow("c1", 0.12).
			AddRow("c2", 0.4))

	got, err := store.VectorSearch(context.Background(), []float32{0.1, 0.2}, 5, domain.SearchFilter{ExcludeSourceType: domain.SourceNote})
	if err != nil {
		t.Fatalf("VectorSearch() error = %v", err)
	}
	if len(got) != 2 || got[0].ChunkID != "c1" || got[0].Rank != 1 || got[1].Rank != 2 || got[1].Score != 0.4 {
		t.Fatalf("unexpected results %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestKeywordSearchJoinsTokens(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectQuery("ts_rank_cd").
		WithArgs("goroutine leak", 10, "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "score"}).AddRow("c7", 0.8))

	got, err := store.KeywordSearch(context.Background(), []string{"goroutine", "leak"}, 10, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("KeywordSearch() error = %v", err)
	}
	if len(got) != 1 || got[0].ChunkID != "c7" {
		t.Fatalf("unexpected results %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestKeywordSearchSkipsEmptyTokens(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	got, err := store.KeywordSearch(context.Background(), nil, 10, domain.SearchFilter{})
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v, %v", got, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetChunksKeepsRequestedOrder(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	mock.ExpectQuery("FROM chunks").
		WithArgs("b", "a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "source_type", "source_id", "source_title", "chunk_index", "text", "token_count"}).
			AddRow("a", "document", "d1", "Guide", 0, "alpha", 1).
			AddRow("b", "note", "n1", "", 3, "beta", 1))

	got, err := store.GetChunks(context.Background(), []string{"b", "a"})
	if err != nil {
		t.Fatalf("GetChunks() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[0].SourceType != domain.SourceNote || got[1].SourceTitle != "Guide" {
		t.Fatalf("unexpected chunks %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestVectorSearchWrapsQueryError(t *testing.T) {
	store, mock, done := newStoreWithMock(t)
	defer done()

	boom := errors.New("connection reset")
	mock.ExpectQuery("SELECT id, embedding").WillReturnError(boom)

	_, err := store.VectorSearch(context.Background(), []float32{1}, 3, domain.SearchFilter{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
}

func TestSourceTitlesGroupsByType(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	catalog := NewSourceCatalog(db)

	mock.ExpectQuery("FROM documents").
		WithArgs("d1", "d2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow("d1", "Design Doc").AddRow("d2", nil))
	mock.ExpectQuery("FROM notes").
		WithArgs("n1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow("n1", "Groceries"))

	titles, err := catalog.SourceTitles(context.Background(), []ports.SourceRef{
		{Type: domain.SourceDocument, ID: "d1"},
		{Type: domain.SourceNote, ID: "n1"},
		{Type: domain.SourceWeb, ID: "https://example.com"},
		{Type: domain.SourceDocument, ID: "d2"},
	})
	if err != nil {
		t.Fatalf("SourceTitles() error = %v", err)
	}
	if titles["document:d1"] != "Design Doc" || titles["note:n1"] != "Groceries" {
		t.Fatalf("unexpected titles %v", titles)
	}
	if _, ok := titles["document:d2"]; ok {
		t.Fatalf("null title must be left unresolved, got %v", titles)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
