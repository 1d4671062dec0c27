package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
)

// ChunkStore serves both rankings from one table: pgvector cosine distance
// for semantic search and ts_rank_cd for keyword search.
type ChunkStore struct {
	db *sql.DB
}

func NewChunkStore(db *sql.DB) *ChunkStore {
	return &ChunkStore{db: db}
}

func (s *ChunkStore) VectorSearch(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.RankedResult, error) {
	if len(queryVector) == 0 || limit <= 0 {
		return []domain.RankedResult{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, embedding <=> $1 AS distance
FROM chunks
WHERE embedding IS NOT NULL AND ($3 = '' OR source_type <> $3)
ORDER BY distance ASC, id ASC
LIMIT $2`, pgvector.NewVector(queryVector), limit, string(filter.ExcludeSourceType))
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return scanRanked(rows, "vector search")
}

func (s *ChunkStore) KeywordSearch(ctx context.Context, queryTokens []string, limit int, filter domain.SearchFilter) ([]domain.RankedResult, error) {
	text := strings.TrimSpace(strings.Join(queryTokens, " "))
	if text == "" || limit <= 0 {
		return []domain.RankedResult{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT c.id, ts_rank_cd(c.tsv, q) AS score
FROM chunks c, plainto_tsquery('simple', $1) q
WHERE c.tsv @@ q AND ($3 = '' OR c.source_type <> $3)
ORDER BY score DESC, c.id ASC
LIMIT $2`, text, limit, string(filter.ExcludeSourceType))
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return scanRanked(rows, "keyword search")
}

func (s *ChunkStore) GetChunks(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return []domain.Chunk{}, nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, source_type, source_id, COALESCE(source_title, ''), chunk_index, text, token_count
FROM chunks
WHERE id IN (`+placeholders(1, len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]domain.Chunk, len(ids))
	for rows.Next() {
		var (
			c          domain.Chunk
			sourceType string
		)
		if err := rows.Scan(&c.ID, &sourceType, &c.SourceID, &c.SourceTitle, &c.ChunkIndex, &c.Text, &c.TokenCount); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.SourceType = domain.SourceType(sourceType)
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	out := make([]domain.Chunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func scanRanked(rows *sql.Rows, op string) ([]domain.RankedResult, error) {
	defer rows.Close()

	out := make([]domain.RankedResult, 0)
	for rows.Next() {
		var r domain.RankedResult
		if err := rows.Scan(&r.ChunkID, &r.Score); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", op, err)
		}
		r.Rank = len(out) + 1
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", op, err)
	}
	return out, nil
}
