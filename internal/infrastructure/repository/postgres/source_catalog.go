package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/knowledge-assistant/internal/core/ports"
)

// SourceCatalog looks up display titles in the tables the ingestion
// pipeline maintains. Source types without a table are left unresolved.
type SourceCatalog struct {
	db *sql.DB
}

func NewSourceCatalog(db *sql.DB) *SourceCatalog {
	return &SourceCatalog{db: db}
}

var titleQueries = map[domain.SourceType]string{
	domain.SourceNote:     `SELECT id, title FROM notes WHERE id IN (%s)`,
	domain.SourceDocument: `SELECT id, COALESCE(NULLIF(title, ''), filename) FROM documents WHERE id IN (%s)`,
}

func (c *SourceCatalog) SourceTitles(ctx context.Context, refs []ports.SourceRef) (map[string]string, error) {
	byType := make(map[domain.SourceType][]any)
	order := make([]domain.SourceType, 0, 2)
	for _, ref := range refs {
		if _, ok := titleQueries[ref.Type]; !ok || ref.ID == "" {
			continue
		}
		if _, seen := byType[ref.Type]; !seen {
			order = append(order, ref.Type)
		}
		byType[ref.Type] = append(byType[ref.Type], ref.ID)
	}

	titles := make(map[string]string, len(refs))
	for _, sourceType := range order {
		ids := byType[sourceType]
		query := fmt.Sprintf(titleQueries[sourceType], placeholders(1, len(ids)))
		if err := c.collect(ctx, sourceType, query, ids, titles); err != nil {
			return nil, err
		}
	}
	return titles, nil
}

func (c *SourceCatalog) collect(ctx context.Context, sourceType domain.SourceType, query string, ids []any, dst map[string]string) error {
	rows, err := c.db.QueryContext(ctx, query, ids...)
	if err != nil {
		return fmt.Errorf("query %s titles: %w", sourceType, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var title sql.NullString
		if err := rows.Scan(&id, &title); err != nil {
			return fmt.Errorf("scan %s title: %w", sourceType, err)
		}
		if title.Valid && title.String != "" {
			dst[ports.SourceRef{Type: sourceType, ID: id}.Key()] = title.String
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s titles: %w", sourceType, err)
	}
	return nil
}
