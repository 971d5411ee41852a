package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/polis-rag/internal/core/domain"
)

// ChunkIndex answers nearest-neighbour queries from the chunk_embeddings table.
type ChunkIndex struct {
	db *sql.DB
}

func NewChunkIndex(db *sql.DB) *ChunkIndex {
	return &ChunkIndex{db: db}
}

// IndexDocument is a no-op: embeddings are already written by ContentRepository.
func (i *ChunkIndex) IndexDocument(context.Context, *domain.Document, domain.Segmentation, []domain.Embedding) error {
	return nil
}

func (i *ChunkIndex) SearchChunks(
	ctx context.Context,
	queryVector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.SearchCandidate, error) {
	if len(queryVector) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search chunks", fmt.Errorf("query vector is empty"))
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := i.db.QueryContext(ctx, `
SELECT c.id, c.document_id, COALESCE(c.section_id, ''), c.page, c.position, c.text, c.token_count, c.citation_label,
	COALESCE(s.path, ''), COALESCE(s.title, ''), d.title, d.product_name, d.insurer_name, d.line_of_business,
	1 - (e.embedding <=> $1) AS score, e.embedding
FROM chunk_embeddings e
JOIN chunks c ON c.id = e.chunk_id
JOIN documents d ON d.id = c.document_id
LEFT JOIN sections s ON s.id = c.section_id
WHERE d.status = 'completed'
	AND ($2::text = '' OR d.insurer_id = $2)
	AND ($3::text = '' OR d.line_of_business = $3)
ORDER BY e.embedding <=> $1
LIMIT $4
`, pgvector.NewVector(queryVector), filter.InsurerID, filter.LineOfBusiness, limit)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SearchCandidate, 0, limit)
	for rows.Next() {
		var c domain.SearchCandidate
		var vec pgvector.Vector
		if err := rows.Scan(
			&c.ChunkID, &c.DocumentID, &c.SectionID, &c.Page, &c.Position, &c.Text, &c.TokenCount, &c.CitationLabel,
			&c.SectionPath, &c.SectionTitle, &c.DocumentTitle, &c.ProductName, &c.InsurerName, &c.LineOfBusiness,
			&c.Score, &vec,
		); err != nil {
			return nil, fmt.Errorf("scan chunk candidate: %w", err)
		}
		c.Vector = vec.Slice()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunk candidates: %w", err)
	}
	return out, nil
}
