package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/kirillkom/polis-rag/internal/core/domain"
	"github.com/kirillkom/polis-rag/internal/core/ports"
)

// completedOverfetch widens the inner search so hidden documents do not starve the result.
const completedOverfetch = 3

// CompletedIndex fronts a vector index that stores no document status and drops hits of
// documents that are not completed in the documents table.
type CompletedIndex struct {
	next ports.ChunkIndex
	db   *sql.DB
}

func NewCompletedIndex(next ports.ChunkIndex, db *sql.DB) *CompletedIndex {
	return &CompletedIndex{next: next, db: db}
}

func (i *CompletedIndex) IndexDocument(ctx context.Context, doc *domain.Document, seg domain.Segmentation, embeddings []domain.Embedding) error {
	return i.next.IndexDocument(ctx, doc, seg, embeddings)
}

func (i *CompletedIndex) SearchChunks(
	ctx context.Context,
	queryVector []float32,
	limit int,
	filter domain.SearchFilter,
) ([]domain.SearchCandidate, error) {
	if limit <= 0 {
		limit = 10
	}
	hits, err := i.next.SearchChunks(ctx, queryVector, limit*completedOverfetch, filter)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return hits, nil
	}

	ids := make([]string, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, hit := range hits {
		if _, ok := seen[hit.DocumentID]; ok {
			continue
		}
		seen[hit.DocumentID] = struct{}{}
		ids = append(ids, hit.DocumentID)
	}

	completed, err := i.completedIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SearchCandidate, 0, min(limit, len(hits)))
	for _, hit := range hits {
		if len(out) == limit {
			break
		}
		if _, ok := completed[hit.DocumentID]; ok {
			out = append(out, hit)
		}
	}
	return out, nil
}

func (i *CompletedIndex) completedIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	rows, err := i.db.QueryContext(ctx, `
SELECT id FROM documents
WHERE status = 'completed' AND id = ANY(string_to_array($1, ','))
`, strings.Join(ids, ","))
	if err != nil {
		return nil, fmt.Errorf("query completed documents: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan completed document: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed documents: %w", err)
	}
	return out, nil
}
