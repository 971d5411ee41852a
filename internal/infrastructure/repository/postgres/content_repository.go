package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kirillkom/polis-rag/internal/core/domain"
)

// ContentRepository writes sections, chunks and embeddings of one segmentation run.
type ContentRepository struct {
	db        *sql.DB
	dimension int
}

func NewContentRepository(db *sql.DB, dimension int) *ContentRepository {
	return &ContentRepository{db: db, dimension: dimension}
}

// ReplaceDocumentContent deletes whatever a previous run stored for the document and inserts the
// new run in the same transaction, so readers see either the old or the new content. The document
// row stays locked for the transaction and must still carry the run's claim.
func (r *ContentRepository) ReplaceDocumentContent(
	ctx context.Context,
	claim string,
	doc *domain.Document,
	seg domain.Segmentation,
	embeddings []domain.Embedding,
) error {
	if doc == nil {
		return domain.WrapError(domain.ErrInvalidInput, "replace document content", fmt.Errorf("document is nil"))
	}
	if len(embeddings) != len(seg.Chunks) {
		return domain.WrapError(domain.ErrInvalidInput, "replace document content",
			fmt.Errorf("chunks=%d embeddings=%d", len(seg.Chunks), len(embeddings)))
	}
	for _, emb := range embeddings {
		if r.dimension > 0 && len(emb.Vector) != r.dimension {
			return domain.WrapError(domain.ErrDimensionMismatch, "replace document content",
				fmt.Errorf("chunk=%s expected=%d got=%d", emb.ChunkID, r.dimension, len(emb.Vector)))
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin content tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT claim_token FROM documents WHERE id = $1 FOR UPDATE`, doc.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrDocumentNotFound, "replace document content", fmt.Errorf("id=%s", doc.ID))
	}
	if err != nil {
		return fmt.Errorf("lock document: %w", err)
	}
	if current != claim {
		return domain.WrapError(domain.ErrClaimLost, "replace document content", fmt.Errorf("id=%s", doc.ID))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("delete previous chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sections WHERE document_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("delete previous sections: %w", err)
	}

	for _, section := range seg.Sections {
		_, err := tx.ExecContext(ctx, `
INSERT INTO sections (id, document_id, run_id, path, title, depth, start_page, end_page, ord, content)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, section.ID, doc.ID, seg.RunID, section.Path, section.Title, section.Depth,
			section.StartPage, section.EndPage, section.Order, section.Content)
		if err != nil {
			return fmt.Errorf("insert section %s: %w", section.ID, err)
		}
	}

	for i, chunk := range seg.Chunks {
		metadata, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO chunks (id, document_id, run_id, section_id, page, chunk_index, position, text, token_count, citation_label, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`, chunk.ID, doc.ID, seg.RunID, nullableString(chunk.SectionID), chunk.Page, chunk.Index, chunk.Position,
			chunk.Text, chunk.TokenCount, chunk.CitationLabel, metadata)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", chunk.ID, err)
		}

		emb := embeddings[i]
		_, err = tx.ExecContext(ctx, `
INSERT INTO chunk_embeddings (chunk_id, model, embedding)
VALUES ($1,$2,$3)
`, chunk.ID, emb.Model, pgvector.NewVector(emb.Vector))
		if err != nil {
			return fmt.Errorf("insert embedding %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit content tx: %w", err)
	}
	return nil
}

func nullableString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
