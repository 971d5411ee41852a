package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kirillkom/polis-rag/internal/core/domain"
)

type DocumentRepository struct {
	db    *sql.DB
	now   func() time.Time
	token func() string
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{
		db:    db,
		now:   func() time.Time { return time.Now().UTC() },
		token: uuid.NewString,
	}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, title, filename, mime_type, storage_path, insurer_id, insurer_name, product_name,
	line_of_business, document_type, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		doc.ID, doc.Title, doc.Filename, doc.MimeType, doc.StoragePath, doc.InsurerID, doc.InsurerName, doc.ProductName,
		doc.LineOfBusiness, doc.DocumentType, string(doc.Status), doc.Error, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, title, filename, mime_type, storage_path, insurer_id, insurer_name, product_name,
	line_of_business, document_type, status, page_count, extraction_method, low_confidence,
	error_message, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var doc domain.Document
	var status string
	err := row.Scan(
		&doc.ID, &doc.Title, &doc.Filename, &doc.MimeType, &doc.StoragePath, &doc.InsurerID, &doc.InsurerName, &doc.ProductName,
		&doc.LineOfBusiness, &doc.DocumentType, &status, &doc.PageCount, &doc.ExtractionMethod, &doc.LowConfidence,
		&doc.Error, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

// ClaimForProcessing succeeds when the document is not processing, or when the previous claim is
// older than staleAfter. Each claim gets a fresh token; taking over a stale claim replaces it.
func (r *DocumentRepository) ClaimForProcessing(ctx context.Context, id string, staleAfter time.Duration) (string, error) {
	now := r.now()
	claim := r.token()
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = '', claim_token = $5, updated_at = $3
WHERE id = $1 AND (status <> $2 OR updated_at < $4)
`, id, string(domain.StatusProcessing), now, now.Add(-staleAfter), claim)
	if err != nil {
		return "", fmt.Errorf("claim document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("claim document rows affected: %w", err)
	}
	if affected > 0 {
		return claim, nil
	}

	var status string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.WrapError(domain.ErrDocumentNotFound, "claim document", fmt.Errorf("id=%s", id))
	}
	if err != nil {
		return "", fmt.Errorf("read document status: %w", err)
	}
	return "", domain.WrapError(domain.ErrDocumentBusy, "claim document", fmt.Errorf("id=%s status=%s", id, status))
}

// UpdateStatus is unfenced; it serves transitions made outside a processing run.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, r.now())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return expectOneRow(res, "update document status", id)
}

func (r *DocumentRepository) MarkCompleted(ctx context.Context, id, claim string, result domain.ProcessingResult) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, page_count = $3, extraction_method = $4, low_confidence = $5, error_message = '', updated_at = $6
WHERE id = $1 AND status = $7 AND claim_token = $8
`, id, string(domain.StatusCompleted), result.PageCount, result.ExtractionMethod, result.LowConfidence, r.now(),
		string(domain.StatusProcessing), claim)
	if err != nil {
		return fmt.Errorf("mark document completed: %w", err)
	}
	return r.expectClaimed(ctx, res, "mark document completed", id)
}

func (r *DocumentRepository) MarkFailed(ctx context.Context, id, claim, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1 AND status = $5 AND claim_token = $6
`, id, string(domain.StatusFailed), errMessage, r.now(), string(domain.StatusProcessing), claim)
	if err != nil {
		return fmt.Errorf("mark document failed: %w", err)
	}
	return r.expectClaimed(ctx, res, "mark document failed", id)
}

// expectClaimed tells a vanished document apart from a claim that another run took over.
func (r *DocumentRepository) expectClaimed(ctx context.Context, res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected > 0 {
		return nil
	}
	var exists bool
	err = r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%s: check document: %w", operation, err)
	}
	if !exists {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return domain.WrapError(domain.ErrClaimLost, operation, fmt.Errorf("id=%s", id))
}

func expectOneRow(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}
