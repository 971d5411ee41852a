package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/polis-rag/internal/core/domain"
	"github.com/kirillkom/polis-rag/internal/core/ports"
	"github.com/kirillkom/polis-rag/internal/observability/logging"
)

type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	meta domain.UploadMetadata,
	body io.Reader,
) (*domain.Document, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("filename is required"))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:             id,
		Title:          strings.TrimSpace(meta.Title),
		Filename:       filename,
		MimeType:       mimeType,
		StoragePath:    storageKey,
		InsurerID:      strings.TrimSpace(meta.InsurerID),
		InsurerName:    strings.TrimSpace(meta.InsurerName),
		ProductName:    strings.TrimSpace(meta.ProductName),
		LineOfBusiness: strings.TrimSpace(meta.LineOfBusiness),
		DocumentType:   strings.TrimSpace(meta.DocumentType),
		Status:         domain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	logging.FromContext(ctx).Info("document_uploaded",
		"document_id", doc.ID,
		"filename", doc.Filename,
		"insurer_id", doc.InsurerID,
		"line_of_business", doc.LineOfBusiness,
	)
	return doc, nil
}

// Reprocess queues an existing document again. The next run supersedes the stored content.
func (uc *IngestDocumentUseCase) Reprocess(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status == domain.StatusProcessing {
		return nil, domain.WrapError(domain.ErrDocumentBusy, "reprocess document", fmt.Errorf("document %s", documentID))
	}
	if err := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusPending, ""); err != nil {
		return nil, fmt.Errorf("set status=pending: %w", err)
	}
	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}
	doc.Status = domain.StatusPending
	doc.Error = ""

	logging.FromContext(ctx).Info("document_reprocess_queued", "document_id", doc.ID)
	return doc, nil
}

func (uc *IngestDocumentUseCase) GetByID(ctx context.Context, documentID string) (*domain.Document, error) {
	return uc.repo.GetByID(ctx, documentID)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.pdf"
	}
	return base
}
