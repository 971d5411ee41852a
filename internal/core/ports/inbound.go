package ports

import (
	"context"
	"io"

	"github.com/kirillkom/polis-rag/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, meta domain.UploadMetadata, body io.Reader) (*domain.Document, error)
	Reprocess(ctx context.Context, documentID string) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// PassageRetriever turns a query into ranked, citable passages.
type PassageRetriever interface {
	Retrieve(ctx context.Context, req domain.RetrievalRequest) (*domain.RetrievalResponse, error)
}

// AnswerService hands retrieved passages to the answer generator.
type AnswerService interface {
	Answer(ctx context.Context, req domain.RetrievalRequest) (*domain.Answer, error)
}
