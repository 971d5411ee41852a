package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/polis-rag/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// ClaimForProcessing moves the document to processing unless another run holds a fresh claim.
	// The returned token fences the run's later writes; a superseded run gets ErrClaimLost.
	ClaimForProcessing(ctx context.Context, id string, staleAfter time.Duration) (string, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	MarkCompleted(ctx context.Context, id, claim string, result domain.ProcessingResult) error
	MarkFailed(ctx context.Context, id, claim, errMessage string) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor recovers page text from raw file bytes. It never fails.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, filenameHint string) domain.Extraction
}

// Segmenter detects sections and produces bounded chunks.
type Segmenter interface {
	Segment(doc *domain.Document, extraction domain.Extraction) domain.Segmentation
}

// EmbeddingProvider builds vectors for raw strings.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChunkEmbedder enriches and embeds chunks in input order.
type ChunkEmbedder interface {
	EmbedChunks(ctx context.Context, doc *domain.Document, seg domain.Segmentation) ([]domain.Embedding, error)
}

// ContentStore writes one run's sections, chunks and embeddings, superseding prior runs.
type ContentStore interface {
	ReplaceDocumentContent(ctx context.Context, claim string, doc *domain.Document, seg domain.Segmentation, embeddings []domain.Embedding) error
}

// ChunkIndex performs nearest-neighbour search over completed documents.
type ChunkIndex interface {
	IndexDocument(ctx context.Context, doc *domain.Document, seg domain.Segmentation, embeddings []domain.Embedding) error
	SearchChunks(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.SearchCandidate, error)
}

// Reranker scores passages against a query with a pairwise model.
type Reranker interface {
	Rerank(ctx context.Context, query string, passages []string) ([]float64, error)
}

// AnswerGenerator creates the final user-facing answer.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, passages []domain.RankedPassage) (string, error)
}

// ImageDescriber asks a vision capable model to describe a file.
type ImageDescriber interface {
	Describe(ctx context.Context, prompt string, data []byte) (string, error)
}
