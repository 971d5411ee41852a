package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kirillkom/polis-rag/internal/core/domain"
	"github.com/kirillkom/polis-rag/internal/core/ports"
	"github.com/kirillkom/polis-rag/internal/observability/logging"
)

const (
	StageLoad    = "load"
	StageExtract = "extract"
	StageSegment = "segment"
	StageEmbed   = "embed"
	StageStore   = "store"
	StageIndex   = "index"
)

// ProcessObserver receives per-stage timings. Implemented by the worker metrics.
type ProcessObserver interface {
	ObserveStage(stage string, duration time.Duration, err error)
	ObserveExtraction(method string, lowConfidence bool)
}

type ProcessDocumentUseCase struct {
	repo       ports.DocumentRepository
	storage    ports.ObjectStorage
	extractor  ports.TextExtractor
	segmenter  ports.Segmenter
	embedder   ports.ChunkEmbedder
	content    ports.ContentStore
	index      ports.ChunkIndex
	observer   ProcessObserver
	claimStale time.Duration
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	segmenter ports.Segmenter,
	embedder ports.ChunkEmbedder,
	content ports.ContentStore,
	index ports.ChunkIndex,
	claimStale time.Duration,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:       repo,
		storage:    storage,
		extractor:  extractor,
		segmenter:  segmenter,
		embedder:   embedder,
		content:    content,
		index:      index,
		claimStale: claimStale,
	}
}

func (uc *ProcessDocumentUseCase) SetObserver(observer ProcessObserver) {
	uc.observer = observer
}

// ProcessByID runs extract, segment, embed and store for one document. A document already
// claimed by another run is skipped without error, and so is a run whose claim was taken over
// midway; the newer run owns the document's status.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	ctx = logging.WithAttrs(ctx, "document_id", documentID)
	logger := logging.FromContext(ctx)

	claim, err := uc.repo.ClaimForProcessing(ctx, documentID, uc.claimStale)
	if err != nil {
		if errors.Is(err, domain.ErrDocumentBusy) {
			logger.Info("document_claim_skipped", "reason", err.Error())
			return nil
		}
		return fmt.Errorf("claim document: %w", err)
	}

	started := time.Now()
	result, err := uc.processPipeline(ctx, documentID, claim)
	if errors.Is(err, domain.ErrClaimLost) {
		logger.Warn("document_claim_lost", "error", err)
		return nil
	}
	if err != nil {
		logger.Error("document_processing_failed",
			"duration_ms", float64(time.Since(started).Microseconds())/1000.0,
			"error", err,
		)
		if failErr := uc.markFailed(ctx, documentID, claim, err); failErr != nil {
			if errors.Is(failErr, domain.ErrClaimLost) {
				logger.Warn("document_claim_lost", "error", failErr)
				return nil
			}
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.MarkCompleted(context.WithoutCancel(ctx), documentID, claim, result); err != nil {
		if errors.Is(err, domain.ErrClaimLost) {
			logger.Warn("document_claim_lost", "error", err)
			return nil
		}
		return fmt.Errorf("set status=completed: %w", err)
	}
	logger.Info("document_processing_completed",
		"duration_ms", float64(time.Since(started).Microseconds())/1000.0,
		"pages", result.PageCount,
		"extraction_method", result.ExtractionMethod,
		"low_confidence", result.LowConfidence,
	)
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID, claim string) (domain.ProcessingResult, error) {
	var (
		doc        *domain.Document
		data       []byte
		extraction domain.Extraction
		seg        domain.Segmentation
		embeddings []domain.Embedding
	)

	err := uc.stage(ctx, StageLoad, func(ctx context.Context) error {
		var err error
		doc, data, err = uc.loadDocument(ctx, documentID)
		return err
	})
	if err != nil {
		return domain.ProcessingResult{}, err
	}

	err = uc.stage(ctx, StageExtract, func(ctx context.Context) error {
		extraction = uc.extractor.Extract(ctx, data, doc.Filename)
		if uc.observer != nil {
			uc.observer.ObserveExtraction(extraction.Method, extraction.LowConfidence)
		}
		return nil
	})
	if err != nil {
		return domain.ProcessingResult{}, err
	}

	err = uc.stage(ctx, StageSegment, func(context.Context) error {
		seg = uc.segmenter.Segment(doc, extraction)
		if len(seg.Chunks) == 0 {
			return domain.WrapError(domain.ErrInvalidInput, "segment document", errors.New("segmentation produced zero chunks"))
		}
		logging.FromContext(ctx).Info("document_segmented",
			"run_id", seg.RunID,
			"sections", len(seg.Sections),
			"chunks", len(seg.Chunks),
		)
		return nil
	})
	if err != nil {
		return domain.ProcessingResult{}, err
	}

	err = uc.stage(ctx, StageEmbed, func(ctx context.Context) error {
		var err error
		embeddings, err = uc.embedder.EmbedChunks(ctx, doc, seg)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if len(embeddings) != len(seg.Chunks) {
			return domain.WrapError(domain.ErrEmbeddingFailed, "embed chunks",
				fmt.Errorf("embeddings/chunks mismatch: %d/%d", len(embeddings), len(seg.Chunks)))
		}
		return nil
	})
	if err != nil {
		return domain.ProcessingResult{}, err
	}

	err = uc.stage(ctx, StageStore, func(ctx context.Context) error {
		if err := uc.content.ReplaceDocumentContent(ctx, claim, doc, seg, embeddings); err != nil {
			return fmt.Errorf("replace document content: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.ProcessingResult{}, err
	}

	err = uc.stage(ctx, StageIndex, func(ctx context.Context) error {
		if err := uc.index.IndexDocument(ctx, doc, seg, embeddings); err != nil {
			return fmt.Errorf("index document: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.ProcessingResult{}, err
	}

	return domain.ProcessingResult{
		PageCount:        extraction.PageCount(),
		ExtractionMethod: extraction.Method,
		LowConfidence:    extraction.LowConfidence,
	}, nil
}

// stage refuses to start once ctx is done, so a cancelled run never begins a new stage.
func (uc *ProcessDocumentUseCase) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("stage %s: %w", name, err)
	}
	ctx = logging.WithAttrs(ctx, "stage", name)

	started := time.Now()
	err := fn(ctx)
	duration := time.Since(started)
	if uc.observer != nil {
		uc.observer.ObserveStage(name, duration, err)
	}
	if err != nil {
		return fmt.Errorf("stage %s: %w", name, err)
	}
	logging.FromContext(ctx).Debug("stage_completed", "duration_ms", float64(duration.Microseconds())/1000.0)
	return nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, []byte, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch document by id: %w", err)
	}
	reader, err := uc.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("read source document: %w", err)
	}
	return doc, data, nil
}

// markFailed still runs when ctx has been cancelled or timed out.
func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID, claim string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.repo.MarkFailed(context.WithoutCancel(ctx), documentID, claim, processErr.Error())
}
