package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/polis-rag/internal/core/domain"
)

func TestIngestUploadSuccess(t *testing.T) {
	repo := &docRepoFake{}
	storage := &storageFake{}
	queue := &queueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	meta := domain.UploadMetadata{
		Title:          " Polisvoorwaarden AVB ",
		InsurerID:      "ins-7",
		InsurerName:    "Nationale Verzekeraar",
		LineOfBusiness: "liability",
	}
	doc, err := uc.Upload(context.Background(), "231 AVB.pdf", "application/pdf", meta, bytes.NewBufferString("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.ID == "" {
		t.Fatalf("expected document id")
	}
	if doc.Status != domain.StatusPending {
		t.Fatalf("expected status pending, got %s", doc.Status)
	}
	if repo.created == nil || repo.created.InsurerID != "ins-7" || repo.created.Title != "Polisvoorwaarden AVB" {
		t.Fatalf("unexpected created document: %+v", repo.created)
	}
	if len(queue.published) != 1 || queue.published[0] != doc.ID {
		t.Fatalf("expected queued doc id %s, got %v", doc.ID, queue.published)
	}
	if !strings.HasSuffix(storage.savedKey, "_231_AVB.pdf") {
		t.Fatalf("expected sanitized key suffix, got %s", storage.savedKey)
	}
	if storage.savedBody != "%PDF-1.4" {
		t.Fatalf("unexpected saved body %q", storage.savedBody)
	}
}

func TestIngestUploadRequiresFilename(t *testing.T) {
	uc := NewIngestDocumentUseCase(&docRepoFake{}, &storageFake{}, &queueFake{})
	_, err := uc.Upload(context.Background(), "  ", "application/pdf", domain.UploadMetadata{}, bytes.NewBufferString("x"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestIngestUploadQueueError(t *testing.T) {
	uc := NewIngestDocumentUseCase(&docRepoFake{}, &storageFake{}, &queueFake{err: errors.New("queue down")})

	_, err := uc.Upload(context.Background(), "polis.pdf", "application/pdf", domain.UploadMetadata{}, bytes.NewBufferString("x"))
	if err == nil || !strings.Contains(err.Error(), "publish ingestion event") {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestReprocessRequeuesCompletedDocument(t *testing.T) {
	repo := &docRepoFake{doc: &domain.Document{ID: "doc-1", Status: domain.StatusCompleted}}
	queue := &queueFake{}
	uc := NewIngestDocumentUseCase(repo, &storageFake{}, queue)

	doc, err := uc.Reprocess(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if doc.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", doc.Status)
	}
	if len(repo.statusCalls) != 1 || repo.statusCalls[0].status != domain.StatusPending {
		t.Fatalf("unexpected status calls: %+v", repo.statusCalls)
	}
	if len(queue.published) != 1 {
		t.Fatalf("expected one publish, got %d", len(queue.published))
	}
}

func TestReprocessRejectsDocumentInFlight(t *testing.T) {
	repo := &docRepoFake{doc: &domain.Document{ID: "doc-1", Status: domain.StatusProcessing}}
	queue := &queueFake{}
	uc := NewIngestDocumentUseCase(repo, &storageFake{}, queue)

	if _, err := uc.Reprocess(context.Background(), "doc-1"); !errors.Is(err, domain.ErrDocumentBusy) {
		t.Fatalf("expected busy error, got %v", err)
	}
	if len(queue.published) != 0 {
		t.Fatalf("busy document must not be queued")
	}
}

func TestReprocessUnknownDocument(t *testing.T) {
	uc := NewIngestDocumentUseCase(&docRepoFake{}, &storageFake{}, &queueFake{})
	if _, err := uc.Reprocess(context.Background(), "missing"); !errors.Is(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
