package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/polis-rag/internal/core/domain"
)

type stubIndex struct {
	hits      []domain.SearchCandidate
	err       error
	lastLimit int
}

func (s *stubIndex) IndexDocument(context.Context, *domain.Document, domain.Segmentation, []domain.Embedding) error {
	return nil
}

func (s *stubIndex) SearchChunks(_ context.Context, _ []float32, limit int, _ domain.SearchFilter) ([]domain.SearchCandidate, error) {
	s.lastLimit = limit
	return s.hits, s.err
}

func TestCompletedIndexHidesDocumentsThatAreNotCompleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	inner := &stubIndex{hits: []domain.SearchCandidate{
		{ChunkID: "old-1", DocumentID: "doc-failed", Score: 0.95},
		{ChunkID: "c-1", DocumentID: "doc-ok", Score: 0.9},
		{ChunkID: "p-1", DocumentID: "doc-pending", Score: 0.85},
		{ChunkID: "c-2", DocumentID: "doc-ok", Score: 0.8},
	}}
	mock.ExpectQuery("SELECT id FROM documents").
		WithArgs("doc-failed,doc-ok,doc-pending").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("doc-ok"))

	got, err := NewCompletedIndex(inner, db).SearchChunks(context.Background(), []float32{1}, 5, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("SearchChunks() error = %v", err)
	}
	if inner.lastLimit != 15 {
		t.Fatalf("expected overfetch limit 15, got %d", inner.lastLimit)
	}
	if len(got) != 2 || got[0].ChunkID != "c-1" || got[1].ChunkID != "c-2" {
		t.Fatalf("expected only completed document hits, got %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCompletedIndexTrimsToLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	inner := &stubIndex{hits: []domain.SearchCandidate{
		{ChunkID: "a", DocumentID: "doc-1"},
		{ChunkID: "b", DocumentID: "doc-1"},
		{ChunkID: "c", DocumentID: "doc-1"},
	}}
	mock.ExpectQuery("SELECT id FROM documents").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("doc-1"))

	got, err := NewCompletedIndex(inner, db).SearchChunks(context.Background(), []float32{1}, 2, domain.SearchFilter{})
	if err != nil {
		t.Fatalf("SearchChunks() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(got))
	}
}

func TestCompletedIndexPropagatesSearchError(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	want := errors.New("qdrant down")
	_, err = NewCompletedIndex(&stubIndex{err: want}, db).SearchChunks(context.Background(), []float32{1}, 5, domain.SearchFilter{})
	if !errors.Is(err, want) {
		t.Fatalf("expected inner error, got %v", err)
	}
}
