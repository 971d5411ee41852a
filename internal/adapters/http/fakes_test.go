package httpadapter

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/polis-rag/internal/config"
	"github.com/kirillkom/polis-rag/internal/core/domain"
)

type ingestFake struct {
	err       error
	gotMeta   domain.UploadMetadata
	gotBody   []byte
	reprocess map[string]error
}

func (f *ingestFake) Upload(_ context.Context, filename, mimeType string, meta domain.UploadMetadata, body io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.gotMeta = meta
	f.gotBody = raw

	now := time.Now().UTC()
	return &domain.Document{
		ID:             "doc-1",
		Filename:       filename,
		MimeType:       mimeType,
		StoragePath:    "doc-1_" + filename,
		InsurerID:      meta.InsurerID,
		LineOfBusiness: meta.LineOfBusiness,
		Status:         domain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (f *ingestFake) Reprocess(_ context.Context, id string) (*domain.Document, error) {
	if err := f.reprocess[id]; err != nil {
		return nil, err
	}
	return &domain.Document{ID: id, Status: domain.StatusPending}, nil
}

type docsFake struct {
	docs map[string]*domain.Document
}

func (f docsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if doc, ok := f.docs[id]; ok {
		return doc, nil
	}
	return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", io.EOF)
}

type retrieverFake struct {
	resp *domain.RetrievalResponse
	err  error
	got  domain.RetrievalRequest
}

func (f *retrieverFake) Retrieve(_ context.Context, req domain.RetrievalRequest) (*domain.RetrievalResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type answerFake struct {
	err error
}

func (f answerFake) Answer(_ context.Context, req domain.RetrievalRequest) (*domain.Answer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Answer{Text: "Antwoord op: " + req.Query, Sources: []domain.RankedPassage{}}, nil
}

type testDeps struct {
	ingest    *ingestFake
	docs      docsFake
	retriever *retrieverFake
	answers   answerFake
}

func newTestDeps() *testDeps {
	return &testDeps{
		ingest: &ingestFake{reprocess: map[string]error{}},
		docs: docsFake{docs: map[string]*domain.Document{
			"doc-1": {ID: "doc-1", Filename: "avb.pdf", Status: domain.StatusCompleted, PageCount: 3},
		}},
		retriever: &retrieverFake{resp: &domain.RetrievalResponse{Results: []domain.RankedPassage{}, NoResults: true}},
	}
}

func (d *testDeps) handler(cfg config.Config) http.Handler {
	return NewRouter(cfg, d.ingest, d.docs, d.retriever, d.answers).Handler()
}
