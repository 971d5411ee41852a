package usecase

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/polis-rag/internal/core/domain"
)

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

type docRepoFake struct {
	mu          sync.Mutex
	doc         *domain.Document
	created     *domain.Document
	createErr   error
	getErr      error
	claimErr    error
	claimCalls  int
	claim       string
	markErr     error
	markClaims  []string
	statusCalls []statusCall
	completed   *domain.ProcessingResult
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	copyDoc := *doc
	f.created = &copyDoc
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.doc == nil || f.doc.ID != id {
		return nil, domain.ErrDocumentNotFound
	}
	copyDoc := *f.doc
	return &copyDoc, nil
}

func (f *docRepoFake) ClaimForProcessing(context.Context, string, time.Duration) (string, error) {
	f.claimCalls++
	if f.claimErr != nil {
		return "", f.claimErr
	}
	if f.claim == "" {
		return "claim-1", nil
	}
	return f.claim, nil
}

func (f *docRepoFake) UpdateStatus(_ context.Context, _ string, status domain.DocumentStatus, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	return nil
}

func (f *docRepoFake) MarkCompleted(_ context.Context, _, claim string, result domain.ProcessingResult) error {
	f.markClaims = append(f.markClaims, claim)
	if f.markErr != nil {
		return f.markErr
	}
	f.completed = &result
	return nil
}

func (f *docRepoFake) MarkFailed(_ context.Context, _, claim, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markClaims = append(f.markClaims, claim)
	if f.markErr != nil {
		return f.markErr
	}
	f.statusCalls = append(f.statusCalls, statusCall{status: domain.StatusFailed, errMsg: errMessage})
	return nil
}

type storageFake struct {
	savedKey  string
	savedBody string
	data      []byte
	err       error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(string(f.data))), nil
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishDocumentIngested(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, documentID)
	return nil
}

func (f *queueFake) SubscribeDocumentIngested(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

// hashProvider returns deterministic vectors derived from the text bytes.
type hashProvider struct {
	mu      sync.Mutex
	dim     int
	err     error
	failOn  string
	batches [][]string
}

func (p *hashProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.batches = append(p.batches, append([]string(nil), texts...))
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if p.failOn != "" && strings.Contains(text, p.failOn) {
			return nil, errors.New("provider rejected batch")
		}
		out[i] = hashVector(text, p.dim)
	}
	return out, nil
}

func (p *hashProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	return hashVector(text, p.dim), nil
}

func hashVector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		h := fnv.New32a()
		_, _ = h.Write([]byte{byte(i)})
		_, _ = h.Write([]byte(text))
		vec[i] = float32(h.Sum32()%1000) / 1000
	}
	return vec
}

type indexFake struct {
	filtered   []domain.SearchCandidate
	unfiltered []domain.SearchCandidate
	err        error
	calls      []domain.SearchFilter
	limits     []int
	indexed    int
}

func (f *indexFake) IndexDocument(context.Context, *domain.Document, domain.Segmentation, []domain.Embedding) error {
	f.indexed++
	return f.err
}

func (f *indexFake) SearchChunks(_ context.Context, _ []float32, limit int, filter domain.SearchFilter) ([]domain.SearchCandidate, error) {
	f.calls = append(f.calls, filter)
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	if filter.IsEmpty() {
		return append([]domain.SearchCandidate(nil), f.unfiltered...), nil
	}
	return append([]domain.SearchCandidate(nil), f.filtered...), nil
}

type rerankerFake struct {
	scores []float64
	err    error
	calls  int
}

func (f *rerankerFake) Rerank(context.Context, string, []string) ([]float64, error) {
	f.calls++
	return f.scores, f.err
}
