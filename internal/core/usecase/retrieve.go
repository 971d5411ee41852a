package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/polis-rag/internal/core/domain"
	"github.com/kirillkom/polis-rag/internal/core/ports"
	"github.com/kirillkom/polis-rag/internal/observability/logging"
)

type RetrievalDefaults struct {
	TopN          int
	MMRK          int
	Lambda        float64
	TopK          int
	TokenLimit    int
	MinSimilarity float64
	Stitching     bool
	Reranking     bool
}

func DefaultRetrievalDefaults() RetrievalDefaults {
	return RetrievalDefaults{
		TopN:          40,
		MMRK:          12,
		Lambda:        0.7,
		TopK:          6,
		TokenLimit:    2000,
		MinSimilarity: 0.25,
		Stitching:     true,
	}
}

// RetrievalObserver receives the stage counts of every retrieval.
type RetrievalObserver interface {
	ObserveRetrieval(stats domain.RetrievalStats, duration time.Duration)
}

type RetrieveUseCase struct {
	embedder ports.EmbeddingProvider
	index    ports.ChunkIndex
	reranker ports.Reranker
	defaults RetrievalDefaults
	observer RetrievalObserver
}

// NewRetrieveUseCase accepts a nil reranker; reranking requests are then ignored.
func NewRetrieveUseCase(
	embedder ports.EmbeddingProvider,
	index ports.ChunkIndex,
	reranker ports.Reranker,
	defaults RetrievalDefaults,
) *RetrieveUseCase {
	return &RetrieveUseCase{
		embedder: embedder,
		index:    index,
		reranker: reranker,
		defaults: defaults,
	}
}

func (uc *RetrieveUseCase) SetObserver(observer RetrievalObserver) {
	uc.observer = observer
}

type retrievalParams struct {
	topN, mmrK, topK, tokenLimit int
	lambda                       float64
	stitching, reranking         bool
}

func (uc *RetrieveUseCase) resolve(req domain.RetrievalRequest) retrievalParams {
	p := retrievalParams{
		topN:       positiveOr(req.TopN, uc.defaults.TopN, 40),
		mmrK:       positiveOr(req.MMRK, uc.defaults.MMRK, 12),
		topK:       positiveOr(req.TopK, uc.defaults.TopK, 6),
		tokenLimit: positiveOr(req.TokenLimit, uc.defaults.TokenLimit, 2000),
		lambda:     clampLambda(uc.defaults.Lambda),
		stitching:  uc.defaults.Stitching,
		reranking:  uc.defaults.Reranking,
	}
	if req.Lambda != nil {
		p.lambda = clampLambda(*req.Lambda)
	}
	if req.UseStitching != nil {
		p.stitching = *req.UseStitching
	}
	if req.UseReranking != nil {
		p.reranking = *req.UseReranking
	}
	return p
}

func positiveOr(v, fallback, last int) int {
	if v > 0 {
		return v
	}
	if fallback > 0 {
		return fallback
	}
	return last
}

// Retrieve runs candidate search, similarity floor, MMR, optional rerank, optional stitching and
// the token budget, in that order.
func (uc *RetrieveUseCase) Retrieve(ctx context.Context, req domain.RetrievalRequest) (*domain.RetrievalResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("query is required"))
	}
	started := time.Now()
	params := uc.resolve(req)
	logger := logging.FromContext(ctx)

	queryVector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var stats domain.RetrievalStats
	candidates, err := uc.index.SearchChunks(ctx, queryVector, params.topN, req.Filters)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	if len(candidates) == 0 && !req.Filters.IsEmpty() {
		candidates, err = uc.index.SearchChunks(ctx, queryVector, params.topN, domain.SearchFilter{})
		if err != nil {
			return nil, fmt.Errorf("search chunks unfiltered: %w", err)
		}
		stats.FallbackUsed = true
		logger.Info("retrieval_filter_fallback",
			"insurer_id", req.Filters.InsurerID,
			"line_of_business", req.Filters.LineOfBusiness,
			"candidates", len(candidates),
		)
	}
	stats.InitialSearch = len(candidates)
	if len(candidates) == 0 {
		resp := &domain.RetrievalResponse{Results: []domain.RankedPassage{}, PipelineStats: stats, NoResults: true}
		uc.report(ctx, stats, started)
		return resp, nil
	}

	candidates = applySimilarityFloor(candidates, uc.defaults.MinSimilarity)
	stats.AfterSimilarityFloor = len(candidates)

	selected := SelectMMR(candidates, params.mmrK, params.lambda)
	stats.MMRResults = len(selected)

	var rerankScores []float64
	if params.reranking && uc.reranker != nil && len(selected) > 0 {
		selected, rerankScores, stats.RerankApplied = uc.rerank(ctx, query, selected)
	}
	stats.RerankedResults = len(selected)

	passages := toPassages(selected, rerankScores)
	if params.stitching {
		passages = StitchPassages(passages, params.topK)
	}
	final := FitTokenBudget(passages, params.topK, params.tokenLimit)
	stats.FinalResults = len(final)

	uc.report(ctx, stats, started)
	return &domain.RetrievalResponse{Results: final, PipelineStats: stats}, nil
}

// rerank keeps the MMR order when the reranker fails or returns the wrong number of scores.
func (uc *RetrieveUseCase) rerank(ctx context.Context, query string, candidates []domain.SearchCandidate) ([]domain.SearchCandidate, []float64, bool) {
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}
	scores, err := uc.reranker.Rerank(ctx, query, texts)
	if err == nil && len(scores) != len(candidates) {
		err = fmt.Errorf("reranker returned %d scores for %d passages", len(scores), len(candidates))
	}
	if err != nil {
		logging.FromContext(ctx).Warn("retrieval_rerank_failed", "error", err)
		return candidates, nil, false
	}
	reordered, reorderedScores := applyRerankScores(candidates, scores)
	return reordered, reorderedScores, true
}

func (uc *RetrieveUseCase) report(ctx context.Context, stats domain.RetrievalStats, started time.Time) {
	duration := time.Since(started)
	logging.FromContext(ctx).Info("retrieval_stages",
		"initial_search", stats.InitialSearch,
		"after_similarity_floor", stats.AfterSimilarityFloor,
		"mmr_results", stats.MMRResults,
		"reranked_results", stats.RerankedResults,
		"final_results", stats.FinalResults,
		"fallback_used", stats.FallbackUsed,
		"rerank_applied", stats.RerankApplied,
		"duration_ms", float64(duration.Microseconds())/1000.0,
	)
	if uc.observer != nil {
		uc.observer.ObserveRetrieval(stats, duration)
	}
}

func applySimilarityFloor(candidates []domain.SearchCandidate, floor float64) []domain.SearchCandidate {
	out := candidates[:0:0]
	for _, c := range candidates {
		if c.Score >= floor {
			out = append(out, c)
		}
	}
	return out
}
