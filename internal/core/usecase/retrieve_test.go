package usecase

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/kirillkom/polis-rag/internal/core/domain"
)

func candidate(id string, score float64, vec ...float32) domain.SearchCandidate {
	return domain.SearchCandidate{
		ChunkID:    id,
		DocumentID: "doc-" + id,
		Text:       "passage " + id,
		TokenCount: 10,
		Score:      score,
		Vector:     vec,
	}
}

func chunkIDs(items []domain.SearchCandidate) []string {
	out := make([]string, len(items))
	for i, c := range items {
		out[i] = c.ChunkID
	}
	return out
}

func passageIDs(items []domain.RankedPassage) []string {
	out := make([]string, len(items))
	for i, p := range items {
		out[i] = strings.Join(p.ChunkIDs, "+")
	}
	return out
}

func boolPtr(v bool) *bool { return &v }

func floatPtr(v float64) *float64 { return &v }

func TestSelectMMRReturnsAllByRelevanceWhenKCoversCandidates(t *testing.T) {
	in := []domain.SearchCandidate{
		candidate("b", 0.5, 1, 0),
		candidate("a", 0.9, 1, 0),
		candidate("c", 0.7, 1, 0),
	}
	got := SelectMMR(in, 3, 0.2)
	if want := []string{"a", "c", "b"}; !reflect.DeepEqual(chunkIDs(got), want) {
		t.Fatalf("got %v want %v", chunkIDs(got), want)
	}
	if got := SelectMMR(in, 10, 0.2); len(got) != 3 {
		t.Fatalf("expected all candidates, got %d", len(got))
	}
	if chunkIDs(in)[0] != "b" {
		t.Fatalf("input slice must not be reordered")
	}
}

func TestSelectMMRPrefersDiverseCandidates(t *testing.T) {
	in := []domain.SearchCandidate{
		candidate("clause-a", 0.90, 1, 0, 0),
		candidate("clause-a-copy", 0.89, 1, 0.01, 0),
		candidate("other-topic", 0.80, 0, 1, 0),
	}
	got := SelectMMR(in, 2, 0.5)
	if want := []string{"clause-a", "other-topic"}; !reflect.DeepEqual(chunkIDs(got), want) {
		t.Fatalf("got %v want %v", chunkIDs(got), want)
	}

	relevanceOnly := SelectMMR(in, 2, 1)
	if want := []string{"clause-a", "clause-a-copy"}; !reflect.DeepEqual(chunkIDs(relevanceOnly), want) {
		t.Fatalf("lambda=1 must follow relevance, got %v", chunkIDs(relevanceOnly))
	}
}

func TestSelectMMRIsIdempotent(t *testing.T) {
	var in []domain.SearchCandidate
	for i := 0; i < 20; i++ {
		in = append(in, candidate(fmt.Sprintf("c%02d", i), 0.5+float64(i%5)/10, float32(i%3), float32(i%4), 1))
	}
	first := SelectMMR(in, 7, 0.7)
	for run := 0; run < 5; run++ {
		if again := SelectMMR(in, 7, 0.7); !reflect.DeepEqual(chunkIDs(again), chunkIDs(first)) {
			t.Fatalf("run %d differs: %v vs %v", run, chunkIDs(again), chunkIDs(first))
		}
	}
}

func TestSelectMMRHigherLambdaKeepsMostRelevantFirst(t *testing.T) {
	in := []domain.SearchCandidate{
		candidate("a", 0.62, 1, 0),
		candidate("b", 0.91, 0.9, 0.1),
		candidate("c", 0.88, 0, 1),
		candidate("d", 0.40, 0.7, 0.7),
	}
	prev := -1.0
	for _, lambda := range []float64{0, 0.3, 0.7, 1} {
		got := SelectMMR(in, 2, lambda)
		if got[0].ChunkID != "b" {
			t.Fatalf("lambda %v: top-1 = %s, want b", lambda, got[0].ChunkID)
		}
		if got[0].Score < prev {
			t.Fatalf("lambda %v: top-1 relevance dropped to %v", lambda, got[0].Score)
		}
		prev = got[0].Score
	}
}

func TestSelectMMRFallsBackToTokenOverlap(t *testing.T) {
	in := []domain.SearchCandidate{
		{ChunkID: "1", Text: "eigen risico bij stormschade", Score: 0.9},
		{ChunkID: "2", Text: "eigen risico bij stormschade", Score: 0.85},
		{ChunkID: "3", Text: "opzegging van de verzekering", Score: 0.8},
	}
	got := SelectMMR(in, 2, 0.5)
	if want := []string{"1", "3"}; !reflect.DeepEqual(chunkIDs(got), want) {
		t.Fatalf("got %v want %v", chunkIDs(got), want)
	}
}

func TestClampLambda(t *testing.T) {
	for in, want := range map[float64]float64{-1: 0, 0.3: 0.3, 4: 1} {
		if got := clampLambda(in); got != want {
			t.Fatalf("clampLambda(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestStitchPassagesMergesConsecutiveChunks(t *testing.T) {
	passages := toPassages([]domain.SearchCandidate{
		{ChunkID: "b", DocumentID: "d1", SectionID: "s1", Position: 5, Text: "de verzekerde som bedraagt EUR 1.000.000 per gebeurtenis", Score: 0.9},
		{ChunkID: "x", DocumentID: "d2", SectionID: "s9", Position: 1, Text: "ander document", Score: 0.8},
		{ChunkID: "a", DocumentID: "d1", SectionID: "s1", Position: 4, Text: "Artikel 3 Verzekerde som. Per aanspraak geldt: de verzekerde som bedraagt", Score: 0.7},
		{ChunkID: "far", DocumentID: "d1", SectionID: "s1", Position: 9, Text: "later fragment", Score: 0.6},
	}, nil)

	got := StitchPassages(passages, 4)
	if want := []string{"a+b", "x", "far"}; !reflect.DeepEqual(passageIDs(got), want) {
		t.Fatalf("got %v want %v", passageIDs(got), want)
	}
	merged := got[0]
	if merged.Text != "Artikel 3 Verzekerde som. Per aanspraak geldt: de verzekerde som bedraagt EUR 1.000.000 per gebeurtenis" {
		t.Fatalf("overlap not de-duplicated: %q", merged.Text)
	}
	if merged.Score != 0.9 || merged.Position != 4 || merged.Rank != 1 {
		t.Fatalf("unexpected merged passage: %+v", merged)
	}
	if merged.PassageTokens != domain.EstimateTokens(merged.Text) {
		t.Fatalf("merged passage tokens not recomputed")
	}
}

func TestStitchPassagesAcrossPagesCitesPageRange(t *testing.T) {
	passages := toPassages([]domain.SearchCandidate{
		{ChunkID: "b", DocumentID: "d1", SectionID: "s1", Page: 4, Position: 8, Text: "vervolg op de volgende pagina", Score: 0.9,
			CitationLabel: "Polis NV, AVB 2024, art. 3 Schade melden, p. 4"},
		{ChunkID: "a", DocumentID: "d1", SectionID: "s1", Page: 3, Position: 7, Text: "Schade meldt u binnen 14 dagen", Score: 0.8,
			CitationLabel: "Polis NV, AVB 2024, art. 3 Schade melden, p. 3"},
	}, nil)

	got := StitchPassages(passages, 4)
	if len(got) != 1 {
		t.Fatalf("expected one stitched passage, got %v", passageIDs(got))
	}
	if got[0].Page != 3 || got[0].EndPage != 4 {
		t.Fatalf("page range = %d-%d, want 3-4", got[0].Page, got[0].EndPage)
	}
	if want := "Polis NV, AVB 2024, art. 3 Schade melden, p. 3-4"; got[0].CitationLabel != want {
		t.Fatalf("label = %q, want %q", got[0].CitationLabel, want)
	}
}

func TestStitchPassagesOnSamePageKeepsSinglePage(t *testing.T) {
	passages := toPassages([]domain.SearchCandidate{
		{ChunkID: "a", DocumentID: "d1", SectionID: "s1", Page: 2, Position: 1, Text: "eerste deel", Score: 0.9, CitationLabel: "AVB, p. 2"},
		{ChunkID: "b", DocumentID: "d1", SectionID: "s1", Page: 2, Position: 2, Text: "tweede deel", Score: 0.7, CitationLabel: "AVB, p. 2"},
	}, nil)

	got := StitchPassages(passages, 4)
	if len(got) != 1 || got[0].EndPage != 0 || got[0].CitationLabel != "AVB, p. 2" {
		t.Fatalf("unexpected stitched passage: %+v", got)
	}
}

func TestPageRangeLabel(t *testing.T) {
	if got := pageRangeLabel("AVB, p. 3", 3, 3, 5); got != "AVB, p. 3-5" {
		t.Fatalf("got %q", got)
	}
	if got := pageRangeLabel("AVB", 3, 3, 5); got != "AVB, p. 3-5" {
		t.Fatalf("got %q", got)
	}
	if got := pageRangeLabel("", 3, 3, 5); got != "p. 3-5" {
		t.Fatalf("got %q", got)
	}
}

func TestStitchPassagesOnlyInsideWindow(t *testing.T) {
	passages := toPassages([]domain.SearchCandidate{
		{ChunkID: "a", DocumentID: "d1", SectionID: "s1", Position: 1, Text: "eerste deel", Score: 0.9},
		{ChunkID: "x", DocumentID: "d2", Position: 3, Text: "los", Score: 0.8},
		{ChunkID: "b", DocumentID: "d1", SectionID: "s1", Position: 2, Text: "tweede deel", Score: 0.7},
	}, nil)

	got := StitchPassages(passages, 2)
	if want := []string{"a", "x", "b"}; !reflect.DeepEqual(passageIDs(got), want) {
		t.Fatalf("got %v want %v", passageIDs(got), want)
	}
}

func TestFitTokenBudget(t *testing.T) {
	var passages []domain.RankedPassage
	for i := 0; i < 20; i++ {
		passages = append(passages, domain.RankedPassage{
			SearchCandidate: domain.SearchCandidate{ChunkID: fmt.Sprint(i), Text: strings.Repeat("x", 600)},
			PassageTokens:   150,
		})
	}
	if got := FitTokenBudget(passages, 5, 500); len(got) != 3 {
		t.Fatalf("expected token limit to cap at 3 passages, got %d", len(got))
	}
	if got := FitTokenBudget(passages, 2, 5000); len(got) != 2 {
		t.Fatalf("expected topK to cap at 2 passages, got %d", len(got))
	}

	oversized := []domain.RankedPassage{{
		SearchCandidate: domain.SearchCandidate{Text: strings.Repeat("woord ", 400)},
		PassageTokens:   600,
	}}
	got := FitTokenBudget(oversized, 5, 100)
	if len(got) != 1 || !got[0].Truncated || got[0].PassageTokens > 100 {
		t.Fatalf("expected first passage windowed to the budget, got %+v", got)
	}
}

func retrievalCandidates(n int, tokens int) []domain.SearchCandidate {
	out := make([]domain.SearchCandidate, n)
	for i := range out {
		out[i] = domain.SearchCandidate{
			ChunkID:    fmt.Sprintf("c%02d", i),
			DocumentID: fmt.Sprintf("doc-%d", i),
			Text:       strings.Repeat("dekking ", tokens/2),
			TokenCount: tokens,
			Score:      0.9 - float64(i)*0.01,
			Vector:     []float32{float32(i % 4), float32(i % 3), 1},
		}
	}
	return out
}

func TestRetrieveFallsBackToUnfilteredSearch(t *testing.T) {
	index := &indexFake{unfiltered: retrievalCandidates(4, 20)}
	uc := NewRetrieveUseCase(&hashProvider{dim: 3}, index, nil, DefaultRetrievalDefaults())

	resp, err := uc.Retrieve(context.Background(), domain.RetrievalRequest{
		Query:   "Wat is het eigen risico?",
		Filters: domain.SearchFilter{InsurerID: "unknown-insurer"},
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if resp.NoResults || len(resp.Results) == 0 {
		t.Fatalf("expected results from the unfiltered fallback")
	}
	if !resp.PipelineStats.FallbackUsed || resp.PipelineStats.InitialSearch != 4 {
		t.Fatalf("unexpected stats: %+v", resp.PipelineStats)
	}
	if len(index.calls) != 2 || !index.calls[1].IsEmpty() {
		t.Fatalf("expected filtered then unfiltered search, got %+v", index.calls)
	}
	if index.limits[0] != 40 {
		t.Fatalf("expected default topN 40, got %d", index.limits[0])
	}
}

func TestRetrieveTokenLimitBeforeTopK(t *testing.T) {
	index := &indexFake{unfiltered: retrievalCandidates(20, 150)}
	uc := NewRetrieveUseCase(&hashProvider{dim: 3}, index, nil, DefaultRetrievalDefaults())

	resp, err := uc.Retrieve(context.Background(), domain.RetrievalRequest{
		Query:        "dekking",
		TopK:         5,
		TokenLimit:   500,
		UseStitching: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(resp.Results) > 3 {
		t.Fatalf("expected at most 3 passages, got %d", len(resp.Results))
	}
	stats := resp.PipelineStats
	if stats.InitialSearch != 20 || stats.MMRResults != 12 || stats.FinalResults != len(resp.Results) {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	for i, p := range resp.Results {
		if p.Rank != i+1 {
			t.Fatalf("passage %d has rank %d", i, p.Rank)
		}
	}
}

func TestRetrieveSimilarityFloor(t *testing.T) {
	cands := retrievalCandidates(3, 10)
	cands[1].Score = 0.1
	cands[2].Score = 0.2
	uc := NewRetrieveUseCase(&hashProvider{dim: 3}, &indexFake{unfiltered: cands}, nil, DefaultRetrievalDefaults())

	resp, err := uc.Retrieve(context.Background(), domain.RetrievalRequest{Query: "dekking"})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if resp.PipelineStats.AfterSimilarityFloor != 1 || len(resp.Results) != 1 || resp.NoResults {
		t.Fatalf("expected only the candidate above the floor, got %+v", resp.PipelineStats)
	}
}

func TestRetrieveNoResults(t *testing.T) {
	uc := NewRetrieveUseCase(&hashProvider{dim: 3}, &indexFake{}, nil, DefaultRetrievalDefaults())

	resp, err := uc.Retrieve(context.Background(), domain.RetrievalRequest{Query: "dekking", Filters: domain.SearchFilter{LineOfBusiness: "travel"}})
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !resp.NoResults || resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("expected explicit no results, got %+v", resp)
	}
}

func TestRetrieveRerankReordersAndFailureKeepsOrder(t *testing.T) {
	cands := retrievalCandidates(3, 10)
	reranker := &rerankerFake{scores: []float64{0.1, 0.2, 0.9}}
	defaults := DefaultRetrievalDefaults()
	defaults.Stitching = false
	uc := NewRetrieveUseCase(&hashProvider{dim: 3}, &indexFake{unfiltered: cands}, reranker, defaults)

	req := domain.RetrievalRequest{Query: "dekking", UseReranking: boolPtr(true), Lambda: floatPtr(1)}
	resp, err := uc.Retrieve(context.Background(), req)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !resp.PipelineStats.RerankApplied || resp.Results[0].ChunkID != "c02" {
		t.Fatalf("expected rerank to move c02 first, got %v", passageIDs(resp.Results))
	}
	if resp.Results[0].RerankScore == nil || *resp.Results[0].RerankScore != 0.9 {
		t.Fatalf("expected rerank score on passage")
	}
	if resp.PipelineStats.RerankedResults != resp.PipelineStats.MMRResults {
		t.Fatalf("rerank must not change the candidate count")
	}

	reranker.err = errors.New("timeout")
	resp, err = uc.Retrieve(context.Background(), req)
	if err != nil {
		t.Fatalf("rerank failure must not fail retrieval: %v", err)
	}
	if resp.PipelineStats.RerankApplied || resp.Results[0].ChunkID != "c00" {
		t.Fatalf("expected MMR order kept, got %v", passageIDs(resp.Results))
	}
}

func TestRetrieveRejectsEmptyQuery(t *testing.T) {
	uc := NewRetrieveUseCase(&hashProvider{dim: 3}, &indexFake{}, nil, DefaultRetrievalDefaults())
	if _, err := uc.Retrieve(context.Background(), domain.RetrievalRequest{Query: "   "}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
