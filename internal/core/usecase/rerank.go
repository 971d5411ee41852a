package usecase

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/polis-rag/internal/core/domain"
)

// LexicalReranker scores passages by query token overlap. It is used when no cross-encoder
// service is configured.
type LexicalReranker struct{}

func NewLexicalReranker() *LexicalReranker {
	return &LexicalReranker{}
}

func (r *LexicalReranker) Rerank(_ context.Context, query string, passages []string) ([]float64, error) {
	queryTokens := toTokenSet(query)
	scores := make([]float64, len(passages))
	for i, passage := range passages {
		scores[i] = tokenOverlap(queryTokens, toTokenSet(passage))
	}
	return scores, nil
}

// applyRerankScores reorders candidates by score, keeping the incoming order on ties.
func applyRerankScores(candidates []domain.SearchCandidate, scores []float64) ([]domain.SearchCandidate, []float64) {
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	outCandidates := make([]domain.SearchCandidate, len(candidates))
	outScores := make([]float64, len(candidates))
	for i, idx := range order {
		outCandidates[i] = candidates[idx]
		outScores[i] = scores[idx]
	}
	return outCandidates, outScores
}

func tokenOverlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for token := range a {
		if _, ok := b[token]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitAlphaNumLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

func splitAlphaNumLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
