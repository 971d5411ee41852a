package usecase

import (
	"math"
	"sort"

	"github.com/kirillkom/polis-rag/internal/core/domain"
)

// sortByRelevance orders by score, then document, page and position so equal scores are stable
// across runs.
func sortByRelevance(candidates []domain.SearchCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.ChunkID < b.ChunkID
	})
}

// SelectMMR greedily picks k candidates maximizing
// lambda*relevance - (1-lambda)*max similarity to the already selected set.
// When k covers every candidate the result is the relevance order.
func SelectMMR(candidates []domain.SearchCandidate, k int, lambda float64) []domain.SearchCandidate {
	ordered := make([]domain.SearchCandidate, len(candidates))
	copy(ordered, candidates)
	sortByRelevance(ordered)
	if k <= 0 || k >= len(ordered) {
		return ordered
	}
	lambda = clampLambda(lambda)

	sim := newSimilarity(ordered)
	selected := make([]int, 0, k)
	used := make([]bool, len(ordered))
	// maxSim[i] is the highest similarity of candidate i to anything selected so far.
	maxSim := make([]float64, len(ordered))

	for len(selected) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i := range ordered {
			if used[i] {
				continue
			}
			redundancy := 0.0
			if len(selected) > 0 {
				redundancy = maxSim[i]
			}
			score := lambda*ordered[i].Score - (1-lambda)*redundancy
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		used[best] = true
		selected = append(selected, best)
		for i := range ordered {
			if used[i] {
				continue
			}
			if s := sim.between(i, best); s > maxSim[i] {
				maxSim[i] = s
			}
		}
	}

	out := make([]domain.SearchCandidate, len(selected))
	for i, idx := range selected {
		out[i] = ordered[idx]
	}
	return out
}

func clampLambda(lambda float64) float64 {
	switch {
	case math.IsNaN(lambda):
		return 0.7
	case lambda < 0:
		return 0
	case lambda > 1:
		return 1
	}
	return lambda
}

type similarity struct {
	candidates []domain.SearchCandidate
	tokens     []map[string]struct{}
}

func newSimilarity(candidates []domain.SearchCandidate) *similarity {
	return &similarity{candidates: candidates, tokens: make([]map[string]struct{}, len(candidates))}
}

// between uses cosine over stored vectors, or token Jaccard when either vector is missing.
func (s *similarity) between(i, j int) float64 {
	a, b := s.candidates[i].Vector, s.candidates[j].Vector
	if len(a) > 0 && len(a) == len(b) {
		return cosine(a, b)
	}
	return jaccard(s.tokenSet(i), s.tokenSet(j))
}

func (s *similarity) tokenSet(i int) map[string]struct{} {
	if s.tokens[i] == nil {
		s.tokens[i] = toTokenSet(s.candidates[i].Text)
	}
	return s.tokens[i]
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
