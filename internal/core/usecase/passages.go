package usecase

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/polis-rag/internal/core/domain"
)

const (
	minStitchOverlap = 16
	maxStitchOverlap = 1024
)

func toPassages(candidates []domain.SearchCandidate, rerankScores []float64) []domain.RankedPassage {
	out := make([]domain.RankedPassage, len(candidates))
	for i, c := range candidates {
		tokens := c.TokenCount
		if tokens <= 0 {
			tokens = domain.EstimateTokens(c.Text)
		}
		out[i] = domain.RankedPassage{
			SearchCandidate: c,
			Rank:            i + 1,
			ChunkIDs:        []string{c.ChunkID},
			PassageTokens:   tokens,
		}
		if rerankScores != nil {
			score := rerankScores[i]
			out[i].RerankScore = &score
		}
	}
	return out
}

// StitchPassages merges chunks of the same document section with consecutive positions when they
// fall inside the first window passages. The merged passage takes the slot of its best-ranked
// member. Passages beyond the window are left untouched.
func StitchPassages(passages []domain.RankedPassage, window int) []domain.RankedPassage {
	if window <= 0 || window > len(passages) {
		window = len(passages)
	}
	head := passages[:window]

	type groupKey struct{ doc, section string }
	groups := make(map[groupKey][]int)
	for i, p := range head {
		if p.SectionID == "" {
			continue
		}
		key := groupKey{p.DocumentID, p.SectionID}
		groups[key] = append(groups[key], i)
	}

	// mergedInto[i] is the slot that absorbed passage i, or -1.
	mergedInto := make([]int, len(head))
	for i := range mergedInto {
		mergedInto[i] = -1
	}
	merged := make([]domain.RankedPassage, len(head))
	copy(merged, head)

	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		byPosition := append([]int(nil), members...)
		sort.Slice(byPosition, func(a, b int) bool {
			return head[byPosition[a]].Position < head[byPosition[b]].Position
		})

		run := []int{byPosition[0]}
		flush := func() {
			if len(run) > 1 {
				slot := stitchRun(head, run, merged)
				for _, idx := range run {
					if idx != slot {
						mergedInto[idx] = slot
					}
				}
			}
		}
		for _, idx := range byPosition[1:] {
			prev := run[len(run)-1]
			if head[idx].Position == head[prev].Position+1 {
				run = append(run, idx)
				continue
			}
			flush()
			run = []int{idx}
		}
		flush()
	}

	out := make([]domain.RankedPassage, 0, len(passages))
	for i := range head {
		if mergedInto[i] >= 0 {
			continue
		}
		out = append(out, merged[i])
	}
	out = append(out, passages[window:]...)
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// stitchRun writes the merged passage into the slot of the best-ranked member and returns it.
func stitchRun(head []domain.RankedPassage, run []int, merged []domain.RankedPassage) int {
	slot := run[0]
	for _, idx := range run[1:] {
		if idx < slot {
			slot = idx
		}
	}

	first := head[run[0]]
	p := head[slot]
	p.ChunkID = first.ChunkID
	p.Page = first.Page
	p.Position = first.Position
	p.CitationLabel = first.CitationLabel
	p.EndPage = 0

	lastPage := first.Page
	for _, idx := range run {
		if pg := head[idx].Page; pg < p.Page {
			p.Page = pg
		} else if pg > lastPage {
			lastPage = pg
		}
	}
	if lastPage > p.Page {
		p.EndPage = lastPage
		p.CitationLabel = pageRangeLabel(first.CitationLabel, first.Page, p.Page, lastPage)
	}

	text := first.Text
	ids := append([]string(nil), first.ChunkIDs...)
	for _, idx := range run[1:] {
		member := head[idx]
		text = joinOverlapping(text, member.Text)
		ids = append(ids, member.ChunkIDs...)
	}
	for _, idx := range run {
		if head[idx].Score > p.Score {
			p.Score = head[idx].Score
		}
	}
	p.Text = text
	p.ChunkIDs = ids
	p.TokenCount = domain.EstimateTokens(text)
	p.PassageTokens = p.TokenCount
	merged[slot] = p
	return slot
}

// pageRangeLabel rewrites the trailing "p. N" of a citation label to "p. from-to".
func pageRangeLabel(label string, page, from, to int) string {
	suffix := fmt.Sprintf("p. %d", page)
	rng := fmt.Sprintf("p. %d-%d", from, to)
	if !strings.HasSuffix(label, suffix) {
		if label == "" {
			return rng
		}
		return label + ", " + rng
	}
	return strings.TrimSuffix(label, suffix) + rng
}

// joinOverlapping appends b to a, dropping the prefix of b that repeats the tail of a.
func joinOverlapping(a, b string) string {
	if a == "" || b == "" {
		return a + b
	}
	limit := min(len(a), len(b), maxStitchOverlap)
	for k := limit; k >= minStitchOverlap; k-- {
		if k < len(b) && !utf8.RuneStart(b[k]) {
			continue
		}
		if strings.HasSuffix(a, b[:k]) {
			return a + b[k:]
		}
	}
	return a + "\n" + b
}

// FitTokenBudget keeps passages in rank order while the running token sum stays within limit and
// fewer than topK are taken. A first passage that alone exceeds the limit is cut down to it.
func FitTokenBudget(passages []domain.RankedPassage, topK, limit int) []domain.RankedPassage {
	out := make([]domain.RankedPassage, 0, min(topK, len(passages)))
	used := 0
	for _, p := range passages {
		if len(out) >= topK {
			break
		}
		if used+p.PassageTokens <= limit {
			out = append(out, p)
			used += p.PassageTokens
			continue
		}
		if len(out) == 0 {
			out = append(out, truncatePassage(p, limit))
		}
		break
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func truncatePassage(p domain.RankedPassage, limit int) domain.RankedPassage {
	maxRunes := limit * domain.CharsPerToken
	runes := []rune(p.Text)
	if len(runes) > maxRunes {
		cut := maxRunes
		for i := maxRunes; i > maxRunes*4/5; i-- {
			if unicode.IsSpace(runes[i-1]) {
				cut = i
				break
			}
		}
		p.Text = strings.TrimSpace(string(runes[:cut]))
	}
	p.TokenCount = domain.EstimateTokens(p.Text)
	p.PassageTokens = p.TokenCount
	p.Truncated = true
	return p
}
