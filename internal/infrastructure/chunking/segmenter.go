// Package chunking recovers the section outline of extracted pages and cuts them into bounded chunks.
package chunking

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kirillkom/polis-rag/internal/core/domain"
)

const (
	maxHeadingRunes = 120
	leadRunes       = 60
)

type Segmenter struct {
	splitter *Splitter
	rules    []HeadingRule
	ceiling  int
	newID    func() string
}

// NewSegmenter uses DefaultRules when rules is empty.
func NewSegmenter(chunkSize, overlap int, rules []HeadingRule) *Segmenter {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	splitter := NewSplitter(chunkSize, overlap)
	return &Segmenter{
		splitter: splitter,
		rules:    rules,
		ceiling:  (splitter.ChunkSize + domain.CharsPerToken - 1) / domain.CharsPerToken,
		newID:    uuid.NewString,
	}
}

// TokenCeiling is the largest token estimate a chunk can have.
func (s *Segmenter) TokenCeiling() int {
	return s.ceiling
}

func (s *Segmenter) Segment(doc *domain.Document, extraction domain.Extraction) domain.Segmentation {
	runID := s.newID()
	sections, headings := s.detectSections(doc, runID, extraction.Pages)
	chunks := s.chunkPages(doc, runID, extraction, sections, headings)
	return domain.Segmentation{RunID: runID, Sections: sections, Chunks: chunks}
}

// detectSections also returns the heading line of every kept section, index-aligned.
func (s *Segmenter) detectSections(doc *domain.Document, runID string, pages []domain.PageText) ([]domain.Section, []string) {
	var (
		sections []domain.Section
		headings []string
		current  *domain.Section
		heading  string
		body     strings.Builder
	)
	flush := func() {
		if current == nil {
			return
		}
		content := strings.TrimSpace(body.String())
		if content != "" {
			current.Content = content
			current.Order = len(sections)
			sections = append(sections, *current)
			headings = append(headings, heading)
		}
		current = nil
		body.Reset()
	}

	for _, page := range pages {
		for _, line := range strings.Split(page.Text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if path, title, ok := s.matchHeading(line); ok {
				flush()
				heading = strings.TrimSpace(stripMarkers(line))
				current = &domain.Section{
					ID:         s.newID(),
					DocumentID: doc.ID,
					RunID:      runID,
					Path:       path,
					Title:      title,
					Depth:      depthOf(path),
					StartPage:  page.Page,
					EndPage:    page.Page,
				}
				continue
			}
			if current == nil {
				continue
			}
			if body.Len() > 0 {
				body.WriteByte('\n')
			}
			body.WriteString(stripMarkers(line))
			current.EndPage = page.Page
		}
	}
	flush()
	return sections, headings
}

// matchHeading tries the rule table on the unmarked line. A marked line that matches no rule
// still opens a section with an empty path.
func (s *Segmenter) matchHeading(line string) (path, title string, ok bool) {
	marked := strings.Contains(line, domain.HeadingOpen)
	text := strings.TrimSpace(stripMarkers(line))
	if text == "" || utf8.RuneCountInString(text) > maxHeadingRunes {
		return "", "", false
	}
	for _, rule := range s.rules {
		m := rule.Pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if rule.PathGroup > 0 && rule.PathGroup < len(m) {
			path = strings.TrimSuffix(m[rule.PathGroup], ".")
		}
		if rule.TitleGroup > 0 && rule.TitleGroup < len(m) {
			title = strings.TrimSpace(m[rule.TitleGroup])
		}
		return path, title, true
	}
	if marked {
		return "", text, true
	}
	return "", "", false
}

func (s *Segmenter) chunkPages(doc *domain.Document, runID string, extraction domain.Extraction, sections []domain.Section, headings []string) []domain.Chunk {
	// Matching text keeps the heading line so a chunk that opens with it still lands in its section.
	normalized := make([]string, len(sections))
	for i, section := range sections {
		normalized[i] = normalize(headings[i] + "\n" + section.Content)
	}

	chunks := make([]domain.Chunk, 0, len(extraction.Pages))
	position := 0
	for _, page := range extraction.Pages {
		hasHeading := strings.Contains(page.Text, domain.HeadingOpen)
		text := strings.TrimSpace(stripMarkers(page.Text))
		if text == "" {
			continue
		}

		pieces := []string{text}
		if domain.EstimateTokens(text) > s.ceiling {
			pieces = s.splitter.Split(text)
		}

		for idx, piece := range pieces {
			var section *domain.Section
			if i := associate(piece, page.Page, sections, normalized); i >= 0 {
				section = &sections[i]
			}
			chunk := domain.Chunk{
				ID:            s.newID(),
				DocumentID:    doc.ID,
				RunID:         runID,
				Page:          page.Page,
				Index:         idx,
				Position:      position,
				Text:          piece,
				TokenCount:    domain.EstimateTokens(piece),
				CitationLabel: CitationLabel(doc, section, page.Page),
				Metadata: domain.ChunkMetadata{
					Version:          domain.ChunkMetadataVersion,
					ExtractionMethod: extraction.Method,
					LowConfidence:    extraction.LowConfidence,
					HeadingCandidate: hasHeading,
				},
			}
			if section != nil {
				chunk.SectionID = section.ID
				chunk.Metadata.SectionPath = section.Path
			}
			chunks = append(chunks, chunk)
			position++
		}
	}
	return chunks
}

// associate returns the index of the section whose heading and content contain the chunk's leading text,
// else the section whose title occurs earliest in the chunk, else -1.
// Only sections spanning the chunk's page are considered.
func associate(chunk string, page int, sections []domain.Section, normalized []string) int {
	norm := normalize(chunk)
	lead := leadingRunes(norm, leadRunes)
	if lead == "" {
		return -1
	}

	for i, section := range sections {
		if page < section.StartPage || page > section.EndPage {
			continue
		}
		if strings.Contains(normalized[i], lead) {
			return i
		}
	}

	best, bestAt := -1, len(norm)+1
	for i, section := range sections {
		if page < section.StartPage || page > section.EndPage {
			continue
		}
		title := normalize(section.Title)
		if title == "" {
			continue
		}
		if at := strings.Index(norm, title); at >= 0 && at < bestAt {
			best, bestAt = i, at
		}
	}
	return best
}

func depthOf(path string) int {
	if path == "" {
		return 1
	}
	return strings.Count(path, ".") + 1
}

func stripMarkers(text string) string {
	if !strings.Contains(text, domain.HeadingOpen) {
		return text
	}
	return strings.NewReplacer(domain.HeadingOpen, "", domain.HeadingClose, "").Replace(text)
}

func normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

func leadingRunes(text string, n int) string {
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}
