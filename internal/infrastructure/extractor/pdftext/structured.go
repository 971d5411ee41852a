package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	lpdf "github.com/ledongthuc/pdf"

	"github.com/kirillkom/polis-rag/internal/core/domain"
)

const (
	headingSizeFactor = 1.2
	maxHeadingRunes   = 120
	minHeadingRunes   = 3
)

// StructuredStrategy reads the native text layer and rebuilds lines from glyph positions.
type StructuredStrategy struct{}

func NewStructuredStrategy() *StructuredStrategy {
	return &StructuredStrategy{}
}

func (s *StructuredStrategy) Name() string { return domain.ExtractionStructured }

func (s *StructuredStrategy) Attempt(ctx context.Context, in Input) ([]domain.PageText, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(in.Data, "\x00\t\r\n "), []byte("%PDF")) {
		return nil, errors.New("missing %PDF header")
	}
	reader, err := lpdf.NewReader(bytes.NewReader(in.Data), int64(len(in.Data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	total := reader.NumPage()
	if total == 0 {
		return nil, errors.New("pdf has no pages")
	}

	pages := make([]domain.PageText, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text := layoutPage(page.Content().Text)
		pages = append(pages, domain.PageText{Page: i, Text: text})
	}
	return pages, nil
}

type layoutLine struct {
	text      strings.Builder
	maxSize   float64
	glyphs    int
	boldGlyph int
}

// layoutPage turns positioned glyph runs into lines. A Y jump starts a new line; a horizontal gap
// wider than a fraction of the font size becomes a space.
func layoutPage(runs []lpdf.Text) string {
	if len(runs) == 0 {
		return ""
	}

	var lines []*layoutLine
	var current *layoutLine
	var prevY, prevEnd, prevSize float64
	sizes := make([]float64, 0, len(runs))
	boldGlyphs, glyphs := 0, 0

	for i, run := range runs {
		if run.S == "" {
			continue
		}
		size := math.Abs(run.FontSize)
		newLine := i == 0 || current == nil
		if !newLine {
			tolerance := math.Max(prevSize, size) * 0.5
			if tolerance <= 0 {
				tolerance = 1
			}
			newLine = math.Abs(run.Y-prevY) > tolerance
		}
		if newLine {
			current = &layoutLine{}
			lines = append(lines, current)
		} else if gap := run.X - prevEnd; gap > size*0.25 && !endsWithSpace(current.text.String()) && !strings.HasPrefix(run.S, " ") {
			current.text.WriteByte(' ')
		}

		current.text.WriteString(run.S)
		if strings.TrimSpace(run.S) != "" {
			bold := isBoldFont(run.Font)
			current.glyphs++
			glyphs++
			if bold {
				current.boldGlyph++
				boldGlyphs++
			}
			if size > current.maxSize {
				current.maxSize = size
			}
			sizes = append(sizes, size)
		}

		prevY = run.Y
		prevEnd = run.X + run.W
		prevSize = size
	}

	median := medianOf(sizes)
	pageMostlyBold := glyphs > 0 && float64(boldGlyphs)/float64(glyphs) >= 0.5

	var out strings.Builder
	for _, line := range lines {
		text := collapseSpaces(line.text.String())
		if text == "" {
			continue
		}
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		if isHeadingLine(line, text, median, pageMostlyBold) {
			out.WriteString(domain.HeadingOpen)
			out.WriteString(text)
			out.WriteString(domain.HeadingClose)
			continue
		}
		out.WriteString(text)
	}
	return out.String()
}

func isHeadingLine(line *layoutLine, text string, median float64, pageMostlyBold bool) bool {
	n := utf8.RuneCountInString(text)
	if n < minHeadingRunes || n > maxHeadingRunes || line.glyphs == 0 {
		return false
	}
	if median > 0 && line.maxSize >= median*headingSizeFactor {
		return true
	}
	if !pageMostlyBold && float64(line.boldGlyph)/float64(line.glyphs) >= 0.8 {
		return true
	}
	return false
}

func isBoldFont(font string) bool {
	lower := strings.ToLower(font)
	return strings.Contains(lower, "bold") || strings.Contains(lower, "black") || strings.Contains(lower, "heavy")
}

func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}

func endsWithSpace(s string) bool {
	return s == "" || strings.HasSuffix(s, " ")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
