package pdftext

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/kirillkom/polis-rag/internal/core/domain"
	"github.com/kirillkom/polis-rag/internal/infrastructure/glossary"
)

// FilenameFallback synthesizes placeholder content from keywords in the file name.
type FilenameFallback struct {
	glossary *glossary.Glossary
}

func NewFilenameFallback(g *glossary.Glossary) *FilenameFallback {
	if g == nil {
		g = glossary.Default()
	}
	return &FilenameFallback{glossary: g}
}

// Build always returns exactly one non-empty page.
func (f *FilenameFallback) Build(filename string) []domain.PageText {
	template := f.glossary.FallbackFor(filename)
	title := humanizeFilename(filename)

	var b strings.Builder
	b.WriteString(domain.HeadingOpen)
	b.WriteString(title)
	b.WriteString(domain.HeadingClose)
	b.WriteString("\n")
	if template.DocumentType != "" {
		b.WriteString("Documenttype: ")
		b.WriteString(template.DocumentType)
		b.WriteString("\n")
	}
	b.WriteString(strings.TrimSpace(template.Text))

	return []domain.PageText{{Page: 1, Text: b.String()}}
}

func humanizeFilename(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || unicode.IsSpace(r)
	})
	title := strings.Join(words, " ")
	if title == "" || title == "." {
		return "Onbekend document"
	}
	return title
}
