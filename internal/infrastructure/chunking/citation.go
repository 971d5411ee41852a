package chunking

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kirillkom/polis-rag/internal/core/domain"
)

// CitationLabel renders "Insurer, Document, art. 2.1 Dekking, p. 3". Missing parts are omitted;
// the page is always last.
func CitationLabel(doc *domain.Document, section *domain.Section, page int) string {
	parts := make([]string, 0, 4)
	if doc != nil {
		if v := strings.TrimSpace(doc.InsurerName); v != "" {
			parts = append(parts, v)
		}
		if v := documentName(doc); v != "" {
			parts = append(parts, v)
		}
	}
	if section != nil {
		if v := sectionLabel(section); v != "" {
			parts = append(parts, v)
		}
	}
	parts = append(parts, "p. "+strconv.Itoa(page))
	return strings.Join(parts, ", ")
}

func documentName(doc *domain.Document) string {
	if v := strings.TrimSpace(doc.Title); v != "" {
		return v
	}
	if v := strings.TrimSpace(doc.DocumentType); v != "" {
		return v
	}
	base := filepath.Base(strings.TrimSpace(doc.Filename))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func sectionLabel(section *domain.Section) string {
	path := strings.TrimSpace(section.Path)
	title := strings.TrimSpace(section.Title)
	switch {
	case path != "" && title != "":
		return "art. " + path + " " + title
	case path != "":
		return "art. " + path
	default:
		return title
	}
}
