package glossary

import (
	"strings"
	"testing"
)

func TestDefaultGlossaryLoads(t *testing.T) {
	g := Default()
	if !g.IsFunctionWord("het") {
		t.Fatalf("expected 'het' to be a function word")
	}
	if !g.IsLegalWord("Artikel") {
		t.Fatalf("expected 'artikel' to be legal vocabulary")
	}
}

func TestMatchTermsRequiresWholeWords(t *testing.T) {
	g := Default()
	terms := g.MatchTerms("Het eigen risico bedraagt € 250 per gebeurtenis; zie ook de dekking.", 0)
	if !contains(terms, "eigen risico") || !contains(terms, "dekking") {
		t.Fatalf("expected eigen risico and dekking, got %v", terms)
	}

	terms = g.MatchTerms("Ongedekkingsvoorwaarde", 0)
	if contains(terms, "dekking") {
		t.Fatalf("expected no partial-word match, got %v", terms)
	}
}

func TestMatchTermsHonoursLimit(t *testing.T) {
	g := Default()
	terms := g.MatchTerms("premie schade brand diefstal opstal inboedel", 2)
	if len(terms) != 2 {
		t.Fatalf("expected 2 terms, got %v", terms)
	}
}

func TestFallbackForFilename(t *testing.T) {
	g := Default()
	fb := g.FallbackFor("231-AVB-Aansprakelijkheid.pdf")
	if fb.Name != "liability" {
		t.Fatalf("expected liability fallback, got %q", fb.Name)
	}
	if !strings.Contains(fb.Text, "aansprakelijkheidsverzekeringspolis") {
		t.Fatalf("unexpected fallback text: %s", fb.Text)
	}

	if got := g.FallbackFor("scan_0001.pdf").Name; got != "generic" {
		t.Fatalf("expected generic fallback, got %q", got)
	}
}

func TestParseRejectsEmptyGlossary(t *testing.T) {
	if _, err := Parse([]byte("terms: []\n")); err == nil {
		t.Fatalf("expected error for empty glossary")
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
