// Package glossary holds the immutable domain vocabulary loaded once at startup.
package glossary

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// FallbackTemplate is placeholder content used when no text can be recovered from a file.
type FallbackTemplate struct {
	Name         string   `yaml:"name"`
	Keywords     []string `yaml:"keywords"`
	DocumentType string   `yaml:"document_type"`
	Text         string   `yaml:"text"`
}

type file struct {
	Terms           []string           `yaml:"terms"`
	LegalVocabulary []string           `yaml:"legal_vocabulary"`
	FunctionWords   []string           `yaml:"function_words"`
	Fallbacks       []FallbackTemplate `yaml:"fallbacks"`
	DefaultFallback FallbackTemplate   `yaml:"default_fallback"`
}

// Glossary is safe for concurrent use; it is never mutated after construction.
type Glossary struct {
	terms           []string
	legalVocabulary map[string]struct{}
	functionWords   map[string]struct{}
	fallbacks       []FallbackTemplate
	defaultFallback FallbackTemplate
}

// Default returns the embedded vocabulary.
func Default() *Glossary {
	g, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("glossary: embedded default is invalid: %v", err))
	}
	return g
}

// Load reads a glossary file, or returns the embedded default when path is empty.
func Load(path string) (*Glossary, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read glossary file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Glossary, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse glossary yaml: %w", err)
	}
	if len(f.Terms) == 0 {
		return nil, fmt.Errorf("glossary has no terms")
	}
	if strings.TrimSpace(f.DefaultFallback.Text) == "" {
		return nil, fmt.Errorf("glossary has no default fallback text")
	}

	g := &Glossary{
		terms:           normalizeList(f.Terms),
		legalVocabulary: toSet(f.LegalVocabulary),
		functionWords:   toSet(f.FunctionWords),
		fallbacks:       make([]FallbackTemplate, 0, len(f.Fallbacks)),
		defaultFallback: f.DefaultFallback,
	}
	for _, fb := range f.Fallbacks {
		fb.Keywords = normalizeList(fb.Keywords)
		g.fallbacks = append(g.fallbacks, fb)
	}
	// Longer terms first so "eigen risico" wins over "risico" style overlaps.
	sort.SliceStable(g.terms, func(i, j int) bool { return len(g.terms[i]) > len(g.terms[j]) })
	return g, nil
}

// MatchTerms returns glossary terms found as whole words in text, longest first, at most limit.
func (g *Glossary) MatchTerms(text string, limit int) []string {
	if g == nil || text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	out := make([]string, 0, 4)
	for _, term := range g.terms {
		if containsWord(lower, term) {
			out = append(out, term)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

func (g *Glossary) IsFunctionWord(word string) bool {
	_, ok := g.functionWords[strings.ToLower(word)]
	return ok
}

func (g *Glossary) IsLegalWord(word string) bool {
	_, ok := g.legalVocabulary[strings.ToLower(word)]
	return ok
}

// FallbackFor picks the first template whose keyword occurs in the filename.
func (g *Glossary) FallbackFor(filename string) FallbackTemplate {
	lower := strings.ToLower(filename)
	for _, fb := range g.fallbacks {
		for _, kw := range fb.Keywords {
			if strings.Contains(lower, kw) {
				return fb
			}
		}
	}
	return g.defaultFallback
}

func containsWord(haystack, term string) bool {
	from := 0
	for from < len(haystack) {
		idx := strings.Index(haystack[from:], term)
		if idx < 0 {
			return false
		}
		start := from + idx
		end := start + len(term)
		if boundaryBefore(haystack, start) && boundaryAfter(haystack, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i <= 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func toSet(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, v := range normalizeList(in) {
		out[v] = struct{}{}
	}
	return out
}
