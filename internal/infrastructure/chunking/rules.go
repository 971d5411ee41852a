package chunking

import "regexp"

// HeadingRule recognises one heading style. PathGroup and TitleGroup are submatch indexes;
// a zero PathGroup means the heading carries no numeric path.
type HeadingRule struct {
	Name       string
	Pattern    *regexp.Regexp
	PathGroup  int
	TitleGroup int
}

const numberedPath = `(\d+(?:\.\d+)*)\.?`

// DefaultRules covers the Dutch and English numbering styles used in policy conditions.
// Order matters: the first matching rule wins.
func DefaultRules() []HeadingRule {
	return []HeadingRule{
		{Name: "artikel", Pattern: regexp.MustCompile(`(?i)^(?:artikel|art\.)\s*` + numberedPath + `\s*[:.\-]?\s*(.*)$`), PathGroup: 1, TitleGroup: 2},
		{Name: "section_sign", Pattern: regexp.MustCompile(`^§\s*` + numberedPath + `\s*[:.\-]?\s*(.*)$`), PathGroup: 1, TitleGroup: 2},
		{Name: "paragraaf", Pattern: regexp.MustCompile(`(?i)^paragraaf\s+` + numberedPath + `\s*[:.\-]?\s*(.*)$`), PathGroup: 1, TitleGroup: 2},
		{Name: "hoofdstuk", Pattern: regexp.MustCompile(`(?i)^hoofdstuk\s+` + numberedPath + `\s*[:.\-]?\s*(.*)$`), PathGroup: 1, TitleGroup: 2},
		{Name: "article", Pattern: regexp.MustCompile(`(?i)^article\s+` + numberedPath + `\s*[:.\-]?\s*(.*)$`), PathGroup: 1, TitleGroup: 2},
		{Name: "section", Pattern: regexp.MustCompile(`(?i)^section\s+` + numberedPath + `\s*[:.\-]?\s*(.*)$`), PathGroup: 1, TitleGroup: 2},
		{Name: "chapter", Pattern: regexp.MustCompile(`(?i)^chapter\s+` + numberedPath + `\s*[:.\-]?\s*(.*)$`), PathGroup: 1, TitleGroup: 2},
	}
}
