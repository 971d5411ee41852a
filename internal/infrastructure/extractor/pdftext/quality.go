package pdftext

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kirillkom/polis-rag/internal/core/domain"
)

// QualityGate rejects extraction output that is too thin to be useful.
type QualityGate struct {
	MinWords      int
	MinChars      int
	MinAlnumRatio float64
}

func DefaultQualityGate() QualityGate {
	return QualityGate{MinWords: 20, MinChars: 100, MinAlnumRatio: 0.6}
}

type QualityReport struct {
	Words      int
	Chars      int
	AlnumRatio float64
}

type QualityError struct {
	Reason string
	Report QualityReport
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("quality gate: %s (words=%d chars=%d alnum_ratio=%.2f)",
		e.Reason, e.Report.Words, e.Report.Chars, e.Report.AlnumRatio)
}

func Measure(pages []domain.PageText) QualityReport {
	var report QualityReport
	var alnum, visible int
	for _, page := range pages {
		text := stripHeadingMarkers(page.Text)
		for _, field := range strings.Fields(text) {
			if strings.IndexFunc(field, isAlnum) >= 0 {
				report.Words++
			}
		}
		for _, r := range strings.TrimSpace(text) {
			report.Chars++
			if unicode.IsSpace(r) {
				continue
			}
			visible++
			if isAlnum(r) {
				alnum++
			}
		}
	}
	if visible > 0 {
		report.AlnumRatio = float64(alnum) / float64(visible)
	}
	return report
}

func (g QualityGate) Check(pages []domain.PageText) (QualityReport, error) {
	report := Measure(pages)
	switch {
	case report.Words < g.MinWords:
		return report, &QualityError{Reason: "too few words", Report: report}
	case report.Chars < g.MinChars:
		return report, &QualityError{Reason: "text too short", Report: report}
	case report.AlnumRatio < g.MinAlnumRatio:
		return report, &QualityError{Reason: "alphanumeric ratio too low", Report: report}
	}
	return report, nil
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func stripHeadingMarkers(text string) string {
	if !strings.Contains(text, domain.HeadingOpen) {
		return text
	}
	return strings.NewReplacer(domain.HeadingOpen, "", domain.HeadingClose, "").Replace(text)
}
