package domain

import "time"

const (
	ExtractionStructured = "structured"
	ExtractionBinary     = "binary"
	ExtractionVision     = "vision"
	ExtractionFilename   = "filename"
)

type PageText struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

type StrategyAttempt struct {
	Strategy   string        `json:"strategy"`
	Error      string        `json:"error,omitempty"`
	Words      int           `json:"words"`
	Chars      int           `json:"chars"`
	AlnumRatio float64       `json:"alnum_ratio"`
	Duration   time.Duration `json:"duration"`
}

type ExtractionStats struct {
	InputBytes int               `json:"input_bytes"`
	Attempts   []StrategyAttempt `json:"attempts"`
}

// Extraction is the page indexed text recovered from a source file.
type Extraction struct {
	Pages         []PageText      `json:"pages"`
	Method        string          `json:"method"`
	LowConfidence bool            `json:"low_confidence"`
	Stats         ExtractionStats `json:"stats"`
}

// PageCount is the highest page number that produced text.
func (e Extraction) PageCount() int {
	count := 0
	for _, page := range e.Pages {
		if page.Page > count {
			count = page.Page
		}
	}
	return count
}

// Heading markers wrap lines the extractor believes are headings.
const (
	HeadingOpen  = "[[heading]]"
	HeadingClose = "[[/heading]]"
)

// IsRasterImage reports whether data starts with a PNG or JPEG signature.
func IsRasterImage(data []byte) bool {
	switch {
	case len(data) >= 8 && string(data[:8]) == "\x89PNG\r\n\x1a\n":
		return true
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return true
	}
	return false
}
