package pdftext

import (
	"bytes"
	"context"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/klauspost/compress/zlib"

	"github.com/kirillkom/polis-rag/internal/core/domain"
	"github.com/kirillkom/polis-rag/internal/infrastructure/glossary"
)

const (
	maxInflatedStream = 16 << 20
	kerningSpace      = -200
	minVocabularyRun  = 3
	minVocabularyHit  = 0.2
)

var (
	streamStart = regexp.MustCompile(`stream\r?\n`)
	// Text-showing and line-moving operators in the order they appear in a content stream.
	textOperator = regexp.MustCompile(
		`\[((?:\\.|[^\\\]])*)\]\s*TJ` +
			`|\(((?:\\.|[^\\)])*)\)\s*(Tj|'|")` +
			`|<([0-9A-Fa-f\s]*)>\s*Tj` +
			`|(?:^|\s)(T\*|Td|TD|ET)(?:\s|$)`)
	tjElement     = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)|(-?\d+(?:\.\d+)?)`)
	readableRun   = regexp.MustCompile(`[\p{L}\d][\p{L}\d\s.,;:'()§%€\-/]{2,}[\p{L}\d.)]`)
	articleMarker = regexp.MustCompile(`(?i)\b(artikel|art\.|hoofdstuk|paragraaf|§)\s*\d`)
	spaceRun      = regexp.MustCompile(`[ \t]+`)
)

// BinaryStrategy scans raw PDF bytes for text operators, inflating compressed streams first.
// When no operator yields text it falls back to vocabulary-guided recovery of readable runs.
type BinaryStrategy struct {
	glossary *glossary.Glossary
}

func NewBinaryStrategy(g *glossary.Glossary) *BinaryStrategy {
	if g == nil {
		g = glossary.Default()
	}
	return &BinaryStrategy{glossary: g}
}

func (s *BinaryStrategy) Name() string { return domain.ExtractionBinary }

func (s *BinaryStrategy) Attempt(ctx context.Context, in Input) ([]domain.PageText, error) {
	pages := make([]domain.PageText, 0, 4)
	for _, stream := range contentStreams(in.Data) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := strings.TrimSpace(textFromOperators(stream))
		if text == "" {
			continue
		}
		pages = append(pages, domain.PageText{Page: len(pages) + 1, Text: text})
	}
	if len(pages) > 0 {
		return pages, nil
	}

	if text := s.vocabularyText(in.Data); text != "" {
		return []domain.PageText{{Page: 1, Text: text}}, nil
	}
	return nil, errors.New("no readable text found in byte stream")
}

// contentStreams returns the body of every stream object, inflated when marked /FlateDecode.
func contentStreams(data []byte) [][]byte {
	var out [][]byte
	for _, loc := range streamStart.FindAllIndex(data, -1) {
		if loc[0] > 0 && isRegularByte(data[loc[0]-1]) {
			// "endstream" also matches.
			continue
		}
		bodyStart := loc[1]
		rel := bytes.Index(data[bodyStart:], []byte("endstream"))
		if rel < 0 {
			continue
		}
		body := bytes.TrimRight(data[bodyStart:bodyStart+rel], "\r\n")

		dictStart := loc[0] - 512
		if dictStart < 0 {
			dictStart = 0
		}
		dict := data[dictStart:loc[0]]
		if i := bytes.LastIndex(dict, []byte("obj")); i >= 0 {
			dict = dict[i:]
		}
		if bytes.Contains(dict, []byte("/FlateDecode")) {
			inflated, ok := inflate(body)
			if !ok {
				continue
			}
			body = inflated
		}
		out = append(out, body)
	}
	return out
}

func isRegularByte(b byte) bool {
	return b == 'd' || unicode.IsLetter(rune(b))
}

// inflate returns whatever could be decompressed; truncated streams still yield their prefix.
func inflate(body []byte) ([]byte, bool) {
	r, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, false
	}
	defer r.Close()
	out, err := io.ReadAll(io.LimitReader(r, maxInflatedStream))
	if err != nil && len(out) == 0 {
		return nil, false
	}
	return out, true
}

func textFromOperators(stream []byte) string {
	var b strings.Builder
	newline := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}

	for _, m := range textOperator.FindAllSubmatchIndex(stream, -1) {
		switch {
		case m[2] >= 0:
			writeTJArray(&b, stream[m[2]:m[3]])
		case m[4] >= 0:
			if op := string(stream[m[6]:m[7]]); op == "'" || op == `"` {
				newline()
			}
			b.WriteString(unescapePDFString(stream[m[4]:m[5]]))
		case m[8] >= 0:
			b.WriteString(decodeHexString(stream[m[8]:m[9]]))
		case m[10] >= 0:
			newline()
		}
	}
	return spaceRun.ReplaceAllString(b.String(), " ")
}

func writeTJArray(b *strings.Builder, array []byte) {
	for _, el := range tjElement.FindAllSubmatch(array, -1) {
		if el[1] != nil || bytes.HasPrefix(el[0], []byte("(")) {
			b.WriteString(unescapePDFString(el[1]))
			continue
		}
		if n, err := strconv.ParseFloat(string(el[2]), 64); err == nil && n < kerningSpace {
			b.WriteByte(' ')
		}
	}
}

func unescapePDFString(raw []byte) string {
	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' || i+1 >= len(raw) {
			out = append(out, c)
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case '(', ')', '\\':
			out = append(out, raw[i])
		case '\r', '\n':
			// line continuation
		default:
			if raw[i] >= '0' && raw[i] <= '7' {
				j := i
				for j < len(raw) && j < i+3 && raw[j] >= '0' && raw[j] <= '7' {
					j++
				}
				v, _ := strconv.ParseUint(string(raw[i:j]), 8, 8)
				out = append(out, byte(v))
				i = j - 1
				continue
			}
			out = append(out, raw[i])
		}
	}
	return latin1(out)
}

func decodeHexString(raw []byte) string {
	hex := make([]byte, 0, len(raw))
	for _, c := range raw {
		if !unicode.IsSpace(rune(c)) {
			hex = append(hex, c)
		}
	}
	if len(hex)%2 == 1 {
		hex = append(hex, '0')
	}
	out := make([]byte, 0, len(hex)/2)
	for i := 0; i+1 < len(hex); i += 2 {
		v, err := strconv.ParseUint(string(hex[i:i+2]), 16, 8)
		if err != nil {
			return ""
		}
		out = append(out, byte(v))
	}
	return latin1(out)
}

// latin1 maps single-byte PDF strings to runes; close enough to WinAnsi for Dutch text.
func latin1(raw []byte) string {
	runes := make([]rune, 0, len(raw))
	for _, c := range raw {
		if c < 0x20 && c != '\n' && c != '\t' {
			continue
		}
		runes = append(runes, rune(c))
	}
	return string(runes)
}

// vocabularyText keeps readable runs that look like Dutch legal prose.
func (s *BinaryStrategy) vocabularyText(data []byte) string {
	decoded := latin1(data)
	var kept []string
	for _, run := range readableRun.FindAllString(decoded, -1) {
		run = strings.TrimSpace(spaceRun.ReplaceAllString(run, " "))
		words := strings.Fields(run)
		if len(words) < minVocabularyRun {
			continue
		}
		if articleMarker.MatchString(run) || s.vocabularyRatio(words) >= minVocabularyHit {
			kept = append(kept, run)
		}
	}
	return strings.Join(kept, "\n")
}

func (s *BinaryStrategy) vocabularyRatio(words []string) float64 {
	hits := 0
	for _, w := range words {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) })
		if s.glossary.IsFunctionWord(w) || s.glossary.IsLegalWord(w) {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}
