package pdftext

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/polis-rag/internal/core/domain"
	"github.com/kirillkom/polis-rag/internal/core/ports"
)

const visionPrompt = `Je ontvangt pagina %d van een Nederlandstalig verzekeringsdocument (%s) als afbeelding. ` +
	`Geef de volledige leesbare tekst weer, inclusief artikelnummers en kopjes. ` +
	`Als tekst onleesbaar is, vat dan de inhoud zo nauwkeurig mogelijk samen. Antwoord alleen met de tekst.`

// VisionStrategy rasterizes the pages and asks an external vision model to transcribe each one.
// Its output is taken at face value and marked low confidence.
type VisionStrategy struct {
	describer ports.ImageDescriber
	renderer  PageRenderer
	maxBytes  int
	maxPages  int
	timeout   time.Duration
}

// NewVisionStrategy accepts a nil renderer; only raster inputs can be described then.
func NewVisionStrategy(describer ports.ImageDescriber, renderer PageRenderer, maxBytes, maxPages int, timeout time.Duration) *VisionStrategy {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &VisionStrategy{
		describer: describer,
		renderer:  renderer,
		maxBytes:  maxBytes,
		maxPages:  maxPages,
		timeout:   timeout,
	}
}

func (s *VisionStrategy) Name() string        { return domain.ExtractionVision }
func (s *VisionStrategy) Trusted() bool       { return true }
func (s *VisionStrategy) LowConfidence() bool { return true }

// Attempt bounds rendering and every describe call by one timeout.
func (s *VisionStrategy) Attempt(ctx context.Context, in Input) ([]domain.PageText, error) {
	if s.maxBytes > 0 && len(in.Data) > s.maxBytes {
		return nil, fmt.Errorf("input of %d bytes exceeds vision ceiling of %d", len(in.Data), s.maxBytes)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	images, err := s.images(callCtx, in.Data)
	if err != nil {
		return nil, err
	}

	pages := make([]domain.PageText, 0, len(images))
	for i, image := range images {
		text, err := s.describer.Describe(callCtx, fmt.Sprintf(visionPrompt, i+1, in.Filename), image)
		if err != nil {
			return nil, fmt.Errorf("describe page %d: %w", i+1, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, domain.PageText{Page: i + 1, Text: text})
		}
	}
	if len(pages) == 0 {
		return nil, errors.New("vision model returned empty text")
	}
	return pages, nil
}

func (s *VisionStrategy) images(ctx context.Context, data []byte) ([][]byte, error) {
	if domain.IsRasterImage(data) {
		return [][]byte{data}, nil
	}
	if s.renderer == nil {
		return nil, errors.New("no page renderer configured for non-raster input")
	}
	images, err := s.renderer.Render(ctx, data, s.maxPages)
	if err != nil {
		return nil, fmt.Errorf("render pages: %w", err)
	}
	return images, nil
}
