// Package pdftext recovers page text from PDF bytes through an ordered cascade of strategies.
package pdftext

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/polis-rag/internal/core/domain"
	"github.com/kirillkom/polis-rag/internal/observability/logging"
)

type Input struct {
	Data     []byte
	Filename string
}

// Strategy is one way of turning bytes into pages. Errors move the cascade to the next strategy.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, in Input) ([]domain.PageText, error)
}

// trustedStrategy output only has to be non-empty; the quality gate is skipped.
type trustedStrategy interface {
	Trusted() bool
}

// lowConfidenceStrategy output is flagged as low confidence on every chunk.
type lowConfidenceStrategy interface {
	LowConfidence() bool
}

type Cascade struct {
	strategies []Strategy
	gate       QualityGate
	fallback   *FilenameFallback
}

func NewCascade(gate QualityGate, fallback *FilenameFallback, strategies ...Strategy) *Cascade {
	filtered := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &Cascade{
		strategies: filtered,
		gate:       gate,
		fallback:   fallback,
	}
}

// Strategies lists the configured strategy names in attempt order.
func (c *Cascade) Strategies() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Extract never fails: when every strategy is exhausted the filename fallback builds a placeholder.
func (c *Cascade) Extract(ctx context.Context, data []byte, filenameHint string) domain.Extraction {
	logger := logging.FromContext(ctx)
	stats := domain.ExtractionStats{InputBytes: len(data)}
	in := Input{Data: data, Filename: filenameHint}

	if len(data) > 0 {
		for _, strategy := range c.strategies {
			if err := ctx.Err(); err != nil {
				logger.Warn("extraction_cancelled", "strategy", strategy.Name(), "error", err)
				break
			}

			started := time.Now()
			pages, err := runStrategy(ctx, strategy, in)
			attempt := domain.StrategyAttempt{Strategy: strategy.Name()}
			if err == nil {
				var report QualityReport
				report, err = c.checkQuality(strategy, pages)
				attempt.Words = report.Words
				attempt.Chars = report.Chars
				attempt.AlnumRatio = report.AlnumRatio
			}
			attempt.Duration = time.Since(started)
			if err != nil {
				attempt.Error = err.Error()
				stats.Attempts = append(stats.Attempts, attempt)
				logger.Warn("extraction_strategy_failed",
					"strategy", strategy.Name(),
					"duration_ms", float64(attempt.Duration.Microseconds())/1000.0,
					"error", err,
				)
				continue
			}

			stats.Attempts = append(stats.Attempts, attempt)
			logger.Info("extraction_strategy_succeeded",
				"strategy", strategy.Name(),
				"pages", len(pages),
				"words", attempt.Words,
			)
			return domain.Extraction{
				Pages:         pages,
				Method:        strategy.Name(),
				LowConfidence: isLowConfidence(strategy),
				Stats:         stats,
			}
		}
	}

	pages := c.fallback.Build(filenameHint)
	stats.Attempts = append(stats.Attempts, domain.StrategyAttempt{Strategy: domain.ExtractionFilename})
	logger.Warn("extraction_filename_fallback", "filename", filenameHint, "input_bytes", len(data))
	return domain.Extraction{
		Pages:         pages,
		Method:        domain.ExtractionFilename,
		LowConfidence: true,
		Stats:         stats,
	}
}

func (c *Cascade) checkQuality(strategy Strategy, pages []domain.PageText) (QualityReport, error) {
	if t, ok := strategy.(trustedStrategy); ok && t.Trusted() {
		report := Measure(pages)
		if report.Chars == 0 {
			return report, &QualityError{Reason: "empty output", Report: report}
		}
		return report, nil
	}
	return c.gate.Check(pages)
}

func runStrategy(ctx context.Context, strategy Strategy, in Input) (pages []domain.PageText, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%s strategy panic: %v", strategy.Name(), r)
		}
	}()
	pages, err = strategy.Attempt(ctx, in)
	if err != nil {
		return nil, err
	}
	return nonBlankPages(pages), nil
}

func nonBlankPages(pages []domain.PageText) []domain.PageText {
	out := pages[:0:0]
	for _, page := range pages {
		page.Text = strings.TrimSpace(page.Text)
		if page.Text == "" {
			continue
		}
		out = append(out, page)
	}
	return out
}

func isLowConfidence(strategy Strategy) bool {
	l, ok := strategy.(lowConfidenceStrategy)
	return ok && l.LowConfidence()
}
