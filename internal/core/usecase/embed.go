package usecase

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/polis-rag/internal/core/domain"
	"github.com/kirillkom/polis-rag/internal/core/ports"
)

const maxPreambleTerms = 8

// TermMatcher finds domain vocabulary in a text.
type TermMatcher interface {
	MatchTerms(text string, limit int) []string
}

type EmbedderConfig struct {
	BatchSize   int
	Concurrency int
	Dimension   int
	Model       string
}

type ChunkEmbedder struct {
	provider ports.EmbeddingProvider
	terms    TermMatcher
	cfg      EmbedderConfig
}

func NewChunkEmbedder(provider ports.EmbeddingProvider, terms TermMatcher, cfg EmbedderConfig) *ChunkEmbedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &ChunkEmbedder{provider: provider, terms: terms, cfg: cfg}
}

// EmbedChunks returns one embedding per chunk in input order. Detected glossary terms are
// recorded on the chunks' metadata in place.
func (e *ChunkEmbedder) EmbedChunks(ctx context.Context, doc *domain.Document, seg domain.Segmentation) ([]domain.Embedding, error) {
	if len(seg.Chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(seg.Chunks))
	for i := range seg.Chunks {
		chunk := &seg.Chunks[i]
		var terms []string
		if e.terms != nil {
			terms = e.terms.MatchTerms(chunk.Text, maxPreambleTerms)
		}
		section, _ := seg.SectionByID(chunk.SectionID)
		texts[i] = EnrichChunkText(doc, section, chunk.Text, terms)
		chunk.Metadata.Enriched = true
		chunk.Metadata.GlossaryTerms = terms
	}

	vectors, err := e.embedBatches(ctx, texts)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Embedding, len(seg.Chunks))
	for i, chunk := range seg.Chunks {
		out[i] = domain.Embedding{ChunkID: chunk.ID, Vector: vectors[i], Model: e.cfg.Model}
	}
	return out, nil
}

func (e *ChunkEmbedder) embedBatches(ctx context.Context, texts []string) ([][]float32, error) {
	batchCount := (len(texts) + e.cfg.BatchSize - 1) / e.cfg.BatchSize
	results := make([][][]float32, batchCount)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for b := 0; b < batchCount; b++ {
		start := b * e.cfg.BatchSize
		end := min(start+e.cfg.BatchSize, len(texts))
		batch := texts[start:end]
		g.Go(func() error {
			vectors, err := e.provider.Embed(gctx, batch)
			if err != nil {
				return domain.WrapError(domain.ErrEmbeddingFailed, "embed batch", fmt.Errorf("batch %d: %w", b, err))
			}
			if len(vectors) != len(batch) {
				return domain.WrapError(domain.ErrEmbeddingFailed, "embed batch",
					fmt.Errorf("batch %d: vectors/texts mismatch: %d/%d", b, len(vectors), len(batch)))
			}
			for i, vec := range vectors {
				if e.cfg.Dimension > 0 && len(vec) != e.cfg.Dimension {
					return domain.WrapError(domain.ErrDimensionMismatch, "embed batch",
						fmt.Errorf("text %d: got %d, want %d", start+i, len(vec), e.cfg.Dimension))
				}
			}
			results[b] = vectors
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for _, vectors := range results {
		out = append(out, vectors...)
	}
	return out, nil
}

// EnrichChunkText prepends the known document context and glossary terms to the chunk text.
func EnrichChunkText(doc *domain.Document, section domain.Section, text string, terms []string) string {
	var b strings.Builder
	line := func(label, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
		b.WriteByte('\n')
	}
	if doc != nil {
		line("Verzekeraar", doc.InsurerName)
		line("Product", doc.ProductName)
		line("Documenttype", doc.DocumentType)
	}
	line("Sectie", strings.TrimSpace(section.Path+" "+section.Title))
	line("Begrippen", strings.Join(terms, ", "))
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	b.WriteString(text)
	return b.String()
}
