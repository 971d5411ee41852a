package usecase

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/kirillkom/polis-rag/internal/core/domain"
)

type termsFake map[string]bool

func (f termsFake) MatchTerms(text string, limit int) []string {
	var out []string
	for _, term := range []string{"eigen risico", "dekking", "opzet"} {
		if f[term] && strings.Contains(strings.ToLower(text), term) {
			out = append(out, term)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func embedFixture(chunks int) (*domain.Document, domain.Segmentation) {
	doc := &domain.Document{ID: "doc-1", InsurerName: "Nationale Verzekeraar", ProductName: "AVB Zakelijk", DocumentType: "Polisvoorwaarden"}
	seg := domain.Segmentation{
		RunID:    "run-1",
		Sections: []domain.Section{{ID: "sec-1", Path: "2.1", Title: "Dekking"}},
	}
	for i := 0; i < chunks; i++ {
		seg.Chunks = append(seg.Chunks, domain.Chunk{
			ID:        fmt.Sprintf("chunk-%03d", i),
			SectionID: "sec-1",
			Text:      fmt.Sprintf("Clausule %d: de dekking geldt met een eigen risico.", i),
		})
	}
	return doc, seg
}

func TestEnrichChunkTextPreamble(t *testing.T) {
	doc, _ := embedFixture(0)
	got := EnrichChunkText(doc, domain.Section{Path: "2.1", Title: "Dekking"}, "De verzekering dekt schade.", []string{"dekking", "eigen risico"})
	want := "Verzekeraar: Nationale Verzekeraar\n" +
		"Product: AVB Zakelijk\n" +
		"Documenttype: Polisvoorwaarden\n" +
		"Sectie: 2.1 Dekking\n" +
		"Begrippen: dekking, eigen risico\n\n" +
		"De verzekering dekt schade."
	if got != want {
		t.Fatalf("unexpected enrichment:\n got %q\nwant %q", got, want)
	}
}

func TestEnrichChunkTextOmitsUnknownFields(t *testing.T) {
	got := EnrichChunkText(&domain.Document{}, domain.Section{}, "Alleen tekst.", nil)
	if got != "Alleen tekst." {
		t.Fatalf("expected bare text, got %q", got)
	}
}

func TestEmbedChunksPreservesOrderAcrossBatches(t *testing.T) {
	doc, seg := embedFixture(70)
	provider := &hashProvider{dim: 8}
	embedder := NewChunkEmbedder(provider, termsFake{"dekking": true, "eigen risico": true}, EmbedderConfig{
		BatchSize:   32,
		Concurrency: 2,
		Dimension:   8,
		Model:       "nomic-embed-text",
	})

	embeddings, err := embedder.EmbedChunks(context.Background(), doc, seg)
	if err != nil {
		t.Fatalf("EmbedChunks() error = %v", err)
	}
	if len(embeddings) != 70 {
		t.Fatalf("expected 70 embeddings, got %d", len(embeddings))
	}
	if len(provider.batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(provider.batches))
	}
	for i, e := range embeddings {
		if e.ChunkID != seg.Chunks[i].ID || e.Model != "nomic-embed-text" {
			t.Fatalf("embedding %d out of order: %+v", i, e)
		}
		section, _ := seg.SectionByID(seg.Chunks[i].SectionID)
		want := hashVector(EnrichChunkText(doc, section, seg.Chunks[i].Text, seg.Chunks[i].Metadata.GlossaryTerms), 8)
		if !reflect.DeepEqual(e.Vector, want) {
			t.Fatalf("embedding %d does not belong to chunk %d", i, i)
		}
	}
	if !seg.Chunks[0].Metadata.Enriched || len(seg.Chunks[0].Metadata.GlossaryTerms) != 2 {
		t.Fatalf("expected glossary terms recorded on chunk metadata, got %+v", seg.Chunks[0].Metadata)
	}
}

func TestEmbedChunksIsDeterministic(t *testing.T) {
	doc, seg := embedFixture(3)
	embedder := NewChunkEmbedder(&hashProvider{dim: 16}, termsFake{"dekking": true}, EmbedderConfig{Dimension: 16})

	first, err := embedder.EmbedChunks(context.Background(), doc, seg)
	if err != nil {
		t.Fatalf("first EmbedChunks() error = %v", err)
	}
	second, err := embedder.EmbedChunks(context.Background(), doc, seg)
	if err != nil {
		t.Fatalf("second EmbedChunks() error = %v", err)
	}
	for i := range first {
		if cosine(first[i].Vector, second[i].Vector) < 0.999999 || !reflect.DeepEqual(first[i].Vector, second[i].Vector) {
			t.Fatalf("embedding %d differs between runs", i)
		}
	}
}

func TestEmbedChunksFailsWholeCall(t *testing.T) {
	doc, seg := embedFixture(40)
	seg.Chunks[35].Text = "poison"
	embedder := NewChunkEmbedder(&hashProvider{dim: 4, failOn: "poison"}, nil, EmbedderConfig{BatchSize: 32, Concurrency: 2, Dimension: 4})

	embeddings, err := embedder.EmbedChunks(context.Background(), doc, seg)
	if !errors.Is(err, domain.ErrEmbeddingFailed) {
		t.Fatalf("expected embedding failure, got %v", err)
	}
	if embeddings != nil {
		t.Fatalf("no partial result expected, got %d embeddings", len(embeddings))
	}
}

func TestEmbedChunksDimensionCheck(t *testing.T) {
	doc, seg := embedFixture(2)
	embedder := NewChunkEmbedder(&hashProvider{dim: 4}, nil, EmbedderConfig{Dimension: 768})

	if _, err := embedder.EmbedChunks(context.Background(), doc, seg); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}
