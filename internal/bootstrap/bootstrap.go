package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/polis-rag/internal/config"
	"github.com/kirillkom/polis-rag/internal/core/ports"
	"github.com/kirillkom/polis-rag/internal/core/usecase"
	"github.com/kirillkom/polis-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/polis-rag/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/polis-rag/internal/infrastructure/glossary"
	"github.com/kirillkom/polis-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/polis-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/polis-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/polis-rag/internal/infrastructure/rerank"
	"github.com/kirillkom/polis-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/polis-rag/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/polis-rag/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config

	Queue ports.MessageQueue
	Repo  ports.DocumentRepository

	IngestUC   *usecase.IngestDocumentUseCase
	ProcessUC  *usecase.ProcessDocumentUseCase
	RetrieveUC *usecase.RetrieveUseCase
	AnswerUC   *usecase.AnswerUseCase

	closeFn func()
}

// searchStack is what every entrypoint needs: the database, the index and the retriever.
type searchStack struct {
	db        *sql.DB
	repo      *postgres.DocumentRepository
	index     ports.ChunkIndex
	ollama    *ollama.Client
	embedder  *ollama.Embedder
	retriever *usecase.RetrieveUseCase
}

func newSearchStack(ctx context.Context, cfg config.Config) (*searchStack, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db, cfg.EmbeddingDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	providerExecutor := resilience.NewExecutor(providerResilience(cfg))
	ollamaClient := ollama.New(cfg.OllamaURL, ollama.Options{
		GenModel:    cfg.OllamaGenModel,
		EmbedModel:  cfg.OllamaEmbedModel,
		VisionModel: cfg.OllamaVisionModel,
	}, providerExecutor)
	embedder := ollama.NewEmbedder(ollamaClient)

	index, err := newChunkIndex(cfg, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	retriever := usecase.NewRetrieveUseCase(embedder, index, newReranker(cfg), usecase.RetrievalDefaults{
		TopN:          cfg.RAGTopN,
		MMRK:          cfg.RAGMMRK,
		Lambda:        cfg.RAGLambda,
		TopK:          cfg.RAGTopK,
		TokenLimit:    cfg.RAGTokenLimit,
		MinSimilarity: cfg.RAGMinSimilarity,
		Stitching:     cfg.RAGStitching,
		Reranking:     cfg.RAGReranking,
	})

	return &searchStack{
		db:        db,
		repo:      postgres.NewDocumentRepository(db),
		index:     index,
		ollama:    ollamaClient,
		embedder:  embedder,
		retriever: retriever,
	}, nil
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	stack, err := newSearchStack(ctx, cfg)
	if err != nil {
		return nil, err
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = stack.db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
		Concurrency:        cfg.WorkerConcurrency,
	})
	if err != nil {
		_ = stack.db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	vocabulary, err := glossary.Load(cfg.GlossaryPath)
	if err != nil {
		queue.Close()
		_ = stack.db.Close()
		return nil, fmt.Errorf("load glossary: %w", err)
	}

	extractor := newExtractor(cfg, vocabulary, stack.ollama)
	segmenter := chunking.NewSegmenter(cfg.ChunkSize, cfg.ChunkOverlap, chunking.DefaultRules())
	chunkEmbedder := usecase.NewChunkEmbedder(stack.embedder, vocabulary, usecase.EmbedderConfig{
		BatchSize:   cfg.EmbedBatchSize,
		Concurrency: cfg.EmbedConcurrency,
		Dimension:   cfg.EmbeddingDim,
		Model:       cfg.OllamaEmbedModel,
	})
	content := postgres.NewContentRepository(stack.db, cfg.EmbeddingDim)

	ingestUC := usecase.NewIngestDocumentUseCase(stack.repo, storage, queue)
	processUC := usecase.NewProcessDocumentUseCase(
		stack.repo, storage, extractor, segmenter, chunkEmbedder, content, stack.index, cfg.ProcessClaimStale,
	)
	answerUC := usecase.NewAnswerUseCase(stack.retriever, ollama.NewGenerator(stack.ollama))

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   stack.repo,

		IngestUC:   ingestUC,
		ProcessUC:  processUC,
		RetrieveUC: stack.retriever,
		AnswerUC:   answerUC,

		closeFn: func() {
			queue.Close()
			_ = stack.db.Close()
		},
	}, nil
}

// NewSearchOnly wires retrieval without storage, queue or the ingest pipeline.
func NewSearchOnly(ctx context.Context, cfg config.Config) (*App, error) {
	stack, err := newSearchStack(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &App{
		Config:     cfg,
		Repo:       stack.repo,
		RetrieveUC: stack.retriever,
		closeFn: func() {
			_ = stack.db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func providerResilience(cfg config.Config) resilience.Config {
	rc := resilience.DefaultConfig()
	rc.RetryMaxAttempts = cfg.ProviderRetryMax
	rc.BreakerEnabled = cfg.ProviderBreakerOn
	rc.RateLimitRPS = cfg.EmbedRateLimitRPS
	rc.RateLimitBurst = cfg.EmbedRateLimitBurst
	return rc
}

func newExtractor(cfg config.Config, vocabulary *glossary.Glossary, client *ollama.Client) *pdftext.Cascade {
	gate := pdftext.QualityGate{
		MinWords:      cfg.ExtractMinWords,
		MinChars:      cfg.ExtractMinChars,
		MinAlnumRatio: cfg.ExtractMinAlnumRatio,
	}
	strategies := []pdftext.Strategy{
		pdftext.NewStructuredStrategy(),
		pdftext.NewBinaryStrategy(vocabulary),
	}
	if strings.TrimSpace(cfg.OllamaVisionModel) != "" {
		strategies = append(strategies, pdftext.NewVisionStrategy(
			ollama.NewDescriber(client),
			pdftext.NewPopplerRenderer(nil, cfg.ExtractRendererPath),
			cfg.ExtractVisionMaxSize, cfg.ExtractVisionPages, cfg.ExtractVisionTimeout,
		))
	}
	return pdftext.NewCascade(gate, pdftext.NewFilenameFallback(vocabulary), strategies...)
}

func newChunkIndex(cfg config.Config, db *sql.DB) (ports.ChunkIndex, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.VectorBackend)) {
	case "", "pgvector":
		return postgres.NewChunkIndex(db), nil
	case "qdrant":
		return postgres.NewCompletedIndex(qdrant.New(cfg.QdrantURL, cfg.QdrantCollection), db), nil
	default:
		return nil, fmt.Errorf("unknown VECTOR_BACKEND %q", cfg.VectorBackend)
	}
}

func newReranker(cfg config.Config) ports.Reranker {
	if strings.TrimSpace(cfg.RerankURL) == "" {
		return usecase.NewLexicalReranker()
	}
	slog.Info("rerank_cross_encoder_enabled", "url", cfg.RerankURL, "model", cfg.RerankModel)
	return rerank.New(cfg.RerankURL, cfg.RerankModel, cfg.RerankTimeout, resilience.NewExecutor(resilience.DefaultConfig()))
}
