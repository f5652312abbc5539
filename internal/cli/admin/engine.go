// Package admin implements the obsidiand daemon commands.
package admin

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/obsidian/internal/chunker"
	"github.com/cloo-solutions/obsidian/internal/config"
	"github.com/cloo-solutions/obsidian/internal/database"
	"github.com/cloo-solutions/obsidian/internal/embedding"
	"github.com/cloo-solutions/obsidian/internal/index"
	"github.com/cloo-solutions/obsidian/internal/memstore"
	"github.com/cloo-solutions/obsidian/internal/openai"
	"github.com/cloo-solutions/obsidian/internal/repository"
	"github.com/cloo-solutions/obsidian/internal/service"
	"github.com/cloo-solutions/obsidian/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// engine is the fully wired retrieval stack shared by serve and rebuild.
type engine struct {
	pool        *pgxpool.Pool
	registry    *index.Registry
	coordinator *service.RebuildCoordinator
	ingest      *service.IngestService
	documents   *service.DocumentService
	query       *service.QueryService
	generator   service.Generator
}

// Close releases the database pool, if any.
func (e *engine) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
}

// indexReady reports whether queries can be served.
func (e *engine) indexReady() bool {
	_, err := e.registry.Active()
	return err == nil
}

func (e *engine) activeVersion() (int64, bool) {
	v, err := e.registry.Active()
	if err != nil {
		return 0, false
	}
	return v.ID(), true
}

type stores struct {
	documents service.DocumentStore
	index     service.IndexStore
	queryLog  service.QueryLogStore
	tx        service.TxRunner
}

func newEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*engine, error) {
	policy, err := service.ParseIndexPolicy(cfg.IndexPolicy)
	if err != nil {
		return nil, err
	}

	ch, err := chunker.New(cfg.ChunkerConfig())
	if err != nil {
		return nil, err
	}

	e := &engine{}
	embedder, generator, err := newModels(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := embedding.CheckMetric(embedder); err != nil {
		return nil, err
	}
	e.generator = generator

	var st stores
	if cfg.HasDatabase() {
		pool, err := database.NewPool(ctx, database.Config{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DatabaseMaxConns,
		})
		if err != nil {
			return nil, err
		}
		e.pool = pool
		st = stores{
			documents: repository.NewDocumentRepository(pool),
			index:     repository.NewIndexRepository(pool),
			queryLog:  repository.NewQueryLogRepository(pool),
			tx:        repository.NewTxRunner(pool),
		}
		logger.Info("connected to database")
	} else {
		mem := memstore.New()
		st = stores{documents: mem, index: mem, queryLog: mem}
		logger.Warn("no database configured, using in-memory store")
	}

	var blobs service.BlobStorage
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		logger.Info("S3 bucket ready", zap.String("bucket", s3Client.Bucket()))
		blobs = s3Client
	}

	e.registry = index.NewRegistry(embedder.Dimension())
	e.coordinator = service.NewRebuildCoordinator(e.registry, st.documents, st.index, embedder, cfg.KeepVersions, logger)
	e.ingest = service.NewIngestService(service.IngestDeps{
		Store:      st.documents,
		Tx:         st.tx,
		Chunker:    ch,
		Embedder:   embedder,
		Registry:   e.registry,
		IndexStore: st.index,
		Blobs:      blobs,
		Stale:      e.coordinator,
		Policy:     policy,
		Workers:    cfg.IngestWorkers,
		Logger:     logger,
	})
	e.documents = service.NewDocumentService(st.documents, blobs, st.queryLog, e.coordinator, logger)
	e.query = service.NewQueryService(e.registry, embedder, st.documents, st.queryLog, service.QueryConfig{
		TopK:            cfg.QueryTopK,
		MinScore:        float32(cfg.QueryMinScore),
		PreviewChars:    cfg.PreviewChars,
		MaxContextChars: cfg.MaxContextChars,
	}, logger)

	return e, nil
}

// newModels picks the OpenAI client for both embedding and generation when a
// key is configured, and the local keyword embedder with the extractive
// generator otherwise.
func newModels(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, service.Generator, error) {
	if cfg.HasOpenAI() {
		client, err := openai.NewClient(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			BaseURL:             cfg.OpenAIBaseURL,
			EmbeddingModel:      goopenai.EmbeddingModel(cfg.OpenAIEmbeddingModel),
			EmbeddingDimensions: cfg.EmbeddingDimension,
			ChatModel:           cfg.OpenAIChatModel,
			RequestsPerSecond:   cfg.OpenAIRPS,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using OpenAI embedder", zap.Int("dimension", client.Dimension()))
		return client, client, nil
	}

	dim := cfg.EmbeddingDimension
	if dim <= 0 {
		dim = embedding.DefaultKeywordDimension
	}
	kw, err := embedding.NewKeyword(dim)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using local keyword embedder", zap.Int("dimension", dim))
	return kw, service.ExtractiveGenerator{}, nil
}
