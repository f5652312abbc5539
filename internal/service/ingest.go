package service

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cloo-solutions/obsidian/internal/chunker"
	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/cloo-solutions/obsidian/internal/embedding"
	"github.com/cloo-solutions/obsidian/internal/index"
	"github.com/cloo-solutions/obsidian/internal/logging"
	"github.com/cloo-solutions/obsidian/internal/telemetry"
)

// IndexPolicy decides when freshly ingested chunks become searchable.
type IndexPolicy string

const (
	// IndexPolicyImmediate inserts new vectors into the active version and
	// into any version currently being built.
	IndexPolicyImmediate IndexPolicy = "immediate"
	// IndexPolicyDeferred leaves new chunks invisible until the next rebuild.
	IndexPolicyDeferred IndexPolicy = "deferred"
)

// ParseIndexPolicy validates a configured policy name.
func ParseIndexPolicy(s string) (IndexPolicy, error) {
	switch p := IndexPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case IndexPolicyImmediate, IndexPolicyDeferred:
		return p, nil
	case "":
		return IndexPolicyImmediate, nil
	default:
		return "", domain.ConfigError("unknown index policy %q", s)
	}
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// StaleMarker is notified when stored chunks and the active version diverge.
type StaleMarker interface {
	MarkStale()
}

// IngestInput is one document's extracted text plus optional raw bytes.
type IngestInput struct {
	Filename  string
	SizeBytes int64
	Content   []byte
	Sections  []chunker.Section
}

// IngestResult reports what an ingest stored and indexed.
type IngestResult struct {
	Document      *domain.Document
	ChunksIndexed int
	ChunksSkipped int
}

// IngestDeps wires the ingest pipeline. Blobs and IndexStore are optional.
type IngestDeps struct {
	Store      DocumentStore
	Tx         TxRunner
	Chunker    *chunker.Chunker
	Embedder   embedding.Embedder
	Registry   *index.Registry
	IndexStore IndexStore
	Blobs      BlobStorage
	Stale      StaleMarker
	Policy     IndexPolicy
	Workers    int
	Logger     *zap.Logger
}

// IngestService chunks, embeds and stores documents.
type IngestService struct {
	store      DocumentStore
	tx         TxRunner
	chunker    *chunker.Chunker
	embedder   embedding.Embedder
	registry   *index.Registry
	indexStore IndexStore
	blobs      BlobStorage
	stale      StaleMarker
	policy     IndexPolicy
	workers    int
	logger     *zap.Logger
	uuidGen    UUIDGenerator
	now        func() time.Time
}

// NewIngestService creates an IngestService.
func NewIngestService(deps IngestDeps) *IngestService {
	tx := deps.Tx
	if tx == nil {
		tx = DirectTx(deps.Store)
	}
	policy := deps.Policy
	if policy == "" {
		policy = IndexPolicyImmediate
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = 4
	}
	return &IngestService{
		store:      deps.Store,
		tx:         tx,
		chunker:    deps.Chunker,
		embedder:   deps.Embedder,
		registry:   deps.Registry,
		indexStore: deps.IndexStore,
		blobs:      deps.Blobs,
		stale:      deps.Stale,
		policy:     policy,
		workers:    workers,
		logger:     logging.OrNop(deps.Logger),
		uuidGen:    &DefaultUUIDGenerator{},
		now:        time.Now,
	}
}

// Policy returns the configured index policy.
func (s *IngestService) Policy() IndexPolicy {
	return s.policy
}

// BlobKey is the object key raw bytes of a document are stored under.
func BlobKey(documentID, filename string) string {
	return path.Join("documents", documentID, filepath.Base(filename))
}

// Ingest stores one document. The document row is written first in the
// processing state; any later failure marks it failed before returning.
func (s *IngestService) Ingest(ctx context.Context, in IngestInput) (*IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.Ingest", telemetry.SpanAttributes{
		Operation: "ingest",
	})
	defer span.End()

	filename := strings.TrimSpace(in.Filename)
	if filename == "" {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrMissingRequiredField.Message, errors.New("filename"))
	}
	if in.SizeBytes < 0 {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid size", fmt.Errorf("size_bytes %d", in.SizeBytes))
	}
	modality, err := domain.ModalityFromFilename(filename)
	if err != nil {
		return nil, err
	}

	size := in.SizeBytes
	if size == 0 {
		size = int64(len(in.Content))
	}

	doc := domain.NewDocument(s.uuidGen.NewString(), filename, modality, size, s.now().UTC())
	if err := s.store.PutDocument(ctx, doc); err != nil {
		span.SetError(err)
		return nil, err
	}

	logger := s.logger.With(zap.String("document_id", doc.ID), zap.String("filename", filename))

	fail := func(cause error) (*IngestResult, error) {
		span.SetError(cause)
		logger.Error("ingest failed", zap.Error(cause))
		if err := s.store.UpdateDocumentStatus(context.WithoutCancel(ctx), doc.ID, domain.DocumentStatusFailed, 0); err != nil {
			logger.Warn("could not mark document failed", zap.Error(err))
		}
		return nil, cause
	}

	if s.blobs != nil && len(in.Content) > 0 {
		contentType := mime.TypeByExtension(filepath.Ext(filename))
		if err := s.blobs.PutObject(ctx, BlobKey(doc.ID, filename), in.Content, contentType); err != nil {
			return fail(fmt.Errorf("store raw bytes: %w", err))
		}
	}

	var chunks []domain.Chunk
	for chunk := range s.chunker.ChunkSections(doc.ID, in.Sections) {
		chunks = append(chunks, chunk)
	}

	var vectors []domain.Vector
	skipped := 0
	if s.policy == IndexPolicyImmediate {
		vectors, skipped, err = s.embedChunks(ctx, logger, chunks)
		if err != nil {
			return fail(err)
		}
	}

	err = s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Documents().PutChunks(ctx, doc.ID, chunks); err != nil {
			return err
		}
		return repos.Documents().UpdateDocumentStatus(ctx, doc.ID, domain.DocumentStatusIndexed, len(chunks))
	})
	if err != nil {
		return fail(err)
	}
	doc.Status = domain.DocumentStatusIndexed
	doc.TotalChunks = len(chunks)

	switch {
	case len(chunks) == 0:
	case s.policy == IndexPolicyDeferred:
		s.markStale()
	default:
		s.publish(ctx, logger, vectors)
	}

	logger.Info("document ingested",
		zap.String("modality", string(modality)),
		zap.Int("chunks", len(chunks)),
		zap.Int("indexed", len(vectors)),
		zap.Int("skipped", skipped),
		zap.String("policy", string(s.policy)))

	return &IngestResult{
		Document:      doc,
		ChunksIndexed: len(vectors),
		ChunksSkipped: skipped,
	}, nil
}

// embedChunks skips chunks the embedder rejects and stops on any other error.
func (s *IngestService) embedChunks(ctx context.Context, logger *zap.Logger, chunks []domain.Chunk) ([]domain.Vector, int, error) {
	vectors := make([]domain.Vector, 0, len(chunks))
	skipped := 0
	for _, chunk := range chunks {
		vec, err := s.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			if domain.HasCode(err, domain.ErrCodeEmbedding) {
				skipped++
				logger.Debug("chunk not embeddable, skipped",
					zap.String("chunk_id", chunk.ID),
					zap.Int("sequence", chunk.SequenceIndex),
					zap.Error(err))
				continue
			}
			return nil, 0, fmt.Errorf("embed chunk %d: %w", chunk.SequenceIndex, err)
		}
		vectors = append(vectors, domain.Vector{ChunkID: chunk.ID, Embedding: vec})
	}
	return vectors, skipped, nil
}

// publish makes vectors visible in every live version. Targets are read
// after the chunks are stored, so a rebuild that started earlier sees them
// through its building version and one that starts later lists the chunks.
func (s *IngestService) publish(ctx context.Context, logger *zap.Logger, vectors []domain.Vector) {
	targets := s.registry.Targets()
	if len(targets) == 0 {
		s.markStale()
		return
	}

	for _, v := range targets {
		for _, vec := range vectors {
			if err := v.Insert(vec.ChunkID, vec.Embedding); err != nil {
				logger.Warn("vector rejected by index version",
					zap.Int64("version_id", v.ID()),
					zap.String("chunk_id", vec.ChunkID),
					zap.Error(err))
			}
		}
		if s.indexStore == nil || len(vectors) == 0 {
			continue
		}
		if err := s.indexStore.SaveVersion(ctx, v.ID(), v.CreatedAt(), vectors); err != nil {
			logger.Warn("persisting vectors failed, index marked stale",
				zap.Int64("version_id", v.ID()),
				zap.Error(err))
			s.markStale()
		}
	}
}

func (s *IngestService) markStale() {
	if s.stale != nil {
		s.stale.MarkStale()
	}
}

// BatchItem is the outcome of one document in IngestBatch.
type BatchItem struct {
	Result *IngestResult
	Err    error
}

// IngestBatch ingests documents concurrently, bounded by the worker limit.
// Documents are independent; one failure does not stop the others. The
// returned error joins every per-document failure.
func (s *IngestService) IngestBatch(ctx context.Context, inputs []IngestInput) ([]BatchItem, error) {
	items := make([]BatchItem, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, in := range inputs {
		g.Go(func() error {
			res, err := s.Ingest(gctx, in)
			items[i] = BatchItem{Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for i, item := range items {
		if item.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", inputs[i].Filename, item.Err))
		}
	}
	return items, errors.Join(errs...)
}
