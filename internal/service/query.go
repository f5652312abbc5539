package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/cloo-solutions/obsidian/internal/embedding"
	"github.com/cloo-solutions/obsidian/internal/index"
	"github.com/cloo-solutions/obsidian/internal/logging"
	"github.com/cloo-solutions/obsidian/internal/telemetry"
)

// QueryConfig bounds retrieval and context assembly.
type QueryConfig struct {
	TopK            int
	MinScore        float32
	PreviewChars    int
	MaxContextChars int
}

// DefaultQueryConfig returns the retrieval defaults.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		TopK:            5,
		MinScore:        0.01,
		PreviewChars:    200,
		MaxContextChars: 12000,
	}
}

// QueryInput is one natural-language query.
type QueryInput struct {
	Query string
	TopK  int
}

// QueryResult is the answer with its ordered citations. VersionID is the
// index version the answer was retrieved from.
type QueryResult struct {
	Answer    string
	Citations []domain.Citation
	VersionID int64
}

// QueryService answers queries against the active index version.
type QueryService struct {
	registry *index.Registry
	embedder embedding.Embedder
	store    DocumentStore
	queryLog QueryLogStore
	cfg      QueryConfig
	logger   *zap.Logger
	uuidGen  UUIDGenerator
	now      func() time.Time
}

// NewQueryService creates a QueryService. queryLog may be nil.
func NewQueryService(
	registry *index.Registry,
	embedder embedding.Embedder,
	store DocumentStore,
	queryLog QueryLogStore,
	cfg QueryConfig,
	logger *zap.Logger,
) *QueryService {
	defaults := DefaultQueryConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = defaults.TopK
	}
	if cfg.PreviewChars <= 0 {
		cfg.PreviewChars = defaults.PreviewChars
	}
	return &QueryService{
		registry: registry,
		embedder: embedder,
		store:    store,
		queryLog: queryLog,
		cfg:      cfg,
		logger:   logging.OrNop(logger),
		uuidGen:  &DefaultUUIDGenerator{},
		now:      time.Now,
	}
}

type candidate struct {
	hit   index.Hit
	chunk domain.Chunk
	doc   *domain.Document
}

// Answer retrieves the best chunks for the query and asks gen to answer from
// them. The active version is captured once, so a concurrent promotion never
// mixes two versions in one answer. Embedding and generator failures produce
// ApologyAnswer; IndexNotReady and store failures are returned as errors.
func (s *QueryService) Answer(ctx context.Context, in QueryInput, gen Generator) (*QueryResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "QueryService.Answer", telemetry.SpanAttributes{
		Operation: "query",
	})
	defer span.End()

	start := s.now()
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrMissingRequiredField.Message, errors.New("query"))
	}
	topK := in.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	version, err := s.registry.Active()
	if err != nil {
		return nil, err
	}
	span.SetVersion(version.ID())

	result, err := s.answer(ctx, version, query, topK, gen)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	s.record(ctx, query, topK, result, s.now().Sub(start))
	return result, nil
}

func (s *QueryService) answer(ctx context.Context, version *index.Version, query string, topK int, gen Generator) (*QueryResult, error) {
	logger := s.logger.With(zap.Int64("version_id", version.ID()))
	apology := &QueryResult{Answer: ApologyAnswer, Citations: []domain.Citation{}, VersionID: version.ID()}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("query could not be embedded", zap.Error(err))
		return apology, nil
	}

	hits, err := version.Search(vec, topK, s.cfg.MinScore)
	if err != nil {
		logger.Warn("query vector rejected by index", zap.Error(err))
		return apology, nil
	}

	candidates, err := s.resolve(ctx, hits)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &QueryResult{Answer: NoDataAnswer, Citations: []domain.Citation{}, VersionID: version.ID()}, nil
	}

	contextBlock, citations := s.assemble(candidates)

	answer, err := gen.Generate(ctx, query, contextBlock, citations)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("generator failed", zap.Error(err))
		return apology, nil
	}

	return &QueryResult{Answer: answer, Citations: citations, VersionID: version.ID()}, nil
}

// resolve loads chunks and documents for hits, dropping references to
// chunks or documents deleted since the version was built.
func (s *QueryService) resolve(ctx context.Context, hits []index.Hit) ([]candidate, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	chunks, err := s.store.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	docs := make(map[string]*domain.Document)
	out := make([]candidate, 0, len(hits))
	for _, h := range hits {
		chunk, ok := byID[h.ChunkID]
		if !ok {
			continue
		}
		doc, seen := docs[chunk.DocumentID]
		if !seen {
			doc, err = s.store.GetDocument(ctx, chunk.DocumentID)
			if err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
				return nil, err
			}
			docs[chunk.DocumentID] = doc
		}
		if doc == nil {
			continue
		}
		out = append(out, candidate{hit: h, chunk: chunk, doc: doc})
	}
	return out, nil
}

// assemble builds the "[n] text" context block in score order. Entries that
// would push the block past MaxContextChars are left out along with their
// citations; the first entry is always kept, truncated if needed.
func (s *QueryService) assemble(candidates []candidate) (string, []domain.Citation) {
	var b strings.Builder
	citations := make([]domain.Citation, 0, len(candidates))
	used := 0

	for _, c := range candidates {
		n := len(citations) + 1
		entry := fmt.Sprintf("[%d] %s", n, c.chunk.Text)
		sep := 0
		if n > 1 {
			sep = 2
		}
		size := utf8.RuneCountInString(entry) + sep

		if limit := s.cfg.MaxContextChars; limit > 0 && used+size > limit {
			if n > 1 {
				break
			}
			entry = domain.Preview(entry, limit)
			size = limit
		}

		if n > 1 {
			b.WriteString("\n\n")
		}
		b.WriteString(entry)
		used += size

		citations = append(citations, domain.Citation{
			Index:       n,
			ChunkID:     c.chunk.ID,
			DocumentID:  c.doc.ID,
			Filename:    c.doc.Filename,
			Modality:    c.doc.Modality,
			Score:       c.hit.Score,
			PageNumber:  c.chunk.PageNumber,
			Timestamp:   c.chunk.Timestamp,
			TextPreview: domain.Preview(c.chunk.Text, s.cfg.PreviewChars),
		})
	}
	return b.String(), citations
}

// record writes the query history entry. Failures are logged only.
func (s *QueryService) record(ctx context.Context, query string, topK int, result *QueryResult, elapsed time.Duration) {
	if s.queryLog == nil {
		return
	}
	rec := &domain.QueryRecord{
		ID:            s.uuidGen.NewString(),
		Query:         query,
		Answer:        result.Answer,
		TopK:          topK,
		CitationCount: len(result.Citations),
		VersionID:     result.VersionID,
		DurationMs:    int(elapsed.Milliseconds()),
		CreatedAt:     s.now().UTC(),
	}
	if err := s.queryLog.RecordQuery(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Warn("query history write failed", zap.Error(err))
	}
}

// History returns the newest recorded queries.
func (s *QueryService) History(ctx context.Context, limit int) ([]*domain.QueryRecord, error) {
	if s.queryLog == nil {
		return []*domain.QueryRecord{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	return s.queryLog.ListQueries(ctx, limit)
}
