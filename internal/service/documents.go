package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/cloo-solutions/obsidian/internal/logging"
	"github.com/cloo-solutions/obsidian/internal/pagination"
	"github.com/cloo-solutions/obsidian/internal/telemetry"
)

const (
	recentQueriesInStats = 10
	statsDays            = 7
)

// Stats aggregates corpus and usage counters.
type Stats struct {
	TotalDocuments   int
	TotalChunks      int
	TotalQueries     int
	FileDistribution map[domain.Modality]int
	RecentQueries    []*domain.QueryRecord
	QueriesByDay     []domain.DailyQueryCount
	ActiveVersion    *domain.IndexVersionInfo
}

// ListDocumentsInput selects one page of documents.
type ListDocumentsInput struct {
	Cursor string
	Limit  int
}

// DocumentService reads and deletes stored documents.
type DocumentService struct {
	store    DocumentStore
	blobs    BlobStorage
	queryLog QueryLogStore
	status   func() IndexStatus
	stale    StaleMarker
	logger   *zap.Logger
}

// NewDocumentService creates a DocumentService. blobs and queryLog may be nil.
func NewDocumentService(
	store DocumentStore,
	blobs BlobStorage,
	queryLog QueryLogStore,
	coordinator *RebuildCoordinator,
	logger *zap.Logger,
) *DocumentService {
	s := &DocumentService{
		store:    store,
		blobs:    blobs,
		queryLog: queryLog,
		logger:   logging.OrNop(logger),
	}
	if coordinator != nil {
		s.status = coordinator.Status
		s.stale = coordinator
	}
	return s
}

func (s *DocumentService) Get(ctx context.Context, id string) (*domain.Document, error) {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Get", telemetry.SpanAttributes{
		DocumentID: id,
		Operation:  "get",
	})
	defer span.End()

	return s.store.GetDocument(ctx, id)
}

func (s *DocumentService) List(ctx context.Context, in ListDocumentsInput) (*domain.DocumentPage, error) {
	cursor, err := pagination.DecodeCursor(in.Cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}
	return s.store.ListDocuments(ctx, cursor, pagination.ClampLimit(in.Limit))
}

// Delete removes the document and its chunks. Index versions keep the
// chunks' vectors until the next rebuild; queries skip them meanwhile.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Delete", telemetry.SpanAttributes{
		DocumentID: id,
		Operation:  "delete",
	})
	defer span.End()

	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, id); err != nil {
		if !errors.Is(err, domain.ErrDocumentNotFound) {
			span.SetError(err)
		}
		return err
	}

	if s.stale != nil && doc.TotalChunks > 0 {
		s.stale.MarkStale()
	}
	if s.blobs != nil {
		if err := s.blobs.DeleteObject(ctx, BlobKey(doc.ID, doc.Filename)); err != nil {
			s.logger.Warn("raw object delete failed", zap.String("document_id", id), zap.Error(err))
		}
	}
	s.logger.Info("document deleted", zap.String("document_id", id), zap.Int("chunks", doc.TotalChunks))
	return nil
}

// Chunks returns the stored chunks of a document in sequence order.
func (s *DocumentService) Chunks(ctx context.Context, id string) ([]domain.Chunk, error) {
	if _, err := s.store.GetDocument(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListChunks(ctx, id)
}

func (s *DocumentService) Stats(ctx context.Context) (*Stats, error) {
	docs, err := s.store.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	chunks, err := s.store.CountChunks(ctx)
	if err != nil {
		return nil, err
	}
	dist, err := s.store.CountByModality(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalDocuments:   docs,
		TotalChunks:      chunks,
		FileDistribution: dist,
		RecentQueries:    []*domain.QueryRecord{},
		QueriesByDay:     []domain.DailyQueryCount{},
	}

	if s.queryLog != nil {
		if stats.TotalQueries, err = s.queryLog.CountQueries(ctx); err != nil {
			return nil, err
		}
		if stats.RecentQueries, err = s.queryLog.ListQueries(ctx, recentQueriesInStats); err != nil {
			return nil, err
		}
		if stats.QueriesByDay, err = s.queryLog.CountQueriesByDay(ctx, statsDays); err != nil {
			return nil, err
		}
	}

	if s.status != nil {
		stats.ActiveVersion = s.status().Active
	}
	return stats, nil
}
