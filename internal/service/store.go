package service

import (
	"context"
	"time"

	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/cloo-solutions/obsidian/internal/pagination"
)

// DocumentStore persists documents and their chunks. Implementations report
// backend failures as STORE_UNAVAILABLE domain errors.
type DocumentStore interface {
	PutDocument(ctx context.Context, d *domain.Document) error
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	ListDocuments(ctx context.Context, cursor *pagination.Cursor, limit int) (*domain.DocumentPage, error)
	// DeleteDocument removes the document and its chunks, or returns ErrDocumentNotFound.
	DeleteDocument(ctx context.Context, id string) error
	UpdateDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, totalChunks int) error
	// PutChunks upserts by chunk id, so replaying an ingest is idempotent.
	PutChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error
	// ListChunks returns the chunks of documentID, or of every document when it is empty.
	ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)
	// GetChunks omits ids that no longer exist.
	GetChunks(ctx context.Context, ids []string) ([]domain.Chunk, error)
	CountDocuments(ctx context.Context) (int, error)
	CountChunks(ctx context.Context) (int, error)
	CountByModality(ctx context.Context) (map[domain.Modality]int, error)
}

// IndexStore persists index versions so the active one survives restarts.
type IndexStore interface {
	// GetActiveVersion returns ErrVersionNotFound when nothing was promoted yet.
	GetActiveVersion(ctx context.Context) (int64, error)
	// SaveVersion upserts vectors into versionID, creating the version if needed.
	SaveVersion(ctx context.Context, versionID int64, createdAt time.Time, vectors []domain.Vector) error
	SetActiveVersion(ctx context.Context, versionID int64) error
	LoadVersion(ctx context.Context, versionID int64) (*domain.IndexVersionInfo, []domain.Vector, error)
	LatestVersionID(ctx context.Context) (int64, error)
	// PruneVersions keeps the newest keep versions plus the active one and
	// returns how many were deleted.
	PruneVersions(ctx context.Context, keep int) (int, error)
}

// QueryLogStore records answered queries for history and stats.
type QueryLogStore interface {
	RecordQuery(ctx context.Context, rec *domain.QueryRecord) error
	ListQueries(ctx context.Context, limit int) ([]*domain.QueryRecord, error)
	CountQueries(ctx context.Context) (int, error)
	CountQueriesByDay(ctx context.Context, days int) ([]domain.DailyQueryCount, error)
}

// BlobStorage keeps the raw uploaded bytes of a document.
type BlobStorage interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
}
