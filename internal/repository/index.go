package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// IndexRepository persists index versions and the active version pointer.
type IndexRepository struct {
	db dbtx
}

func NewIndexRepository(pool *pgxpool.Pool) *IndexRepository {
	return &IndexRepository{db: pool}
}

func (r *IndexRepository) GetActiveVersion(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT active_version_id FROM index_metadata WHERE id`).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrVersionNotFound
		}
		return 0, storeErr("get active version", err)
	}
	return id, nil
}

// SaveVersion creates versionID if needed and upserts vectors into it in a
// single transaction.
func (r *IndexRepository) SaveVersion(ctx context.Context, versionID int64, createdAt time.Time, vectors []domain.Vector) error {
	batch := &pgx.Batch{}
	batch.Queue(
		`INSERT INTO index_versions (version_id, created_at) VALUES ($1, $2)
		 ON CONFLICT (version_id) DO NOTHING`,
		versionID, createdAt,
	)
	for _, v := range vectors {
		batch.Queue(
			`INSERT INTO index_vectors (version_id, chunk_id, embedding) VALUES ($1, $2, $3)
			 ON CONFLICT (version_id, chunk_id) DO UPDATE SET embedding = EXCLUDED.embedding`,
			versionID, v.ChunkID, pgvector.NewVector(v.Embedding),
		)
	}

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	return storeErr("save index version", err)
}

func (r *IndexRepository) SetActiveVersion(ctx context.Context, versionID int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO index_metadata (id, active_version_id, updated_at) VALUES (TRUE, $1, NOW())
		 ON CONFLICT (id) DO UPDATE SET active_version_id = EXCLUDED.active_version_id, updated_at = NOW()`,
		versionID,
	)
	if isForeignKeyViolation(err) {
		return domain.ErrVersionNotFound
	}
	return storeErr("set active version", err)
}

func (r *IndexRepository) LoadVersion(ctx context.Context, versionID int64) (*domain.IndexVersionInfo, []domain.Vector, error) {
	info := &domain.IndexVersionInfo{VersionID: versionID, Status: domain.VersionStatusRetired}
	var active *int64
	err := r.db.QueryRow(ctx,
		`SELECT v.created_at, m.active_version_id
		 FROM index_versions v
		 LEFT JOIN index_metadata m ON m.id
		 WHERE v.version_id = $1`,
		versionID,
	).Scan(&info.CreatedAt, &active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, domain.ErrVersionNotFound
		}
		return nil, nil, storeErr("load index version", err)
	}
	if active != nil && *active == versionID {
		info.Status = domain.VersionStatusActive
	}

	rows, err := r.db.Query(ctx,
		`SELECT chunk_id, embedding FROM index_vectors WHERE version_id = $1 ORDER BY chunk_id`,
		versionID,
	)
	if err != nil {
		return nil, nil, storeErr("load index vectors", err)
	}
	defer rows.Close()

	vectors := []domain.Vector{}
	for rows.Next() {
		var chunkID string
		var embedding pgvector.Vector
		if err := rows.Scan(&chunkID, &embedding); err != nil {
			return nil, nil, storeErr("scan index vector", err)
		}
		vectors = append(vectors, domain.Vector{ChunkID: chunkID, Embedding: embedding.Slice()})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, storeErr("load index vectors", err)
	}

	info.VectorSize = len(vectors)
	return info, vectors, nil
}

func (r *IndexRepository) LatestVersionID(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(version_id), 0) FROM index_versions`).Scan(&id)
	if err != nil {
		return 0, storeErr("latest index version", err)
	}
	return id, nil
}

// PruneVersions deletes every version except the newest keep and the active one.
func (r *IndexRepository) PruneVersions(ctx context.Context, keep int) (int, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM index_versions
		 WHERE version_id NOT IN (
			SELECT version_id FROM index_versions ORDER BY version_id DESC LIMIT $1
		 )
		 AND version_id NOT IN (SELECT active_version_id FROM index_metadata)`,
		max(keep, 0),
	)
	if err != nil {
		return 0, storeErr("prune index versions", err)
	}
	return int(tag.RowsAffected()), nil
}
