package repository

import (
	"context"

	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultHistoryLimit = 50

// QueryLogRepository stores answered queries for history and stats.
type QueryLogRepository struct {
	db dbtx
}

func NewQueryLogRepository(pool *pgxpool.Pool) *QueryLogRepository {
	return &QueryLogRepository{db: pool}
}

func (r *QueryLogRepository) RecordQuery(ctx context.Context, rec *domain.QueryRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO query_log (id, query, answer, top_k, citation_count, version_id, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.Query, rec.Answer, rec.TopK, rec.CitationCount, rec.VersionID, rec.DurationMs, rec.CreatedAt,
	)
	return storeErr("record query", err)
}

// ListQueries returns the newest limit records first.
func (r *QueryLogRepository) ListQueries(ctx context.Context, limit int) ([]*domain.QueryRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, query, answer, top_k, citation_count, version_id, duration_ms, created_at
		 FROM query_log
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, storeErr("list queries", err)
	}
	defer rows.Close()

	out := []*domain.QueryRecord{}
	for rows.Next() {
		var q domain.QueryRecord
		if err := rows.Scan(&q.ID, &q.Query, &q.Answer, &q.TopK, &q.CitationCount, &q.VersionID, &q.DurationMs, &q.CreatedAt); err != nil {
			return nil, storeErr("scan query", err)
		}
		out = append(out, &q)
	}
	return out, storeErr("list queries", rows.Err())
}

func (r *QueryLogRepository) CountQueries(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM query_log`).Scan(&n); err != nil {
		return 0, storeErr("count queries", err)
	}
	return n, nil
}

// CountQueriesByDay returns per-day UTC counts for the most recent days that
// have queries, newest first. A non-positive days returns every day.
func (r *QueryLogRepository) CountQueriesByDay(ctx context.Context, days int) ([]domain.DailyQueryCount, error) {
	var limit *int
	if days > 0 {
		limit = &days
	}
	rows, err := r.db.Query(ctx,
		`SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		 FROM query_log
		 GROUP BY day
		 ORDER BY day DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, storeErr("count queries by day", err)
	}
	defer rows.Close()

	out := []domain.DailyQueryCount{}
	for rows.Next() {
		var c domain.DailyQueryCount
		if err := rows.Scan(&c.Date, &c.Count); err != nil {
			return nil, storeErr("scan daily count", err)
		}
		out = append(out, c)
	}
	return out, storeErr("count queries by day", rows.Err())
}
