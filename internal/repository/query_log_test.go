//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryLogRepository(t *testing.T) {
	ctx := context.Background()
	pool := setupPool(ctx, t)
	repo := NewQueryLogRepository(pool)

	base := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		require.NoError(t, repo.RecordQuery(ctx, &domain.QueryRecord{
			ID:            uuid.NewString(),
			Query:         "what is in the report",
			Answer:        "an answer",
			TopK:          5,
			CitationCount: i,
			VersionID:     1,
			DurationMs:    12,
			CreatedAt:     base.Add(time.Duration(i) * 12 * time.Hour),
		}))
	}

	n, err := repo.CountQueries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	history, err := repo.ListQueries(ctx, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 3, history[0].CitationCount)
	assert.Equal(t, 1, history[2].CitationCount)

	days, err := repo.CountQueriesByDay(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.DailyQueryCount{
		{Date: "2026-05-11", Count: 2},
		{Date: "2026-05-10", Count: 2},
	}, days)

	days, err = repo.CountQueriesByDay(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, days, 1)
}
