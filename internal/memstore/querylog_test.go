package memstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/obsidian/internal/domain"
)

func TestStore_QueryLog(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i := 0; i < 4; i++ {
		require.NoError(t, s.RecordQuery(ctx, &domain.QueryRecord{
			ID:        fmt.Sprintf("q%d", i),
			Query:     fmt.Sprintf("question %d", i),
			CreatedAt: baseTime.Add(time.Duration(i) * 6 * time.Hour),
		}))
	}

	recent, err := s.ListQueries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "q3", recent[0].ID)
	assert.Equal(t, "q2", recent[1].ID)

	n, err := s.CountQueries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	byDay, err := s.CountQueriesByDay(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []domain.DailyQueryCount{
		{Date: "2026-05-02", Count: 2},
		{Date: "2026-05-01", Count: 2},
	}, byDay)

	byDay, err = s.CountQueriesByDay(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, byDay, 1)
}
