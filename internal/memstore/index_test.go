package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/obsidian/internal/domain"
)

func TestStore_IndexVersions(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.GetActiveVersion(ctx)
	assert.True(t, errors.Is(err, domain.ErrVersionNotFound))

	require.NoError(t, s.SaveVersion(ctx, 1, baseTime, []domain.Vector{
		{ChunkID: "a", Embedding: []float32{1, 0}},
	}))
	require.NoError(t, s.SaveVersion(ctx, 1, baseTime, []domain.Vector{
		{ChunkID: "b", Embedding: []float32{0, 1}},
		{ChunkID: "a", Embedding: []float32{0.5, 0.5}},
	}))
	require.NoError(t, s.SetActiveVersion(ctx, 1))

	active, err := s.GetActiveVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)

	info, vectors, err := s.LoadVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.VersionStatusActive, info.Status)
	assert.Equal(t, 2, info.VectorSize)
	assert.Equal(t, baseTime, info.CreatedAt)
	assert.Equal(t, []domain.Vector{
		{ChunkID: "a", Embedding: []float32{0.5, 0.5}},
		{ChunkID: "b", Embedding: []float32{0, 1}},
	}, vectors)

	_, _, err = s.LoadVersion(ctx, 9)
	assert.True(t, errors.Is(err, domain.ErrVersionNotFound))
	assert.True(t, errors.Is(s.SetActiveVersion(ctx, 9), domain.ErrVersionNotFound))
}

func TestStore_PruneVersions(t *testing.T) {
	ctx := context.Background()
	s := New()
	for id := int64(1); id <= 5; id++ {
		require.NoError(t, s.SaveVersion(ctx, id, baseTime, nil))
	}
	require.NoError(t, s.SetActiveVersion(ctx, 2))

	latest, err := s.LatestVersionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), latest)

	removed, err := s.PruneVersions(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	for _, id := range []int64{2, 4, 5} {
		_, _, err := s.LoadVersion(ctx, id)
		assert.NoError(t, err, "version %d", id)
	}
	for _, id := range []int64{1, 3} {
		_, _, err := s.LoadVersion(ctx, id)
		assert.Error(t, err, "version %d", id)
	}
}
