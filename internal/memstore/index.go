package memstore

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/cloo-solutions/obsidian/internal/domain"
)

func (s *Store) GetActiveVersion(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	if s.activeVersion == 0 {
		return 0, domain.ErrVersionNotFound
	}
	return s.activeVersion, nil
}

func (s *Store) SaveVersion(ctx context.Context, versionID int64, createdAt time.Time, vectors []domain.Vector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}

	v, ok := s.versions[versionID]
	if !ok {
		v = &storedVersion{createdAt: createdAt, vectors: make(map[string][]float32)}
		s.versions[versionID] = v
	}
	for _, vec := range vectors {
		if _, exists := v.vectors[vec.ChunkID]; !exists {
			v.order = append(v.order, vec.ChunkID)
		}
		v.vectors[vec.ChunkID] = slices.Clone(vec.Embedding)
	}
	return nil
}

func (s *Store) SetActiveVersion(ctx context.Context, versionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, ok := s.versions[versionID]; !ok {
		return domain.ErrVersionNotFound
	}
	s.activeVersion = versionID
	return nil
}

func (s *Store) LoadVersion(ctx context.Context, versionID int64) (*domain.IndexVersionInfo, []domain.Vector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, nil, err
	}

	v, ok := s.versions[versionID]
	if !ok {
		return nil, nil, domain.ErrVersionNotFound
	}

	vectors := make([]domain.Vector, 0, len(v.order))
	for _, id := range v.order {
		vectors = append(vectors, domain.Vector{ChunkID: id, Embedding: slices.Clone(v.vectors[id])})
	}

	status := domain.VersionStatusRetired
	if versionID == s.activeVersion {
		status = domain.VersionStatusActive
	}
	info := &domain.IndexVersionInfo{
		VersionID:  versionID,
		Status:     status,
		VectorSize: len(vectors),
		CreatedAt:  v.createdAt,
	}
	return info, vectors, nil
}

func (s *Store) LatestVersionID(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	var latest int64
	for id := range s.versions {
		latest = max(latest, id)
	}
	return latest, nil
}

func (s *Store) PruneVersions(ctx context.Context, keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	ids := make([]int64, 0, len(s.versions))
	for id := range s.versions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	removed := 0
	for i, id := range ids {
		if i < keep || id == s.activeVersion {
			continue
		}
		delete(s.versions, id)
		removed++
	}
	return removed, nil
}
