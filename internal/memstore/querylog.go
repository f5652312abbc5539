package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/cloo-solutions/obsidian/internal/domain"
)

func (s *Store) RecordQuery(ctx context.Context, rec *domain.QueryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}

	cp := *rec
	s.queries = append(s.queries, &cp)
	return nil
}

// ListQueries returns the newest limit records first.
func (s *Store) ListQueries(ctx context.Context, limit int) ([]*domain.QueryRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	out := make([]*domain.QueryRecord, 0, min(limit, len(s.queries)))
	for i := len(s.queries) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *s.queries[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) CountQueries(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	return len(s.queries), nil
}

// CountQueriesByDay returns per-day counts for the most recent days that have
// queries, newest first.
func (s *Store) CountQueriesByDay(ctx context.Context, days int) ([]domain.DailyQueryCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, q := range s.queries {
		counts[q.CreatedAt.UTC().Format(time.DateOnly)]++
	}

	out := make([]domain.DailyQueryCount, 0, len(counts))
	for date, n := range counts {
		out = append(out, domain.DailyQueryCount{Date: date, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if days > 0 && len(out) > days {
		out = out[:days]
	}
	return out, nil
}
