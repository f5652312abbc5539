// Package memstore is an in-memory document, index and query-log store used
// for development mode and tests. All methods are safe for concurrent use.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/cloo-solutions/obsidian/internal/pagination"
)

type storedVersion struct {
	createdAt time.Time
	vectors   map[string][]float32
	order     []string
}

// Store keeps everything in maps guarded by a single RWMutex.
type Store struct {
	mu sync.RWMutex

	documents map[string]*domain.Document
	chunks    map[string]domain.Chunk
	byDoc     map[string][]string

	versions      map[int64]*storedVersion
	activeVersion int64

	queries []*domain.QueryRecord

	// failWith, when set, is returned by every call to simulate an outage.
	failWith error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		documents: make(map[string]*domain.Document),
		chunks:    make(map[string]domain.Chunk),
		byDoc:     make(map[string][]string),
		versions:  make(map[int64]*storedVersion),
	}
}

// SetUnavailable makes every subsequent call fail with a STORE_UNAVAILABLE
// error wrapping cause. A nil cause restores normal operation.
func (s *Store) SetUnavailable(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cause == nil {
		s.failWith = nil
		return
	}
	s.failWith = domain.StoreUnavailable(cause)
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.failWith
}

func (s *Store) PutDocument(ctx context.Context, d *domain.Document) error {
	if err := domain.ValidateDocument(d); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}

	cp := *d
	s.documents[d.ID] = &cp
	return nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	d, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *Store) ListDocuments(ctx context.Context, cursor *pagination.Cursor, limit int) (*domain.DocumentPage, error) {
	limit = pagination.ClampLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	all := make([]*domain.Document, 0, len(s.documents))
	for _, d := range s.documents {
		if cursor.After(d.ID, d.UploadedAt) {
			cp := *d
			all = append(all, &cp)
		}
	}
	slices.SortFunc(all, func(a, b *domain.Document) int {
		if c := b.UploadedAt.Compare(a.UploadedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	page := &domain.DocumentPage{Items: all}
	if len(all) > limit {
		page.Items = all[:limit]
		page.HasMore = true
		last := page.Items[limit-1]
		page.NextCursor = pagination.EncodeCursor(last.ID, last.UploadedAt)
	}
	return page, nil
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}

	if _, ok := s.documents[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	for _, chunkID := range s.byDoc[id] {
		delete(s.chunks, chunkID)
	}
	delete(s.byDoc, id)
	delete(s.documents, id)
	return nil
}

func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, totalChunks int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}

	d, ok := s.documents[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	d.Status = status
	d.TotalChunks = totalChunks
	return nil
}

func (s *Store) PutChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}

	if _, ok := s.documents[documentID]; !ok {
		return domain.ErrDocumentNotFound
	}
	for _, c := range chunks {
		if c.DocumentID != documentID {
			return fmt.Errorf("chunk %s belongs to document %s, not %s", c.ID, c.DocumentID, documentID)
		}
	}

	for _, c := range chunks {
		if _, exists := s.chunks[c.ID]; !exists {
			s.byDoc[documentID] = append(s.byDoc[documentID], c.ID)
		}
		s.chunks[c.ID] = c
	}
	return nil
}

func (s *Store) ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var out []domain.Chunk
	if documentID != "" {
		for _, id := range s.byDoc[documentID] {
			out = append(out, s.chunks[id])
		}
	} else {
		out = make([]domain.Chunk, 0, len(s.chunks))
		for _, c := range s.chunks {
			out = append(out, c)
		}
	}
	sortChunks(out)
	return out, nil
}

func (s *Store) GetChunks(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	return len(s.documents), nil
}

func (s *Store) CountChunks(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	return len(s.chunks), nil
}

func (s *Store) CountByModality(ctx context.Context) (map[domain.Modality]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	counts := make(map[domain.Modality]int)
	for _, d := range s.documents {
		counts[d.Modality]++
	}
	return counts, nil
}

func sortChunks(chunks []domain.Chunk) {
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].DocumentID != chunks[j].DocumentID {
			return chunks[i].DocumentID < chunks[j].DocumentID
		}
		return chunks[i].SequenceIndex < chunks[j].SequenceIndex
	})
}
