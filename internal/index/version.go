// Package index holds in-memory vector index versions and the registry that
// publishes the active one to concurrent readers.
package index

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/cloo-solutions/obsidian/internal/domain"
)

// Hit is one search result.
type Hit struct {
	ChunkID string
	Score   float32
}

type entry struct {
	chunkID string
	vector  []float32
	norm    float64
}

// Version is one generation of the vector index. Searches scan every vector,
// so results are exact for the cosine metric.
type Version struct {
	id        int64
	dimension int
	createdAt time.Time

	mu       sync.RWMutex
	status   domain.VersionStatus
	entries  []entry
	position map[string]int
}

// NewVersion creates an empty building version.
func NewVersion(id int64, dimension int, createdAt time.Time) *Version {
	return &Version{
		id:        id,
		dimension: dimension,
		createdAt: createdAt,
		status:    domain.VersionStatusBuilding,
		position:  make(map[string]int),
	}
}

func (v *Version) ID() int64 {
	return v.id
}

func (v *Version) Dimension() int {
	return v.dimension
}

func (v *Version) CreatedAt() time.Time {
	return v.createdAt
}

func (v *Version) Status() domain.VersionStatus {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.status
}

func (v *Version) setStatus(status domain.VersionStatus) {
	v.mu.Lock()
	v.status = status
	v.mu.Unlock()
}

// Info describes the version for admin listings.
func (v *Version) Info() domain.IndexVersionInfo {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return domain.IndexVersionInfo{
		VersionID:  v.id,
		Status:     v.status,
		VectorSize: len(v.entries),
		CreatedAt:  v.createdAt,
	}
}

// Len returns the number of indexed vectors.
func (v *Version) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}

// Insert adds the vector for chunkID, replacing any previous one.
func (v *Version) Insert(chunkID string, vector []float32) error {
	if chunkID == "" {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrMissingRequiredField.Message, fmt.Errorf("chunk id"))
	}
	if len(vector) != v.dimension {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrDimensionMismatch.Message,
			fmt.Errorf("expected %d, got %d", v.dimension, len(vector)))
	}

	e := entry{chunkID: chunkID, vector: slices.Clone(vector), norm: norm(vector)}

	v.mu.Lock()
	defer v.mu.Unlock()
	if i, ok := v.position[chunkID]; ok {
		v.entries[i] = e
		return nil
	}
	v.position[chunkID] = len(v.entries)
	v.entries = append(v.entries, e)
	return nil
}

// Contains reports whether chunkID has a vector in this version.
func (v *Version) Contains(chunkID string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.position[chunkID]
	return ok
}

// ChunkIDs returns the indexed chunk ids in insertion order.
func (v *Version) ChunkIDs() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	ids := make([]string, len(v.entries))
	for i, e := range v.entries {
		ids[i] = e.chunkID
	}
	return ids
}

// Vectors returns a copy of every vector, for persistence.
func (v *Version) Vectors() []domain.Vector {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]domain.Vector, len(v.entries))
	for i, e := range v.entries {
		out[i] = domain.Vector{ChunkID: e.chunkID, Embedding: slices.Clone(e.vector)}
	}
	return out
}

// Search returns at most k hits scoring at least minScore, ordered by
// descending score with ties broken by ascending chunk id.
func (v *Version) Search(query []float32, k int, minScore float32) ([]Hit, error) {
	if len(query) != v.dimension {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrDimensionMismatch.Message,
			fmt.Errorf("expected %d, got %d", v.dimension, len(query)))
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	qnorm := norm(query)

	v.mu.RLock()
	hits := make([]Hit, 0, min(k, len(v.entries)))
	for _, e := range v.entries {
		score := cosine(query, qnorm, e.vector, e.norm)
		if score < minScore {
			continue
		}
		hits = append(hits, Hit{ChunkID: e.chunkID, Score: score})
	}
	v.mu.RUnlock()

	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ChunkID, b.ChunkID)
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Snapshot returns an independent building copy with the same id. Later
// inserts into either side are not visible to the other.
func (v *Version) Snapshot() *Version {
	v.mu.RLock()
	defer v.mu.RUnlock()

	s := &Version{
		id:        v.id,
		dimension: v.dimension,
		createdAt: v.createdAt,
		status:    v.status,
		entries:   make([]entry, len(v.entries)),
		position:  make(map[string]int, len(v.position)),
	}
	copy(s.entries, v.entries)
	for id, i := range v.position {
		s.position[id] = i
	}
	return s
}

func norm(vec []float32) float64 {
	var sum float64
	for _, x := range vec {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns 0 when either vector has zero magnitude.
func cosine(a []float32, anorm float64, b []float32, bnorm float64) float32 {
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(dot / (anorm * bnorm))
}
