package index

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloo-solutions/obsidian/internal/domain"
)

// Registry owns the active version pointer. Readers load it once per query
// and never block on a version that is still being built.
type Registry struct {
	dimension int
	now       func() time.Time

	active atomic.Pointer[Version]

	mu       sync.Mutex
	building *Version
	lastID   int64
}

// NewRegistry creates a registry for vectors of the given dimension.
func NewRegistry(dimension int) *Registry {
	return &Registry{
		dimension: dimension,
		now:       time.Now,
	}
}

// Dimension returns the vector size every version in the registry uses.
func (r *Registry) Dimension() int {
	return r.dimension
}

// Active returns the published version, or ErrIndexNotReady before the
// first promotion.
func (r *Registry) Active() (*Version, error) {
	v := r.active.Load()
	if v == nil {
		return nil, domain.ErrIndexNotReady
	}
	return v, nil
}

// Begin starts a new building version with the next version id. Callers
// serialize rebuilds; a second Begin replaces the tracked building version.
func (r *Registry) Begin() *Version {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	v := NewVersion(r.lastID, r.dimension, r.now().UTC())
	r.building = v
	return v
}

// Building returns the in-flight version, or nil.
func (r *Registry) Building() *Version {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.building
}

// Promote publishes v as the active version and retires the previous one.
// v is usually the building version, or a version restored from storage.
func (r *Registry) Promote(v *Version) error {
	if v == nil {
		return fmt.Errorf("promote: nil version")
	}
	if v.Dimension() != r.dimension {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrDimensionMismatch.Message,
			fmt.Errorf("version %d has dimension %d, registry uses %d", v.ID(), v.Dimension(), r.dimension))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.building == v {
		r.building = nil
	}
	if v.ID() > r.lastID {
		r.lastID = v.ID()
	}

	v.setStatus(domain.VersionStatusActive)
	if old := r.active.Swap(v); old != nil && old != v {
		old.setStatus(domain.VersionStatusRetired)
	}
	return nil
}

// Abort discards a building version. The active version is untouched.
func (r *Registry) Abort(v *Version) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.building == v {
		r.building = nil
	}
	if v != nil {
		v.setStatus(domain.VersionStatusRetired)
	}
}

// Seed makes future version ids greater than lastID.
func (r *Registry) Seed(lastID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lastID > r.lastID {
		r.lastID = lastID
	}
}

// Targets returns the versions a freshly ingested vector must reach for
// immediately visible writes: the active version and any building version.
func (r *Registry) Targets() []*Version {
	// Building is read first so a promotion between the two loads cannot
	// hide the new active version.
	var targets []*Version
	b := r.Building()
	if b != nil {
		targets = append(targets, b)
	}
	if v := r.active.Load(); v != nil && v != b {
		targets = append(targets, v)
	}
	return targets
}
