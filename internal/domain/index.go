package domain

import "time"

// VersionStatus is the lifecycle state of an index version
type VersionStatus string

const (
	VersionStatusBuilding VersionStatus = "building"
	VersionStatusActive   VersionStatus = "active"
	VersionStatusRetired  VersionStatus = "retired"
)

// Vector is an embedding computed for a chunk.
type Vector struct {
	ChunkID   string
	Embedding []float32
}

// IndexVersionInfo describes a persisted index version.
type IndexVersionInfo struct {
	VersionID  int64
	Status     VersionStatus
	VectorSize int
	CreatedAt  time.Time
}
