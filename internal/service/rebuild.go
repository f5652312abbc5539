package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/cloo-solutions/obsidian/internal/embedding"
	"github.com/cloo-solutions/obsidian/internal/index"
	"github.com/cloo-solutions/obsidian/internal/logging"
	"github.com/cloo-solutions/obsidian/internal/telemetry"
)

// RebuildState is the coordinator's lifecycle state.
type RebuildState string

const (
	RebuildStateIdle      RebuildState = "idle"
	RebuildStateBuilding  RebuildState = "building"
	RebuildStatePromoting RebuildState = "promoting"
	RebuildStateFailed    RebuildState = "failed"
)

// RebuildResult summarizes a completed rebuild.
type RebuildResult struct {
	VersionID     int64
	ChunksIndexed int
	ChunksSkipped int
	Pruned        int
	Duration      time.Duration
	CompletedAt   time.Time
}

// IndexStatus is a point-in-time view of the index for admin endpoints.
type IndexStatus struct {
	State           RebuildState
	Active          *domain.IndexVersionInfo
	BuildingVersion int64
	Stale           bool
	LastRebuild     *RebuildResult
	LastError       string
}

// RebuildCoordinator re-embeds every stored chunk into a fresh version and
// swaps it in atomically. At most one rebuild runs at a time; a request
// while one is running fails with ErrRebuildInProgress instead of queueing.
type RebuildCoordinator struct {
	registry     *index.Registry
	store        DocumentStore
	indexStore   IndexStore
	embedder     embedding.Embedder
	keepVersions int
	logger       *zap.Logger
	now          func() time.Time

	mu          sync.Mutex
	state       RebuildState
	lastResult  *RebuildResult
	lastErr     error
	stale       atomic.Bool
	transitions func(RebuildState)
}

// NewRebuildCoordinator creates a coordinator in the idle state.
// keepVersions is how many persisted versions survive pruning.
func NewRebuildCoordinator(
	registry *index.Registry,
	store DocumentStore,
	indexStore IndexStore,
	embedder embedding.Embedder,
	keepVersions int,
	logger *zap.Logger,
) *RebuildCoordinator {
	if keepVersions <= 0 {
		keepVersions = 2
	}
	return &RebuildCoordinator{
		registry:     registry,
		store:        store,
		indexStore:   indexStore,
		embedder:     embedder,
		keepVersions: keepVersions,
		logger:       logging.OrNop(logger),
		now:          time.Now,
		state:        RebuildStateIdle,
	}
}

// MarkStale records that stored chunks changed without reaching the active version.
func (c *RebuildCoordinator) MarkStale() {
	c.stale.Store(true)
}

// Stale reports whether a rebuild would change search results.
func (c *RebuildCoordinator) Stale() bool {
	return c.stale.Load()
}

// State returns the current lifecycle state.
func (c *RebuildCoordinator) State() RebuildState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *RebuildCoordinator) setState(s RebuildState) {
	c.mu.Lock()
	c.state = s
	hook := c.transitions
	c.mu.Unlock()
	if hook != nil {
		hook(s)
	}
}

// Status reports the coordinator state and the active version.
func (c *RebuildCoordinator) Status() IndexStatus {
	c.mu.Lock()
	status := IndexStatus{
		State:       c.state,
		Stale:       c.stale.Load(),
		LastRebuild: c.lastResult,
	}
	if c.lastErr != nil {
		status.LastError = c.lastErr.Error()
	}
	c.mu.Unlock()

	if v, err := c.registry.Active(); err == nil {
		info := v.Info()
		status.Active = &info
	}
	if b := c.registry.Building(); b != nil {
		status.BuildingVersion = b.ID()
	}
	return status
}

// Rebuild builds and promotes a new version from every stored chunk. Chunks
// the embedder rejects are skipped. Any other failure leaves the previous
// active version in place and returns a REBUILD_FAILED error.
func (c *RebuildCoordinator) Rebuild(ctx context.Context) (*RebuildResult, error) {
	c.mu.Lock()
	if c.state != RebuildStateIdle {
		c.mu.Unlock()
		return nil, domain.ErrRebuildInProgress
	}
	c.state = RebuildStateBuilding
	hook := c.transitions
	c.mu.Unlock()
	if hook != nil {
		hook(RebuildStateBuilding)
	}

	ctx, span := telemetry.StartSpan(ctx, "RebuildCoordinator.Rebuild", telemetry.SpanAttributes{
		Operation: "rebuild",
	})
	defer span.End()

	start := c.now()
	c.stale.Store(false)
	version := c.registry.Begin()
	span.SetVersion(version.ID())
	logger := c.logger.With(zap.Int64("version_id", version.ID()))
	logger.Info("index rebuild started")
	telemetry.AddBreadcrumb(ctx, "rebuild", fmt.Sprintf("building version %d", version.ID()))

	result, err := c.build(ctx, logger, version)
	if err != nil {
		c.registry.Abort(version)
		c.stale.Store(true)
		err = domain.RebuildFailed(err)
		span.SetError(err)
		logger.Error("index rebuild failed", zap.Error(err))

		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.setState(RebuildStateFailed)
		c.setState(RebuildStateIdle)
		return nil, err
	}

	result.Duration = c.now().Sub(start)
	result.CompletedAt = c.now().UTC()
	logger.Info("index rebuild completed",
		zap.Int("indexed", result.ChunksIndexed),
		zap.Int("skipped", result.ChunksSkipped),
		zap.Int("pruned", result.Pruned),
		zap.Duration("duration", result.Duration))

	c.mu.Lock()
	c.lastResult = result
	c.lastErr = nil
	c.mu.Unlock()
	c.setState(RebuildStateIdle)
	return result, nil
}

func (c *RebuildCoordinator) build(ctx context.Context, logger *zap.Logger, version *index.Version) (*RebuildResult, error) {
	chunks, err := c.store.ListChunks(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	skipped := 0
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := c.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			if domain.HasCode(err, domain.ErrCodeEmbedding) {
				skipped++
				logger.Debug("chunk not embeddable, skipped", zap.String("chunk_id", chunk.ID), zap.Error(err))
				continue
			}
			return nil, fmt.Errorf("embed chunk %s: %w", chunk.ID, err)
		}
		if err := version.Insert(chunk.ID, vec); err != nil {
			return nil, fmt.Errorf("insert chunk %s: %w", chunk.ID, err)
		}
	}

	c.setState(RebuildStatePromoting)

	if err := c.indexStore.SaveVersion(ctx, version.ID(), version.CreatedAt(), version.Vectors()); err != nil {
		return nil, fmt.Errorf("save version: %w", err)
	}
	if err := c.indexStore.SetActiveVersion(ctx, version.ID()); err != nil {
		return nil, fmt.Errorf("record active version: %w", err)
	}
	if err := c.registry.Promote(version); err != nil {
		return nil, fmt.Errorf("promote: %w", err)
	}

	pruned, err := c.indexStore.PruneVersions(ctx, c.keepVersions)
	if err != nil {
		logger.Warn("pruning old index versions failed", zap.Error(err))
	}

	return &RebuildResult{
		VersionID:     version.ID(),
		ChunksIndexed: version.Len(),
		ChunksSkipped: skipped,
		Pruned:        pruned,
	}, nil
}

// Recover publishes the persisted active version, if any. Without one the
// index stays not ready and is marked stale so the next rebuild creates it.
func (c *RebuildCoordinator) Recover(ctx context.Context) error {
	latest, err := c.indexStore.LatestVersionID(ctx)
	if err != nil {
		return fmt.Errorf("latest index version: %w", err)
	}
	c.registry.Seed(latest)

	activeID, err := c.indexStore.GetActiveVersion(ctx)
	if errors.Is(err, domain.ErrVersionNotFound) {
		c.logger.Info("no persisted index version, rebuild required")
		c.MarkStale()
		return nil
	}
	if err != nil {
		return fmt.Errorf("active index version: %w", err)
	}

	info, vectors, err := c.indexStore.LoadVersion(ctx, activeID)
	if err != nil {
		return fmt.Errorf("load index version %d: %w", activeID, err)
	}

	version := index.NewVersion(activeID, c.registry.Dimension(), info.CreatedAt)
	for _, vec := range vectors {
		if err := version.Insert(vec.ChunkID, vec.Embedding); err != nil {
			c.logger.Warn("persisted index version incompatible with embedder, rebuild required",
				zap.Int64("version_id", activeID),
				zap.Error(err))
			c.MarkStale()
			return nil
		}
	}

	if err := c.registry.Promote(version); err != nil {
		return err
	}
	c.logger.Info("index version recovered",
		zap.Int64("version_id", activeID),
		zap.Int("vectors", version.Len()))
	return nil
}
