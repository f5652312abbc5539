package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/cloo-solutions/obsidian/internal/logging"
	"github.com/cloo-solutions/obsidian/internal/service"
	"go.uber.org/zap"
)

// Rebuilder is the part of the rebuild coordinator the worker drives.
type Rebuilder interface {
	Stale() bool
	Rebuild(ctx context.Context) (*service.RebuildResult, error)
}

// RebuildWorker rebuilds the index whenever deletions or deferred ingests
// left the active version stale.
type RebuildWorker struct {
	rebuilder Rebuilder
	logger    *zap.Logger
}

// NewRebuildWorker creates a new RebuildWorker instance
func NewRebuildWorker(rebuilder Rebuilder, logger *zap.Logger) *RebuildWorker {
	return &RebuildWorker{
		rebuilder: rebuilder,
		logger:    logging.OrNop(logger),
	}
}

// ProcessJobs runs one rebuild if the index is stale. A rebuild already in
// flight is left alone; the next tick checks again.
func (w *RebuildWorker) ProcessJobs(ctx context.Context) error {
	if !w.rebuilder.Stale() {
		return nil
	}

	result, err := w.rebuilder.Rebuild(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrRebuildInProgress) {
			w.logger.Debug("stale index rebuild skipped: rebuild in progress")
			return nil
		}
		return fmt.Errorf("stale index rebuild: %w", err)
	}

	w.logger.Info("stale index rebuilt",
		zap.Int64("version_id", result.VersionID),
		zap.Int("chunks_indexed", result.ChunksIndexed),
		zap.Int("chunks_skipped", result.ChunksSkipped),
	)
	return nil
}
