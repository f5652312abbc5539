package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/cloo-solutions/obsidian/internal/config"
	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/cloo-solutions/obsidian/internal/logging"
	"github.com/spf13/cobra"
)

type rebuildOutput struct {
	VersionID     int64  `json:"version_id"`
	ChunksIndexed int    `json:"chunks_indexed"`
	ChunksSkipped int    `json:"skipped"`
	Pruned        int    `json:"pruned"`
	Duration      string `json:"duration"`
}

// RebuildCmd returns a command that rebuilds the persisted index offline,
// without starting the HTTP server.
func RebuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the vector index from stored chunks",
		Long:  "Re-embed every stored chunk into a new index version and promote it. Requires OBSIDIAN_DATABASE_URL.",
		Args:  cobra.NoArgs,
		RunE:  runRebuild,
	}
	cmd.Flags().Bool("json", false, "Output result as JSON")
	return cmd
}

func runRebuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasDatabase() {
		return domain.ConfigError("OBSIDIAN_DATABASE_URL is required for an offline rebuild")
	}

	logger, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	eng, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.coordinator.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover index: %w", err)
	}

	result, err := eng.coordinator.Rebuild(ctx)
	if err != nil {
		return err
	}

	out := rebuildOutput{
		VersionID:     result.VersionID,
		ChunksIndexed: result.ChunksIndexed,
		ChunksSkipped: result.ChunksSkipped,
		Pruned:        result.Pruned,
		Duration:      result.Duration.String(),
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Promoted index version %d: %d chunks indexed, %d skipped, %d old versions pruned (%s)\n",
		out.VersionID, out.ChunksIndexed, out.ChunksSkipped, out.Pruned, out.Duration)
	return nil
}
