package client

import (
	"fmt"
	"sort"

	"github.com/cloo-solutions/obsidian/internal/api/handlers"
	"github.com/spf13/cobra"
)

// RebuildCmd creates the rebuild command.
func RebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the vector index on the server",
		Long:  "Re-embeds every stored chunk into a new index version. Fails if a rebuild is already running.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var resp handlers.RebuildResponse
			if err := api.PostInto(cmd.Context(), "/admin/rebuild-index", nil, &resp); err != nil {
				return fmt.Errorf("rebuild failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return printJSON(out, resp)
			}
			fmt.Fprintf(out, "Rebuild %s: version %d, %d chunks indexed, %d skipped, %d pruned (%dms)\n",
				resp.Status, resp.VersionID, resp.ChunksIndexed, resp.Skipped, resp.Pruned, resp.DurationMs)
			return nil
		},
	}
}

// StatusCmd creates the index status command.
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index state and the active version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var status handlers.IndexStatusResponse
			if err := api.GetInto(cmd.Context(), "/admin/index", &status); err != nil {
				return fmt.Errorf("status failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return printJSON(out, status)
			}
			fmt.Fprintf(out, "State:   %s\n", status.State)
			fmt.Fprintf(out, "Ready:   %t\n", status.Ready)
			fmt.Fprintf(out, "Stale:   %t\n", status.Stale)
			if v := status.Active; v != nil {
				fmt.Fprintf(out, "Active:  version %d, %d vectors, created %s\n", v.VersionID, v.VectorSize, v.CreatedAt)
			}
			if status.BuildingVersion != 0 {
				fmt.Fprintf(out, "Building: version %d\n", status.BuildingVersion)
			}
			if status.LastError != "" {
				fmt.Fprintf(out, "Last error: %s\n", status.LastError)
			}
			return nil
		},
	}
}

// StatsCmd creates the stats command.
func StatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show document, chunk and query counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var stats handlers.StatsResponse
			if err := api.GetInto(cmd.Context(), "/admin/stats", &stats); err != nil {
				return fmt.Errorf("stats failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return printJSON(out, stats)
			}
			fmt.Fprintf(out, "Documents: %d\n", stats.TotalDocuments)
			fmt.Fprintf(out, "Chunks:    %d\n", stats.TotalChunks)
			fmt.Fprintf(out, "Queries:   %d\n", stats.TotalQueries)

			types := make([]string, 0, len(stats.FileDistribution))
			for t := range stats.FileDistribution {
				types = append(types, t)
			}
			sort.Strings(types)
			for _, t := range types {
				fmt.Fprintf(out, "  %-6s %d\n", t, stats.FileDistribution[t])
			}
			return nil
		},
	}
}
