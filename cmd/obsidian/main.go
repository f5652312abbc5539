package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/obsidian/internal/cli"
	"github.com/cloo-solutions/obsidian/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "obsidian",
		Short: "Obsidian CLI - offline document retrieval",
		Long: `Obsidian CLI ingests documents into an obsidiand server and asks questions against them.

Environment variables:
  OBSIDIAN_API_URL   API base URL (default: http://localhost:8080)`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)
	cli.AnnotateEnv(rootCmd, "OBSIDIAN_API_URL", "http://localhost:8080")

	rootCmd.AddCommand(client.InitCmd())
	rootCmd.AddCommand(client.IngestCmd())
	rootCmd.AddCommand(client.QueryCmd())
	rootCmd.AddCommand(client.HistoryCmd())
	rootCmd.AddCommand(client.DocsCmd())
	rootCmd.AddCommand(client.RebuildCmd())
	rootCmd.AddCommand(client.StatusCmd())
	rootCmd.AddCommand(client.StatsCmd())

	if handled, err := cli.HandleHelpJSON(rootCmd, os.Args[1:], os.Stdout); handled {
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
