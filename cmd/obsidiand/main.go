package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/obsidian/internal/cli"
	"github.com/cloo-solutions/obsidian/internal/cli/admin"
	"github.com/cloo-solutions/obsidian/internal/config"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "obsidiand",
		Short: "Obsidian retrieval daemon",
		Long:  "Obsidian daemon for serving the retrieval API, rebuilding the index and managing the schema",
	}

	cli.AddHelpJSONFlag(rootCmd)
	vars, err := config.EnvVars()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, v := range vars {
		cli.AnnotateEnv(rootCmd, v.Name, v.Default)
	}
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.RebuildCmd())
	rootCmd.AddCommand(admin.MigrateCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if handled, err := cli.HandleHelpJSON(rootCmd, os.Args[1:], os.Stdout); handled {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
