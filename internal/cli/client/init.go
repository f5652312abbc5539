package client

import (
	"fmt"

	"github.com/spf13/cobra"
)

// InitCmd creates the init command, which checks the server is reachable
// and stores its URL in the global config.
func InitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [api-url]",
		Short: "Configure the server URL",
		Long:  "Verifies the server's health endpoint and saves the URL to the global config.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var apiURL string
			if len(args) == 1 {
				apiURL = args[0]
			} else {
				apiURL, _ = cmd.Flags().GetString("api-url")
			}
			if apiURL == "" {
				apiURL = defaultAPIURL
			}
			if !IsValidAPIURL(apiURL) {
				return fmt.Errorf("invalid API URL %q", apiURL)
			}

			api := NewAPIClientWithConfig(apiURL)
			if _, err := api.Get(cmd.Context(), "/health"); err != nil {
				return fmt.Errorf("server not reachable at %s: %w", apiURL, err)
			}

			if err := SaveGlobalConfig(&GlobalConfig{APIURL: apiURL}); err != nil {
				return err
			}
			path, _ := GetConfigPath()
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s\n", apiURL, path)
			return nil
		},
	}
}
