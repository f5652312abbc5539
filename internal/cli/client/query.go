package client

import (
	"fmt"
	"io"
	"strings"

	"github.com/cloo-solutions/obsidian/internal/api/handlers"
	"github.com/spf13/cobra"
)

// QueryCmd creates the query command.
func QueryCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question against the indexed documents",
		Long:  "Retrieves the most relevant chunks and prints the answer with numbered citations.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, strings.Join(args, " "), topK)
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (server default if 0)")

	return cmd
}

func runQuery(cmd *cobra.Command, question string, topK int) error {
	outputJSON, _ := cmd.Flags().GetBool("output")
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	var resp handlers.QueryResponse
	req := handlers.QueryRequest{Query: question, TopK: topK}
	if err := api.PostInto(cmd.Context(), "/query", req, &resp); err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, resp)
	}
	printAnswer(out, &resp)
	return nil
}

func printAnswer(w io.Writer, resp *handlers.QueryResponse) {
	fmt.Fprintln(w, resp.Answer)
	if len(resp.Citations) == 0 {
		return
	}

	fmt.Fprintf(w, "\n%s\nSources (index version %d):\n", strings.Repeat("-", 40), resp.VersionID)
	for _, c := range resp.Citations {
		fmt.Fprintf(w, "[%d] %s%s (%.2f)\n", c.Index, c.Filename, provenance(c.PageNumber, c.Timestamp), c.Score)
		if c.TextPreview != "" {
			fmt.Fprintf(w, "    %s\n", strings.ReplaceAll(c.TextPreview, "\n", " "))
		}
	}
}

func provenance(page int, timestamp string) string {
	switch {
	case page > 0:
		return fmt.Sprintf(", page %d", page)
	case timestamp != "":
		return ", at " + timestamp
	default:
		return ""
	}
}

// HistoryCmd creates the query history command.
func HistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var records []handlers.QueryRecordResponse
			if err := api.GetInto(cmd.Context(), fmt.Sprintf("/query/history?limit=%d", limit), &records); err != nil {
				return fmt.Errorf("history failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return printJSON(out, records)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No queries yet.")
				return nil
			}
			for _, q := range records {
				fmt.Fprintf(out, "%s  %q  %d citations, %dms\n", q.CreatedAt, q.Query, q.CitationCount, q.DurationMs)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of queries")

	return cmd
}
