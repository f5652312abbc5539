package client

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/cloo-solutions/obsidian/internal/api/handlers"
	"github.com/spf13/cobra"
)

// DocsCmd creates the docs command group.
func DocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "docs",
		Aliases: []string{"documents"},
		Short:   "List, inspect and delete documents",
	}

	cmd.AddCommand(docsListCmd())
	cmd.AddCommand(docsGetCmd())
	cmd.AddCommand(docsChunksCmd())
	cmd.AddCommand(docsDeleteCmd())

	return cmd
}

func docsListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			if cursor != "" {
				q.Set("cursor", cursor)
			}

			var page handlers.ListDocumentsResponse
			if err := api.GetInto(cmd.Context(), "/documents?"+q.Encode(), &page); err != nil {
				return fmt.Errorf("list failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return printJSON(out, page)
			}
			if len(page.Documents) == 0 {
				fmt.Fprintln(out, "No documents found.")
				return nil
			}

			for i, d := range page.Documents {
				fmt.Fprintf(out, "%d. %s [%s]\n", i+1, d.Filename, d.FileType)
				fmt.Fprintf(out, "   Status: %s, Chunks: %d, Uploaded: %s\n", d.Status, d.TotalChunks, d.UploadedAt)
				fmt.Fprintf(out, "   ID: %s\n", d.ID)
			}
			if page.HasMore && page.Cursor != "" {
				fmt.Fprintf(out, "\n%s\n", strings.Repeat("-", 40))
				fmt.Fprintf(out, "More results available. Use --cursor %s\n", page.Cursor)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func docsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var doc handlers.DocumentResponse
			if err := api.GetInto(cmd.Context(), "/documents/"+url.PathEscape(args[0]), &doc); err != nil {
				return fmt.Errorf("get failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return printJSON(out, doc)
			}
			fmt.Fprintf(out, "Filename:  %s\n", doc.Filename)
			fmt.Fprintf(out, "Type:      %s\n", doc.FileType)
			fmt.Fprintf(out, "Size:      %d bytes\n", doc.SizeBytes)
			fmt.Fprintf(out, "Status:    %s\n", doc.Status)
			fmt.Fprintf(out, "Chunks:    %d\n", doc.TotalChunks)
			fmt.Fprintf(out, "Uploaded:  %s\n", doc.UploadedAt)
			fmt.Fprintf(out, "ID:        %s\n", doc.ID)
			return nil
		},
	}
}

func docsChunksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chunks <id>",
		Short: "Print a document's chunks in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			var chunks []handlers.ChunkResponse
			if err := api.GetInto(cmd.Context(), "/documents/"+url.PathEscape(args[0])+"/chunks", &chunks); err != nil {
				return fmt.Errorf("chunks failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return printJSON(out, chunks)
			}
			for i, c := range chunks {
				fmt.Fprintf(out, "#%d%s (%d tokens)\n", c.SequenceIndex, provenance(c.PageNumber, c.Timestamp), c.TokenCount)
				fmt.Fprintln(out, c.Text)
				if i < len(chunks)-1 {
					fmt.Fprintln(out, strings.Repeat("-", 40))
				}
			}
			return nil
		},
	}
}

func docsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete documents and their chunks",
		Long:  "Deleted chunks stop appearing in answers immediately; the index is compacted on the next rebuild.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, id := range args {
				if _, err := api.Delete(cmd.Context(), "/documents/"+url.PathEscape(id)); err != nil {
					return fmt.Errorf("delete %s failed: %w", id, err)
				}
				fmt.Fprintf(out, "Deleted %s\n", id)
			}
			return nil
		},
	}
}
