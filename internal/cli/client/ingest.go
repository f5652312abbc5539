package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloo-solutions/obsidian/internal/api/handlers"
	"github.com/spf13/cobra"
)

// pageBreak separates pages in pdftotext-style output.
const pageBreak = "\f"

// IngestCmd creates the ingest command.
func IngestCmd() *cobra.Command {
	var (
		textPath     string
		sectionsPath string
		upload       bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest documents",
		Long: `Sends extracted document text to the server for chunking and indexing.

With a single file, --text or --sections name the extracted content. Otherwise
each file's content is read from a sidecar: <file>.sections.json if present,
else <file>.txt. Plain text is split into pages on form feeds.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 && (textPath != "" || sectionsPath != "") {
				return fmt.Errorf("--text and --sections apply to a single file")
			}
			return runIngest(cmd, args, textPath, sectionsPath, upload)
		},
	}

	cmd.Flags().StringVar(&textPath, "text", "", "Extracted plain text for the file")
	cmd.Flags().StringVar(&sectionsPath, "sections", "", "JSON array of {text, page_number, timestamp} sections")
	cmd.Flags().BoolVar(&upload, "upload", false, "Also upload the raw file bytes")

	return cmd
}

func runIngest(cmd *cobra.Command, files []string, textPath, sectionsPath string, upload bool) error {
	outputJSON, _ := cmd.Flags().GetBool("output")
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	requests := make([]handlers.IngestRequest, 0, len(files))
	for _, file := range files {
		req, err := buildIngestRequest(file, textPath, sectionsPath, upload)
		if err != nil {
			return err
		}
		requests = append(requests, *req)
	}

	out := cmd.OutOrStdout()
	if len(requests) == 1 {
		var resp handlers.IngestResponse
		if err := api.PostInto(cmd.Context(), "/documents", requests[0], &resp); err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		if outputJSON {
			return printJSON(out, resp)
		}
		printIngestResult(out, &resp)
		return nil
	}

	var items []handlers.BatchItemResponse
	if err := api.PostInto(cmd.Context(), "/documents/batch", handlers.BatchIngestRequest{Documents: requests}, &items); err != nil {
		return fmt.Errorf("batch ingest failed: %w", err)
	}
	if outputJSON {
		return printJSON(out, items)
	}

	failed := 0
	for _, item := range items {
		if item.Error != "" {
			failed++
			fmt.Fprintf(out, "%s: FAILED: %s\n", item.Filename, item.Error)
			continue
		}
		printIngestResult(out, item.Result)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(items))
	}
	return nil
}

func printIngestResult(w io.Writer, resp *handlers.IngestResponse) {
	doc := resp.Document
	fmt.Fprintf(w, "%s: %s, %d chunks (%d indexed, %d skipped)\n",
		doc.Filename, doc.Status, doc.TotalChunks, resp.ChunksIndexed, resp.ChunksSkipped)
	fmt.Fprintf(w, "   ID: %s\n", doc.ID)
}

func buildIngestRequest(file, textPath, sectionsPath string, upload bool) (*handlers.IngestRequest, error) {
	info, err := os.Stat(file)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", file, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", file)
	}

	sections, err := loadSections(file, textPath, sectionsPath)
	if err != nil {
		return nil, err
	}

	req := &handlers.IngestRequest{
		Filename:  filepath.Base(file),
		SizeBytes: info.Size(),
		Sections:  sections,
	}
	if upload {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		req.Content = data
	}
	return req, nil
}

// loadSections reads explicit content paths, falling back to sidecars next
// to file.
func loadSections(file, textPath, sectionsPath string) ([]handlers.SectionRequest, error) {
	switch {
	case sectionsPath != "":
		return readSectionsFile(sectionsPath)
	case textPath != "":
		return readTextFile(textPath)
	}

	if sidecar := file + ".sections.json"; fileExists(sidecar) {
		return readSectionsFile(sidecar)
	}
	if sidecar := file + ".txt"; fileExists(sidecar) {
		return readTextFile(sidecar)
	}
	return nil, fmt.Errorf("no extracted text for %s (use --text, --sections, or a .txt sidecar)", file)
}

func readSectionsFile(path string) ([]handlers.SectionRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sections: %w", err)
	}
	var sections []handlers.SectionRequest
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("failed to parse sections %s: %w", path, err)
	}
	return sections, nil
}

func readTextFile(path string) ([]handlers.SectionRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read text: %w", err)
	}
	return splitPages(string(data)), nil
}

// splitPages turns form-feed separated text into numbered page sections.
// Text without form feeds is one section without a page number.
func splitPages(text string) []handlers.SectionRequest {
	if !strings.Contains(text, pageBreak) {
		return []handlers.SectionRequest{{Text: text}}
	}

	var sections []handlers.SectionRequest
	for i, page := range strings.Split(text, pageBreak) {
		if strings.TrimSpace(page) == "" {
			continue
		}
		sections = append(sections, handlers.SectionRequest{Text: page, PageNumber: i + 1})
	}
	return sections
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func printJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}
