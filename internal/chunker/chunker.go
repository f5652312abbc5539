// Package chunker splits normalized document text into overlapping token windows.
//
// Tokens are maximal runs of non-whitespace characters (strings.Fields), so
// windowing is reproducible for a given text and configuration. Chunk text is
// the window's tokens joined by a single space.
package chunker

import (
	"iter"
	"strings"

	"github.com/cloo-solutions/obsidian/internal/domain"
)

// Config controls the window geometry.
type Config struct {
	WindowTokens  int
	OverlapTokens int
}

// DefaultConfig returns the window geometry used by the ingestion pipeline.
func DefaultConfig() Config {
	return Config{
		WindowTokens:  600,
		OverlapTokens: 100,
	}
}

// Validate rejects geometries that cannot make progress.
func (c Config) Validate() error {
	if c.WindowTokens <= 0 {
		return domain.ConfigError("window_size_tokens must be positive, got %d", c.WindowTokens)
	}
	if c.OverlapTokens < 0 {
		return domain.ConfigError("overlap_tokens cannot be negative, got %d", c.OverlapTokens)
	}
	if c.OverlapTokens >= c.WindowTokens {
		return domain.ConfigError("overlap_tokens (%d) must be smaller than window_size_tokens (%d)", c.OverlapTokens, c.WindowTokens)
	}
	return nil
}

// Section is one provenance-tagged span of extracted text (a page, or an
// audio segment).
type Section struct {
	Text       string
	PageNumber int
	Timestamp  string
}

// Chunker produces chunks for a fixed configuration.
type Chunker struct {
	cfg Config
}

// New creates a Chunker, failing with a ConfigError for invalid geometry.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

// Config returns the chunker's geometry.
func (c *Chunker) Config() Config {
	return c.cfg
}

// Chunks returns the lazy chunk sequence for a single span of text. Ranging
// over the sequence again restarts it from the first chunk.
func (c *Chunker) Chunks(documentID, text string) iter.Seq[domain.Chunk] {
	return c.ChunkSections(documentID, []Section{{Text: text}})
}

// ChunkSections chunks each section in order. Sequence indexes continue
// across sections so chunk ids stay unique within the document.
func (c *Chunker) ChunkSections(documentID string, sections []Section) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		seq := 0
		for _, section := range sections {
			tokens := strings.Fields(section.Text)
			for start, end := range c.windows(len(tokens)) {
				chunk := domain.Chunk{
					ID:            domain.ChunkID(documentID, seq),
					DocumentID:    documentID,
					SequenceIndex: seq,
					Text:          strings.Join(tokens[start:end], " "),
					TokenCount:    end - start,
					PageNumber:    section.PageNumber,
					Timestamp:     section.Timestamp,
				}
				if !yield(chunk) {
					return
				}
				seq++
			}
		}
	}
}

// Split collects the chunks of text into a slice.
func (c *Chunker) Split(documentID, text string) []domain.Chunk {
	var chunks []domain.Chunk
	for chunk := range c.Chunks(documentID, text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}

// windows yields [start, end) token ranges. Window i starts at
// i*(window-overlap) and iteration ends once start reaches n. Text shorter
// than one window is a single range.
func (c *Chunker) windows(n int) iter.Seq2[int, int] {
	stride := c.cfg.WindowTokens - c.cfg.OverlapTokens
	return func(yield func(int, int) bool) {
		if n > 0 && n < c.cfg.WindowTokens {
			yield(0, n)
			return
		}
		for start := 0; start < n; start += stride {
			end := min(start+c.cfg.WindowTokens, n)
			if !yield(start, end) {
				return
			}
		}
	}
}
