package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloo-solutions/obsidian/internal/domain"
)

const (
	// NoDataAnswer is returned without calling the generator when retrieval finds nothing.
	NoDataAnswer = "No relevant documents found for your query. Please upload documents first."
	// ApologyAnswer is returned when the query cannot be embedded or the generator fails.
	ApologyAnswer = "Sorry, an answer could not be generated for this query right now. Please try again later."
)

// Generator produces an answer from the query and the numbered context
// block. citations mirror the context entries in order.
type Generator interface {
	Generate(ctx context.Context, query, contextBlock string, citations []domain.Citation) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, query, contextBlock string, citations []domain.Citation) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, query, contextBlock string, citations []domain.Citation) (string, error) {
	return f(ctx, query, contextBlock, citations)
}

// ExtractiveGenerator answers by quoting the cited previews. It serves
// deployments without a language model.
type ExtractiveGenerator struct{}

func (ExtractiveGenerator) Generate(_ context.Context, _ string, _ string, citations []domain.Citation) (string, error) {
	if len(citations) == 0 {
		return NoDataAnswer, nil
	}

	var b strings.Builder
	b.WriteString("Based on the retrieved documents, here is the relevant information:\n\n")
	for _, c := range citations {
		fmt.Fprintf(&b, "[%d] From %s", c.Index, c.Filename)
		switch {
		case c.PageNumber > 0:
			fmt.Fprintf(&b, " (Page %d)", c.PageNumber)
		case c.Timestamp != "":
			fmt.Fprintf(&b, " (at %s)", c.Timestamp)
		}
		fmt.Fprintf(&b, ": %s...\n\n", c.TextPreview)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
