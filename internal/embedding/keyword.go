package embedding

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/cloo-solutions/obsidian/internal/domain"
)

// DefaultKeywordDimension is the hashed feature space used when none is configured.
const DefaultKeywordDimension = 1024

var (
	// ErrNoKeywords is returned when text contains no indexable keyword.
	ErrNoKeywords = errors.New("text contains no keywords")

	wordPattern = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {}, "all": {},
	"can": {}, "her": {}, "was": {}, "one": {}, "our": {}, "out": {}, "has": {}, "have": {},
	"from": {}, "this": {}, "that": {}, "with": {}, "they": {}, "been": {}, "said": {}, "each": {},
	"which": {}, "their": {}, "will": {}, "other": {}, "about": {}, "many": {}, "then": {}, "them": {},
	"these": {}, "some": {}, "would": {}, "make": {}, "like": {}, "into": {}, "could": {}, "time": {},
	"very": {}, "when": {}, "come": {}, "made": {}, "after": {}, "back": {},
}

// Keywords extracts lowercase words of at least three ASCII letters, minus stop words.
func Keywords(text string) []string {
	matches := wordPattern.FindAllString(strings.ToLower(text), -1)
	keywords := matches[:0]
	for _, w := range matches {
		if _, stop := stopWords[w]; stop {
			continue
		}
		keywords = append(keywords, w)
	}
	return keywords
}

// Keyword embeds text as an L2-normalized bag of hashed keyword counts.
// It is deterministic, so indexes built from it can be reproduced offline.
type Keyword struct {
	dimension int
}

// NewKeyword creates a keyword embedder over dimension hashed buckets.
func NewKeyword(dimension int) (*Keyword, error) {
	if dimension <= 0 {
		return nil, domain.ConfigError("embedding dimension must be positive, got %d", dimension)
	}
	return &Keyword{dimension: dimension}, nil
}

// Embed implements Embedder.
func (k *Keyword) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keywords := Keywords(text)
	if len(keywords) == 0 {
		return nil, domain.EmbeddingError(ErrNoKeywords)
	}

	counts := make([]float64, k.dimension)
	for _, w := range keywords {
		counts[xxhash.Sum64String(w)%uint64(k.dimension)]++
	}

	var norm float64
	for _, c := range counts {
		norm += c * c
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, k.dimension)
	for i, c := range counts {
		vec[i] = float32(c / norm)
	}
	return vec, nil
}

func (k *Keyword) Dimension() int {
	return k.dimension
}

func (k *Keyword) Metric() Metric {
	return MetricCosine
}
