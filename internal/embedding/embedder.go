// Package embedding defines the embedder contract and a deterministic
// keyword-frequency embedder that needs no external model.
package embedding

import (
	"context"

	"github.com/cloo-solutions/obsidian/internal/domain"
)

// Metric names the similarity function vectors of an embedder are compared with.
type Metric string

const (
	MetricCosine Metric = "cosine"
)

// Embedder maps text to a fixed-dimension vector. Implementations return an
// EMBEDDING_ERROR DomainError for inputs they cannot vectorize.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Metric() Metric
}

// CheckMetric rejects embedders the index cannot score. Versions rank chunks
// by cosine similarity only.
func CheckMetric(e Embedder) error {
	if m := e.Metric(); m != MetricCosine {
		return domain.ConfigError("embedder metric %q is not supported, index scores with %q", m, MetricCosine)
	}
	return nil
}
