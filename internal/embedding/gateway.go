package embedding

import (
	"context"
	"fmt"
	"strings"

	"docqa/internal/domain"
)

// Gateway is the single entry point for turning text into vectors. Indexing and
// querying must go through the same gateway so that corpus and query vectors
// share one model and one dimensionality.
type Gateway struct {
	embedder  domain.Embedder
	dimension int
}

// NewGateway wraps an embedder and pins the dimensionality every vector must have.
// A non-positive dimension defers to the embedder's own report.
func NewGateway(embedder domain.Embedder, dimension int) *Gateway {
	if dimension <= 0 && embedder != nil {
		dimension = embedder.Dimension()
	}
	return &Gateway{embedder: embedder, dimension: dimension}
}

func (g *Gateway) Name() string {
	if g.embedder == nil {
		return ""
	}
	return g.embedder.Name()
}

func (g *Gateway) Dimension() int { return g.dimension }

// Embed returns the vector of a single text.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one backend call. The i-th vector belongs to the
// i-th text. Empty input, an unreachable backend or malformed output all fail
// with domain.ErrEmbedding.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if g.embedder == nil {
		return nil, fmt.Errorf("%w: embedder not configured", domain.ErrEmbedding)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: empty input", domain.ErrEmbedding)
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("%w: text %d is empty", domain.ErrEmbedding, i)
		}
	}
	vectors, err := g.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrEmbedding, g.embedder.Name(), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", domain.ErrEmbedding, g.embedder.Name(), len(vectors), len(texts))
	}
	for i, v := range vectors {
		if g.dimension > 0 && len(v) != g.dimension {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", domain.ErrEmbedding, i, len(v), g.dimension)
		}
		if isZero(v) {
			return nil, fmt.Errorf("%w: vector %d is empty or all zeros", domain.ErrEmbedding, i)
		}
	}
	return vectors, nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
