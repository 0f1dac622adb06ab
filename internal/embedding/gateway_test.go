package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

type stubEmbedder struct {
	dim     int
	vectors [][]float32
	err     error
	calls   int
}

func (s *stubEmbedder) Name() string   { return "stub" }
func (s *stubEmbedder) Dimension() int { return s.dim }

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.vectors != nil {
		return s.vectors, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, s.dim)
		v[i%s.dim] = 1
		out[i] = v
	}
	return out, nil
}

func TestGateway_EmbedBatch(t *testing.T) {
	g := NewGateway(&stubEmbedder{dim: 3}, 0)
	require.Equal(t, 3, g.Dimension())
	require.Equal(t, "stub", g.Name())

	out, err := g.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, []float32{1, 0, 0}, out[0])
	require.Equal(t, []float32{0, 1, 0}, out[1])

	v, err := g.Embed(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, v, 3)
}

func TestGateway_Errors(t *testing.T) {
	tests := []struct {
		name  string
		gw    *Gateway
		texts []string
	}{
		{name: "nil embedder", gw: NewGateway(nil, 3), texts: []string{"a"}},
		{name: "empty input", gw: NewGateway(&stubEmbedder{dim: 3}, 0), texts: nil},
		{name: "blank text", gw: NewGateway(&stubEmbedder{dim: 3}, 0), texts: []string{"a", "  "}},
		{name: "backend failure", gw: NewGateway(&stubEmbedder{dim: 3, err: errors.New("connection refused")}, 0), texts: []string{"a"}},
		{name: "count mismatch", gw: NewGateway(&stubEmbedder{dim: 2, vectors: [][]float32{{1, 0}}}, 0), texts: []string{"a", "b"}},
		{name: "dimension mismatch", gw: NewGateway(&stubEmbedder{dim: 2, vectors: [][]float32{{1, 0}}}, 4), texts: []string{"a"}},
		{name: "zero vector", gw: NewGateway(&stubEmbedder{dim: 2, vectors: [][]float32{{0, 0}}}, 0), texts: []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.gw.EmbedBatch(context.Background(), tt.texts)
			require.Error(t, err)
			require.ErrorIs(t, err, domain.ErrEmbedding)
		})
	}
}

func TestGateway_BlankTextSkipsBackend(t *testing.T) {
	stub := &stubEmbedder{dim: 3}
	_, err := NewGateway(stub, 0).Embed(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrEmbedding)
	require.Zero(t, stub.calls)
}
