package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
	"docqa/internal/embedding"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/memory"
)

// axisEmbedder maps known words to unit axes so scores are exact.
type axisEmbedder struct {
	axes  map[string]int
	seen  []string
	fails bool
}

func (a *axisEmbedder) Name() string   { return "axis" }
func (a *axisEmbedder) Dimension() int { return 3 }

func (a *axisEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (a *axisEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if a.fails {
		return nil, errors.New("unreachable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		a.seen = append(a.seen, t)
		v := []float32{0.1, 0.1, 0.1}
		if axis, ok := a.axes[t]; ok {
			v = []float32{0, 0, 0}
			v[axis] = 1
		}
		out[i] = v
	}
	return out, nil
}

type failingStore struct {
	*memory.Storage
}

func (failingStore) Search(context.Context, string, []float32, int) ([]domain.ScoredPoint, error) {
	return nil, errors.New("connection reset")
}

func seeded(t *testing.T) *memory.Storage {
	t.Helper()
	ctx := context.Background()
	s := memory.NewStorage()
	require.NoError(t, s.CreateCollection(ctx, domain.Collection{Name: "docs", Dimension: 3, Distance: domain.DistanceCosine}))
	require.NoError(t, s.Upsert(ctx, "docs", []domain.VectorPoint{
		{ID: "p0", Vector: []float32{1, 0, 0}, Payload: domain.Payload{DocumentID: "d1", Text: "cat", ChunkIndex: 0}},
		{ID: "p1", Vector: []float32{0.6, 0.8, 0}, Payload: domain.Payload{DocumentID: "d1", Text: "cat and dog", ChunkIndex: 1}},
		{ID: "p2", Vector: []float32{0, 0, 1}, Payload: domain.Payload{DocumentID: "d2", Text: "bird", ChunkIndex: 0}},
	}))
	return s
}

func TestQuery_TopKAndOrder(t *testing.T) {
	emb := &axisEmbedder{axes: map[string]int{"cat": 0}}
	r := New(seeded(t), embedding.NewGateway(emb, 0))

	got, err := r.Query(context.Background(), "docs", "cat", 2, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "p0", got[0].ID)
	require.Equal(t, "cat", got[0].Text)
	require.Equal(t, "d1", got[0].DocumentID)
	require.InDelta(t, 1.0, got[0].Score, 1e-6)
	require.Equal(t, 1, got[1].ChunkIndex)
	require.InDelta(t, 0.6, got[1].Score, 1e-6)
}

func TestQuery_ThresholdInclusive(t *testing.T) {
	emb := &axisEmbedder{axes: map[string]int{"cat": 0}}
	r := New(seeded(t), embedding.NewGateway(emb, 0))
	ctx := context.Background()

	got, err := r.Query(ctx, "docs", "cat", 3, 1.0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = r.Query(ctx, "docs", "cat", 3, 1.1)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestQuery_EmptyQuery(t *testing.T) {
	emb := &axisEmbedder{}
	r := New(seeded(t), embedding.NewGateway(emb, 0))
	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := r.Query(context.Background(), "docs", q, 5, 0.5)
		require.ErrorIs(t, err, domain.ErrEmptyQuery)
	}
	require.Empty(t, emb.seen)

	_, err := r.Query(context.Background(), "docs", "cat", 0, 0.5)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestQuery_MissingCollectionIsEmpty(t *testing.T) {
	r := New(memory.NewStorage(), embedding.NewGateway(&axisEmbedder{}, 0))
	got, err := r.Query(context.Background(), "docs", "anything", 5, 0.5)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestQuery_Failures(t *testing.T) {
	ctx := context.Background()
	r := New(seeded(t), embedding.NewGateway(&axisEmbedder{fails: true}, 0))
	_, err := r.Query(ctx, "docs", "cat", 5, 0.5)
	require.ErrorIs(t, err, domain.ErrEmbedding)

	r = New(failingStore{seeded(t)}, embedding.NewGateway(&axisEmbedder{}, 0))
	_, err = r.Query(ctx, "docs", "cat", 5, 0.5)
	require.ErrorIs(t, err, domain.ErrStore)
}

type stopwordStripper struct{}

func (stopwordStripper) Normalize(s string) string {
	if s == "the cat" {
		return "cat"
	}
	return ""
}

func TestQuery_Normalizer(t *testing.T) {
	emb := &axisEmbedder{axes: map[string]int{"cat": 0}}
	r := New(seeded(t), embedding.NewGateway(emb, 0), WithNormalizer(stopwordStripper{}))
	ctx := context.Background()

	got, err := r.Query(ctx, "docs", "the cat", 1, 0.9)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, []string{"cat"}, emb.seen)

	// a normalizer that erases everything falls back to the raw query
	_, err = r.Query(ctx, "docs", "the", 1, 0)
	require.NoError(t, err)
	require.Equal(t, "the", emb.seen[len(emb.seen)-1])
}

func TestFilter_Monotonic(t *testing.T) {
	hits := []domain.ScoredPoint{{ID: "a", Score: 0.2}, {ID: "b", Score: 0.9}, {ID: "c", Score: 0.5}, {ID: "d", Score: 0.5}}
	prev := len(hits) + 1
	for _, th := range []float64{-1, 0, 0.2, 0.3, 0.5, 0.51, 0.9, 1, 2} {
		got := Filter(hits, th)
		require.LessOrEqual(t, len(got), prev)
		prev = len(got)
		for i := 1; i < len(got); i++ {
			require.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
		}
	}
	got := Filter(hits, 0.5)
	require.Equal(t, []string{"b", "c", "d"}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestFilter_BoundaryRounding(t *testing.T) {
	hits := []domain.ScoredPoint{
		{ID: "half", Score: 0.49999999999999994},
		{ID: "same", Score: 0.9999999999999999},
		{ID: "below", Score: 0.4999},
	}
	got := Filter(hits, 0.5)
	require.Len(t, got, 2)
	require.Equal(t, "same", got[0].ID)
	require.Equal(t, "half", got[1].ID)

	got = Filter(hits, 1.0)
	require.Len(t, got, 1)
	require.Equal(t, "same", got[0].ID)
}

func withCatFood(t *testing.T) *memory.Storage {
	t.Helper()
	s := seeded(t)
	require.NoError(t, s.Upsert(context.Background(), "docs", []domain.VectorPoint{
		{ID: "p3", Vector: []float32{0, 0, 1}, Payload: domain.Payload{DocumentID: "d3", Text: "cat food", ChunkIndex: 0}},
	}))
	return s
}

func TestQuery_HybridBlendsFuzzyScore(t *testing.T) {
	emb := &axisEmbedder{axes: map[string]int{"cat": 0}}
	ctx := context.Background()

	plain := New(withCatFood(t), embedding.NewGateway(emb, 0))
	got, err := plain.Query(ctx, "docs", "cat", 5, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 2)

	r := New(withCatFood(t), embedding.NewGateway(emb, 0), WithHybrid(0.5))
	got, err = r.Query(ctx, "docs", "cat", 5, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []string{"p0", "p1", "p3"}, []string{got[0].ID, got[1].ID, got[2].ID})
	require.InDelta(t, 1.0, got[0].Score, 1e-6)
	require.InDelta(t, 0.8, got[1].Score, 1e-6)
	require.InDelta(t, 0.5, got[2].Score, 1e-6)

	got, err = r.Query(ctx, "docs", "cat", 1, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestHybridBlend_AddsTextOnlyMatches(t *testing.T) {
	h := &hybrid{vectorWeight: 0.5, minFuzzy: DefaultMinFuzzy, scanLimit: DefaultScanLimit}
	hits := []domain.ScoredPoint{{ID: "p0", Score: 1, Payload: domain.Payload{Text: "cat"}}}

	got, err := h.blend(context.Background(), withCatFood(t), "docs", "cat", "", hits, 3)
	require.NoError(t, err)
	scores := map[string]float64{}
	for _, p := range got {
		scores[p.ID] = p.Score
	}
	require.Len(t, scores, 3)
	require.InDelta(t, 1.0, scores["p0"], 1e-9)
	require.InDelta(t, 0.5, scores["p1"], 1e-9)
	require.InDelta(t, 0.5, scores["p3"], 1e-9)
	require.NotContains(t, scores, "p2")

	// without a scanner only the vector hits are re-ranked
	got, err = h.blend(context.Background(), searchOnly{withCatFood(t)}, "docs", "cat", "", hits, 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

type searchOnly struct {
	vectorstore.Storage
}

func TestQueryStrategy(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStorage()
	require.NoError(t, s.CreateCollection(ctx, domain.Collection{Name: "docs", Dimension: 3, Distance: domain.DistanceCosine}))
	require.NoError(t, s.Upsert(ctx, "docs", []domain.VectorPoint{
		{ID: "s0", Vector: []float32{1, 0, 0}, Payload: domain.Payload{DocumentID: "d1", Text: "cat", Strategy: "small"}},
		{ID: "l0", Vector: []float32{0.8, 0.6, 0}, Payload: domain.Payload{DocumentID: "d1", Text: "cat and dog", Strategy: "large"}},
	}))
	r := New(s, embedding.NewGateway(&axisEmbedder{axes: map[string]int{"cat": 0}}, 0))

	got, err := r.QueryStrategy(ctx, "docs", "cat", "large", 1, 0.5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "l0", got[0].ID)
	require.Equal(t, "large", got[0].Strategy)

	got, err = r.Query(ctx, "docs", "cat", 2, 0.5)
	require.NoError(t, err)
	require.Equal(t, []string{"s0", "l0"}, []string{got[0].ID, got[1].ID})

	got, err = r.QueryStrategy(ctx, "docs", "cat", "medium", 5, 0)
	require.NoError(t, err)
	require.Empty(t, got)
}
