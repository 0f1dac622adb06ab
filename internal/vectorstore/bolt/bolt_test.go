package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func openStore(t *testing.T) (*Storage, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vectors.db")
	s, err := NewStorage(path)
	require.NoError(t, err)
	return s, path
}

func TestCollections(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)
	defer s.Close()

	require.NoError(t, s.CreateCollection(ctx, domain.Collection{Name: "docs", Dimension: 2, Distance: domain.DistanceCosine}))
	require.ErrorIs(t, s.CreateCollection(ctx, domain.Collection{Name: "docs", Dimension: 2, Distance: domain.DistanceCosine}), domain.ErrCollectionExists)
	names, err := s.ListCollections(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"docs"}, names)
}

func TestUpsertSearchPersist(t *testing.T) {
	ctx := context.Background()
	s, path := openStore(t)

	require.NoError(t, s.CreateCollection(ctx, domain.Collection{Name: "docs", Dimension: 2, Distance: domain.DistanceCosine}))
	require.NoError(t, s.Upsert(ctx, "docs", []domain.VectorPoint{
		{ID: "a", Vector: []float32{1, 0}, Payload: domain.Payload{DocumentID: "d1", Text: "cat", ChunkIndex: 0}},
		{ID: "b", Vector: []float32{0, 1}, Payload: domain.Payload{DocumentID: "d1", Text: "dog", ChunkIndex: 1}},
	}))
	require.ErrorIs(t, s.Upsert(ctx, "docs", []domain.VectorPoint{{ID: "c", Vector: []float32{1}}}), domain.ErrDimensionMismatch)
	require.NoError(t, s.Close())

	s, err := NewStorage(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Search(ctx, "docs", []float32{0.9, 0.1}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].ID)
	require.Equal(t, "cat", got[0].Payload.Text)

	n, err := s.Count(ctx, "docs")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, s.DeleteDocument(ctx, "docs", "d1"))
	n, err = s.Count(ctx, "docs")
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = s.Search(ctx, "missing", []float32{1, 0}, 1)
	require.ErrorIs(t, err, domain.ErrCollectionMissing)
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	s, _ := openStore(t)
	defer s.Close()

	_, err := s.Scan(ctx, "docs", 10)
	require.ErrorIs(t, err, domain.ErrCollectionMissing)

	require.NoError(t, s.CreateCollection(ctx, domain.Collection{Name: "docs", Dimension: 2, Distance: domain.DistanceCosine}))
	require.NoError(t, s.Upsert(ctx, "docs", []domain.VectorPoint{
		{ID: "a", Vector: []float32{1, 0}, Payload: domain.Payload{DocumentID: "d1", Text: "cat", Strategy: "small"}},
		{ID: "b", Vector: []float32{0, 1}, Payload: domain.Payload{DocumentID: "d1", Text: "dog", ChunkIndex: 1}},
		{ID: "c", Vector: []float32{1, 1}, Payload: domain.Payload{DocumentID: "d2", Text: "bird"}},
	}))
	got, err := s.Scan(ctx, "docs", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].ID)
	require.Equal(t, "small", got[0].Payload.Strategy)
	require.Equal(t, "dog", got[1].Payload.Text)
	require.Zero(t, got[1].Score)
}
