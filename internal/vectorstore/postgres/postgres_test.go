package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func TestSearchQuery(t *testing.T) {
	tests := []struct {
		distance domain.Distance
		op       string
		score    string
	}{
		{domain.DistanceCosine, "ORDER BY embedding <=> $2", "1 - (embedding <=> $2) AS score"},
		{domain.DistanceDot, "ORDER BY embedding <#> $2", "-(embedding <#> $2) AS score"},
		{domain.DistanceEuclidean, "ORDER BY embedding <-> $2", "1 / (1 + (embedding <-> $2)) AS score"},
	}
	for _, tt := range tests {
		t.Run(string(tt.distance), func(t *testing.T) {
			q := searchQuery(tt.distance)
			require.Contains(t, q, tt.op)
			require.Contains(t, q, tt.score)
			require.Contains(t, q, "LIMIT $3")
		})
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	content, err := migrationsFS.ReadFile("migrations/001_init.sql")
	require.NoError(t, err)
	stmts := splitStatements(string(content))
	require.Len(t, stmts, 4)
	require.Contains(t, stmts[0], "CREATE EXTENSION IF NOT EXISTS vector")

	content, err = migrationsFS.ReadFile("migrations/002_strategy.sql")
	require.NoError(t, err)
	require.Contains(t, string(content), "ADD COLUMN IF NOT EXISTS strategy")
	require.Contains(t, searchQuery(domain.DistanceCosine), "chunk_index, strategy,")
}

func TestIsConflict(t *testing.T) {
	require.True(t, isConflict(&pq.Error{Code: "23505"}))
	require.True(t, isConflict(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})))
	require.False(t, isConflict(&pq.Error{Code: "42P01"}))
	require.False(t, isConflict(errors.New("boom")))
	require.False(t, isConflict(nil))
}

// TestRoundTrip runs against a live database when DOCQA_TEST_PG_DSN is set.
func TestRoundTrip(t *testing.T) {
	dsn := os.Getenv("DOCQA_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("DOCQA_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(dsn)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate(ctx))

	name := "docqa_test_roundtrip"
	_, _ = s.db.ExecContext(ctx, `DELETE FROM docqa_collections WHERE name = $1`, name)
	require.NoError(t, s.CreateCollection(ctx, domain.Collection{Name: name, Dimension: 2, Distance: domain.DistanceCosine}))
	require.ErrorIs(t, s.CreateCollection(ctx, domain.Collection{Name: name, Dimension: 2, Distance: domain.DistanceCosine}), domain.ErrCollectionExists)
	require.NoError(t, s.Upsert(ctx, name, []domain.VectorPoint{
		{ID: "a", Vector: []float32{1, 0}, Payload: domain.Payload{DocumentID: "d1", Text: "cat", ChunkIndex: 0}},
		{ID: "b", Vector: []float32{0, 1}, Payload: domain.Payload{DocumentID: "d1", Text: "dog", ChunkIndex: 1, Strategy: "small"}},
	}))
	got, err := s.Search(ctx, name, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].ID)
	require.InDelta(t, 1.0, got[0].Score, 1e-6)

	scanned, err := s.Scan(ctx, name, 10)
	require.NoError(t, err)
	require.Len(t, scanned, 2)
	require.Equal(t, "small", scanned[1].Payload.Strategy)

	require.NoError(t, s.DeleteDocument(ctx, name, "d1"))
	n, err := s.Count(ctx, name)
	require.NoError(t, err)
	require.Zero(t, n)
}
