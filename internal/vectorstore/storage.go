package vectorstore

import (
	"context"

	"docqa/internal/domain"
)

// Storage is the protocol the pipeline drives against a vector database.
type Storage interface {
	ListCollections(ctx context.Context) ([]string, error)
	// CreateCollection returns domain.ErrCollectionExists when the name is taken.
	CreateCollection(ctx context.Context, collection domain.Collection) error
	Upsert(ctx context.Context, collection string, points []domain.VectorPoint) error
	// Search returns up to limit points ordered by descending score.
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]domain.ScoredPoint, error)
}

// DocumentDeleter is implemented by stores that can drop every point of one document.
type DocumentDeleter interface {
	DeleteDocument(ctx context.Context, collection, documentID string) error
}

// Counter is implemented by stores that can report the number of points in a collection.
type Counter interface {
	Count(ctx context.Context, collection string) (int, error)
}

// Scanner is implemented by stores that can list stored points without a
// query vector. Hybrid retrieval uses it to find text-only matches.
type Scanner interface {
	Scan(ctx context.Context, collection string, limit int) ([]domain.ScoredPoint, error)
}
