package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

// Storage is an in-memory vector store using brute-force similarity.
type Storage struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	schema domain.Collection
	order  []string
	points map[string]domain.VectorPoint
}

func NewStorage() *Storage {
	return &Storage{collections: make(map[string]*collection)}
}

func (s *Storage) ListCollections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *Storage) CreateCollection(_ context.Context, c domain.Collection) error {
	if c.Dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", c.Dimension)
	}
	if !vectorstore.ValidDistance(c.Distance) {
		return fmt.Errorf("unsupported distance %q", c.Distance)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[c.Name]; ok {
		return domain.ErrCollectionExists
	}
	s.collections[c.Name] = &collection{schema: c, points: make(map[string]domain.VectorPoint)}
	return nil
}

// Upsert validates the whole batch before writing so a rejected batch leaves no partial state.
func (s *Storage) Upsert(_ context.Context, name string, points []domain.VectorPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrCollectionMissing, name)
	}
	for _, p := range points {
		if len(p.Vector) != c.schema.Dimension {
			return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(p.Vector), c.schema.Dimension)
		}
	}
	for _, p := range points {
		if _, exists := c.points[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		p.Vector = append([]float32(nil), p.Vector...)
		c.points[p.ID] = p
	}
	return nil
}

func (s *Storage) Search(_ context.Context, name string, vector []float32, limit int) ([]domain.ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionMissing, name)
	}
	if len(vector) != c.schema.Dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(vector), c.schema.Dimension)
	}
	scored := make([]domain.ScoredPoint, 0, len(c.order))
	for _, id := range c.order {
		p := c.points[id]
		scored = append(scored, domain.ScoredPoint{
			ID:      p.ID,
			Score:   vectorstore.Similarity(c.schema.Distance, vector, p.Vector),
			Payload: p.Payload,
		})
	}
	return vectorstore.TopK(scored, limit), nil
}

// Scan returns up to limit points in insertion order with a zero score.
func (s *Storage) Scan(_ context.Context, name string, limit int) ([]domain.ScoredPoint, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionMissing, name)
	}
	out := make([]domain.ScoredPoint, 0, min(limit, len(c.order)))
	for _, id := range c.order {
		if len(out) >= limit {
			break
		}
		out = append(out, domain.ScoredPoint{ID: id, Payload: c.points[id].Payload})
	}
	return out, nil
}

func (s *Storage) DeleteDocument(_ context.Context, name, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return nil
	}
	kept := c.order[:0]
	for _, id := range c.order {
		if c.points[id].Payload.DocumentID == documentID {
			delete(c.points, id)
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept
	return nil
}

func (s *Storage) Count(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", domain.ErrCollectionMissing, name)
	}
	return len(c.points), nil
}

// Schema returns the declared schema of a collection.
func (s *Storage) Schema(name string) (domain.Collection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return domain.Collection{}, false
	}
	return c.schema, true
}
