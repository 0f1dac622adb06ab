package collection

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

// Manager makes sure a collection exists before anything is written to it.
type Manager struct {
	store vectorstore.Storage
}

func NewManager(store vectorstore.Storage) *Manager {
	return &Manager{store: store}
}

// Ensure creates the collection unless it is already listed. An existing
// collection is assumed to match the requested schema. Losing a creation race
// counts as success.
func (m *Manager) Ensure(ctx context.Context, name string, dimension int, distance domain.Distance) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: collection name is empty", domain.ErrInvalidArgument)
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", domain.ErrInvalidArgument, dimension)
	}
	names, err := m.store.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("%w: list collections: %w", domain.ErrStore, err)
	}
	for _, n := range names {
		if n == name {
			return nil
		}
	}
	err = m.store.CreateCollection(ctx, domain.Collection{Name: name, Dimension: dimension, Distance: distance})
	if domain.IsCollectionExists(err) {
		logutil.GetLogger(ctx).Debug("collection created concurrently", zap.String("collection", name))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: create collection %s: %w", domain.ErrStore, name, err)
	}
	logutil.GetLogger(ctx).Info("collection created",
		zap.String("collection", name),
		zap.Int("dimension", dimension),
		zap.String("distance", string(distance)),
	)
	return nil
}
