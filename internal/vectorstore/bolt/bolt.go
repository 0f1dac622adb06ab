package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

var bucketCollections = []byte("collections")

// Storage keeps collections in a single bbolt file. Search is a full scan.
type Storage struct {
	db *bbolt.DB
}

func NewStorage(path string) (*Storage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCollections)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func pointsBucket(name string) []byte {
	return []byte("points:" + name)
}

type record struct {
	Vector  []float32      `json:"vector"`
	Payload domain.Payload `json:"payload"`
}

func (s *Storage) ListCollections(_ context.Context) ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCollections).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

func (s *Storage) CreateCollection(_ context.Context, c domain.Collection) error {
	if c.Dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", c.Dimension)
	}
	if !vectorstore.ValidDistance(c.Distance) {
		return fmt.Errorf("unsupported distance %q", c.Distance)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketCollections)
		if meta.Get([]byte(c.Name)) != nil {
			return domain.ErrCollectionExists
		}
		data, err := json.Marshal(c)
		if err != nil {
			return err
		}
		if err := meta.Put([]byte(c.Name), data); err != nil {
			return err
		}
		_, err = tx.CreateBucketIfNotExists(pointsBucket(c.Name))
		return err
	})
}

func schema(tx *bbolt.Tx, name string) (domain.Collection, *bbolt.Bucket, error) {
	var c domain.Collection
	data := tx.Bucket(bucketCollections).Get([]byte(name))
	if data == nil {
		return c, nil, fmt.Errorf("%w: %s", domain.ErrCollectionMissing, name)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, nil, err
	}
	return c, tx.Bucket(pointsBucket(name)), nil
}

// Upsert writes the batch in one transaction.
func (s *Storage) Upsert(_ context.Context, name string, points []domain.VectorPoint) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		c, b, err := schema(tx, name)
		if err != nil {
			return err
		}
		for _, p := range points {
			if len(p.Vector) != c.Dimension {
				return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(p.Vector), c.Dimension)
			}
			data, err := json.Marshal(record{Vector: p.Vector, Payload: p.Payload})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(p.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Storage) Search(_ context.Context, name string, vector []float32, limit int) ([]domain.ScoredPoint, error) {
	var scored []domain.ScoredPoint
	err := s.db.View(func(tx *bbolt.Tx) error {
		c, b, err := schema(tx, name)
		if err != nil {
			return err
		}
		if len(vector) != c.Dimension {
			return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(vector), c.Dimension)
		}
		return b.ForEach(func(k, v []byte) error {
			var r record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			scored = append(scored, domain.ScoredPoint{
				ID:      string(k),
				Score:   vectorstore.Similarity(c.Distance, vector, r.Vector),
				Payload: r.Payload,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return vectorstore.TopK(scored, limit), nil
}

// Scan returns up to limit points in key order with a zero score.
func (s *Storage) Scan(_ context.Context, name string, limit int) ([]domain.ScoredPoint, error) {
	var out []domain.ScoredPoint
	err := s.db.View(func(tx *bbolt.Tx) error {
		_, b, err := schema(tx, name)
		if err != nil {
			return err
		}
		cur := b.Cursor()
		for k, v := cur.First(); k != nil && len(out) < limit; k, v = cur.Next() {
			var r record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, domain.ScoredPoint{ID: string(k), Payload: r.Payload})
		}
		return nil
	})
	return out, err
}

func (s *Storage) DeleteDocument(_ context.Context, name, documentID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, b, err := schema(tx, name)
		if err != nil {
			return nil
		}
		var stale [][]byte
		err = b.ForEach(func(k, v []byte) error {
			var r record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.Payload.DocumentID == documentID {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Storage) Count(_ context.Context, name string) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		_, b, err := schema(tx, name)
		if err != nil {
			return err
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}
