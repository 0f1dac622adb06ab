package embedcache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"docqa/internal/domain"
)

// WrapLRU memoizes embeddings in process memory. A non-positive size or ttl
// disables caching and returns e unchanged.
func WrapLRU(e domain.Embedder, size int, ttl time.Duration) domain.Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		id:    cacheIdentity(e),
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  domain.Embedder
	id    string
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Name() string      { return l.next.Name() }
func (l *lruEmbedder) Dimension() int    { return l.next.Dimension() }
func (l *lruEmbedder) ModelName() string { return modelName(l.next) }

func (l *lruEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := l.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (l *lruEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = buildCacheKey(l.id, text)
		if cached, ok := l.cache.Get(keys[i]); ok {
			out[i] = cloneEmbedding(cached)
		}
	}
	miss := missing(out)
	if len(miss) == 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit (lru)", zap.Int("count", len(texts)))
		return out, nil
	}
	pending := make([]string, len(miss))
	for j, i := range miss {
		pending[j] = texts[i]
	}
	res, err := l.next.EmbedBatch(ctx, pending)
	if err != nil {
		return nil, err
	}
	if len(res) != len(pending) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", domain.ErrEmbedding, l.next.Name(), len(res), len(pending))
	}
	for j, i := range miss {
		out[i] = res[j]
		l.cache.Add(keys[i], cloneEmbedding(res[j]))
	}
	return out, nil
}
