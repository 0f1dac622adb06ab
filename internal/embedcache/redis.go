package embedcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"docqa/internal/domain"
)

// WrapRedis shares embeddings across processes through Redis. Cache failures
// are logged and never fail the embedding call.
func WrapRedis(e domain.Embedder, client *redis.Client, ttl time.Duration) domain.Embedder {
	if e == nil || client == nil {
		return e
	}
	return &redisEmbedder{next: e, id: cacheIdentity(e), client: client, ttl: ttl}
}

type redisEmbedder struct {
	next   domain.Embedder
	id     string
	client *redis.Client
	ttl    time.Duration
}

func (r *redisEmbedder) Name() string      { return r.next.Name() }
func (r *redisEmbedder) Dimension() int    { return r.next.Dimension() }
func (r *redisEmbedder) ModelName() string { return modelName(r.next) }

func (r *redisEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (r *redisEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = buildCacheKey(r.id, text)
	}
	if len(keys) > 0 {
		vals, err := r.client.MGet(ctx, keys...).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			logutil.GetLogger(ctx).Warn("embedding cache lookup failed", zap.Error(err))
		}
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				continue
			}
			vec, err := decodeVector([]byte(s))
			if err != nil {
				continue
			}
			out[i] = vec
		}
	}
	miss := missing(out)
	if len(miss) == 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit (redis)", zap.Int("count", len(texts)))
		return out, nil
	}
	pending := make([]string, len(miss))
	for j, i := range miss {
		pending[j] = texts[i]
	}
	res, err := r.next.EmbedBatch(ctx, pending)
	if err != nil {
		return nil, err
	}
	if len(res) != len(pending) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts", domain.ErrEmbedding, r.next.Name(), len(res), len(pending))
	}
	pipe := r.client.Pipeline()
	for j, i := range miss {
		out[i] = res[j]
		data, err := encodeVector(res[j])
		if err != nil {
			continue
		}
		pipe.Set(ctx, keys[i], data, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Error(err))
	}
	return out, nil
}

func encodeVector(vector []float32) ([]byte, error) {
	return json.Marshal(vector)
}

func decodeVector(data []byte) ([]float32, error) {
	var vector []float32
	if err := json.Unmarshal(data, &vector); err != nil {
		return nil, err
	}
	return vector, nil
}
