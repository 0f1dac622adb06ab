package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/embedding"
	"docqa/internal/vectorstore"
)

const (
	DefaultTopK           = 5
	DefaultScoreThreshold = 0.5

	// scoreEpsilon absorbs float rounding so a score equal to the threshold passes.
	scoreEpsilon = 1e-9

	// candidateFactor widens the store search when results are re-ranked or
	// filtered afterwards.
	candidateFactor = 3
)

// Retriever runs similarity search for a query and applies the score threshold.
type Retriever struct {
	store      vectorstore.Storage
	gateway    *embedding.Gateway
	normalizer domain.Normalizer
	hybrid     *hybrid
}

type Option func(*Retriever)

// WithNormalizer transforms the query text before it is embedded.
func WithNormalizer(n domain.Normalizer) Option {
	return func(r *Retriever) { r.normalizer = n }
}

// WithHybrid blends each candidate's vector score with its fuzzy token match
// against the query: vectorWeight*vector + (1-vectorWeight)*fuzzy.
func WithHybrid(vectorWeight float64) Option {
	return func(r *Retriever) {
		r.hybrid = &hybrid{vectorWeight: vectorWeight, minFuzzy: DefaultMinFuzzy, scanLimit: DefaultScanLimit}
	}
}

// New builds a retriever. The gateway must be the one used for indexing.
func New(store vectorstore.Storage, gateway *embedding.Gateway, opts ...Option) *Retriever {
	r := &Retriever{store: store, gateway: gateway}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Query fetches up to topK neighbours and keeps those with score >= threshold,
// highest score first. A collection that does not exist yet yields no results.
func (r *Retriever) Query(ctx context.Context, collection, text string, topK int, threshold float64) ([]domain.QueryResult, error) {
	return r.QueryStrategy(ctx, collection, text, "", topK, threshold)
}

// QueryStrategy is Query limited to chunks indexed under strategy. An empty
// strategy searches every chunk.
func (r *Retriever) QueryStrategy(ctx context.Context, collection, text, strategy string, topK int, threshold float64) ([]domain.QueryResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrInvalidArgument, topK)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("collection", collection))
	input := text
	if r.normalizer != nil {
		if n := r.normalizer.Normalize(text); strings.TrimSpace(n) != "" {
			input = n
		}
		logger.Debug("query normalized", zap.String("query", text), zap.String("normalized", input))
	}
	vector, err := r.gateway.Embed(ctx, input)
	if err != nil {
		return nil, err
	}
	limit := topK
	if strategy != "" || r.hybrid != nil {
		limit = topK * candidateFactor
	}
	hits, err := r.store.Search(ctx, collection, vector, limit)
	if errors.Is(err, domain.ErrCollectionMissing) {
		logger.Warn("collection not found, nothing indexed yet")
		return []domain.QueryResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", domain.ErrStore, err)
	}
	hits = byStrategy(hits, strategy)
	if r.hybrid != nil {
		hits, err = r.hybrid.blend(ctx, r.store, collection, text, strategy, hits, limit)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %w", domain.ErrStore, err)
		}
	}
	if len(hits) == 0 {
		logger.Warn("no results found")
	}
	results := Filter(hits, threshold)
	if len(results) > topK {
		results = results[:topK]
	}
	logger.Info("query executed",
		zap.Int("top_k", topK),
		zap.Float64("score_threshold", threshold),
		zap.String("strategy", strategy),
		zap.Bool("hybrid", r.hybrid != nil),
		zap.Int("hits", len(hits)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

func byStrategy(hits []domain.ScoredPoint, strategy string) []domain.ScoredPoint {
	if strategy == "" {
		return hits
	}
	kept := make([]domain.ScoredPoint, 0, len(hits))
	for _, h := range hits {
		if h.Payload.Strategy == strategy {
			kept = append(kept, h)
		}
	}
	return kept
}

// Filter drops hits scoring below threshold and orders the rest by descending score.
// Scores within scoreEpsilon of the threshold count as equal to it.
func Filter(hits []domain.ScoredPoint, threshold float64) []domain.QueryResult {
	results := make([]domain.QueryResult, 0, len(hits))
	for _, h := range hits {
		if h.Score+scoreEpsilon < threshold {
			continue
		}
		results = append(results, domain.QueryResult{
			ID:         h.ID,
			Score:      h.Score,
			Text:       h.Payload.Text,
			DocumentID: h.Payload.DocumentID,
			ChunkIndex: h.Payload.ChunkIndex,
			Strategy:   h.Payload.Strategy,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}
