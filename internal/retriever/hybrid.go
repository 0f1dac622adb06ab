package retriever

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

const (
	// DefaultMinFuzzy is the token match a point needs to enter the blend
	// without being a vector hit.
	DefaultMinFuzzy = 0.7
	// DefaultScanLimit caps how many stored points are fuzzy matched per query.
	DefaultScanLimit = 1000
)

type hybrid struct {
	vectorWeight float64
	minFuzzy     float64
	scanLimit    int
}

// blend merges vector hits with fuzzy text matches by point id. Stores that
// cannot scan only have their vector hits re-ranked.
func (h *hybrid) blend(ctx context.Context, store vectorstore.Storage, collection, query, strategy string, hits []domain.ScoredPoint, limit int) ([]domain.ScoredPoint, error) {
	vectorScore := make(map[string]float64, len(hits))
	candidates := make([]domain.ScoredPoint, 0, len(hits))
	for _, hit := range hits {
		vectorScore[hit.ID] = hit.Score
		candidates = append(candidates, hit)
	}
	if scanner, ok := store.(vectorstore.Scanner); ok {
		points, err := scanner.Scan(ctx, collection, h.scanLimit)
		if err != nil {
			return nil, err
		}
		var textOnly []domain.ScoredPoint
		for _, p := range byStrategy(points, strategy) {
			if _, seen := vectorScore[p.ID]; seen {
				continue
			}
			if f := TokenSetRatio(query, p.Payload.Text); f+scoreEpsilon >= h.minFuzzy {
				p.Score = f
				textOnly = append(textOnly, p)
			}
		}
		candidates = append(candidates, vectorstore.TopK(textOnly, limit)...)
	} else {
		logutil.GetLogger(ctx).Debug("store cannot scan, re-ranking vector hits only")
	}
	out := make([]domain.ScoredPoint, len(candidates))
	for i, c := range candidates {
		fuzzy := TokenSetRatio(query, c.Payload.Text)
		c.Score = h.vectorWeight*vectorScore[c.ID] + (1-h.vectorWeight)*fuzzy
		out[i] = c
	}
	logutil.GetLogger(ctx).Debug("hybrid blend",
		zap.Int("vector_hits", len(hits)),
		zap.Int("candidates", len(out)),
	)
	return out, nil
}
