package indexer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"docqa/internal/collection"
	"docqa/internal/domain"
	"docqa/internal/embedding"
	"docqa/internal/vectorstore"
)

const DefaultBatchSize = 50

// PointIDMode selects how point identifiers are generated.
type PointIDMode string

const (
	// PointIDRandom gives every point a fresh v4 uuid; re-indexing appends.
	PointIDRandom PointIDMode = "random"
	// PointIDDeterministic derives ids from document id and chunk index and
	// purges the document's previous points first; re-indexing replaces.
	PointIDDeterministic PointIDMode = "deterministic"
)

var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("docqa/points"))

// Indexer persists document chunks as vector points.
type Indexer struct {
	store      vectorstore.Storage
	manager    *collection.Manager
	gateway    *embedding.Gateway
	distance   domain.Distance
	mode       PointIDMode
	normalizer domain.Normalizer
}

type Option func(*Indexer)

func WithDistance(d domain.Distance) Option {
	return func(ix *Indexer) { ix.distance = d }
}

func WithPointIDMode(mode PointIDMode) Option {
	return func(ix *Indexer) { ix.mode = mode }
}

// WithNormalizer transforms chunk text before embedding. Payload text is kept verbatim.
func WithNormalizer(n domain.Normalizer) Option {
	return func(ix *Indexer) { ix.normalizer = n }
}

func New(store vectorstore.Storage, gateway *embedding.Gateway, opts ...Option) *Indexer {
	ix := &Indexer{
		store:    store,
		manager:  collection.NewManager(store),
		gateway:  gateway,
		distance: domain.DistanceCosine,
		mode:     PointIDRandom,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// ChunkSet is the output of one chunking strategy for a document.
type ChunkSet struct {
	Strategy string
	Chunks   []string
}

// Index embeds and upserts chunks batch by batch. The first failing batch stops
// the run; Chunks in the result then counts what was committed before it.
func (ix *Indexer) Index(ctx context.Context, collectionName, documentID string, chunks []string, batchSize int) domain.IndexResult {
	return ix.IndexSets(ctx, collectionName, documentID, []ChunkSet{{Chunks: chunks}}, batchSize)
}

// IndexSets indexes the chunks of several strategies for one document. Each
// point records its strategy and chunk indices restart at zero per strategy.
func (ix *Indexer) IndexSets(ctx context.Context, collectionName, documentID string, sets []ChunkSet, batchSize int) domain.IndexResult {
	logger := logutil.GetLogger(ctx).With(zap.String("collection", collectionName), zap.String("document_id", documentID))
	total := 0
	clean := make([]ChunkSet, len(sets))
	for i, set := range sets {
		clean[i] = ChunkSet{Strategy: set.Strategy, Chunks: nonBlank(set.Chunks)}
		total += len(clean[i].Chunks)
	}
	if total == 0 {
		logger.Warn("nothing to index")
		return failure(0, fmt.Errorf("%w: document %s has no chunks", domain.ErrNoContent, documentID))
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if err := ix.manager.Ensure(ctx, collectionName, ix.gateway.Dimension(), ix.distance); err != nil {
		logger.Error("ensure collection failed", zap.Error(err))
		return failure(0, err)
	}
	if ix.mode == PointIDDeterministic {
		if deleter, ok := ix.store.(vectorstore.DocumentDeleter); ok {
			if err := deleter.DeleteDocument(ctx, collectionName, documentID); err != nil {
				logger.Error("purge previous points failed", zap.Error(err))
				return failure(0, fmt.Errorf("%w: purge document %s: %w", domain.ErrStore, documentID, err))
			}
		}
	}

	committed := 0
	for _, set := range clean {
		n, err := ix.indexSet(ctx, collectionName, documentID, set, batchSize)
		committed += n
		if err != nil {
			return failure(committed, err)
		}
	}
	logger.Info("document indexed", zap.Int("chunks", committed), zap.Int("strategies", len(sets)))
	return domain.IndexResult{Status: domain.StatusSuccess, Chunks: committed}
}

func (ix *Indexer) indexSet(ctx context.Context, collectionName, documentID string, set ChunkSet, batchSize int) (int, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("collection", collectionName), zap.String("document_id", documentID))
	if set.Strategy != "" {
		logger = logger.With(zap.String("strategy", set.Strategy))
	}
	texts := set.Chunks
	committed := 0
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		vectors, err := ix.gateway.EmbedBatch(ctx, ix.embeddingInput(batch))
		if err != nil {
			logger.Error("embed batch failed", zap.Int("batch_start", start), zap.Int("committed", committed), zap.Error(err))
			return committed, err
		}
		points := make([]domain.VectorPoint, len(batch))
		for i, text := range batch {
			idx := start + i
			points[i] = domain.VectorPoint{
				ID:     ix.pointID(documentID, set.Strategy, idx),
				Vector: vectors[i],
				Payload: domain.Payload{
					DocumentID: documentID,
					Text:       text,
					ChunkIndex: idx,
					Strategy:   set.Strategy,
				},
			}
		}
		if err := ix.store.Upsert(ctx, collectionName, points); err != nil {
			logger.Error("upsert batch failed", zap.Int("batch_start", start), zap.Int("committed", committed), zap.Error(err))
			return committed, fmt.Errorf("%w: upsert: %w", domain.ErrStore, err)
		}
		committed += len(batch)
		logger.Debug("batch indexed", zap.Int("batch_start", start), zap.Int("batch_size", len(batch)))
	}
	return committed, nil
}

func nonBlank(chunks []string) []string {
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			texts = append(texts, c)
		}
	}
	return texts
}

func (ix *Indexer) embeddingInput(batch []string) []string {
	if ix.normalizer == nil {
		return batch
	}
	out := make([]string, len(batch))
	for i, text := range batch {
		out[i] = ix.normalizer.Normalize(text)
		if strings.TrimSpace(out[i]) == "" {
			out[i] = text
		}
	}
	return out
}

func (ix *Indexer) pointID(documentID, strategy string, idx int) string {
	if ix.mode == PointIDDeterministic {
		name := documentID + ":" + strconv.Itoa(idx)
		if strategy != "" {
			name = documentID + ":" + strategy + ":" + strconv.Itoa(idx)
		}
		return uuid.NewSHA1(pointNamespace, []byte(name)).String()
	}
	return uuid.NewString()
}

func failure(committed int, err error) domain.IndexResult {
	return domain.IndexResult{Status: domain.StatusError, Chunks: committed, Message: err.Error()}
}
