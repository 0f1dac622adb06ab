package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/extract"
	"docqa/internal/indexer"
	"docqa/internal/retriever"
	"docqa/internal/synth"
	"docqa/internal/vectorstore"
)

// Options holds the per-pipeline defaults applied when a request leaves them out.
// With Strategies set, every document is chunked once per strategy and all
// chunk sets are indexed side by side.
type Options struct {
	Collection     string
	BatchSize      int
	TopK           int
	ScoreThreshold float64
	Strategies     []Strategy
	Fetcher        *extract.Fetcher
}

// Strategy is a named chunker.
type Strategy struct {
	ID      string
	Chunker domain.Chunker
}

// Pipeline wires extraction, chunking, indexing, retrieval and synthesis into
// the two operations callers need: ingest a document and answer a question.
type Pipeline struct {
	chunker   domain.Chunker
	extractor *extract.Registry
	indexer   *indexer.Indexer
	retriever *retriever.Retriever
	synth     *synth.Synthesizer
	store     vectorstore.Storage
	opts      Options
}

func NewPipeline(
	chunker domain.Chunker,
	extractor *extract.Registry,
	ix *indexer.Indexer,
	r *retriever.Retriever,
	s *synth.Synthesizer,
	store vectorstore.Storage,
	opts Options,
) *Pipeline {
	if opts.Collection == "" {
		opts.Collection = "documents"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = indexer.DefaultBatchSize
	}
	if opts.TopK <= 0 {
		opts.TopK = retriever.DefaultTopK
	}
	if opts.Fetcher == nil {
		opts.Fetcher = extract.NewFetcher(extractor, 0)
	}
	return &Pipeline{
		chunker:   chunker,
		extractor: extractor,
		indexer:   ix,
		retriever: r,
		synth:     s,
		store:     store,
		opts:      opts,
	}
}

func (p *Pipeline) Collection() string { return p.opts.Collection }

// Ingest chunks and indexes a document that is already plain text.
func (p *Pipeline) Ingest(ctx context.Context, doc domain.Document) domain.IndexResult {
	if len(p.opts.Strategies) == 0 {
		texts, err := chunkTexts(p.chunker, doc)
		if err != nil {
			return domain.IndexResult{Status: domain.StatusError, Message: err.Error()}
		}
		return p.IndexChunks(ctx, doc.ID, texts)
	}
	sets := make([]indexer.ChunkSet, 0, len(p.opts.Strategies))
	for _, s := range p.opts.Strategies {
		texts, err := chunkTexts(s.Chunker, doc)
		if err != nil {
			return domain.IndexResult{Status: domain.StatusError, Message: fmt.Sprintf("strategy %s: %v", s.ID, err)}
		}
		logutil.GetLogger(ctx).Debug("document chunked", zap.String("document_id", doc.ID), zap.String("strategy", s.ID), zap.Int("chunks", len(texts)))
		sets = append(sets, indexer.ChunkSet{Strategy: s.ID, Chunks: texts})
	}
	return p.indexer.IndexSets(ctx, p.opts.Collection, doc.ID, sets, p.opts.BatchSize)
}

func chunkTexts(c domain.Chunker, doc domain.Document) ([]string, error) {
	chunks, err := c.Chunk(doc)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	return texts, nil
}

// IndexChunks indexes pre-split chunks of one document.
func (p *Pipeline) IndexChunks(ctx context.Context, documentID string, chunks []string) domain.IndexResult {
	return p.indexer.Index(ctx, p.opts.Collection, documentID, chunks, p.opts.BatchSize)
}

// IngestReader extracts text from an uploaded file and ingests it under its base name.
func (p *Pipeline) IngestReader(ctx context.Context, name string, r io.Reader) domain.IndexResult {
	id := filepath.Base(name)
	text, err := p.extractor.Extract(id, r)
	if err != nil {
		logutil.GetLogger(ctx).Error("extract failed", zap.String("document_id", id), zap.Error(err))
		return domain.IndexResult{Status: domain.StatusError, Message: err.Error()}
	}
	return p.Ingest(ctx, domain.Document{ID: id, Path: name, Content: text})
}

// IngestURL downloads a web page and ingests its text with the URL as document id.
func (p *Pipeline) IngestURL(ctx context.Context, rawURL string) domain.IndexResult {
	rawURL = strings.TrimSpace(rawURL)
	text, err := p.opts.Fetcher.Fetch(ctx, rawURL)
	if err != nil {
		logutil.GetLogger(ctx).Error("fetch failed", zap.String("url", rawURL), zap.Error(err))
		return domain.IndexResult{Status: domain.StatusError, Message: err.Error()}
	}
	return p.Ingest(ctx, domain.Document{ID: rawURL, Path: rawURL, Content: text})
}

// FileResult is the outcome of ingesting one file from disk.
type FileResult struct {
	Path   string
	Result domain.IndexResult
}

// IngestFiles expands glob patterns and ingests every match.
func (p *Pipeline) IngestFiles(ctx context.Context, patterns []string) ([]FileResult, error) {
	var paths []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if matches == nil {
			matches = []string{pattern}
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, errors.New("no documents given")
	}
	out := make([]FileResult, 0, len(paths))
	for _, path := range paths {
		text, err := p.extractor.ExtractFile(path)
		if err != nil {
			logutil.GetLogger(ctx).Error("extract failed", zap.String("path", path), zap.Error(err))
			out = append(out, FileResult{Path: path, Result: domain.IndexResult{Status: domain.StatusError, Message: err.Error()}})
			continue
		}
		res := p.Ingest(ctx, domain.Document{ID: filepath.Base(path), Path: path, Content: text})
		out = append(out, FileResult{Path: path, Result: res})
	}
	return out, nil
}

// Query retrieves evidence and synthesizes an answer. Retrieval failures come
// back in QueryResponse.Error; generation failures degrade to an apology answer.
func (p *Pipeline) Query(ctx context.Context, req domain.QueryRequest) domain.QueryResponse {
	topK := p.opts.TopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	threshold := p.opts.ScoreThreshold
	if req.ScoreThreshold != nil {
		threshold = *req.ScoreThreshold
	}
	results, err := p.retriever.QueryStrategy(ctx, p.opts.Collection, req.Query, req.Strategy, topK, threshold)
	if err != nil {
		logutil.GetLogger(ctx).Error("query failed", zap.String("collection", p.opts.Collection), zap.Error(err))
		return domain.QueryResponse{Error: err.Error()}
	}
	answer := p.synth.Synthesize(ctx, strings.TrimSpace(req.Query), results)
	return domain.QueryResponse{Answer: answer.Text, Chunks: answer.Evidence}
}

// CollectionInfo describes a collection for listing.
type CollectionInfo struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// Collections lists collections with point counts when the store can count.
// Points is -1 when the count is unavailable.
func (p *Pipeline) Collections(ctx context.Context) ([]CollectionInfo, error) {
	names, err := p.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStore, err)
	}
	counter, canCount := p.store.(vectorstore.Counter)
	out := make([]CollectionInfo, 0, len(names))
	for _, name := range names {
		info := CollectionInfo{Name: name, Points: -1}
		if canCount {
			n, err := counter.Count(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("%w: count %s: %w", domain.ErrStore, name, err)
			}
			info.Points = n
		}
		out = append(out, info)
	}
	return out, nil
}
