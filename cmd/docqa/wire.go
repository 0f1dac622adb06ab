package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"docqa/internal/chunker"
	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/embedcache"
	"docqa/internal/embedding"
	"docqa/internal/embedding/gemini"
	"docqa/internal/embedding/hashing"
	"docqa/internal/embedding/openai"
	"docqa/internal/extract"
	"docqa/internal/generation/extractive"
	geminigen "docqa/internal/generation/gemini"
	openaigen "docqa/internal/generation/openai"
	"docqa/internal/handler"
	"docqa/internal/indexer"
	"docqa/internal/middleware"
	"docqa/internal/normalize"
	"docqa/internal/retriever"
	"docqa/internal/service"
	"docqa/internal/synth"
	"docqa/internal/vectorstore"
	"docqa/internal/vectorstore/bolt"
	"docqa/internal/vectorstore/memory"
	"docqa/internal/vectorstore/postgres"
	"docqa/internal/vectorstore/qdrant"
)

// app holds the assembled pipeline and whatever must be released on exit.
type app struct {
	pipeline *service.Pipeline
	closers  []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	a := &app{}
	emb, err := buildEmbedder(cfg.Embedder)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	emb, closeCache, err := wrapCache(ctx, emb, cfg.Embedder.Cache)
	if err != nil {
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	if closeCache != nil {
		a.closers = append(a.closers, closeCache)
	}
	dim, err := embeddingDimension(ctx, emb, cfg.Embedder.Dimension)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	store, closeStore, err := buildStore(ctx, cfg.VectorStore)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("init vector store: %w", err)
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}
	gen, err := buildGenerator(cfg.Generator)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("init generator: %w", err)
	}

	gw := embedding.NewGateway(emb, dim)
	ixOpts := []indexer.Option{
		indexer.WithDistance(domain.Distance(cfg.Collection.Distance)),
		indexer.WithPointIDMode(indexer.PointIDMode(cfg.Indexer.PointIDs)),
	}
	if cfg.Indexer.NormalizeText {
		ixOpts = append(ixOpts, indexer.WithNormalizer(normalize.New()))
	}
	var rOpts []retriever.Option
	if cfg.Retriever.NormalizeQuery {
		rOpts = append(rOpts, retriever.WithNormalizer(normalize.New()))
	}
	if cfg.Retriever.Mode == "hybrid" {
		rOpts = append(rOpts, retriever.WithHybrid(cfg.Retriever.VectorWeight))
	}
	s := synth.New(gen,
		synth.WithTimeout(time.Duration(cfg.Generator.TimeoutSecs)*time.Second),
		synth.WithGenerateOptions(domain.GenerateOptions{
			MaxTokens:   cfg.Generator.MaxTokens,
			Temperature: cfg.Generator.Temperature,
			TopP:        cfg.Generator.TopP,
		}),
		synth.WithMaxAnswerChars(cfg.Generator.MaxAnswerChars),
	)
	a.pipeline = service.NewPipeline(
		chunker.New(cfg.Chunker.ChunkSize, *cfg.Chunker.Overlap),
		extract.NewRegistry(),
		indexer.New(store, gw, ixOpts...),
		retriever.New(store, gw, rOpts...),
		s,
		store,
		service.Options{
			Collection:     cfg.Collection.Name,
			BatchSize:      cfg.Indexer.BatchSize,
			TopK:           cfg.Retriever.TopK,
			ScoreThreshold: *cfg.Retriever.ScoreThreshold,
			Strategies:     chunkStrategies(cfg.Chunker.Strategies),
		},
	)
	logutil.GetLogger(ctx).Info("pipeline ready",
		zap.String("embedder", emb.Name()),
		zap.Int("dimension", dim),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.String("generator", gen.Name()),
		zap.String("collection", cfg.Collection.Name),
		zap.String("retriever_mode", cfg.Retriever.Mode),
		zap.Int("chunk_strategies", len(cfg.Chunker.Strategies)),
	)
	return a, nil
}

func chunkStrategies(cfgs []config.ChunkStrategyConfig) []service.Strategy {
	if len(cfgs) == 0 {
		return nil
	}
	out := make([]service.Strategy, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, service.Strategy{ID: c.ID, Chunker: chunker.New(c.ChunkSize, c.Overlap)})
	}
	return out
}

func buildEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "hashing", "":
		return hashing.NewEmbedder(cfg.Dimension), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Dimensions: cfg.Dimension,
			Timeout:    time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			MaxRetries: cfg.OpenAI.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case "gemini":
		if cfg.Gemini == nil {
			return nil, errors.New("gemini embedder config missing")
		}
		return gemini.New(gemini.Config{
			APIKey:     os.Getenv(cfg.Gemini.APIKeyEnv),
			Model:      cfg.Gemini.Model,
			TaskType:   cfg.Gemini.TaskType,
			Dimensions: cfg.Dimension,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func wrapCache(ctx context.Context, emb domain.Embedder, cfg config.CacheConfig) (domain.Embedder, func() error, error) {
	ttl := time.Duration(cfg.TTLSecs) * time.Second
	switch cfg.Type {
	case "none", "":
		return emb, nil, nil
	case "lru":
		return embedcache.WrapLRU(emb, cfg.Size, ttl), nil, nil
	case "redis":
		if cfg.Redis == nil || cfg.Redis.Addr == "" {
			return nil, nil, errors.New("redis cache address missing")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logutil.GetLogger(ctx).Warn("redis cache unreachable, embeddings will not be cached", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		return embedcache.WrapRedis(emb, client, ttl), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown embedding cache: %s", cfg.Type)
	}
}

// embeddingDimension returns the configured size, the embedder's own report, or
// the length of a sample vector, in that order.
func embeddingDimension(ctx context.Context, emb domain.Embedder, configured int) (int, error) {
	if configured > 0 {
		return configured, nil
	}
	if d := emb.Dimension(); d > 0 {
		return d, nil
	}
	v, err := emb.Embed(ctx, "dimension check")
	if err != nil {
		return 0, fmt.Errorf("%w: measure %s dimension: %w", domain.ErrEmbedding, emb.Name(), err)
	}
	if len(v) == 0 {
		return 0, fmt.Errorf("%w: %s returned an empty sample vector", domain.ErrEmbedding, emb.Name())
	}
	return len(v), nil
}

func buildStore(ctx context.Context, cfg config.VectorStoreConfig) (vectorstore.Storage, func() error, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(), nil, nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, nil, errors.New("qdrant config missing")
		}
		var apiKey string
		if cfg.Qdrant.APIKeyEnv != "" {
			apiKey = os.Getenv(cfg.Qdrant.APIKeyEnv)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:     cfg.Qdrant.URL,
			APIKey:  apiKey,
			Timeout: time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil, nil
	case "bolt":
		if cfg.Bolt == nil {
			return nil, nil, errors.New("bolt config missing")
		}
		st, err := bolt.NewStorage(cfg.Bolt.Path)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case "postgres":
		if cfg.Postgres == nil {
			return nil, nil, errors.New("postgres config missing")
		}
		dsn := os.Getenv(cfg.Postgres.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("missing postgres dsn in env %s", cfg.Postgres.DSNEnv)
		}
		st, err := postgres.Open(dsn)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

func buildGenerator(cfg config.GeneratorConfig) (domain.Generator, error) {
	switch cfg.Type {
	case "extractive", "":
		return extractive.New(), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, errors.New("openai generator config missing")
		}
		gen, err := openaigen.New(openaigen.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Timeout:   time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return gen, nil
	case "gemini":
		if cfg.Gemini == nil {
			return nil, errors.New("gemini generator config missing")
		}
		return geminigen.New(os.Getenv(cfg.Gemini.APIKeyEnv), cfg.Gemini.Model), nil
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
	}
}

type webEngine interface {
	http.Handler
	Run() error
}

func newWebEngine(cfg config.ServerConfig, p *service.Pipeline) (webEngine, error) {
	deps := handler.RouterDeps{
		Documents: handler.NewDocumentHandler(p, int64(cfg.UploadLimitMB)*1024*1024),
		Query:     handler.NewQueryHandler(p),
	}
	return webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
}
