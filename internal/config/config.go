package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LogConfig mirrors the arguments of the shared zap logger initializer.
type LogConfig struct {
	File      string `yaml:"file"`
	Level     string `yaml:"level"`
	FileCount int    `yaml:"file_count"`
	FileSize  int    `yaml:"file_size"`
	KeepDays  int    `yaml:"keep_days"`
	Console   bool   `yaml:"console"`
}

// CollectionConfig names the collection documents are indexed into.
type CollectionConfig struct {
	Name     string `yaml:"name"`
	Distance string `yaml:"distance"`
}

// ChunkerConfig configures how documents are split into chunks.
// Overlap is a pointer so an explicit 0 survives defaulting. When
// Strategies is set every document is chunked once per strategy and the
// chunks are tagged with the strategy id.
type ChunkerConfig struct {
	ChunkSize  int                   `yaml:"chunk_size"`
	Overlap    *int                  `yaml:"overlap"`
	Strategies []ChunkStrategyConfig `yaml:"strategies,omitempty"`
}

type ChunkStrategyConfig struct {
	ID        string `yaml:"id"`
	ChunkSize int    `yaml:"chunk_size"`
	Overlap   int    `yaml:"overlap"`
}

// IndexerConfig configures batching and point identity.
type IndexerConfig struct {
	BatchSize     int    `yaml:"batch_size"`
	PointIDs      string `yaml:"point_ids"`
	NormalizeText bool   `yaml:"normalize_text"`
}

// RetrieverConfig holds query defaults. Mode "hybrid" blends vector scores
// with fuzzy token matching weighted by VectorWeight.
type RetrieverConfig struct {
	TopK           int      `yaml:"top_k"`
	ScoreThreshold *float64 `yaml:"score_threshold"`
	NormalizeQuery bool     `yaml:"normalize_query"`
	Mode           string   `yaml:"mode"`
	VectorWeight   float64  `yaml:"vector_weight"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

type GeminiEmbedderConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	TaskType  string `yaml:"task_type"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CacheConfig wraps the embedder in an lru or redis cache; "none" disables it.
type CacheConfig struct {
	Type    string       `yaml:"type"`
	Size    int          `yaml:"size"`
	TTLSecs int          `yaml:"ttl_secs"`
	Redis   *RedisConfig `yaml:"redis,omitempty"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Dimension int                   `yaml:"dimension"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Gemini    *GeminiEmbedderConfig `yaml:"gemini,omitempty"`
	Cache     CacheConfig           `yaml:"cache"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type BoltConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	DSNEnv string `yaml:"dsn_env"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	Bolt     *BoltConfig     `yaml:"bolt,omitempty"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
}

type OpenAIGeneratorConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type GeminiGeneratorConfig struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// GeneratorConfig selects the answer generator and bounds each call.
type GeneratorConfig struct {
	Type           string                 `yaml:"type"`
	MaxTokens      int                    `yaml:"max_tokens"`
	Temperature    *float64               `yaml:"temperature"`
	TopP           float64                `yaml:"top_p"`
	TimeoutSecs    int                    `yaml:"timeout_secs"`
	MaxAnswerChars int                    `yaml:"max_answer_chars"`
	OpenAI         *OpenAIGeneratorConfig `yaml:"openai,omitempty"`
	Gemini         *GeminiGeneratorConfig `yaml:"gemini,omitempty"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port          int      `yaml:"port"`
	UploadLimitMB int      `yaml:"upload_limit_mb"`
	CORSOrigins   []string `yaml:"cors_origins,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Log         LogConfig         `yaml:"log"`
	Collection  CollectionConfig  `yaml:"collection"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Indexer     IndexerConfig     `yaml:"indexer"`
	Retriever   RetrieverConfig   `yaml:"retriever"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Server      ServerConfig      `yaml:"server"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/docqa/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docqa", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Log:         LogConfig{Level: "info", Console: true},
		Embedder:    EmbedderConfig{Type: "hashing"},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Generator:   GeneratorConfig{Type: "extractive"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Collection.Name == "" {
		cfg.Collection.Name = "documents"
	}
	if cfg.Collection.Distance == "" {
		cfg.Collection.Distance = "cosine"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 500
	}
	if cfg.Chunker.Overlap == nil {
		cfg.Chunker.Overlap = intPtr(50)
	}
	if cfg.Indexer.BatchSize == 0 {
		cfg.Indexer.BatchSize = 50
	}
	if cfg.Indexer.PointIDs == "" {
		cfg.Indexer.PointIDs = "random"
	}
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = 5
	}
	if cfg.Retriever.ScoreThreshold == nil {
		cfg.Retriever.ScoreThreshold = floatPtr(0.5)
	}
	if cfg.Retriever.Mode == "" {
		cfg.Retriever.Mode = "vector"
	}
	if cfg.Retriever.VectorWeight == 0 {
		cfg.Retriever.VectorWeight = 0.7
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Type == "hashing" && cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 384
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.MaxRetries == 0 {
			o.MaxRetries = 3
		}
	}
	if cfg.Embedder.Type == "gemini" {
		if cfg.Embedder.Gemini == nil {
			cfg.Embedder.Gemini = &GeminiEmbedderConfig{}
		}
		if cfg.Embedder.Gemini.APIKeyEnv == "" {
			cfg.Embedder.Gemini.APIKeyEnv = "GEMINI_API_KEY"
		}
	}
	if cfg.Embedder.Cache.Type == "" {
		cfg.Embedder.Cache.Type = "none"
	}
	if cfg.Embedder.Cache.Type == "lru" && cfg.Embedder.Cache.Size == 0 {
		cfg.Embedder.Cache.Size = 1024
	}
	if cfg.Embedder.Cache.Type != "none" && cfg.Embedder.Cache.TTLSecs == 0 {
		cfg.Embedder.Cache.TTLSecs = 3600
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 10
		}
	}
	if cfg.VectorStore.Type == "bolt" {
		if cfg.VectorStore.Bolt == nil {
			cfg.VectorStore.Bolt = &BoltConfig{}
		}
		if cfg.VectorStore.Bolt.Path == "" {
			cfg.VectorStore.Bolt.Path = "docqa.db"
		}
	}
	if cfg.VectorStore.Type == "postgres" {
		if cfg.VectorStore.Postgres == nil {
			cfg.VectorStore.Postgres = &PostgresConfig{}
		}
		if cfg.VectorStore.Postgres.DSNEnv == "" {
			cfg.VectorStore.Postgres.DSNEnv = "DOCQA_PG_DSN"
		}
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "extractive"
	}
	if cfg.Generator.MaxTokens == 0 {
		cfg.Generator.MaxTokens = 200
	}
	if cfg.Generator.Temperature == nil {
		cfg.Generator.Temperature = floatPtr(0.7)
	}
	if cfg.Generator.TopP == 0 {
		cfg.Generator.TopP = 0.3
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 60
	}
	if cfg.Generator.MaxAnswerChars == 0 {
		cfg.Generator.MaxAnswerChars = 2000
	}
	if cfg.Generator.Type == "openai" {
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIGeneratorConfig{}
		}
		o := cfg.Generator.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = cfg.Generator.TimeoutSecs
		}
	}
	if cfg.Generator.Type == "gemini" {
		if cfg.Generator.Gemini == nil {
			cfg.Generator.Gemini = &GeminiGeneratorConfig{}
		}
		if cfg.Generator.Gemini.APIKeyEnv == "" {
			cfg.Generator.Gemini.APIKeyEnv = "GEMINI_API_KEY"
		}
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.UploadLimitMB == 0 {
		cfg.Server.UploadLimitMB = 20
	}
}

// Validate rejects unknown component types and impossible numeric values.
func (c *AppConfig) Validate() error {
	var errs []error
	oneOf := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s must be one of %v, got %q", field, allowed, value))
	}
	oneOf("collection.distance", c.Collection.Distance, "cosine", "dot", "euclid")
	oneOf("indexer.point_ids", c.Indexer.PointIDs, "random", "deterministic")
	oneOf("embedder.type", c.Embedder.Type, "hashing", "openai", "gemini")
	oneOf("embedder.cache.type", c.Embedder.Cache.Type, "none", "lru", "redis")
	oneOf("vector_store.type", c.VectorStore.Type, "memory", "qdrant", "bolt", "postgres")
	oneOf("generator.type", c.Generator.Type, "extractive", "openai", "gemini")
	oneOf("retriever.mode", c.Retriever.Mode, "vector", "hybrid")

	if c.Chunker.ChunkSize < 0 {
		errs = append(errs, errors.New("chunker.chunk_size must be positive"))
	}
	if c.Chunker.Overlap != nil && *c.Chunker.Overlap < 0 {
		errs = append(errs, errors.New("chunker.overlap must not be negative"))
	}
	seen := make(map[string]bool, len(c.Chunker.Strategies))
	for i, st := range c.Chunker.Strategies {
		switch {
		case st.ID == "":
			errs = append(errs, fmt.Errorf("chunker.strategies[%d].id is required", i))
		case seen[st.ID]:
			errs = append(errs, fmt.Errorf("chunker.strategies[%d].id %q is duplicated", i, st.ID))
		}
		seen[st.ID] = true
		if st.ChunkSize <= 0 {
			errs = append(errs, fmt.Errorf("chunker.strategies[%d].chunk_size must be positive", i))
		}
		if st.Overlap < 0 || (st.ChunkSize > 0 && st.Overlap >= st.ChunkSize) {
			errs = append(errs, fmt.Errorf("chunker.strategies[%d].overlap must be within [0,chunk_size)", i))
		}
	}
	if c.Indexer.BatchSize < 0 {
		errs = append(errs, errors.New("indexer.batch_size must be positive"))
	}
	if c.Retriever.TopK < 0 {
		errs = append(errs, errors.New("retriever.top_k must be positive"))
	}
	if c.Retriever.VectorWeight < 0 || c.Retriever.VectorWeight > 1 {
		errs = append(errs, errors.New("retriever.vector_weight must be within [0,1]"))
	}
	if c.Embedder.Dimension < 0 {
		errs = append(errs, errors.New("embedder.dimension must not be negative"))
	}
	if c.Embedder.Cache.Type == "redis" && (c.Embedder.Cache.Redis == nil || c.Embedder.Cache.Redis.Addr == "") {
		errs = append(errs, errors.New("embedder.cache.redis.addr is required"))
	}
	if c.Generator.MaxTokens < 0 || c.Generator.MaxAnswerChars < 0 || c.Generator.TimeoutSecs < 0 {
		errs = append(errs, errors.New("generator limits must not be negative"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	return errors.Join(errs...)
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
