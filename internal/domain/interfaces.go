package domain

import "context"

// Document represents a single source text handed to the pipeline.
type Document struct {
	ID      string
	Path    string
	Content string
}

// Chunk is a contiguous part of a document used for indexing.
type Chunk struct {
	DocumentID string
	Text       string
	Index      int
}

// Payload is the metadata stored alongside every vector point. Strategy names
// the chunking strategy that produced the text when several are indexed.
type Payload struct {
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	ChunkIndex int    `json:"chunk_index"`
	Strategy   string `json:"strategy,omitempty"`
}

// VectorPoint is the unit of storage in a collection.
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// ScoredPoint is a search hit as returned by a vector store.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload Payload
}

// Distance is the similarity metric of a collection.
type Distance string

const (
	DistanceCosine    Distance = "cosine"
	DistanceDot       Distance = "dot"
	DistanceEuclidean Distance = "euclid"
)

// Collection describes a named container of points sharing one schema.
type Collection struct {
	Name      string
	Dimension int
	Distance  Distance
}

// QueryResult is one retrieved fragment used as evidence for an answer.
type QueryResult struct {
	ID         string  `json:"id"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Strategy   string  `json:"strategy,omitempty"`
}

// Answer is the synthesized response plus the evidence it was built from.
type Answer struct {
	Text     string        `json:"answer"`
	Evidence []QueryResult `json:"chunks"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// IndexResult reports the outcome of indexing a single document.
type IndexResult struct {
	Status  string `json:"status"`
	Chunks  int    `json:"chunks"`
	Message string `json:"message,omitempty"`
}

// QueryRequest is what an upstream caller hands the pipeline on query.
type QueryRequest struct {
	Query          string   `json:"query"`
	TopK           *int     `json:"top_k,omitempty"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
	// Strategy restricts retrieval to chunks of one chunking strategy.
	Strategy string `json:"strategy,omitempty"`
}

// QueryResponse carries either an answer with its chunks or an error message.
type QueryResponse struct {
	Answer string        `json:"answer,omitempty"`
	Chunks []QueryResult `json:"chunks,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// Embedder converts free text into fixed-size numeric vectors.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ModelNamer is implemented by embedders whose vectors depend on more than
// the provider, such as the model, task type or output size.
type ModelNamer interface {
	ModelName() string
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// GenerateOptions bounds a single generation call. A nil Temperature leaves
// the provider default, so zero stays a valid setting.
type GenerateOptions struct {
	MaxTokens   int
	Temperature *float64
	TopP        float64
}

// Generator produces text from a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Normalizer is a pure text-to-text transform applied before embedding.
type Normalizer interface {
	Normalize(text string) string
}
