package gemini

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"google.golang.org/genai"
)

const DefaultModel = "text-embedding-004"

var ErrUnavailable = errors.New("gemini api key not configured")

// Embedder produces vectors through the Gemini embeddings API.
type Embedder struct {
	apiKey    string
	model     string
	taskType  string
	dimension int
	modelName string

	once   sync.Once
	client *genai.Client
	err    error
}

type Config struct {
	APIKey     string
	Model      string
	TaskType   string
	Dimensions int
}

func New(cfg Config) *Embedder {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Embedder{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		taskType:  cfg.TaskType,
		dimension: cfg.Dimensions,
		modelName: cfg.Model + "/" + cfg.TaskType + "@" + strconv.Itoa(cfg.Dimensions),
	}
}

func (e *Embedder) Name() string { return "gemini" }

// ModelName covers the model, task type and requested size, since each yields
// a different vector space.
func (e *Embedder) ModelName() string { return e.modelName }

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds all texts with a single EmbedContent call.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	client, err := e.getClient(ctx)
	if err != nil {
		return nil, err
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: t}}})
	}
	var config *genai.EmbedContentConfig
	if e.taskType != "" || e.dimension > 0 {
		config = &genai.EmbedContentConfig{TaskType: e.taskType}
		if e.dimension > 0 {
			dim := int32(e.dimension)
			config.OutputDimensionality = &dim
		}
	}
	resp, err := client.Models.EmbedContent(ctx, e.model, contents, config)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", embeddingCount(resp), len(texts))
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("gemini embedding %d is empty", i)
		}
		out[i] = emb.Values
	}
	if e.dimension == 0 && len(out[0]) > 0 {
		e.dimension = len(out[0])
	}
	return out, nil
}

func (e *Embedder) getClient(ctx context.Context) (*genai.Client, error) {
	if e.apiKey == "" {
		return nil, ErrUnavailable
	}
	e.once.Do(func() {
		e.client, e.err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  e.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return e.client, e.err
}

func embeddingCount(resp *genai.EmbedContentResponse) int {
	if resp == nil {
		return 0
	}
	return len(resp.Embeddings)
}
