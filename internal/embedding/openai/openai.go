package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	modelName  string
	dimension  int
	client     *http.Client
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Dimensions int
	Timeout    time.Duration
	MaxRetries int
}

// NewClient creates a new embeddings client using the provided configuration.
// An empty APIKeyEnv means the endpoint needs no authentication (e.g. Ollama).
func NewClient(cfg Config) (*Client, error) {
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     key,
		model:      cfg.Model,
		modelName:  modelName(cfg.Model, cfg.Dimensions),
		dimension:  cfg.Dimensions,
		client:     &http.Client{Timeout: t},
		maxRetries: retries,
		sleep:      sleepContext,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// ModelName is the model plus the requested output size, fixed at construction.
func (c *Client) ModelName() string { return c.modelName }

func modelName(model string, dimensions int) string {
	if dimensions > 0 {
		return model + "@" + strconv.Itoa(dimensions)
	}
	return model
}

// Dimension returns the configured dimensionality, or the observed one after the first call.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

type embedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// EmbedBatch sends every text in a single request and returns vectors in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no input texts")
	}
	url := fmt.Sprintf("%s/embeddings", c.baseURL)
	data, err := json.Marshal(embedRequest{Input: texts, Model: c.model, Dimensions: c.dimension})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, retryDelay(attempt-1)); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("openai embeddings failed: %s", resp.Status)
			// Respect Retry-After if provided
			if ra := resp.Header.Get("Retry-After"); ra != "" && attempt < c.maxRetries {
				if secs, err := strconv.Atoi(ra); err == nil {
					_ = resp.Body.Close()
					if err := c.sleep(ctx, time.Duration(secs)*time.Second); err != nil {
						return nil, err
					}
					continue
				}
			}
			_ = resp.Body.Close()
			continue
		}

		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			return nil, fmt.Errorf("openai embeddings failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		vectors, err := decodeEmbeddings(payload, len(texts))
		if err != nil {
			return nil, err
		}
		if c.dimension == 0 && len(vectors) > 0 {
			c.dimension = len(vectors[0])
		}
		return vectors, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no embedding returned")
	}
	return nil, lastErr
}

func decodeEmbeddings(payload []byte, want int) ([][]float32, error) {
	// Try OpenAI-compatible response first
	var openaiOut embedResponse
	if err := json.Unmarshal(payload, &openaiOut); err == nil && len(openaiOut.Data) > 0 {
		data := openaiOut.Data
		sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
		out := make([][]float32, 0, len(data))
		for _, d := range data {
			out = append(out, toFloat32(d.Embedding))
		}
		return out, nil
	}
	// Fallback to Ollama-native shape: { "embedding": [...] } for single inputs
	var ollamaOut struct {
		Embedding  []float64   `json:"embedding"`
		Embeddings [][]float64 `json:"embeddings"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil {
		if len(ollamaOut.Embeddings) > 0 {
			out := make([][]float32, 0, len(ollamaOut.Embeddings))
			for _, e := range ollamaOut.Embeddings {
				out = append(out, toFloat32(e))
			}
			return out, nil
		}
		if len(ollamaOut.Embedding) > 0 && want == 1 {
			return [][]float32{toFloat32(ollamaOut.Embedding)}, nil
		}
	}
	return nil, errors.New("no embedding returned")
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
