package gemini

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"docqa/internal/domain"
)

const DefaultModel = "gemini-2.0-flash"

var ErrUnavailable = fmt.Errorf("%w: gemini api key not configured", domain.ErrGeneration)

// Generator produces answers with the Gemini API.
type Generator struct {
	apiKey string
	model  string

	once   sync.Once
	client *genai.Client
	err    error
}

func New(apiKey, model string) *Generator {
	if model == "" {
		model = DefaultModel
	}
	return &Generator{apiKey: strings.TrimSpace(apiKey), model: model}
}

func (g *Generator) Name() string { return "gemini" }

func (g *Generator) Generate(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	if g.apiKey == "" {
		return "", ErrUnavailable
	}
	g.once.Do(func() {
		g.client, g.err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	if g.err != nil {
		return "", g.err
	}
	resp, err := g.client.Models.GenerateContent(
		ctx,
		g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		generateConfig(opts),
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

func generateConfig(opts domain.GenerateOptions) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.Temperature != nil {
		t := float32(*opts.Temperature)
		cfg.Temperature = &t
	}
	if opts.TopP > 0 {
		p := float32(opts.TopP)
		cfg.TopP = &p
	}
	return cfg
}
