package synth

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"docqa/internal/domain"
	"docqa/internal/prompt"
)

const (
	// FallbackAnswer is returned when retrieval produced no usable context.
	FallbackAnswer = "No relevant information found."
	// ApologyAnswer replaces the answer when generation fails or times out.
	ApologyAnswer = "Sorry, I couldn't generate an answer right now. Please try again later."

	DefaultTimeout        = 60 * time.Second
	DefaultMaxAnswerChars = 2000
)

const DefaultTemperature = 0.7

// DefaultGenerateOptions mirrors the reference generation settings.
var DefaultGenerateOptions = domain.GenerateOptions{MaxTokens: 200, Temperature: temperature(DefaultTemperature), TopP: 0.3}

func temperature(t float64) *float64 { return &t }

// Synthesizer turns retrieved chunks into a grounded answer.
type Synthesizer struct {
	generator domain.Generator
	timeout   time.Duration
	opts      domain.GenerateOptions
	maxChars  int
}

type Option func(*Synthesizer)

func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithGenerateOptions(opts domain.GenerateOptions) Option {
	return func(s *Synthesizer) { s.opts = opts }
}

func WithMaxAnswerChars(n int) Option {
	return func(s *Synthesizer) {
		if n > 0 {
			s.maxChars = n
		}
	}
}

func New(generator domain.Generator, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		generator: generator,
		timeout:   DefaultTimeout,
		opts:      DefaultGenerateOptions,
		maxChars:  DefaultMaxAnswerChars,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildContext space-joins result texts in the order given.
func BuildContext(results []domain.QueryResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if t := strings.TrimSpace(r.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Synthesize never fails: missing context yields FallbackAnswer and a failed
// generation yields ApologyAnswer.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, results []domain.QueryResult) domain.Answer {
	evidence := results
	if evidence == nil {
		evidence = []domain.QueryResult{}
	}
	contextText := BuildContext(results)
	if contextText == "" {
		return domain.Answer{Text: FallbackAnswer, Evidence: evidence}
	}
	logger := logutil.GetLogger(ctx)
	if s.generator == nil {
		logger.Error("no generator configured")
		return domain.Answer{Text: ApologyAnswer, Evidence: evidence}
	}
	sent := prompt.Build(contextText, query)
	genCtx, cancel := contextWithTimeout(ctx, s.timeout)
	defer cancel()
	raw, err := s.generator.Generate(genCtx, sent, s.opts)
	if err == nil && genCtx.Err() != nil {
		err = genCtx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("generation timed out", zap.Duration("timeout", s.timeout), zap.String("generator", s.generator.Name()))
		} else {
			logger.Error("generation failed", zap.String("generator", s.generator.Name()), zap.Error(err))
		}
		return domain.Answer{Text: ApologyAnswer, Evidence: evidence}
	}
	text := s.postProcess(raw, sent)
	if text == "" {
		logger.Warn("generator returned empty output", zap.String("generator", s.generator.Name()))
		return domain.Answer{Text: ApologyAnswer, Evidence: evidence}
	}
	return domain.Answer{Text: text, Evidence: evidence}
}

func (s *Synthesizer) postProcess(raw, sent string) string {
	text := prompt.StripEcho(raw, sent)
	if text == "" || prompt.Echoed(text) {
		text = strings.TrimSpace(raw)
	}
	return truncate(text, s.maxChars)
}

func truncate(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	return strings.TrimSpace(string([]rune(text)[:maxChars]))
}

func contextWithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
