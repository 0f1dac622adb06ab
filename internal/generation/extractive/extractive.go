package extractive

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"docqa/internal/domain"
	"docqa/internal/normalize"
	"docqa/internal/prompt"
)

// Unknown is returned when no sentence of the context shares a term with the question.
const Unknown = "I don't know."

var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]*`)

// Generator answers by quoting the context sentences that best match the
// question. Sentences are ranked by question-term overlap weighted by term
// frequency across the context.
type Generator struct {
	normalizer *normalize.Normalizer
}

func New() *Generator {
	return &Generator{normalizer: normalize.New()}
}

func (g *Generator) Name() string { return "extractive" }

// Generate reads the context and question back out of the prompt. Output
// length follows opts.MaxTokens, roughly one sentence per 60 tokens.
func (g *Generator) Generate(ctx context.Context, p string, opts domain.GenerateOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	contextText, question, ok := prompt.Parse(p)
	if !ok {
		contextText, question = p, p
	}
	maxSentences := opts.MaxTokens / 60
	if maxSentences <= 0 {
		maxSentences = 1
	}
	return g.answer(contextText, question, maxSentences), nil
}

func (g *Generator) answer(contextText, question string, maxSentences int) string {
	var sentences []string
	for _, s := range sentencePattern.FindAllString(contextText, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		return Unknown
	}
	wanted := map[string]struct{}{}
	for _, tok := range g.normalizer.Tokens(question) {
		wanted[tok] = struct{}{}
	}
	// Compute word frequencies
	freq := map[string]float64{}
	tokens := make([][]string, len(sentences))
	for i, sent := range sentences {
		tokens[i] = g.normalizer.Tokens(sent)
		for _, tok := range tokens[i] {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		if v > maxF {
			maxF = v
		}
	}
	type pair struct {
		idx   int
		score float64
	}
	var scores []pair
	for i, toks := range tokens {
		score := 0.0
		for _, tok := range toks {
			if _, ok := wanted[tok]; ok {
				score += 1 + freq[tok]/maxF
			}
		}
		if score == 0 {
			continue
		}
		// Normalize by sentence length to avoid bias
		scores = append(scores, pair{i, score / math.Sqrt(float64(len(toks)))})
	}
	if len(scores) == 0 {
		return Unknown
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if maxSentences > len(scores) {
		maxSentences = len(scores)
	}
	// Keep original order among selected
	selected := make([]int, maxSentences)
	for i := 0; i < maxSentences; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, len(selected))
	for _, idx := range selected {
		out = append(out, sentences[idx])
	}
	return strings.Join(out, " ")
}
