package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"docqa/internal/domain"
)

const (
	DefaultChunkSize = 500
	DefaultOverlap   = 50
)

// sentenceEnd matches terminal punctuation (plus closing quotes/brackets) followed by whitespace.
var sentenceEnd = regexp.MustCompile(`[.!?]+["')\]]*\s+`)

// Chunker splits documents into bounded, overlapping chunks.
type Chunker struct {
	chunkSize int
	overlap   int
}

// New creates a chunker. A non-positive size falls back to DefaultChunkSize and
// an overlap that would stall the window is clamped.
func New(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Chunker{chunkSize: chunkSize, overlap: clampOverlap(chunkSize, overlap)}
}

func (c *Chunker) ChunkSize() int { return c.chunkSize }

func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits the document content and assigns contiguous zero-based indices.
func (c *Chunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	parts := Split(document.Content, c.chunkSize, c.overlap)
	if len(parts) == 0 {
		return nil, nil
	}
	chunks := make([]domain.Chunk, 0, len(parts))
	for i, text := range parts {
		chunks = append(chunks, domain.Chunk{
			DocumentID: document.ID,
			Text:       text,
			Index:      i,
		})
	}
	return chunks, nil
}

// Split returns the ordered chunk strings of text.
//
// Line breaks are the preferred split axis: every non-blank line becomes its own
// segment. Text without line breaks is split on sentence boundaries and packed
// greedily. Anything still longer than chunkSize is cut into fixed windows of
// chunkSize runes advancing by chunkSize-overlap.
func Split(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	overlap = clampOverlap(chunkSize, overlap)
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	var pieces []string
	if strings.Contains(trimmed, "\n") {
		for _, line := range strings.Split(trimmed, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			pieces = append(pieces, splitSegment(line, chunkSize, overlap)...)
		}
	} else {
		pieces = splitSegment(trimmed, chunkSize, overlap)
	}
	out := pieces[:0]
	for _, p := range pieces {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func splitSegment(segment string, chunkSize, overlap int) []string {
	if utf8.RuneCountInString(segment) <= chunkSize {
		return []string{segment}
	}
	sentences := splitSentences(segment)
	if len(sentences) > 1 {
		return packSentences(sentences, chunkSize, overlap)
	}
	return windows(segment, chunkSize, overlap)
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		out = append(out, text[start:loc[1]])
		start = loc[1]
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// packSentences joins sentences into chunks of at most chunkSize runes. Each
// sentence keeps the whitespace that followed it in the source, so a chunk is
// always a verbatim span of the text. The trailing sentences of a chunk that
// fit into overlap are repeated at the start of the next one.
func packSentences(sentences []string, chunkSize, overlap int) []string {
	var out []string
	var cur []string
	fresh := 0
	flush := func() {
		if fresh == 0 {
			return
		}
		out = append(out, span(cur))
		var carry []string
		// i > 0 keeps at least one sentence out of the carry so the window moves.
		for i := len(cur) - 1; i > 0; i-- {
			if spanLen(append([]string{cur[i]}, carry...)) > overlap {
				break
			}
			carry = append([]string{cur[i]}, carry...)
		}
		cur = carry
		fresh = 0
	}
	for _, s := range sentences {
		text := strings.TrimSpace(s)
		if text == "" {
			continue
		}
		if utf8.RuneCountInString(text) > chunkSize {
			flush()
			cur = nil
			out = append(out, windows(text, chunkSize, overlap)...)
			continue
		}
		if spanLen(append(cur, s)) > chunkSize {
			flush()
			if spanLen(append(cur, s)) > chunkSize {
				cur = nil
			}
		}
		cur = append(cur, s)
		fresh++
	}
	flush()
	return out
}

func windows(text string, chunkSize, overlap int) []string {
	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}
	step := chunkSize - overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

// span concatenates consecutive sentences and drops the trailing separator.
func span(sentences []string) string {
	return strings.TrimRightFunc(strings.Join(sentences, ""), unicode.IsSpace)
}

func spanLen(sentences []string) int {
	return utf8.RuneCountInString(span(sentences))
}

func clampOverlap(chunkSize, overlap int) int {
	if overlap < 0 {
		return 0
	}
	if overlap >= chunkSize {
		return chunkSize / 4
	}
	return overlap
}
