package prompt

import (
	"strings"
)

// Instruction tells the model to stay within the supplied context.
const Instruction = `Answer the question using only the provided context. If unsure, say "I don't know".`

const (
	contextMarker  = "Context:"
	questionMarker = "Question:"
	answerMarker   = "Answer:"
)

// Build renders the single-turn prompt sent to the generator.
func Build(context, question string) string {
	var sb strings.Builder
	sb.WriteString(Instruction)
	sb.WriteString("\n\n")
	sb.WriteString(contextMarker)
	sb.WriteString(" ")
	sb.WriteString(strings.TrimSpace(context))
	sb.WriteString("\n\n")
	sb.WriteString(questionMarker)
	sb.WriteString(" ")
	sb.WriteString(strings.TrimSpace(question))
	sb.WriteString("\n\n")
	sb.WriteString(answerMarker)
	return sb.String()
}

// Parse extracts context and question from a prompt produced by Build.
func Parse(prompt string) (context, question string, ok bool) {
	ci := strings.Index(prompt, contextMarker)
	qi := strings.LastIndex(prompt, questionMarker)
	if ci < 0 || qi < 0 || qi < ci {
		return "", "", false
	}
	context = strings.TrimSpace(prompt[ci+len(contextMarker) : qi])
	question = prompt[qi+len(questionMarker):]
	if ai := strings.LastIndex(question, answerMarker); ai >= 0 {
		question = question[:ai]
	}
	return context, strings.TrimSpace(question), true
}

// StripEcho removes an echoed prompt from generated text and returns what
// follows the last answer marker. Output without a marker is returned trimmed.
func StripEcho(output, sent string) string {
	out := strings.TrimSpace(output)
	if sent != "" {
		out = strings.TrimSpace(strings.TrimPrefix(out, strings.TrimSpace(sent)))
	}
	for _, marker := range []string{answerMarker, "[/INST]"} {
		if i := strings.LastIndex(out, marker); i >= 0 {
			out = strings.TrimSpace(out[i+len(marker):])
		}
	}
	return out
}

// Echoed reports whether text still carries prompt scaffolding.
func Echoed(text string) bool {
	return strings.Contains(text, Instruction) ||
		strings.HasPrefix(text, contextMarker) ||
		strings.HasPrefix(text, questionMarker)
}
