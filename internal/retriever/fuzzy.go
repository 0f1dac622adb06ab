package retriever

import (
	"sort"
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"
)

// TokenSetRatio scores how well the word sets of a and b overlap, in [0,1].
// Word order, case, punctuation and repeated words are ignored, and a text
// whose words are a subset of the other's scores 1.
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	var common, onlyA, onlyB []string
	for w := range ta {
		if _, ok := tb[w]; ok {
			common = append(common, w)
		} else {
			onlyA = append(onlyA, w)
		}
	}
	for w := range tb {
		if _, ok := ta[w]; !ok {
			onlyB = append(onlyB, w)
		}
	}
	sect := joinSorted(common)
	withA := strings.TrimSpace(sect + " " + joinSorted(onlyA))
	withB := strings.TrimSpace(sect + " " + joinSorted(onlyB))
	return max(ratio(sect, withA), ratio(sect, withB), ratio(withA, withB))
}

func tokenSet(s string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func joinSorted(words []string) string {
	sort.Strings(words)
	return strings.Join(words, " ")
}

// ratio is the character-level matching ratio of two strings; empty input scores 0.
func ratio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}
