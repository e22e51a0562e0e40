package prioritize

import (
	"strings"
	"unicode"
)

// normalizeTerm returns a lowercased version of term with punctuation
// stripped and whitespace collapsed, so near-identical phrasings compare
// equal token-wise.
func normalizeTerm(term string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(term) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '_' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// tokenSet splits a term into its unique normalized tokens.
func tokenSet(term string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(normalizeTerm(term)) {
		set[tok] = struct{}{}
	}
	return set
}

// Similarity computes the Jaccard index of the two terms' normalized
// token sets: 1.0 for identical sets, 0.0 for disjoint ones. A term that
// normalizes to no tokens has similarity 0 to everything, itself
// included.
func Similarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

// allowedSymbols are the non-alphanumeric characters accepted in search
// terms alongside Latin letters and digits.
const allowedSymbols = "- .€§$%&@#<>_*+~|{}:;?/\\^`[]"

// latinOnly reports whether the term contains only Latin-script letters,
// digits, and common punctuation. Terms in other scripts pull suggestion
// results the submission path cannot use, so they are filtered out before
// queueing. An empty term is rejected.
func latinOnly(term string) bool {
	if term == "" {
		return false
	}
	for _, r := range term {
		if unicode.IsDigit(r) {
			continue
		}
		if unicode.IsLetter(r) {
			if !unicode.Is(unicode.Latin, r) {
				return false
			}
			continue
		}
		if !strings.ContainsRune(allowedSymbols, r) {
			return false
		}
	}
	return true
}
