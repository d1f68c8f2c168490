package graph

import "strings"

// minTokenLength filters out short stopword-like tokens before comparison.
const minTokenLength = 3

// tokenSet lower-cases content and collects the distinct tokens longer than
// minTokenLength characters.
func tokenSet(content string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(content)) {
		tok = strings.Trim(tok, ".,;:!?()\"'")
		if len(tok) > minTokenLength {
			set[tok] = struct{}{}
		}
	}
	return set
}

// lexicalSimilarity scores two strings as |A ∩ B| / max(|A|, |B|, 1) over
// their token sets. The score is in [0,1].
func lexicalSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	shared := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			shared++
		}
	}

	max := len(setA)
	if len(setB) > max {
		max = len(setB)
	}
	if max < 1 {
		max = 1
	}

	return float64(shared) / float64(max)
}
