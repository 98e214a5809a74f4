// Package textnorm folds Portuguese text for rule matching: lowercase,
// accents removed, punctuation kept. Detectors match folded text so keyword
// tables only list unaccented forms.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips diacritics ("Ações" -> "acoes").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Tokens splits folded text into words made of letters and digits.
func Tokens(s string) []string {
	return strings.FieldsFunc(Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ContainsWord reports whether folded text contains term on word boundaries.
// term may span several words ("renda fixa").
func ContainsWord(folded, term string) bool {
	idx := 0
	for {
		i := strings.Index(folded[idx:], term)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(term)
		if isBoundary(folded, start-1) && isBoundary(folded, end) {
			return true
		}
		idx = start + 1
		if idx >= len(folded) {
			return false
		}
	}
}

func isBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c >= 0x80)
}

// CountTerms returns how many distinct terms occur in folded text.
func CountTerms(folded string, terms []string) int {
	n := 0
	for _, term := range terms {
		if ContainsWord(folded, term) {
			n++
		}
	}
	return n
}

// MatchedTerms returns the terms that occur in folded text.
func MatchedTerms(folded string, terms []string) []string {
	var out []string
	for _, term := range terms {
		if ContainsWord(folded, term) {
			out = append(out, term)
		}
	}
	return out
}

// Jaccard is the token-set overlap of two texts, in [0,1].
func Jaccard(a, b string) float64 {
	ta, tb := set(Tokens(a)), set(Tokens(b))
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func set(tokens []string) map[string]struct{} {
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}
