package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName lowercases, strips diacritics and punctuation and collapses
// whitespace. It is idempotent.
func NormalizeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		stripped = strings.ToLower(s)
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// LevenshteinSimilarity returns (maxLen - distance) / maxLen over runes.
// Two empty strings are identical.
func LevenshteinSimilarity(a, b string) float64 {
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return float64(maxLen-dist) / float64(maxLen)
}

// JaccardSimilarity compares the sets of words longer than two characters
func JaccardSimilarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		if utf8.RuneCountInString(w) > 2 {
			set[w] = true
		}
	}
	return set
}

// TextSimilarity keeps the better of the Levenshtein and Jaccard scores
func TextSimilarity(a, b string) float64 {
	lev := LevenshteinSimilarity(a, b)
	if jac := JaccardSimilarity(a, b); jac > lev {
		return jac
	}
	return lev
}

// Slugify turns a category name into a lowercase dash separated slug
func Slugify(s string) string {
	return strings.ReplaceAll(NormalizeName(s), " ", "-")
}
