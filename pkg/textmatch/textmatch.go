// Package textmatch provides the normalization and fuzzy-similarity
// primitives used for series and book title matching.
package textmatch

import (
	"regexp"
	"strings"

	"github.com/xrash/smetrics"
)

// TitleArticles are leading articles stripped from titles before matching,
// so "The Wandering Inn" and "Wandering Inn" compare as equal.
var TitleArticles = []string{
	"the",
	"a",
	"an",
}

var (
	punctRE      = regexp.MustCompile(`[^\w\s]`)
	whitespaceRE = regexp.MustCompile(`\s+`)
)

// Normalize lowercases, strips punctuation, and collapses whitespace. It
// matches the normalization applied to stored normalized_name columns, so
// normalized values computed anywhere in the system agree.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = punctRE.ReplaceAllString(s, "")
	s = whitespaceRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeTitle normalizes and strips a leading article.
func NormalizeTitle(s string) string {
	s = Normalize(s)
	for _, article := range TitleArticles {
		if rest, ok := strings.CutPrefix(s, article+" "); ok {
			return rest
		}
	}
	return s
}

// Similarity returns the Jaro-Winkler similarity of two strings in [0,1].
// Two empty strings are considered identical.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	return smetrics.JaroWinkler(a, b, 0.7, 4)
}

// TitlesMatch reports whether two raw titles match at or above the given
// fuzzy threshold after title normalization.
func TitlesMatch(a, b string, threshold float64) bool {
	return Similarity(NormalizeTitle(a), NormalizeTitle(b)) >= threshold
}
