// Package matcher reconciles two providers' accounts of the same series:
// it scores how well they agree, flags discrepancies, and merges them.
package matcher

import (
	"strconv"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/config"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/textmatch"
)

// Discrepancy fields.
const (
	FieldBookCount = "book_count"
	FieldBookTitle = "book_title"
	FieldBookOrder = "book_order"
	FieldAuthor    = "author"
)

// Discrepancy is one disagreement between two source accounts, with both
// values labeled by the provider they came from.
type Discrepancy struct {
	Field   string `json:"field"`
	SourceA string `json:"source_a"`
	ValueA  string `json:"value_a"`
	SourceB string `json:"source_b"`
	ValueB  string `json:"value_b"`
}

type ComparisonResult struct {
	BookCountMatch  bool          `json:"book_count_match"`
	BookCountA      int           `json:"book_count_a"`
	BookCountB      int           `json:"book_count_b"`
	TitleMatches    int           `json:"title_matches"`
	TitleMatchRatio float64       `json:"title_match_ratio"`
	OrderMatch      bool          `json:"order_match"`
	Discrepancies   []Discrepancy `json:"discrepancies"`
	Confidence      float64       `json:"confidence"`
}

type Matcher struct {
	weights         config.MatchWeights
	titleThreshold  float64
	authorThreshold float64
	autoAccept      float64
	manualReview    float64
}

func New(cfg *config.Config) *Matcher {
	return &Matcher{
		weights:         cfg.Weights,
		titleThreshold:  cfg.TitleMatchThreshold,
		authorThreshold: cfg.AuthorMatchThreshold,
		autoAccept:      cfg.AutoAcceptThreshold,
		manualReview:    cfg.ManualReviewThreshold,
	}
}

// Compare scores how well two providers' accounts of a series agree.
// It returns nil unless both results carry a series.
func (m *Matcher) Compare(a, b *providers.FetchResult) *ComparisonResult {
	if a == nil || b == nil || a.Series == nil || b.Series == nil {
		return nil
	}

	result := &ComparisonResult{
		BookCountA:    len(a.Series.Books),
		BookCountB:    len(b.Series.Books),
		Discrepancies: []Discrepancy{},
	}
	result.BookCountMatch = result.BookCountA == result.BookCountB
	if !result.BookCountMatch {
		result.Discrepancies = append(result.Discrepancies, Discrepancy{
			Field:   FieldBookCount,
			SourceA: a.Provider,
			ValueA:  strconv.Itoa(result.BookCountA),
			SourceB: b.Provider,
			ValueB:  strconv.Itoa(result.BookCountB),
		})
	}

	// For each of A's books, look for a fuzzy title match in B. Unmatched
	// A titles become discrepancies; matched pairs carry their positions
	// forward for the order check.
	type matchedPair struct {
		posA float64
		posB float64
	}
	var pairs []matchedPair
	for _, bookA := range a.Series.Books {
		normA := textmatch.NormalizeTitle(bookA.Title)
		matched := false
		for _, bookB := range b.Series.Books {
			if textmatch.Similarity(normA, textmatch.NormalizeTitle(bookB.Title)) >= m.titleThreshold {
				pairs = append(pairs, matchedPair{posA: bookA.SortPosition(), posB: bookB.SortPosition()})
				matched = true
				break
			}
		}
		if !matched {
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				Field:   FieldBookTitle,
				SourceA: a.Provider,
				ValueA:  bookA.Title,
				SourceB: b.Provider,
			})
		}
	}
	result.TitleMatches = len(pairs)
	if maxCount := max(result.BookCountA, result.BookCountB); maxCount > 0 {
		result.TitleMatchRatio = float64(result.TitleMatches) / float64(maxCount)
	} else {
		// Two empty lists agree vacuously.
		result.TitleMatchRatio = 1
	}

	// Relative order over the matched books only: every consecutive pair
	// must move in the same direction in both lists. Vacuously true with
	// fewer than two matched pairs.
	result.OrderMatch = true
	for i := 0; i+1 < len(pairs); i++ {
		if positionDelta(pairs[i].posA, pairs[i+1].posA) != positionDelta(pairs[i].posB, pairs[i+1].posB) {
			result.OrderMatch = false
			break
		}
	}
	// An order mismatch over a tiny overlap is noise, not signal.
	if !result.OrderMatch && result.TitleMatches > 2 {
		result.Discrepancies = append(result.Discrepancies, Discrepancy{
			Field:   FieldBookOrder,
			SourceA: a.Provider,
			SourceB: b.Provider,
		})
	}

	authorA := a.Series.Author
	authorB := b.Series.Author
	if authorA != "" && authorB != "" {
		sim := textmatch.Similarity(textmatch.Normalize(authorA), textmatch.Normalize(authorB))
		if sim < m.authorThreshold {
			result.Discrepancies = append(result.Discrepancies, Discrepancy{
				Field:   FieldAuthor,
				SourceA: a.Provider,
				ValueA:  authorA,
				SourceB: b.Provider,
				ValueB:  authorB,
			})
		}
	}

	confidence := m.weights.BookCountPartial
	if result.BookCountMatch {
		confidence = m.weights.BookCountMatch
	}
	confidence += m.weights.TitleRatio * result.TitleMatchRatio
	if result.OrderMatch {
		confidence += m.weights.OrderMatch
	}
	confidence += m.weights.Base
	confidence -= m.weights.DiscrepancyPenalty * float64(len(result.Discrepancies))
	result.Confidence = clamp01(confidence)

	return result
}

// NeedsVerification is the gate that escalates an ambiguous pair to a
// tertiary verification path: confidence inside
// [manualReviewThreshold, autoAcceptThreshold) with at least one
// discrepancy. At or above the upper threshold the pair auto-accepts
// regardless of discrepancies; below the lower threshold it is a
// manual-review case with no auto-escalation.
func (m *Matcher) NeedsVerification(result *ComparisonResult) bool {
	if result == nil {
		return false
	}
	return result.Confidence >= m.manualReview &&
		result.Confidence < m.autoAccept &&
		len(result.Discrepancies) > 0
}

func positionDelta(from, to float64) int {
	switch {
	case to > from:
		return 1
	case to < from:
		return -1
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
