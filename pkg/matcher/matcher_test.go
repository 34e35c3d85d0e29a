package matcher

import (
	"testing"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/config"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/models"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMatcher() *Matcher {
	return New(&config.Config{
		TitleMatchThreshold:   0.85,
		AuthorMatchThreshold:  0.8,
		AutoAcceptThreshold:   0.85,
		ManualReviewThreshold: 0.6,
		Weights: config.MatchWeights{
			BookCountMatch:     0.25,
			BookCountPartial:   0.10,
			TitleRatio:         0.50,
			OrderMatch:         0.15,
			Base:               0.10,
			DiscrepancyPenalty: 0.05,
		},
	})
}

func result(provider string, series *models.SourceSeries) *providers.FetchResult {
	return &providers.FetchResult{Provider: provider, Series: series}
}

func threeBookSeries(author string) *models.SourceSeries {
	return &models.SourceSeries{
		Name:   "The Wheel of Time",
		Author: author,
		Books: []*models.SourceBook{
			{Title: "The Eye of the World", Position: pointerutil.Float64(1)},
			{Title: "The Great Hunt", Position: pointerutil.Float64(2)},
			{Title: "The Dragon Reborn", Position: pointerutil.Float64(3)},
		},
	}
}

func TestCompareIdenticalSeries(t *testing.T) {
	t.Parallel()
	m := newTestMatcher()

	res := m.Compare(
		result("isfdb", threeBookSeries("Robert Jordan")),
		result("openlibrary", threeBookSeries("Robert Jordan")),
	)
	require.NotNil(t, res)

	assert.True(t, res.BookCountMatch)
	assert.Equal(t, 3, res.TitleMatches)
	assert.Equal(t, 1.0, res.TitleMatchRatio)
	assert.True(t, res.OrderMatch)
	assert.Empty(t, res.Discrepancies)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestCompareRequiresBothSeries(t *testing.T) {
	t.Parallel()
	m := newTestMatcher()

	full := result("isfdb", threeBookSeries("Robert Jordan"))
	assert.Nil(t, m.Compare(full, nil))
	assert.Nil(t, m.Compare(nil, full))
	assert.Nil(t, m.Compare(full, result("openlibrary", nil)))
}

func TestCompareEmptyBookLists(t *testing.T) {
	t.Parallel()
	m := newTestMatcher()

	res := m.Compare(
		result("isfdb", &models.SourceSeries{Name: "Hush"}),
		result("openlibrary", &models.SourceSeries{Name: "Hush"}),
	)
	require.NotNil(t, res)

	// Two empty lists agree on everything there is to agree on.
	assert.True(t, res.BookCountMatch)
	assert.Equal(t, 1.0, res.TitleMatchRatio)
	assert.True(t, res.OrderMatch)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestCompareBookCountMismatch(t *testing.T) {
	t.Parallel()
	m := newTestMatcher()

	b := threeBookSeries("Robert Jordan")
	b.Books = b.Books[:2]

	res := m.Compare(result("isfdb", threeBookSeries("Robert Jordan")), result("openlibrary", b))
	require.NotNil(t, res)

	assert.False(t, res.BookCountMatch)
	assert.Equal(t, 2, res.TitleMatches)
	assert.InDelta(t, 2.0/3.0, res.TitleMatchRatio, 1e-9)

	// One count discrepancy and one unmatched A title.
	require.Len(t, res.Discrepancies, 2)
	assert.Equal(t, FieldBookCount, res.Discrepancies[0].Field)
	assert.Equal(t, FieldBookTitle, res.Discrepancies[1].Field)
	assert.Equal(t, "The Dragon Reborn", res.Discrepancies[1].ValueA)

	// 0.10 + 0.50*(2/3) + 0.15 + 0.10 - 2*0.05
	assert.InDelta(t, 0.5833, res.Confidence, 0.001)
}

func TestCompareOrderMismatch(t *testing.T) {
	t.Parallel()
	m := newTestMatcher()

	b := threeBookSeries("Robert Jordan")
	b.Books[0].Position = pointerutil.Float64(3)
	b.Books[2].Position = pointerutil.Float64(1)

	res := m.Compare(result("isfdb", threeBookSeries("Robert Jordan")), result("openlibrary", b))
	require.NotNil(t, res)

	assert.False(t, res.OrderMatch)
	require.Len(t, res.Discrepancies, 1)
	assert.Equal(t, FieldBookOrder, res.Discrepancies[0].Field)

	// 0.25 + 0.50 + 0.10 - 0.05
	assert.InDelta(t, 0.80, res.Confidence, 1e-9)
}

func TestCompareOrderMismatchSmallOverlapNotFlagged(t *testing.T) {
	t.Parallel()
	m := newTestMatcher()

	a := &models.SourceSeries{Books: []*models.SourceBook{
		{Title: "Alpha Station", Position: pointerutil.Float64(1)},
		{Title: "Beta Quadrant", Position: pointerutil.Float64(2)},
	}}
	b := &models.SourceSeries{Books: []*models.SourceBook{
		{Title: "Alpha Station", Position: pointerutil.Float64(2)},
		{Title: "Beta Quadrant", Position: pointerutil.Float64(1)},
	}}

	res := m.Compare(result("isfdb", a), result("openlibrary", b))
	require.NotNil(t, res)

	// The mismatch still costs the order weight, but two matched books is
	// too small an overlap to record a discrepancy.
	assert.False(t, res.OrderMatch)
	assert.Empty(t, res.Discrepancies)
}

func TestCompareAuthorMismatch(t *testing.T) {
	t.Parallel()
	m := newTestMatcher()

	res := m.Compare(
		result("isfdb", threeBookSeries("Robert Jordan")),
		result("openlibrary", threeBookSeries("Brandon Sanderson")),
	)
	require.NotNil(t, res)

	require.Len(t, res.Discrepancies, 1)
	assert.Equal(t, FieldAuthor, res.Discrepancies[0].Field)
	assert.Equal(t, "Robert Jordan", res.Discrepancies[0].ValueA)
	assert.Equal(t, "Brandon Sanderson", res.Discrepancies[0].ValueB)
}

func TestCompareMissingAuthorIsNotADiscrepancy(t *testing.T) {
	t.Parallel()
	m := newTestMatcher()

	res := m.Compare(
		result("isfdb", threeBookSeries("Robert Jordan")),
		result("openlibrary", threeBookSeries("")),
	)
	require.NotNil(t, res)
	assert.Empty(t, res.Discrepancies)
}

func TestNeedsVerification(t *testing.T) {
	t.Parallel()
	m := newTestMatcher()

	disc := []Discrepancy{{Field: FieldAuthor}}

	assert.True(t, m.NeedsVerification(&ComparisonResult{Confidence: 0.7, Discrepancies: disc}))
	assert.True(t, m.NeedsVerification(&ComparisonResult{Confidence: 0.6, Discrepancies: disc}))

	// At the auto-accept threshold the pair is accepted outright.
	assert.False(t, m.NeedsVerification(&ComparisonResult{Confidence: 0.85, Discrepancies: disc}))
	// Below the review floor there is no auto-escalation.
	assert.False(t, m.NeedsVerification(&ComparisonResult{Confidence: 0.59, Discrepancies: disc}))
	// No discrepancies means nothing to verify.
	assert.False(t, m.NeedsVerification(&ComparisonResult{Confidence: 0.7}))
	assert.False(t, m.NeedsVerification(nil))
}

func TestMergePrefersFirstSide(t *testing.T) {
	t.Parallel()
	m := newTestMatcher()

	preferred := &models.SourceSeries{
		Name:   "Discworld",
		Author: "Terry Pratchett",
		Books: []*models.SourceBook{
			{Title: "The Colour of Magic", Position: pointerutil.Float64(1)},
			{Title: "The Light Fantastic", Position: pointerutil.Float64(2)},
		},
	}
	other := &models.SourceSeries{
		Name:        "Discworld Series",
		Author:      "Terry Pratchett",
		Description: "A flat world carried by four elephants.",
		FirstYear:   pointerutil.Int(1983),
		Books: []*models.SourceBook{
			{Title: "The Color of Magic", Position: pointerutil.Float64(1)},
			{Title: "Equal Rites", Position: pointerutil.Float64(3)},
		},
	}

	merged := m.Merge(preferred, other)
	require.NotNil(t, merged)

	assert.Equal(t, "Discworld", merged.Name)
	// Fields missing on the preferred side are filled from the other side.
	assert.Equal(t, "A flat world carried by four elephants.", merged.Description)
	require.NotNil(t, merged.FirstYear)
	assert.Equal(t, 1983, *merged.FirstYear)

	// "The Color of Magic" fuzzy-matches an existing title and is dropped;
	// "Equal Rites" is new and lands in position order.
	require.Len(t, merged.Books, 3)
	assert.Equal(t, "The Colour of Magic", merged.Books[0].Title)
	assert.Equal(t, "The Light Fantastic", merged.Books[1].Title)
	assert.Equal(t, "Equal Rites", merged.Books[2].Title)
}

func TestMergeUnpositionedBooksSortLast(t *testing.T) {
	t.Parallel()
	m := newTestMatcher()

	preferred := &models.SourceSeries{
		Name:  "Hull Zero",
		Books: []*models.SourceBook{{Title: "Extras"}},
	}
	other := &models.SourceSeries{
		Name: "Hull Zero",
		Books: []*models.SourceBook{
			{Title: "Genesis Dawn", Position: pointerutil.Float64(1)},
		},
	}

	merged := m.Merge(preferred, other)
	require.Len(t, merged.Books, 2)
	assert.Equal(t, "Genesis Dawn", merged.Books[0].Title)
	assert.Equal(t, "Extras", merged.Books[1].Title)
}

func TestMergeNilSides(t *testing.T) {
	t.Parallel()
	m := newTestMatcher()

	s := &models.SourceSeries{Name: "Solo"}
	assert.Equal(t, s, m.Merge(s, nil))
	assert.Equal(t, s, m.Merge(nil, s))
	assert.Nil(t, m.Merge(nil, nil))
}
