package matcher

import (
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/models"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/textmatch"
)

// Merge combines two source accounts into one. Scalar fields come from the
// preferred side, falling back to the other side's non-empty value. The
// preferred book list is kept whole; books from the other side are
// appended only when no fuzzy-matched title is already present, then the
// list is re-sorted by position (unpositioned books last).
func (m *Matcher) Merge(preferred, other *models.SourceSeries) *models.SourceSeries {
	if preferred == nil {
		return other
	}
	if other == nil {
		return preferred
	}

	merged := &models.SourceSeries{
		ExternalID:  firstNonEmpty(preferred.ExternalID, other.ExternalID),
		Name:        firstNonEmpty(preferred.Name, other.Name),
		Author:      firstNonEmpty(preferred.Author, other.Author),
		Description: firstNonEmpty(preferred.Description, other.Description),
		Genre:       firstNonEmpty(preferred.Genre, other.Genre),
		FirstYear:   firstNonNil(preferred.FirstYear, other.FirstYear),
		LastYear:    firstNonNil(preferred.LastYear, other.LastYear),
		Parent:      preferred.Parent,
		SubSeries:   preferred.SubSeries,
		Tags:        preferred.Tags,
	}
	if merged.Parent == nil {
		merged.Parent = other.Parent
	}
	if len(merged.SubSeries) == 0 {
		merged.SubSeries = other.SubSeries
	}
	if len(merged.Tags) == 0 {
		merged.Tags = other.Tags
	}

	books := append([]*models.SourceBook(nil), preferred.Books...)
	for _, candidate := range other.Books {
		normCandidate := textmatch.NormalizeTitle(candidate.Title)
		present := false
		for _, existing := range preferred.Books {
			if textmatch.Similarity(normCandidate, textmatch.NormalizeTitle(existing.Title)) >= m.titleThreshold {
				present = true
				break
			}
		}
		if !present {
			books = append(books, candidate)
		}
	}
	models.SortSourceBooksByPosition(books)
	merged.Books = books

	return merged
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func firstNonNil(a, b *int) *int {
	if a != nil {
		return a
	}
	return b
}
