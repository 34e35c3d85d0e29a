package models

import "sort"

// SourceSeries is a provider-normalized account of a series. It is the
// input to the matcher and the hierarchy reconciler and is never persisted
// as structured rows; only the raw provider payload is stored for audit.
type SourceSeries struct {
	ExternalID  string
	Name        string
	Author      string
	Description string
	Genre       string
	FirstYear   *int
	LastYear    *int
	Books       []*SourceBook
	SubSeries   []*SourceSeriesRef
	Parent      *SourceSeriesRef
	Tags        []string
}

// SourceSeriesRef is a provider's reference to a related series (a parent
// or a declared sub-series) by that provider's identifier.
type SourceSeriesRef struct {
	ExternalID string
	Name       string
	Position   *int
}

type SourceBook struct {
	ExternalID   string
	Title        string
	Author       string
	Position     *float64
	Year         *int
	ISBN         string
	Description  string
	HasEbook     bool
	HasAudiobook bool
}

// SortPosition returns the book's position, or the unset sentinel when no
// position is known.
func (b *SourceBook) SortPosition() float64 {
	if b.Position == nil {
		return UnsetPositionSentinel
	}
	return *b.Position
}

// SortSourceBooksByPosition orders books ascending by position,
// unpositioned last.
func SortSourceBooksByPosition(books []*SourceBook) {
	sort.SliceStable(books, func(i, j int) bool {
		return books[i].SortPosition() < books[j].SortPosition()
	})
}
