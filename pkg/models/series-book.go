package models

import (
	"sort"
	"time"

	"github.com/uptrace/bun"
)

// UnsetPositionSentinel sorts books with no series position after every
// positioned book. It is never persisted.
const UnsetPositionSentinel = 1e9

type SeriesBook struct {
	bun.BaseModel `bun:"table:series_books,alias:sb"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SeriesID        int      `bun:",nullzero" json:"series_id"`
	Position        *float64 `json:"position,omitempty"`
	Title           string   `bun:",nullzero" json:"title"`
	NormalizedTitle string   `bun:",nullzero" json:"normalized_title"`
	Author          *string  `json:"author,omitempty"`
	Year            *int     `json:"year,omitempty"`
	ISBN            *string  `bun:"isbn" json:"isbn,omitempty"`
	Description     *string  `json:"description,omitempty"`

	ISFDBID       *string `bun:"isfdb_id" json:"isfdb_id,omitempty"`
	OpenLibraryID *string `json:"open_library_id,omitempty"`
	GoogleBooksID *string `json:"google_books_id,omitempty"`

	// Format flags are monotonic: once true they stay true across merges.
	HasEbook     bool `json:"has_ebook"`
	HasAudiobook bool `json:"has_audiobook"`

	Confidence float64 `json:"confidence"`
}

// SortPosition returns the book's position, or the unset sentinel when no
// position is known.
func (b *SeriesBook) SortPosition() float64 {
	if b.Position == nil {
		return UnsetPositionSentinel
	}
	return *b.Position
}

// SortBooksByPosition orders books ascending by position, unpositioned last.
func SortBooksByPosition(books []*SeriesBook) {
	sort.SliceStable(books, func(i, j int) bool {
		return books[i].SortPosition() < books[j].SortPosition()
	})
}
