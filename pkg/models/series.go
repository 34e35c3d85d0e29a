package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Series struct {
	bun.BaseModel `bun:"table:series,alias:s"`

	ID        int        `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `bun:",soft_delete" json:"-"`

	Name           string  `bun:",nullzero" json:"name"`
	NormalizedName string  `bun:",nullzero" json:"normalized_name"`
	Author         *string `json:"author,omitempty"`
	Genre          *string `json:"genre,omitempty"`
	BookCount      int     `json:"book_count"`
	FirstYear      *int    `json:"first_year,omitempty"`
	LastYear       *int    `json:"last_year,omitempty"`
	Description    *string `json:"description,omitempty"`
	Confidence     float64 `json:"confidence"`
	Verified       bool    `json:"verified"`

	ParentSeriesID *int    `json:"parent_series_id,omitempty"`
	ParentSeries   *Series `bun:"rel:belongs-to,join:parent_series_id=id" json:"parent_series,omitempty"`

	ISFDBID       *string `bun:"isfdb_id" json:"isfdb_id,omitempty"`
	OpenLibraryID *string `json:"open_library_id,omitempty"`
	GoogleBooksID *string `json:"google_books_id,omitempty"`
	GoodreadsID   *string `json:"goodreads_id,omitempty"`

	Books []*SeriesBook `bun:"rel:has-many,join:id=series_id" json:"books,omitempty"`
}

// ExternalID returns the stored identifier for the given provider, or nil.
func (s *Series) ExternalID(provider string) *string {
	switch provider {
	case ProviderISFDB:
		return s.ISFDBID
	case ProviderOpenLibrary:
		return s.OpenLibraryID
	case ProviderGoogleBooks:
		return s.GoogleBooksID
	case ProviderGoodreads:
		return s.GoodreadsID
	}
	return nil
}

// SetExternalID records the identifier for the given provider. Unknown
// providers are ignored.
func (s *Series) SetExternalID(provider, id string) {
	if id == "" {
		return
	}
	switch provider {
	case ProviderISFDB:
		s.ISFDBID = &id
	case ProviderOpenLibrary:
		s.OpenLibraryID = &id
	case ProviderGoogleBooks:
		s.GoogleBooksID = &id
	case ProviderGoodreads:
		s.GoodreadsID = &id
	}
}
