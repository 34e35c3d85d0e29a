package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderIDColumn(t *testing.T) {
	t.Parallel()

	columns := map[string]string{
		ProviderISFDB:       "isfdb_id",
		ProviderOpenLibrary: "open_library_id",
		ProviderGoogleBooks: "google_books_id",
		ProviderGoodreads:   "goodreads_id",
	}
	for provider, want := range columns {
		column, ok := ProviderIDColumn(provider)
		require.True(t, ok, provider)
		assert.Equal(t, want, column)
	}

	_, ok := ProviderIDColumn("librarything")
	assert.False(t, ok)
}

// Every provider with a column must round-trip through the accessors, so
// an id written via SetExternalID always has a column to be persisted in.
func TestProviderIDColumnCoversExternalIDs(t *testing.T) {
	t.Parallel()

	for _, provider := range []string{ProviderISFDB, ProviderOpenLibrary, ProviderGoogleBooks, ProviderGoodreads} {
		s := &Series{}
		s.SetExternalID(provider, "x1")

		id := s.ExternalID(provider)
		require.NotNil(t, id, provider)
		assert.Equal(t, "x1", *id)

		_, ok := ProviderIDColumn(provider)
		assert.True(t, ok, provider)
	}
}
