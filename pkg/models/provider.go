package models

// Known bibliographic providers. ISFDB is the canonical structural source
// for parent/sub-series relationships; the others are description and
// format-availability sources.
const (
	ProviderISFDB       = "isfdb"
	ProviderOpenLibrary = "openlibrary"
	ProviderGoogleBooks = "googlebooks"
	ProviderGoodreads   = "goodreads"
)

// ProviderIDColumn returns the series column that stores the provider's
// external identifier. It is the single mapping used anywhere a provider
// id needs to reach a WHERE clause or an update column list.
func ProviderIDColumn(provider string) (string, bool) {
	switch provider {
	case ProviderISFDB:
		return "isfdb_id", true
	case ProviderOpenLibrary:
		return "open_library_id", true
	case ProviderGoogleBooks:
		return "google_books_id", true
	case ProviderGoodreads:
		return "goodreads_id", true
	}
	return "", false
}
