package isfdb

import (
	"context"
	"database/sql"
	"testing"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var schema = []string{
	`CREATE TABLE series (
		series_id INTEGER PRIMARY KEY,
		series_title TEXT,
		series_parent INTEGER,
		series_parent_position INTEGER
	)`,
	`CREATE TABLE titles (
		title_id INTEGER PRIMARY KEY,
		title_title TEXT,
		series_id INTEGER,
		title_seriesnum TEXT,
		title_copyright TEXT,
		title_ttype TEXT,
		title_parent INTEGER
	)`,
	`CREATE TABLE authors (
		author_id INTEGER PRIMARY KEY,
		author_canonical TEXT
	)`,
	`CREATE TABLE canonical_author (
		title_id INTEGER,
		author_id INTEGER
	)`,
	`CREATE TABLE pubs (
		pub_id INTEGER PRIMARY KEY,
		pub_isbn TEXT,
		pub_ptype TEXT
	)`,
	`CREATE TABLE pub_content (
		title_id INTEGER,
		pub_id INTEGER
	)`,
}

func setupClient(t *testing.T) *Client {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		db.Close()
	})

	for _, ddl := range schema {
		_, err := db.Exec(ddl)
		require.NoError(t, err)
	}

	seed := []string{
		`INSERT INTO series VALUES (100, 'Foundation Universe', NULL, NULL)`,
		`INSERT INTO series VALUES (101, 'Foundation', 100, 2)`,
		`INSERT INTO series VALUES (102, 'Galactic Empire', 100, 1)`,

		`INSERT INTO authors VALUES (1, 'Isaac Asimov')`,

		// Two novels in the Foundation sub-series, ordered by seriesnum.
		`INSERT INTO titles VALUES (1, 'Foundation', 101, '1', '1951-06-01', 'NOVEL', 0)`,
		`INSERT INTO titles VALUES (2, 'Foundation and Empire', 101, '2', '1952-10-01', 'NOVEL', NULL)`,
		// A variant title and an essay, both excluded.
		`INSERT INTO titles VALUES (3, 'Foundation (variant)', 101, '1', '1953-00-00', 'NOVEL', 1)`,
		`INSERT INTO titles VALUES (4, 'On Psychohistory', 101, NULL, '1988-00-00', 'ESSAY', 0)`,

		`INSERT INTO canonical_author VALUES (1, 1)`,
		`INSERT INTO canonical_author VALUES (2, 1)`,

		// Title 1 has a hardcover with an ISBN and an ebook edition.
		`INSERT INTO pubs VALUES (10, '9780553293357', 'hc')`,
		`INSERT INTO pubs VALUES (11, '', 'ebook')`,
		`INSERT INTO pub_content VALUES (1, 10)`,
		`INSERT INTO pub_content VALUES (1, 11)`,
	}
	for _, stmt := range seed {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	return New(db)
}

func TestFetchSeriesAssemblesBooks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := setupClient(t)

	result, err := client.FetchSeries(ctx, "foundation")
	require.NoError(t, err)
	require.False(t, result.Miss())

	src := result.Series
	assert.Equal(t, "101", src.ExternalID)
	assert.Equal(t, "Foundation", src.Name)
	assert.Equal(t, "Isaac Asimov", src.Author)

	// Variant titles and non-fiction rows are filtered out.
	require.Len(t, src.Books, 2)
	first := src.Books[0]
	assert.Equal(t, "Foundation", first.Title)
	assert.Equal(t, "Isaac Asimov", first.Author)
	require.NotNil(t, first.Position)
	assert.Equal(t, 1.0, *first.Position)
	require.NotNil(t, first.Year)
	assert.Equal(t, 1951, *first.Year)
	assert.Equal(t, "9780553293357", first.ISBN) // hardcover edition wins
	assert.True(t, first.HasEbook)

	second := src.Books[1]
	assert.Equal(t, "Foundation and Empire", second.Title)
	assert.Empty(t, second.ISBN)
	assert.False(t, second.HasEbook)

	require.NotNil(t, src.FirstYear)
	assert.Equal(t, 1951, *src.FirstYear)
	require.NotNil(t, src.LastYear)
	assert.Equal(t, 1952, *src.LastYear)

	require.NotNil(t, src.Parent)
	assert.Equal(t, "100", src.Parent.ExternalID)
	assert.Equal(t, "Foundation Universe", src.Parent.Name)

	assert.NotEmpty(t, result.Raw)
}

func TestFetchSeriesByExternalID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := setupClient(t)

	result, err := client.FetchSeriesByExternalID(ctx, "100")
	require.NoError(t, err)
	require.False(t, result.Miss())

	src := result.Series
	assert.Equal(t, "Foundation Universe", src.Name)
	assert.Empty(t, src.Books)
	assert.Nil(t, src.Parent)

	// Sub-series ordered by their declared position.
	require.Len(t, src.SubSeries, 2)
	assert.Equal(t, "Galactic Empire", src.SubSeries[0].Name)
	assert.Equal(t, "Foundation", src.SubSeries[1].Name)
	require.NotNil(t, src.SubSeries[1].Position)
	assert.Equal(t, 2, *src.SubSeries[1].Position)

	_, err = client.FetchSeriesByExternalID(ctx, "not-a-number")
	require.Error(t, err)
}

func TestFetchSeriesMiss(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := setupClient(t)

	result, err := client.FetchSeries(ctx, "No Such Series")
	require.NoError(t, err)
	assert.True(t, result.Miss())

	result, err = client.FetchSeriesByExternalID(ctx, "999")
	require.NoError(t, err)
	assert.True(t, result.Miss())
}

func TestName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, models.ProviderISFDB, New(nil).Name())
}
