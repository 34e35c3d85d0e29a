package hierarchy

import (
	"context"
	"database/sql"
	"testing"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/migrations"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/models"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/series"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/textmatch"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

type fakeCanonical struct {
	byName map[string]*models.SourceSeries
	byID   map[string]*models.SourceSeries
}

func (f *fakeCanonical) Name() string { return models.ProviderISFDB }

func (f *fakeCanonical) FetchSeries(_ context.Context, name string) (*providers.FetchResult, error) {
	return &providers.FetchResult{Provider: f.Name(), Series: f.byName[textmatch.Normalize(name)]}, nil
}

func (f *fakeCanonical) FetchSeriesByExternalID(_ context.Context, externalID string) (*providers.FetchResult, error) {
	return &providers.FetchResult{Provider: f.Name(), Series: f.byID[externalID]}, nil
}

// flattenedFixture seeds a parent holding every book of two canonical
// sub-series, plus an unrelated series sharing one title.
func flattenedFixture(t *testing.T) (*series.Service, *Service, *models.Series, *models.Series) {
	t.Helper()
	ctx := context.Background()

	seriesService := series.NewService(setupTestDB(t))

	parent, err := seriesService.UpsertFromSource(ctx, &models.SourceSeries{
		ExternalID: "100",
		Name:       "Foundation Universe",
		Books: []*models.SourceBook{
			{Title: "Foundation", Position: pointerutil.Float64(1)},
			{Title: "Foundation and Empire", Position: pointerutil.Float64(2)},
			{Title: "The Stars, Like Dust", Position: pointerutil.Float64(1)},
			{Title: "The Currents of Space", Position: pointerutil.Float64(2)},
		},
	}, models.ProviderISFDB, 0.9)
	require.NoError(t, err)

	unrelated, err := seriesService.UpsertFromSource(ctx, &models.SourceSeries{
		Name:  "Unrelated Anthology",
		Books: []*models.SourceBook{{Title: "Foundation"}},
	}, models.ProviderISFDB, 0.9)
	require.NoError(t, err)

	canonical := &fakeCanonical{
		byID: map[string]*models.SourceSeries{
			"100": {
				ExternalID: "100",
				Name:       "Foundation Universe",
				SubSeries: []*models.SourceSeriesRef{
					{ExternalID: "101", Name: "Foundation"},
					{ExternalID: "102", Name: "Galactic Empire"},
				},
			},
			"101": {
				ExternalID: "101",
				Name:       "Foundation",
				Parent:     &models.SourceSeriesRef{ExternalID: "100", Name: "Foundation Universe"},
				Books: []*models.SourceBook{
					{Title: "Foundation", Position: pointerutil.Float64(1)},
					{Title: "Foundation and Empire", Position: pointerutil.Float64(2)},
				},
			},
			"102": {
				ExternalID: "102",
				Name:       "Galactic Empire",
				Parent:     &models.SourceSeriesRef{ExternalID: "100", Name: "Foundation Universe"},
				Books: []*models.SourceBook{
					{Title: "The Stars, Like Dust", Position: pointerutil.Float64(1)},
					{Title: "The Currents of Space", Position: pointerutil.Float64(2)},
				},
			},
		},
		byName: map[string]*models.SourceSeries{},
	}
	for _, s := range canonical.byID {
		canonical.byName[textmatch.Normalize(s.Name)] = s
	}

	return seriesService, NewService(seriesService, canonical), parent, unrelated
}

func TestReconcileSplitsFlattenedParent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	seriesService, svc, parent, unrelated := flattenedFixture(t)

	result, err := svc.Reconcile(ctx, parent.ID, ReconcileOptions{})
	require.NoError(t, err)
	require.Len(t, result.SubSeries, 2)
	assert.Len(t, result.Moves, 4)

	// Both sub-series exist, linked to the parent, each with its books.
	for i, want := range []struct {
		name  string
		books []string
	}{
		{"Foundation", []string{"Foundation", "Foundation and Empire"}},
		{"Galactic Empire", []string{"The Stars, Like Dust", "The Currents of Space"}},
	} {
		sub, err := seriesService.RetrieveSeriesByID(ctx, result.SubSeries[i])
		require.NoError(t, err)
		assert.Equal(t, want.name, sub.Name)
		require.NotNil(t, sub.ParentSeriesID)
		assert.Equal(t, parent.ID, *sub.ParentSeriesID)

		books, err := seriesService.ListBooks(ctx, series.ListBooksOptions{SeriesID: &sub.ID})
		require.NoError(t, err)
		titles := make([]string, len(books))
		for j, b := range books {
			titles[j] = b.Title
		}
		assert.Equal(t, want.books, titles)
	}

	// The parent keeps no direct books and its count reflects that.
	parent, err = seriesService.RetrieveSeriesByID(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, parent.BookCount)

	// The unrelated series sharing a title is outside the candidate set.
	unrelated, err = seriesService.RetrieveSeriesByID(ctx, unrelated.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unrelated.BookCount)
}

func TestReconcileIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, svc, parent, _ := flattenedFixture(t)

	_, err := svc.Reconcile(ctx, parent.ID, ReconcileOptions{})
	require.NoError(t, err)

	second, err := svc.Reconcile(ctx, parent.ID, ReconcileOptions{})
	require.NoError(t, err)
	assert.Empty(t, second.Moves)
}

func TestReconcileDryRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	seriesService, svc, parent, _ := flattenedFixture(t)

	result, err := svc.Reconcile(ctx, parent.ID, ReconcileOptions{DryRun: true})
	require.NoError(t, err)

	// Moves are planned but nothing is written: the sub-series don't
	// exist yet, so planned moves have no target ID.
	require.Len(t, result.Moves, 4)
	for _, move := range result.Moves {
		assert.Equal(t, parent.ID, move.FromSeriesID)
		assert.Zero(t, move.ToSeriesID)
		assert.NotEmpty(t, move.SubSeriesName)
	}

	parent, err = seriesService.RetrieveSeriesByID(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, parent.BookCount)

	all, err := seriesService.ListSeries(ctx, series.ListSeriesOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReconcileFillsGenre(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	seriesService, svc, parent, _ := flattenedFixture(t)

	_, err := svc.Reconcile(ctx, parent.ID, ReconcileOptions{Genre: "science fiction"})
	require.NoError(t, err)

	parent, err = seriesService.RetrieveSeriesByID(ctx, parent.ID)
	require.NoError(t, err)
	require.NotNil(t, parent.Genre)
	assert.Equal(t, "science fiction", *parent.Genre)

	subs, err := seriesService.ListSeries(ctx, series.ListSeriesOptions{ParentSeriesID: &parent.ID})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	for _, sub := range subs {
		require.NotNil(t, sub.Genre)
		assert.Equal(t, "science fiction", *sub.Genre)
	}
}

func TestDedupParentsIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	seriesService, svc, parent, _ := flattenedFixture(t)

	_, err := svc.Reconcile(ctx, parent.ID, ReconcileOptions{})
	require.NoError(t, err)

	// Re-flatten one book onto the parent to simulate a later aggregator
	// merge, then dedup it away.
	_, err = seriesService.UpsertBook(ctx, parent.ID, &models.SourceBook{Title: "Foundation"}, models.ProviderOpenLibrary, 0.5)
	require.NoError(t, err)
	require.NoError(t, seriesService.RecountBooks(ctx, parent.ID))

	removed, err := svc.DedupParents(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	parent, err = seriesService.RetrieveSeriesByID(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, parent.BookCount)

	removed, err = svc.DedupParents(ctx, parent.ID)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestLinkSubSeriesBackfillsParent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	seriesService, svc, parent, _ := flattenedFixture(t)

	orphan, err := seriesService.UpsertFromSource(ctx, &models.SourceSeries{
		ExternalID: "101",
		Name:       "Foundation",
	}, models.ProviderISFDB, 0.9)
	require.NoError(t, err)
	require.Nil(t, orphan.ParentSeriesID)

	linked, err := svc.LinkSubSeries(ctx, orphan.ID)
	require.NoError(t, err)
	assert.True(t, linked)

	orphan, err = seriesService.RetrieveSeriesByID(ctx, orphan.ID)
	require.NoError(t, err)
	require.NotNil(t, orphan.ParentSeriesID)
	assert.Equal(t, parent.ID, *orphan.ParentSeriesID)

	// Already linked: nothing to do.
	linked, err = svc.LinkSubSeries(ctx, orphan.ID)
	require.NoError(t, err)
	assert.False(t, linked)
}

func TestFindMisflattened(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	seriesService, svc, _, _ := flattenedFixture(t)

	// A series with far more local books than its canonical record, which
	// also declares a parent upstream.
	_, err := seriesService.UpsertFromSource(ctx, &models.SourceSeries{
		ExternalID: "101",
		Name:       "Foundation",
		Books: []*models.SourceBook{
			{Title: "Foundation"},
			{Title: "Foundation and Empire"},
			{Title: "Second Foundation"},
			{Title: "The Stars, Like Dust"},
			{Title: "The Currents of Space"},
			{Title: "Pebble in the Sky"},
		},
	}, models.ProviderISFDB, 0.9)
	require.NoError(t, err)

	flagged, err := svc.FindMisflattened(ctx, FindMisflattenedOptions{})
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, "Foundation", flagged[0].Name)
	assert.Equal(t, 6, flagged[0].LocalCount)
	assert.Equal(t, 2, flagged[0].CanonicalCount)
}
