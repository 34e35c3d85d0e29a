package series

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/errcodes"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/models"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/textmatch"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// maxAncestorDepth bounds the parent-chain walk when checking for cycles.
// Real hierarchies are two or three levels deep.
const maxAncestorDepth = 20

type RetrieveSeriesOptions struct {
	ID             *int
	NormalizedName *string
	// Provider and ExternalID look a series up by a stored provider
	// identifier. Both must be set together.
	Provider   *string
	ExternalID *string
}

type ListSeriesOptions struct {
	Limit              *int
	Offset             *int
	Genre              *string
	Search             *string // substring match on the normalized name
	ParentSeriesID     *int
	MissingDescription bool

	includeTotal bool
}

type UpdateSeriesOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateSeries(ctx context.Context, series *models.Series) error {
	now := time.Now()
	if series.CreatedAt.IsZero() {
		series.CreatedAt = now
	}
	series.UpdatedAt = series.CreatedAt

	if series.NormalizedName == "" {
		series.NormalizedName = textmatch.Normalize(series.Name)
	}

	_, err := svc.db.
		NewInsert().
		Model(series).
		Returning("*").
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) RetrieveSeries(ctx context.Context, opts RetrieveSeriesOptions) (*models.Series, error) {
	series := &models.Series{}

	q := svc.db.
		NewSelect().
		Model(series)

	if opts.ID != nil {
		q = q.Where("s.id = ?", *opts.ID)
	}
	if opts.NormalizedName != nil {
		q = q.Where("s.normalized_name = ?", *opts.NormalizedName)
	}
	if opts.Provider != nil && opts.ExternalID != nil {
		column, ok := models.ProviderIDColumn(*opts.Provider)
		if !ok {
			return nil, errors.Errorf("unknown provider %q", *opts.Provider)
		}
		q = q.Where("s.? = ?", bun.Ident(column), *opts.ExternalID)
	}

	err := q.Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Series")
		}
		return nil, errors.WithStack(err)
	}

	return series, nil
}

// RetrieveSeriesByID retrieves a series by its ID.
func (svc *Service) RetrieveSeriesByID(ctx context.Context, id int) (*models.Series, error) {
	return svc.RetrieveSeries(ctx, RetrieveSeriesOptions{ID: &id})
}

// RetrieveSeriesByName looks a series up by its normalized name.
func (svc *Service) RetrieveSeriesByName(ctx context.Context, name string) (*models.Series, error) {
	normalized := textmatch.Normalize(name)
	return svc.RetrieveSeries(ctx, RetrieveSeriesOptions{NormalizedName: &normalized})
}

func (svc *Service) ListSeries(ctx context.Context, opts ListSeriesOptions) ([]*models.Series, error) {
	s, _, err := svc.listSeriesWithTotal(ctx, opts)
	return s, errors.WithStack(err)
}

func (svc *Service) ListSeriesWithTotal(ctx context.Context, opts ListSeriesOptions) ([]*models.Series, int, error) {
	opts.includeTotal = true
	return svc.listSeriesWithTotal(ctx, opts)
}

func (svc *Service) listSeriesWithTotal(ctx context.Context, opts ListSeriesOptions) ([]*models.Series, int, error) {
	var series []*models.Series
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&series).
		Order("s.normalized_name ASC")

	if opts.Genre != nil {
		q = q.Where("s.genre = ?", *opts.Genre)
	}
	if opts.Search != nil && *opts.Search != "" {
		q = q.Where("s.normalized_name LIKE ?", "%"+textmatch.Normalize(*opts.Search)+"%")
	}
	if opts.ParentSeriesID != nil {
		q = q.Where("s.parent_series_id = ?", *opts.ParentSeriesID)
	}
	if opts.MissingDescription {
		q = q.Where("(s.description IS NULL OR s.description = '')")
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return series, total, nil
}

func (svc *Service) UpdateSeries(ctx context.Context, series *models.Series, opts UpdateSeriesOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	series.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(series).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Series")
		}
		return errors.WithStack(err)
	}
	return nil
}

// UpsertFromSource folds one provider's account of a series into the
// catalog. Lookup is by stored provider identifier first, then by
// normalized name; a miss creates the series. On merge, fields fill only
// when missing, except confidence, which only ever ratchets up.
func (svc *Service) UpsertFromSource(ctx context.Context, src *models.SourceSeries, provider string, confidence float64) (*models.Series, error) {
	if src == nil {
		return nil, errors.New("source series is required")
	}
	name := strings.TrimSpace(src.Name)
	if name == "" {
		return nil, errors.New("source series has no name")
	}

	series, err := svc.findForSource(ctx, src, provider)
	if err != nil {
		return nil, err
	}

	if series == nil {
		series = &models.Series{
			Name:           name,
			NormalizedName: textmatch.Normalize(name),
			Confidence:     confidence,
			FirstYear:      src.FirstYear,
			LastYear:       src.LastYear,
		}
		if src.Author != "" {
			series.Author = &src.Author
		}
		if src.Genre != "" {
			series.Genre = &src.Genre
		}
		if src.Description != "" {
			series.Description = &src.Description
		}
		series.SetExternalID(provider, src.ExternalID)

		if err := svc.CreateSeries(ctx, series); err != nil {
			return nil, err
		}
	} else {
		columns := mergeSeriesFields(series, src, provider, confidence)
		if err := svc.UpdateSeries(ctx, series, UpdateSeriesOptions{Columns: columns}); err != nil {
			return nil, err
		}
	}

	for _, book := range src.Books {
		if _, err := svc.UpsertBook(ctx, series.ID, book, provider, confidence); err != nil {
			return nil, err
		}
	}

	if err := svc.RecountBooks(ctx, series.ID); err != nil {
		return nil, err
	}

	return svc.RetrieveSeriesByID(ctx, series.ID)
}

func (svc *Service) findForSource(ctx context.Context, src *models.SourceSeries, provider string) (*models.Series, error) {
	if src.ExternalID != "" {
		series, err := svc.RetrieveSeries(ctx, RetrieveSeriesOptions{
			Provider:   &provider,
			ExternalID: &src.ExternalID,
		})
		if err == nil {
			return series, nil
		}
		if !errors.Is(err, errcodes.NotFound("Series")) {
			return nil, err
		}
	}

	normalized := textmatch.Normalize(src.Name)
	series, err := svc.RetrieveSeries(ctx, RetrieveSeriesOptions{NormalizedName: &normalized})
	if err == nil {
		return series, nil
	}
	if !errors.Is(err, errcodes.NotFound("Series")) {
		return nil, err
	}
	return nil, nil
}

// mergeSeriesFields applies fill-if-missing merge semantics and returns
// the changed columns.
func mergeSeriesFields(series *models.Series, src *models.SourceSeries, provider string, confidence float64) []string {
	columns := []string{}

	if series.Author == nil && src.Author != "" {
		series.Author = &src.Author
		columns = append(columns, "author")
	}
	if series.Genre == nil && src.Genre != "" {
		series.Genre = &src.Genre
		columns = append(columns, "genre")
	}
	if (series.Description == nil || *series.Description == "") && src.Description != "" {
		series.Description = &src.Description
		columns = append(columns, "description")
	}
	if series.FirstYear == nil && src.FirstYear != nil {
		series.FirstYear = src.FirstYear
		columns = append(columns, "first_year")
	}
	if series.LastYear == nil && src.LastYear != nil {
		series.LastYear = src.LastYear
		columns = append(columns, "last_year")
	}
	if confidence > series.Confidence {
		series.Confidence = confidence
		columns = append(columns, "confidence")
	}
	if src.ExternalID != "" && series.ExternalID(provider) == nil {
		series.SetExternalID(provider, src.ExternalID)
		if column, ok := models.ProviderIDColumn(provider); ok {
			columns = append(columns, column)
		}
	}

	return columns
}

// RecountBooks refreshes the series' denormalized book count.
func (svc *Service) RecountBooks(ctx context.Context, seriesID int) error {
	_, err := svc.db.
		NewUpdate().
		Model((*models.Series)(nil)).
		Set("book_count = (SELECT COUNT(*) FROM series_books WHERE series_id = ?)", seriesID).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", seriesID).
		Exec(ctx)
	return errors.WithStack(err)
}

// LinkParent sets a series' parent, rejecting self-links and any link that
// would close a cycle in the parent chain.
func (svc *Service) LinkParent(ctx context.Context, childID, parentID int) error {
	if childID == parentID {
		return errcodes.Conflict("A series can't be its own parent.")
	}

	// Walk the would-be parent's ancestor chain. Hitting the child means
	// the link would close a cycle.
	ancestor := parentID
	for i := 0; i < maxAncestorDepth; i++ {
		series, err := svc.RetrieveSeriesByID(ctx, ancestor)
		if err != nil {
			return err
		}
		if series.ParentSeriesID == nil {
			break
		}
		if *series.ParentSeriesID == childID {
			return errcodes.Conflict("Linking these series would create a cycle.")
		}
		ancestor = *series.ParentSeriesID
	}

	_, err := svc.db.
		NewUpdate().
		Model((*models.Series)(nil)).
		Set("parent_series_id = ?", parentID).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", childID).
		Exec(ctx)
	return errors.WithStack(err)
}

// CleanupOrphanedSeries soft-deletes series that have no books and no
// sub-series.
func (svc *Service) CleanupOrphanedSeries(ctx context.Context) (int, error) {
	result, err := svc.db.
		NewDelete().
		Model((*models.Series)(nil)).
		Where("id NOT IN (SELECT DISTINCT series_id FROM series_books)").
		Where("id NOT IN (SELECT parent_series_id FROM series WHERE parent_series_id IS NOT NULL)").
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// SaveProviderPayload appends a raw provider response for audit. The
// payload is stored as received; nothing downstream parses it again.
func (svc *Service) SaveProviderPayload(ctx context.Context, seriesID int, provider string, payload json.RawMessage) error {
	row := &models.ProviderPayload{
		SeriesID:  seriesID,
		Provider:  provider,
		Payload:   payload,
		FetchedAt: time.Now(),
	}
	_, err := svc.db.
		NewInsert().
		Model(row).
		Exec(ctx)
	return errors.WithStack(err)
}

// RetrieveLatestPayload returns the most recent raw payload stored for a
// series and provider.
func (svc *Service) RetrieveLatestPayload(ctx context.Context, seriesID int, provider string) (*models.ProviderPayload, error) {
	payload := &models.ProviderPayload{}
	err := svc.db.
		NewSelect().
		Model(payload).
		Where("pp.series_id = ? AND pp.provider = ?", seriesID, provider).
		Order("pp.fetched_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Provider payload")
		}
		return nil, errors.WithStack(err)
	}
	return payload, nil
}

