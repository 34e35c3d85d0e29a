package series

import (
	"context"
	"database/sql"
	"time"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/errcodes"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/models"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/textmatch"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type ListBooksOptions struct {
	SeriesID           *int
	Limit              *int
	Offset             *int
	MissingDescription bool
}

type UpdateBookOptions struct {
	Columns []string
}

func (svc *Service) RetrieveBookByID(ctx context.Context, id int) (*models.SeriesBook, error) {
	book := &models.SeriesBook{}
	err := svc.db.
		NewSelect().
		Model(book).
		Where("sb.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}
	return book, nil
}

// RetrieveBookByTitle looks a book up within a series by normalized title.
func (svc *Service) RetrieveBookByTitle(ctx context.Context, seriesID int, title string) (*models.SeriesBook, error) {
	book := &models.SeriesBook{}
	err := svc.db.
		NewSelect().
		Model(book).
		Where("sb.series_id = ? AND sb.normalized_title = ?", seriesID, textmatch.NormalizeTitle(title)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Book")
		}
		return nil, errors.WithStack(err)
	}
	return book, nil
}

// ListBooks returns books ordered by position, unpositioned last, title as
// the tiebreak.
func (svc *Service) ListBooks(ctx context.Context, opts ListBooksOptions) ([]*models.SeriesBook, error) {
	var books []*models.SeriesBook

	q := svc.db.
		NewSelect().
		Model(&books).
		OrderExpr("COALESCE(sb.position, ?) ASC, sb.normalized_title ASC", float64(models.UnsetPositionSentinel))

	if opts.SeriesID != nil {
		q = q.Where("sb.series_id = ?", *opts.SeriesID)
	}
	if opts.MissingDescription {
		q = q.Where("(sb.description IS NULL OR sb.description = '')")
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return books, nil
}

// CountSeriesMissingDescription counts series still needing enrichment.
func (svc *Service) CountSeriesMissingDescription(ctx context.Context) (int, error) {
	count, err := svc.db.
		NewSelect().
		Model((*models.Series)(nil)).
		Where("(s.description IS NULL OR s.description = '')").
		Count(ctx)
	return count, errors.WithStack(err)
}

// CountBooksMissingDescription counts books still needing enrichment.
func (svc *Service) CountBooksMissingDescription(ctx context.Context) (int, error) {
	count, err := svc.db.
		NewSelect().
		Model((*models.SeriesBook)(nil)).
		Where("(sb.description IS NULL OR sb.description = '')").
		Count(ctx)
	return count, errors.WithStack(err)
}

func (svc *Service) UpdateBook(ctx context.Context, book *models.SeriesBook, opts UpdateBookOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	book.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(book).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Book")
		}
		return errors.WithStack(err)
	}
	return nil
}

// UpsertBook folds one provider's account of a book into a series. Lookup
// is by normalized title within the series; a miss inserts. On merge,
// fields fill only when missing, format flags only ever flip to true, and
// confidence only ever ratchets up.
func (svc *Service) UpsertBook(ctx context.Context, seriesID int, src *models.SourceBook, provider string, confidence float64) (*models.SeriesBook, error) {
	if src == nil || src.Title == "" {
		return nil, errors.New("source book has no title")
	}

	book, err := svc.RetrieveBookByTitle(ctx, seriesID, src.Title)
	if err != nil {
		if !errors.Is(err, errcodes.NotFound("Book")) {
			return nil, err
		}

		now := time.Now()
		book = &models.SeriesBook{
			CreatedAt:       now,
			UpdatedAt:       now,
			SeriesID:        seriesID,
			Position:        src.Position,
			Title:           src.Title,
			NormalizedTitle: textmatch.NormalizeTitle(src.Title),
			Year:            src.Year,
			HasEbook:        src.HasEbook,
			HasAudiobook:    src.HasAudiobook,
			Confidence:      confidence,
		}
		if src.Author != "" {
			book.Author = &src.Author
		}
		if src.ISBN != "" {
			book.ISBN = &src.ISBN
		}
		if src.Description != "" {
			book.Description = &src.Description
		}
		setBookExternalID(book, provider, src.ExternalID)

		_, err := svc.db.
			NewInsert().
			Model(book).
			Returning("*").
			Exec(ctx)
		return book, errors.WithStack(err)
	}

	columns := mergeBookFields(book, src, provider, confidence)
	if err := svc.UpdateBook(ctx, book, UpdateBookOptions{Columns: columns}); err != nil {
		return nil, err
	}
	return book, nil
}

func mergeBookFields(book *models.SeriesBook, src *models.SourceBook, provider string, confidence float64) []string {
	columns := []string{}

	if book.Position == nil && src.Position != nil {
		book.Position = src.Position
		columns = append(columns, "position")
	}
	if book.Author == nil && src.Author != "" {
		book.Author = &src.Author
		columns = append(columns, "author")
	}
	if book.Year == nil && src.Year != nil {
		book.Year = src.Year
		columns = append(columns, "year")
	}
	if book.ISBN == nil && src.ISBN != "" {
		book.ISBN = &src.ISBN
		columns = append(columns, "isbn")
	}
	if (book.Description == nil || *book.Description == "") && src.Description != "" {
		book.Description = &src.Description
		columns = append(columns, "description")
	}
	if src.HasEbook && !book.HasEbook {
		book.HasEbook = true
		columns = append(columns, "has_ebook")
	}
	if src.HasAudiobook && !book.HasAudiobook {
		book.HasAudiobook = true
		columns = append(columns, "has_audiobook")
	}
	if confidence > book.Confidence {
		book.Confidence = confidence
		columns = append(columns, "confidence")
	}
	if src.ExternalID != "" {
		if column, ok := bookProviderIDColumn(provider); ok && bookExternalID(book, provider) == nil {
			setBookExternalID(book, provider, src.ExternalID)
			columns = append(columns, column)
		}
	}

	return columns
}

// DeleteBook removes a book row outright. Series books carry no history,
// so this is a hard delete.
func (svc *Service) DeleteBook(ctx context.Context, bookID int) error {
	_, err := svc.db.
		NewDelete().
		Model((*models.SeriesBook)(nil)).
		Where("id = ?", bookID).
		Exec(ctx)
	return errors.WithStack(err)
}

// MoveBook reparents a book to another series and refreshes both series'
// book counts in one transaction.
func (svc *Service) MoveBook(ctx context.Context, bookID, toSeriesID int) error {
	book, err := svc.RetrieveBookByID(ctx, bookID)
	if err != nil {
		return err
	}
	if book.SeriesID == toSeriesID {
		return nil
	}
	fromSeriesID := book.SeriesID

	if _, err := svc.RetrieveSeriesByID(ctx, toSeriesID); err != nil {
		return err
	}

	return svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model((*models.SeriesBook)(nil)).
			Set("series_id = ?", toSeriesID).
			Set("updated_at = ?", time.Now()).
			Where("id = ?", bookID).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		for _, seriesID := range []int{fromSeriesID, toSeriesID} {
			_, err = tx.NewUpdate().
				Model((*models.Series)(nil)).
				Set("book_count = (SELECT COUNT(*) FROM series_books WHERE series_id = ?)", seriesID).
				Set("updated_at = ?", time.Now()).
				Where("id = ?", seriesID).
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	})
}

func bookExternalID(book *models.SeriesBook, provider string) *string {
	switch provider {
	case models.ProviderISFDB:
		return book.ISFDBID
	case models.ProviderOpenLibrary:
		return book.OpenLibraryID
	case models.ProviderGoogleBooks:
		return book.GoogleBooksID
	}
	return nil
}

func setBookExternalID(book *models.SeriesBook, provider, id string) {
	if id == "" {
		return
	}
	switch provider {
	case models.ProviderISFDB:
		book.ISFDBID = &id
	case models.ProviderOpenLibrary:
		book.OpenLibraryID = &id
	case models.ProviderGoogleBooks:
		book.GoogleBooksID = &id
	}
}

func bookProviderIDColumn(provider string) (string, bool) {
	switch provider {
	case models.ProviderISFDB:
		return "isfdb_id", true
	case models.ProviderOpenLibrary:
		return "open_library_id", true
	case models.ProviderGoogleBooks:
		return "google_books_id", true
	}
	return "", false
}
