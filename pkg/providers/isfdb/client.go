// Package isfdb reads series hierarchies out of a locally loaded ISFDB
// SQLite database. It is the canonical provider: it is the only source
// that models parent and sub-series relationships directly.
package isfdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/models"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// includedTitleTypes are the ISFDB title types that count as books of a
// series. Essays, reviews, and interior art rows share the titles table.
var includedTitleTypes = []string{"NOVEL", "NOVELLA", "SHORTFICTION"}

type Client struct {
	db *bun.DB
}

func New(db *bun.DB) *Client {
	return &Client{db: db}
}

// Open connects to a local ISFDB database file.
func Open(path string) (*Client, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := db.Exec("SELECT 1"); err != nil {
		return nil, errors.Wrap(err, "isfdb database unreachable")
	}

	return New(db), nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Name() string {
	return models.ProviderISFDB
}

type seriesRow struct {
	bun.BaseModel `bun:"table:series,alias:s"`

	ID             int           `bun:"series_id"`
	Title          string        `bun:"series_title"`
	Parent         sql.NullInt64 `bun:"series_parent"`
	ParentPosition sql.NullInt64 `bun:"series_parent_position"`
}

type titleRow struct {
	bun.BaseModel `bun:"table:titles,alias:t"`

	ID        int            `bun:"title_id"`
	Title     string         `bun:"title_title"`
	SeriesNum sql.NullString `bun:"title_seriesnum"`
	Copyright sql.NullString `bun:"title_copyright"`
}

type pubRow struct {
	bun.BaseModel `bun:"table:pubs,alias:p"`

	ISBN  sql.NullString `bun:"pub_isbn"`
	Ptype sql.NullString `bun:"pub_ptype"`
}

func (c *Client) FetchSeries(ctx context.Context, name string) (*providers.FetchResult, error) {
	row := new(seriesRow)
	err := c.db.NewSelect().
		Model(row).
		Where("LOWER(s.series_title) = LOWER(?)", name).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return &providers.FetchResult{}, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return c.assemble(ctx, row)
}

func (c *Client) FetchSeriesByExternalID(ctx context.Context, externalID string) (*providers.FetchResult, error) {
	id, err := strconv.Atoi(externalID)
	if err != nil {
		return nil, errors.Errorf("isfdb: malformed series id %q", externalID)
	}

	row := new(seriesRow)
	err = c.db.NewSelect().
		Model(row).
		Where("s.series_id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return &providers.FetchResult{}, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return c.assemble(ctx, row)
}

func (c *Client) assemble(ctx context.Context, row *seriesRow) (*providers.FetchResult, error) {
	src := &models.SourceSeries{
		ExternalID: strconv.Itoa(row.ID),
		Name:       row.Title,
	}

	books, err := c.fetchBooks(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	src.Books = books

	// The series author is the most common book author. ISFDB has no
	// series-level author column.
	authorCounts := map[string]int{}
	for _, book := range books {
		if book.Author != "" {
			authorCounts[book.Author]++
		}
		if book.Year != nil {
			if src.FirstYear == nil || *book.Year < *src.FirstYear {
				year := *book.Year
				src.FirstYear = &year
			}
			if src.LastYear == nil || *book.Year > *src.LastYear {
				year := *book.Year
				src.LastYear = &year
			}
		}
	}
	for author, count := range authorCounts {
		if src.Author == "" || count > authorCounts[src.Author] {
			src.Author = author
		}
	}

	if row.Parent.Valid && row.Parent.Int64 > 0 {
		parent, err := c.fetchRef(ctx, int(row.Parent.Int64))
		if err != nil {
			return nil, err
		}
		src.Parent = parent
	}

	subs, err := c.fetchSubSeries(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	src.SubSeries = subs

	raw, err := json.Marshal(src)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &providers.FetchResult{Series: src, Raw: raw}, nil
}

func (c *Client) fetchBooks(ctx context.Context, seriesID int) ([]*models.SourceBook, error) {
	var rows []titleRow
	err := c.db.NewSelect().
		Model(&rows).
		Where("t.series_id = ?", seriesID).
		Where("t.title_ttype IN (?)", bun.In(includedTitleTypes)).
		Where("(t.title_parent = 0 OR t.title_parent IS NULL)").
		Order("t.title_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	books := make([]*models.SourceBook, 0, len(rows))
	for i := range rows {
		book, err := c.buildBook(ctx, &rows[i])
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}

	models.SortSourceBooksByPosition(books)
	return books, nil
}

func (c *Client) buildBook(ctx context.Context, row *titleRow) (*models.SourceBook, error) {
	book := &models.SourceBook{
		ExternalID: strconv.Itoa(row.ID),
		Title:      row.Title,
	}

	if row.SeriesNum.Valid {
		if pos, err := strconv.ParseFloat(strings.TrimSpace(row.SeriesNum.String), 64); err == nil {
			book.Position = &pos
		}
	}
	if year := copyrightYear(row.Copyright); year > 0 {
		book.Year = &year
	}

	author, err := c.fetchAuthor(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	book.Author = author

	var pubs []pubRow
	err = c.db.NewSelect().
		Model(&pubs).
		Join("JOIN pub_content AS pc ON pc.pub_id = p.pub_id").
		Where("pc.title_id = ?", row.ID).
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	best := -1
	bestRank := -1
	for i, pub := range pubs {
		if pub.Ptype.String == "ebook" {
			book.HasEbook = true
		}
		rank := pubRank(&pubs[i])
		if rank > bestRank {
			best = i
			bestRank = rank
		}
	}
	if best >= 0 && pubs[best].ISBN.Valid {
		book.ISBN = strings.TrimSpace(pubs[best].ISBN.String)
	}

	return book, nil
}

func (c *Client) fetchAuthor(ctx context.Context, titleID int) (string, error) {
	var author string
	err := c.db.NewSelect().
		Table("canonical_author").
		ColumnExpr("a.author_canonical").
		Join("JOIN authors AS a ON a.author_id = canonical_author.author_id").
		Where("canonical_author.title_id = ?", titleID).
		Order("a.author_id ASC").
		Limit(1).
		Scan(ctx, &author)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.WithStack(err)
	}
	return author, nil
}

func (c *Client) fetchRef(ctx context.Context, seriesID int) (*models.SourceSeriesRef, error) {
	row := new(seriesRow)
	err := c.db.NewSelect().
		Model(row).
		Where("s.series_id = ?", seriesID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &models.SourceSeriesRef{
		ExternalID: strconv.Itoa(row.ID),
		Name:       row.Title,
	}, nil
}

func (c *Client) fetchSubSeries(ctx context.Context, seriesID int) ([]*models.SourceSeriesRef, error) {
	var rows []seriesRow
	err := c.db.NewSelect().
		Model(&rows).
		Where("s.series_parent = ?", seriesID).
		Order("s.series_parent_position ASC", "s.series_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	refs := make([]*models.SourceSeriesRef, 0, len(rows))
	for _, row := range rows {
		ref := &models.SourceSeriesRef{
			ExternalID: strconv.Itoa(row.ID),
			Name:       row.Title,
		}
		if row.ParentPosition.Valid {
			pos := int(row.ParentPosition.Int64)
			ref.Position = &pos
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// copyrightYear extracts the year from an ISFDB date like "1951-06-01".
// Unknown dates are stored as "0000-00-00".
func copyrightYear(copyright sql.NullString) int {
	if !copyright.Valid || len(copyright.String) < 4 {
		return 0
	}
	year, err := strconv.Atoi(copyright.String[:4])
	if err != nil || year <= 0 {
		return 0
	}
	return year
}

// pubRank orders a title's publications for ISBN selection. Print editions
// beat ebooks, and anything with an ISBN beats anything without.
func pubRank(pub *pubRow) int {
	rank := 0
	switch pub.Ptype.String {
	case "tp", "hc":
		rank = 2
	case "ebook":
		rank = 1
	}
	if pub.ISBN.Valid && strings.TrimSpace(pub.ISBN.String) != "" {
		rank += 10
	}
	return rank
}
