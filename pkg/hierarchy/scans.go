package hierarchy

import (
	"context"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/errcodes"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/models"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/series"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/textmatch"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

type FindMisflattenedOptions struct {
	Limit *int
}

// FindMisflattened scans for series holding noticeably more books than
// the canonical provider's count while the canonical record declares a
// parent. Those are flattened aggregates and candidates for Reconcile.
func (svc *Service) FindMisflattened(ctx context.Context, opts FindMisflattenedOptions) ([]MisflattenedSeries, error) {
	log := logger.FromContext(ctx)

	all, err := svc.seriesService.ListSeries(ctx, series.ListSeriesOptions{Limit: opts.Limit})
	if err != nil {
		return nil, err
	}

	flagged := []MisflattenedSeries{}
	for _, s := range all {
		if s.BookCount == 0 || s.ExternalID(svc.canonical.Name()) == nil {
			continue
		}

		canonical, err := svc.fetchCanonical(ctx, s)
		if err != nil {
			log.Err(err).Warn("canonical fetch failed during misflatten scan", logger.Data{"series_id": s.ID})
			continue
		}
		if canonical == nil || canonical.Series == nil || canonical.Series.Parent == nil {
			continue
		}

		canonicalCount := len(canonical.Series.Books)
		if s.BookCount > canonicalCount+misflattenSlack {
			flagged = append(flagged, MisflattenedSeries{
				SeriesID:       s.ID,
				Name:           s.Name,
				LocalCount:     s.BookCount,
				CanonicalCount: canonicalCount,
			})
		}
	}

	return flagged, nil
}

// DedupParents removes from a parent any book that now exists, by
// normalized title, in one of its children. Re-running after all
// duplicates are gone is a no-op.
func (svc *Service) DedupParents(ctx context.Context, parentID int) (int, error) {
	if _, err := svc.seriesService.RetrieveSeriesByID(ctx, parentID); err != nil {
		return 0, err
	}

	children, err := svc.seriesService.ListSeries(ctx, series.ListSeriesOptions{ParentSeriesID: &parentID})
	if err != nil {
		return 0, err
	}
	if len(children) == 0 {
		return 0, nil
	}

	childTitles := map[string]bool{}
	for _, child := range children {
		childID := child.ID
		books, err := svc.seriesService.ListBooks(ctx, series.ListBooksOptions{SeriesID: &childID})
		if err != nil {
			return 0, err
		}
		for _, book := range books {
			childTitles[book.NormalizedTitle] = true
		}
	}

	parentBooks, err := svc.seriesService.ListBooks(ctx, series.ListBooksOptions{SeriesID: &parentID})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, book := range parentBooks {
		if !childTitles[book.NormalizedTitle] {
			continue
		}
		if err := svc.seriesService.DeleteBook(ctx, book.ID); err != nil {
			return removed, err
		}
		removed++
	}

	if removed > 0 {
		if err := svc.seriesService.RecountBooks(ctx, parentID); err != nil {
			return removed, err
		}
	}

	return removed, nil
}

// LinkSubSeries back-fills the parent reference for a series whose
// canonical record declares a parent that already exists locally. It
// reports whether a link was written.
func (svc *Service) LinkSubSeries(ctx context.Context, seriesID int) (bool, error) {
	s, err := svc.seriesService.RetrieveSeriesByID(ctx, seriesID)
	if err != nil {
		return false, err
	}
	if s.ParentSeriesID != nil {
		return false, nil
	}

	canonical, err := svc.fetchCanonical(ctx, s)
	if err != nil {
		return false, err
	}
	if canonical == nil || canonical.Series == nil || canonical.Series.Parent == nil {
		return false, nil
	}

	parent, err := svc.findLocalParent(ctx, canonical.Series.Parent.ExternalID, canonical.Series.Parent.Name)
	if err != nil {
		if errors.Is(err, errcodes.NotFound("Series")) {
			return false, nil
		}
		return false, err
	}
	if parent.ID == s.ID {
		return false, nil
	}

	if err := svc.seriesService.LinkParent(ctx, s.ID, parent.ID); err != nil {
		return false, err
	}
	return true, nil
}

func (svc *Service) findLocalParent(ctx context.Context, externalID, name string) (*models.Series, error) {
	provider := svc.canonical.Name()
	if externalID != "" {
		parent, err := svc.seriesService.RetrieveSeries(ctx, series.RetrieveSeriesOptions{
			Provider:   &provider,
			ExternalID: &externalID,
		})
		if err == nil {
			return parent, nil
		}
		if !errors.Is(err, errcodes.NotFound("Series")) {
			return nil, err
		}
	}

	normalized := textmatch.Normalize(name)
	return svc.seriesService.RetrieveSeries(ctx, series.RetrieveSeriesOptions{NormalizedName: &normalized})
}
