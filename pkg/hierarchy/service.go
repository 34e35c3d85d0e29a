// Package hierarchy repairs series structure against a canonical provider.
// Aggregating providers flatten a parent plus its sub-series into one
// undifferentiated book list; the reconciler splits those back apart using
// the canonical provider's declared structure.
package hierarchy

import (
	"context"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/errcodes"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/models"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/series"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/textmatch"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// misflattenSlack is how far a local book count may exceed the canonical
// count before a series is flagged as misflattened.
const misflattenSlack = 2

// CanonicalClient is the authoritative structural source. It must resolve
// series both by name and by its own identifier, since sub-series are
// declared by identifier.
type CanonicalClient interface {
	Name() string
	FetchSeries(ctx context.Context, name string) (*providers.FetchResult, error)
	FetchSeriesByExternalID(ctx context.Context, externalID string) (*providers.FetchResult, error)
}

type ReconcileOptions struct {
	// DryRun collects the moves that would happen without writing anything.
	DryRun bool
	// Genre fills in the genre on the parent and any touched sub-series
	// that don't have one yet.
	Genre string
}

// BookMove is one planned or applied relocation of a book into a
// sub-series.
type BookMove struct {
	BookID       int    `json:"book_id"`
	Title        string `json:"title"`
	FromSeriesID int    `json:"from_series_id"`
	// ToSeriesID is zero in a dry run when the target sub-series doesn't
	// exist locally yet.
	ToSeriesID    int    `json:"to_series_id"`
	SubSeriesName string `json:"sub_series_name"`
}

type ReconcileResult struct {
	ParentID  int        `json:"parent_id"`
	SubSeries []int      `json:"sub_series"`
	Moves     []BookMove `json:"moves"`
}

// MisflattenedSeries flags a local series holding more books than the
// canonical provider says it should, with a declared parent upstream.
type MisflattenedSeries struct {
	SeriesID       int    `json:"series_id"`
	Name           string `json:"name"`
	LocalCount     int    `json:"local_count"`
	CanonicalCount int    `json:"canonical_count"`
}

type Service struct {
	seriesService *series.Service
	canonical     CanonicalClient
}

func NewService(seriesService *series.Service, canonical CanonicalClient) *Service {
	return &Service{
		seriesService: seriesService,
		canonical:     canonical,
	}
}

// Reconcile splits a flattened parent series using the canonical
// provider's declared sub-series. Books are moved only out of a restricted
// candidate set: series already linked to this parent, series matching a
// declared sibling's canonical identifier, and the parent itself. A wider
// search would move identically titled books between unrelated series.
func (svc *Service) Reconcile(ctx context.Context, parentID int, opts ReconcileOptions) (*ReconcileResult, error) {
	log := logger.FromContext(ctx)

	parent, err := svc.seriesService.RetrieveSeriesByID(ctx, parentID)
	if err != nil {
		return nil, err
	}

	canonical, err := svc.fetchCanonical(ctx, parent)
	if err != nil {
		return nil, err
	}
	if canonical == nil || canonical.Series == nil {
		return nil, errcodes.NotFound("Canonical series")
	}

	if !opts.DryRun && parent.ExternalID(svc.canonical.Name()) == nil && canonical.Series.ExternalID != "" {
		parent.SetExternalID(svc.canonical.Name(), canonical.Series.ExternalID)
		if column, ok := models.ProviderIDColumn(svc.canonical.Name()); ok {
			err = svc.seriesService.UpdateSeries(ctx, parent, series.UpdateSeriesOptions{Columns: []string{column}})
			if err != nil {
				return nil, err
			}
		}
	}

	if !opts.DryRun {
		if err := svc.fillGenre(ctx, parent, opts.Genre); err != nil {
			return nil, err
		}
	}

	candidates, err := svc.candidateSet(ctx, parent, canonical.Series.SubSeries)
	if err != nil {
		return nil, err
	}

	result := &ReconcileResult{ParentID: parentID, Moves: []BookMove{}}

	for _, ref := range canonical.Series.SubSeries {
		sub, err := svc.findOrCreateSubSeries(ctx, parent, ref, opts)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			result.SubSeries = append(result.SubSeries, sub.ID)
		}

		canonicalSub, err := svc.canonical.FetchSeriesByExternalID(ctx, ref.ExternalID)
		if err != nil {
			log.Err(err).Warn("canonical sub-series fetch failed", logger.Data{"external_id": ref.ExternalID})
			continue
		}
		if canonicalSub == nil || canonicalSub.Series == nil {
			continue
		}

		moves, err := svc.moveMatchingBooks(ctx, candidates, sub, ref.Name, canonicalSub.Series.Books, opts.DryRun)
		if err != nil {
			return nil, err
		}
		result.Moves = append(result.Moves, moves...)
	}

	if !opts.DryRun {
		if err := svc.seriesService.RecountBooks(ctx, parentID); err != nil {
			return nil, err
		}
	}

	log.Info("hierarchy reconciled", logger.Data{
		"parent_id":  parentID,
		"sub_series": len(result.SubSeries),
		"moves":      len(result.Moves),
		"dry_run":    opts.DryRun,
	})

	return result, nil
}

func (svc *Service) fetchCanonical(ctx context.Context, parent *models.Series) (*providers.FetchResult, error) {
	if id := parent.ExternalID(svc.canonical.Name()); id != nil {
		return svc.canonical.FetchSeriesByExternalID(ctx, *id)
	}
	return svc.canonical.FetchSeries(ctx, parent.Name)
}

// candidateSet gathers the only series books may be moved out of.
func (svc *Service) candidateSet(ctx context.Context, parent *models.Series, refs []*models.SourceSeriesRef) (map[int]*models.Series, error) {
	candidates := map[int]*models.Series{parent.ID: parent}

	linked, err := svc.seriesService.ListSeries(ctx, series.ListSeriesOptions{ParentSeriesID: &parent.ID})
	if err != nil {
		return nil, err
	}
	for _, s := range linked {
		candidates[s.ID] = s
	}

	provider := svc.canonical.Name()
	for _, ref := range refs {
		if ref.ExternalID == "" {
			continue
		}
		sibling, err := svc.seriesService.RetrieveSeries(ctx, series.RetrieveSeriesOptions{
			Provider:   &provider,
			ExternalID: &ref.ExternalID,
		})
		if err != nil {
			if errors.Is(err, errcodes.NotFound("Series")) {
				continue
			}
			return nil, err
		}
		candidates[sibling.ID] = sibling
	}

	return candidates, nil
}

func (svc *Service) findOrCreateSubSeries(ctx context.Context, parent *models.Series, ref *models.SourceSeriesRef, opts ReconcileOptions) (*models.Series, error) {
	provider := svc.canonical.Name()

	sub, err := svc.seriesService.RetrieveSeries(ctx, series.RetrieveSeriesOptions{
		Provider:   &provider,
		ExternalID: &ref.ExternalID,
	})
	if err != nil && errors.Is(err, errcodes.NotFound("Series")) {
		normalized := textmatch.Normalize(ref.Name)
		sub, err = svc.seriesService.RetrieveSeries(ctx, series.RetrieveSeriesOptions{NormalizedName: &normalized})
	}
	if err != nil {
		if !errors.Is(err, errcodes.NotFound("Series")) {
			return nil, err
		}
		if opts.DryRun {
			return nil, nil
		}
		sub = &models.Series{
			Name:           ref.Name,
			ParentSeriesID: &parent.ID,
		}
		if opts.Genre != "" {
			genre := opts.Genre
			sub.Genre = &genre
		}
		sub.SetExternalID(provider, ref.ExternalID)
		if err := svc.seriesService.CreateSeries(ctx, sub); err != nil {
			return nil, err
		}
		return sub, nil
	}

	if !opts.DryRun {
		if sub.ParentSeriesID == nil && sub.ID != parent.ID {
			if err := svc.seriesService.LinkParent(ctx, sub.ID, parent.ID); err != nil {
				return nil, err
			}
			sub.ParentSeriesID = &parent.ID
		}
		if err := svc.fillGenre(ctx, sub, opts.Genre); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

// fillGenre sets the genre only when the series has none.
func (svc *Service) fillGenre(ctx context.Context, s *models.Series, genre string) error {
	if genre == "" || s.Genre != nil {
		return nil
	}
	s.Genre = &genre
	return svc.seriesService.UpdateSeries(ctx, s, series.UpdateSeriesOptions{Columns: []string{"genre"}})
}

func (svc *Service) moveMatchingBooks(ctx context.Context, candidates map[int]*models.Series, sub *models.Series, subName string, canonicalBooks []*models.SourceBook, dryRun bool) ([]BookMove, error) {
	moves := []BookMove{}

	for id := range candidates {
		if sub != nil && id == sub.ID {
			continue
		}
		candidateID := id
		books, err := svc.seriesService.ListBooks(ctx, series.ListBooksOptions{SeriesID: &candidateID})
		if err != nil {
			return nil, err
		}

		for _, book := range books {
			if !matchesCanonicalBook(book, canonicalBooks) {
				continue
			}

			move := BookMove{
				BookID:        book.ID,
				Title:         book.Title,
				FromSeriesID:  candidateID,
				SubSeriesName: subName,
			}
			if sub != nil {
				move.ToSeriesID = sub.ID
			}
			if !dryRun && sub != nil {
				if err := svc.seriesService.MoveBook(ctx, book.ID, sub.ID); err != nil {
					return nil, err
				}
			}
			moves = append(moves, move)
		}
	}

	return moves, nil
}

// matchesCanonicalBook matches on normalized title; when both sides carry
// a position it must agree too.
func matchesCanonicalBook(book *models.SeriesBook, canonicalBooks []*models.SourceBook) bool {
	for _, cb := range canonicalBooks {
		if textmatch.NormalizeTitle(cb.Title) != book.NormalizedTitle {
			continue
		}
		if cb.Position != nil && book.Position != nil && *cb.Position != *book.Position {
			continue
		}
		return true
	}
	return false
}

