// Package enrichment runs the autonomous loop that fills missing series
// and book descriptions from the provider waterfall. The loop keeps no
// required in-memory progress: persisted missing-description counts plus
// breaker and quota state are the source of truth, so the process can be
// killed and restarted at any point.
package enrichment

import (
	"context"
	"time"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/breaker"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/config"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/models"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/quota"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/retry"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/series"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/synopsis"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/textmatch"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// zeroYieldLimit is how many consecutive zero-yield batches declare the
// remainder unenrichable and end a phase.
const zeroYieldLimit = 3

type Options struct {
	// Waterfall is the provider order tried per item: a quota-free
	// provider first, then a quota-capped one, then a fallback.
	Waterfall  []string
	Classifier *synopsis.Classifier
	Retry      retry.Options
}

func (o Options) withDefaults() Options {
	if len(o.Waterfall) == 0 {
		o.Waterfall = []string{
			models.ProviderOpenLibrary,
			models.ProviderGoogleBooks,
			models.ProviderISFDB,
		}
	}
	if o.Classifier == nil {
		o.Classifier = synopsis.New(synopsis.Options{})
	}
	if o.Retry.Retryable == nil {
		// Retry infrastructure failures only; a breaker refusal or a data
		// miss is final for this attempt.
		o.Retry.Retryable = providers.IsInfra
	}
	return o
}

type Stats struct {
	SeriesEnriched int `json:"series_enriched"`
	BooksEnriched  int `json:"books_enriched"`
}

type Scheduler struct {
	config        *config.Config
	log           logger.Logger
	seriesService *series.Service
	quotaService  *quota.Service
	registry      *providers.Registry
	classifier    *synopsis.Classifier
	retryOpts     retry.Options

	waterfall []string
	capped    string // first quota-capped provider in the waterfall

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	shutdown chan struct{}
	done     chan struct{}
}

func New(cfg *config.Config, seriesService *series.Service, quotaService *quota.Service, registry *providers.Registry, opts Options) *Scheduler {
	opts = opts.withDefaults()

	s := &Scheduler{
		config:        cfg,
		log:           logger.New(),
		seriesService: seriesService,
		quotaService:  quotaService,
		registry:      registry,
		classifier:    opts.Classifier,
		retryOpts:     opts.Retry,
		waterfall:     opts.Waterfall,

		sleep: sleepContext,
		now:   time.Now,

		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	for _, provider := range s.waterfall {
		if quotaService.Limited(provider) {
			s.capped = provider
			break
		}
	}

	return s
}

func (s *Scheduler) Start() {
	go s.run()
}

func (s *Scheduler) Shutdown() {
	close(s.shutdown)
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-s.shutdown:
			cancel()
		case <-stopped:
		}
	}()

	id, err := uuid.NewRandom()
	if err != nil {
		s.log.Err(err).Error("new uuid error")
		return
	}
	log := s.log.ID(id.String())
	ctx = log.WithContext(ctx)

	stats, err := s.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Err(err).Error("enrichment run error")
		return
	}
	log.Info("enrichment run finished", logger.Data{
		"series_enriched": stats.SeriesEnriched,
		"books_enriched":  stats.BooksEnriched,
	})
}

// Run executes one full enrichment pass: the series phase, then the book
// phase. It returns the counts accumulated so far even on error.
func (s *Scheduler) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	n, err := s.seriesPhase(ctx)
	stats.SeriesEnriched = n
	if err != nil {
		return stats, err
	}

	n, err = s.booksPhase(ctx)
	stats.BooksEnriched = n
	return stats, err
}

func (s *Scheduler) seriesPhase(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)
	total := 0
	zeroBatches := 0

	for {
		remaining, err := s.seriesService.CountSeriesMissingDescription(ctx)
		if err != nil {
			return total, err
		}
		if remaining == 0 {
			return total, nil
		}

		if err := s.waitForCapacity(ctx); err != nil {
			return total, err
		}

		batch, err := s.seriesService.ListSeries(ctx, series.ListSeriesOptions{
			MissingDescription: true,
			Limit:              &s.config.SeriesBatchSize,
		})
		if err != nil {
			return total, err
		}

		enriched := 0
		for _, item := range batch {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			ok, err := s.enrichSeries(ctx, item)
			if err != nil {
				log.Err(err).Warn("series enrichment failed", logger.Data{"series_id": item.ID})
				continue
			}
			if ok {
				enriched++
			}
		}
		total += enriched

		if enriched == 0 {
			zeroBatches++
			if zeroBatches >= zeroYieldLimit {
				log.Info("series remainder unenrichable", logger.Data{"remaining": remaining})
				return total, nil
			}
		} else {
			zeroBatches = 0
		}
	}
}

func (s *Scheduler) booksPhase(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)
	total := 0
	zeroBatches := 0

	for {
		remaining, err := s.seriesService.CountBooksMissingDescription(ctx)
		if err != nil {
			return total, err
		}
		if remaining == 0 {
			return total, nil
		}

		if err := s.waitForCapacity(ctx); err != nil {
			return total, err
		}

		batch, err := s.seriesService.ListBooks(ctx, series.ListBooksOptions{
			MissingDescription: true,
			Limit:              &s.config.BookBatchSize,
		})
		if err != nil {
			return total, err
		}

		enriched := 0
		for _, book := range batch {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			ok, err := s.enrichBook(ctx, book)
			if err != nil {
				log.Err(err).Warn("book enrichment failed", logger.Data{"book_id": book.ID})
				continue
			}
			if ok {
				enriched++
			}
		}
		total += enriched

		if enriched == 0 {
			zeroBatches++
			if zeroBatches >= zeroYieldLimit {
				log.Info("book remainder unenrichable", logger.Data{"remaining": remaining})
				return total, nil
			}
		} else {
			zeroBatches = 0
		}
	}
}

// enrichSeries walks the waterfall until a provider yields a description
// that classifies as series-level. A volume blurb is treated the same as
// no result.
func (s *Scheduler) enrichSeries(ctx context.Context, item *models.Series) (bool, error) {
	for _, provider := range s.waterfall {
		res, err := s.fetchFrom(ctx, provider, item.Name)
		if err != nil {
			if errors.Is(err, providers.ErrCircuitOpen) || errors.Is(err, providers.ErrQuotaExhausted) {
				continue
			}
			logger.FromContext(ctx).Err(err).Warn("provider fetch failed", logger.Data{
				"provider":  provider,
				"series_id": item.ID,
			})
			continue
		}
		if res == nil || res.Series == nil {
			continue
		}

		desc := res.Series.Description
		if desc == "" || !s.classifier.IsSeriesDescription(desc, item.Name) {
			continue
		}

		item.Description = &desc
		err = s.seriesService.UpdateSeries(ctx, item, series.UpdateSeriesOptions{Columns: []string{"description"}})
		if err != nil {
			return false, err
		}
		if len(res.Raw) > 0 {
			if err := s.seriesService.SaveProviderPayload(ctx, item.ID, provider, res.Raw); err != nil {
				return false, err
			}
		}
		return true, nil
	}
	return false, nil
}

// enrichBook looks the book's series up at each provider and takes the
// description of the matching book entry. Volume blurbs are fine here;
// the classifier guards series descriptions only.
func (s *Scheduler) enrichBook(ctx context.Context, book *models.SeriesBook) (bool, error) {
	parent, err := s.seriesService.RetrieveSeriesByID(ctx, book.SeriesID)
	if err != nil {
		return false, err
	}

	for _, provider := range s.waterfall {
		res, err := s.fetchFrom(ctx, provider, parent.Name)
		if err != nil {
			if errors.Is(err, providers.ErrCircuitOpen) || errors.Is(err, providers.ErrQuotaExhausted) {
				continue
			}
			logger.FromContext(ctx).Err(err).Warn("provider fetch failed", logger.Data{
				"provider": provider,
				"book_id":  book.ID,
			})
			continue
		}
		if res == nil || res.Series == nil {
			continue
		}

		desc := findBookDescription(res.Series, book.NormalizedTitle)
		if desc == "" {
			continue
		}

		book.Description = &desc
		err = s.seriesService.UpdateBook(ctx, book, series.UpdateBookOptions{Columns: []string{"description"}})
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// fetchFrom spends quota before calling: a refused Use means the provider
// is out for today, reported as ErrQuotaExhausted rather than attempted.
// An open breaker refuses first, before any quota is spent; otherwise a
// provider that is down would drain its ceiling on calls that never leave
// the process.
func (s *Scheduler) fetchFrom(ctx context.Context, provider, name string) (*providers.FetchResult, error) {
	if p, ok := s.registry.Get(provider); ok && p.Gate.Blocked() {
		return nil, errors.WithStack(providers.ErrCircuitOpen)
	}

	if s.quotaService.Limited(provider) {
		ok, err := s.quotaService.Use(ctx, provider, 1)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.WithStack(providers.ErrQuotaExhausted)
		}
	}

	var res *providers.FetchResult
	err := retry.Do(ctx, s.retryOpts, func() error {
		var err error
		res, err = s.registry.Fetch(ctx, provider, name)
		return err
	})
	return res, err
}

// waitForCapacity blocks before each batch while the primary provider's
// breaker is open: it sleeps exactly the remaining cooldown, or until the
// next UTC-midnight quota reset when the quota-capped provider is also
// exhausted. Only the scheduler's own progress blocks here.
func (s *Scheduler) waitForCapacity(ctx context.Context) error {
	log := logger.FromContext(ctx)
	primary := s.waterfall[0]

	for {
		p, ok := s.registry.Get(primary)
		if !ok {
			return nil
		}
		b := p.Gate.Breaker()
		if b.Snapshot().State != breaker.Open {
			return nil
		}
		remaining := b.RemainingCooldown()
		if remaining <= 0 {
			return nil
		}

		sleepFor := remaining
		reason := "breaker cooldown"
		if s.capped != "" {
			exhausted, err := s.quotaService.Exhausted(ctx, s.capped)
			if err != nil {
				return err
			}
			if exhausted {
				sleepFor = s.quotaService.NextReset().Sub(s.now())
				reason = "quota reset"
			}
		}

		log.Info("enrichment waiting", logger.Data{
			"reason":   reason,
			"provider": primary,
			"sleep":    sleepFor.String(),
		})
		if err := s.sleep(ctx, sleepFor); err != nil {
			return err
		}
	}
}

func findBookDescription(src *models.SourceSeries, normalizedTitle string) string {
	for _, book := range src.Books {
		if textmatch.NormalizeTitle(book.Title) == normalizedTitle && book.Description != "" {
			return book.Description
		}
	}
	return ""
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
