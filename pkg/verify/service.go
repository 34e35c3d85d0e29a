// Package verify cross-checks a stored series against two independent
// providers' accounts. A confident comparison merges the two accounts into
// the stored record and marks it verified; an ambiguous one is flagged for
// manual review instead of being written.
package verify

import (
	"context"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/config"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/matcher"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/models"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/providers"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/quota"
	"github.com/NachosNcheeze/nachoseries-sub000/pkg/series"
	"github.com/robinjoseph08/golib/logger"
)

type Service struct {
	matcher       *matcher.Matcher
	registry      *providers.Registry
	seriesService *series.Service
	quotaService  *quota.Service
	autoAccept    float64
}

func NewService(cfg *config.Config, seriesService *series.Service, quotaService *quota.Service, registry *providers.Registry) *Service {
	return &Service{
		matcher:       matcher.New(cfg),
		registry:      registry,
		seriesService: seriesService,
		quotaService:  quotaService,
		autoAccept:    cfg.AutoAcceptThreshold,
	}
}

// Outcome reports what a verification pass decided for one series.
type Outcome struct {
	SeriesID   int                       `json:"series_id"`
	Comparison *matcher.ComparisonResult `json:"comparison,omitempty"`
	// Missing names providers that had no account of the series.
	Missing []string `json:"missing,omitempty"`
	// NeedsReview is set when the confidence is ambiguous and at least
	// one discrepancy exists; nothing is written in that case.
	NeedsReview bool `json:"needs_review"`
	// Accepted is set when the merged account was persisted and the
	// series marked verified.
	Accepted bool `json:"accepted"`
}

// VerifySeries fetches the series from both providers and compares the two
// accounts. At or above the auto-accept threshold the accounts are merged
// (first provider preferred) and upserted, and the series is marked
// verified. In the ambiguous band with discrepancies the outcome is
// flagged for review. Below that, nothing happens.
func (svc *Service) VerifySeries(ctx context.Context, seriesID int, providerA, providerB string) (*Outcome, error) {
	log := logger.FromContext(ctx)

	stored, err := svc.seriesService.RetrieveSeriesByID(ctx, seriesID)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{SeriesID: seriesID}

	resultA, err := svc.fetch(ctx, providerA, stored.Name)
	if err != nil {
		return nil, err
	}
	resultB, err := svc.fetch(ctx, providerB, stored.Name)
	if err != nil {
		return nil, err
	}

	for _, result := range []*providers.FetchResult{resultA, resultB} {
		if len(result.Raw) > 0 {
			if err := svc.seriesService.SaveProviderPayload(ctx, seriesID, result.Provider, result.Raw); err != nil {
				return nil, err
			}
		}
		if result.Miss() {
			outcome.Missing = append(outcome.Missing, result.Provider)
		}
	}

	comparison := svc.matcher.Compare(resultA, resultB)
	if comparison == nil {
		return outcome, nil
	}
	outcome.Comparison = comparison
	outcome.NeedsReview = svc.matcher.NeedsVerification(comparison)

	if comparison.Confidence < svc.autoAccept {
		log.Info("verification inconclusive", logger.Data{
			"series_id":     seriesID,
			"confidence":    comparison.Confidence,
			"discrepancies": len(comparison.Discrepancies),
			"needs_review":  outcome.NeedsReview,
		})
		return outcome, nil
	}

	merged := svc.matcher.Merge(resultA.Series, resultB.Series)
	updated, err := svc.seriesService.UpsertFromSource(ctx, merged, providerA, comparison.Confidence)
	if err != nil {
		return nil, err
	}

	if !updated.Verified {
		updated.Verified = true
		err = svc.seriesService.UpdateSeries(ctx, updated, series.UpdateSeriesOptions{Columns: []string{"verified"}})
		if err != nil {
			return nil, err
		}
	}

	// The non-preferred provider's identifier is kept too so later lookups
	// resolve through either source.
	if resultB.Series.ExternalID != "" && updated.ExternalID(providerB) == nil {
		updated.SetExternalID(providerB, resultB.Series.ExternalID)
		if column, ok := models.ProviderIDColumn(providerB); ok {
			err = svc.seriesService.UpdateSeries(ctx, updated, series.UpdateSeriesOptions{Columns: []string{column}})
			if err != nil {
				return nil, err
			}
		}
	}

	outcome.Accepted = true
	log.Info("series verified", logger.Data{
		"series_id":  seriesID,
		"confidence": comparison.Confidence,
		"providers":  []string{providerA, providerB},
	})
	return outcome, nil
}

// fetch spends quota before calling a capped provider; a refusal surfaces
// as ErrQuotaExhausted without touching the provider. An open breaker
// refuses before the quota check so no unit is spent on a call the gate
// would reject anyway.
func (svc *Service) fetch(ctx context.Context, provider, name string) (*providers.FetchResult, error) {
	if p, ok := svc.registry.Get(provider); ok && p.Gate.Blocked() {
		return nil, providers.ErrCircuitOpen
	}

	if svc.quotaService.Limited(provider) {
		ok, err := svc.quotaService.Use(ctx, provider, 1)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, providers.ErrQuotaExhausted
		}
	}
	return svc.registry.Fetch(ctx, provider, name)
}
