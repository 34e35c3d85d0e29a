// Package quota tracks per-provider daily usage against configured
// ceilings. Reset is implicit: a new UTC date has no row yet, so usage
// starts at zero.
package quota

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/NachosNcheeze/nachoseries-sub000/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

const pruneAfter = 7 * 24 * time.Hour

type Service struct {
	db       *bun.DB
	ceilings map[string]int

	now func() time.Time
}

// NewService builds a ledger over the given ceilings (provider -> daily
// ceiling; zero or absent means unlimited).
func NewService(db *bun.DB, ceilings map[string]int) *Service {
	return &Service{
		db:       db,
		ceilings: ceilings,
		now:      time.Now,
	}
}

// today is recomputed per call: the process may stay alive past midnight.
func (svc *Service) today() string {
	return svc.now().UTC().Format("2006-01-02")
}

// Ceiling returns the configured daily ceiling for a provider, zero when
// unlimited.
func (svc *Service) Ceiling(provider string) int {
	return svc.ceilings[provider]
}

// Limited reports whether the provider has a daily ceiling at all.
func (svc *Service) Limited(provider string) bool {
	return svc.ceilings[provider] > 0
}

// Use is an atomic check-then-increment: it adds n to today's counter and
// returns true, or returns false with no mutation when the remaining quota
// is insufficient. Atomicity comes from the single conditional UPDATE;
// sqlite serializes writers, so two concurrent callers cannot both pass
// the check and jointly overshoot the ceiling.
func (svc *Service) Use(ctx context.Context, provider string, n int) (bool, error) {
	ceiling := svc.ceilings[provider]
	if ceiling <= 0 {
		return true, nil
	}

	today := svc.today()
	nowTS := svc.now()

	_, err := svc.db.NewInsert().
		Model(&models.QuotaUsage{
			Provider:  provider,
			Date:      today,
			Used:      0,
			CreatedAt: nowTS,
			UpdatedAt: nowTS,
		}).
		On("CONFLICT (provider, date) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}

	res, err := svc.db.NewUpdate().
		Model((*models.QuotaUsage)(nil)).
		Set("used = used + ?", n).
		Set("updated_at = ?", nowTS).
		Where("provider = ?", provider).
		Where("date = ?", today).
		Where("used + ? <= ?", n, ceiling).
		Exec(ctx)
	if err != nil {
		return false, errors.WithStack(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.WithStack(err)
	}
	return affected == 1, nil
}

// Remaining returns how many calls are left today. Unlimited providers
// report math.MaxInt.
func (svc *Service) Remaining(ctx context.Context, provider string) (int, error) {
	ceiling := svc.ceilings[provider]
	if ceiling <= 0 {
		return math.MaxInt, nil
	}

	used, err := svc.usedToday(ctx, provider)
	if err != nil {
		return 0, err
	}
	remaining := ceiling - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Exhausted reports whether the provider has no quota left today.
func (svc *Service) Exhausted(ctx context.Context, provider string) (bool, error) {
	remaining, err := svc.Remaining(ctx, provider)
	if err != nil {
		return false, err
	}
	return remaining == 0, nil
}

// UsedToday returns today's raw usage counter for the status API.
func (svc *Service) UsedToday(ctx context.Context, provider string) (int, error) {
	return svc.usedToday(ctx, provider)
}

func (svc *Service) usedToday(ctx context.Context, provider string) (int, error) {
	var record models.QuotaUsage
	err := svc.db.NewSelect().
		Model(&record).
		Where("provider = ?", provider).
		Where("date = ?", svc.today()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, errors.WithStack(err)
	}
	return record.Used, nil
}

// Prune deletes usage rows older than seven days.
func (svc *Service) Prune(ctx context.Context) (int, error) {
	cutoff := svc.now().UTC().Add(-pruneAfter).Format("2006-01-02")
	res, err := svc.db.NewDelete().
		Model((*models.QuotaUsage)(nil)).
		Where("date < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// NextReset returns the next UTC midnight, when every daily counter
// implicitly resets.
func (svc *Service) NextReset() time.Time {
	now := svc.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
}
