package models

import (
	"time"

	"github.com/uptrace/bun"
)

// QuotaUsage is one provider's usage counter for one UTC calendar date.
// A new date simply has no row yet, so usage implicitly resets at midnight.
type QuotaUsage struct {
	bun.BaseModel `bun:"table:quota_usage,alias:qu"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Provider string `bun:",nullzero" json:"provider"`
	Date     string `bun:",nullzero" json:"date"`
	Used     int    `json:"used"`
}
