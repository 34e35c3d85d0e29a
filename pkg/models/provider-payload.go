package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ProviderPayload is the audit envelope for a raw provider response. It is
// explicitly typed (provider tag + serialized bytes + fetch timestamp) so
// later migrations can validate shape without dynamic access.
type ProviderPayload struct {
	bun.BaseModel `bun:"table:provider_payloads,alias:pp"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	SeriesID  int       `bun:",nullzero" json:"series_id"`
	Provider  string    `bun:",nullzero" json:"provider"`
	Payload   []byte    `json:"-"`
	FetchedAt time.Time `json:"fetched_at"`
}
