package profiles

import (
	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/types"
	"github.com/shopspring/decimal"
)

// Snapshot freezes the business-facing fields stored on an order at creation.
func Snapshot(p *models.Profile) types.CounterpartySnapshot {
	if p == nil {
		return types.CounterpartySnapshot{}
	}
	return types.CounterpartySnapshot{
		Handle:      p.Handle,
		CompanyName: p.CompanyName,
		City:        p.City,
		CountryCode: p.CountryCode,
		VATID:       p.VATID,
	}
}

// Rating is the live aggregate shown next to a counterparty.
type Rating struct {
	Average string `json:"average"`
	Count   int    `json:"count"`
}

// RatingOf averages the stored rating aggregate to one decimal place.
func RatingOf(p *models.Profile) Rating {
	if p == nil || p.RatingCount == 0 {
		return Rating{Average: "0.0"}
	}
	avg := decimal.NewFromInt(int64(p.RatingSum)).Div(decimal.NewFromInt(int64(p.RatingCount)))
	return Rating{Average: avg.StringFixed(1), Count: p.RatingCount}
}
