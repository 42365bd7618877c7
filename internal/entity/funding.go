package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundingRate is one observation of the periodic cost (positive) or
// credit (negative) applied to a leveraged exposure position.
type FundingRate struct {
	Rate       decimal.Decimal
	ObservedAt time.Time
}

// FundingHistory is a bounded ring of funding observations, newest last.
type FundingHistory struct {
	rates []FundingRate
	cap   int
}

func NewFundingHistory(capacity int) *FundingHistory {
	if capacity < 1 {
		capacity = 1
	}
	return &FundingHistory{cap: capacity}
}

// Record appends an observation, evicting the oldest at capacity.
func (h *FundingHistory) Record(rate decimal.Decimal, at time.Time) {
	h.rates = append(h.rates, FundingRate{Rate: rate, ObservedAt: at})
	if len(h.rates) > h.cap {
		h.rates = h.rates[len(h.rates)-h.cap:]
	}
}

// Rates returns the observations oldest first.
func (h *FundingHistory) Rates() []decimal.Decimal {
	out := make([]decimal.Decimal, len(h.rates))
	for i, r := range h.rates {
		out[i] = r.Rate
	}
	return out
}

// Latest returns the newest observation, or zero when empty.
func (h *FundingHistory) Latest() decimal.Decimal {
	if len(h.rates) == 0 {
		return decimal.Zero
	}
	return h.rates[len(h.rates)-1].Rate
}

func (h *FundingHistory) Len() int {
	return len(h.rates)
}
