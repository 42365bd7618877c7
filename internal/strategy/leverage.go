package strategy

import (
	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OptimizeLeverage recomputes the target leverage from the smoothed
// funding-rate history. The mapping is linear and monotone: average
// funding at or below zero pins leverage to the configured maximum,
// average funding at or above the funding ceiling pins it to the
// minimum. Unchanged funding history yields an unchanged result.
//
// The new target applies to future position sizing; the open position
// is not resized here.
func (s *ExposureStrategy) OptimizeLeverage() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.funding.Len() < s.cfg.FundingWindow {
		return s.leverage, nil
	}

	avg, err := smoothFunding(s.funding.Rates(), s.cfg.FundingWindow)
	if err != nil {
		return s.leverage, err
	}

	target := s.leverageFor(avg)
	if target != s.leverage {
		s.l.Info("leverage retargeted",
			zap.String("asset", s.asset.Symbol),
			zap.String("avg_funding", avg.String()),
			zap.Int64("from", s.leverage),
			zap.Int64("to", target))
		s.leverage = target
	}
	return s.leverage, nil
}

// leverageFor maps an average funding rate into [MinLeverage, MaxLeverage].
func (s *ExposureStrategy) leverageFor(avgFunding decimal.Decimal) int64 {
	if !avgFunding.IsPositive() {
		return s.cfg.MaxLeverage
	}
	if avgFunding.GreaterThanOrEqual(s.cfg.FundingCeiling) {
		return s.cfg.MinLeverage
	}

	span := decimal.NewFromInt(s.cfg.MaxLeverage - s.cfg.MinLeverage)
	cut := avgFunding.Mul(span).Div(s.cfg.FundingCeiling).Floor()
	return s.cfg.MaxLeverage - cut.IntPart()
}

// smoothFunding runs a simple moving average over the funding history
// and returns the latest smoothed value.
func smoothFunding(rates []decimal.Decimal, period int) (decimal.Decimal, error) {
	values := make([]float64, len(rates))
	for i, r := range rates {
		values[i], _ = r.Float64()
	}

	sma := trend.NewSmaWithPeriod[float64](period)
	smoothed := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))
	if len(smoothed) == 0 {
		return decimal.Zero, nil
	}
	return decimal.NewFromFloat(smoothed[len(smoothed)-1]), nil
}
