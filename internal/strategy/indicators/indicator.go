package indicators

import (
	"context"
	"fmt"

	"tradeGate/internal/domain"
)

// Indicator represents a technical indicator that can be calculated from price data
type Indicator interface {
	// Calculate computes the indicator value for the given price data
	Calculate(ctx context.Context, klines []*domain.Kline) (float64, error)

	// RequiredDataPoints returns the minimum number of klines needed for calculation
	RequiredDataPoints() int

	// Name returns the name of the indicator
	Name() string
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the minimum number of klines needed for calculation
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}

func closes(klines []*domain.Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Close
	}
	return out
}

// emaSeries returns the EMA of values seeded with the SMA of the first period values.
// The result has len(values)-period+1 entries; entry 0 aligns with values[period-1].
func emaSeries(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("invalid EMA period %d", period)
	}
	if len(values) < period {
		return nil, fmt.Errorf("not enough data (%d) to calculate EMA for period %d", len(values), period)
	}
	out := make([]float64, 0, len(values)-period+1)
	var sum float64
	for _, v := range values[:period] {
		sum += v
	}
	ema := sum / float64(period)
	out = append(out, ema)
	multiplier := 2.0 / float64(period+1)
	for _, v := range values[period:] {
		ema = (v-ema)*multiplier + ema
		out = append(out, ema)
	}
	return out, nil
}
