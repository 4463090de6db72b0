package indicators

import (
	"context"
	"fmt"
	"math"

	"tradeGate/internal/domain"
)

// ATR implements the Average True Range indicator
type ATR struct {
	BaseIndicator
}

// NewATR creates a new Average True Range indicator instance
func NewATR(period int) *ATR {
	return &ATR{BaseIndicator: BaseIndicator{Config: IndicatorConfig{Period: period}}}
}

// Name returns the name of the indicator
func (a *ATR) Name() string {
	return "ATR"
}

// RequiredDataPoints returns the minimum number of klines needed for calculation
func (a *ATR) RequiredDataPoints() int {
	return a.Config.Period + 1
}

// Calculate computes the latest Average True Range value for the given klines
func (a *ATR) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	series, err := a.Series(klines)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// Series returns the Wilder-smoothed ATR for every kline from index period-1 onwards.
func (a *ATR) Series(klines []*domain.Kline) ([]float64, error) {
	period := a.Config.Period
	if period <= 0 || len(klines) < period+1 {
		return nil, fmt.Errorf("not enough data points for ATR calculation: need %d, got %d", period+1, len(klines))
	}

	trueRanges := TrueRanges(klines)

	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trueRanges[i]
	}
	atr /= float64(period)

	series := make([]float64, 0, len(klines)-period+1)
	series = append(series, atr)
	for i := period; i < len(klines); i++ {
		atr = (atr*float64(period-1) + trueRanges[i]) / float64(period)
		series = append(series, atr)
	}
	return series, nil
}

// TrueRanges returns the true range of every kline; the first one is its high-low range.
func TrueRanges(klines []*domain.Kline) []float64 {
	trueRanges := make([]float64, len(klines))
	if len(klines) == 0 {
		return trueRanges
	}
	trueRanges[0] = klines[0].High - klines[0].Low
	for i := 1; i < len(klines); i++ {
		prevClose := klines[i-1].Close
		tr1 := klines[i].High - klines[i].Low
		tr2 := math.Abs(klines[i].High - prevClose)
		tr3 := math.Abs(klines[i].Low - prevClose)
		trueRanges[i] = math.Max(tr1, math.Max(tr2, tr3))
	}
	return trueRanges
}

// PercentileRank returns the share (0-100) of the earlier values strictly below the last one.
func PercentileRank(values []float64) float64 {
	if len(values) < 2 {
		return 50
	}
	last := values[len(values)-1]
	below := 0
	for _, v := range values[:len(values)-1] {
		if v < last {
			below++
		}
	}
	return float64(below) / float64(len(values)-1) * 100
}
