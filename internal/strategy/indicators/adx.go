package indicators

import (
	"context"
	"fmt"
	"math"

	"tradeGate/internal/domain"
)

// ADXValue is the latest directional movement reading.
type ADXValue struct {
	ADX     float64
	PlusDI  float64
	MinusDI float64
}

// ADX implements Wilder's Average Directional Index.
type ADX struct {
	BaseIndicator
}

// NewADX creates a new ADX indicator instance
func NewADX(period int) *ADX {
	return &ADX{BaseIndicator: BaseIndicator{Config: IndicatorConfig{Period: period}}}
}

// Name returns the name of the indicator
func (a *ADX) Name() string {
	return "ADX"
}

// RequiredDataPoints returns the minimum number of klines needed for calculation
func (a *ADX) RequiredDataPoints() int {
	return 2*a.Config.Period + 1
}

// Calculate returns the ADX value
func (a *ADX) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	v, err := a.Values(klines)
	if err != nil {
		return 0, err
	}
	return v.ADX, nil
}

// Values computes ADX, +DI and -DI for the latest kline.
func (a *ADX) Values(klines []*domain.Kline) (ADXValue, error) {
	period := a.Config.Period
	if period <= 0 || len(klines) < a.RequiredDataPoints() {
		return ADXValue{}, fmt.Errorf("not enough data (%d) to calculate ADX: need %d", len(klines), a.RequiredDataPoints())
	}

	trueRanges := TrueRanges(klines)
	n := len(klines)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := klines[i].High - klines[i-1].High
		down := klines[i-1].Low - klines[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	var trSum, plusSum, minusSum float64
	for i := 1; i <= period; i++ {
		trSum += trueRanges[i]
		plusSum += plusDM[i]
		minusSum += minusDM[i]
	}

	p := float64(period)
	var v ADXValue
	dxs := make([]float64, 0, n-period)
	for i := period; i < n; i++ {
		if i > period {
			trSum = trSum - trSum/p + trueRanges[i]
			plusSum = plusSum - plusSum/p + plusDM[i]
			minusSum = minusSum - minusSum/p + minusDM[i]
		}
		if trSum > 0 {
			v.PlusDI = 100 * plusSum / trSum
			v.MinusDI = 100 * minusSum / trSum
		} else {
			v.PlusDI, v.MinusDI = 0, 0
		}
		dx := 0.0
		if total := v.PlusDI + v.MinusDI; total > 0 {
			dx = 100 * math.Abs(v.PlusDI-v.MinusDI) / total
		}
		dxs = append(dxs, dx)
	}

	adx := 0.0
	for _, dx := range dxs[:period] {
		adx += dx
	}
	adx /= p
	for _, dx := range dxs[period:] {
		adx = (adx*(p-1) + dx) / p
	}
	v.ADX = adx
	return v, nil
}
