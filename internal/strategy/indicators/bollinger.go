package indicators

import (
	"context"
	"fmt"
	"math"

	"tradeGate/internal/domain"
)

// BollingerBands holds the band values for the latest kline.
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger implements Bollinger Bands around a simple moving average.
type Bollinger struct {
	BaseIndicator
	StdDevs float64
}

// NewBollinger creates a new Bollinger Bands indicator instance
func NewBollinger(period int, stdDevs float64) *Bollinger {
	return &Bollinger{
		BaseIndicator: BaseIndicator{Config: IndicatorConfig{Period: period}},
		StdDevs:       stdDevs,
	}
}

// Name returns the name of the indicator
func (b *Bollinger) Name() string {
	return "BB"
}

// Calculate returns the middle band
func (b *Bollinger) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	bands, err := b.Bands(klines)
	if err != nil {
		return 0, err
	}
	return bands.Middle, nil
}

// Bands computes upper, middle and lower bands.
func (b *Bollinger) Bands(klines []*domain.Kline) (BollingerBands, error) {
	period := b.Config.Period
	if period <= 0 || len(klines) < period {
		return BollingerBands{}, fmt.Errorf("not enough data (%d) to calculate Bollinger Bands for period %d", len(klines), period)
	}
	window := klines[len(klines)-period:]

	var sum float64
	for _, k := range window {
		sum += k.Close
	}
	mean := sum / float64(period)

	var variance float64
	for _, k := range window {
		d := k.Close - mean
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(period))

	return BollingerBands{
		Upper:  mean + b.StdDevs*sd,
		Middle: mean,
		Lower:  mean - b.StdDevs*sd,
	}, nil
}
