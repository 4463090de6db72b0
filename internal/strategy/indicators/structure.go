package indicators

import (
	"math"
	"sort"

	"tradeGate/internal/domain"
)

// Extremes returns the highest high and lowest low of the last lookback klines.
func Extremes(klines []*domain.Kline, lookback int) (high, low float64) {
	if len(klines) == 0 {
		return 0, 0
	}
	start := len(klines) - lookback
	if lookback <= 0 || start < 0 {
		start = 0
	}
	high, low = klines[start].High, klines[start].Low
	for _, k := range klines[start+1:] {
		high = math.Max(high, k.High)
		low = math.Min(low, k.Low)
	}
	return high, low
}

// AverageVolume returns the mean volume of the last period klines, excluding the latest one.
func AverageVolume(klines []*domain.Kline, period int) float64 {
	if len(klines) < 2 || period <= 0 {
		return 0
	}
	end := len(klines) - 1
	start := end - period
	if start < 0 {
		start = 0
	}
	var sum float64
	for _, k := range klines[start:end] {
		sum += k.Volume
	}
	return sum / float64(end-start)
}

// StructureConfig tunes pivot and breakout detection.
type StructureConfig struct {
	PivotWindow    int     // Bars on each side a pivot must dominate
	MaxLevels      int     // Levels kept on each side of price
	MergeTolerance float64 // Levels closer than this fraction are merged
	BreakoutBars   int     // Recent bars inspected for a breakout
	RangeBars      int     // Bars before the recent window forming the broken range
	VolumeRatio    float64 // Volume multiple that confirms a breakout bar
	VolumePeriod   int
}

// DefaultStructureConfig returns the settings used by the snapshot builder.
func DefaultStructureConfig() StructureConfig {
	return StructureConfig{
		PivotWindow:    2,
		MaxLevels:      5,
		MergeTolerance: 0.001,
		BreakoutBars:   5,
		RangeBars:      20,
		VolumeRatio:    1.2,
		VolumePeriod:   20,
	}
}

// PivotLevels finds pivot highs and lows and splits them around price.
// Support is returned nearest first (descending), resistance nearest first (ascending).
func PivotLevels(klines []*domain.Kline, price float64, cfg StructureConfig) (support, resistance []float64) {
	w := cfg.PivotWindow
	if w <= 0 {
		return nil, nil
	}
	var levels []float64
	for i := w; i < len(klines)-w; i++ {
		isHigh, isLow := true, true
		for j := i - w; j <= i+w; j++ {
			if j == i {
				continue
			}
			if klines[j].High >= klines[i].High {
				isHigh = false
			}
			if klines[j].Low <= klines[i].Low {
				isLow = false
			}
		}
		if isHigh {
			levels = append(levels, klines[i].High)
		}
		if isLow {
			levels = append(levels, klines[i].Low)
		}
	}

	sort.Float64s(levels)
	levels = mergeLevels(levels, cfg.MergeTolerance)

	for _, l := range levels {
		switch {
		case l > price:
			resistance = append(resistance, l)
		case l < price:
			support = append(support, l)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(support)))
	if cfg.MaxLevels > 0 {
		if len(support) > cfg.MaxLevels {
			support = support[:cfg.MaxLevels]
		}
		if len(resistance) > cfg.MaxLevels {
			resistance = resistance[:cfg.MaxLevels]
		}
	}
	return support, resistance
}

func mergeLevels(sorted []float64, tolerance float64) []float64 {
	if len(sorted) == 0 {
		return nil
	}
	out := []float64{sorted[0]}
	for _, l := range sorted[1:] {
		last := out[len(out)-1]
		if last > 0 && (l-last)/last <= tolerance {
			continue
		}
		out = append(out, l)
	}
	return out
}

// DetectBreakout looks for the first close beyond the prior range within the recent bars.
// The later of an upside and a downside break wins when both occurred.
func DetectBreakout(klines []*domain.Kline, cfg StructureConfig) domain.Breakout {
	n := len(klines)
	if cfg.BreakoutBars <= 0 || cfg.RangeBars <= 0 || n < cfg.BreakoutBars+cfg.RangeBars {
		return domain.Breakout{}
	}
	rangeEnd := n - cfg.BreakoutBars
	rangeHigh, rangeLow := Extremes(klines[:rangeEnd], cfg.RangeBars)

	up, down := -1, -1
	for i := rangeEnd; i < n; i++ {
		if up < 0 && klines[i].Close > rangeHigh {
			up = i
		}
		if down < 0 && klines[i].Close < rangeLow {
			down = i
		}
	}

	idx, dir, level := up, domain.Buy, rangeHigh
	if down > up {
		idx, dir, level = down, domain.Sell, rangeLow
	}
	if idx < 0 {
		return domain.Breakout{}
	}
	avg := AverageVolume(klines[:idx+1], cfg.VolumePeriod)
	return domain.Breakout{
		Level:           level,
		Direction:       dir,
		VolumeConfirmed: avg > 0 && klines[idx].Volume >= avg*cfg.VolumeRatio,
	}
}
