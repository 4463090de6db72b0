package strategy

import (
	"math"

	"tradeGate/internal/domain"
)

// LayerScores are the direction-relative confluence layers, each in [-100, 100].
type LayerScores struct {
	Trend      float64
	Momentum   float64
	Volatility float64
	Structure  float64
}

type layerWeights struct {
	trend, momentum, volatility, structure float64
}

var regimeWeights = map[domain.Regime]layerWeights{
	domain.RegimeTrendBull:      {0.40, 0.30, 0.15, 0.15},
	domain.RegimeTrendBear:      {0.40, 0.30, 0.15, 0.15},
	domain.RegimeRange:          {0.15, 0.40, 0.20, 0.25},
	domain.RegimeHighVolatility: {0.20, 0.25, 0.25, 0.30},
	domain.RegimeUnknown:        {0.25, 0.25, 0.25, 0.25},
}

const structureProximityPct = 1.0

// TrendStrength scores (0-100) how strongly the snapshot trends in dir.
func TrendStrength(s domain.IndicatorSnapshot, dir domain.Direction) float64 {
	if !dir.IsTradable() {
		return 0
	}
	sign := dir.Sign()
	strength := math.Min(math.Max(s.ADX, 0), 50) / 50 * 60
	if (s.EMA21-s.EMA50)*sign > 0 {
		strength += 15
	}
	if (s.EMA50-s.EMA200)*sign > 0 {
		strength += 15
	}
	if (s.Close-s.VWAP)*sign > 0 {
		strength += 10
	}
	return clamp(strength, 0, 100)
}

// Layers scores each confluence layer relative to dir.
func Layers(s domain.IndicatorSnapshot, dir domain.Direction) LayerScores {
	sign := dir.Sign()
	var l LayerScores

	switch TrendDirection(s) {
	case dir:
		l.Trend = TrendStrength(s, dir)
	case opposite(dir):
		l.Trend = -TrendStrength(s, opposite(dir))
	}

	l.Momentum = MomentumScore(s) * sign

	if s.BollingerUpper > s.BollingerLower {
		rel := (s.Close - s.BollingerMiddle) * sign
		halfWidth := (s.BollingerUpper - s.BollingerLower) / 2
		switch {
		case rel > halfWidth:
			l.Volatility = -20 // Overextended beyond the band in the trade direction
		case rel > 0:
			l.Volatility = 15
		case rel < -halfWidth:
			l.Volatility = -40
		case rel < 0:
			l.Volatility = -15
		}
	}
	if s.ATRPercentile > 90 {
		l.Volatility -= 20
	}
	l.Volatility = clamp(l.Volatility, -100, 100)

	if s.HasBreakout() {
		if s.Breakout.Direction == dir {
			l.Structure += 35
			if s.Breakout.VolumeConfirmed {
				l.Structure += 25
			}
		} else {
			l.Structure -= 35
		}
	}
	if near(s.Close, s.StructureLevels(opposite(dir)), structureProximityPct) {
		l.Structure += 25 // Sitting on support for a long, resistance for a short
	}
	if near(s.Close, s.StructureLevels(dir), structureProximityPct) {
		l.Structure -= 25
	}
	l.Structure = clamp(l.Structure, -100, 100)
	return l
}

// Confidence turns the regime-weighted layer scores into a 0-100 confidence for dir.
func Confidence(s domain.IndicatorSnapshot, regime domain.Regime, dir domain.Direction) float64 {
	if !dir.IsTradable() {
		return 0
	}
	w, ok := regimeWeights[regime]
	if !ok {
		w = regimeWeights[domain.RegimeUnknown]
	}
	l := Layers(s, dir)
	weighted := l.Trend*w.trend + l.Momentum*w.momentum + l.Volatility*w.volatility + l.Structure*w.structure
	confidence := clamp((weighted+100)/2, 0, 100)
	return math.Round(confidence*100) / 100
}

func near(price float64, levels []float64, pct float64) bool {
	if price <= 0 || len(levels) == 0 {
		return false
	}
	return math.Abs(price-levels[0])/price*100 <= pct
}

func opposite(d domain.Direction) domain.Direction {
	switch d {
	case domain.Buy:
		return domain.Sell
	case domain.Sell:
		return domain.Buy
	default:
		return domain.Hold
	}
}
