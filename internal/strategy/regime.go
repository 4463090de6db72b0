package strategy

import (
	"fmt"
	"math"
	"strings"

	"tradeGate/internal/domain"
)

// RegimeConfig holds the thresholds of the regime and alignment classifier.
type RegimeConfig struct {
	MinBars           int     // Snapshots built from fewer candles are UNKNOWN
	HighVolPercentile float64 // ATR percentile above which the regime is HIGH_VOLATILITY
	TrendADX          float64 // ADX at or above this is trending
	RangeADX          float64 // ADX below this is ranging
	MomentumThreshold float64 // |momentum score| above this is directional
}

// DefaultRegimeConfig returns the standard thresholds.
func DefaultRegimeConfig() RegimeConfig {
	return RegimeConfig{
		MinBars:           200,
		HighVolPercentile: 95,
		TrendADX:          25,
		RangeADX:          20,
		MomentumThreshold: 30,
	}
}

func (c RegimeConfig) validate() error {
	var errs []string
	if c.MinBars <= 0 {
		errs = append(errs, "min bars must be positive")
	}
	if c.HighVolPercentile <= 0 || c.HighVolPercentile > 100 {
		errs = append(errs, "high volatility percentile must be in (0, 100]")
	}
	if c.RangeADX <= 0 || c.TrendADX < c.RangeADX {
		errs = append(errs, "trend ADX must be at least range ADX and both positive")
	}
	if c.MomentumThreshold <= 0 || c.MomentumThreshold >= 100 {
		errs = append(errs, "momentum threshold must be in (0, 100)")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid regime config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Classification is the result of regime and alignment analysis.
type Classification struct {
	Regime          domain.Regime
	HTFTrend        domain.Direction
	LTFMomentum     domain.Direction
	MomentumScore   float64
	HTFAligned      bool
	Direction       domain.Direction // Candidate trade direction, HOLD when none
	AlignmentReason string
}

// Classify derives the regime from the signal timeframe and checks it against the higher timeframe.
func (c RegimeConfig) Classify(htf, ltf domain.IndicatorSnapshot) Classification {
	cls := Classification{
		Regime:        c.regime(ltf),
		HTFTrend:      TrendDirection(htf),
		MomentumScore: MomentumScore(ltf),
	}
	cls.LTFMomentum = c.momentumDirection(cls.MomentumScore)

	cls.Direction = cls.LTFMomentum
	if !cls.Direction.IsTradable() {
		cls.Direction = cls.HTFTrend
	}

	switch {
	case !usable(htf, 0) || !usable(ltf, 0):
		cls.AlignmentReason = "incomplete indicator data"
	case !cls.HTFTrend.IsTradable():
		cls.AlignmentReason = "HTF trend neutral"
	case cls.HTFTrend != cls.LTFMomentum:
		cls.AlignmentReason = fmt.Sprintf("HTF %s trend vs LTF %s momentum", describe(cls.HTFTrend), describe(cls.LTFMomentum))
	default:
		if failed := priceSideFailures(htf, cls.HTFTrend); len(failed) > 0 {
			cls.AlignmentReason = fmt.Sprintf("HTF price on wrong side of %s for %s", strings.Join(failed, "/"), cls.HTFTrend)
			break
		}
		cls.HTFAligned = true
		cls.AlignmentReason = fmt.Sprintf("HTF %s trend aligned with LTF momentum", describe(cls.HTFTrend))
	}
	return cls
}

func (c RegimeConfig) regime(s domain.IndicatorSnapshot) domain.Regime {
	if !usable(s, c.MinBars) {
		return domain.RegimeUnknown
	}
	if s.ATRPercentile > c.HighVolPercentile {
		return domain.RegimeHighVolatility
	}
	switch {
	case s.ADX >= c.TrendADX:
		if s.PlusDI > s.MinusDI && s.Close > s.EMA50 {
			return domain.RegimeTrendBull
		}
		if s.MinusDI > s.PlusDI && s.Close < s.EMA50 {
			return domain.RegimeTrendBear
		}
		return domain.RegimeUnknown
	case s.ADX < c.RangeADX:
		return domain.RegimeRange
	default:
		return domain.RegimeUnknown
	}
}

func (c RegimeConfig) momentumDirection(score float64) domain.Direction {
	switch {
	case score > c.MomentumThreshold:
		return domain.Buy
	case score < -c.MomentumThreshold:
		return domain.Sell
	default:
		return domain.Hold
	}
}

// TrendDirection reads the trend of a snapshot from price versus EMA-50 and EMA-50 versus EMA-200.
func TrendDirection(s domain.IndicatorSnapshot) domain.Direction {
	switch {
	case s.Close > s.EMA50 && s.EMA50 > s.EMA200:
		return domain.Buy
	case s.Close < s.EMA50 && s.EMA50 < s.EMA200:
		return domain.Sell
	default:
		return domain.Hold
	}
}

// MomentumScore combines RSI, MACD histogram and EMA-9/21 into a score in [-100, 100].
func MomentumScore(s domain.IndicatorSnapshot) float64 {
	score := clamp((s.RSI-50)*2, -100, 100) * 0.4
	switch {
	case s.MACDHistogram > 0:
		score += 30
	case s.MACDHistogram < 0:
		score -= 30
	}
	switch {
	case s.EMA9 > s.EMA21:
		score += 30
	case s.EMA9 < s.EMA21:
		score -= 30
	}
	return clamp(score, -100, 100)
}

// priceSideFailures lists the reference levels price sits on the wrong side of.
func priceSideFailures(s domain.IndicatorSnapshot, dir domain.Direction) []string {
	sign := dir.Sign()
	var failed []string
	if (s.Close-s.EMA50)*sign <= 0 {
		failed = append(failed, "EMA-50")
	}
	if (s.Close-s.EMA200)*sign <= 0 {
		failed = append(failed, "EMA-200")
	}
	if (s.Close-s.VWAP)*sign <= 0 {
		failed = append(failed, "VWAP")
	}
	return failed
}

func usable(s domain.IndicatorSnapshot, minBars int) bool {
	if s.Bars < minBars {
		return false
	}
	for _, v := range []float64{s.Close, s.EMA50, s.EMA200, s.VWAP, s.ATR} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func describe(d domain.Direction) string {
	switch d {
	case domain.Buy:
		return "bullish"
	case domain.Sell:
		return "bearish"
	default:
		return "neutral"
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
