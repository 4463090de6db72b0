package strategy

import (
	"fmt"
	"math"
	"strings"

	"tradeGate/internal/domain"
)

// EntryConfig holds the thresholds of the entry pattern classifier.
type EntryConfig struct {
	MomentumStrength       float64 // Trend strength a momentum entry must exceed
	VolumeExpansion        float64 // Volume / average volume that counts as expansion
	RetestBandPct          float64 // How far beyond a broken level price may be while retesting it
	BreakoutEntryOffsetPct float64 // Entry offset from the broken level
	PullbackProximityPct   float64 // Distance to EMA-21 or VWAP that counts as a pullback
}

// DefaultEntryConfig returns the standard entry thresholds.
func DefaultEntryConfig() EntryConfig {
	return EntryConfig{
		MomentumStrength:       70,
		VolumeExpansion:        1.2,
		RetestBandPct:          2,
		BreakoutEntryOffsetPct: 0.2,
		PullbackProximityPct:   1,
	}
}

func (c EntryConfig) validate() error {
	var errs []string
	if c.MomentumStrength <= 0 || c.MomentumStrength >= 100 {
		errs = append(errs, "momentum strength must be in (0, 100)")
	}
	if c.VolumeExpansion <= 0 {
		errs = append(errs, "volume expansion ratio must be positive")
	}
	if c.RetestBandPct <= 0 || c.PullbackProximityPct <= 0 || c.BreakoutEntryOffsetPct < 0 {
		errs = append(errs, "entry percentages must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid entry config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ClassifyEntry detects the entry pattern for dir. Patterns are tried in the order
// momentum, breakout retest, pullback and the first match wins.
func (c EntryConfig) ClassifyEntry(s domain.IndicatorSnapshot, regime domain.Regime, aligned bool, dir domain.Direction, strength float64) domain.EntrySetup {
	none := func(reason string) domain.EntrySetup {
		return domain.EntrySetup{Type: domain.EntryNone, EntryPrice: s.Close, Reason: reason}
	}
	switch {
	case !aligned:
		return none("no entry without HTF alignment")
	case !regime.IsDirectional():
		return none(fmt.Sprintf("no entry in %s regime", regime))
	case regime.Direction() != dir:
		return none(fmt.Sprintf("%s regime conflicts with %s direction", regime, dir))
	}

	sign := dir.Sign()
	volumeExpanding := s.VolumeRatio() > c.VolumeExpansion

	newExtreme := s.High >= s.RecentHigh
	if dir == domain.Sell {
		newExtreme = s.Low <= s.RecentLow
	}
	if strength > c.MomentumStrength && volumeExpanding && newExtreme {
		return domain.EntrySetup{
			Type:       domain.EntryMomentum,
			EntryPrice: s.Close,
			Reason:     fmt.Sprintf("momentum: strength %.0f, volume %.2fx, new %s", strength, s.VolumeRatio(), extremeName(dir)),
		}
	}

	if s.HasBreakout() && s.Breakout.Direction == dir && s.Breakout.VolumeConfirmed {
		level := s.Breakout.Level
		beyond := (s.Close - level) * sign / level * 100
		if beyond >= 0 && beyond <= c.RetestBandPct {
			setup := domain.EntrySetup{
				Type:          domain.EntryBreakoutRetest,
				UseLimitOrder: !volumeExpanding,
				EntryPrice:    level * (1 + sign*c.BreakoutEntryOffsetPct/100),
				Reason:        fmt.Sprintf("breakout retest of %.4g (%.2f%% beyond)", level, beyond),
			}
			if !volumeExpanding {
				setup.Reason += ", volume faded: limit entry"
			}
			return setup
		}
	}

	nearEMA := proximityPct(s.Close, s.EMA21) <= c.PullbackProximityPct
	nearVWAP := proximityPct(s.Close, s.VWAP) <= c.PullbackProximityPct
	if (nearEMA || nearVWAP) && (s.Close-s.EMA50)*sign > 0 {
		// Limit at the pulled-back level, never worse than the market.
		entry := math.Min(s.Close, math.Max(s.EMA21, s.VWAP))
		if dir == domain.Sell {
			entry = math.Max(s.Close, math.Min(s.EMA21, s.VWAP))
		}
		anchor := "EMA-21"
		if !nearEMA {
			anchor = "VWAP"
		}
		return domain.EntrySetup{
			Type:          domain.EntryPullback,
			UseLimitOrder: true,
			EntryPrice:    entry,
			Reason:        fmt.Sprintf("pullback to %s", anchor),
		}
	}

	return none("no momentum, breakout retest or pullback pattern")
}

func proximityPct(price, level float64) float64 {
	if level <= 0 {
		return math.Inf(1)
	}
	return math.Abs(price-level) / level * 100
}

func extremeName(dir domain.Direction) string {
	if dir == domain.Sell {
		return "low"
	}
	return "high"
}
