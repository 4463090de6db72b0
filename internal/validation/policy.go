package validation

import (
	"fmt"
	"strings"
	"time"

	"tradeGate/internal/ports"
)

// Policy holds the thresholds the validation checks compare against.
type Policy struct {
	MinConfidence            float64 // 0-100
	MinRR                    float64
	MinStopPct               float64
	MaxStopPct               float64
	MinVolumeRatio           float64 // Current volume over its average
	MaxRiskPerTradePct       float64
	MaxAggregateRiskPct      float64 // Open risk plus the new trade, as a share of capital
	MaxDailyLossPct          float64
	MaxOpenPositions         int
	MaxTradesPerSymbolPerDay int
	SymbolCooldown           time.Duration
}

// DefaultPolicy returns the standard validation thresholds.
func DefaultPolicy() Policy {
	return Policy{
		MinConfidence:            70,
		MinRR:                    2.0,
		MinStopPct:               0.5,
		MaxStopPct:               5.0,
		MinVolumeRatio:           1.0,
		MaxRiskPerTradePct:       1.0,
		MaxAggregateRiskPct:      5.0,
		MaxDailyLossPct:          3.0,
		MaxOpenPositions:         8,
		MaxTradesPerSymbolPerDay: 3,
		SymbolCooldown:           30 * time.Minute,
	}
}

// Validate reports every malformed threshold at once.
func (p Policy) Validate() error {
	var errs []string
	if p.MinConfidence < 0 || p.MinConfidence > 100 {
		errs = append(errs, "min confidence must be within [0, 100]")
	}
	if p.MinRR <= 0 {
		errs = append(errs, "min risk-reward must be positive")
	}
	if p.MinStopPct <= 0 || p.MaxStopPct <= 0 {
		errs = append(errs, "stop bounds must be positive")
	}
	if p.MinStopPct > p.MaxStopPct {
		errs = append(errs, fmt.Sprintf("min stop pct %g exceeds max stop pct %g", p.MinStopPct, p.MaxStopPct))
	}
	if p.MinVolumeRatio < 0 {
		errs = append(errs, "min volume ratio cannot be negative")
	}
	if p.MaxRiskPerTradePct <= 0 || p.MaxAggregateRiskPct <= 0 {
		errs = append(errs, "risk limits must be positive")
	}
	if p.MaxRiskPerTradePct > p.MaxAggregateRiskPct {
		errs = append(errs, "per-trade risk limit exceeds aggregate risk limit")
	}
	if p.MaxDailyLossPct <= 0 {
		errs = append(errs, "max daily loss pct must be positive")
	}
	if p.MaxOpenPositions <= 0 {
		errs = append(errs, "max open positions must be positive")
	}
	if p.MaxTradesPerSymbolPerDay <= 0 {
		errs = append(errs, "max trades per symbol per day must be positive")
	}
	if p.SymbolCooldown < 0 {
		errs = append(errs, "symbol cooldown cannot be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}
	return nil
}
