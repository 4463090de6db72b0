package risk

import (
	"fmt"
	"math"
	"strings"

	"tradeGate/internal/domain"
	"tradeGate/internal/ports"
)

// floorEpsilon absorbs float error so that e.g. 1000/25 floors to 40, not 39.
const floorEpsilon = 1e-9

// SizingConfig holds configuration for position sizing
type SizingConfig struct {
	RiskPerTradePct float64 // Share of capital risked at full confidence
	CapitalCapPct   float64 // Max share of capital a single position may use
}

// DefaultSizingConfig returns 1% risk per trade capped at 10% of capital.
func DefaultSizingConfig() SizingConfig {
	return SizingConfig{RiskPerTradePct: 1.0, CapitalCapPct: 10.0}
}

// Sizer converts risk policy, confidence and stop distance into a whole quantity.
type Sizer struct {
	config SizingConfig
}

// NewSizer creates a position sizer.
func NewSizer(config SizingConfig) (*Sizer, error) {
	var errs []string
	if config.RiskPerTradePct <= 0 || config.RiskPerTradePct > 100 {
		errs = append(errs, "risk per trade pct must be in (0, 100]")
	}
	if config.CapitalCapPct <= 0 || config.CapitalCapPct > 100 {
		errs = append(errs, "capital cap pct must be in (0, 100]")
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}
	return &Sizer{config: config}, nil
}

// Size computes the quantity for a trade. Confidence scales risk linearly and never above 1x.
// A zero quantity is a valid result that validation must reject.
func (s *Sizer) Size(totalCapital, confidence, entry, stop float64) domain.SizingResult {
	var res domain.SizingResult
	if totalCapital <= 0 || entry <= 0 {
		return res
	}

	multiplier := math.Max(0, math.Min(confidence, 100)) / 100
	res.RiskAmount = totalCapital * s.config.RiskPerTradePct / 100 * multiplier
	res.RiskPct = res.RiskAmount / totalCapital * 100
	res.RiskPerUnit = math.Abs(entry - stop)
	if res.RiskPerUnit == 0 || stop <= 0 {
		return res
	}

	qty := int64(math.Floor(res.RiskAmount/res.RiskPerUnit + floorEpsilon))
	maxCapital := totalCapital * s.config.CapitalCapPct / 100
	if float64(qty)*entry > maxCapital {
		qty = int64(math.Floor(maxCapital / entry))
		if float64(qty)*entry > maxCapital {
			qty--
		}
		res.Capped = true
	}
	if qty < 0 {
		qty = 0
	}

	res.Quantity = qty
	res.CapitalRequired = float64(qty) * entry
	res.ActualRisk = float64(qty) * res.RiskPerUnit
	return res
}
