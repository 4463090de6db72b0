package risk

import (
	"fmt"
	"math"
	"strings"

	"tradeGate/internal/domain"
	"tradeGate/internal/ports"
)

// TargetConfig holds configuration for profit targets and the trailing rule
type TargetConfig struct {
	Multiples          []float64 // Target distances in R
	BookPercentages    []float64 // Share of the position booked at each target
	TrailFinal         bool      // The last target trails instead of using a fixed price
	SnapToStructure    bool
	MinRR              float64
	TrailActivationPct float64 // Profit that activates the trailing stop
	TrailATRMultiple   float64
}

// DefaultTargetConfig returns the 1R/2R/3R plan booking 50/30/20 with a trailing remainder.
func DefaultTargetConfig() TargetConfig {
	return TargetConfig{
		Multiples:          []float64{1, 2, 3},
		BookPercentages:    []float64{50, 30, 20},
		TrailFinal:         true,
		SnapToStructure:    true,
		MinRR:              2.0,
		TrailActivationPct: 1.0,
		TrailATRMultiple:   2.0,
	}
}

// TargetPlanner builds tiered profit targets from the risk unit.
type TargetPlanner struct {
	config TargetConfig
}

// NewTargetPlanner creates a planner after validating the target ladder.
func NewTargetPlanner(config TargetConfig) (*TargetPlanner, error) {
	var errs []string
	n := len(config.Multiples)
	if n == 0 || n > 3 {
		errs = append(errs, "between one and three targets are required")
	}
	if len(config.BookPercentages) != n {
		errs = append(errs, "each target needs a booking percentage")
	}
	var total float64
	for i, m := range config.Multiples {
		if m <= 0 || (i > 0 && m <= config.Multiples[i-1]) {
			errs = append(errs, "target multiples must be positive and strictly increasing")
			break
		}
	}
	for _, b := range config.BookPercentages {
		if b <= 0 {
			errs = append(errs, "booking percentages must be positive")
			break
		}
		total += b
	}
	if len(config.BookPercentages) > 0 && math.Abs(total-100) > 1e-9 {
		errs = append(errs, fmt.Sprintf("booking percentages sum to %g, not 100", total))
	}
	if config.MinRR <= 0 {
		errs = append(errs, "min risk-reward must be positive")
	}
	if config.TrailActivationPct < 0 || config.TrailATRMultiple <= 0 {
		errs = append(errs, "trailing rule parameters must be positive")
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}
	return &TargetPlanner{config: config}, nil
}

// MinRR returns the configured minimum risk-reward.
func (p *TargetPlanner) MinRR() float64 {
	return p.config.MinRR
}

// Plan lays out the targets for an entry and stop. Structure levels in the profit
// direction, nearest first, may pull a target in when one sits between two multiples.
func (p *TargetPlanner) Plan(dir domain.Direction, entry, stop float64, levels []float64) domain.TargetPlan {
	r := math.Abs(entry - stop)
	if !dir.IsTradable() || entry <= 0 || r == 0 {
		return domain.TargetPlan{}
	}
	sign := dir.Sign()

	pure := make([]domain.Target, len(p.config.Multiples))
	for i, m := range p.config.Multiples {
		pure[i] = domain.Target{
			Price:          entry + sign*m*r,
			RRRatio:        m,
			BookPercentage: p.config.BookPercentages[i],
			Kind:           domain.TargetFixed,
		}
	}
	last := len(pure) - 1
	if p.config.TrailFinal {
		pure[last].Kind = domain.TargetTrail
		pure[last].Price = 0
	}

	plan := domain.TargetPlan{Targets: pure}
	if !p.config.SnapToStructure {
		return plan
	}

	for i := 1; i < len(pure); i++ {
		if pure[i].Kind != domain.TargetFixed {
			continue
		}
		lower := entry + sign*p.config.Multiples[i-1]*r
		upper := pure[i].Price
		level, ok := firstBetween(levels, lower, upper, sign)
		if !ok {
			continue
		}

		candidate := domain.TargetPlan{Targets: append([]domain.Target(nil), plan.Targets...)}
		candidate.Targets[i].Price = level
		candidate.Targets[i].RRRatio = math.Abs(level-entry) / r
		candidate.Targets[i].Snapped = true
		if candidate.RiskReward() < p.config.MinRR {
			continue
		}
		plan = candidate
	}
	return plan
}

// firstBetween returns the first level strictly between lower and upper in the profit direction.
func firstBetween(levels []float64, lower, upper, sign float64) (float64, bool) {
	for _, l := range levels {
		if (l-lower)*sign > 0 && (upper-l)*sign > 0 {
			return l, true
		}
	}
	return 0, false
}

// Trailing returns the trailing rule for a position entered at entry.
func (p *TargetPlanner) Trailing(dir domain.Direction, entry, atr float64) domain.TrailingRule {
	return domain.TrailingRule{
		Direction:           dir,
		EntryPrice:          entry,
		ActivationProfitPct: p.config.TrailActivationPct,
		ATRMultiple:         p.config.TrailATRMultiple,
		ATR:                 atr,
	}
}
