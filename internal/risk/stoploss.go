package risk

import (
	"fmt"
	"math"
	"strings"

	"tradeGate/internal/domain"
	"tradeGate/internal/ports"
)

// StopPolicy decides what happens to a stop whose distance falls outside the bounds.
type StopPolicy string

const (
	// StopPolicyClamp moves the stop onto the violated bound.
	StopPolicyClamp StopPolicy = "clamp"
	// StopPolicyReject keeps the raw stop and flags it so validation fails.
	StopPolicyReject StopPolicy = "reject"
)

// StopConfig holds configuration for stop-loss resolution
type StopConfig struct {
	ATRMultiplier  float64 // ATR candidate distance in ATRs
	SwingBufferPct float64 // Buffer beyond the swing extreme
	VWAPOffsetPct  float64 // Offset beyond VWAP
	MinStopPct     float64
	MaxStopPct     float64
	Policy         StopPolicy
}

// DefaultStopConfig returns the standard stop configuration.
func DefaultStopConfig() StopConfig {
	return StopConfig{
		ATRMultiplier:  1.5,
		SwingBufferPct: 0.2,
		VWAPOffsetPct:  0.5,
		MinStopPct:     0.5,
		MaxStopPct:     5.0,
		Policy:         StopPolicyClamp,
	}
}

// StopResolver picks the tightest valid stop among ATR, swing and VWAP candidates.
type StopResolver struct {
	config StopConfig
}

// NewStopResolver creates a stop resolver after validating the bounds.
func NewStopResolver(config StopConfig) (*StopResolver, error) {
	var errs []string
	if config.ATRMultiplier <= 0 {
		errs = append(errs, "ATR multiplier must be positive")
	}
	if config.SwingBufferPct < 0 || config.VWAPOffsetPct < 0 {
		errs = append(errs, "stop buffers cannot be negative")
	}
	if config.MinStopPct <= 0 {
		errs = append(errs, "min stop pct must be positive")
	}
	if config.MaxStopPct >= 100 {
		errs = append(errs, "max stop pct must be below 100")
	}
	if config.MinStopPct > config.MaxStopPct {
		errs = append(errs, fmt.Sprintf("min stop pct %g exceeds max stop pct %g", config.MinStopPct, config.MaxStopPct))
	}
	if config.Policy != StopPolicyClamp && config.Policy != StopPolicyReject {
		errs = append(errs, fmt.Sprintf("unknown stop policy %q", config.Policy))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}
	return &StopResolver{config: config}, nil
}

// Bounds returns the configured distance bounds in percent.
func (r *StopResolver) Bounds() (min, max float64) {
	return r.config.MinStopPct, r.config.MaxStopPct
}

// Resolve computes the stop plan for an entry. A plan without a basis means no
// candidate sat on the protective side of the entry.
func (r *StopResolver) Resolve(dir domain.Direction, entry float64, s domain.IndicatorSnapshot) domain.StopPlan {
	if !dir.IsTradable() || entry <= 0 {
		return domain.StopPlan{}
	}
	sign := dir.Sign()

	var candidates []domain.StopCandidate
	add := func(basis domain.StopBasis, price float64) {
		c := domain.StopCandidate{Basis: basis, Price: price}
		c.DistancePct = math.Abs(entry-price) / entry * 100
		c.Valid = price > 0 && (entry-price)*sign > 0
		candidates = append(candidates, c)
	}

	if s.ATR > 0 {
		add(domain.StopBasisATR, entry-sign*r.config.ATRMultiplier*s.ATR)
	}
	swing := s.SwingLow
	if dir == domain.Sell {
		swing = s.SwingHigh
	}
	if swing > 0 {
		add(domain.StopBasisSwing, swing*(1-sign*r.config.SwingBufferPct/100))
	}
	if s.VWAP > 0 {
		add(domain.StopBasisVWAP, s.VWAP*(1-sign*r.config.VWAPOffsetPct/100))
	}

	plan := domain.StopPlan{Candidates: candidates}
	best := -1
	for i, c := range candidates {
		if c.Valid && (best < 0 || c.DistancePct < candidates[best].DistancePct) {
			best = i
		}
	}
	if best < 0 {
		return plan
	}

	chosen := candidates[best]
	plan.Price, plan.Basis, plan.DistancePct = chosen.Price, chosen.Basis, chosen.DistancePct

	var bound domain.StopBound
	var boundPct float64
	switch {
	case plan.DistancePct < r.config.MinStopPct:
		bound, boundPct = domain.BoundMin, r.config.MinStopPct
	case plan.DistancePct > r.config.MaxStopPct:
		bound, boundPct = domain.BoundMax, r.config.MaxStopPct
	default:
		return plan
	}

	if r.config.Policy == StopPolicyReject {
		plan.OutOfBounds = true
		return plan
	}
	plan.Price = entry * (1 - sign*boundPct/100)
	plan.DistancePct = boundPct
	plan.ClampedBy = bound
	return plan
}
