package domain

import "math"

// StopCandidate is one of the stop prices considered by the resolver.
type StopCandidate struct {
	Basis       StopBasis `json:"basis"`
	Price       float64   `json:"price"`
	DistancePct float64   `json:"distance_pct"`
	Valid       bool      `json:"valid"` // On the protective side of the entry
}

// StopPlan is the resolved protective stop for a trade.
type StopPlan struct {
	Price       float64         `json:"stop_price"`
	Basis       StopBasis       `json:"basis"`
	DistancePct float64         `json:"distance_pct"`
	ClampedBy   StopBound       `json:"clamped_by,omitempty"`
	OutOfBounds bool            `json:"out_of_bounds,omitempty"` // Only set when the reject policy is active
	Candidates  []StopCandidate `json:"candidates,omitempty"`
}

// IsValid reports whether a stop was selected at all.
func (p StopPlan) IsValid() bool {
	return p.Basis != StopBasisNone && p.Price > 0
}

// Target is a single profit-taking level.
type Target struct {
	Price          float64    `json:"price"`
	RRRatio        float64    `json:"rr_ratio"`
	BookPercentage float64    `json:"book_percentage"`
	Kind           TargetKind `json:"kind"`
	Snapped        bool       `json:"snapped,omitempty"` // Moved onto a structure level
}

// TargetPlan is the ordered set of profit-taking levels.
type TargetPlan struct {
	Targets []Target `json:"targets"`
}

// RiskReward returns the R:R of the final target, i.e. the reward if the whole plan plays out.
func (p TargetPlan) RiskReward() float64 {
	if len(p.Targets) == 0 {
		return 0
	}
	return p.Targets[len(p.Targets)-1].RRRatio
}

// BlendedRR returns the booking-weighted mean R:R across all targets.
func (p TargetPlan) BlendedRR() float64 {
	var blended float64
	for _, t := range p.Targets {
		blended += t.RRRatio * t.BookPercentage / 100
	}
	return blended
}

// TotalBooked returns the sum of booking percentages.
func (p TargetPlan) TotalBooked() float64 {
	var total float64
	for _, t := range p.Targets {
		total += t.BookPercentage
	}
	return total
}

// FinalIsTrail reports whether the last target is governed by the trailing rule.
func (p TargetPlan) FinalIsTrail() bool {
	return len(p.Targets) > 0 && p.Targets[len(p.Targets)-1].Kind == TargetTrail
}

// TrailingRule governs the stop of the trailing remainder of a position.
type TrailingRule struct {
	Direction           Direction `json:"direction"`
	EntryPrice          float64   `json:"entry_price"` // Floor the trailing stop never crosses
	ActivationProfitPct float64   `json:"activation_profit_pct"`
	ATRMultiple         float64   `json:"trail_atr_multiple"`
	ATR                 float64   `json:"atr"`
}

// Distance is the trailing gap in price units.
func (r TrailingRule) Distance() float64 {
	return r.ATR * r.ATRMultiple
}

// IsActive reports whether unrealized profit at price reached the activation threshold.
func (r TrailingRule) IsActive(price float64) bool {
	if r.EntryPrice <= 0 || !r.Direction.IsTradable() {
		return false
	}
	profitPct := (price - r.EntryPrice) / r.EntryPrice * 100 * r.Direction.Sign()
	return profitPct >= r.ActivationProfitPct
}

// Next returns the trailing stop for price given the current one (0 if none yet).
// The stop only ever moves in the profit direction and never crosses the entry price.
func (r TrailingRule) Next(price, current float64) (float64, bool) {
	if !r.IsActive(price) {
		return current, false
	}
	switch r.Direction {
	case Buy:
		stop := math.Max(price-r.Distance(), r.EntryPrice)
		if current > 0 {
			stop = math.Max(stop, current)
		}
		return stop, true
	case Sell:
		stop := math.Min(price+r.Distance(), r.EntryPrice)
		if current > 0 {
			stop = math.Min(stop, current)
		}
		return stop, true
	}
	return current, false
}

// SizingResult is the output of the position sizer.
type SizingResult struct {
	Quantity        int64   `json:"quantity"`
	CapitalRequired float64 `json:"capital_required"`
	RiskAmount      float64 `json:"risk_amount"` // Confidence-adjusted risk budget
	RiskPct         float64 `json:"risk_pct"`
	RiskPerUnit     float64 `json:"risk_per_unit"`
	ActualRisk      float64 `json:"actual_risk"` // Quantity x risk per unit
	Capped          bool    `json:"capped,omitempty"`
}
