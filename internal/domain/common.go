package domain

// Direction represents the side of a signal or order (BUY, SELL or HOLD).
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
	Hold Direction = "HOLD"
)

// Sign returns +1 for BUY, -1 for SELL and 0 otherwise.
func (d Direction) Sign() float64 {
	switch d {
	case Buy:
		return 1
	case Sell:
		return -1
	default:
		return 0
	}
}

// IsTradable reports whether the direction opens a position.
func (d Direction) IsTradable() bool {
	return d == Buy || d == Sell
}

// Regime classifies the prevailing market state.
type Regime string

const (
	RegimeTrendBull      Regime = "TREND_BULL"
	RegimeTrendBear      Regime = "TREND_BEAR"
	RegimeRange          Regime = "RANGE"
	RegimeHighVolatility Regime = "HIGH_VOLATILITY"
	RegimeUnknown        Regime = "UNKNOWN"
)

// IsDirectional reports whether the regime carries a trend direction.
func (r Regime) IsDirectional() bool {
	return r == RegimeTrendBull || r == RegimeTrendBear
}

// Direction returns the trade direction implied by a trending regime.
func (r Regime) Direction() Direction {
	switch r {
	case RegimeTrendBull:
		return Buy
	case RegimeTrendBear:
		return Sell
	default:
		return Hold
	}
}

// EntryType is the detected entry pattern.
type EntryType string

const (
	EntryMomentum       EntryType = "MOMENTUM"
	EntryBreakoutRetest EntryType = "BREAKOUT_RETEST"
	EntryPullback       EntryType = "PULLBACK"
	EntryNone           EntryType = "NONE"
)

// StopBasis names the method that produced the chosen stop.
type StopBasis string

const (
	StopBasisATR   StopBasis = "ATR"
	StopBasisSwing StopBasis = "SWING"
	StopBasisVWAP  StopBasis = "VWAP"
	StopBasisNone  StopBasis = ""
)

// StopBound records which distance bound, if any, adjusted the stop.
type StopBound string

const (
	BoundNone StopBound = ""
	BoundMin  StopBound = "MIN"
	BoundMax  StopBound = "MAX"
)

// TargetKind distinguishes fixed-price targets from the trailing remainder.
type TargetKind string

const (
	TargetFixed TargetKind = "FIXED"
	TargetTrail TargetKind = "TRAIL"
)
