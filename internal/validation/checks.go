package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"tradeGate/internal/domain"
	"tradeGate/internal/ports"
)

// Names of the built-in checks, in their default order.
const (
	CheckMTFAlignment   = "mtf_alignment"
	CheckConfidence     = "confidence"
	CheckEntryType      = "entry_type"
	CheckPriceLocation  = "price_location"
	CheckVolume         = "volume"
	CheckRegime         = "regime"
	CheckStopDistance   = "stop_distance"
	CheckRiskReward     = "risk_reward"
	CheckQuantity       = "quantity"
	CheckCapital        = "capital"
	CheckRiskLimits     = "risk_limits"
	CheckDailyLoss      = "daily_loss"
	CheckOpenPositions  = "open_positions"
	CheckSymbolCooldown = "symbol_cooldown"
)

// DefaultOrder is the standard evaluation order of the checks.
var DefaultOrder = []string{
	CheckMTFAlignment,
	CheckConfidence,
	CheckEntryType,
	CheckPriceLocation,
	CheckVolume,
	CheckRegime,
	CheckStopDistance,
	CheckRiskReward,
	CheckQuantity,
	CheckCapital,
	CheckRiskLimits,
	CheckDailyLoss,
	CheckOpenPositions,
	CheckSymbolCooldown,
}

// tolerance absorbs float noise on inclusive bounds such as a stop clamped to exactly 5%.
const tolerance = 1e-9

// Input is everything the checks may look at for one evaluation.
type Input struct {
	Symbol    string
	Signal    domain.Signal
	Alignment string // Human readable alignment verdict
	Entry     domain.EntrySetup
	LTF       domain.IndicatorSnapshot
	Stop      domain.StopPlan
	Targets   domain.TargetPlan
	Sizing    domain.SizingResult
	Portfolio ports.PortfolioSnapshot
	Now       time.Time
}

// Check is a single named pass/fail rule.
type Check interface {
	Name() string
	Check(in *Input) (bool, string)
}

type checkFunc struct {
	name string
	fn   func(in *Input) (bool, string)
}

func (c checkFunc) Name() string                   { return c.name }
func (c checkFunc) Check(in *Input) (bool, string) { return c.fn(in) }

// builtins returns the registry of known checks bound to a policy.
func builtins(p Policy) map[string]Check {
	list := []checkFunc{
		{CheckMTFAlignment, func(in *Input) (bool, string) {
			if in.Signal.HTFAligned && in.Signal.Direction.IsTradable() {
				return true, ""
			}
			reason := in.Alignment
			if reason == "" {
				reason = "higher timeframe trend does not confirm lower timeframe momentum"
			}
			return false, "Multi-timeframe misalignment: " + reason
		}},
		{CheckConfidence, func(in *Input) (bool, string) {
			if in.Signal.Confidence >= p.MinConfidence {
				return true, ""
			}
			return false, fmt.Sprintf("Confidence %s%% below threshold %s%%", num(in.Signal.Confidence), num(p.MinConfidence))
		}},
		{CheckEntryType, func(in *Input) (bool, string) {
			if in.Entry.Type != domain.EntryNone && in.Entry.Type != "" && in.Entry.EntryPrice > 0 {
				return true, ""
			}
			if in.Entry.Reason != "" {
				return false, "No valid entry setup: " + in.Entry.Reason
			}
			return false, "No valid entry setup"
		}},
		{CheckPriceLocation, func(in *Input) (bool, string) {
			s, dir := in.LTF, in.Signal.Direction
			sign := dir.Sign()
			var wrong []string
			if s.EMA50 <= 0 || (s.Close-s.EMA50)*sign <= 0 {
				wrong = append(wrong, "EMA50")
			}
			if s.VWAP <= 0 || (s.Close-s.VWAP)*sign <= 0 {
				wrong = append(wrong, "VWAP")
			}
			if len(wrong) == 0 {
				return true, ""
			}
			return false, fmt.Sprintf("Price %s on wrong side of %s for %s", num(s.Close), strings.Join(wrong, "/"), dir)
		}},
		{CheckVolume, func(in *Input) (bool, string) {
			ratio := in.LTF.VolumeRatio()
			if ratio >= p.MinVolumeRatio && ratio > 0 {
				return true, ""
			}
			return false, fmt.Sprintf("Volume ratio %s below minimum %s", num(ratio), num(p.MinVolumeRatio))
		}},
		{CheckRegime, func(in *Input) (bool, string) {
			switch in.Signal.Regime {
			case domain.RegimeHighVolatility, domain.RegimeUnknown, "":
				return false, fmt.Sprintf("Regime %s is not tradable", regimeName(in.Signal.Regime))
			}
			return true, ""
		}},
		{CheckStopDistance, func(in *Input) (bool, string) {
			if !in.Stop.IsValid() {
				return false, "No valid stop-loss candidate"
			}
			d := in.Stop.DistancePct
			if !in.Stop.OutOfBounds && d >= p.MinStopPct-tolerance && d <= p.MaxStopPct+tolerance {
				return true, ""
			}
			return false, fmt.Sprintf("Stop distance %s%% outside bounds [%s%%, %s%%]", num(d), num(p.MinStopPct), num(p.MaxStopPct))
		}},
		{CheckRiskReward, func(in *Input) (bool, string) {
			if len(in.Targets.Targets) == 0 {
				return false, "No profit targets"
			}
			rr := in.Targets.RiskReward()
			if rr >= p.MinRR-tolerance {
				return true, ""
			}
			return false, fmt.Sprintf("Risk-reward %s below minimum %s", num(rr), num(p.MinRR))
		}},
		{CheckQuantity, func(in *Input) (bool, string) {
			if in.Sizing.Quantity > 0 {
				return true, ""
			}
			return false, "Insufficient size: quantity is 0"
		}},
		{CheckCapital, func(in *Input) (bool, string) {
			if in.Sizing.CapitalRequired <= in.Portfolio.AvailableCapital+tolerance {
				return true, ""
			}
			return false, fmt.Sprintf("Capital required %s exceeds available %s", num(in.Sizing.CapitalRequired), num(in.Portfolio.AvailableCapital))
		}},
		{CheckRiskLimits, func(in *Input) (bool, string) {
			total := in.Portfolio.TotalCapital
			if total <= 0 {
				return false, "No capital to risk"
			}
			if in.Sizing.RiskPct > p.MaxRiskPerTradePct+tolerance {
				return false, fmt.Sprintf("Trade risk %s%% exceeds per-trade limit %s%%", num(in.Sizing.RiskPct), num(p.MaxRiskPerTradePct))
			}
			aggregate := (in.Portfolio.OpenRisk + in.Sizing.ActualRisk) / total * 100
			if aggregate > p.MaxAggregateRiskPct+tolerance {
				return false, fmt.Sprintf("Aggregate risk %s%% exceeds limit %s%%", num(aggregate), num(p.MaxAggregateRiskPct))
			}
			return true, ""
		}},
		{CheckDailyLoss, func(in *Input) (bool, string) {
			if in.Portfolio.DailyLossPct < p.MaxDailyLossPct {
				return true, ""
			}
			return false, fmt.Sprintf("Daily loss %s%% reached limit %s%%", num(in.Portfolio.DailyLossPct), num(p.MaxDailyLossPct))
		}},
		{CheckOpenPositions, func(in *Input) (bool, string) {
			if in.Portfolio.OpenPositionCount < p.MaxOpenPositions {
				return true, ""
			}
			return false, fmt.Sprintf("Open positions %d at maximum %d", in.Portfolio.OpenPositionCount, p.MaxOpenPositions)
		}},
		{CheckSymbolCooldown, func(in *Input) (bool, string) {
			last := in.Portfolio.LastTradeTime
			if !last.IsZero() {
				if elapsed := in.Now.Sub(last); elapsed < p.SymbolCooldown {
					remaining := (p.SymbolCooldown - elapsed).Round(time.Second)
					return false, fmt.Sprintf("Symbol %s in cooldown for another %s", in.Symbol, remaining)
				}
			}
			if in.Portfolio.TradesToday >= p.MaxTradesPerSymbolPerDay {
				return false, fmt.Sprintf("Symbol %s traded %d times today, limit %d", in.Symbol, in.Portfolio.TradesToday, p.MaxTradesPerSymbolPerDay)
			}
			return true, ""
		}},
	}

	registry := make(map[string]Check, len(list))
	for _, c := range list {
		registry[c.name] = c
	}
	return registry
}

// num formats a value with at most two decimals and no trailing zeros.
func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

func regimeName(r domain.Regime) string {
	if r == "" {
		return string(domain.RegimeUnknown)
	}
	return string(r)
}
