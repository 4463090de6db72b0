package domain

import (
	"encoding/json"
	"time"
)

// Decision is the outcome of a trade evaluation: exactly one of *TradeOrder or *HoldResult.
type Decision interface {
	ValidationPassed() bool
	DecisionSymbol() string
	isDecision()
}

// TradeOrder is an executable trade produced only when every validation check passed.
type TradeOrder struct {
	TradeID       string       `json:"trade_id"`
	Signal        Signal       `json:"signal"`
	EntryPrice    float64      `json:"entry_price"`
	UseLimitOrder bool         `json:"use_limit_order"`
	Stop          StopPlan     `json:"stop"`
	Targets       TargetPlan   `json:"targets"`
	Trailing      TrailingRule `json:"trailing"`
	Sizing        SizingResult `json:"sizing"`
	CreatedAt     time.Time    `json:"created_at"`
}

func (*TradeOrder) isDecision() {}

// ValidationPassed is always true for a trade order.
func (*TradeOrder) ValidationPassed() bool { return true }

// DecisionSymbol returns the traded symbol.
func (o *TradeOrder) DecisionSymbol() string { return o.Signal.Symbol }

// MarshalJSON flattens the order into the executable trade record. The nested
// plans are kept as detail keys.
func (o *TradeOrder) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Action           string       `json:"action"`
		TradeID          string       `json:"trade_id"`
		Symbol           string       `json:"symbol"`
		Direction        Direction    `json:"direction"`
		EntryPrice       float64      `json:"entry_price"`
		EntryType        EntryType    `json:"entry_type"`
		UseLimitOrder    bool         `json:"use_limit_order"`
		Quantity         int64        `json:"quantity"`
		StopLoss         float64      `json:"stop_loss"`
		StopMethod       StopBasis    `json:"stop_method"`
		Targets          []Target     `json:"targets"`
		Confidence       float64      `json:"confidence"`
		RiskReward       float64      `json:"risk_reward"`
		CapitalRequired  float64      `json:"capital_required"`
		RiskAmount       float64      `json:"risk_amount"`
		RiskPct          float64      `json:"risk_pct"`
		Regime           Regime       `json:"regime"`
		Reasoning        string       `json:"reasoning"`
		ValidationPassed bool         `json:"validation_passed"`
		Stop             StopPlan     `json:"stop"`
		Trailing         TrailingRule `json:"trailing"`
		Sizing           SizingResult `json:"sizing"`
		Signal           Signal       `json:"signal"`
		CreatedAt        time.Time    `json:"created_at"`
	}{
		Action:           "EXECUTE_TRADE",
		TradeID:          o.TradeID,
		Symbol:           o.Signal.Symbol,
		Direction:        o.Signal.Direction,
		EntryPrice:       o.EntryPrice,
		EntryType:        o.Signal.EntryType,
		UseLimitOrder:    o.UseLimitOrder,
		Quantity:         o.Sizing.Quantity,
		StopLoss:         o.Stop.Price,
		StopMethod:       o.Stop.Basis,
		Targets:          o.Targets.Targets,
		Confidence:       o.Signal.Confidence,
		RiskReward:       o.Targets.RiskReward(),
		CapitalRequired:  o.Sizing.CapitalRequired,
		RiskAmount:       o.Sizing.RiskAmount,
		RiskPct:          o.Sizing.RiskPct,
		Regime:           o.Signal.Regime,
		Reasoning:        o.Signal.Summary(),
		ValidationPassed: true,
		Stop:             o.Stop,
		Trailing:         o.Trailing,
		Sizing:           o.Sizing,
		Signal:           o.Signal,
		CreatedAt:        o.CreatedAt,
	})
}

// HoldResult records why no trade was taken.
type HoldResult struct {
	Symbol      string    `json:"symbol"`
	TradeID     string    `json:"trade_id,omitempty"` // Set when a rejected lifecycle record was kept
	Reason      string    `json:"reason"`
	FailedCheck string    `json:"failed_check,omitempty"`
	Signal      *Signal   `json:"signal,omitempty"` // Present when the evaluation got as far as classification
	CreatedAt   time.Time `json:"created_at"`
}

func (*HoldResult) isDecision() {}

// ValidationPassed is always false for a hold.
func (*HoldResult) ValidationPassed() bool { return false }

// DecisionSymbol returns the evaluated symbol.
func (h *HoldResult) DecisionSymbol() string { return h.Symbol }

// MarshalJSON adds the discriminating fields to the serialized hold.
func (h *HoldResult) MarshalJSON() ([]byte, error) {
	type alias HoldResult
	return json.Marshal(struct {
		Action           string    `json:"action"`
		Direction        Direction `json:"direction"`
		ValidationPassed bool      `json:"validation_passed"`
		*alias
	}{
		Action:           "HOLD",
		Direction:        Hold,
		ValidationPassed: false,
		alias:            (*alias)(h),
	})
}
