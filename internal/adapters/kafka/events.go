package kafka

import (
	"time"

	"tradeGate/internal/domain"
)

const (
	eventSource   = "trade-gate"
	schemaVersion = "1.0"

	EventTypeDecision   = "trade_decision"
	EventTypeTransition = "lifecycle_transition"

	// SignalWatch is published for holds.
	SignalWatch = "WATCH"
)

// DecisionEvent is the envelope of a published decision.
type DecisionEvent struct {
	EventType     string       `json:"event_type"`
	Source        string       `json:"source"`
	SchemaVersion string       `json:"schema_version"`
	Timestamp     time.Time    `json:"timestamp"`
	Data          DecisionData `json:"data"`
}

// DecisionData carries the decision itself.
type DecisionData struct {
	Symbol             string                 `json:"symbol"`
	Signal             string                 `json:"signal"` // BUY, SELL, WATCH
	Confidence         float64                `json:"confidence"`
	PrimaryReasoning   string                 `json:"primary_reasoning"`
	RulesTriggered     []RuleResult           `json:"rules_triggered"`
	IndicatorsSnapshot map[string]float64     `json:"indicators_snapshot"`
	Metadata           map[string]interface{} `json:"metadata"`
}

// RuleResult is one reasoning fragment of the decision.
type RuleResult struct {
	RuleName   string  `json:"rule_name"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// TransitionEvent is the envelope of a published lifecycle transition.
type TransitionEvent struct {
	EventType     string         `json:"event_type"`
	Source        string         `json:"source"`
	SchemaVersion string         `json:"schema_version"`
	Timestamp     time.Time      `json:"timestamp"`
	Data          TransitionData `json:"data"`
}

// TransitionData describes one state change of a trade.
type TransitionData struct {
	TradeID     string                `json:"trade_id"`
	Symbol      string                `json:"symbol"`
	Direction   domain.Direction      `json:"direction"`
	State       domain.LifecycleState `json:"state"`
	Note        string                `json:"note"`
	Quantity    int64                 `json:"quantity,omitempty"`
	Price       float64               `json:"price,omitempty"`
	Exit        domain.ExitReason     `json:"exit,omitempty"`
	Remaining   int64                 `json:"remaining"`
	RealizedPnL float64               `json:"realized_pnl"`
	ActiveStop  float64               `json:"active_stop"`
}

func newDecisionEvent(d domain.Decision) DecisionEvent {
	var data DecisionData
	var at time.Time
	switch v := d.(type) {
	case *domain.TradeOrder:
		at = v.CreatedAt
		data = DecisionData{
			Symbol:           v.Signal.Symbol,
			Signal:           string(v.Signal.Direction),
			Confidence:       v.Signal.Confidence,
			PrimaryReasoning: v.Signal.Summary(),
			RulesTriggered:   rules(v.Signal),
			IndicatorsSnapshot: map[string]float64{
				"entry_price":       v.EntryPrice,
				"stop_price":        v.Stop.Price,
				"stop_distance_pct": v.Stop.DistancePct,
				"risk_reward":       v.Targets.RiskReward(),
				"risk_pct":          v.Sizing.RiskPct,
				"quantity":          float64(v.Sizing.Quantity),
			},
			Metadata: map[string]interface{}{
				"action":          "EXECUTE_TRADE",
				"trade_id":        v.TradeID,
				"regime":          v.Signal.Regime,
				"entry_type":      v.Signal.EntryType,
				"use_limit_order": v.UseLimitOrder,
				"targets":         v.Targets.Targets,
			},
		}
	case *domain.HoldResult:
		at = v.CreatedAt
		data = DecisionData{
			Symbol:             v.Symbol,
			Signal:             SignalWatch,
			PrimaryReasoning:   v.Reason,
			IndicatorsSnapshot: map[string]float64{},
			Metadata: map[string]interface{}{
				"action":       "HOLD",
				"failed_check": v.FailedCheck,
			},
		}
		if v.TradeID != "" {
			data.Metadata["trade_id"] = v.TradeID
		}
		if v.Signal != nil {
			data.Confidence = v.Signal.Confidence
			data.RulesTriggered = rules(*v.Signal)
			data.Metadata["regime"] = v.Signal.Regime
		}
	}
	return DecisionEvent{
		EventType:     EventTypeDecision,
		Source:        eventSource,
		SchemaVersion: schemaVersion,
		Timestamp:     at.UTC(),
		Data:          data,
	}
}

// ruleNames labels the reasoning fragments in the order the engine appends them.
var ruleNames = []string{"regime", "alignment", "confidence", "entry", "stop", "risk_reward", "sizing"}

func rules(s domain.Signal) []RuleResult {
	out := make([]RuleResult, 0, len(s.Reasoning))
	for i, r := range s.Reasoning {
		name := "note"
		if i < len(ruleNames) {
			name = ruleNames[i]
		}
		out = append(out, RuleResult{RuleName: name, Confidence: s.Confidence, Reasoning: r})
	}
	return out
}

func newTransitionEvent(rec domain.LifecycleRecord, c domain.StateChange) TransitionEvent {
	return TransitionEvent{
		EventType:     EventTypeTransition,
		Source:        eventSource,
		SchemaVersion: schemaVersion,
		Timestamp:     c.Timestamp.UTC(),
		Data: TransitionData{
			TradeID:     rec.TradeID,
			Symbol:      rec.Symbol,
			Direction:   rec.Direction,
			State:       c.State,
			Note:        c.Note,
			Quantity:    c.Quantity,
			Price:       c.Price,
			Exit:        c.Exit,
			Remaining:   rec.Remaining,
			RealizedPnL: rec.RealizedPnL,
			ActiveStop:  rec.ActiveStop(),
		},
	}
}
