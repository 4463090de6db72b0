package domain

import "time"

// LifecycleState is a state of the trade lifecycle machine.
type LifecycleState string

const (
	StateSignalGenerated LifecycleState = "SIGNAL_GENERATED"
	StateValidated       LifecycleState = "VALIDATED"
	StateRejected        LifecycleState = "REJECTED"
	StateEntryPending    LifecycleState = "ENTRY_PENDING"
	StateEntered         LifecycleState = "ENTERED"
	StateMonitoring      LifecycleState = "MONITORING"
	StatePartialExit1    LifecycleState = "PARTIAL_EXIT_1"
	StatePartialExit2    LifecycleState = "PARTIAL_EXIT_2"
	StateTrailing        LifecycleState = "TRAILING"
	StateExited          LifecycleState = "EXITED"
)

// IsTerminal reports whether no further transitions are possible.
func (s LifecycleState) IsTerminal() bool {
	return s == StateExited || s == StateRejected
}

// IsOpen reports whether the position holds filled quantity.
func (s LifecycleState) IsOpen() bool {
	switch s {
	case StateEntered, StateMonitoring, StatePartialExit1, StatePartialExit2, StateTrailing:
		return true
	}
	return false
}

// EventKind identifies a lifecycle event.
type EventKind string

const (
	EventValidated      EventKind = "validated"
	EventRejected       EventKind = "rejected"
	EventOrderPlaced    EventKind = "order_placed"
	EventOrderFilled    EventKind = "order_filled"
	EventOrderCancelled EventKind = "order_cancelled"
	EventPriceTick      EventKind = "price_tick"
	EventTargetHit      EventKind = "target_hit"
	EventStopHit        EventKind = "stop_hit"
	EventTrailStopHit   EventKind = "trail_stop_hit"
)

// Event is an external or internal stimulus for a lifecycle record.
type Event struct {
	Kind   EventKind `json:"kind"`
	Price  float64   `json:"price,omitempty"`  // Fill, tick or exit price
	Target int       `json:"target,omitempty"` // 1-based target index for target_hit
	Note   string    `json:"note,omitempty"`
	At     time.Time `json:"at"`
}

// ExitReason explains why quantity left the position.
type ExitReason string

const (
	ExitTarget    ExitReason = "TARGET"
	ExitStopLoss  ExitReason = "STOP_LOSS"
	ExitTrailStop ExitReason = "TRAIL_STOP"
	ExitCancelled ExitReason = "CANCELLED"
)

// StateChange is one immutable entry of a record's history.
type StateChange struct {
	State     LifecycleState `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
	Note      string         `json:"note"`
	Quantity  int64          `json:"quantity,omitempty"` // Quantity closed by this transition
	Price     float64        `json:"price,omitempty"`    // Price the quantity closed at
	Exit      ExitReason     `json:"exit,omitempty"`
}

// LifecycleRecord tracks one trade from signal to closure.
type LifecycleRecord struct {
	TradeID      string         `json:"trade_id"`
	Symbol       string         `json:"symbol"`
	Direction    Direction      `json:"direction"`
	CurrentState LifecycleState `json:"current_state"`
	History      []StateChange  `json:"state_history"`

	EntryPrice   float64      `json:"entry_price"`
	Quantity     int64        `json:"quantity"`
	Remaining    int64        `json:"remaining"`
	RealizedPnL  float64      `json:"realized_pnl"`
	StopPrice    float64      `json:"stop_price"`
	TrailingStop float64      `json:"trailing_stop,omitempty"`
	NextTarget   int          `json:"next_target"` // 1-based index of the next target to hit
	Targets      TargetPlan   `json:"targets"`
	Trailing     TrailingRule `json:"trailing"`
	HighestPrice float64      `json:"highest_price,omitempty"`
	LowestPrice  float64      `json:"lowest_price,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers never alias the manager's state.
func (r *LifecycleRecord) Clone() LifecycleRecord {
	c := *r
	c.History = append([]StateChange(nil), r.History...)
	c.Targets.Targets = append([]Target(nil), r.Targets.Targets...)
	return c
}

// ActiveStop returns the stop currently protecting the open quantity.
func (r *LifecycleRecord) ActiveStop() float64 {
	if r.TrailingStop <= 0 {
		return r.StopPrice
	}
	if r.Direction == Sell {
		if r.TrailingStop < r.StopPrice {
			return r.TrailingStop
		}
		return r.StopPrice
	}
	if r.TrailingStop > r.StopPrice {
		return r.TrailingStop
	}
	return r.StopPrice
}
