package domain

import "time"

// ClosedTrade summarizes a lifecycle record that reached a terminal state.
type ClosedTrade struct {
	TradeID    string
	Symbol     string
	Direction  Direction
	EntryPrice float64
	Quantity   int64
	PNL        float64
	FinalState LifecycleState
	ExitReason ExitReason
	EntryTime  time.Time
	ExitTime   time.Time
}

// SummarizeRecord builds the closed-trade view of a terminal record.
func SummarizeRecord(r LifecycleRecord) ClosedTrade {
	ct := ClosedTrade{
		TradeID:    r.TradeID,
		Symbol:     r.Symbol,
		Direction:  r.Direction,
		EntryPrice: r.EntryPrice,
		Quantity:   r.Quantity,
		PNL:        r.RealizedPnL,
		FinalState: r.CurrentState,
		EntryTime:  r.CreatedAt,
		ExitTime:   r.UpdatedAt,
	}
	for _, h := range r.History {
		if h.Exit != "" {
			ct.ExitReason = h.Exit
		}
	}
	return ct
}
