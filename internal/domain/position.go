package domain

import "time"

// Position is the ledger's view of capital committed to an open trade.
type Position struct {
	TradeID    string
	Symbol     string
	Direction  Direction
	EntryPrice float64
	Quantity   int64   // Remaining open quantity
	Initial    int64   // Quantity at reservation
	Risk       float64 // Open risk attributed to the remaining quantity
	OpenedAt   time.Time
}

// IsOpen checks if the position still holds quantity.
func (p *Position) IsOpen() bool {
	return p.Quantity > 0
}
