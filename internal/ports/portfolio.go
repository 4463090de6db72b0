package ports

import (
	"context"
	"time"

	"tradeGate/internal/domain"
)

// PortfolioSnapshot is a consistent, versioned view of portfolio state for one symbol.
type PortfolioSnapshot struct {
	Version           uint64
	TakenAt           time.Time
	TotalCapital      float64
	AvailableCapital  float64
	OpenRisk          float64 // Sum of risk attributed to open positions
	OpenPositionCount int
	DailyLossPct      float64 // Realized loss today as a percentage of start-of-day capital
	Symbol            string
	LastTradeTime     time.Time // Zero when the symbol has not traded
	TradesToday       int
}

// Reservation commits capital and a position slot for a validated trade.
type Reservation struct {
	TradeID         string
	Symbol          string
	Direction       domain.Direction
	EntryPrice      float64
	Quantity        int64
	Capital         float64
	Risk            float64
	ExpectedVersion uint64 // Version of the snapshot the checks ran against
	At              time.Time
}

// Portfolio is the transactional portfolio/risk collaborator.
type Portfolio interface {
	// Snapshot returns a consistent view used by the capital and risk checks.
	Snapshot(ctx context.Context, symbol string) (PortfolioSnapshot, error)

	// Reserve atomically commits the reservation if the portfolio is still at
	// ExpectedVersion. It returns an error wrapping ErrResourceContention otherwise.
	Reserve(ctx context.Context, r Reservation) error

	// Fill re-bases a reserved trade on its actual entry price.
	Fill(ctx context.Context, tradeID string, price float64) error

	// Settle closes quantity of a reserved trade at price and returns the realized P&L.
	Settle(ctx context.Context, tradeID string, quantity int64, price float64) (float64, error)

	// Release returns the capital of a trade that never filled.
	Release(ctx context.Context, tradeID string) error
}
