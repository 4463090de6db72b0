package portfolio

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradeGate/internal/domain"
	"tradeGate/internal/ports"
)

// Stats holds ledger statistics
type Stats struct {
	Capital       float64
	Available     float64
	RealizedPnL   float64
	DailyPnL      float64
	OpenPositions int
	TotalExposure float64 // Capital committed to open positions
	DailyTrades   int
	LastResetTime time.Time
}

type position struct {
	domain.Position
	riskPerUnit decimal.Decimal
}

// Ledger is an in-memory transactional portfolio. Every mutation bumps the version,
// so a reservation made against a stale snapshot is refused.
type Ledger struct {
	mu          sync.Mutex
	version     uint64
	capital     decimal.Decimal
	available   decimal.Decimal
	realized    decimal.Decimal
	dayStart    decimal.Decimal
	dailyPnL    decimal.Decimal
	day         string
	lastReset   time.Time
	positions   map[string]*position
	lastTrade   map[string]time.Time
	tradesToday map[string]int
	logger      ports.Logger
	now         func() time.Time
}

var _ ports.Portfolio = (*Ledger)(nil)

// NewLedger creates a ledger holding initialCapital. A nil clock uses time.Now.
func NewLedger(initialCapital float64, logger ports.Logger, clock func() time.Time) (*Ledger, error) {
	if initialCapital <= 0 {
		return nil, fmt.Errorf("%w: initial capital must be positive", ports.ErrConfigurationError)
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for ledger")
	}
	if clock == nil {
		clock = time.Now
	}
	capital := decimal.NewFromFloat(initialCapital)
	now := clock()
	return &Ledger{
		version:     1,
		capital:     capital,
		available:   capital,
		dayStart:    capital,
		day:         dayKey(now),
		lastReset:   now,
		positions:   make(map[string]*position),
		lastTrade:   make(map[string]time.Time),
		tradesToday: make(map[string]int),
		logger:      logger,
		now:         clock,
	}, nil
}

// Snapshot returns a consistent, versioned view of the ledger for symbol.
func (l *Ledger) Snapshot(ctx context.Context, symbol string) (ports.PortfolioSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return ports.PortfolioSnapshot{}, fmt.Errorf("%w: %v", ports.ErrContextCanceled, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.rollDay(ctx, now)

	openRisk := decimal.Zero
	open := 0
	for _, p := range l.positions {
		if p.IsOpen() {
			open++
			openRisk = openRisk.Add(p.riskPerUnit.Mul(decimal.NewFromInt(p.Quantity)))
		}
	}

	return ports.PortfolioSnapshot{
		Version:           l.version,
		TakenAt:           now,
		TotalCapital:      l.capital.InexactFloat64(),
		AvailableCapital:  l.available.InexactFloat64(),
		OpenRisk:          openRisk.InexactFloat64(),
		OpenPositionCount: open,
		DailyLossPct:      l.dailyLossPct(),
		Symbol:            symbol,
		LastTradeTime:     l.lastTrade[symbol],
		TradesToday:       l.tradesToday[symbol],
	}, nil
}

// Reserve commits capital, a position slot and the symbol's trade counter.
func (l *Ledger) Reserve(ctx context.Context, r ports.Reservation) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrContextCanceled, err)
	}
	if r.TradeID == "" || r.Quantity <= 0 || r.EntryPrice <= 0 {
		return fmt.Errorf("%w: reservation needs a trade ID, quantity and entry price", ports.ErrInvalidRequest)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDay(ctx, l.now())

	if r.ExpectedVersion != l.version {
		return fmt.Errorf("%w: snapshot version %d, ledger at %d", ports.ErrResourceContention, r.ExpectedVersion, l.version)
	}
	if _, ok := l.positions[r.TradeID]; ok {
		return fmt.Errorf("%w: trade %s already reserved", ports.ErrDuplicateEntry, r.TradeID)
	}

	qty := decimal.NewFromInt(r.Quantity)
	committed := decimal.NewFromFloat(r.EntryPrice).Mul(qty)
	if committed.GreaterThan(l.available) {
		return fmt.Errorf("%w: need %s, available %s", ports.ErrInsufficientFunds, committed.StringFixed(2), l.available.StringFixed(2))
	}

	at := r.At
	if at.IsZero() {
		at = l.now()
	}
	l.positions[r.TradeID] = &position{
		Position: domain.Position{
			TradeID:    r.TradeID,
			Symbol:     r.Symbol,
			Direction:  r.Direction,
			EntryPrice: r.EntryPrice,
			Quantity:   r.Quantity,
			Initial:    r.Quantity,
			Risk:       r.Risk,
			OpenedAt:   at,
		},
		riskPerUnit: decimal.NewFromFloat(r.Risk).Div(qty),
	}
	l.available = l.available.Sub(committed)
	l.lastTrade[r.Symbol] = at
	l.tradesToday[r.Symbol]++
	l.version++

	l.logger.Info(ctx, "Capital reserved", map[string]interface{}{
		"tradeID":   r.TradeID,
		"symbol":    r.Symbol,
		"committed": committed.StringFixed(2),
		"available": l.available.StringFixed(2),
		"version":   l.version,
	})
	return nil
}

// Fill moves a reservation from the planned entry to the fill price. Committed
// capital follows the fill, so later settlements book P&L against what was paid.
func (l *Ledger) Fill(ctx context.Context, tradeID string, price float64) error {
	if price <= 0 {
		return fmt.Errorf("%w: fill needs a positive price", ports.ErrInvalidRequest)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[tradeID]
	if !ok {
		return fmt.Errorf("%w: no reservation for trade %s", ports.ErrNotFound, tradeID)
	}
	planned := decimal.NewFromFloat(p.EntryPrice)
	filled := decimal.NewFromFloat(price)
	if planned.Equal(filled) {
		return nil
	}

	qty := decimal.NewFromInt(p.Quantity)
	l.available = l.available.Add(planned.Sub(filled).Mul(qty))
	p.EntryPrice = price
	l.version++

	fields := map[string]interface{}{
		"tradeID":   tradeID,
		"planned":   planned.String(),
		"filled":    filled.String(),
		"available": l.available.StringFixed(2),
	}
	if l.available.IsNegative() {
		l.logger.Warn(ctx, "Fill exceeds available capital", fields)
	} else {
		l.logger.Info(ctx, "Reservation re-based on fill", fields)
	}
	return nil
}

// Settle closes quantity of a reserved trade at price and returns the realized P&L.
func (l *Ledger) Settle(ctx context.Context, tradeID string, quantity int64, price float64) (float64, error) {
	if quantity <= 0 || price <= 0 {
		return 0, fmt.Errorf("%w: settle needs a positive quantity and price", ports.ErrInvalidRequest)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollDay(ctx, l.now())

	p, ok := l.positions[tradeID]
	if !ok {
		return 0, fmt.Errorf("%w: no reservation for trade %s", ports.ErrNotFound, tradeID)
	}
	if quantity > p.Quantity {
		return 0, fmt.Errorf("%w: settling %d of %d open", ports.ErrInvalidRequest, quantity, p.Quantity)
	}

	qty := decimal.NewFromInt(quantity)
	entry := decimal.NewFromFloat(p.EntryPrice)
	pnl := decimal.NewFromFloat(price).Sub(entry).Mul(qty)
	if p.Direction == domain.Sell {
		pnl = pnl.Neg()
	}

	l.available = l.available.Add(entry.Mul(qty)).Add(pnl)
	l.capital = l.capital.Add(pnl)
	l.realized = l.realized.Add(pnl)
	l.dailyPnL = l.dailyPnL.Add(pnl)
	p.Quantity -= quantity
	p.Risk = p.riskPerUnit.Mul(decimal.NewFromInt(p.Quantity)).InexactFloat64()
	if !p.IsOpen() {
		delete(l.positions, tradeID)
	}
	l.version++

	l.logger.Info(ctx, "Position settled", map[string]interface{}{
		"tradeID":   tradeID,
		"quantity":  quantity,
		"price":     price,
		"pnl":       pnl.StringFixed(2),
		"remaining": p.Quantity,
	})
	return pnl.InexactFloat64(), nil
}

// Release returns the committed capital of a trade that will not fill any further.
func (l *Ledger) Release(ctx context.Context, tradeID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[tradeID]
	if !ok {
		return fmt.Errorf("%w: no reservation for trade %s", ports.ErrNotFound, tradeID)
	}
	released := decimal.NewFromFloat(p.EntryPrice).Mul(decimal.NewFromInt(p.Quantity))
	l.available = l.available.Add(released)
	delete(l.positions, tradeID)
	l.version++

	l.logger.Info(ctx, "Reservation released", map[string]interface{}{
		"tradeID":  tradeID,
		"released": released.StringFixed(2),
	})
	return nil
}

// ResetDailyStats starts a new trading day.
func (l *Ledger) ResetDailyStats(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetDay(ctx, l.now())
}

// GetStats returns the current ledger statistics.
func (l *Ledger) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	exposure := decimal.Zero
	open := 0
	for _, p := range l.positions {
		if p.IsOpen() {
			open++
			exposure = exposure.Add(decimal.NewFromFloat(p.EntryPrice).Mul(decimal.NewFromInt(p.Quantity)))
		}
	}
	trades := 0
	for _, n := range l.tradesToday {
		trades += n
	}
	return Stats{
		Capital:       l.capital.InexactFloat64(),
		Available:     l.available.InexactFloat64(),
		RealizedPnL:   l.realized.InexactFloat64(),
		DailyPnL:      l.dailyPnL.InexactFloat64(),
		OpenPositions: open,
		TotalExposure: exposure.InexactFloat64(),
		DailyTrades:   trades,
		LastResetTime: l.lastReset,
	}
}

// Positions returns the open positions ordered by opening time.
func (l *Ledger) Positions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p.Position)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// rollDay resets the daily counters when the UTC date changed. Callers hold l.mu.
func (l *Ledger) rollDay(ctx context.Context, now time.Time) {
	if dayKey(now) != l.day {
		l.resetDay(ctx, now)
	}
}

func (l *Ledger) resetDay(ctx context.Context, now time.Time) {
	l.day = dayKey(now)
	l.lastReset = now
	l.dayStart = l.capital
	l.dailyPnL = decimal.Zero
	l.tradesToday = make(map[string]int)
	l.version++
	l.logger.Debug(ctx, "Daily stats reset", map[string]interface{}{"day": l.day})
}

func (l *Ledger) dailyLossPct() float64 {
	if !l.dailyPnL.IsNegative() || !l.dayStart.IsPositive() {
		return 0
	}
	return l.dailyPnL.Neg().Div(l.dayStart).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
