package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tradeGate/internal/domain"
)

func closed(id string, pnl float64, reason domain.ExitReason, exit time.Time) *domain.ClosedTrade {
	return &domain.ClosedTrade{
		TradeID: id, Symbol: "BTCUSDT", Direction: domain.Buy, EntryPrice: 100, Quantity: 10,
		PNL: pnl, FinalState: domain.StateExited, ExitReason: reason,
		EntryTime: exit.Add(-2 * time.Hour), ExitTime: exit,
	}
}

func TestSummarize(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	trades := []*domain.ClosedTrade{
		closed("c", -500, domain.ExitStopLoss, base.Add(3*time.Hour)),
		closed("a", 1000, domain.ExitTarget, base.Add(time.Hour)),
		closed("b", 300, domain.ExitTrailStop, base.Add(2*time.Hour)),
		closed("d", -200, domain.ExitStopLoss, base.Add(4*time.Hour)),
		closed("x", 0, domain.ExitCancelled, base.Add(5*time.Hour)),
		{TradeID: "r", FinalState: domain.StateRejected},
	}

	s := Summarize(trades, 10000)

	assert.Equal(t, 4, s.TotalTrades)
	assert.Equal(t, 2, s.WinningTrades)
	assert.Equal(t, 2, s.LosingTrades)
	assert.Equal(t, 1, s.Cancelled)
	assert.Equal(t, 50.0, s.WinRate)
	assert.Equal(t, 600.0, s.TotalPnL)
	assert.Equal(t, 150.0, s.AveragePnL)
	assert.Equal(t, 650.0, s.AverageWin)
	assert.Equal(t, -350.0, s.AverageLoss)
	assert.InDelta(t, 1300.0/700.0, s.ProfitFactor, 1e-9)
	assert.InDelta(t, 150, s.Expectancy, 1e-9)
	assert.Equal(t, 2, s.MaxConsecutiveWins)
	assert.Equal(t, 2, s.MaxConsecutiveLosses)
	assert.Equal(t, 2*time.Hour, s.AverageTradeDuration)
	assert.Equal(t, map[domain.ExitReason]int{
		domain.ExitTarget: 1, domain.ExitTrailStop: 1, domain.ExitStopLoss: 2,
	}, s.ByExitReason)

	// Equity peaks at 11300 after "b", then falls to 10600.
	assert.InDelta(t, 700.0/11300.0*100, s.MaxDrawdown, 1e-9)
	if assert.Len(t, s.EquityCurve, 4) {
		assert.Equal(t, 11000.0, s.EquityCurve[0].Value)
		assert.Equal(t, 10600.0, s.EquityCurve[3].Value)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, 10000)
	assert.Equal(t, 0, s.TotalTrades)
	assert.Equal(t, 0.0, s.WinRate)
	assert.Empty(t, s.EquityCurve)
	assert.NotNil(t, s.ByExitReason)
}
