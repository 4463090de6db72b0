package analytics

import (
	"math"
	"sort"
	"time"

	"tradeGate/internal/domain"
)

// Summary holds performance metrics over closed trades
type Summary struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	Cancelled     int     // Entries that never filled; excluded from every other metric
	WinRate       float64 // Percent
	TotalPnL      float64
	AveragePnL    float64
	AverageWin    float64
	AverageLoss   float64
	ProfitFactor  float64 // Gross profit over gross loss
	Expectancy    float64
	MaxDrawdown   float64 // Percent of peak equity

	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	AverageTradeDuration time.Duration
	ByExitReason         map[domain.ExitReason]int
	EquityCurve          []EquityPoint
}

// EquityPoint represents a point on the equity curve
type EquityPoint struct {
	Time     time.Time
	Value    float64
	Drawdown float64 // Percent below the running peak
}

// Summarize computes performance metrics from closed trades, ordered by exit time.
// initialCapital anchors the equity curve; drawdown is zero when it is not positive.
func Summarize(trades []*domain.ClosedTrade, initialCapital float64) *Summary {
	s := &Summary{ByExitReason: make(map[domain.ExitReason]int)}

	filled := make([]*domain.ClosedTrade, 0, len(trades))
	for _, t := range trades {
		if t == nil || t.FinalState != domain.StateExited {
			continue
		}
		if t.ExitReason == domain.ExitCancelled {
			s.Cancelled++
			continue
		}
		filled = append(filled, t)
	}
	if len(filled) == 0 {
		return s
	}

	sort.SliceStable(filled, func(i, j int) bool {
		return filled[i].ExitTime.Before(filled[j].ExitTime)
	})

	var grossProfit, grossLoss float64
	var consecutiveWins, consecutiveLosses int
	var totalDuration time.Duration
	equity, peak := initialCapital, initialCapital

	for _, t := range filled {
		s.TotalTrades++
		s.TotalPnL += t.PNL
		s.ByExitReason[t.ExitReason]++
		totalDuration += t.ExitTime.Sub(t.EntryTime)

		if t.PNL > 0 {
			s.WinningTrades++
			grossProfit += t.PNL
			consecutiveWins++
			consecutiveLosses = 0
		} else {
			s.LosingTrades++
			grossLoss += -t.PNL
			consecutiveLosses++
			consecutiveWins = 0
		}
		if consecutiveWins > s.MaxConsecutiveWins {
			s.MaxConsecutiveWins = consecutiveWins
		}
		if consecutiveLosses > s.MaxConsecutiveLosses {
			s.MaxConsecutiveLosses = consecutiveLosses
		}

		equity += t.PNL
		peak = math.Max(peak, equity)
		var dd float64
		if peak > 0 {
			dd = (peak - equity) / peak * 100
		}
		s.MaxDrawdown = math.Max(s.MaxDrawdown, dd)
		s.EquityCurve = append(s.EquityCurve, EquityPoint{Time: t.ExitTime, Value: equity, Drawdown: dd})
	}

	n := float64(s.TotalTrades)
	s.WinRate = float64(s.WinningTrades) / n * 100
	s.AveragePnL = s.TotalPnL / n
	s.AverageTradeDuration = totalDuration / time.Duration(s.TotalTrades)
	if s.WinningTrades > 0 {
		s.AverageWin = grossProfit / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AverageLoss = -grossLoss / float64(s.LosingTrades)
	}
	if grossLoss > 0 {
		s.ProfitFactor = grossProfit / grossLoss
	}
	winShare := s.WinRate / 100
	s.Expectancy = winShare*s.AverageWin + (1-winShare)*s.AverageLoss
	return s
}
