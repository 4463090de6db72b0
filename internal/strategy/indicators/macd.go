package indicators

import (
	"context"
	"fmt"

	"tradeGate/internal/domain"
)

// MACDConfig holds the three MACD periods.
type MACDConfig struct {
	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int
}

// MACDValue is the latest MACD line, signal line and histogram.
type MACDValue struct {
	Line      float64
	Signal    float64
	Histogram float64
}

// MACD implements Moving Average Convergence Divergence.
type MACD struct {
	config MACDConfig
}

// NewMACD creates a new MACD indicator instance
func NewMACD(config MACDConfig) *MACD {
	return &MACD{config: config}
}

// Name returns the name of the indicator
func (m *MACD) Name() string {
	return "MACD"
}

// RequiredDataPoints returns the minimum number of klines needed for calculation
func (m *MACD) RequiredDataPoints() int {
	return m.config.SlowPeriod + m.config.SignalPeriod - 1
}

// Calculate returns the MACD histogram
func (m *MACD) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	v, err := m.Values(klines)
	if err != nil {
		return 0, err
	}
	return v.Histogram, nil
}

// Values computes line, signal and histogram for the latest kline.
func (m *MACD) Values(klines []*domain.Kline) (MACDValue, error) {
	if m.config.FastPeriod <= 0 || m.config.FastPeriod >= m.config.SlowPeriod || m.config.SignalPeriod <= 0 {
		return MACDValue{}, fmt.Errorf("invalid MACD periods %d/%d/%d", m.config.FastPeriod, m.config.SlowPeriod, m.config.SignalPeriod)
	}
	if len(klines) < m.RequiredDataPoints() {
		return MACDValue{}, fmt.Errorf("not enough data (%d) to calculate MACD: need %d", len(klines), m.RequiredDataPoints())
	}

	prices := closes(klines)
	fast, err := emaSeries(prices, m.config.FastPeriod)
	if err != nil {
		return MACDValue{}, err
	}
	slow, err := emaSeries(prices, m.config.SlowPeriod)
	if err != nil {
		return MACDValue{}, err
	}

	// Align the fast series with the slow one, which starts later.
	offset := m.config.SlowPeriod - m.config.FastPeriod
	line := make([]float64, len(slow))
	for i := range slow {
		line[i] = fast[i+offset] - slow[i]
	}

	signal, err := emaSeries(line, m.config.SignalPeriod)
	if err != nil {
		return MACDValue{}, err
	}

	last := line[len(line)-1]
	lastSignal := signal[len(signal)-1]
	return MACDValue{Line: last, Signal: lastSignal, Histogram: last - lastSignal}, nil
}
