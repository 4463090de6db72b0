package indicators

import (
	"context"
	"fmt"

	"tradeGate/internal/domain"
)

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	// SimpleMovingAverage represents a simple moving average
	SimpleMovingAverage MovingAverageType = "SMA"
	// ExponentialMovingAverage represents an exponential moving average
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage implements both SMA and EMA indicators
type MovingAverage struct {
	BaseIndicator
	config MovingAverageConfig
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// NewEMA is shorthand for an exponential moving average of period.
func NewEMA(period int) *MovingAverage {
	return NewMovingAverage(MovingAverageConfig{
		IndicatorConfig: IndicatorConfig{Period: period},
		Type:            ExponentialMovingAverage,
	})
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return fmt.Sprintf("%s%d", m.config.Type, m.Config.Period)
}

// Calculate computes the moving average value based on the configured type
func (m *MovingAverage) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	switch m.config.Type {
	case SimpleMovingAverage:
		return m.calculateSMA(klines)
	case ExponentialMovingAverage:
		series, err := emaSeries(closes(klines), m.Config.Period)
		if err != nil {
			return 0, err
		}
		return series[len(series)-1], nil
	default:
		return 0, fmt.Errorf("unsupported moving average type: %s", m.config.Type)
	}
}

func (m *MovingAverage) calculateSMA(klines []*domain.Kline) (float64, error) {
	if m.Config.Period <= 0 || len(klines) < m.Config.Period {
		return 0, fmt.Errorf("not enough data (%d) to calculate SMA for period %d", len(klines), m.Config.Period)
	}

	total := 0.0
	for i := len(klines) - m.Config.Period; i < len(klines); i++ {
		total += klines[i].Close
	}
	return total / float64(m.Config.Period), nil
}
