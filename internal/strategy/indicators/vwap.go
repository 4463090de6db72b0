package indicators

import (
	"context"
	"fmt"

	"tradeGate/internal/domain"
)

// VWAP implements the volume weighted average price over a rolling window.
// A period of 0 uses every kline supplied.
type VWAP struct {
	BaseIndicator
}

// NewVWAP creates a new VWAP indicator instance
func NewVWAP(period int) *VWAP {
	return &VWAP{BaseIndicator: BaseIndicator{Config: IndicatorConfig{Period: period}}}
}

// Name returns the name of the indicator
func (v *VWAP) Name() string {
	return "VWAP"
}

// Calculate computes the VWAP from typical price and volume
func (v *VWAP) Calculate(ctx context.Context, klines []*domain.Kline) (float64, error) {
	if len(klines) == 0 || len(klines) < v.Config.Period {
		return 0, fmt.Errorf("not enough data (%d) to calculate VWAP for period %d", len(klines), v.Config.Period)
	}
	window := klines
	if v.Config.Period > 0 {
		window = klines[len(klines)-v.Config.Period:]
	}

	var pv, volume float64
	for _, k := range window {
		typical := k.TypicalPrice()
		pv += typical * k.Volume
		volume += k.Volume
	}
	if volume <= 0 {
		return 0, fmt.Errorf("cannot calculate VWAP: no traded volume in window")
	}
	return pv / volume, nil
}
