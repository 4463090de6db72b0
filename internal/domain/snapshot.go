package domain

import "time"

// Breakout describes a recent break of a structure level.
// A zero Level means no breakout was detected.
type Breakout struct {
	Level           float64   `json:"level"`
	Direction       Direction `json:"direction"`
	VolumeConfirmed bool      `json:"volume_confirmed"`
}

// IndicatorSnapshot is an immutable bundle of indicator values for one symbol and timeframe.
type IndicatorSnapshot struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Timestamp time.Time `json:"timestamp"`
	Bars      int       `json:"bars"` // Number of candles the snapshot was computed from

	Close float64 `json:"close"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`

	EMA9   float64 `json:"ema9"`
	EMA21  float64 `json:"ema21"`
	EMA50  float64 `json:"ema50"`
	EMA200 float64 `json:"ema200"`
	VWAP   float64 `json:"vwap"`

	RSI           float64 `json:"rsi"`
	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macd_signal"`
	MACDHistogram float64 `json:"macd_histogram"`

	ATR           float64 `json:"atr"`
	ATRPercentile float64 `json:"atr_percentile"` // Rank (0-100) of the current ATR in its trailing distribution
	ADX           float64 `json:"adx"`
	PlusDI        float64 `json:"plus_di"`
	MinusDI       float64 `json:"minus_di"`

	BollingerUpper  float64 `json:"bollinger_upper"`
	BollingerMiddle float64 `json:"bollinger_middle"`
	BollingerLower  float64 `json:"bollinger_lower"`

	SwingHigh  float64   `json:"swing_high"`  // 20-bar extreme
	SwingLow   float64   `json:"swing_low"`   // 20-bar extreme
	RecentHigh float64   `json:"recent_high"` // 5-bar extreme
	RecentLow  float64   `json:"recent_low"`  // 5-bar extreme
	Support    []float64 `json:"support"`     // Below price, nearest first
	Resistance []float64 `json:"resistance"`  // Above price, nearest first

	Volume    float64  `json:"volume"`
	AvgVolume float64  `json:"avg_volume"`
	Breakout  Breakout `json:"breakout"`
}

// HasBreakout reports whether a breakout level was detected.
func (s IndicatorSnapshot) HasBreakout() bool {
	return s.Breakout.Level > 0 && s.Breakout.Direction.IsTradable()
}

// VolumeRatio returns current volume relative to the average, 0 when no average exists.
func (s IndicatorSnapshot) VolumeRatio() float64 {
	if s.AvgVolume <= 0 {
		return 0
	}
	return s.Volume / s.AvgVolume
}

// StructureLevels returns the levels lying in the profit direction of a trade.
func (s IndicatorSnapshot) StructureLevels(dir Direction) []float64 {
	switch dir {
	case Buy:
		return s.Resistance
	case Sell:
		return s.Support
	default:
		return nil
	}
}
