package domain

import "time"

// Kline is one OHLCV candle of a symbol on a timeframe.
type Kline struct {
	OpenTime  time.Time
	CloseTime time.Time
	Symbol    string
	Interval  string // Timeframe, e.g. "5m" or "1h"
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	IsFinal   bool // False while the candle is still forming
}

// TypicalPrice is the mean of high, low and close.
func (k *Kline) TypicalPrice() float64 {
	return (k.High + k.Low + k.Close) / 3
}
