package ports

import (
	"context"

	"tradeGate/internal/domain"
)

// MarketDataClient retrieves raw candles from an exchange or an offline source.
type MarketDataClient interface {
	// Ping checks the connectivity to the data source.
	Ping(ctx context.Context) error

	// GetTickerPrice retrieves the last traded price for a given symbol.
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)

	// GetKlines retrieves historical klines/candlestick data, oldest first.
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error)
}

// SnapshotProvider supplies indicator snapshots for a symbol and timeframe.
// Implementations return an error wrapping ErrDataUnavailable when history is insufficient.
type SnapshotProvider interface {
	GetSnapshot(ctx context.Context, symbol, timeframe string) (domain.IndicatorSnapshot, error)
}
