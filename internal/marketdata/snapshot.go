package marketdata

import (
	"context"
	"errors"
	"fmt"

	"tradeGate/internal/domain"
	"tradeGate/internal/ports"
	"tradeGate/internal/strategy/indicators"
)

// Config holds the indicator periods used to build snapshots.
type Config struct {
	KlineLimit            int // Klines requested per snapshot
	MinBars               int // Fewer klines than this means the data is unavailable
	EMAPeriods            [4]int
	RSIPeriod             int
	MACD                  indicators.MACDConfig
	ATRPeriod             int
	ATRPercentileLookback int
	ADXPeriod             int
	BollingerPeriod       int
	BollingerStdDevs      float64
	VWAPPeriod            int // 0 uses every fetched kline
	SwingLookback         int
	RecentLookback        int
	VolumePeriod          int
	Structure             indicators.StructureConfig
}

// DefaultConfig returns the standard indicator set.
func DefaultConfig() Config {
	return Config{
		KlineLimit:            300,
		MinBars:               200,
		EMAPeriods:            [4]int{9, 21, 50, 200},
		RSIPeriod:             14,
		MACD:                  indicators.MACDConfig{FastPeriod: 12, SlowPeriod: 26, SignalPeriod: 9},
		ATRPeriod:             14,
		ATRPercentileLookback: 100,
		ADXPeriod:             14,
		BollingerPeriod:       20,
		BollingerStdDevs:      2,
		SwingLookback:         20,
		RecentLookback:        5,
		VolumePeriod:          20,
		Structure:             indicators.DefaultStructureConfig(),
	}
}

// SnapshotBuilder turns raw klines into indicator snapshots.
type SnapshotBuilder struct {
	client ports.MarketDataClient
	cfg    Config
	logger ports.Logger
}

// NewSnapshotBuilder creates a builder backed by a market data client.
func NewSnapshotBuilder(client ports.MarketDataClient, cfg Config, logger ports.Logger) (*SnapshotBuilder, error) {
	if client == nil {
		return nil, errors.New("market data client cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.MinBars < cfg.EMAPeriods[3] {
		return nil, fmt.Errorf("%w: MinBars %d cannot be below the longest EMA period %d", ports.ErrConfigurationError, cfg.MinBars, cfg.EMAPeriods[3])
	}
	if cfg.KlineLimit < cfg.MinBars {
		return nil, fmt.Errorf("%w: KlineLimit %d cannot be below MinBars %d", ports.ErrConfigurationError, cfg.KlineLimit, cfg.MinBars)
	}
	return &SnapshotBuilder{client: client, cfg: cfg, logger: logger}, nil
}

// GetSnapshot fetches klines and computes the snapshot for symbol and timeframe.
func (b *SnapshotBuilder) GetSnapshot(ctx context.Context, symbol, timeframe string) (domain.IndicatorSnapshot, error) {
	op := "GetSnapshot"
	klines, err := b.client.GetKlines(ctx, symbol, timeframe, b.cfg.KlineLimit)
	if err != nil {
		b.logger.Error(ctx, err, op+": Failed to fetch klines", map[string]interface{}{"symbol": symbol, "timeframe": timeframe})
		return domain.IndicatorSnapshot{}, fmt.Errorf("%w: fetching %s %s klines: %v", ports.ErrDataUnavailable, symbol, timeframe, err)
	}
	snap, err := b.Build(symbol, timeframe, klines)
	if err != nil {
		b.logger.Warn(ctx, op+": Snapshot unavailable", map[string]interface{}{"symbol": symbol, "timeframe": timeframe, "klines": len(klines), "error": err.Error()})
		return domain.IndicatorSnapshot{}, err
	}
	b.logger.Debug(ctx, op+": Snapshot built", map[string]interface{}{"symbol": symbol, "timeframe": timeframe, "close": snap.Close, "atr": snap.ATR})
	return snap, nil
}

// Build computes a snapshot from klines ordered oldest first.
func (b *SnapshotBuilder) Build(symbol, timeframe string, klines []*domain.Kline) (domain.IndicatorSnapshot, error) {
	if len(klines) < b.cfg.MinBars {
		return domain.IndicatorSnapshot{}, fmt.Errorf("%w: %s %s has %d klines, need %d", ports.ErrDataUnavailable, symbol, timeframe, len(klines), b.cfg.MinBars)
	}
	ctx := context.Background()
	last := klines[len(klines)-1]
	snap := domain.IndicatorSnapshot{
		Symbol:    symbol,
		Timeframe: timeframe,
		Timestamp: last.CloseTime,
		Bars:      len(klines),
		Close:     last.Close,
		High:      last.High,
		Low:       last.Low,
		Volume:    last.Volume,
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = last.OpenTime
	}

	emas := make([]float64, len(b.cfg.EMAPeriods))
	for i, period := range b.cfg.EMAPeriods {
		v, err := indicators.NewEMA(period).Calculate(ctx, klines)
		if err != nil {
			return domain.IndicatorSnapshot{}, unavailable("EMA", err)
		}
		emas[i] = v
	}
	snap.EMA9, snap.EMA21, snap.EMA50, snap.EMA200 = emas[0], emas[1], emas[2], emas[3]

	var err error
	if snap.VWAP, err = indicators.NewVWAP(b.cfg.VWAPPeriod).Calculate(ctx, klines); err != nil {
		return domain.IndicatorSnapshot{}, unavailable("VWAP", err)
	}
	if snap.RSI, err = indicators.NewRSI(indicators.RSIConfig{IndicatorConfig: indicators.IndicatorConfig{Period: b.cfg.RSIPeriod}}).Calculate(ctx, klines); err != nil {
		return domain.IndicatorSnapshot{}, unavailable("RSI", err)
	}

	macd, err := indicators.NewMACD(b.cfg.MACD).Values(klines)
	if err != nil {
		return domain.IndicatorSnapshot{}, unavailable("MACD", err)
	}
	snap.MACD, snap.MACDSignal, snap.MACDHistogram = macd.Line, macd.Signal, macd.Histogram

	atrSeries, err := indicators.NewATR(b.cfg.ATRPeriod).Series(klines)
	if err != nil {
		return domain.IndicatorSnapshot{}, unavailable("ATR", err)
	}
	snap.ATR = atrSeries[len(atrSeries)-1]
	if lookback := b.cfg.ATRPercentileLookback; lookback > 0 && len(atrSeries) > lookback {
		atrSeries = atrSeries[len(atrSeries)-lookback:]
	}
	snap.ATRPercentile = indicators.PercentileRank(atrSeries)

	adx, err := indicators.NewADX(b.cfg.ADXPeriod).Values(klines)
	if err != nil {
		return domain.IndicatorSnapshot{}, unavailable("ADX", err)
	}
	snap.ADX, snap.PlusDI, snap.MinusDI = adx.ADX, adx.PlusDI, adx.MinusDI

	bands, err := indicators.NewBollinger(b.cfg.BollingerPeriod, b.cfg.BollingerStdDevs).Bands(klines)
	if err != nil {
		return domain.IndicatorSnapshot{}, unavailable("Bollinger", err)
	}
	snap.BollingerUpper, snap.BollingerMiddle, snap.BollingerLower = bands.Upper, bands.Middle, bands.Lower

	snap.SwingHigh, snap.SwingLow = indicators.Extremes(klines, b.cfg.SwingLookback)
	snap.RecentHigh, snap.RecentLow = indicators.Extremes(klines, b.cfg.RecentLookback)
	snap.AvgVolume = indicators.AverageVolume(klines, b.cfg.VolumePeriod)
	snap.Support, snap.Resistance = indicators.PivotLevels(klines, snap.Close, b.cfg.Structure)
	snap.Breakout = indicators.DetectBreakout(klines, b.cfg.Structure)

	return snap, nil
}

func unavailable(indicator string, err error) error {
	return fmt.Errorf("%w: %s: %v", ports.ErrDataUnavailable, indicator, err)
}
