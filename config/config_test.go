package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeGate/internal/adapters/logger"
	"tradeGate/internal/ports"
	"tradeGate/internal/risk"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, logger.FormatText, cfg.LogFormat)
	assert.Equal(t, DataSourceBinance, cfg.DataSource)
	assert.Equal(t, 300, cfg.KlineLimit)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 100000.0, cfg.InitialCapital)
	assert.Equal(t, 70.0, cfg.Policy.MinConfidence)
	assert.Equal(t, 30*time.Minute, cfg.Policy.SymbolCooldown)
	assert.Equal(t, risk.StopPolicyClamp, cfg.Stops.Policy)
	assert.Nil(t, cfg.ValidationChecks)
	assert.Equal(t, 200, cfg.SnapshotConfig().MinBars)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("DATA_SOURCE", "csv")
	t.Setenv("CSV_DIR", "/tmp/klines")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("INITIAL_CAPITAL", "50000")
	t.Setenv("MIN_CONFIDENCE", "80")
	t.Setenv("MIN_RR", "2.5")
	t.Setenv("MIN_STOP_PCT", "0.8")
	t.Setenv("MAX_STOP_PCT", "4")
	t.Setenv("STOP_BOUND_POLICY", "reject")
	t.Setenv("CAPITAL_CAP_PCT", "20")
	t.Setenv("SYMBOL_COOLDOWN_MINUTES", "0")
	t.Setenv("TRAIL_FINAL_TARGET", "false")
	t.Setenv("DISABLED_CHECKS", "volume,symbol_cooldown")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
	assert.Equal(t, logger.FormatJSON, cfg.LogFormat)
	assert.Equal(t, DataSourceCSV, cfg.DataSource)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 50000.0, cfg.InitialCapital)
	assert.Equal(t, 80.0, cfg.Policy.MinConfidence)
	assert.Equal(t, 2.5, cfg.Targets.MinRR)
	assert.Equal(t, 2.5, cfg.Policy.MinRR, "validation uses the planner's R:R floor")
	assert.Equal(t, 0.8, cfg.Policy.MinStopPct)
	assert.Equal(t, 4.0, cfg.Stops.MaxStopPct)
	assert.Equal(t, risk.StopPolicyReject, cfg.Stops.Policy)
	assert.Equal(t, 20.0, cfg.Sizing.CapitalCapPct)
	assert.Zero(t, cfg.Policy.SymbolCooldown)
	assert.False(t, cfg.Targets.TrailFinal)
	assert.Equal(t, []string{"volume", "symbol_cooldown"}, cfg.DisabledChecks)
}

func TestLoadConfig_CollectsErrors(t *testing.T) {
	t.Setenv("DATA_SOURCE", "ftp")
	t.Setenv("INITIAL_CAPITAL", "lots")
	t.Setenv("MIN_STOP_PCT", "6")
	t.Setenv("STOP_BOUND_POLICY", "ignore")
	t.Setenv("SYMBOL_COOLDOWN_MINUTES", "-5")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.ErrorContains(t, err, "DATA_SOURCE must be binance or csv")
	assert.ErrorContains(t, err, "invalid INITIAL_CAPITAL")
	assert.ErrorContains(t, err, "SYMBOL_COOLDOWN_MINUTES cannot be negative")
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
	assert.Equal(t, 1, strings.Count(err.Error(), "min stop pct 6 exceeds max stop pct 5"))
}

func TestLoadConfig_RiskPerTradeAboveCap(t *testing.T) {
	tests := []struct {
		name    string
		risk    string
		cap     string
		wantErr string
	}{
		{"above cap", "2", "1", "RISK_PER_TRADE_PCT 2 exceeds MAX_RISK_PER_TRADE_PCT 1"},
		{"equal to cap", "1.5", "1.5", ""},
		{"below cap", "0.5", "1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("RISK_PER_TRADE_PCT", tt.risk)
			t.Setenv("MAX_RISK_PER_TRADE_PCT", tt.cap)

			cfg, err := LoadConfig()
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.LessOrEqual(t, cfg.Sizing.RiskPerTradePct, cfg.Policy.MaxRiskPerTradePct)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ports.ErrConfigurationError)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
