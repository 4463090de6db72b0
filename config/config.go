package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"tradeGate/internal/adapters/logger" // Import the logger package for LogLevel
	"tradeGate/internal/marketdata"
	"tradeGate/internal/ports"
	"tradeGate/internal/risk"
	"tradeGate/internal/strategy"
	"tradeGate/internal/validation"
)

// Data sources for klines.
const (
	DataSourceBinance = "binance"
	DataSourceCSV     = "csv"
)

// Config holds all application configuration.
type Config struct {
	// Logging
	LogLevel  logger.LogLevel
	LogFormat logger.Format

	// Storage
	DBPath string

	// Market data
	DataSource string
	CSVDir     string
	KlineLimit int
	APIKey     string
	SecretKey  string
	IsTestnet  bool

	// Event bus (disabled when KafkaBrokers is empty)
	KafkaBrokers        []string
	KafkaDecisionTopic  string
	KafkaLifecycleTopic string

	// Portfolio
	InitialCapital float64

	// Decision stages
	Strategy strategy.Config
	Stops    risk.StopConfig
	Targets  risk.TargetConfig
	Sizing   risk.SizingConfig
	Policy   validation.Policy

	// Validation pipeline layout; nil uses the default order.
	ValidationChecks []string
	DisabledChecks   []string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{
		Strategy: strategy.DefaultConfig(),
		Stops:    risk.DefaultStopConfig(),
		Targets:  risk.DefaultTargetConfig(),
		Sizing:   risk.DefaultSizingConfig(),
		Policy:   validation.DefaultPolicy(),
	}
	var errs []string // Collect validation errors

	floatVar := func(key string, dst *float64) {
		v, err := getEnvAsFloatRequired(key, *dst)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
			return
		}
		*dst = v
	}
	intVar := func(key string, dst *int) {
		v, err := getEnvAsIntRequired(key, *dst)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", key, err))
			return
		}
		*dst = v
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = logger.Format(strings.ToLower(getEnv("LOG_FORMAT", string(logger.FormatText))))
	if cfg.LogFormat != logger.FormatText && cfg.LogFormat != logger.FormatJSON {
		errs = append(errs, "LOG_FORMAT must be text or json")
	}

	// Storage
	cfg.DBPath = getEnv("DB_PATH", "./data/trade_gate.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Market data
	cfg.DataSource = strings.ToLower(getEnv("DATA_SOURCE", DataSourceBinance))
	cfg.CSVDir = getEnv("CSV_DIR", "./data/klines")
	switch cfg.DataSource {
	case DataSourceBinance:
	case DataSourceCSV:
		if cfg.CSVDir == "" {
			errs = append(errs, "CSV_DIR must be set when DATA_SOURCE is csv")
		}
	default:
		errs = append(errs, "DATA_SOURCE must be binance or csv")
	}
	cfg.KlineLimit = marketdata.DefaultConfig().KlineLimit
	intVar("KLINE_LIMIT", &cfg.KlineLimit)
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	// Event bus
	cfg.KafkaBrokers = getEnvAsList("KAFKA_BROKERS")
	cfg.KafkaDecisionTopic = getEnv("KAFKA_DECISION_TOPIC", "trading.decisions")
	cfg.KafkaLifecycleTopic = getEnv("KAFKA_LIFECYCLE_TOPIC", "trading.lifecycle")

	// Portfolio
	cfg.InitialCapital = 100000
	floatVar("INITIAL_CAPITAL", &cfg.InitialCapital)
	if cfg.InitialCapital <= 0 {
		errs = append(errs, "INITIAL_CAPITAL must be positive")
	}

	// Classification
	intVar("MIN_BARS", &cfg.Strategy.Regime.MinBars)
	floatVar("HIGH_VOL_PERCENTILE", &cfg.Strategy.Regime.HighVolPercentile)
	floatVar("TREND_ADX", &cfg.Strategy.Regime.TrendADX)
	floatVar("RANGE_ADX", &cfg.Strategy.Regime.RangeADX)
	floatVar("PULLBACK_PROXIMITY_PCT", &cfg.Strategy.Entry.PullbackProximityPct)
	floatVar("VOLUME_EXPANSION_RATIO", &cfg.Strategy.Entry.VolumeExpansion)
	floatVar("RETEST_BAND_PCT", &cfg.Strategy.Entry.RetestBandPct)
	if cfg.KlineLimit < cfg.Strategy.Regime.MinBars {
		errs = append(errs, "KLINE_LIMIT cannot be below MIN_BARS")
	}

	// Stops
	floatVar("MIN_STOP_PCT", &cfg.Stops.MinStopPct)
	floatVar("MAX_STOP_PCT", &cfg.Stops.MaxStopPct)
	floatVar("ATR_STOP_MULTIPLIER", &cfg.Stops.ATRMultiplier)
	floatVar("VWAP_STOP_OFFSET_PCT", &cfg.Stops.VWAPOffsetPct)
	floatVar("SWING_STOP_BUFFER_PCT", &cfg.Stops.SwingBufferPct)
	cfg.Stops.Policy = risk.StopPolicy(strings.ToLower(getEnv("STOP_BOUND_POLICY", string(risk.StopPolicyClamp))))
	cfg.Policy.MinStopPct, cfg.Policy.MaxStopPct = cfg.Stops.MinStopPct, cfg.Stops.MaxStopPct

	// Targets and trailing
	floatVar("MIN_RR", &cfg.Targets.MinRR)
	floatVar("TRAIL_ACTIVATION_PCT", &cfg.Targets.TrailActivationPct)
	floatVar("TRAIL_ATR_MULTIPLE", &cfg.Targets.TrailATRMultiple)
	cfg.Targets.TrailFinal = getEnvAsBool("TRAIL_FINAL_TARGET", cfg.Targets.TrailFinal)
	cfg.Policy.MinRR = cfg.Targets.MinRR

	// Sizing
	floatVar("RISK_PER_TRADE_PCT", &cfg.Sizing.RiskPerTradePct)
	floatVar("CAPITAL_CAP_PCT", &cfg.Sizing.CapitalCapPct)

	// Validation policy
	floatVar("MIN_CONFIDENCE", &cfg.Policy.MinConfidence)
	floatVar("MIN_VOLUME_RATIO", &cfg.Policy.MinVolumeRatio)
	floatVar("MAX_RISK_PER_TRADE_PCT", &cfg.Policy.MaxRiskPerTradePct)
	floatVar("MAX_AGGREGATE_RISK_PCT", &cfg.Policy.MaxAggregateRiskPct)
	floatVar("MAX_DAILY_LOSS_PCT", &cfg.Policy.MaxDailyLossPct)
	intVar("MAX_OPEN_POSITIONS", &cfg.Policy.MaxOpenPositions)
	intVar("MAX_TRADES_PER_SYMBOL_PER_DAY", &cfg.Policy.MaxTradesPerSymbolPerDay)
	cooldown := int(cfg.Policy.SymbolCooldown / time.Minute)
	intVar("SYMBOL_COOLDOWN_MINUTES", &cooldown)
	if cooldown < 0 {
		errs = append(errs, "SYMBOL_COOLDOWN_MINUTES cannot be negative")
	}
	cfg.Policy.SymbolCooldown = time.Duration(cooldown) * time.Minute
	cfg.ValidationChecks = getEnvAsList("VALIDATION_CHECKS")
	cfg.DisabledChecks = getEnvAsList("DISABLED_CHECKS")

	if cfg.Sizing.RiskPerTradePct > cfg.Policy.MaxRiskPerTradePct {
		errs = append(errs, fmt.Sprintf("RISK_PER_TRADE_PCT %g exceeds MAX_RISK_PER_TRADE_PCT %g",
			cfg.Sizing.RiskPerTradePct, cfg.Policy.MaxRiskPerTradePct))
	}

	// Each stage validates its own section; stop bounds are shared by the
	// resolver and the policy, so identical problems are reported once.
	seen := make(map[string]bool)
	stageErr := func(err error) {
		if err == nil {
			return
		}
		msg := strings.TrimPrefix(err.Error(), ports.ErrConfigurationError.Error()+": ")
		for _, part := range strings.Split(msg, "; ") {
			if !seen[part] {
				seen[part] = true
				errs = append(errs, part)
			}
		}
	}
	stageErr(cfg.Strategy.Validate())
	_, err := risk.NewStopResolver(cfg.Stops)
	stageErr(err)
	_, err = risk.NewTargetPlanner(cfg.Targets)
	stageErr(err)
	_, err = risk.NewSizer(cfg.Sizing)
	stageErr(err)
	stageErr(cfg.Policy.Validate())

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %w: %s", ports.ErrConfigurationError, strings.Join(errs, "; "))
	}

	return cfg, nil
}

// SnapshotConfig returns the indicator configuration for the configured kline window.
func (c *Config) SnapshotConfig() marketdata.Config {
	mc := marketdata.DefaultConfig()
	mc.KlineLimit = c.KlineLimit
	mc.MinBars = c.Strategy.Regime.MinBars
	return mc
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping blanks. Unset yields nil.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
