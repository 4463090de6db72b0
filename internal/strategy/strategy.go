package strategy

import (
	"context"
	"fmt"
	"time"

	"tradeGate/internal/domain"
	"tradeGate/internal/ports"
)

// Config holds parameters for signal classification.
type Config struct {
	Regime RegimeConfig
	Entry  EntryConfig
}

// DefaultConfig returns the standard classification parameters.
func DefaultConfig() Config {
	return Config{Regime: DefaultRegimeConfig(), Entry: DefaultEntryConfig()}
}

// Strategy classifies regime, alignment, confidence and entry pattern for a symbol.
type Strategy struct {
	cfg    Config
	logger ports.Logger
}

// New creates a new Strategy instance.
func New(cfg Config, logger ports.Logger) (*Strategy, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Strategy{cfg: cfg, logger: logger}, nil
}

// Validate reports malformed classification thresholds.
func (c Config) Validate() error {
	if err := c.Regime.validate(); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrConfigurationError, err)
	}
	if err := c.Entry.validate(); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrConfigurationError, err)
	}
	return nil
}

// Analysis is everything the classifiers derived from a pair of snapshots.
type Analysis struct {
	Signal         domain.Signal
	Entry          domain.EntrySetup
	Classification Classification
}

// Analyze classifies the higher and lower timeframe snapshots of one symbol.
// It never fails: missing information degrades to UNKNOWN, HOLD and NONE.
func (s *Strategy) Analyze(ctx context.Context, htf, ltf domain.IndicatorSnapshot, now time.Time) Analysis {
	cls := s.cfg.Regime.Classify(htf, ltf)
	strength := TrendStrength(ltf, cls.Direction)
	confidence := Confidence(ltf, cls.Regime, cls.Direction)
	entry := s.cfg.Entry.ClassifyEntry(ltf, cls.Regime, cls.HTFAligned, cls.Direction, strength)

	direction := cls.Direction
	if !cls.HTFAligned {
		direction = domain.Hold
	}

	signal := domain.Signal{
		Symbol:        ltf.Symbol,
		Direction:     direction,
		Confidence:    confidence,
		Regime:        cls.Regime,
		EntryType:     entry.Type,
		HTFAligned:    cls.HTFAligned,
		TrendStrength: strength,
		CreatedAt:     now,
		Reasoning: []string{
			fmt.Sprintf("Regime %s", cls.Regime),
			cls.AlignmentReason,
			fmt.Sprintf("Confidence %.1f%%", confidence),
			entry.Reason,
		},
	}

	s.logger.Debug(ctx, "Analyze: Signal classified", map[string]interface{}{
		"symbol":     signal.Symbol,
		"direction":  signal.Direction,
		"regime":     signal.Regime,
		"aligned":    signal.HTFAligned,
		"confidence": signal.Confidence,
		"entryType":  signal.EntryType,
	})

	return Analysis{Signal: signal, Entry: entry, Classification: cls}
}
