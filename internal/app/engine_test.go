package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeGate/internal/domain"
	"tradeGate/internal/lifecycle"
	"tradeGate/internal/portfolio"
	"tradeGate/internal/ports"
	"tradeGate/internal/risk"
	"tradeGate/internal/strategy"
	"tradeGate/internal/validation"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockSnapshots struct {
	snapshots map[string]domain.IndicatorSnapshot
}

func (m *mockSnapshots) GetSnapshot(ctx context.Context, symbol, timeframe string) (domain.IndicatorSnapshot, error) {
	s, ok := m.snapshots[symbol+"/"+timeframe]
	if !ok {
		return domain.IndicatorSnapshot{}, fmt.Errorf("%w: no klines for %s %s", ports.ErrDataUnavailable, symbol, timeframe)
	}
	return s, nil
}

type mockAudit struct {
	mu      sync.Mutex
	entries []*domain.AuditEntry
}

func (m *mockAudit) Append(ctx context.Context, entry *domain.AuditEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	entry.ID = int64(len(m.entries))
	return entry.ID, nil
}

func (m *mockAudit) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.AuditEntry, error) {
	return nil, nil
}

func (m *mockAudit) kinds() []domain.AuditKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AuditKind, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Kind
	}
	return out
}

type mockArchive struct {
	mu      sync.Mutex
	records []domain.LifecycleRecord
}

func (m *mockArchive) Archive(ctx context.Context, record domain.LifecycleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *mockArchive) FindByTradeID(ctx context.Context, tradeID string) (*domain.LifecycleRecord, error) {
	return nil, ports.ErrNotFound
}

func (m *mockArchive) FindClosed(ctx context.Context, limit int) ([]*domain.ClosedTrade, error) {
	return nil, nil
}

type mockPublisher struct {
	mu          sync.Mutex
	decisions   []domain.Decision
	transitions []domain.StateChange
	err         error
}

func (m *mockPublisher) PublishDecision(ctx context.Context, d domain.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, d)
	return m.err
}

func (m *mockPublisher) PublishTransition(ctx context.Context, r domain.LifecycleRecord, c domain.StateChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, c)
	return m.err
}

func (m *mockPublisher) Close() error { return nil }

// contendedPortfolio reports contention for the first failures reservations.
type contendedPortfolio struct {
	ports.Portfolio
	mu       sync.Mutex
	failures int
	calls    int
}

func (c *contendedPortfolio) Reserve(ctx context.Context, r ports.Reservation) error {
	c.mu.Lock()
	c.calls++
	fail := c.calls <= c.failures
	c.mu.Unlock()
	if fail {
		return fmt.Errorf("%w: simulated", ports.ErrResourceContention)
	}
	return c.Portfolio.Reserve(ctx, r)
}

var evalTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func bullish(tf string) domain.IndicatorSnapshot {
	return domain.IndicatorSnapshot{
		Symbol: "BTCUSDT", Timeframe: tf, Bars: 300,
		Close: 105, High: 105.5, Low: 104,
		EMA9: 104.5, EMA21: 103, EMA50: 100, EMA200: 95, VWAP: 102,
		RSI: 65, MACD: 1, MACDSignal: 0.5, MACDHistogram: 0.5,
		ATR: 1.5, ATRPercentile: 60, ADX: 32, PlusDI: 30, MinusDI: 12,
		BollingerUpper: 107, BollingerMiddle: 103, BollingerLower: 99,
		SwingHigh: 105.5, SwingLow: 98, RecentHigh: 105.5, RecentLow: 103,
		Volume: 1500, AvgVolume: 1000,
	}
}

func bearish(tf string) domain.IndicatorSnapshot {
	return domain.IndicatorSnapshot{
		Symbol: "BTCUSDT", Timeframe: tf, Bars: 300,
		Close: 95, High: 96, Low: 94.5,
		EMA9: 95.5, EMA21: 97, EMA50: 100, EMA200: 105, VWAP: 98,
		RSI: 35, MACD: -1, MACDSignal: -0.5, MACDHistogram: -0.5,
		ATR: 1.5, ATRPercentile: 60, ADX: 32, PlusDI: 12, MinusDI: 30,
		SwingHigh: 102, SwingLow: 94.5, RecentHigh: 97, RecentLow: 94.5,
		Volume: 1500, AvgVolume: 1000,
	}
}

type harness struct {
	engine    *Engine
	ledger    *portfolio.Ledger
	audit     *mockAudit
	archive   *mockArchive
	publisher *mockPublisher
	logger    *mockLogger
}

type harnessOptions struct {
	snapshots map[string]domain.IndicatorSnapshot
	policy    func(*validation.Policy)
	wrap      func(ports.Portfolio) ports.Portfolio
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	logger := &mockLogger{}
	clock := func() time.Time { return evalTime }

	ledger, err := portfolio.NewLedger(100000, logger, clock)
	require.NoError(t, err)
	strat, err := strategy.New(strategy.DefaultConfig(), logger)
	require.NoError(t, err)
	stops, err := risk.NewStopResolver(risk.DefaultStopConfig())
	require.NoError(t, err)
	targets, err := risk.NewTargetPlanner(risk.DefaultTargetConfig())
	require.NoError(t, err)
	sizer, err := risk.NewSizer(risk.DefaultSizingConfig())
	require.NoError(t, err)
	policy := validation.DefaultPolicy()
	if opts.policy != nil {
		opts.policy(&policy)
	}
	pipeline, err := validation.NewPipeline(policy, nil, nil, logger)
	require.NoError(t, err)
	manager, err := lifecycle.NewManager(logger, clock)
	require.NoError(t, err)

	var pf ports.Portfolio = ledger
	if opts.wrap != nil {
		pf = opts.wrap(ledger)
	}
	snapshots := opts.snapshots
	if snapshots == nil {
		snapshots = map[string]domain.IndicatorSnapshot{
			"BTCUSDT/1h": bullish("1h"),
			"BTCUSDT/5m": bullish("5m"),
		}
	}

	h := &harness{ledger: ledger, audit: &mockAudit{}, archive: &mockArchive{}, publisher: &mockPublisher{}, logger: logger}
	var seq int
	var seqMu sync.Mutex
	h.engine, err = NewEngine(logger, Ports{
		Data:      &mockSnapshots{snapshots: snapshots},
		Portfolio: pf,
		Audit:     h.audit,
		Archive:   h.archive,
		Publisher: h.publisher,
	}, Components{
		Strategy: strat, Stops: stops, Targets: targets, Sizer: sizer, Pipeline: pipeline, Lifecycle: manager,
		Clock: clock,
		NewTradeID: func() string {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return fmt.Sprintf("trade-%d", seq)
		},
	})
	require.NoError(t, err)
	return h
}

func TestNewEngine_RequiresDependencies(t *testing.T) {
	_, err := NewEngine(&mockLogger{}, Ports{}, Components{})
	assert.Error(t, err)
}

func TestEvaluateTradeOpportunity_Accepts(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	d := h.engine.EvaluateTradeOpportunity(context.Background(), "BTCUSDT", "1h", "5m")
	require.True(t, d.ValidationPassed())
	order, ok := d.(*domain.TradeOrder)
	require.True(t, ok)

	assert.Equal(t, "trade-1", order.TradeID)
	assert.Equal(t, domain.Buy, order.Signal.Direction)
	assert.Equal(t, domain.EntryMomentum, order.Signal.EntryType)
	assert.False(t, order.UseLimitOrder)
	assert.Equal(t, 105.0, order.EntryPrice)
	assert.Equal(t, domain.StopBasisATR, order.Stop.Basis)
	assert.InDelta(t, 102.75, order.Stop.Price, 1e-9)
	assert.Len(t, order.Targets.Targets, 3)
	assert.InDelta(t, 100, order.Targets.TotalBooked(), 1e-9)
	assert.Equal(t, int64(95), order.Sizing.Quantity, "capped at 10% of capital")
	assert.True(t, order.Sizing.Capped)
	assert.Equal(t, 105.0, order.Trailing.EntryPrice)
	assert.Len(t, order.Signal.Reasoning, 7)

	rec, ok := h.engine.Trade("trade-1")
	require.True(t, ok)
	assert.Equal(t, domain.StateEntryPending, rec.CurrentState)
	assert.Len(t, h.engine.ActiveTrades(), 1)

	assert.Equal(t, []domain.AuditKind{
		domain.AuditTradeDecision, domain.AuditTransition, domain.AuditTransition, domain.AuditTransition,
	}, h.audit.kinds())
	assert.Contains(t, h.audit.entries[0].Detail, `"action":"EXECUTE_TRADE"`)
	assert.Len(t, h.publisher.decisions, 1)
	assert.Len(t, h.publisher.transitions, 3)

	stats := h.ledger.GetStats()
	assert.InDelta(t, 100000-95*105, stats.Available, 1e-9)
	assert.Equal(t, 1, stats.OpenPositions)
}

func TestEvaluateTradeOpportunity_Holds(t *testing.T) {
	t.Run("misaligned timeframes", func(t *testing.T) {
		h := newHarness(t, harnessOptions{snapshots: map[string]domain.IndicatorSnapshot{
			"BTCUSDT/1h": bearish("1h"),
			"BTCUSDT/5m": bullish("5m"),
		}})

		d := h.engine.EvaluateTradeOpportunity(context.Background(), "BTCUSDT", "1h", "5m")
		hold, ok := d.(*domain.HoldResult)
		require.True(t, ok)
		assert.False(t, hold.ValidationPassed())
		assert.Equal(t, validation.CheckMTFAlignment, hold.FailedCheck)
		assert.True(t, strings.HasPrefix(hold.Reason, "Multi-timeframe misalignment"))
		assert.Empty(t, hold.TradeID)
		assert.Equal(t, []domain.AuditKind{domain.AuditHoldDecision}, h.audit.kinds())
		assert.Contains(t, h.audit.entries[0].Detail, `"validation_passed":false`)
	})

	t.Run("insufficient data", func(t *testing.T) {
		h := newHarness(t, harnessOptions{snapshots: map[string]domain.IndicatorSnapshot{
			"BTCUSDT/5m": bullish("5m"),
		}})

		d := h.engine.EvaluateTradeOpportunity(context.Background(), "BTCUSDT", "1h", "5m")
		hold := d.(*domain.HoldResult)
		assert.Equal(t, "Insufficient data for BTCUSDT 1h", hold.Reason)
		assert.Nil(t, hold.Signal)
	})

	t.Run("confidence below threshold keeps a rejected record", func(t *testing.T) {
		h := newHarness(t, harnessOptions{policy: func(p *validation.Policy) { p.MinConfidence = 99 }})

		d := h.engine.EvaluateTradeOpportunity(context.Background(), "BTCUSDT", "1h", "5m")
		hold := d.(*domain.HoldResult)
		assert.Equal(t, validation.CheckConfidence, hold.FailedCheck)
		assert.Contains(t, hold.Reason, "below threshold 99%")
		assert.Equal(t, "trade-1", hold.TradeID)

		rec, ok := h.engine.Trade("trade-1")
		require.True(t, ok)
		assert.Equal(t, domain.StateRejected, rec.CurrentState)
		require.Len(t, h.archive.records, 1)
		assert.Equal(t, domain.StateRejected, h.archive.records[0].CurrentState)
		assert.Equal(t, 100000.0, h.ledger.GetStats().Available)
	})

	t.Run("cancelled context", func(t *testing.T) {
		h := newHarness(t, harnessOptions{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		d := h.engine.EvaluateTradeOpportunity(ctx, "BTCUSDT", "1h", "5m")
		assert.Equal(t, "Evaluation cancelled", d.(*domain.HoldResult).Reason)
		assert.Empty(t, h.engine.ActiveTrades())
	})
}

func TestEvaluateTradeOpportunity_Contention(t *testing.T) {
	t.Run("retried once against a fresh snapshot", func(t *testing.T) {
		var wrapped *contendedPortfolio
		h := newHarness(t, harnessOptions{wrap: func(p ports.Portfolio) ports.Portfolio {
			wrapped = &contendedPortfolio{Portfolio: p, failures: 1}
			return wrapped
		}})

		d := h.engine.EvaluateTradeOpportunity(context.Background(), "BTCUSDT", "1h", "5m")
		assert.True(t, d.ValidationPassed())
		assert.Equal(t, 2, wrapped.calls)
		assert.Contains(t, h.logger.warnMsgs, "EvaluateTradeOpportunity: Portfolio changed during validation, retrying")
	})

	t.Run("still contended after the retry", func(t *testing.T) {
		var wrapped *contendedPortfolio
		h := newHarness(t, harnessOptions{wrap: func(p ports.Portfolio) ports.Portfolio {
			wrapped = &contendedPortfolio{Portfolio: p, failures: 2}
			return wrapped
		}})

		d := h.engine.EvaluateTradeOpportunity(context.Background(), "BTCUSDT", "1h", "5m")
		hold, ok := d.(*domain.HoldResult)
		require.True(t, ok)
		assert.Equal(t, reservationCheck, hold.FailedCheck)
		assert.Contains(t, hold.Reason, "contention")
		assert.Equal(t, 2, wrapped.calls)
		assert.Empty(t, h.engine.ActiveTrades())
	})
}

func TestAdvanceLifecycle(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	d := h.engine.EvaluateTradeOpportunity(ctx, "BTCUSDT", "1h", "5m")
	require.True(t, d.ValidationPassed())

	_, err := h.engine.AdvanceLifecycle(ctx, "trade-1", domain.Event{Kind: domain.EventPriceTick, Price: 106})
	assert.ErrorIs(t, err, ports.ErrInvalidTransition)

	res, err := h.engine.AdvanceLifecycle(ctx, "trade-1", domain.Event{Kind: domain.EventOrderFilled, Price: 105})
	require.NoError(t, err)
	assert.Equal(t, domain.StateEntered, res.Record.CurrentState)

	res, err = h.engine.AdvanceLifecycle(ctx, "trade-1", domain.Event{Kind: domain.EventPriceTick, Price: 107.3})
	require.NoError(t, err)
	assert.Equal(t, domain.StatePartialExit1, res.Record.CurrentState)
	assert.Equal(t, int64(48), res.Record.Remaining)

	res, err = h.engine.AdvanceLifecycle(ctx, "trade-1", domain.Event{Kind: domain.EventPriceTick, Price: 102})
	require.NoError(t, err)
	assert.Equal(t, domain.StateExited, res.Record.CurrentState)
	assert.InDelta(t, 47*2.25-48*3, res.Record.RealizedPnL, 1e-6)

	stats := h.ledger.GetStats()
	assert.Equal(t, 0, stats.OpenPositions)
	assert.InDelta(t, 100000+47*2.25-48*3, stats.Capital, 1e-6)
	require.Len(t, h.archive.records, 1)
	assert.Equal(t, "trade-1", h.archive.records[0].TradeID)

	res, err = h.engine.AdvanceLifecycle(ctx, "trade-1", domain.Event{Kind: domain.EventTargetHit, Target: 2})
	require.NoError(t, err)
	assert.True(t, res.NoOp)

	kinds := h.audit.kinds()
	assert.Contains(t, kinds, domain.AuditInvalidEvent)
	assert.Equal(t, domain.AuditIgnoredEvent, kinds[len(kinds)-1])

	_, err = h.engine.AdvanceLifecycle(ctx, "missing", domain.Event{Kind: domain.EventPriceTick, Price: 1})
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestAdvanceLifecycle_FillAwayFromPlannedEntry(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	d := h.engine.EvaluateTradeOpportunity(ctx, "BTCUSDT", "1h", "5m")
	order, ok := d.(*domain.TradeOrder)
	require.True(t, ok)
	require.Equal(t, 105.0, order.EntryPrice)

	_, err := h.engine.AdvanceLifecycle(ctx, "trade-1", domain.Event{Kind: domain.EventOrderFilled, Price: 104})
	require.NoError(t, err)
	assert.Equal(t, 100000.0-95*104.0, h.ledger.GetStats().Available)

	res, err := h.engine.AdvanceLifecycle(ctx, "trade-1", domain.Event{Kind: domain.EventStopHit, Price: 103.5})
	require.NoError(t, err)
	assert.Equal(t, domain.StateExited, res.Record.CurrentState)
	assert.InDelta(t, -47.5, res.Record.RealizedPnL, 1e-9)

	stats := h.ledger.GetStats()
	assert.InDelta(t, res.Record.RealizedPnL, stats.RealizedPnL, 1e-9)
	assert.InDelta(t, res.Record.RealizedPnL, stats.DailyPnL, 1e-9)
	assert.InDelta(t, 100000-47.5, stats.Capital, 1e-9)
	assert.InDelta(t, 100000-47.5, stats.Available, 1e-9)
}

func TestAdvanceLifecycle_CancelReleasesCapital(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	require.True(t, h.engine.EvaluateTradeOpportunity(ctx, "BTCUSDT", "1h", "5m").ValidationPassed())

	res, err := h.engine.AdvanceLifecycle(ctx, "trade-1", domain.Event{Kind: domain.EventOrderCancelled})
	require.NoError(t, err)
	assert.Equal(t, domain.StateExited, res.Record.CurrentState)
	assert.Equal(t, 100000.0, h.ledger.GetStats().Available)
	assert.Empty(t, h.ledger.Positions())
}

func TestEngine_PublishFailureDoesNotBlockDecision(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.publisher.err = errors.New("broker down")

	d := h.engine.EvaluateTradeOpportunity(context.Background(), "BTCUSDT", "1h", "5m")
	assert.True(t, d.ValidationPassed())
	assert.NotEmpty(t, h.logger.errorMsgs)
}

func TestEngine_Scan(t *testing.T) {
	h := newHarness(t, harnessOptions{})

	decisions := h.engine.Scan(context.Background(), []string{"DOGEUSDT", "BTCUSDT"}, "1h", "5m", 2)
	require.Len(t, decisions, 2)
	assert.Equal(t, "DOGEUSDT", decisions[0].DecisionSymbol())
	assert.False(t, decisions[0].ValidationPassed())
	assert.Equal(t, "BTCUSDT", decisions[1].DecisionSymbol())
	assert.True(t, decisions[1].ValidationPassed())
}
