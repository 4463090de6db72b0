package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeGate/internal/domain"
	"tradeGate/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

var (
	_ ports.AuditLog         = (*Repository)(nil)
	_ ports.LifecycleArchive = (*Repository)(nil)
)

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

var baseTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func exitedRecord(id string, pnl float64, exitedAt time.Time) domain.LifecycleRecord {
	return domain.LifecycleRecord{
		TradeID:      id,
		Symbol:       "BTCUSDT",
		Direction:    domain.Buy,
		CurrentState: domain.StateExited,
		EntryPrice:   100,
		Quantity:     100,
		RealizedPnL:  pnl,
		StopPrice:    98,
		NextTarget:   2,
		Targets: domain.TargetPlan{Targets: []domain.Target{
			{Price: 102, RRRatio: 1, BookPercentage: 50, Kind: domain.TargetFixed},
			{Price: 104, RRRatio: 2, BookPercentage: 50, Kind: domain.TargetFixed},
		}},
		History: []domain.StateChange{
			{State: domain.StateSignalGenerated, Timestamp: baseTime, Note: "signal"},
			{State: domain.StateValidated, Timestamp: baseTime, Note: "All validation checks passed"},
			{State: domain.StateEntryPending, Timestamp: baseTime, Note: "Market BUY order for 100 at 100"},
			{State: domain.StateEntered, Timestamp: baseTime.Add(time.Minute), Note: "Filled 100 at 100", Price: 100},
			{State: domain.StatePartialExit1, Timestamp: baseTime.Add(2 * time.Minute), Note: "Target 1 hit at 102, booked 50", Quantity: 50, Price: 102, Exit: domain.ExitTarget},
			{State: domain.StateExited, Timestamp: exitedAt, Note: "Stop loss hit at 98, closed 50", Quantity: 50, Price: 98, Exit: domain.ExitStopLoss},
		},
		CreatedAt: baseTime,
		UpdatedAt: exitedAt,
	}
}

func TestRepository_AuditLog(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	entries := []*domain.AuditEntry{
		{Timestamp: baseTime, Symbol: "BTCUSDT", Kind: domain.AuditHoldDecision, Detail: `{"action":"HOLD"}`},
		{Timestamp: baseTime, Symbol: "ETHUSDT", TradeID: "t-1", Kind: domain.AuditTradeDecision, Detail: `{"action":"EXECUTE_TRADE"}`},
		{Timestamp: baseTime.Add(time.Second), Symbol: "ETHUSDT", TradeID: "t-1", Kind: domain.AuditTransition, Detail: "VALIDATED: ok"},
	}
	for i, e := range entries {
		id, err := repo.Append(ctx, e)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), id)
		assert.Equal(t, id, e.ID)
	}

	tests := []struct {
		name   string
		symbol string
		limit  int
		want   []int64
	}{
		{name: "single symbol newest first", symbol: "ETHUSDT", limit: 10, want: []int64{3, 2}},
		{name: "all symbols", symbol: "", limit: 10, want: []int64{3, 2, 1}},
		{name: "limited", symbol: "", limit: 1, want: []int64{3}},
		{name: "unknown symbol", symbol: "XRPUSDT", limit: 10, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.FindBySymbol(ctx, tt.symbol, tt.limit)
			require.NoError(t, err)
			var ids []int64
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	byTrade, err := repo.FindByTrade(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, byTrade, 2)
	assert.Equal(t, domain.AuditTradeDecision, byTrade[0].Kind)
	assert.Equal(t, "VALIDATED: ok", byTrade[1].Detail)
	assert.True(t, baseTime.Add(time.Second).Equal(byTrade[1].Timestamp))

	holds, err := repo.FindBySymbol(ctx, "BTCUSDT", 10)
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.Empty(t, holds[0].TradeID)
}

func TestRepository_ConcurrentAppends(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Append(ctx, &domain.AuditEntry{
				Timestamp: baseTime, Symbol: "BTCUSDT", Kind: domain.AuditTransition, Detail: fmt.Sprintf("entry %d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := repo.FindBySymbol(ctx, "BTCUSDT", 100)
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

func TestRepository_ArchiveRoundTrip(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	rec := exitedRecord("t-1", -100, baseTime.Add(3*time.Minute))

	require.NoError(t, repo.Archive(ctx, rec))

	got, err := repo.FindByTradeID(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, rec.TradeID, got.TradeID)
	assert.Equal(t, domain.StateExited, got.CurrentState)
	assert.Equal(t, rec.RealizedPnL, got.RealizedPnL)
	assert.Len(t, got.History, 6)
	assert.Len(t, got.Targets.Targets, 2)

	history, err := repo.FindHistory(ctx, "t-1")
	require.NoError(t, err)
	require.Len(t, history, 6)
	assert.Equal(t, domain.StateSignalGenerated, history[0].State)
	assert.Equal(t, domain.ExitTarget, history[4].Exit)
	assert.Equal(t, int64(50), history[5].Quantity)
	assert.Empty(t, history[1].Exit)

	// Re-archiving replaces rather than duplicates.
	require.NoError(t, repo.Archive(ctx, rec))
	history, err = repo.FindHistory(ctx, "t-1")
	require.NoError(t, err)
	assert.Len(t, history, 6)
}

func TestRepository_ArchiveRejectsOpenRecord(t *testing.T) {
	repo := setupTestDB(t)
	rec := exitedRecord("t-1", 0, baseTime)
	rec.CurrentState = domain.StateMonitoring

	err := repo.Archive(context.Background(), rec)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestRepository_FindByTradeIDNotFound(t *testing.T) {
	repo := setupTestDB(t)

	_, err := repo.FindByTradeID(context.Background(), "missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_FindClosed(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	rejected := domain.LifecycleRecord{
		TradeID: "t-r", Symbol: "ETHUSDT", Direction: domain.Sell, CurrentState: domain.StateRejected,
		History:   []domain.StateChange{{State: domain.StateRejected, Timestamp: baseTime, Note: "Validation failed"}},
		CreatedAt: baseTime, UpdatedAt: baseTime,
	}
	require.NoError(t, repo.Archive(ctx, exitedRecord("t-1", -100, baseTime.Add(time.Hour))))
	require.NoError(t, repo.Archive(ctx, exitedRecord("t-2", 250, baseTime.Add(2*time.Hour))))
	require.NoError(t, repo.Archive(ctx, rejected))

	closed, err := repo.FindClosed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, closed, 3)

	assert.Equal(t, "t-2", closed[0].TradeID)
	assert.Equal(t, 250.0, closed[0].PNL)
	assert.Equal(t, domain.ExitStopLoss, closed[0].ExitReason)
	assert.Equal(t, domain.Buy, closed[0].Direction)
	assert.True(t, baseTime.Equal(closed[0].EntryTime))
	assert.True(t, baseTime.Add(2*time.Hour).Equal(closed[0].ExitTime))

	assert.Equal(t, "t-r", closed[2].TradeID)
	assert.Equal(t, domain.StateRejected, closed[2].FinalState)
	assert.Empty(t, closed[2].ExitReason)

	limited, err := repo.FindClosed(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
