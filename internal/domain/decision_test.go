package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, d Decision) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestTradeOrder_MarshalJSON(t *testing.T) {
	order := &TradeOrder{
		TradeID: "trade-1",
		Signal: Signal{
			Symbol: "BTCUSDT", Direction: Buy, Confidence: 80, Regime: RegimeTrendBull,
			EntryType: EntryPullback, Reasoning: []string{"Regime TREND_BULL", "HTF aligned"},
		},
		EntryPrice:    500,
		UseLimitOrder: true,
		Stop:          StopPlan{Price: 475, Basis: StopBasisATR, DistancePct: 5},
		Targets: TargetPlan{Targets: []Target{
			{Price: 525, RRRatio: 1, BookPercentage: 50, Kind: TargetFixed},
			{Price: 550, RRRatio: 2, BookPercentage: 50, Kind: TargetFixed},
		}},
		Sizing:    SizingResult{Quantity: 40, CapitalRequired: 20000, RiskAmount: 1000, RiskPct: 1},
		CreatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	got := decode(t, order)

	for _, key := range []string{
		"direction", "entry_price", "entry_type", "use_limit_order", "quantity", "stop_loss",
		"targets", "confidence", "risk_reward", "capital_required", "risk_amount", "risk_pct", "reasoning",
	} {
		assert.Contains(t, got, key)
	}
	assert.Equal(t, "EXECUTE_TRADE", got["action"])
	assert.Equal(t, true, got["validation_passed"])
	assert.Equal(t, "BTCUSDT", got["symbol"])
	assert.Equal(t, "BUY", got["direction"])
	assert.Equal(t, "PULLBACK", got["entry_type"])
	assert.Equal(t, 40.0, got["quantity"])
	assert.Equal(t, 475.0, got["stop_loss"])
	assert.Equal(t, "ATR", got["stop_method"])
	assert.Equal(t, 80.0, got["confidence"])
	assert.Equal(t, 2.0, got["risk_reward"])
	assert.Equal(t, 20000.0, got["capital_required"])
	assert.Equal(t, 1000.0, got["risk_amount"])
	assert.Equal(t, 1.0, got["risk_pct"])
	assert.Equal(t, "Regime TREND_BULL | HTF aligned", got["reasoning"])

	targets, ok := got["targets"].([]interface{})
	require.True(t, ok, "targets must be an array")
	require.Len(t, targets, 2)
	assert.Equal(t, 525.0, targets[0].(map[string]interface{})["price"])

	stop, ok := got["stop"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 5.0, stop["distance_pct"])
}

func TestHoldResult_MarshalJSON(t *testing.T) {
	got := decode(t, &HoldResult{Symbol: "ETHUSDT", Reason: "Confidence 65.0% below threshold 70%", FailedCheck: "confidence"})

	assert.Equal(t, "HOLD", got["action"])
	assert.Equal(t, "HOLD", got["direction"])
	assert.Equal(t, false, got["validation_passed"])
	assert.Equal(t, "Confidence 65.0% below threshold 70%", got["reason"])
	assert.NotContains(t, got, "trade_id")
}
