package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeGate/internal/domain"
	"tradeGate/internal/lifecycle"
)

// fakeAdvancer enters on fill and exits on cancel or when a tick reaches stop.
type fakeAdvancer struct {
	events []domain.Event
	stop   float64
	rec    domain.LifecycleRecord
}

func (f *fakeAdvancer) AdvanceLifecycle(ctx context.Context, tradeID string, ev domain.Event) (lifecycle.Result, error) {
	f.events = append(f.events, ev)
	var applied []domain.StateChange
	switch ev.Kind {
	case domain.EventOrderFilled:
		f.rec.CurrentState = domain.StateEntered
		applied = append(applied, domain.StateChange{State: domain.StateEntered, Note: "filled"})
	case domain.EventOrderCancelled:
		f.rec.CurrentState = domain.StateExited
		applied = append(applied, domain.StateChange{State: domain.StateExited, Note: ev.Note, Exit: domain.ExitCancelled})
	case domain.EventPriceTick:
		if ev.Price <= f.stop {
			f.rec.CurrentState = domain.StateExited
			applied = append(applied, domain.StateChange{State: domain.StateExited, Note: "stop hit", Exit: domain.ExitStopLoss})
		}
	}
	f.rec.TradeID = tradeID
	return lifecycle.Result{Record: f.rec, Applied: applied}, nil
}

var replayStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func bar(i int, open, high, low, close float64) *domain.Kline {
	ot := replayStart.Add(time.Duration(i) * 5 * time.Minute)
	return &domain.Kline{
		OpenTime: ot, CloseTime: ot.Add(5*time.Minute - time.Second),
		Symbol: "BTCUSDT", Interval: "5m",
		Open: open, High: high, Low: low, Close: close, IsFinal: true,
	}
}

func buyOrder(limit bool, entry float64) *domain.TradeOrder {
	return &domain.TradeOrder{
		TradeID:       "trade-1",
		Signal:        domain.Signal{Symbol: "BTCUSDT", Direction: domain.Buy},
		EntryPrice:    entry,
		UseLimitOrder: limit,
	}
}

func eventKinds(events []domain.Event) []domain.EventKind {
	out := make([]domain.EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func TestReplayer_MarketOrderRunsToStop(t *testing.T) {
	adv := &fakeAdvancer{stop: 95}
	var out bytes.Buffer
	clock := &replayClock{}
	r := &replayer{engine: adv, clock: clock, fillBars: 3, out: &out}

	bars := []*domain.Kline{
		bar(0, 100, 102, 99, 101),
		bar(1, 101, 103, 94, 96),
		bar(2, 96, 97, 90, 91), // never reached
	}
	rec, err := r.run(context.Background(), buyOrder(false, 100), bars)
	require.NoError(t, err)

	assert.Equal(t, domain.StateExited, rec.CurrentState)
	require.Len(t, adv.events, 5)
	assert.Equal(t, domain.EventOrderFilled, adv.events[0].Kind)
	assert.Equal(t, 100.0, adv.events[0].Price)
	assert.Equal(t, []float64{99, 102, 101, 94}, []float64{adv.events[1].Price, adv.events[2].Price, adv.events[3].Price, adv.events[4].Price})
	assert.Equal(t, bars[1].CloseTime, clock.Now())
	assert.Contains(t, out.String(), "ENTERED")
	assert.Contains(t, out.String(), "stop hit")
}

func TestReplayer_LimitOrderCancelledAfterFillBars(t *testing.T) {
	adv := &fakeAdvancer{stop: 90}
	var out bytes.Buffer
	r := &replayer{engine: adv, clock: &replayClock{}, fillBars: 2, out: &out}

	bars := []*domain.Kline{
		bar(0, 101, 102, 100.5, 101.5),
		bar(1, 101.5, 103, 100.2, 102),
		bar(2, 102, 103, 99, 100),
	}
	rec, err := r.run(context.Background(), buyOrder(true, 100), bars)
	require.NoError(t, err)

	assert.Equal(t, domain.StateExited, rec.CurrentState)
	assert.Equal(t, []domain.EventKind{domain.EventOrderCancelled}, eventKinds(adv.events))
	assert.Contains(t, adv.events[0].Note, "not filled within 2 bars")
}

func TestReplayer_LimitOrderFillsWhenCrossed(t *testing.T) {
	adv := &fakeAdvancer{stop: 90}
	r := &replayer{engine: adv, clock: &replayClock{}, fillBars: 3, out: &bytes.Buffer{}}

	bars := []*domain.Kline{
		bar(0, 101, 102, 100.5, 101.5),
		bar(1, 101.5, 102, 99.5, 100.5),
	}
	rec, err := r.run(context.Background(), buyOrder(true, 100), bars)
	require.NoError(t, err)

	assert.Equal(t, domain.StateEntered, rec.CurrentState)
	assert.Equal(t, []domain.EventKind{
		domain.EventOrderFilled, domain.EventPriceTick, domain.EventPriceTick, domain.EventPriceTick,
	}, eventKinds(adv.events))
	assert.Equal(t, 100.0, adv.events[0].Price)
}

func TestReplayer_NoBarsLeavesEntryPending(t *testing.T) {
	adv := &fakeAdvancer{}
	r := &replayer{engine: adv, clock: &replayClock{}, fillBars: 3, out: &bytes.Buffer{}}

	rec, err := r.run(context.Background(), buyOrder(false, 100), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StateEntryPending, rec.CurrentState)
	assert.Equal(t, "trade-1", rec.TradeID)
	assert.Empty(t, adv.events)
}

func TestFillPriceAndTickPath(t *testing.T) {
	b := bar(0, 100, 104, 97, 102)

	tests := []struct {
		name      string
		order     *domain.TradeOrder
		wantPrice float64
		wantFill  bool
	}{
		{"market fills at open", buyOrder(false, 99), 100, true},
		{"buy limit below low", buyOrder(true, 96), 96, false},
		{"buy limit inside range", buyOrder(true, 98), 98, true},
		{"sell limit above high", &domain.TradeOrder{Signal: domain.Signal{Direction: domain.Sell}, EntryPrice: 105, UseLimitOrder: true}, 105, false},
		{"sell limit inside range", &domain.TradeOrder{Signal: domain.Signal{Direction: domain.Sell}, EntryPrice: 103, UseLimitOrder: true}, 103, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			price, ok := fillPrice(tt.order, b)
			assert.Equal(t, tt.wantFill, ok)
			assert.Equal(t, tt.wantPrice, price)
		})
	}

	assert.Equal(t, []float64{97, 104, 102}, tickPath(domain.Buy, b))
	assert.Equal(t, []float64{104, 97, 102}, tickPath(domain.Sell, b))
}

func TestBarsAfter(t *testing.T) {
	bars := []*domain.Kline{bar(0, 1, 1, 1, 1), bar(1, 1, 1, 1, 1), bar(2, 1, 1, 1, 1), bar(3, 1, 1, 1, 1)}

	got := barsAfter(bars, bars[0].CloseTime, 0)
	require.Len(t, got, 3)
	assert.Equal(t, bars[1], got[0])

	got = barsAfter(bars, bars[0].CloseTime, 2)
	assert.Equal(t, []*domain.Kline{bars[1], bars[2]}, got)
}
