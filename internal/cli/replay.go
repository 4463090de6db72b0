package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"tradeGate/config"
	"tradeGate/internal/adapters/csvfeed"
	"tradeGate/internal/adapters/logger"
	"tradeGate/internal/domain"
	"tradeGate/internal/lifecycle"
)

type replayParams struct {
	symbol   string
	htf      string
	ltf      string
	at       time.Time
	fillBars int
	maxBars  int
}

// replayClock is moved forward by the replay so lifecycle timestamps follow the data.
type replayClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *replayClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *replayClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type advancer interface {
	AdvanceLifecycle(ctx context.Context, tradeID string, ev domain.Event) (lifecycle.Result, error)
}

// replayer drives one accepted order through historical bars.
type replayer struct {
	engine   advancer
	clock    *replayClock
	fillBars int
	out      io.Writer
}

func runReplay(ctx context.Context, cfg *config.Config, out io.Writer, p replayParams) error {
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	feed, err := csvfeed.New(cfg.CSVDir, log)
	if err != nil {
		return fmt.Errorf("failed to initialize CSV feed: %w", err)
	}
	bars, err := csvfeed.ReadKlines(filepath.Join(cfg.CSVDir, csvfeed.FileName(p.symbol, p.ltf)))
	if err != nil {
		return err
	}

	clock := &replayClock{now: p.at}
	rt, err := newRuntime(ctx, cfg, runtimeOptions{clock: clock.Now, data: feed.AsOf(p.at)})
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	d := rt.engine.EvaluateTradeOpportunity(ctx, p.symbol, p.htf, p.ltf)
	if err := writeJSON(out, d); err != nil {
		return err
	}
	order, ok := d.(*domain.TradeOrder)
	if !ok {
		return nil
	}

	later := barsAfter(bars, p.at, p.maxBars)
	r := &replayer{engine: rt.engine, clock: clock, fillBars: p.fillBars, out: out}
	rec, err := r.run(ctx, order, later)
	if err != nil {
		return err
	}

	stats := rt.ledger.GetStats()
	fmt.Fprintf(out, "\n%s %s: %s, remaining %d, realized P&L %.2f\n",
		order.TradeID, order.Signal.Symbol, rec.CurrentState, rec.Remaining, rec.RealizedPnL)
	fmt.Fprintf(out, "Capital %.2f, available %.2f\n", stats.Capital, stats.Available)
	return nil
}

// barsAfter returns at most limit bars closing after t; zero means no limit.
func barsAfter(bars []*domain.Kline, t time.Time, limit int) []*domain.Kline {
	var out []*domain.Kline
	for _, b := range bars {
		if !b.CloseTime.After(t) {
			continue
		}
		out = append(out, b)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// run fills the order and then ticks each bar adverse extreme first, favorable
// extreme second and close last, until the record is terminal or the bars run out.
func (r *replayer) run(ctx context.Context, order *domain.TradeOrder, bars []*domain.Kline) (domain.LifecycleRecord, error) {
	var rec domain.LifecycleRecord
	rec.TradeID = order.TradeID
	rec.CurrentState = domain.StateEntryPending

	filled := false
	for i, bar := range bars {
		if !filled {
			price, ok := fillPrice(order, bar)
			if !ok {
				if i+1 < r.fillBars {
					continue
				}
				r.clock.Set(bar.CloseTime)
				return r.advance(ctx, order.TradeID, domain.Event{
					Kind: domain.EventOrderCancelled,
					Note: fmt.Sprintf("limit entry not filled within %d bars", r.fillBars),
				})
			}
			r.clock.Set(bar.OpenTime)
			res, err := r.advance(ctx, order.TradeID, domain.Event{Kind: domain.EventOrderFilled, Price: price})
			if err != nil {
				return res, err
			}
			rec, filled = res, true
		}

		for _, price := range tickPath(order.Signal.Direction, bar) {
			r.clock.Set(bar.CloseTime)
			res, err := r.advance(ctx, order.TradeID, domain.Event{Kind: domain.EventPriceTick, Price: price})
			if err != nil {
				return res, err
			}
			rec = res
			if rec.CurrentState.IsTerminal() {
				return rec, nil
			}
		}
	}
	return rec, nil
}

func (r *replayer) advance(ctx context.Context, tradeID string, ev domain.Event) (domain.LifecycleRecord, error) {
	res, err := r.engine.AdvanceLifecycle(ctx, tradeID, ev)
	if err != nil {
		return res.Record, fmt.Errorf("%s on %s: %w", ev.Kind, tradeID, err)
	}
	if len(res.Applied) > 0 {
		if err := writeHistory(r.out, res.Applied); err != nil {
			return res.Record, err
		}
	}
	return res.Record, nil
}

// fillPrice returns the entry fill for bar. Market orders fill at the open; limit
// orders fill at the entry price once the bar trades through it.
func fillPrice(order *domain.TradeOrder, bar *domain.Kline) (float64, bool) {
	if !order.UseLimitOrder {
		return bar.Open, true
	}
	if order.Signal.Direction == domain.Sell {
		return order.EntryPrice, bar.High >= order.EntryPrice
	}
	return order.EntryPrice, bar.Low <= order.EntryPrice
}

func tickPath(dir domain.Direction, bar *domain.Kline) []float64 {
	if dir == domain.Sell {
		return []float64{bar.High, bar.Low, bar.Close}
	}
	return []float64{bar.Low, bar.High, bar.Close}
}
