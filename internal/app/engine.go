package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tradeGate/internal/domain"
	"tradeGate/internal/lifecycle"
	"tradeGate/internal/ports"
	"tradeGate/internal/risk"
	"tradeGate/internal/strategy"
	"tradeGate/internal/validation"
)

// reservationCheck names the commit step in hold results.
const reservationCheck = "reservation"

// Ports groups the external collaborators of the engine.
type Ports struct {
	Data      ports.SnapshotProvider
	Portfolio ports.Portfolio
	Audit     ports.AuditLog
	Archive   ports.LifecycleArchive // Optional
	Publisher ports.EventPublisher   // Optional
}

// Components groups the decision stages of the engine.
type Components struct {
	Strategy  *strategy.Strategy
	Stops     *risk.StopResolver
	Targets   *risk.TargetPlanner
	Sizer     *risk.Sizer
	Pipeline  *validation.Pipeline
	Lifecycle *lifecycle.Manager

	Clock      func() time.Time // Defaults to time.Now
	NewTradeID func() string    // Defaults to random UUIDs
}

// Engine evaluates trade opportunities and drives accepted trades through their lifecycle.
type Engine struct {
	logger ports.Logger
	ports  Ports
	c      Components
}

// NewEngine creates a new engine instance.
func NewEngine(logger ports.Logger, p Ports, c Components) (*Engine, error) {
	if logger == nil || p.Data == nil || p.Portfolio == nil || p.Audit == nil {
		return nil, fmt.Errorf("missing required dependencies for Engine")
	}
	if c.Strategy == nil || c.Stops == nil || c.Targets == nil || c.Sizer == nil || c.Pipeline == nil || c.Lifecycle == nil {
		return nil, fmt.Errorf("missing decision components for Engine")
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.NewTradeID == nil {
		c.NewTradeID = uuid.NewString
	}
	return &Engine{logger: logger, ports: p, c: c}, nil
}

// EvaluateTradeOpportunity decides whether to trade symbol using the higher and lower
// timeframe snapshots. It returns a *domain.TradeOrder only when every validation check
// passed and the portfolio reservation committed; otherwise a *domain.HoldResult.
func (e *Engine) EvaluateTradeOpportunity(ctx context.Context, symbol, higherTF, lowerTF string) domain.Decision {
	op := "EvaluateTradeOpportunity"
	now := e.c.Clock()

	if ctx.Err() != nil {
		return e.hold(ctx, &domain.HoldResult{Symbol: symbol, Reason: "Evaluation cancelled", CreatedAt: now})
	}

	htf, err := e.ports.Data.GetSnapshot(ctx, symbol, higherTF)
	if err != nil {
		return e.hold(ctx, &domain.HoldResult{Symbol: symbol, Reason: dataReason(symbol, higherTF, err), CreatedAt: now})
	}
	ltf, err := e.ports.Data.GetSnapshot(ctx, symbol, lowerTF)
	if err != nil {
		return e.hold(ctx, &domain.HoldResult{Symbol: symbol, Reason: dataReason(symbol, lowerTF, err), CreatedAt: now})
	}

	analysis := e.c.Strategy.Analyze(ctx, htf, ltf, now)
	signal := analysis.Signal
	signal.Symbol = symbol
	entry := analysis.Entry
	dir := signal.Direction

	var stop domain.StopPlan
	var targets domain.TargetPlan
	var trailing domain.TrailingRule
	if dir.IsTradable() && entry.EntryPrice > 0 {
		stop = e.c.Stops.Resolve(dir, entry.EntryPrice, ltf)
		if stop.IsValid() {
			targets = e.c.Targets.Plan(dir, entry.EntryPrice, stop.Price, ltf.StructureLevels(dir))
			trailing = e.c.Targets.Trailing(dir, entry.EntryPrice, ltf.ATR)
			signal.Reasoning = append(signal.Reasoning,
				fmt.Sprintf("Stop %s (%s, %s%%)", num(stop.Price), stop.Basis, num(round2(stop.DistancePct))),
				fmt.Sprintf("R:R %s", num(round2(targets.RiskReward()))),
			)
		}
	}

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return e.hold(ctx, &domain.HoldResult{Symbol: symbol, Reason: "Evaluation cancelled", Signal: &signal, CreatedAt: now})
		}

		snap, err := e.ports.Portfolio.Snapshot(ctx, symbol)
		if err != nil {
			e.logger.Error(ctx, err, op+": Failed to read portfolio state", map[string]interface{}{"symbol": symbol})
			return e.hold(ctx, &domain.HoldResult{Symbol: symbol, Reason: "Portfolio state unavailable", Signal: &signal, CreatedAt: now})
		}

		var sizing domain.SizingResult
		if stop.IsValid() {
			sizing = e.c.Sizer.Size(snap.TotalCapital, signal.Confidence, entry.EntryPrice, stop.Price)
		}

		res := e.c.Pipeline.Run(ctx, &validation.Input{
			Symbol:    symbol,
			Signal:    signal,
			Alignment: analysis.Classification.AlignmentReason,
			Entry:     entry,
			LTF:       ltf,
			Stop:      stop,
			Targets:   targets,
			Sizing:    sizing,
			Portfolio: snap,
			Now:       now,
		})
		if !res.Passed {
			return e.reject(ctx, signal, res.FailedCheck, res.Reason, now)
		}

		tradeID := e.c.NewTradeID()
		err = e.ports.Portfolio.Reserve(ctx, ports.Reservation{
			TradeID:         tradeID,
			Symbol:          symbol,
			Direction:       dir,
			EntryPrice:      entry.EntryPrice,
			Quantity:        sizing.Quantity,
			Capital:         sizing.CapitalRequired,
			Risk:            sizing.ActualRisk,
			ExpectedVersion: snap.Version,
			At:              now,
		})
		if err == nil {
			signal.Reasoning = append(signal.Reasoning, fmt.Sprintf("Size %d (%s%% risk)", sizing.Quantity, num(round2(sizing.RiskPct))))
			return e.accept(ctx, &domain.TradeOrder{
				TradeID:       tradeID,
				Signal:        signal,
				EntryPrice:    entry.EntryPrice,
				UseLimitOrder: entry.UseLimitOrder,
				Stop:          stop,
				Targets:       targets,
				Trailing:      trailing,
				Sizing:        sizing,
				CreatedAt:     now,
			})
		}

		if errors.Is(err, ports.ErrResourceContention) && attempt == 1 {
			e.logger.Warn(ctx, op+": Portfolio changed during validation, retrying", map[string]interface{}{"symbol": symbol})
			continue
		}
		e.logger.Warn(ctx, op+": Reservation failed", map[string]interface{}{"symbol": symbol, "error": err.Error()})
		return e.hold(ctx, &domain.HoldResult{
			Symbol:      symbol,
			Reason:      reservationReason(err),
			FailedCheck: reservationCheck,
			Signal:      &signal,
			CreatedAt:   now,
		})
	}
}

// Scan evaluates several symbols concurrently, at most limit at a time, and returns
// the decisions in the order of symbols.
func (e *Engine) Scan(ctx context.Context, symbols []string, higherTF, lowerTF string, limit int) []domain.Decision {
	decisions := make([]domain.Decision, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, symbol := range symbols {
		g.Go(func() error {
			decisions[i] = e.EvaluateTradeOpportunity(gctx, symbol, higherTF, lowerTF)
			return nil
		})
	}
	_ = g.Wait()
	return decisions
}

// AdvanceLifecycle applies an event to an accepted trade, settles closed quantity in
// the portfolio and records every transition.
func (e *Engine) AdvanceLifecycle(ctx context.Context, tradeID string, ev domain.Event) (lifecycle.Result, error) {
	op := "AdvanceLifecycle"
	if ev.At.IsZero() {
		ev.At = e.c.Clock()
	}

	res, err := e.c.Lifecycle.Advance(ctx, tradeID, ev)
	if err != nil {
		if errors.Is(err, ports.ErrInvalidTransition) {
			e.appendAudit(ctx, &domain.AuditEntry{
				Timestamp: ev.At, Symbol: res.Record.Symbol, TradeID: tradeID,
				Kind: domain.AuditInvalidEvent, Detail: err.Error(),
			})
		}
		return res, err
	}
	if res.NoOp {
		e.appendAudit(ctx, &domain.AuditEntry{
			Timestamp: ev.At, Symbol: res.Record.Symbol, TradeID: tradeID,
			Kind:   domain.AuditIgnoredEvent,
			Detail: fmt.Sprintf("%s ignored in terminal state %s", ev.Kind, res.Record.CurrentState),
		})
		return res, nil
	}

	for _, change := range res.Applied {
		switch {
		case change.State == domain.StateEntered && change.Price > 0:
			if err := e.ports.Portfolio.Fill(ctx, tradeID, change.Price); err != nil {
				e.logger.Error(ctx, err, op+": Failed to record fill", map[string]interface{}{"tradeID": tradeID, "price": change.Price})
			}
		case change.Exit == domain.ExitCancelled:
			if err := e.ports.Portfolio.Release(ctx, tradeID); err != nil {
				e.logger.Error(ctx, err, op+": Failed to release reservation", map[string]interface{}{"tradeID": tradeID})
			}
		case change.Quantity > 0 && change.Exit != "":
			pnl, err := e.ports.Portfolio.Settle(ctx, tradeID, change.Quantity, change.Price)
			if err != nil {
				e.logger.Error(ctx, err, op+": Failed to settle exit", map[string]interface{}{"tradeID": tradeID, "state": change.State})
			} else {
				e.logger.Info(ctx, op+": Exit settled", map[string]interface{}{
					"tradeID": tradeID, "quantity": change.Quantity, "price": change.Price, "pnl": pnl,
				})
			}
		}
		e.recordTransition(ctx, res.Record, change)
	}

	if res.Record.CurrentState.IsTerminal() {
		e.archive(ctx, res.Record)
	}
	return res, nil
}

// ActiveTrades returns the records of all open trades.
func (e *Engine) ActiveTrades() []domain.LifecycleRecord {
	return e.c.Lifecycle.Active()
}

// Trade returns the record of a tracked or archived trade.
func (e *Engine) Trade(tradeID string) (domain.LifecycleRecord, bool) {
	return e.c.Lifecycle.Get(tradeID)
}

func (e *Engine) accept(ctx context.Context, order *domain.TradeOrder) domain.Decision {
	op := "accept"
	res, err := e.c.Lifecycle.Open(ctx, order)
	if err != nil {
		e.logger.Error(ctx, err, op+": Failed to open lifecycle, releasing reservation", map[string]interface{}{"tradeID": order.TradeID})
		if relErr := e.ports.Portfolio.Release(ctx, order.TradeID); relErr != nil {
			e.logger.Error(ctx, relErr, op+": Failed to release reservation", map[string]interface{}{"tradeID": order.TradeID})
		}
		return e.hold(ctx, &domain.HoldResult{
			Symbol: order.Signal.Symbol, Reason: "Trade could not be opened", Signal: &order.Signal, CreatedAt: order.CreatedAt,
		})
	}

	e.logger.Info(ctx, "Trade accepted", map[string]interface{}{
		"tradeID":    order.TradeID,
		"symbol":     order.Signal.Symbol,
		"direction":  order.Signal.Direction,
		"entry":      order.EntryPrice,
		"stop":       order.Stop.Price,
		"quantity":   order.Sizing.Quantity,
		"confidence": order.Signal.Confidence,
	})
	e.appendAudit(ctx, &domain.AuditEntry{
		Timestamp: order.CreatedAt, Symbol: order.Signal.Symbol, TradeID: order.TradeID,
		Kind: domain.AuditTradeDecision, Detail: decisionDetail(order),
	})
	e.publishDecision(ctx, order)
	for _, change := range res.Applied {
		e.recordTransition(ctx, res.Record, change)
	}
	return order
}

// reject turns a failed validation into a hold. Signals with a tradable direction
// leave a REJECTED lifecycle record behind.
func (e *Engine) reject(ctx context.Context, signal domain.Signal, check, reason string, now time.Time) domain.Decision {
	h := &domain.HoldResult{Symbol: signal.Symbol, Reason: reason, FailedCheck: check, Signal: &signal, CreatedAt: now}
	if !signal.Direction.IsTradable() {
		return e.hold(ctx, h)
	}

	res, err := e.c.Lifecycle.Reject(ctx, e.c.NewTradeID(), signal, reason)
	if err != nil {
		e.logger.Error(ctx, err, "reject: Failed to record rejected lifecycle", map[string]interface{}{"symbol": signal.Symbol})
		return e.hold(ctx, h)
	}
	h.TradeID = res.Record.TradeID
	decision := e.hold(ctx, h)
	for _, change := range res.Applied {
		e.recordTransition(ctx, res.Record, change)
	}
	e.archive(ctx, res.Record)
	return decision
}

func (e *Engine) hold(ctx context.Context, h *domain.HoldResult) domain.Decision {
	e.logger.Info(ctx, "Trade held", map[string]interface{}{
		"symbol": h.Symbol,
		"check":  h.FailedCheck,
		"reason": h.Reason,
	})
	e.appendAudit(ctx, &domain.AuditEntry{
		Timestamp: h.CreatedAt, Symbol: h.Symbol, TradeID: h.TradeID,
		Kind: domain.AuditHoldDecision, Detail: decisionDetail(h),
	})
	e.publishDecision(ctx, h)
	return h
}

func (e *Engine) recordTransition(ctx context.Context, rec domain.LifecycleRecord, change domain.StateChange) {
	e.appendAudit(ctx, &domain.AuditEntry{
		Timestamp: change.Timestamp, Symbol: rec.Symbol, TradeID: rec.TradeID,
		Kind: domain.AuditTransition, Detail: fmt.Sprintf("%s: %s", change.State, change.Note),
	})
	if e.ports.Publisher == nil {
		return
	}
	if err := e.ports.Publisher.PublishTransition(ctx, rec, change); err != nil {
		e.logger.Error(ctx, err, "Failed to publish lifecycle transition", map[string]interface{}{
			"tradeID": rec.TradeID, "state": change.State,
		})
	}
}

func (e *Engine) appendAudit(ctx context.Context, entry *domain.AuditEntry) {
	if _, err := e.ports.Audit.Append(ctx, entry); err != nil {
		e.logger.Error(ctx, err, "Failed to append audit entry", map[string]interface{}{
			"symbol": entry.Symbol, "kind": entry.Kind,
		})
	}
}

func (e *Engine) publishDecision(ctx context.Context, d domain.Decision) {
	if e.ports.Publisher == nil {
		return
	}
	if err := e.ports.Publisher.PublishDecision(ctx, d); err != nil {
		e.logger.Error(ctx, err, "Failed to publish decision", map[string]interface{}{"symbol": d.DecisionSymbol()})
	}
}

func (e *Engine) archive(ctx context.Context, rec domain.LifecycleRecord) {
	if e.ports.Archive == nil {
		return
	}
	if err := e.ports.Archive.Archive(ctx, rec); err != nil {
		e.logger.Error(ctx, err, "Failed to archive lifecycle record", map[string]interface{}{"tradeID": rec.TradeID})
	}
}

func dataReason(symbol, timeframe string, err error) string {
	if errors.Is(err, ports.ErrDataUnavailable) {
		return fmt.Sprintf("Insufficient data for %s %s", symbol, timeframe)
	}
	return fmt.Sprintf("Market data unavailable for %s %s", symbol, timeframe)
}

func reservationReason(err error) string {
	switch {
	case errors.Is(err, ports.ErrResourceContention):
		return "Portfolio contention: capital reservation lost to a concurrent trade"
	case errors.Is(err, ports.ErrInsufficientFunds):
		return "Insufficient capital at reservation"
	default:
		return "Capital reservation failed"
	}
}

// decisionDetail serializes a decision for the audit log.
func decisionDetail(d domain.Decision) string {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprintf("unserializable decision for %s: %v", d.DecisionSymbol(), err)
	}
	return string(b)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
