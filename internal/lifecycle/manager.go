package lifecycle

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"tradeGate/internal/domain"
	"tradeGate/internal/ports"
)

// Result is the outcome of applying an event to a lifecycle record.
type Result struct {
	Record  domain.LifecycleRecord // Copy of the record after the event
	Applied []domain.StateChange   // Transitions performed, in order
	NoOp    bool                   // The record was already terminal
}

type entry struct {
	mu  sync.Mutex
	rec domain.LifecycleRecord
}

// Manager owns every lifecycle record. Events for one record are applied one at a
// time; events for different records proceed in parallel.
type Manager struct {
	mu       sync.RWMutex
	active   map[string]*entry
	archived map[string]domain.LifecycleRecord
	logger   ports.Logger
	now      func() time.Time
}

// NewManager creates a lifecycle manager. A nil clock uses time.Now.
func NewManager(logger ports.Logger, clock func() time.Time) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for lifecycle manager")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		active:   make(map[string]*entry),
		archived: make(map[string]domain.LifecycleRecord),
		logger:   logger,
		now:      clock,
	}, nil
}

// Open starts tracking an accepted trade order and moves it to ENTRY_PENDING.
func (m *Manager) Open(ctx context.Context, order *domain.TradeOrder) (Result, error) {
	if order == nil || order.TradeID == "" {
		return Result{}, fmt.Errorf("%w: trade order with an ID is required", ports.ErrInvalidRequest)
	}
	if order.Sizing.Quantity <= 0 || !order.Stop.IsValid() || len(order.Targets.Targets) == 0 {
		return Result{}, fmt.Errorf("%w: trade %s is not executable", ports.ErrInvalidRequest, order.TradeID)
	}

	at := order.CreatedAt
	if at.IsZero() {
		at = m.now()
	}
	rec := newRecord(order.TradeID, order.Signal, at)
	rec.EntryPrice = order.EntryPrice
	rec.Quantity = order.Sizing.Quantity
	rec.Remaining = order.Sizing.Quantity
	rec.StopPrice = order.Stop.Price
	rec.NextTarget = 1
	rec.Targets = domain.TargetPlan{Targets: append([]domain.Target(nil), order.Targets.Targets...)}
	rec.Trailing = order.Trailing

	orderKind := "Market"
	if order.UseLimitOrder {
		orderKind = "Limit"
	}
	applied := append([]domain.StateChange(nil), rec.History...)
	for _, ev := range []domain.Event{
		{Kind: domain.EventValidated, At: at},
		{Kind: domain.EventOrderPlaced, At: at, Note: fmt.Sprintf("%s %s order for %d at %s", orderKind, order.Signal.Direction, rec.Quantity, num(rec.EntryPrice))},
	} {
		changes, err := m.apply(&rec, ev)
		if err != nil {
			return Result{}, err
		}
		applied = append(applied, changes...)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[rec.TradeID]; ok {
		return Result{}, fmt.Errorf("%w: trade %s already tracked", ports.ErrDuplicateEntry, rec.TradeID)
	}
	if _, ok := m.archived[rec.TradeID]; ok {
		return Result{}, fmt.Errorf("%w: trade %s already archived", ports.ErrDuplicateEntry, rec.TradeID)
	}
	m.active[rec.TradeID] = &entry{rec: rec}

	m.logger.Info(ctx, "Lifecycle opened", map[string]interface{}{
		"tradeID": rec.TradeID, "symbol": rec.Symbol, "state": rec.CurrentState, "quantity": rec.Quantity,
	})
	return Result{Record: rec.Clone(), Applied: applied}, nil
}

// Reject records a signal that failed validation. The record is terminal at once.
func (m *Manager) Reject(ctx context.Context, tradeID string, signal domain.Signal, reason string) (Result, error) {
	if tradeID == "" {
		return Result{}, fmt.Errorf("%w: trade ID is required", ports.ErrInvalidRequest)
	}
	at := signal.CreatedAt
	if at.IsZero() {
		at = m.now()
	}
	rec := newRecord(tradeID, signal, at)
	applied := append([]domain.StateChange(nil), rec.History...)
	changes, err := m.apply(&rec, domain.Event{Kind: domain.EventRejected, Note: reason, At: at})
	if err != nil {
		return Result{}, err
	}
	applied = append(applied, changes...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.archived[tradeID]; ok {
		return Result{}, fmt.Errorf("%w: trade %s already archived", ports.ErrDuplicateEntry, tradeID)
	}
	if _, ok := m.active[tradeID]; ok {
		return Result{}, fmt.Errorf("%w: trade %s already tracked", ports.ErrDuplicateEntry, tradeID)
	}
	m.archived[tradeID] = rec

	m.logger.Info(ctx, "Lifecycle rejected", map[string]interface{}{
		"tradeID": tradeID, "symbol": rec.Symbol, "reason": reason,
	})
	return Result{Record: rec.Clone(), Applied: applied}, nil
}

// Advance applies an event to a trade. Events on terminal records are no-ops.
// An event the current state cannot accept returns an error wrapping
// ErrInvalidTransition and leaves the record untouched.
func (m *Manager) Advance(ctx context.Context, tradeID string, ev domain.Event) (Result, error) {
	op := "Advance"
	m.mu.RLock()
	e, ok := m.active[tradeID]
	arch, archived := m.archived[tradeID]
	m.mu.RUnlock()

	if !ok {
		if archived {
			return Result{Record: arch.Clone(), NoOp: true}, nil
		}
		return Result{}, fmt.Errorf("%w: trade %s", ports.ErrNotFound, tradeID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec.CurrentState.IsTerminal() {
		return Result{Record: e.rec.Clone(), NoOp: true}, nil
	}

	work := e.rec.Clone()
	applied, err := m.apply(&work, ev)
	if err != nil {
		m.logger.Warn(ctx, op+": Event rejected", map[string]interface{}{
			"tradeID": tradeID, "state": e.rec.CurrentState, "event": ev.Kind, "error": err.Error(),
		})
		return Result{Record: e.rec.Clone()}, err
	}
	e.rec = work

	for _, c := range applied {
		m.logger.Info(ctx, op+": Lifecycle transition", map[string]interface{}{
			"tradeID": tradeID, "state": c.State, "note": c.Note,
		})
	}

	if work.CurrentState.IsTerminal() {
		m.mu.Lock()
		delete(m.active, tradeID)
		m.archived[tradeID] = work.Clone()
		m.mu.Unlock()
	}
	return Result{Record: work.Clone(), Applied: applied}, nil
}

// Get returns a copy of a tracked or archived record.
func (m *Manager) Get(tradeID string) (domain.LifecycleRecord, bool) {
	m.mu.RLock()
	e, ok := m.active[tradeID]
	arch, archived := m.archived[tradeID]
	m.mu.RUnlock()
	if archived {
		return arch.Clone(), true
	}
	if !ok {
		return domain.LifecycleRecord{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), true
}

// Active returns copies of all non-terminal records, oldest first.
func (m *Manager) Active() []domain.LifecycleRecord {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.active))
	for _, e := range m.active {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]domain.LifecycleRecord, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.rec.CurrentState.IsTerminal() {
			out = append(out, e.rec.Clone())
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TradeID < out[j].TradeID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func newRecord(tradeID string, signal domain.Signal, at time.Time) domain.LifecycleRecord {
	note := signal.Summary()
	if note == "" {
		note = fmt.Sprintf("%s signal for %s", signal.Direction, signal.Symbol)
	}
	first := domain.StateChange{State: domain.StateSignalGenerated, Timestamp: at, Note: note}
	return domain.LifecycleRecord{
		TradeID:      tradeID,
		Symbol:       signal.Symbol,
		Direction:    signal.Direction,
		CurrentState: domain.StateSignalGenerated,
		History:      []domain.StateChange{first},
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

// apply runs one event against rec. On error rec may be partially modified, so
// callers apply events to a copy.
func (m *Manager) apply(rec *domain.LifecycleRecord, ev domain.Event) ([]domain.StateChange, error) {
	if !Accepts(rec.CurrentState, ev.Kind) {
		return nil, fmt.Errorf("%w: %s in state %s", ports.ErrInvalidTransition, ev.Kind, rec.CurrentState)
	}
	at := ev.At
	if at.IsZero() {
		at = m.now()
	}
	t := &txn{rec: rec, at: at}

	var err error
	switch ev.Kind {
	case domain.EventValidated:
		err = t.move(domain.StateValidated, domain.StateChange{Note: noteOr(ev.Note, "All validation checks passed")})
	case domain.EventRejected:
		err = t.move(domain.StateRejected, domain.StateChange{Note: noteOr(ev.Note, "Validation failed")})
	case domain.EventOrderPlaced:
		err = t.move(domain.StateEntryPending, domain.StateChange{Note: noteOr(ev.Note, "Entry order placed")})
	case domain.EventOrderFilled:
		err = t.fill(ev.Price)
	case domain.EventOrderCancelled:
		err = t.move(domain.StateExited, domain.StateChange{Note: noteOr(ev.Note, "Entry order cancelled"), Exit: domain.ExitCancelled})
	case domain.EventTargetHit:
		err = t.hitTarget(ev.Target, ev.Price)
	case domain.EventStopHit:
		err = t.stopOut(ev.Price, domain.ExitStopLoss)
	case domain.EventTrailStopHit:
		err = t.stopOut(ev.Price, domain.ExitTrailStop)
	case domain.EventPriceTick:
		err = t.tick(ev.Price)
	default:
		err = fmt.Errorf("%w: unknown event %q", ports.ErrInvalidTransition, ev.Kind)
	}
	if err != nil {
		return nil, err
	}
	rec.UpdatedAt = at
	return t.applied, nil
}

// txn accumulates the transitions caused by a single event.
type txn struct {
	rec     *domain.LifecycleRecord
	at      time.Time
	applied []domain.StateChange
}

func (t *txn) move(to domain.LifecycleState, change domain.StateChange) error {
	if !CanTransition(t.rec.CurrentState, to) {
		return fmt.Errorf("%w: %s -> %s", ports.ErrInvalidTransition, t.rec.CurrentState, to)
	}
	change.State = to
	change.Timestamp = t.at
	t.rec.CurrentState = to
	t.rec.History = append(t.rec.History, change)
	t.applied = append(t.applied, change)
	return nil
}

func (t *txn) close(qty int64, price float64) {
	t.rec.Remaining -= qty
	t.rec.RealizedPnL += float64(qty) * (price - t.rec.EntryPrice) * t.rec.Direction.Sign()
}

func (t *txn) fill(price float64) error {
	r := t.rec
	if price > 0 {
		r.EntryPrice = price
		r.Trailing.EntryPrice = price
	}
	r.HighestPrice, r.LowestPrice = r.EntryPrice, r.EntryPrice
	err := t.move(domain.StateEntered, domain.StateChange{
		Note:  fmt.Sprintf("Filled %d at %s", r.Quantity, num(r.EntryPrice)),
		Price: r.EntryPrice,
	})
	if err != nil {
		return err
	}
	return t.trailIfNext()
}

// trailIfNext moves to TRAILING once the next target is the trailing one.
func (t *txn) trailIfNext() error {
	r := t.rec
	if r.NextTarget < 1 || r.NextTarget > len(r.Targets.Targets) || r.Targets.Targets[r.NextTarget-1].Kind != domain.TargetTrail {
		return nil
	}
	return t.move(domain.StateTrailing, domain.StateChange{
		Note: fmt.Sprintf("Trailing remaining %d", r.Remaining),
	})
}

func (t *txn) hitTarget(i int, price float64) error {
	r := t.rec
	n := len(r.Targets.Targets)
	if i < 1 || i > n || i != r.NextTarget {
		return fmt.Errorf("%w: target %d hit but next target is %d", ports.ErrInvalidTransition, i, r.NextTarget)
	}
	target := r.Targets.Targets[i-1]
	if target.Kind != domain.TargetFixed {
		return fmt.Errorf("%w: target %d trails and has no fixed price", ports.ErrInvalidTransition, i)
	}
	if price <= 0 {
		price = target.Price
	}

	final := i == n
	to := domain.StateExited
	qty := r.Remaining
	if !final {
		to = partialState(r.CurrentState)
		qty = bookedQuantity(r.Quantity, target.BookPercentage, r.Remaining)
		if qty == 0 {
			// Too small to split; the quantity rides to the next target.
			r.NextTarget = i + 1
			return t.trailIfNext()
		}
	}
	t.close(qty, price)
	r.NextTarget = i + 1

	verb := "booked"
	if final {
		verb = "closed"
	}
	err := t.move(to, domain.StateChange{
		Note:     fmt.Sprintf("Target %d hit at %s, %s %d", i, num(price), verb, qty),
		Quantity: qty,
		Price:    price,
		Exit:     domain.ExitTarget,
	})
	if err != nil || final {
		return err
	}
	return t.trailIfNext()
}

func (t *txn) stopOut(price float64, reason domain.ExitReason) error {
	r := t.rec
	if price <= 0 {
		price = r.ActiveStop()
	}
	qty := r.Remaining
	t.close(qty, price)

	label := "Stop loss"
	if reason == domain.ExitTrailStop {
		label = "Trailing stop"
	}
	return t.move(domain.StateExited, domain.StateChange{
		Note:     fmt.Sprintf("%s hit at %s, closed %d", label, num(price), qty),
		Quantity: qty,
		Price:    price,
		Exit:     reason,
	})
}

// tick re-evaluates an open position against its stop, targets and trailing rule.
// The stop is checked first so a tick through both the stop and a target exits.
func (t *txn) tick(price float64) error {
	r := t.rec
	if price <= 0 {
		return fmt.Errorf("%w: price tick needs a positive price", ports.ErrInvalidRequest)
	}
	sign := r.Direction.Sign()
	if price > r.HighestPrice {
		r.HighestPrice = price
	}
	if r.LowestPrice == 0 || price < r.LowestPrice {
		r.LowestPrice = price
	}

	stop := r.ActiveStop()
	if stop > 0 && (price-stop)*sign <= 0 {
		reason := domain.ExitStopLoss
		if r.CurrentState == domain.StateTrailing && r.TrailingStop > 0 && stop == r.TrailingStop {
			reason = domain.ExitTrailStop
		}
		return t.stopOut(price, reason)
	}

	if r.CurrentState == domain.StateEntered {
		if err := t.move(domain.StateMonitoring, domain.StateChange{Note: "Monitoring open position"}); err != nil {
			return err
		}
	}

	for r.CurrentState != domain.StateExited && r.CurrentState != domain.StateTrailing && r.NextTarget <= len(r.Targets.Targets) {
		target := r.Targets.Targets[r.NextTarget-1]
		if target.Kind != domain.TargetFixed || (price-target.Price)*sign < 0 {
			break
		}
		if err := t.hitTarget(r.NextTarget, target.Price); err != nil {
			return err
		}
	}

	if r.CurrentState == domain.StateTrailing {
		if next, active := r.Trailing.Next(price, r.TrailingStop); active {
			r.TrailingStop = next
		}
	}
	return nil
}

// partialState is the state after the next partial booking from current.
func partialState(current domain.LifecycleState) domain.LifecycleState {
	if current == domain.StatePartialExit1 || current == domain.StatePartialExit2 {
		return domain.StatePartialExit2
	}
	return domain.StatePartialExit1
}

// bookedQuantity is the whole quantity booked at a partial target, never more than what remains.
func bookedQuantity(total int64, pct float64, remaining int64) int64 {
	q := int64(math.Floor(float64(total)*pct/100 + 1e-9))
	if q > remaining {
		return remaining
	}
	return q
}

func noteOr(note, fallback string) string {
	if note != "" {
		return note
	}
	return fallback
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
