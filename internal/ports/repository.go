package ports

import (
	"context"

	"tradeGate/internal/domain"
)

// AuditLog is the append-only audit trail of decisions and transitions.
type AuditLog interface {
	// Append stores one entry and returns its assigned ID.
	Append(ctx context.Context, entry *domain.AuditEntry) (int64, error)
	// FindBySymbol retrieves the most recent entries for a symbol (all symbols when empty), up to a limit.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.AuditEntry, error)
}

// LifecycleArchive stores lifecycle records that reached a terminal state.
type LifecycleArchive interface {
	// Archive persists the record and its full history.
	Archive(ctx context.Context, record domain.LifecycleRecord) error
	// FindByTradeID retrieves an archived record.
	// Returns an error wrapping ErrNotFound if the trade was never archived.
	FindByTradeID(ctx context.Context, tradeID string) (*domain.LifecycleRecord, error)
	// FindClosed retrieves closed trades, most recent first, up to a limit.
	FindClosed(ctx context.Context, limit int) ([]*domain.ClosedTrade, error)
}

// EventPublisher forwards decisions and lifecycle transitions to downstream consumers.
type EventPublisher interface {
	PublishDecision(ctx context.Context, decision domain.Decision) error
	PublishTransition(ctx context.Context, record domain.LifecycleRecord, change domain.StateChange) error
	Close() error
}
