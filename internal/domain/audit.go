package domain

import "time"

// AuditKind categorizes audit log entries.
type AuditKind string

const (
	AuditTradeDecision AuditKind = "TRADE_DECISION"
	AuditHoldDecision  AuditKind = "HOLD_DECISION"
	AuditTransition    AuditKind = "TRANSITION"
	AuditIgnoredEvent  AuditKind = "IGNORED_EVENT"
	AuditInvalidEvent  AuditKind = "INVALID_EVENT"
)

// AuditEntry is one append-only line of the audit log.
type AuditEntry struct {
	ID        int64 // Set by the repository
	Timestamp time.Time
	Symbol    string
	TradeID   string // Empty for holds that never got a record
	Kind      AuditKind
	Detail    string
}
