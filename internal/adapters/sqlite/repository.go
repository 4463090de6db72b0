package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tradeGate/internal/domain"
	"tradeGate/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.AuditLog and ports.LifecycleArchive interfaces using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trade_gate.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Serializes writers; the audit log is append-only from many goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Debug(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TIMESTAMP NOT NULL,
		symbol TEXT NOT NULL,
		trade_id TEXT NULL,
		kind TEXT NOT NULL,
		detail TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lifecycle_archive (
		trade_id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		final_state TEXT NOT NULL,
		exit_reason TEXT NULL,
		entry_price REAL NOT NULL,
		quantity INTEGER NOT NULL,
		realized_pnl REAL NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		record TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lifecycle_history (
		trade_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		state TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		note TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 0,
		price REAL NOT NULL DEFAULT 0,
		exit_reason TEXT NULL,
		PRIMARY KEY (trade_id, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_symbol_id ON audit_log (symbol, id);
	CREATE INDEX IF NOT EXISTS idx_lifecycle_archive_updated_at ON lifecycle_archive (updated_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- AuditLog Implementation ---

// Append stores one audit entry and returns its assigned ID.
func (r *Repository) Append(ctx context.Context, entry *domain.AuditEntry) (int64, error) {
	const query = `
	INSERT INTO audit_log (timestamp, symbol, trade_id, kind, detail)
	VALUES (?, ?, ?, ?, ?)`

	var tradeID sql.NullString
	if entry.TradeID != "" {
		tradeID = sql.NullString{String: entry.TradeID, Valid: true}
	}
	result, err := r.db.ExecContext(ctx, query, entry.Timestamp.UTC(), entry.Symbol, tradeID, string(entry.Kind), entry.Detail)
	if err != nil {
		return 0, fmt.Errorf("failed to insert audit entry for symbol %s: %w", entry.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for audit entry %s: %w", entry.Symbol, err)
	}
	entry.ID = id
	r.logger.Debug(ctx, "Audit entry appended", map[string]interface{}{"auditID": id, "symbol": entry.Symbol, "kind": entry.Kind})
	return id, nil
}

// FindBySymbol retrieves the most recent audit entries for a symbol, or for every
// symbol when symbol is empty, up to a limit.
func (r *Repository) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.AuditEntry, error) {
	const query = `
	SELECT id, timestamp, symbol, trade_id, kind, detail
	FROM audit_log
	WHERE (? = '' OR symbol = ?) ORDER BY id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log for symbol %s: %w", symbol, err)
	}
	defer rows.Close()

	entries := make([]*domain.AuditEntry, 0)
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry during FindBySymbol: %w", err)
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}
	return entries, nil
}

// FindByTrade retrieves every audit entry of a trade in insertion order.
func (r *Repository) FindByTrade(ctx context.Context, tradeID string) ([]*domain.AuditEntry, error) {
	const query = `
	SELECT id, timestamp, symbol, trade_id, kind, detail
	FROM audit_log
	WHERE trade_id = ? ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log for trade %s: %w", tradeID, err)
	}
	defer rows.Close()

	entries := make([]*domain.AuditEntry, 0)
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry during FindByTrade: %w", err)
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}
	return entries, nil
}

// --- LifecycleArchive Implementation ---

// Archive persists a terminal record and its full state history. Archiving the
// same trade again replaces the previous copy.
func (r *Repository) Archive(ctx context.Context, record domain.LifecycleRecord) error {
	if !record.CurrentState.IsTerminal() {
		return fmt.Errorf("%w: trade %s is still %s", ports.ErrInvalidRequest, record.TradeID, record.CurrentState)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode lifecycle record %s: %w", record.TradeID, err)
	}
	closed := domain.SummarizeRecord(record)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction for trade %s: %w", record.TradeID, err)
	}
	defer tx.Rollback() // No-op after commit

	const upsert = `
	INSERT OR REPLACE INTO lifecycle_archive (trade_id, symbol, direction, final_state, exit_reason,
	                                          entry_price, quantity, realized_pnl, created_at, updated_at, record)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, upsert,
		record.TradeID, record.Symbol, string(record.Direction), string(record.CurrentState), nullString(string(closed.ExitReason)),
		record.EntryPrice, record.Quantity, record.RealizedPnL, record.CreatedAt.UTC(), record.UpdatedAt.UTC(), string(payload))
	if err != nil {
		return fmt.Errorf("failed to archive lifecycle record %s: %w", record.TradeID, err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM lifecycle_history WHERE trade_id = ?`, record.TradeID); err != nil {
		return fmt.Errorf("failed to clear history of trade %s: %w", record.TradeID, err)
	}
	const insertHistory = `
	INSERT INTO lifecycle_history (trade_id, seq, state, timestamp, note, quantity, price, exit_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	for i, h := range record.History {
		_, err = tx.ExecContext(ctx, insertHistory,
			record.TradeID, i, string(h.State), h.Timestamp.UTC(), h.Note, h.Quantity, h.Price, nullString(string(h.Exit)))
		if err != nil {
			return fmt.Errorf("failed to insert history entry %d of trade %s: %w", i, record.TradeID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive of trade %s: %w", record.TradeID, err)
	}
	r.logger.Debug(ctx, "Lifecycle record archived", map[string]interface{}{
		"tradeID": record.TradeID, "state": record.CurrentState, "history": len(record.History),
	})
	return nil
}

// FindByTradeID retrieves an archived lifecycle record.
func (r *Repository) FindByTradeID(ctx context.Context, tradeID string) (*domain.LifecycleRecord, error) {
	const query = `SELECT record FROM lifecycle_archive WHERE trade_id = ?`

	var payload string
	err := r.db.QueryRowContext(ctx, query, tradeID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("trade %s not archived: %w", tradeID, ports.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query archived trade %s: %w", tradeID, err)
	}
	rec := &domain.LifecycleRecord{}
	if err := json.Unmarshal([]byte(payload), rec); err != nil {
		return nil, fmt.Errorf("failed to decode archived trade %s: %w", tradeID, err)
	}
	return rec, nil
}

// FindHistory retrieves the state history of an archived trade, oldest first.
func (r *Repository) FindHistory(ctx context.Context, tradeID string) ([]domain.StateChange, error) {
	const query = `
	SELECT state, timestamp, note, quantity, price, exit_reason
	FROM lifecycle_history
	WHERE trade_id = ? ORDER BY seq ASC`

	rows, err := r.db.QueryContext(ctx, query, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history of trade %s: %w", tradeID, err)
	}
	defer rows.Close()

	history := make([]domain.StateChange, 0)
	for rows.Next() {
		var h domain.StateChange
		var state string
		var exit sql.NullString
		if err := rows.Scan(&state, &h.Timestamp, &h.Note, &h.Quantity, &h.Price, &exit); err != nil {
			return nil, fmt.Errorf("failed to scan history of trade %s: %w", tradeID, err)
		}
		h.State = domain.LifecycleState(state)
		if exit.Valid {
			h.Exit = domain.ExitReason(exit.String)
		}
		history = append(history, h)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}
	return history, nil
}

// FindClosed retrieves closed trades, most recently updated first, up to a limit.
func (r *Repository) FindClosed(ctx context.Context, limit int) ([]*domain.ClosedTrade, error) {
	const query = `
	SELECT trade_id, symbol, direction, final_state, exit_reason, entry_price, quantity,
	       realized_pnl, created_at, updated_at
	FROM lifecycle_archive
	ORDER BY updated_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query closed trades: %w", err)
	}
	defer rows.Close()

	trades := make([]*domain.ClosedTrade, 0)
	for rows.Next() {
		trade, err := scanClosedTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan closed trade during FindClosed: %w", err)
		}
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating closed trade rows: %w", err)
	}
	return trades, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAuditEntry(s scanner) (*domain.AuditEntry, error) {
	e := &domain.AuditEntry{}
	var tradeID sql.NullString
	var kind string
	if err := s.Scan(&e.ID, &e.Timestamp, &e.Symbol, &tradeID, &kind, &e.Detail); err != nil {
		return nil, err
	}
	if tradeID.Valid {
		e.TradeID = tradeID.String
	}
	e.Kind = domain.AuditKind(kind)
	return e, nil
}

func scanClosedTrade(s scanner) (*domain.ClosedTrade, error) {
	ct := &domain.ClosedTrade{}
	var direction, state string
	var exit sql.NullString
	err := s.Scan(&ct.TradeID, &ct.Symbol, &direction, &state, &exit, &ct.EntryPrice, &ct.Quantity,
		&ct.PNL, &ct.EntryTime, &ct.ExitTime)
	if err != nil {
		return nil, err
	}
	ct.Direction = domain.Direction(direction)
	ct.FinalState = domain.LifecycleState(state)
	if exit.Valid {
		ct.ExitReason = domain.ExitReason(exit.String)
	}
	return ct, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
