// Package journal persists settled trades to a local SQLite database so
// the trade history survives process restarts.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nathanyu/algo-trading/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id     TEXT PRIMARY KEY,
	order_id     TEXT NOT NULL DEFAULT '',
	symbol       TEXT NOT NULL,
	quantity     REAL NOT NULL,
	price        REAL NOT NULL,
	commission   REAL NOT NULL DEFAULT 0,
	realized_pnl REAL NOT NULL DEFAULT 0,
	executed_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades (symbol);
CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades (executed_at);
`

// Journal is an append-mostly trade log backed by SQLite.
type Journal struct {
	db *sql.DB
}

// Open opens the journal database at dbPath, creating the file and the
// schema on first use.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordTrade inserts one settled trade. Re-recording the same trade ID
// overwrites the row, so replays are idempotent.
func (j *Journal) RecordTrade(ctx context.Context, trade domain.TradeRecord) error {
	query := `
		INSERT OR REPLACE INTO trades
			(trade_id, order_id, symbol, quantity, price, commission, realized_pnl, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := j.db.ExecContext(ctx, query,
		trade.TradeID,
		trade.OrderID,
		strings.ToUpper(trade.Symbol),
		trade.Quantity,
		trade.Price,
		trade.Commission,
		trade.RealizedPnL,
		trade.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("recording trade %s: %w", trade.TradeID, err)
	}
	return nil
}

// RecentTrades returns up to limit trades ordered oldest to newest. A
// non-positive limit defaults to 100.
func (j *Journal) RecentTrades(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT trade_id, order_id, symbol, quantity, price, commission, realized_pnl, executed_at
		FROM trades
		ORDER BY executed_at DESC, trade_id DESC
		LIMIT ?`

	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// TradesBySymbol returns up to limit trades for one symbol, oldest to
// newest.
func (j *Journal) TradesBySymbol(ctx context.Context, symbol string, limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT trade_id, order_id, symbol, quantity, price, commission, realized_pnl, executed_at
		FROM trades
		WHERE symbol = ?
		ORDER BY executed_at DESC, trade_id DESC
		LIMIT ?`

	rows, err := j.db.QueryContext(ctx, query, strings.ToUpper(symbol), limit)
	if err != nil {
		return nil, fmt.Errorf("querying trades for %s: %w", symbol, err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// TradeCount returns the number of journaled trades.
func (j *Journal) TradeCount(ctx context.Context) (int64, error) {
	var count int64
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting trades: %w", err)
	}
	return count, nil
}

func scanTrades(rows *sql.Rows) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var executedAt int64
		err := rows.Scan(
			&t.TradeID,
			&t.OrderID,
			&t.Symbol,
			&t.Quantity,
			&t.Price,
			&t.Commission,
			&t.RealizedPnL,
			&executedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning trade row: %w", err)
		}
		t.Timestamp = time.UnixMilli(executedAt).UTC()
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading trade rows: %w", err)
	}

	// Rows come back newest first; present them oldest first to match
	// the in-memory trade history.
	for i, k := 0, len(trades)-1; i < k; i, k = i+1, k-1 {
		trades[i], trades[k] = trades[k], trades[i]
	}
	return trades, nil
}
