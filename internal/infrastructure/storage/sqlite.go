package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_spread_arb/internal/domain"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS closed_trades (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			buy_venue TEXT NOT NULL,
			sell_venue TEXT NOT NULL,
			entry_price_a REAL NOT NULL,
			entry_price_b REAL NOT NULL,
			exit_price_a REAL NOT NULL,
			exit_price_b REAL NOT NULL,
			quantity REAL NOT NULL,
			fees REAL NOT NULL,
			gross_profit REAL NOT NULL,
			net_profit REAL NOT NULL,
			close_failed BOOLEAN NOT NULL DEFAULT 0,
			opened_at DATETIME NOT NULL,
			closed_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_closed_trades_symbol ON closed_trades(symbol);`,
		`CREATE TABLE IF NOT EXISTS session_reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			start_time DATETIME NOT NULL,
			end_time DATETIME NOT NULL,
			tick_count INTEGER NOT NULL,
			max_symbol TEXT,
			max_diff_percent REAL NOT NULL,
			avg_diff_percent REAL NOT NULL,
			trades_closed INTEGER NOT NULL,
			net_profit REAL NOT NULL
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

func (s *SQLiteStore) SaveClosedTrade(ctx context.Context, trade *domain.ClosedTrade) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO closed_trades (
			id, symbol, buy_venue, sell_venue,
			entry_price_a, entry_price_b, exit_price_a, exit_price_b,
			quantity, fees, gross_profit, net_profit, close_failed,
			opened_at, closed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, trade.Symbol, trade.BuyVenue, trade.SellVenue,
		trade.EntryPriceA, trade.EntryPriceB, trade.ExitPriceA, trade.ExitPriceB,
		trade.Quantity, trade.Fees, trade.GrossProfit, trade.NetProfit, trade.CloseFailed,
		trade.OpenedAt, trade.ClosedAt,
	)
	return err
}

func (s *SQLiteStore) ListClosedTrades(ctx context.Context, limit int) ([]*domain.ClosedTrade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, symbol, buy_venue, sell_venue,
			entry_price_a, entry_price_b, exit_price_a, exit_price_b,
			quantity, fees, gross_profit, net_profit, close_failed,
			opened_at, closed_at
		FROM closed_trades ORDER BY closed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*domain.ClosedTrade
	for rows.Next() {
		t := &domain.ClosedTrade{}
		if err := rows.Scan(
			&t.ID, &t.Symbol, &t.BuyVenue, &t.SellVenue,
			&t.EntryPriceA, &t.EntryPriceB, &t.ExitPriceA, &t.ExitPriceB,
			&t.Quantity, &t.Fees, &t.GrossProfit, &t.NetProfit, &t.CloseFailed,
			&t.OpenedAt, &t.ClosedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *SQLiteStore) SaveSessionReport(ctx context.Context, report *domain.SessionReport) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_reports (
			start_time, end_time, tick_count, max_symbol,
			max_diff_percent, avg_diff_percent, trades_closed, net_profit
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.StartTime, report.EndTime, report.TickCount, report.MaxSymbol,
		report.MaxDiffPercent, report.AvgDiffPercent, report.TradesClosed, report.NetProfit,
	)
	return err
}

// LatestSessionReport returns the most recently written report, or nil
// when no session has finished yet.
func (s *SQLiteStore) LatestSessionReport(ctx context.Context) (*domain.SessionReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT start_time, end_time, tick_count, max_symbol,
			max_diff_percent, avg_diff_percent, trades_closed, net_profit
		FROM session_reports ORDER BY id DESC LIMIT 1`)

	r := &domain.SessionReport{}
	if err := row.Scan(
		&r.StartTime, &r.EndTime, &r.TickCount, &r.MaxSymbol,
		&r.MaxDiffPercent, &r.AvgDiffPercent, &r.TradesClosed, &r.NetProfit,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
