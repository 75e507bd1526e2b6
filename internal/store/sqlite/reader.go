package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"swing-backtest/internal/model"
)

// Reader provides read-only access to bars and the run journal.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	return &Reader{db: db}, nil
}

// ReadBars implements model.BarReader. Bars are ordered by date ascending.
func (r *Reader) ReadBars(ctx context.Context, symbol string) ([]model.Bar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, COALESCE(volume, 0), COALESCE(turnover, 0)
		FROM bars
		WHERE symbol = ?
		ORDER BY date ASC
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var bars []model.Bar
	for rows.Next() {
		var b model.Bar
		var date string
		if err := rows.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Turnover); err != nil {
			return nil, fmt.Errorf("sqlite scan bars: %w", err)
		}
		if b.Date, err = time.Parse(time.DateOnly, date); err != nil {
			return nil, fmt.Errorf("sqlite bar date %q: %w", date, err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Symbols lists the symbols with stored bars.
func (r *Reader) Symbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM bars ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite scan symbol: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RunTrades returns the journaled trades of one strategy in a run.
func (r *Reader) RunTrades(ctx context.Context, runID, strategy string) ([]model.Trade, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT leg, entry_date, entry_price, exit_date, exit_price, COALESCE(reason, '')
		FROM trades
		WHERE run_id = ? AND strategy = ?
		ORDER BY seq ASC
	`, runID, strategy)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trades: %w", err)
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var (
			t           model.Trade
			leg         string
			entry, exit string
		)
		if err := rows.Scan(&leg, &entry, &t.EntryPrice, &exit, &t.ExitPrice, &t.Reason); err != nil {
			return nil, fmt.Errorf("sqlite scan trades: %w", err)
		}
		t.Leg = model.Leg(leg)
		if t.EntryDate, err = time.Parse(time.DateOnly, entry); err != nil {
			return nil, fmt.Errorf("sqlite trade entry date %q: %w", entry, err)
		}
		if t.ExitDate, err = time.Parse(time.DateOnly, exit); err != nil {
			return nil, fmt.Errorf("sqlite trade exit date %q: %w", exit, err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// RunSummary returns the stored summary JSON of one strategy in a run,
// or sql.ErrNoRows.
func (r *Reader) RunSummary(ctx context.Context, runID, strategy string) ([]byte, error) {
	var summary string
	err := r.db.QueryRowContext(ctx, `SELECT summary FROM runs WHERE run_id = ? AND strategy = ?`, runID, strategy).Scan(&summary)
	if err != nil {
		return nil, err
	}
	return []byte(summary), nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
