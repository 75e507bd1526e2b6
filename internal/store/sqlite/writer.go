package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"swing-backtest/internal/logger"
	"swing-backtest/internal/model"
	"swing-backtest/internal/stats"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string       // path to SQLite database file, e.g. "data/backtest.db"
	Logger *slog.Logger // nil discards
}

// Writer stores daily bars and journals finished runs. It implements
// model.BarWriter and model.ResultSink.
type Writer struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	l := cfg.Logger
	if l == nil {
		l = logger.Discard()
	}
	l = l.With(slog.String("component", "sqlite"))
	l.Info("database opened", slog.String("path", cfg.DBPath))
	return &Writer{db: db, log: l, now: time.Now}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			symbol     TEXT    NOT NULL,
			date       TEXT    NOT NULL,
			open       REAL    NOT NULL,
			high       REAL    NOT NULL,
			low        REAL    NOT NULL,
			close      REAL    NOT NULL,
			volume     REAL,
			turnover   REAL,
			PRIMARY KEY (symbol, date)
		);

		CREATE TABLE IF NOT EXISTS runs (
			run_id     TEXT    NOT NULL,
			symbol     TEXT    NOT NULL,
			strategy   TEXT    NOT NULL,
			summary    TEXT    NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (run_id, strategy)
		);

		CREATE TABLE IF NOT EXISTS trades (
			run_id      TEXT    NOT NULL,
			strategy    TEXT    NOT NULL,
			seq         INTEGER NOT NULL,
			leg         TEXT    NOT NULL,
			entry_date  TEXT    NOT NULL,
			entry_price REAL    NOT NULL,
			exit_date   TEXT    NOT NULL,
			exit_price  REAL    NOT NULL,
			profit_pct  REAL    NOT NULL,
			reason      TEXT,
			PRIMARY KEY (run_id, strategy, seq)
		);

		CREATE TABLE IF NOT EXISTS yearly_stats (
			run_id       TEXT    NOT NULL,
			strategy     TEXT    NOT NULL,
			year         INTEGER NOT NULL,
			total_trades INTEGER NOT NULL,
			winners      INTEGER NOT NULL,
			losers       INTEGER NOT NULL,
			win_rate     REAL    NOT NULL,
			net_profit   REAL    NOT NULL,
			PRIMARY KEY (run_id, strategy, year)
		);
	`)
	return err
}

// SaveBars upserts bars for symbol in a single transaction.
func (w *Writer) SaveBars(ctx context.Context, symbol string, bars []model.Bar) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, date, open, high, low, close, volume, turnover)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("sqlite prepare bars: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.ExecContext(ctx, symbol, b.Date.Format(time.DateOnly), b.Open, b.High, b.Low, b.Close, b.Volume, b.Turnover)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert bar %s: %w", b.Date.Format(time.DateOnly), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit bars: %w", err)
	}
	w.log.Info("bars saved", slog.String("symbol", symbol), slog.Int("count", len(bars)))
	return nil
}

// Publish journals one run: the summary row, every trade and the yearly
// breakdown carried in the summary. Re-publishing a run replaces it.
func (w *Writer) Publish(ctx context.Context, r model.RunResult) error {
	var sum stats.Summary
	if len(r.Summary) > 0 {
		if err := json.Unmarshal(r.Summary, &sum); err != nil {
			return fmt.Errorf("decode summary: %w", err)
		}
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	if err := w.insertRun(ctx, tx, r, sum); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite commit run: %w", err)
	}
	return nil
}

func (w *Writer) insertRun(ctx context.Context, tx *sql.Tx, r model.RunResult, sum stats.Summary) error {
	summary := r.Summary
	if len(summary) == 0 {
		summary = []byte("{}")
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (run_id, symbol, strategy, summary, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.RunID, r.Symbol, r.Strategy, string(summary), w.now().Unix()); err != nil {
		return fmt.Errorf("sqlite insert run: %w", err)
	}

	for _, table := range []string{"trades", "yearly_stats"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ? AND strategy = ?`, r.RunID, r.Strategy); err != nil {
			return fmt.Errorf("sqlite clear %s: %w", table, err)
		}
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (run_id, strategy, seq, leg, entry_date, entry_price, exit_date, exit_price, profit_pct, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite prepare trades: %w", err)
	}
	defer tradeStmt.Close()

	for i, t := range r.Trades {
		_, err := tradeStmt.ExecContext(ctx, r.RunID, r.Strategy, i+1, string(t.Leg),
			t.EntryDate.Format(time.DateOnly), t.EntryPrice,
			t.ExitDate.Format(time.DateOnly), t.ExitPrice,
			t.ProfitPct(), t.Reason)
		if err != nil {
			return fmt.Errorf("sqlite insert trade %d: %w", i+1, err)
		}
	}

	yearStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO yearly_stats (run_id, strategy, year, total_trades, winners, losers, win_rate, net_profit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite prepare yearly_stats: %w", err)
	}
	defer yearStmt.Close()

	for _, y := range sum.Yearly {
		if _, err := yearStmt.ExecContext(ctx, r.RunID, r.Strategy, y.Year, y.TotalTrades, y.Winners, y.Losers, y.WinRate, y.NetProfit); err != nil {
			return fmt.Errorf("sqlite insert year %d: %w", y.Year, err)
		}
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
