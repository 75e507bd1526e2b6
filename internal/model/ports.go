package model

import "context"

// ── Port Interfaces ──
// These decouple the backtest pipeline from concrete storage (CSV, SQLite,
// Redis). Each implementation satisfies one or more of them.

// BarReader loads a symbol's daily bars in ascending date order.
type BarReader interface {
	ReadBars(ctx context.Context, symbol string) ([]Bar, error)
}

// BarWriter persists daily bars, replacing rows with the same date.
type BarWriter interface {
	SaveBars(ctx context.Context, symbol string, bars []Bar) error
}

// RunResult is a finished strategy run handed to result sinks.
type RunResult struct {
	RunID    string  `json:"run_id"`
	Symbol   string  `json:"symbol"`
	Strategy string  `json:"strategy"`
	Trades   []Trade `json:"trades"`
	Summary  []byte  `json:"summary"` // JSON-encoded statistics
}

// ResultSink receives finished runs (journal, stream, ...).
type ResultSink interface {
	// Publish records one run. Implementations must be safe for concurrent use.
	Publish(ctx context.Context, r RunResult) error

	// Close releases underlying resources.
	Close() error
}
