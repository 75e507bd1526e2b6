// Package portfolio tracks the capital account behind a strategy's trades.
//
// A Ledger compounds capital trade to trade: each entry buys as many
// (fractional) units as the current capital allows and each exit converts
// them back at the exit price.
package portfolio

import (
	"sync"

	"swing-backtest/internal/model"
)

// Entry is one trade booked against the ledger.
type Entry struct {
	Trade         model.Trade `json:"trade"`
	Qty           float64     `json:"qty"`
	PnL           float64     `json:"pnl"`
	CapitalBefore float64     `json:"capital_before"`
	CapitalAfter  float64     `json:"capital_after"`
}

// Ledger is a compounding capital account for one position leg.
type Ledger struct {
	mu       sync.RWMutex
	initial  float64
	capital  float64
	entries  []Entry
	drawdown *Drawdown

	realized  float64
	grossGain float64
	grossLoss float64
}

// NewLedger creates a ledger starting with initial capital.
func NewLedger(initial float64) *Ledger {
	return &Ledger{
		initial:  initial,
		capital:  initial,
		entries:  make([]Entry, 0, 64),
		drawdown: NewDrawdown(initial),
	}
}

// Record books a completed trade and returns the resulting entry.
func (l *Ledger) Record(t model.Trade) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{Trade: t, CapitalBefore: l.capital}
	if t.EntryPrice > 0 {
		e.Qty = l.capital / t.EntryPrice
	}
	e.CapitalAfter = e.Qty * t.ExitPrice
	e.PnL = e.CapitalAfter - e.CapitalBefore

	l.capital = e.CapitalAfter
	l.realized += e.PnL
	if e.PnL > 0 {
		l.grossGain += e.PnL
	} else {
		l.grossLoss -= e.PnL
	}
	l.drawdown.Update(l.capital)
	l.entries = append(l.entries, e)
	return e
}

// RecordAll books trades in order.
func (l *Ledger) RecordAll(trades []model.Trade) []Entry {
	out := make([]Entry, 0, len(trades))
	for _, t := range trades {
		out = append(out, l.Record(t))
	}
	return out
}

// Capital returns the current capital.
func (l *Ledger) Capital() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.capital
}

// Entries returns a snapshot of all entries.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := make([]Entry, len(l.entries))
	copy(cp, l.entries)
	return cp
}

// Summary is a ledger roll-up.
type Summary struct {
	Initial        float64 `json:"initial"`
	Capital        float64 `json:"capital"`
	RealizedPnL    float64 `json:"realized_pnl"`
	GrossGain      float64 `json:"gross_gain"`
	GrossLoss      float64 `json:"gross_loss"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	Trades         int     `json:"trades"`
}

// Summary returns the current roll-up.
func (l *Ledger) Summary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Summary{
		Initial:        l.initial,
		Capital:        l.capital,
		RealizedPnL:    l.realized,
		GrossGain:      l.grossGain,
		GrossLoss:      l.grossLoss,
		MaxDrawdownPct: l.drawdown.Max(),
		Trades:         len(l.entries),
	}
}
