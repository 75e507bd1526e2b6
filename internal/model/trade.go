package model

import (
	"encoding/json"
	"sort"
	"time"
)

// Leg identifies which position slot of a strategy produced a trade.
// Unscaled strategies only ever use LegPrimary; scaled strategies open a
// primary (test) position first and may add a LegScaled position on top.
type Leg string

const (
	LegPrimary Leg = "primary"
	LegScaled  Leg = "scaled"
)

// Trade is a completed round trip. Trades are immutable once created.
type Trade struct {
	EntryDate  time.Time `json:"entry_date"`
	EntryPrice float64   `json:"entry_price"`
	ExitDate   time.Time `json:"exit_date"`
	ExitPrice  float64   `json:"exit_price"`
	Leg        Leg       `json:"leg"`
	Reason     string    `json:"reason,omitempty"`
}

// HoldingDays returns the calendar days between entry and exit.
func (t Trade) HoldingDays() int {
	return DaysBetween(t.EntryDate, t.ExitDate)
}

// ProfitPct returns the percentage return of the trade.
func (t Trade) ProfitPct() float64 {
	return (t.ExitPrice - t.EntryPrice) / t.EntryPrice * 100
}

// JSON returns the JSON-encoded trade.
func (t Trade) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}

// SortTrades orders trades by entry date, keeping the relative order of
// trades entered on the same date.
func SortTrades(trades []Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].EntryDate.Before(trades[j].EntryDate)
	})
}

// StreamKey returns the Redis stream key for a run's trades:
// "backtest:{symbol}:{strategy}".
func StreamKey(symbol, strategy string) string {
	return "backtest:" + symbol + ":" + strategy
}
