package model

import "time"

// Bar is one period's OHLCV record (daily or weekly).
// Date is a calendar date stored as UTC midnight; no zone semantics apply.
type Bar struct {
	Date     time.Time `json:"date"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
	Turnover float64   `json:"turnover"`
}

// Range returns the bar's high-low span.
func (b Bar) Range() float64 { return b.High - b.Low }

// Timeframe identifies the bar period a strategy consumes.
type Timeframe string

const (
	Daily  Timeframe = "daily"
	Weekly Timeframe = "weekly"
)

// Date builds a calendar date at UTC midnight.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole days from a to b, floored like a calendar
// difference (b before a yields a negative count).
func DaysBetween(a, b time.Time) int {
	d := b.Sub(a)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}
