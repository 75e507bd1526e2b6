// Package tracker provides rolling-window trackers over price and signal
// series: the lowest/highest value of the last N prices and the true/false
// tally of the last N booleans.
package tracker

import (
	"swing-backtest/internal/indicator"
	"swing-backtest/internal/ringbuf"
)

// HighLow tracks the minimum and maximum of the last N prices.
type HighLow struct {
	window *ringbuf.Ring[float64]
}

// NewHighLow creates a tracker over the last period prices (e.g. 20 for a
// one-month high/low, 63 for three months, 252 for 52 weeks).
func NewHighLow(period int) *HighLow {
	return &HighLow{window: ringbuf.New[float64](period)}
}

// Period returns the lookback length.
func (h *HighLow) Period() int { return h.window.Cap() }

// Push adds a price and returns the window's (low, high).
func (h *HighLow) Push(price float64) (low, high indicator.Reading) {
	h.window.Push(price)
	return h.Current()
}

// Current returns (low, high) over the window; both are unavailable while
// the window is empty.
func (h *HighLow) Current() (low, high indicator.Reading) {
	if h.window.Len() == 0 {
		return indicator.Reading{}, indicator.Reading{}
	}
	lo, hi := h.window.At(0), h.window.At(0)
	h.window.Each(func(v float64) {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	})
	return indicator.Reading{Value: lo, Ready: true}, indicator.Reading{Value: hi, Ready: true}
}

// High returns the window maximum.
func (h *HighLow) High() indicator.Reading {
	_, hi := h.Current()
	return hi
}

// Low returns the window minimum.
func (h *HighLow) Low() indicator.Reading {
	lo, _ := h.Current()
	return lo
}

// Reset empties the window.
func (h *HighLow) Reset() { h.window.Reset() }
