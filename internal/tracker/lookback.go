package tracker

import "swing-backtest/internal/ringbuf"

// Lookback counts true and false values among the last N booleans.
// The true count is maintained incrementally, so both counts are O(1).
type Lookback struct {
	window *ringbuf.Ring[bool]
	trues  int
}

// NewLookback creates a counter over the last period values.
func NewLookback(period int) *Lookback {
	return &Lookback{window: ringbuf.New[bool](period)}
}

// Period returns the lookback length.
func (l *Lookback) Period() int { return l.window.Cap() }

// Push records v, evicting the oldest value once the window is full.
func (l *Lookback) Push(v bool) {
	if old, evicted := l.window.Push(v); evicted && old {
		l.trues--
	}
	if v {
		l.trues++
	}
}

// CountTrue returns the number of true values in the window.
func (l *Lookback) CountTrue() int { return l.trues }

// CountFalse returns the number of false values in the window.
func (l *Lookback) CountFalse() int { return l.window.Len() - l.trues }

// Len returns the number of values currently held.
func (l *Lookback) Len() int { return l.window.Len() }

// Reset empties the window.
func (l *Lookback) Reset() {
	l.window.Reset()
	l.trues = 0
}
