// Package pattern detects multi-bar price patterns on top of the indicator
// and tracker primitives.
package pattern

import (
	"time"

	"swing-backtest/internal/model"
	"swing-backtest/internal/tracker"
)

// BaseState is the base counter's position in its state machine.
type BaseState int

const (
	// Inactive: not counting bases.
	Inactive BaseState = iota
	// Outside: counting, but price is not consolidating in a base.
	Outside
	// InBase: tracking a consolidation below BaseHigh.
	InBase
)

func (s BaseState) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Outside:
		return "outside"
	case InBase:
		return "in-base"
	}
	return "unknown"
}

const (
	// minBaseDays is how long a base must last before a breakout counts.
	minBaseDays = 20
	// breakoutGain is the fraction above BaseHigh that confirms a breakout.
	breakoutGain = 0.10
)

// BaseCounter counts consolidation "bases" in an uptrend. A base starts
// when price dips below the 50-period average and completes when price
// clears the base high by more than 10%. Any close below the 200-period
// average resets the count.
type BaseCounter struct {
	monthly    *tracker.HighLow // 20 bars
	threeMonth *tracker.HighLow // 63 bars

	state     BaseState
	count     int
	baseHigh  float64
	baseStart time.Time
}

// NewBaseCounter creates a counter in the Inactive state.
func NewBaseCounter() *BaseCounter {
	return &BaseCounter{
		monthly:    tracker.NewHighLow(20),
		threeMonth: tracker.NewHighLow(63),
	}
}

// Push feeds one bar's date, price and the externally computed averages.
// Rules are applied in order and the first that matches ends the update.
func (b *BaseCounter) Push(date time.Time, price, ema50, ema150, ema200 float64) {
	b.monthly.Push(price)
	b.threeMonth.Push(price)

	if price < ema200 {
		b.reset()
		return
	}

	switch b.state {
	case Inactive:
		if price > ema150 && ema150 > ema200 && price > ema50 {
			b.state = InBase
			b.count = 0
			b.startBase(date)
		}
	case Outside:
		if price < ema50 {
			b.state = InBase
			b.startBase(date)
		}
	case InBase:
		if price <= b.baseHigh || b.baseHigh <= 0 {
			return
		}
		if price > ema50 && model.DaysBetween(b.baseStart, date) < minBaseDays {
			return // too young for breakout credit
		}
		if (price-b.baseHigh)/b.baseHigh > breakoutGain {
			b.count++
			b.state = Outside
		}
	}
}

func (b *BaseCounter) startBase(date time.Time) {
	b.baseStart = date
	b.baseHigh = b.monthly.High().Value
}

func (b *BaseCounter) reset() {
	b.state = Inactive
	b.count = 0
	b.baseHigh = 0
	b.baseStart = time.Time{}
}

// BaseCount returns the number of completed bases since counting started.
func (b *BaseCounter) BaseCount() int { return b.count }

// IsCounting reports whether base counting is active.
func (b *BaseCounter) IsCounting() bool { return b.state != Inactive }

// State returns the current state.
func (b *BaseCounter) State() BaseState { return b.state }

// BaseHigh returns the high of the current or last base (0 when inactive).
func (b *BaseCounter) BaseHigh() float64 { return b.baseHigh }

// ThreeMonthHigh returns the 63-bar high. No rule reads it; strategies log
// it for diagnostics.
func (b *BaseCounter) ThreeMonthHigh() float64 { return b.threeMonth.High().Value }
