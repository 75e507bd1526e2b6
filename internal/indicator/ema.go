package indicator

import "swing-backtest/internal/model"

// EMA calculates Exponential Moving Average.
// The first value is the simple mean of the first period prices; after that
// value = (price - prev) * 2/(period+1) + prev. O(1) per update.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA indicator with the given period (>= 1).
func NewEMA(period int) *EMA {
	if period < 1 {
		panic("indicator: EMA period must be >= 1")
	}
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA" }
func (e *EMA) Period() int  { return e.period }

func (e *EMA) Update(bar model.Bar) { e.Push(bar.Close) }

// Push feeds one price and returns the updated reading.
func (e *EMA) Push(price float64) Reading {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return e.Current()
	}

	e.current = (price-e.current)*e.multiplier + e.current
	return ready(e.current)
}

func (e *EMA) Current() Reading {
	if e.count < e.period {
		return Reading{}
	}
	return ready(e.current)
}

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
}
