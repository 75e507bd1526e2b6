package indicator

import (
	"math"

	"swing-backtest/internal/model"
	"swing-backtest/internal/ringbuf"
)

// trueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func trueRange(high, low, prevClose float64) float64 {
	return math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
}

// ATR calculates Average True Range. The first bar's true range is
// high-low. The first ATR is the mean of period true ranges; later values
// use Wilder smoothing.
type ATR struct {
	period    int
	trs       *ringbuf.Ring[float64]
	havePrev  bool
	prevClose float64
	seeded    bool
	current   float64
}

// NewATR creates a new ATR indicator with the given period (typically 14).
func NewATR(period int) *ATR {
	return &ATR{period: period, trs: ringbuf.New[float64](period)}
}

func (a *ATR) Name() string { return "ATR" }

func (a *ATR) Update(bar model.Bar) { a.Push(bar.High, bar.Low, bar.Close) }

// Push feeds one bar's high, low and close and returns the updated reading.
func (a *ATR) Push(high, low, close float64) Reading {
	tr := high - low
	if a.havePrev {
		tr = trueRange(high, low, a.prevClose)
	}
	a.prevClose = close
	a.havePrev = true

	a.trs.Push(tr)
	if !a.trs.Full() {
		return Reading{}
	}

	p := float64(a.period)
	if !a.seeded {
		sum := 0.0
		a.trs.Each(func(v float64) { sum += v })
		a.current = sum / p
		a.seeded = true
	} else {
		a.current = (a.current*(p-1) + tr) / p
	}
	return ready(a.current)
}

func (a *ATR) Current() Reading {
	if !a.seeded {
		return Reading{}
	}
	return ready(a.current)
}

// Reset clears the ATR state for reuse.
func (a *ATR) Reset() {
	a.trs.Reset()
	a.havePrev, a.seeded = false, false
	a.prevClose, a.current = 0, 0
}
