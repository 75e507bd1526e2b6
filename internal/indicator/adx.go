package indicator

import (
	"math"

	"swing-backtest/internal/model"
	"swing-backtest/internal/ringbuf"
)

// Directional is one ADX push result. Each component warms up on its own:
// the DIs after period bars, ADX after period further DX values.
type Directional struct {
	ADX     Reading `json:"adx"`
	PlusDI  Reading `json:"plus_di"`
	MinusDI Reading `json:"minus_di"`
}

// ADX calculates the Average Directional Index with +DI/-DI.
//
// +DM, -DM and TR are each kept in a period-length window and the DIs are
// computed from plain window sums (not Wilder averages). True range needs a
// previous close, so the first bar contributes directional movement 0/0 and
// no TR sample. DX values go into a second window; ADX is its mean once full.
type ADX struct {
	period  int
	plusDM  *ringbuf.Ring[float64]
	minusDM *ringbuf.Ring[float64]
	trs     *ringbuf.Ring[float64]
	dxs     *ringbuf.Ring[float64]

	havePrev  bool
	prevHigh  float64
	prevLow   float64
	prevClose float64

	current Directional
}

// NewADX creates a new ADX indicator with the given period (typically 14).
func NewADX(period int) *ADX {
	return &ADX{
		period:  period,
		plusDM:  ringbuf.New[float64](period),
		minusDM: ringbuf.New[float64](period),
		trs:     ringbuf.New[float64](period),
		dxs:     ringbuf.New[float64](period),
	}
}

func (a *ADX) Name() string { return "ADX" }

func (a *ADX) Update(bar model.Bar) { a.Push(bar.High, bar.Low, bar.Close) }

// directionalMove returns (+DM, -DM). At most one of them is non-zero.
func directionalMove(high, low, prevHigh, prevLow float64) (float64, float64) {
	up := high - prevHigh
	down := prevLow - low
	plus, minus := 0.0, 0.0
	if up > down && up > 0 {
		plus = up
	}
	if down > up && down > 0 {
		minus = down
	}
	return plus, minus
}

// Push feeds one bar's high, low and close and returns the updated readings.
func (a *ADX) Push(high, low, close float64) Directional {
	plus, minus := 0.0, 0.0
	if a.havePrev {
		plus, minus = directionalMove(high, low, a.prevHigh, a.prevLow)
		a.trs.Push(trueRange(high, low, a.prevClose))
	}
	a.prevHigh, a.prevLow, a.prevClose = high, low, close
	a.havePrev = true

	a.plusDM.Push(plus)
	a.minusDM.Push(minus)
	if !a.plusDM.Full() {
		return a.current
	}

	sumPlus, sumMinus, sumTR := sum(a.plusDM), sum(a.minusDM), sum(a.trs)
	plusDI, minusDI := 0.0, 0.0
	if sumTR > 0 {
		plusDI = sumPlus / sumTR * 100
		minusDI = sumMinus / sumTR * 100
	}
	a.current.PlusDI = ready(plusDI)
	a.current.MinusDI = ready(minusDI)

	dx := 0.0
	if diSum := plusDI + minusDI; diSum > 0 {
		dx = math.Abs(plusDI-minusDI) / diSum * 100
	}
	a.dxs.Push(dx)
	if a.dxs.Full() {
		a.current.ADX = ready(sum(a.dxs) / float64(a.period))
	}
	return a.current
}

// Directional returns the latest readings without mutating state.
func (a *ADX) Directional() Directional { return a.current }

// Current returns the ADX reading.
func (a *ADX) Current() Reading { return a.current.ADX }

// Reset clears the ADX state for reuse.
func (a *ADX) Reset() {
	a.plusDM.Reset()
	a.minusDM.Reset()
	a.trs.Reset()
	a.dxs.Reset()
	a.havePrev = false
	a.prevHigh, a.prevLow, a.prevClose = 0, 0, 0
	a.current = Directional{}
}

func sum(r *ringbuf.Ring[float64]) float64 {
	s := 0.0
	r.Each(func(v float64) { s += v })
	return s
}
