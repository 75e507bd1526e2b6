package indicator

import (
	"swing-backtest/internal/model"
	"swing-backtest/internal/ringbuf"
)

// Default RSI thresholds.
const (
	Overbought = 70.0
	Oversold   = 30.0
)

// RSI calculates the Relative Strength Index using Wilder's smoothing.
//
// Every push contributes one gain/loss sample; the very first push has no
// previous close and contributes gain=loss=0. The first RSI is produced once
// period samples exist, from their simple means. Later values use
// avg = (avg*(period-1) + current) / period.
type RSI struct {
	period    int
	gains     *ringbuf.Ring[float64]
	losses    *ringbuf.Ring[float64]
	havePrev  bool
	prevClose float64
	seeded    bool
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		period: period,
		gains:  ringbuf.New[float64](period),
		losses: ringbuf.New[float64](period),
	}
}

func (r *RSI) Name() string { return "RSI" }

func (r *RSI) Update(bar model.Bar) { r.Push(bar.Close) }

// Push feeds one close and returns the updated reading.
func (r *RSI) Push(price float64) Reading {
	gain, loss := 0.0, 0.0
	if r.havePrev {
		delta := price - r.prevClose
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
	}
	r.prevClose = price
	r.havePrev = true

	r.gains.Push(gain)
	r.losses.Push(loss)
	if !r.gains.Full() {
		return Reading{}
	}

	p := float64(r.period)
	if !r.seeded {
		var sg, sl float64
		r.gains.Each(func(v float64) { sg += v })
		r.losses.Each(func(v float64) { sl += v })
		r.avgGain = sg / p
		r.avgLoss = sl / p
		r.seeded = true
	} else {
		r.avgGain = (r.avgGain*(p-1) + gain) / p
		r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	}

	if r.avgLoss == 0 {
		r.current = 100.0
	} else {
		rs := r.avgGain / r.avgLoss
		r.current = 100.0 - (100.0 / (1.0 + rs))
	}
	return ready(r.current)
}

func (r *RSI) Current() Reading {
	if !r.seeded {
		return Reading{}
	}
	return ready(r.current)
}

// IsOverbought reports RSI >= threshold. False while unavailable.
func (r *RSI) IsOverbought(threshold float64) bool {
	return r.seeded && r.current >= threshold
}

// IsOversold reports RSI <= threshold. False while unavailable.
func (r *RSI) IsOversold(threshold float64) bool {
	return r.seeded && r.current <= threshold
}

// Reset clears the RSI state for reuse.
func (r *RSI) Reset() {
	r.gains.Reset()
	r.losses.Reset()
	r.havePrev, r.seeded = false, false
	r.prevClose, r.avgGain, r.avgLoss, r.current = 0, 0, 0, 0
}
