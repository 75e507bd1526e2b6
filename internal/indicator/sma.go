package indicator

import (
	"swing-backtest/internal/model"
	"swing-backtest/internal/ringbuf"
)

// SMA calculates Simple Moving Average over a rolling window.
// The running sum is adjusted by the evicted value, so updates are O(1).
type SMA struct {
	window *ringbuf.Ring[float64]
	sum    float64
}

// NewSMA creates a new SMA indicator with the given period (>= 1).
func NewSMA(period int) *SMA {
	return &SMA{window: ringbuf.New[float64](period)}
}

func (s *SMA) Name() string { return "SMA" }
func (s *SMA) Period() int  { return s.window.Cap() }

func (s *SMA) Update(bar model.Bar) { s.Push(bar.Close) }

// Push feeds one price and returns the updated reading.
func (s *SMA) Push(price float64) Reading {
	if old, evicted := s.window.Push(price); evicted {
		s.sum -= old
	}
	s.sum += price
	return s.Current()
}

func (s *SMA) Current() Reading {
	if !s.window.Full() {
		return Reading{}
	}
	return ready(s.sum / float64(s.window.Cap()))
}

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.window.Reset()
	s.sum = 0
}
