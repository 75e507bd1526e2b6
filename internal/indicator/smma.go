package indicator

import "swing-backtest/internal/model"

// SMMA calculates Smoothed Moving Average (Wilder-style smoothing).
// First value is SMA(period), then SMMA = (prev*(period-1) + price) / period.
type SMMA struct {
	period  int
	count   int
	sum     float64
	current float64
}

// NewSMMA creates a new SMMA indicator with the given period.
func NewSMMA(period int) *SMMA {
	if period < 1 {
		panic("indicator: SMMA period must be >= 1")
	}
	return &SMMA{period: period}
}

func (s *SMMA) Name() string { return "SMMA" }

func (s *SMMA) Update(bar model.Bar) { s.Push(bar.Close) }

// Push feeds one price and returns the updated reading.
func (s *SMMA) Push(price float64) Reading {
	s.count++

	if s.count <= s.period {
		s.sum += price
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
		}
		return s.Current()
	}

	s.current = (s.current*float64(s.period-1) + price) / float64(s.period)
	return ready(s.current)
}

func (s *SMMA) Current() Reading {
	if s.count < s.period {
		return Reading{}
	}
	return ready(s.current)
}

// Reset clears the SMMA state for reuse.
func (s *SMMA) Reset() {
	s.count = 0
	s.sum = 0
	s.current = 0
}
