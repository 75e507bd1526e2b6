// Package indicator provides streaming technical indicator calculations over
// daily or weekly bars.
//
// Every indicator is a single-pass state machine: each bar (or price) is
// pushed exactly once, in date order, and the current value is available in
// O(1). Values that have not warmed up yet are reported as a Reading with
// Ready=false rather than a sentinel number.
package indicator

import "swing-backtest/internal/model"

// Reading is an indicator value together with its availability.
// Value is meaningless while Ready is false.
type Reading struct {
	Value float64 `json:"value"`
	Ready bool    `json:"ready"`
}

// Get returns the value and whether it is available.
func (r Reading) Get() (float64, bool) { return r.Value, r.Ready }

func ready(v float64) Reading { return Reading{Value: v, Ready: true} }

// Indicator is the interface the Engine drives. Close-price indicators take
// the bar close; range indicators use high, low and close.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "ADX").
	Name() string

	// Update feeds the next bar.
	Update(bar model.Bar)

	// Current returns the latest value without mutating state.
	Current() Reading

	// Reset clears all state for reuse.
	Reset()
}
