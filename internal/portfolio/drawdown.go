package portfolio

// Drawdown tracks peak equity and the deepest decline from it, in percent.
// Not safe for concurrent use.
type Drawdown struct {
	peak   float64
	equity float64
	max    float64
}

// NewDrawdown starts tracking from the initial equity.
func NewDrawdown(initial float64) *Drawdown {
	return &Drawdown{peak: initial, equity: initial}
}

// Update records a new equity value and returns the current drawdown.
func (d *Drawdown) Update(equity float64) float64 {
	d.equity = equity
	if equity > d.peak {
		d.peak = equity
	}
	dd := d.Current()
	if dd > d.max {
		d.max = dd
	}
	return dd
}

// Current returns (peak - equity) / peak * 100, or 0 for a non-positive peak.
func (d *Drawdown) Current() float64 {
	if d.peak <= 0 {
		return 0
	}
	return (d.peak - d.equity) / d.peak * 100
}

// Max returns the deepest drawdown seen so far.
func (d *Drawdown) Max() float64 { return d.max }

// Peak returns the highest equity seen so far.
func (d *Drawdown) Peak() float64 { return d.peak }
