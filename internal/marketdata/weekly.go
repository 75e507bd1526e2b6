package marketdata

import (
	"time"

	"swing-backtest/internal/model"
)

// WeekEnd returns the Sunday that closes d's calendar week (d itself if it
// is a Sunday).
func WeekEnd(d time.Time) time.Time {
	return d.AddDate(0, 0, (7-int(d.Weekday()))%7)
}

// Resampler folds daily bars into weekly bars incrementally. A weekly bar is
// finalized when the first bar of the next week arrives, or on Flush.
// Not safe for concurrent use.
type Resampler struct {
	bucket  time.Time // week end of the forming bar
	forming model.Bar
	started bool
}

// Push merges a daily bar. It returns the previous week's bar when b opens
// a new week.
func (r *Resampler) Push(b model.Bar) (done model.Bar, ok bool) {
	bucket := WeekEnd(b.Date)

	if !r.started || !bucket.Equal(r.bucket) {
		if r.started {
			done, ok = r.forming, true
		}
		r.bucket = bucket
		r.started = true
		r.forming = model.Bar{
			Date:     bucket,
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			Volume:   b.Volume,
			Turnover: b.Turnover,
		}
		return done, ok
	}

	fb := &r.forming
	if b.High > fb.High {
		fb.High = b.High
	}
	if b.Low < fb.Low {
		fb.Low = b.Low
	}
	fb.Close = b.Close
	fb.Volume += b.Volume
	fb.Turnover += b.Turnover
	return model.Bar{}, false
}

// Flush returns the forming bar, if any, and resets the resampler.
func (r *Resampler) Flush() (model.Bar, bool) {
	if !r.started {
		return model.Bar{}, false
	}
	b := r.forming
	*r = Resampler{}
	return b, true
}

// Weekly resamples an ascending daily series into calendar weeks labelled
// by their closing Sunday. Weeks without bars produce nothing.
func Weekly(daily []model.Bar) []model.Bar {
	var (
		r   Resampler
		out = make([]model.Bar, 0, len(daily)/5+1)
	)
	for _, b := range daily {
		if w, ok := r.Push(b); ok {
			out = append(out, w)
		}
	}
	if w, ok := r.Flush(); ok {
		out = append(out, w)
	}
	return out
}
