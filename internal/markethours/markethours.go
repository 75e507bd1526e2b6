// Package markethours knows the NSE trading calendar: which days have a
// session and when the session closes. Scheduled backtests use it to wait
// for a new closed session; loaders use it to spot missing sessions in a
// series.
package markethours

import (
	"time"

	"swing-backtest/internal/model"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// Session close in IST.
const (
	CloseHour   = 15
	CloseMinute = 30
)

// Calendar is a trading calendar: weekdays minus holidays. Holidays are
// only known for some years; KnownYear reports which.
type Calendar struct {
	holidays map[string]bool
	years    map[int]bool
}

// NSE returns the built-in NSE calendar.
func NSE() *Calendar {
	c := &Calendar{holidays: make(map[string]bool), years: make(map[int]bool)}
	for y, days := range nseHolidays {
		c.years[y] = true
		for _, d := range days {
			c.holidays[dateKey(time.Date(y, d.month, d.day, 0, 0, 0, 0, time.UTC))] = true
		}
	}
	return c
}

// AddHolidays marks extra dates as holidays and their years as known.
func (c *Calendar) AddHolidays(dates ...time.Time) {
	for _, d := range dates {
		c.holidays[dateKey(d)] = true
		c.years[d.Year()] = true
	}
}

// KnownYear reports whether the holidays of year y are loaded.
func (c *Calendar) KnownYear(y int) bool { return c.years[y] }

// IsHoliday reports whether the calendar date of d is a holiday. d is
// taken as a calendar date, as stored in bars.
func (c *Calendar) IsHoliday(d time.Time) bool {
	return c.holidays[dateKey(d)]
}

// IsTradingDay reports whether the calendar date of d has a session.
func (c *Calendar) IsTradingDay(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday && !c.IsHoliday(d)
}

// Today returns the IST calendar date of instant t as a bar date.
func Today(t time.Time) time.Time {
	ist := t.In(IST)
	return model.Date(ist.Year(), ist.Month(), ist.Day())
}

// SessionClosed reports whether instant t is a trading day in IST at or
// after the close, i.e. today's daily bar is final.
func (c *Calendar) SessionClosed(t time.Time) bool {
	ist := t.In(IST)
	if !c.IsTradingDay(Today(t)) {
		return false
	}
	return ist.Hour()*60+ist.Minute() >= CloseHour*60+CloseMinute
}

// LastSession returns the most recent trading day on or before the
// calendar date of d.
func (c *Calendar) LastSession(d time.Time) time.Time {
	d = model.Date(d.Year(), d.Month(), d.Day())
	for i := 0; i < 30 && !c.IsTradingDay(d); i++ {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// LatestClose returns the date of the most recent session that had closed
// by instant t.
func (c *Calendar) LatestClose(t time.Time) time.Time {
	today := Today(t)
	if c.SessionClosed(t) {
		return today
	}
	return c.LastSession(today.AddDate(0, 0, -1))
}

// UpToDate reports whether a series whose last bar is dated last already
// holds the most recent closed session at instant t.
func (c *Calendar) UpToDate(last, t time.Time) bool {
	return !last.Before(c.LatestClose(t))
}

// Missing lists trading days between the first and last bar that have no
// bar. Years without holiday data are skipped.
func (c *Calendar) Missing(bars []model.Bar) []time.Time {
	if len(bars) < 2 {
		return nil
	}
	have := make(map[string]bool, len(bars))
	for _, b := range bars {
		have[dateKey(b.Date)] = true
	}
	var missing []time.Time
	last := bars[len(bars)-1].Date
	for d := bars[0].Date; !d.After(last); d = d.AddDate(0, 0, 1) {
		if !c.KnownYear(d.Year()) || !c.IsTradingDay(d) {
			continue
		}
		if !have[dateKey(d)] {
			missing = append(missing, d)
		}
	}
	return missing
}
