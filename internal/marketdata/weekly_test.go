package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swing-backtest/internal/model"
)

func daily(date time.Time, o, h, l, c, v float64) model.Bar {
	return model.Bar{Date: date, Open: o, High: h, Low: l, Close: c, Volume: v, Turnover: v / 10}
}

func TestWeekEnd(t *testing.T) {
	assert.Equal(t, model.Date(2024, time.January, 7), WeekEnd(model.Date(2024, time.January, 1)))  // Monday
	assert.Equal(t, model.Date(2024, time.January, 7), WeekEnd(model.Date(2024, time.January, 5)))  // Friday
	assert.Equal(t, model.Date(2024, time.January, 7), WeekEnd(model.Date(2024, time.January, 7)))  // Sunday
	assert.Equal(t, model.Date(2024, time.January, 14), WeekEnd(model.Date(2024, time.January, 8))) // next Monday
}

func TestWeekly(t *testing.T) {
	bars := []model.Bar{
		daily(model.Date(2024, time.January, 2), 100, 105, 99, 104, 10),  // Tue
		daily(model.Date(2024, time.January, 4), 104, 110, 101, 108, 20), // Thu
		daily(model.Date(2024, time.January, 5), 108, 109, 95, 97, 30),   // Fri
		// no bars in the week ending Jan 14
		daily(model.Date(2024, time.January, 15), 97, 98, 90, 91, 5),
	}
	weeks := Weekly(bars)
	require.Len(t, weeks, 2)

	w := weeks[0]
	assert.Equal(t, model.Date(2024, time.January, 7), w.Date)
	assert.Equal(t, 100.0, w.Open)
	assert.Equal(t, 110.0, w.High)
	assert.Equal(t, 95.0, w.Low)
	assert.Equal(t, 97.0, w.Close)
	assert.Equal(t, 60.0, w.Volume)
	assert.InDelta(t, 6.0, w.Turnover, 1e-12)

	assert.Equal(t, model.Date(2024, time.January, 21), weeks[1].Date)
	assert.Equal(t, 91.0, weeks[1].Close)
}

func TestWeekly_Empty(t *testing.T) {
	assert.Empty(t, Weekly(nil))
}

func TestResampler_Incremental(t *testing.T) {
	var r Resampler
	_, ok := r.Push(daily(model.Date(2024, time.January, 1), 1, 2, 0.5, 1.5, 1))
	assert.False(t, ok)

	done, ok := r.Push(daily(model.Date(2024, time.January, 8), 2, 3, 1, 2.5, 1))
	require.True(t, ok)
	assert.Equal(t, model.Date(2024, time.January, 7), done.Date)

	last, ok := r.Flush()
	require.True(t, ok)
	assert.Equal(t, 2.5, last.Close)

	_, ok = r.Flush()
	assert.False(t, ok)
}
