package stats

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swing-backtest/internal/model"
)

func tr(entry time.Time, ep float64, exit time.Time, xp float64) model.Trade {
	return model.Trade{EntryDate: entry, EntryPrice: ep, ExitDate: exit, ExitPrice: xp, Leg: model.LegPrimary}
}

func d(y int, m time.Month, day int) time.Time { return model.Date(y, m, day) }

func TestCompute_Empty(t *testing.T) {
	s := Compute(nil, 1000, DefaultOptions())
	assert.Equal(t, 0, s.TotalTrades)
	assert.Equal(t, 1000.0, s.FinalCapital)
	assert.Zero(t, s.CAGR)
	assert.Zero(t, s.Sharpe)
	assert.Zero(t, s.MaxDrawdownPct)
	assert.True(t, math.IsInf(s.ProfitFactor, 1))
	assert.Equal(t, []float64{1000}, s.Equity)
	assert.Empty(t, s.YearList())
}

func TestCompute_PlusTenMinusTen(t *testing.T) {
	trades := []model.Trade{
		tr(d(2020, time.January, 1), 100, d(2020, time.January, 11), 110),
		tr(d(2020, time.February, 1), 100, d(2020, time.February, 6), 90),
	}
	s := Compute(trades, 1000, DefaultOptions())

	require.Len(t, s.Equity, 3)
	assert.InDelta(t, 1100, s.Equity[1], 1e-9)
	assert.InDelta(t, 990, s.FinalCapital, 1e-9)
	assert.InDelta(t, -10, s.NetProfit, 1e-9)
	assert.InDelta(t, -1, s.TotalReturnPct, 1e-9)
	assert.InDelta(t, 100, s.TotalGain, 1e-9)
	assert.InDelta(t, 110, s.TotalLoss, 1e-9)
	assert.InDelta(t, 100.0/110.0, s.ProfitFactor, 1e-9)
	assert.InDelta(t, 10, s.MaxDrawdownPct, 1e-9)

	assert.Equal(t, 1, s.Winners)
	assert.Equal(t, 1, s.Losers)
	assert.InDelta(t, 50, s.WinRate, 1e-9)
	assert.InDelta(t, 10, s.MaxProfit, 1e-9)
	assert.InDelta(t, -10, s.MaxLoss, 1e-9)
	assert.InDelta(t, 0, s.AvgProfit, 1e-9)
	assert.InDelta(t, 10, s.ProfitStd, 1e-9) // population std

	// Time: 10 + 5 days in trade; gap Jan 11 → Feb 1 = 21 days.
	assert.Equal(t, 15, s.DaysInTrade)
	assert.Equal(t, 21, s.DaysOutOfTrade)
	assert.Equal(t, 37, s.TotalDays)
	assert.InDelta(t, 15.0/37.0*100, s.PctTimeInTrade, 1e-9)
	assert.InDelta(t, 10, s.AvgHoldingWinners, 1e-9)
	assert.InDelta(t, 5, s.AvgHoldingLosers, 1e-9)

	// Sharpe: excess mean = -2/252, std = 10.
	assert.InDelta(t, (-2.0/252)/10*math.Sqrt(252), s.Sharpe, 1e-9)
}

func TestCompute_SortsByEntryDate(t *testing.T) {
	late := tr(d(2021, time.March, 1), 100, d(2021, time.March, 10), 80)
	early := tr(d(2020, time.March, 1), 100, d(2020, time.March, 10), 150)
	in := []model.Trade{late, early}
	s := Compute(in, 100, DefaultOptions())

	// +50% then -20% → 150 then 120; drawdown 20%.
	assert.InDelta(t, 150, s.Equity[1], 1e-9)
	assert.InDelta(t, 120, s.FinalCapital, 1e-9)
	assert.InDelta(t, 20, s.MaxDrawdownPct, 1e-9)
	assert.Equal(t, late, in[0], "input must not be reordered")
}

func TestCompute_MonotonicCurveHasNoDrawdown(t *testing.T) {
	var trades []model.Trade
	start := d(2015, time.January, 5)
	for i := 0; i < 12; i++ {
		e := start.AddDate(0, i, 0)
		trades = append(trades, tr(e, 100, e.AddDate(0, 0, 7), 100+float64(i+1)))
	}
	s := Compute(trades, 5000, DefaultOptions())
	assert.Zero(t, s.MaxDrawdownPct)
	assert.Equal(t, 12, s.Winners)
	for i := 1; i < len(s.Equity); i++ {
		assert.Greater(t, s.Equity[i], s.Equity[i-1])
	}
}

func TestCompute_DrawdownNonNegative(t *testing.T) {
	pcts := []float64{105, 80, 97, 130, 60, 100, 101}
	var trades []model.Trade
	for i, xp := range pcts {
		e := d(2010+i, time.June, 1)
		trades = append(trades, tr(e, 100, e.AddDate(0, 1, 0), xp))
	}
	s := Compute(trades, 1, DefaultOptions())
	assert.GreaterOrEqual(t, s.MaxDrawdownPct, 0.0)
	assert.LessOrEqual(t, s.MaxDrawdownPct, 100.0)
}

func TestCompute_CAGR(t *testing.T) {
	// One trade doubling capital over exactly 365.25*2 - 1 days → 2 years.
	entry := d(2000, time.January, 1)
	exit := entry.AddDate(0, 0, 730) // 731 days total incl. the first
	s := Compute([]model.Trade{tr(entry, 50, exit, 100)}, 1000, DefaultOptions())
	years := 731 / 365.25
	assert.InDelta(t, years, s.Years, 1e-12)
	assert.InDelta(t, (math.Pow(2, 1/years)-1)*100, s.CAGR, 1e-9)
}

func TestCompute_Yearly(t *testing.T) {
	trades := []model.Trade{
		tr(d(2019, time.December, 20), 100, d(2020, time.January, 10), 120), // 2019: +20
		tr(d(2019, time.March, 1), 100, d(2019, time.April, 1), 95),         // 2019: -5
		tr(d(2020, time.May, 1), 100, d(2020, time.June, 1), 100),           // 2020: 0 → loss
	}
	s := Compute(trades, 1000, DefaultOptions())
	assert.Equal(t, []int{2019, 2020}, s.YearList())

	y19 := s.Yearly[2019]
	assert.Equal(t, 2, y19.TotalTrades)
	assert.InDelta(t, 50, y19.WinRate, 1e-9)
	assert.InDelta(t, 20, y19.AvgProfit, 1e-9)
	assert.InDelta(t, -5, y19.AvgLoss, 1e-9)
	assert.InDelta(t, 15, y19.NetProfit, 1e-9)

	y20 := s.Yearly[2020]
	assert.Equal(t, 1, y20.Losers)
	assert.Zero(t, y20.WinRate)
	assert.InDelta(t, 100, y20.LossRate, 1e-9)
}

func TestSharpe_ZeroStdUsesOne(t *testing.T) {
	e := d(2022, time.January, 3)
	trades := []model.Trade{
		tr(e, 100, e.AddDate(0, 0, 3), 105),
		tr(e.AddDate(0, 1, 0), 200, e.AddDate(0, 1, 3), 210),
	}
	got := sharpe(trades, 2)
	assert.InDelta(t, (5-2.0/252)*math.Sqrt(252), got, 1e-9)
}

func TestSummary_JSONSafe(t *testing.T) {
	st := Compute([]model.Trade{
		tr(d(2021, time.March, 1), 100, d(2021, time.April, 1), 110),
		tr(d(2020, time.May, 1), 100, d(2020, time.June, 1), 120),
	}, 1000, DefaultOptions())
	require.True(t, math.IsInf(st.ProfitFactor, 1))

	sum := st.Summary()
	assert.Nil(t, sum.ProfitFactor)
	require.Len(t, sum.Yearly, 2)
	assert.Equal(t, 2020, sum.Yearly[0].Year)
	assert.Equal(t, 2021, sum.Yearly[1].Year)

	raw, err := json.Marshal(sum)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"profit_factor":null`)
}

func TestSummary_FiniteProfitFactor(t *testing.T) {
	st := Compute([]model.Trade{
		tr(d(2021, time.March, 1), 100, d(2021, time.April, 1), 110),
		tr(d(2021, time.May, 1), 100, d(2021, time.June, 1), 95),
	}, 1000, DefaultOptions())
	sum := st.Summary()
	require.NotNil(t, sum.ProfitFactor)
	assert.InDelta(t, st.ProfitFactor, *sum.ProfitFactor, 1e-12)
}
