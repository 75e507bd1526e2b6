package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"swing-backtest/internal/backtest"
	"swing-backtest/internal/model"
	"swing-backtest/internal/stats"
	"swing-backtest/internal/strategy"
)

func trade(y int, entry, exit float64, leg model.Leg) model.Trade {
	return model.Trade{
		EntryDate:  model.Date(y, time.March, 2),
		EntryPrice: entry,
		ExitDate:   model.Date(y, time.April, 1),
		ExitPrice:  exit,
		Leg:        leg,
		Reason:     "close below slow ema",
	}
}

func sample() *backtest.Report {
	trades := []model.Trade{trade(2020, 100, 110, model.LegPrimary), trade(2021, 100, 105, model.LegPrimary)}
	return &backtest.Report{
		RunID:  "run-1",
		Symbol: "NIFTY",
		Bars:   1234,
		First:  model.Date(2020, time.January, 1),
		Last:   model.Date(2021, time.December, 31),
		Outcomes: []backtest.Outcome{{
			ID:         "ma-trend",
			Result:     strategy.Result{Strategy: "ma-trend", Timeframe: model.Daily, Trades: trades, Bars: 1234},
			Stats:      stats.Compute(trades, 1000, stats.DefaultOptions()),
			Allocation: map[model.Leg]float64{model.LegPrimary: 1},
		}},
	}
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "₹1,234,567.89", Money("₹", 1234567.891))
	assert.Equal(t, "$0.00", Money("$", 0))
	assert.Equal(t, "-1,234.50", Money("", -1234.5))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, "inf", Ratio(stats.Compute([]model.Trade{trade(2020, 1, 2, model.LegPrimary)}, 1, stats.DefaultOptions()).ProfitFactor))
	assert.Equal(t, "1.50", Ratio(1.5))
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, sample(), Options{Yearly: true, Trades: true})
	assert.NoError(t, err)
	out := buf.String()

	assert.Contains(t, out, "Backtest NIFTY  run-1")
	assert.Contains(t, out, "1,234 bars, 2020-01-01 → 2021-12-31")
	assert.Contains(t, out, "Final capital        ₹1,155.00")
	assert.Contains(t, out, "Profit factor        inf")
	assert.Contains(t, out, "Win rate             100.00%")

	// Yearly rows in ascending order.
	i2020 := strings.Index(out, "2020  ")
	i2021 := strings.Index(out, "2021  ")
	assert.True(t, i2020 >= 0 && i2021 > i2020, "yearly rows missing or out of order")

	// Trade log books P&L on a compounding ledger.
	assert.Contains(t, out, "₹100.00")
	assert.Contains(t, out, "₹55.00")
	assert.Contains(t, out, "close below slow ema")
	assert.Contains(t, out, "Realized ₹155.00 over 2 trades (gross gain ₹155.00, gross loss ₹0.00, max drawdown 0.00%)")
}

func TestWrite_OptionalSections(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, Write(&buf, sample(), Options{Currency: "$"}))
	out := buf.String()
	assert.Contains(t, out, "$1,155.00")
	assert.NotContains(t, out, "Reason")
	assert.NotContains(t, out, "Total profit %")
	assert.NotContains(t, out, "sessions missing")
}

func TestWrite_MissingSessions(t *testing.T) {
	rep := sample()
	rep.Missing = []time.Time{model.Date(2020, time.March, 3), model.Date(2020, time.March, 4)}
	var buf bytes.Buffer
	assert.NoError(t, Write(&buf, rep, Options{}))
	assert.Contains(t, buf.String(), "Warning: 2 trading sessions missing, first 2020-03-03")
}

func TestWrite_ScaledLegs(t *testing.T) {
	primary := []model.Trade{trade(2020, 100, 110, model.LegPrimary)}
	scaled := []model.Trade{trade(2020, 110, 121, model.LegScaled)}
	all := append(append([]model.Trade{}, primary...), scaled...)
	opts := stats.DefaultOptions()

	rep := sample()
	rep.Outcomes = []backtest.Outcome{{
		ID:         "scaled-trend",
		Result:     strategy.Result{Timeframe: model.Daily, Trades: all},
		Stats:      stats.Compute(all, 1000, opts),
		Allocation: map[model.Leg]float64{model.LegPrimary: 0.1, model.LegScaled: 0.9},
		Legs: map[model.Leg]stats.Stats{
			model.LegPrimary: stats.Compute(primary, 100, opts),
			model.LegScaled:  stats.Compute(scaled, 900, opts),
		},
	}}

	var buf bytes.Buffer
	assert.NoError(t, Write(&buf, rep, Options{}))
	out := buf.String()
	assert.Contains(t, out, "primary leg (10% of capital): 1 trades, ₹100.00 → ₹110.00")
	assert.Contains(t, out, "scaled leg (90% of capital): 1 trades, ₹900.00 → ₹990.00")
	assert.Contains(t, out, "Combined final capital: ₹1,100.00")
	assert.Less(t, strings.Index(out, "primary leg"), strings.Index(out, "scaled leg"))
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWrite_PropagatesError(t *testing.T) {
	err := Write(brokenWriter{}, sample(), Options{})
	assert.EqualError(t, err, "disk full")
}
