package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swing-backtest/internal/model"
)

type failing struct{ at int }

func (f *failing) Name() string               { return "failing" }
func (f *failing) Timeframe() model.Timeframe { return model.Daily }
func (f *failing) OnBar(bar model.Bar, book *Book) error {
	f.at--
	if f.at < 0 {
		return errors.New("boom")
	}
	return nil
}

func TestRun_EmptySeries(t *testing.T) {
	_, err := Run(context.Background(), NewBuyAndHold(BuyAndHoldParams{Timeframe: model.Daily}), nil, RunOptions{Logger: quiet})
	assert.ErrorIs(t, err, ErrNoBars)
}

func TestRun_ForceClosesAtEnd(t *testing.T) {
	res := run(t, NewBuyAndHold(BuyAndHoldParams{Timeframe: model.Daily}), flat(100, 105, 120))

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, day(0), tr.EntryDate)
	assert.Equal(t, day(2), tr.ExitDate)
	assert.Equal(t, 120.0, tr.ExitPrice)
	assert.Equal(t, ReasonEndOfSeries, tr.Reason)
	assert.Equal(t, 3, res.Bars)
	assert.Equal(t, NameBuyAndHold, res.Strategy)
	assert.Len(t, res.LegTrades[model.LegPrimary], 1)
	assert.NotContains(t, res.LegTrades, model.LegScaled)
}

func TestRun_SingleBar(t *testing.T) {
	res := run(t, NewBuyAndHold(BuyAndHoldParams{Timeframe: model.Daily}), flat(50))
	require.Len(t, res.Trades, 1)
	assert.Zero(t, res.Trades[0].ProfitPct())
	assert.Zero(t, res.Trades[0].HoldingDays())
}

func TestRun_StrategyError(t *testing.T) {
	_, err := Run(context.Background(), &failing{at: 1}, flat(1, 2, 3), RunOptions{Logger: quiet})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "2020-01-02")
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, &failing{at: 10}, flat(1, 2, 3), RunOptions{Logger: quiet})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_OnBarHook(t *testing.T) {
	var states []State
	_, err := Run(context.Background(), NewBuyAndHold(BuyAndHoldParams{Timeframe: model.Daily}), flat(1, 2), RunOptions{
		Logger: quiet,
		OnBar:  func(_ model.Bar, s State) { states = append(states, s) },
	})
	require.NoError(t, err)
	assert.Equal(t, []State{Long, Long}, states)
}

func TestAllocation(t *testing.T) {
	assert.Equal(t, map[model.Leg]float64{model.LegPrimary: 1}, Allocation(NewBuyAndHold(BuyAndHoldParams{})))

	a := Allocation(NewScaledTrend(DefaultScaledTrendParams(model.Daily)))
	assert.InDelta(t, 0.1, a[model.LegPrimary], 1e-12)
	assert.InDelta(t, 0.9, a[model.LegScaled], 1e-12)
}
