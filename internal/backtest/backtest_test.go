package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"swing-backtest/internal/logger"
	"swing-backtest/internal/markethours"
	"swing-backtest/internal/metrics"
	"swing-backtest/internal/model"
	"swing-backtest/internal/stats"
	"swing-backtest/internal/strategy"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memSource serves a fixed series and counts calls.
type memSource struct {
	bars  []model.Bar
	calls int
}

func (m *memSource) Bars(context.Context, string) ([]model.Bar, error) {
	m.calls++
	return m.bars, nil
}

// rising returns n daily bars closing at 100, 101, ...
func rising(n int) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		date := model.Date(2020, time.January, 1).AddDate(0, 0, i)
		bars[i] = model.Bar{Date: date, Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

type memSink struct {
	mu  sync.Mutex
	got []model.RunResult
	err error
}

func (s *memSink) Publish(_ context.Context, r model.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, r)
	return nil
}

func (s *memSink) Close() error { return nil }

type failing struct{}

func (failing) Name() string                          { return "failing" }
func (failing) Timeframe() model.Timeframe            { return model.Daily }
func (failing) OnBar(model.Bar, *strategy.Book) error { return errors.New("boom") }

func params(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var n yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &n))
	return n.Content[0]
}

func TestRun_BuyAndHold(t *testing.T) {
	src := &memSource{bars: rising(30)}
	sink := &memSink{}
	m := metrics.NewMetrics()
	r := NewRunner(strategy.NewRegistry(), m, []Sink{{Name: "mem", ResultSink: sink}}, quiet())

	ctx := logger.WithRunID(context.Background(), "run-42")
	rep, err := r.Run(ctx, src, []StrategySpec{
		{Name: strategy.NameBuyAndHold},
		{Name: strategy.NameBuyAndHold, ID: "bh-weekly", Params: params(t, "timeframe: weekly")},
	}, Options{Symbol: "NIFTY", Initial: 1000})
	require.NoError(t, err)

	assert.Equal(t, "run-42", rep.RunID)
	assert.Equal(t, 30, rep.Bars)
	assert.Equal(t, 1, src.calls, "series is loaded once")
	require.Len(t, rep.Outcomes, 2)

	daily := rep.Outcomes[0]
	assert.Equal(t, strategy.NameBuyAndHold, daily.ID)
	require.Len(t, daily.Result.Trades, 1)
	tr := daily.Result.Trades[0]
	assert.Equal(t, 100.0, tr.EntryPrice)
	assert.Equal(t, 129.0, tr.ExitPrice)
	assert.Equal(t, strategy.ReasonEndOfSeries, tr.Reason)
	assert.InDelta(t, 1290.0, daily.Stats.FinalCapital, 1e-9)
	assert.False(t, daily.Scaled())
	assert.InDelta(t, 1290.0, daily.CombinedCapital(), 1e-9)

	assert.Equal(t, "bh-weekly", rep.Outcomes[1].ID)
	assert.Equal(t, model.Weekly, rep.Outcomes[1].Result.Timeframe)

	require.Len(t, sink.got, 2)
	assert.Equal(t, "run-42", sink.got[0].RunID)
	assert.Equal(t, strategy.NameBuyAndHold, sink.got[0].Strategy)
	assert.Equal(t, "bh-weekly", sink.got[1].Strategy)
	var sum stats.Summary
	require.NoError(t, json.Unmarshal(sink.got[0].Summary, &sum))
	assert.Equal(t, 1, sum.TotalTrades)

	assert.Equal(t, 30.0, testutil.ToFloat64(m.BarsProcessed.WithLabelValues(strategy.NameBuyAndHold)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradesTotal.WithLabelValues("bh-weekly", "primary")))
}

func TestRun_ScaledLegs(t *testing.T) {
	r := NewRunner(strategy.NewRegistry(), nil, nil, quiet())
	rep, err := r.Run(context.Background(), &memSource{bars: rising(60)}, []StrategySpec{
		{Name: strategy.NameScaledTrend, Params: params(t, "fast: 2\nslow: 4\nguard: 3\nstart_index: 4")},
	}, Options{Symbol: "NIFTY", Initial: 1000, Parallelism: 1})
	require.NoError(t, err)

	out := rep.Outcomes[0]
	require.True(t, out.Scaled())
	assert.InDelta(t, 100.0, out.Legs[model.LegPrimary].Initial, 1e-9)
	assert.InDelta(t, 900.0, out.Legs[model.LegScaled].Initial, 1e-9)
	assert.InDelta(t,
		out.Legs[model.LegPrimary].FinalCapital+out.Legs[model.LegScaled].FinalCapital,
		out.CombinedCapital(), 1e-9)
}

func TestRun_ConfigErrorsBeforeLoad(t *testing.T) {
	r := NewRunner(strategy.NewRegistry(), nil, nil, quiet())
	src := &memSource{bars: rising(5)}

	_, err := r.Run(context.Background(), src, nil, Options{})
	assert.ErrorIs(t, err, ErrNoStrategies)

	_, err = r.Run(context.Background(), src, []StrategySpec{{Name: "nope"}}, Options{})
	assert.ErrorIs(t, err, strategy.ErrUnknownStrategy)

	_, err = r.Run(context.Background(), src, []StrategySpec{
		{Name: strategy.NameBuyAndHold},
		{Name: strategy.NameBuyAndHold},
	}, Options{})
	assert.ErrorContains(t, err, "duplicate strategy id")

	assert.Zero(t, src.calls)
}

func TestRun_StrategyFailure(t *testing.T) {
	reg := strategy.NewRegistry()
	reg.Register("failing", func(*yaml.Node) (strategy.Strategy, error) { return failing{}, nil })
	m := metrics.NewMetrics()
	sink := &memSink{}
	r := NewRunner(reg, m, []Sink{{Name: "mem", ResultSink: sink}}, quiet())

	_, err := r.Run(context.Background(), &memSource{bars: rising(5)}, []StrategySpec{
		{Name: strategy.NameBuyAndHold},
		{Name: "failing", ID: "f1"},
	}, Options{Symbol: "X"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "f1")
	assert.ErrorContains(t, err, "boom")
	assert.Empty(t, sink.got, "nothing is published for a failed backtest")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsFailed.WithLabelValues("f1")))
}

func TestRun_SinkErrorIsNotFatal(t *testing.T) {
	m := metrics.NewMetrics()
	bad := &memSink{err: errors.New("down")}
	good := &memSink{}
	r := NewRunner(strategy.NewRegistry(), m, []Sink{
		{Name: "redis", ResultSink: bad},
		{Name: "sqlite", ResultSink: good},
	}, quiet())

	_, err := r.Run(context.Background(), &memSource{bars: rising(5)}, []StrategySpec{{Name: strategy.NameBuyAndHold}}, Options{Symbol: "X"})
	require.NoError(t, err)
	assert.Len(t, good.got, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkErrors.WithLabelValues("redis")))
}

func TestRun_EmptySeries(t *testing.T) {
	r := NewRunner(strategy.NewRegistry(), nil, nil, quiet())
	_, err := r.Run(context.Background(), &memSource{}, []StrategySpec{{Name: strategy.NameBuyAndHold}}, Options{Symbol: "X"})
	assert.Error(t, err)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunner(strategy.NewRegistry(), nil, nil, quiet())
	_, err := r.Run(ctx, &memSource{bars: rising(5)}, []StrategySpec{{Name: strategy.NameBuyAndHold}}, Options{Symbol: "X"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_MissingSessions(t *testing.T) {
	cal := markethours.NSE()
	cal.AddHolidays(model.Date(2020, time.January, 1))

	// Drop Fri 3 Jan 2020.
	bars := rising(10)
	bars = append(bars[:2:2], bars[3:]...)

	r := NewRunner(strategy.NewRegistry(), nil, nil, quiet())
	r.Calendar = cal
	rep, err := r.Run(context.Background(), &memSource{bars: bars}, []StrategySpec{{Name: strategy.NameBuyAndHold}}, Options{Symbol: "X"})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{model.Date(2020, time.January, 3)}, rep.Missing)
}
