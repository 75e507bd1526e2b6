// Package strategy runs long-only rule-based strategies over a bar series.
//
// A Strategy receives one bar at a time and opens or closes position legs
// on a Book. Run drives a strategy over a whole series, force-closes
// anything still open on the last bar and collects the closed trades.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"swing-backtest/internal/execution"
	"swing-backtest/internal/model"
)

// Strategy is the interface that all strategies must implement.
type Strategy interface {
	// Name returns the registry name of the strategy.
	Name() string

	// Timeframe is the bar series the strategy expects.
	Timeframe() model.Timeframe

	// OnBar is called once per bar in ascending date order. Indicators
	// are updated first, then entry/exit rules act on book.
	OnBar(bar model.Bar, book *Book) error
}

// Allocator is implemented by strategies that split capital between the
// primary and scaled legs. Shares sum to 1.
type Allocator interface {
	Allocation() map[model.Leg]float64
}

// Allocation returns s's capital share per leg. Single-leg strategies put
// everything on the primary leg.
func Allocation(s Strategy) map[model.Leg]float64 {
	if a, ok := s.(Allocator); ok {
		return a.Allocation()
	}
	return map[model.Leg]float64{model.LegPrimary: 1}
}

// RunOptions configures Run. The zero value fills at exact prices and logs
// to slog.Default().
type RunOptions struct {
	Filler execution.Filler
	Logger *slog.Logger

	// OnBar, if set, is called after the strategy has seen each bar.
	OnBar func(bar model.Bar, state State)
}

// Result is the output of one strategy run.
type Result struct {
	Strategy  string                      `json:"strategy"`
	Timeframe model.Timeframe             `json:"timeframe"`
	Trades    []model.Trade               `json:"trades"`
	LegTrades map[model.Leg][]model.Trade `json:"leg_trades"`
	Bars      int                         `json:"bars"`
	Elapsed   time.Duration               `json:"elapsed"`
}

// ErrNoBars is returned by Run for an empty series.
var ErrNoBars = errors.New("empty bar series")

// Run feeds bars to s in order. Any leg still open after the last bar is
// closed at that bar's close with reason "end of series".
func Run(ctx context.Context, s Strategy, bars []model.Bar, opts RunOptions) (Result, error) {
	if len(bars) == 0 {
		return Result{}, fmt.Errorf("run %s: %w", s.Name(), ErrNoBars)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("strategy", s.Name()))
	book := NewBook(opts.Filler, logger)

	start := time.Now()
	for i, bar := range bars {
		if i&0xff == 0 {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}
		if err := s.OnBar(bar, book); err != nil {
			return Result{}, fmt.Errorf("run %s on %s: %w", s.Name(), bar.Date.Format(time.DateOnly), err)
		}
		if opts.OnBar != nil {
			opts.OnBar(bar, book.State())
		}
	}

	last := bars[len(bars)-1]
	if book.State() != Flat {
		if err := book.CloseAll(last.Date, last.Close, ReasonEndOfSeries); err != nil {
			return Result{}, fmt.Errorf("run %s: force close: %w", s.Name(), err)
		}
	}

	res := Result{
		Strategy:  s.Name(),
		Timeframe: s.Timeframe(),
		Trades:    book.Trades(),
		LegTrades: map[model.Leg][]model.Trade{
			model.LegPrimary: book.LegTrades(model.LegPrimary),
		},
		Bars:    len(bars),
		Elapsed: time.Since(start),
	}
	if scaled := book.LegTrades(model.LegScaled); len(scaled) > 0 {
		res.LegTrades[model.LegScaled] = scaled
	}
	model.SortTrades(res.Trades)

	logger.Info("run complete",
		slog.Int("bars", res.Bars),
		slog.Int("trades", len(res.Trades)),
		slog.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}
