// Package backtest runs a set of configured strategies over one symbol.
//
// Each strategy is an independent pipeline (indicators, state machine,
// statistics) and pipelines run in parallel up to a limit. Results are
// handed to the configured sinks in configuration order once every
// pipeline has finished.
package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"swing-backtest/internal/execution"
	"swing-backtest/internal/logger"
	"swing-backtest/internal/marketdata"
	"swing-backtest/internal/markethours"
	"swing-backtest/internal/metrics"
	"swing-backtest/internal/model"
	"swing-backtest/internal/stats"
	"swing-backtest/internal/strategy"
)

// ErrNoStrategies is returned when a run is configured with no strategies.
var ErrNoStrategies = errors.New("no strategies configured")

// StrategySpec selects one strategy. ID labels the run in reports and sinks
// and defaults to Name, so the same strategy can run twice with different
// params.
type StrategySpec struct {
	Name   string
	ID     string
	Params *yaml.Node
}

// Label returns ID, or Name when no ID is set.
func (s StrategySpec) Label() string {
	if s.ID != "" {
		return s.ID
	}
	return s.Name
}

// Options tune a run. A zero Initial uses stats.DefaultInitial and a zero
// Parallelism uses GOMAXPROCS workers. RiskFreeRate is used as given.
type Options struct {
	Symbol       string
	Initial      float64
	RiskFreeRate float64
	SlippageBps  float64
	Parallelism  int
}

func (o Options) withDefaults() Options {
	if o.Initial <= 0 {
		o.Initial = stats.DefaultInitial
	}
	if o.Parallelism <= 0 {
		o.Parallelism = runtime.GOMAXPROCS(0)
	}
	return o
}

// Sink is a named result sink; the name labels error metrics and logs.
type Sink struct {
	Name string
	model.ResultSink
}

// Outcome is the result of one strategy.
type Outcome struct {
	ID         string
	Result     strategy.Result
	Stats      stats.Stats
	Allocation map[model.Leg]float64

	// Legs holds per-leg statistics, each leg starting from its share of
	// the initial capital. Only set for strategies with more than one leg.
	Legs map[model.Leg]stats.Stats

	Slippage float64
}

// Scaled reports whether the outcome has per-leg statistics.
func (o Outcome) Scaled() bool { return len(o.Legs) > 0 }

// CombinedCapital is the final capital across legs, or the overall final
// capital for single-leg strategies.
func (o Outcome) CombinedCapital() float64 {
	if !o.Scaled() {
		return o.Stats.FinalCapital
	}
	total := 0.0
	for _, s := range o.Legs {
		total += s.FinalCapital
	}
	return total
}

// Report is a whole backtest.
type Report struct {
	RunID    string
	Symbol   string
	Bars     int
	First    time.Time
	Last     time.Time
	Outcomes []Outcome
	Started  time.Time
	Elapsed  time.Duration

	// Missing lists trading days inside [First, Last] with no bar.
	Missing []time.Time
}

// Runner builds strategies from a registry and runs them.
type Runner struct {
	// Calendar, when set, is used to report sessions missing from the
	// series.
	Calendar *markethours.Calendar

	registry *strategy.Registry
	metrics  *metrics.Metrics
	sinks    []Sink
	log      *slog.Logger
	now      func() time.Time
}

// NewRunner creates a runner. m and sinks may be nil; a nil logger uses
// slog.Default().
func NewRunner(reg *strategy.Registry, m *metrics.Metrics, sinks []Sink, l *slog.Logger) *Runner {
	if l == nil {
		l = slog.Default()
	}
	return &Runner{registry: reg, metrics: m, sinks: sinks, log: l, now: time.Now}
}

type job struct {
	spec     StrategySpec
	strategy strategy.Strategy
}

// Run loads symbol from src and runs every spec against it. Strategy
// configuration errors are reported before any data is read; the first
// failing pipeline cancels the rest. Sink failures are logged and counted
// but do not fail the run.
func (r *Runner) Run(ctx context.Context, src marketdata.Source, specs []StrategySpec, opts Options) (*Report, error) {
	if len(specs) == 0 {
		return nil, ErrNoStrategies
	}
	opts = opts.withDefaults()

	jobs, err := r.build(specs)
	if err != nil {
		return nil, err
	}

	runID := logger.RunID(ctx)
	if runID == "" {
		runID = logger.NewRunID()
		ctx = logger.WithRunID(ctx, runID)
	}
	log := logger.FromContext(ctx, r.log).With(slog.String("symbol", opts.Symbol))
	started := r.now()

	series, err := marketdata.Load(ctx, src, opts.Symbol)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", opts.Symbol, err)
	}
	if len(series.Daily) == 0 {
		return nil, fmt.Errorf("load %s: %w", opts.Symbol, marketdata.ErrEmptySeries)
	}
	log.Info("series loaded",
		slog.Int("daily", len(series.Daily)),
		slog.Int("weekly", len(series.Weekly)),
		slog.Int("strategies", len(jobs)),
	)
	var missing []time.Time
	if r.Calendar != nil {
		missing = r.Calendar.Missing(series.Daily)
		if len(missing) > 0 {
			log.Warn("series has missing sessions",
				slog.Int("count", len(missing)),
				slog.String("first", missing[0].Format(time.DateOnly)),
			)
		}
	}

	outcomes := make([]Outcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)
	for i, j := range jobs {
		g.Go(func() error {
			out, err := r.runOne(gctx, j, series, opts, log)
			if err != nil {
				if r.metrics != nil {
					r.metrics.RunsFailed.WithLabelValues(j.spec.Label()).Inc()
				}
				return fmt.Errorf("%s: %w", j.spec.Label(), err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &Report{
		RunID:    runID,
		Symbol:   opts.Symbol,
		Bars:     len(series.Daily),
		First:    series.Daily[0].Date,
		Last:     series.Daily[len(series.Daily)-1].Date,
		Outcomes: outcomes,
		Started:  started,
		Missing:  missing,
	}
	r.publish(ctx, rep, log)
	rep.Elapsed = r.now().Sub(started)
	if r.metrics != nil {
		r.metrics.MarkRun(started.Add(rep.Elapsed))
	}
	log.Info("backtest complete", slog.Duration("elapsed", rep.Elapsed))
	return rep, nil
}

func (r *Runner) build(specs []StrategySpec) ([]job, error) {
	jobs := make([]job, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		label := spec.Label()
		if seen[label] {
			return nil, fmt.Errorf("duplicate strategy id %q", label)
		}
		seen[label] = true

		s, err := r.registry.Build(spec.Name, spec.Params)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job{spec: spec, strategy: s})
	}
	return jobs, nil
}

func (r *Runner) runOne(ctx context.Context, j job, series marketdata.Series, opts Options, log *slog.Logger) (Outcome, error) {
	label := j.spec.Label()
	l := log.With(slog.String("strategy", label))
	filler := execution.NewPaperFiller(label, opts.SlippageBps, l)

	res, err := strategy.Run(ctx, j.strategy, series.For(j.strategy.Timeframe()), strategy.RunOptions{
		Filler: filler,
		Logger: l,
	})
	if err != nil {
		return Outcome{}, err
	}

	sopts := stats.Options{RiskFreeRate: opts.RiskFreeRate}
	out := Outcome{
		ID:         label,
		Result:     res,
		Stats:      stats.Compute(res.Trades, opts.Initial, sopts),
		Allocation: strategy.Allocation(j.strategy),
		Slippage:   filler.TotalSlippage(),
	}
	if len(out.Allocation) > 1 {
		out.Legs = make(map[model.Leg]stats.Stats, len(out.Allocation))
		for leg, share := range out.Allocation {
			out.Legs[leg] = stats.Compute(res.LegTrades[leg], opts.Initial*share, sopts)
		}
	}

	if r.metrics != nil {
		counts := make(map[model.Leg]int, len(res.LegTrades))
		for leg, ts := range res.LegTrades {
			counts[leg] = len(ts)
		}
		r.metrics.ObserveRun(label, res.Bars, counts, res.Elapsed, out.Stats.Summary())
	}
	return out, nil
}

func (r *Runner) publish(ctx context.Context, rep *Report, log *slog.Logger) {
	if len(r.sinks) == 0 {
		return
	}
	for _, out := range rep.Outcomes {
		summary, err := json.Marshal(out.Stats.Summary())
		if err != nil {
			log.Error("encode summary", slog.String("strategy", out.ID), slog.Any("error", err))
			continue
		}
		res := model.RunResult{
			RunID:    rep.RunID,
			Symbol:   rep.Symbol,
			Strategy: out.ID,
			Trades:   out.Result.Trades,
			Summary:  summary,
		}
		for _, s := range r.sinks {
			if err := s.Publish(ctx, res); err != nil {
				log.Warn("publish failed",
					slog.String("sink", s.Name),
					slog.String("strategy", out.ID),
					slog.Any("error", err),
				)
				if r.metrics != nil {
					r.metrics.SinkErrors.WithLabelValues(s.Name).Inc()
				}
			}
		}
	}
}
