// Package report renders backtest results as plain text.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"swing-backtest/internal/backtest"
	"swing-backtest/internal/model"
	"swing-backtest/internal/portfolio"
	"swing-backtest/internal/stats"
)

// DefaultCurrency prefixes money amounts.
const DefaultCurrency = "₹"

// Options select the optional sections of a report.
type Options struct {
	Currency string
	Yearly   bool
	Trades   bool
}

// Money formats an amount with thousands separators and two decimals.
func Money(currency string, v float64) string {
	return currency + humanize.FormatFloat("#,###.##", v)
}

func pct(v float64) string { return fmt.Sprintf("%.2f%%", v) }

// Ratio formats a ratio; +Inf prints as "inf".
func Ratio(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", v)
}

// Write renders the whole backtest: a comparison table followed by one
// section per strategy.
func Write(w io.Writer, rep *backtest.Report, opts Options) error {
	if opts.Currency == "" {
		opts.Currency = DefaultCurrency
	}
	ew := &errWriter{w: w}

	ew.printf("Backtest %s  %s\n", rep.Symbol, rep.RunID)
	ew.printf("%s bars, %s → %s, ran in %s\n\n",
		humanize.Comma(int64(rep.Bars)),
		rep.First.Format(time.DateOnly), rep.Last.Format(time.DateOnly),
		rep.Elapsed.Round(time.Millisecond))
	if n := len(rep.Missing); n > 0 {
		ew.printf("Warning: %d trading sessions missing, first %s\n\n", n, rep.Missing[0].Format(time.DateOnly))
	}

	writeComparison(ew, rep.Outcomes, opts.Currency)
	for _, out := range rep.Outcomes {
		ew.printf("\n")
		writeOutcome(ew, out, opts)
	}
	return ew.err
}

func writeComparison(ew *errWriter, outs []backtest.Outcome, cur string) {
	tw := tabwriter.NewWriter(ew, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Strategy\tTF\tTrades\tWin %\tFinal\tReturn %\tCAGR %\tMax DD %\tSharpe\t")
	for _, o := range outs {
		s := o.Stats
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			o.ID, o.Result.Timeframe, s.TotalTrades, s.WinRate,
			Money(cur, o.CombinedCapital()), s.TotalReturnPct, s.CAGR, s.MaxDrawdownPct, s.Sharpe)
	}
	tw.Flush()
}

func writeOutcome(ew *errWriter, out backtest.Outcome, opts Options) {
	title := fmt.Sprintf("%s (%s, %d bars)", out.ID, out.Result.Timeframe, out.Result.Bars)
	ew.printf("%s\n%s\n", title, strings.Repeat("=", len([]rune(title))))

	WriteStats(ew, out.Stats, opts.Currency)
	if out.Slippage > 0 {
		ew.printf("Slippage paid: %s per unit\n", Money(opts.Currency, out.Slippage))
	}

	if out.Scaled() {
		legs := make([]model.Leg, 0, len(out.Legs))
		for leg := range out.Legs {
			legs = append(legs, leg)
		}
		sort.Slice(legs, func(i, j int) bool { return legs[i] < legs[j] })
		for _, leg := range legs {
			s := out.Legs[leg]
			ew.printf("\n%s leg (%.0f%% of capital): %d trades, %s → %s, win rate %s, max DD %s\n",
				leg, out.Allocation[leg]*100, s.TotalTrades,
				Money(opts.Currency, s.Initial), Money(opts.Currency, s.FinalCapital),
				pct(s.WinRate), pct(s.MaxDrawdownPct))
		}
		ew.printf("Combined final capital: %s\n", Money(opts.Currency, out.CombinedCapital()))
	}

	if opts.Yearly && len(out.Stats.Yearly) > 0 {
		ew.printf("\n")
		WriteYearly(ew, out.Stats)
	}
	if opts.Trades && len(out.Result.Trades) > 0 {
		ew.printf("\n")
		WriteTrades(ew, out.Result.Trades, out.Stats.Initial, opts.Currency)
	}
}

// WriteStats renders the full statistics block of one trade list.
func WriteStats(w io.Writer, s stats.Stats, cur string) {
	ew := &errWriter{w: w}
	ew.printf("Investment\n")
	ew.printf("  Initial investment   %s\n", Money(cur, s.Initial))
	ew.printf("  Final capital        %s\n", Money(cur, s.FinalCapital))
	ew.printf("  Total gain           %s\n", Money(cur, s.TotalGain))
	ew.printf("  Total loss           %s\n", Money(cur, s.TotalLoss))
	ew.printf("  Net profit/loss      %s\n", Money(cur, s.NetProfit))
	ew.printf("  Total return         %s\n", pct(s.TotalReturnPct))
	ew.printf("  CAGR                 %s\n", pct(s.CAGR))
	ew.printf("Time\n")
	ew.printf("  Total period         %d days (%.1f years)\n", s.TotalDays, s.Years)
	ew.printf("  Days in trade        %d\n", s.DaysInTrade)
	ew.printf("  Days out of trade    %d\n", s.DaysOutOfTrade)
	ew.printf("  Time in trade        %s\n", pct(s.PctTimeInTrade))
	ew.printf("Trades\n")
	ew.printf("  Total                %d\n", s.TotalTrades)
	ew.printf("  Profitable           %d\n", s.Winners)
	ew.printf("  Losing               %d\n", s.Losers)
	ew.printf("  Win rate             %s\n", pct(s.WinRate))
	ew.printf("Profit\n")
	ew.printf("  Maximum profit       %s\n", pct(s.MaxProfit))
	ew.printf("  Maximum loss         %s\n", pct(s.MaxLoss))
	ew.printf("  Average profit       %s\n", pct(s.AvgProfit))
	ew.printf("  Profit std dev       %s\n", pct(s.ProfitStd))
	ew.printf("  Maximum drawdown     %s\n", pct(s.MaxDrawdownPct))
	ew.printf("  Profit factor        %s\n", Ratio(s.ProfitFactor))
	ew.printf("Holding\n")
	ew.printf("  Avg (profitable)     %.1f days\n", s.AvgHoldingWinners)
	ew.printf("  Avg (losing)         %.1f days\n", s.AvgHoldingLosers)
	ew.printf("Risk\n")
	ew.printf("  Sharpe ratio         %s\n", Ratio(s.Sharpe))
}

// WriteYearly renders the per-year breakdown in ascending year order.
func WriteYearly(w io.Writer, s stats.Stats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Year\tTrades\tWin %\tLoss %\tAvg profit %\tAvg loss %\tTotal profit %\tTotal loss %\tNet %\t")
	for _, y := range s.YearList() {
		ys := s.Yearly[y]
		fmt.Fprintf(tw, "%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			ys.Year, ys.TotalTrades, ys.WinRate, ys.LossRate, ys.AvgProfit, ys.AvgLoss,
			ys.TotalProfit, ys.TotalLoss, ys.NetProfit)
	}
	tw.Flush()
}

// WriteTrades renders the trade log with the P&L each trade booked on a
// compounding ledger starting at initial.
func WriteTrades(w io.Writer, trades []model.Trade, initial float64, cur string) {
	sorted := make([]model.Trade, len(trades))
	copy(sorted, trades)
	model.SortTrades(sorted)
	ledger := portfolio.NewLedger(initial)
	entries := ledger.RecordAll(sorted)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tLeg\tEntry\tPrice\tExit\tPrice\tDays\tProfit %\tP&L\tCapital\tReason")
	for i, e := range entries {
		t := e.Trade
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%s\t%.2f\t%d\t%.2f\t%s\t%s\t%s\n",
			i+1, t.Leg,
			t.EntryDate.Format(time.DateOnly), t.EntryPrice,
			t.ExitDate.Format(time.DateOnly), t.ExitPrice,
			t.HoldingDays(), t.ProfitPct(),
			Money(cur, e.PnL), Money(cur, e.CapitalAfter), t.Reason)
	}
	tw.Flush()

	sum := ledger.Summary()
	fmt.Fprintf(w, "Realized %s over %d trades (gross gain %s, gross loss %s, max drawdown %.2f%%)\n",
		Money(cur, sum.RealizedPnL), sum.Trades, Money(cur, sum.GrossGain), Money(cur, sum.GrossLoss), sum.MaxDrawdownPct)
}

// errWriter keeps the first write error and skips later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

func (e *errWriter) printf(format string, args ...any) {
	fmt.Fprintf(e, format, args...)
}
