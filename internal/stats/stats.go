// Package stats reduces a completed trade list into performance statistics.
//
// Everything is recomputed from scratch on each call; nothing is
// incremental. Trades are sorted by entry date before any reduction.
package stats

import (
	"math"
	"sort"

	"swing-backtest/internal/model"
	"swing-backtest/internal/portfolio"
)

const (
	// DefaultInitial is the starting capital when none is configured.
	DefaultInitial = 100000.0
	// DefaultRiskFreeRate is the annual risk-free rate in percent.
	DefaultRiskFreeRate = 2.0

	tradingDaysPerYear = 252
	daysPerYear        = 365.25
)

// Options tune the reduction.
type Options struct {
	// RiskFreeRate is the annual rate in percent used by the Sharpe ratio.
	RiskFreeRate float64
}

// DefaultOptions returns the standard options (2% risk-free rate).
func DefaultOptions() Options {
	return Options{RiskFreeRate: DefaultRiskFreeRate}
}

// YearlyStats summarises trades entered in one calendar year.
// Profit figures are sums and means of per-trade percentages.
type YearlyStats struct {
	Year        int     `json:"year"`
	TotalTrades int     `json:"total_trades"`
	Winners     int     `json:"winners"`
	Losers      int     `json:"losers"`
	WinRate     float64 `json:"win_rate"`
	LossRate    float64 `json:"loss_rate"`
	AvgProfit   float64 `json:"avg_profit"`
	AvgLoss     float64 `json:"avg_loss"`
	TotalProfit float64 `json:"total_profit"`
	TotalLoss   float64 `json:"total_loss"`
	NetProfit   float64 `json:"net_profit"`
}

// Stats is the full reduction of a trade list. A trade wins when its
// profit percentage is strictly positive; everything else is a loss.
type Stats struct {
	Initial float64 `json:"initial"`

	// Investment
	FinalCapital   float64 `json:"final_capital"`
	TotalGain      float64 `json:"total_gain"`
	TotalLoss      float64 `json:"total_loss"`
	NetProfit      float64 `json:"net_profit"`
	TotalReturnPct float64 `json:"total_return_pct"`
	CAGR           float64 `json:"cagr"`

	// Time
	TotalDays      int     `json:"total_days"`
	Years          float64 `json:"years"`
	DaysInTrade    int     `json:"days_in_trade"`
	DaysOutOfTrade int     `json:"days_out_of_trade"`
	PctTimeInTrade float64 `json:"pct_time_in_trade"`

	// Trades
	TotalTrades int     `json:"total_trades"`
	Winners     int     `json:"winners"`
	Losers      int     `json:"losers"`
	WinRate     float64 `json:"win_rate"`
	LossRate    float64 `json:"loss_rate"`

	// Profit distribution (percent)
	MaxProfit      float64 `json:"max_profit"`
	MaxLoss        float64 `json:"max_loss"`
	AvgProfit      float64 `json:"avg_profit"`
	ProfitStd      float64 `json:"profit_std"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	ProfitFactor   float64 `json:"profit_factor"` // +Inf when TotalLoss == 0

	AvgHoldingWinners float64 `json:"avg_holding_winners"`
	AvgHoldingLosers  float64 `json:"avg_holding_losers"`

	Sharpe float64 `json:"sharpe"`

	Equity []float64           `json:"equity"` // initial followed by one value per trade
	Yearly map[int]YearlyStats `json:"yearly"`
}

// YearList returns the years with trades in ascending order.
func (s *Stats) YearList() []int {
	years := make([]int, 0, len(s.Yearly))
	for y := range s.Yearly {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Summary is the headline view of Stats handed to result sinks. Unlike
// Stats it always encodes to JSON: an infinite profit factor becomes null.
type Summary struct {
	Initial        float64       `json:"initial"`
	FinalCapital   float64       `json:"final_capital"`
	NetProfit      float64       `json:"net_profit"`
	TotalReturnPct float64       `json:"total_return_pct"`
	CAGR           float64       `json:"cagr"`
	MaxDrawdownPct float64       `json:"max_drawdown_pct"`
	ProfitFactor   *float64      `json:"profit_factor"`
	Sharpe         float64       `json:"sharpe"`
	TotalTrades    int           `json:"total_trades"`
	Winners        int           `json:"winners"`
	Losers         int           `json:"losers"`
	WinRate        float64       `json:"win_rate"`
	PctTimeInTrade float64       `json:"pct_time_in_trade"`
	Yearly         []YearlyStats `json:"yearly"`
}

// Summary builds the sink view of s, yearly rows in ascending year order.
func (s *Stats) Summary() Summary {
	sum := Summary{
		Initial:        s.Initial,
		FinalCapital:   s.FinalCapital,
		NetProfit:      s.NetProfit,
		TotalReturnPct: s.TotalReturnPct,
		CAGR:           s.CAGR,
		MaxDrawdownPct: s.MaxDrawdownPct,
		Sharpe:         s.Sharpe,
		TotalTrades:    s.TotalTrades,
		Winners:        s.Winners,
		Losers:         s.Losers,
		WinRate:        s.WinRate,
		PctTimeInTrade: s.PctTimeInTrade,
		Yearly:         make([]YearlyStats, 0, len(s.Yearly)),
	}
	if !math.IsInf(s.ProfitFactor, 0) && !math.IsNaN(s.ProfitFactor) {
		pf := s.ProfitFactor
		sum.ProfitFactor = &pf
	}
	for _, y := range s.YearList() {
		sum.Yearly = append(sum.Yearly, s.Yearly[y])
	}
	return sum
}

// Compute reduces trades into Stats. The input slice is not modified.
func Compute(trades []model.Trade, initial float64, opts Options) Stats {
	sorted := make([]model.Trade, len(trades))
	copy(sorted, trades)
	model.SortTrades(sorted)

	s := Stats{
		Initial:     initial,
		TotalTrades: len(sorted),
		Yearly:      yearly(sorted),
	}

	timeInMarket(&s, sorted)
	investment(&s, sorted)
	distribution(&s, sorted)
	s.Sharpe = sharpe(sorted, opts.RiskFreeRate)
	return s
}

func timeInMarket(s *Stats, trades []model.Trade) {
	for i, t := range trades {
		s.DaysInTrade += t.HoldingDays()
		if i > 0 {
			if gap := model.DaysBetween(trades[i-1].ExitDate, t.EntryDate); gap > 0 {
				s.DaysOutOfTrade += gap
			}
		}
	}
	if len(trades) == 0 {
		return
	}
	s.TotalDays = model.DaysBetween(trades[0].EntryDate, trades[len(trades)-1].ExitDate) + 1
	if s.TotalDays > 0 {
		s.PctTimeInTrade = float64(s.DaysInTrade) / float64(s.TotalDays) * 100
	}
	s.Years = float64(s.TotalDays) / daysPerYear
}

// investment compounds capital trade to trade and derives the equity curve,
// gain/loss amounts, drawdown and CAGR.
func investment(s *Stats, trades []model.Trade) {
	capital := s.Initial
	dd := portfolio.NewDrawdown(capital)
	s.Equity = make([]float64, 0, len(trades)+1)
	s.Equity = append(s.Equity, capital)

	for _, t := range trades {
		amount := capital * t.ProfitPct() / 100
		capital += amount
		if amount > 0 {
			s.TotalGain += amount
		} else {
			s.TotalLoss -= amount
		}
		s.Equity = append(s.Equity, capital)
		dd.Update(capital)
	}

	s.FinalCapital = capital
	s.NetProfit = capital - s.Initial
	s.MaxDrawdownPct = dd.Max()
	if s.Initial > 0 {
		s.TotalReturnPct = (capital/s.Initial - 1) * 100
		if s.Years > 0 {
			s.CAGR = (math.Pow(capital/s.Initial, 1/s.Years) - 1) * 100
		}
	}
	if s.TotalLoss != 0 {
		s.ProfitFactor = s.TotalGain / s.TotalLoss
	} else {
		s.ProfitFactor = math.Inf(1)
	}
}

func distribution(s *Stats, trades []model.Trade) {
	if len(trades) == 0 {
		return
	}
	pcts := make([]float64, len(trades))
	var winHold, loseHold []float64
	for i, t := range trades {
		p := t.ProfitPct()
		pcts[i] = p
		if p > 0 {
			s.Winners++
			winHold = append(winHold, float64(t.HoldingDays()))
		} else {
			s.Losers++
			loseHold = append(loseHold, float64(t.HoldingDays()))
		}
	}
	n := float64(len(trades))
	s.WinRate = float64(s.Winners) / n * 100
	s.LossRate = float64(s.Losers) / n * 100

	s.MaxProfit, s.MaxLoss = pcts[0], pcts[0]
	for _, p := range pcts {
		s.MaxProfit = math.Max(s.MaxProfit, p)
		s.MaxLoss = math.Min(s.MaxLoss, p)
	}
	s.AvgProfit, s.ProfitStd = meanStd(pcts)
	s.AvgHoldingWinners, _ = meanStd(winHold)
	s.AvgHoldingLosers, _ = meanStd(loseHold)
}

// sharpe treats each trade's return as one period: the per-trade excess
// return over rf/252 is annualised with sqrt(252). A zero deviation is
// replaced by 1.
func sharpe(trades []model.Trade, riskFree float64) float64 {
	if len(trades) == 0 {
		return 0
	}
	excess := make([]float64, len(trades))
	for i, t := range trades {
		excess[i] = t.ProfitPct() - riskFree/tradingDaysPerYear
	}
	mean, std := meanStd(excess)
	if std == 0 {
		std = 1
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

func yearly(trades []model.Trade) map[int]YearlyStats {
	out := make(map[int]YearlyStats)
	for _, t := range trades {
		y := t.EntryDate.Year()
		ys := out[y]
		ys.Year = y
		ys.TotalTrades++
		if p := t.ProfitPct(); p > 0 {
			ys.Winners++
			ys.TotalProfit += p
		} else {
			ys.Losers++
			ys.TotalLoss += p
		}
		out[y] = ys
	}
	for y, ys := range out {
		n := float64(ys.TotalTrades)
		ys.WinRate = float64(ys.Winners) / n * 100
		ys.LossRate = float64(ys.Losers) / n * 100
		if ys.Winners > 0 {
			ys.AvgProfit = ys.TotalProfit / float64(ys.Winners)
		}
		if ys.Losers > 0 {
			ys.AvgLoss = ys.TotalLoss / float64(ys.Losers)
		}
		ys.NetProfit = ys.TotalProfit + ys.TotalLoss
		out[y] = ys
	}
	return out
}

// meanStd returns the mean and population standard deviation (0, 0 for an
// empty slice).
func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	n := float64(len(xs))
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	mean := sum / n
	ss := 0.0
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / n)
}
