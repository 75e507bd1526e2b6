package strategy

import (
	"log/slog"

	"gopkg.in/yaml.v3"

	"swing-backtest/internal/indicator"
	"swing-backtest/internal/model"
	"swing-backtest/internal/pattern"
)

// NameTrend5EMA is the registry name of Trend5EMA.
const NameTrend5EMA = "trend5ema"

// Exit reasons used by Trend5EMA.
const (
	ReasonBelowEMA200 = "close below 200 ema"
	ReasonBelowEMA51  = "close below 51 ema"
	ReasonBelowEMA10  = "close below 10 ema"
)

// Trend5EMAParams configures Trend5EMA.
type Trend5EMAParams struct {
	StopLossPct   float64 `yaml:"stop_loss_pct" validate:"gt=0,lt=100"`
	BreakEvenPct  float64 `yaml:"break_even_pct" validate:"gte=0"`
	MinADX        float64 `yaml:"min_adx" validate:"gte=0,lte=100"`
	RangeFraction float64 `yaml:"range_fraction" validate:"gte=0,lte=1"`

	// Cool-off after a run of small results or one outsized trade.
	CoolOffBars    int     `yaml:"cool_off_bars" validate:"gte=0"`
	LossStreak     int     `yaml:"loss_streak" validate:"gte=1"`
	SmallProfitPct float64 `yaml:"small_profit_pct"`
	BigProfitPct   float64 `yaml:"big_profit_pct" validate:"gt=0"`
	LongHoldDays   int     `yaml:"long_hold_days" validate:"gt=0"`

	// UseBaseCount switches to the base-counter exit while a base count
	// is active.
	UseBaseCount bool `yaml:"use_base_count"`
}

// DefaultTrend5EMAParams returns the parameters the strategy was tuned with.
func DefaultTrend5EMAParams() Trend5EMAParams {
	return Trend5EMAParams{
		StopLossPct:    2,
		BreakEvenPct:   5,
		MinADX:         15,
		RangeFraction:  0.75,
		CoolOffBars:    10,
		LossStreak:     3,
		SmallProfitPct: 1,
		BigProfitPct:   50,
		LongHoldDays:   200,
		UseBaseCount:   true,
	}
}

// Trend5EMA buys a pullback that holds the 5 EMA in a trending market
// (ADX filter) and rides it with a break-even stop and an MA exit that
// tightens or loosens with trend strength and base count.
type Trend5EMA struct {
	p Trend5EMAParams

	ema5, ema10, ema21, ema51, ema150, ema200 *indicator.EMA
	adx                                       *indicator.ADX
	base                                      *pattern.BaseCounter

	prevClose float64
	hasPrev   bool

	stop        float64
	use51       bool
	coolOff     int
	smallStreak int
}

// NewTrend5EMA creates the strategy.
func NewTrend5EMA(p Trend5EMAParams) *Trend5EMA {
	return &Trend5EMA{
		p:      p,
		ema5:   indicator.NewEMA(5),
		ema10:  indicator.NewEMA(10),
		ema21:  indicator.NewEMA(21),
		ema51:  indicator.NewEMA(51),
		ema150: indicator.NewEMA(150),
		ema200: indicator.NewEMA(200),
		adx:    indicator.NewADX(14),
		base:   pattern.NewBaseCounter(),
	}
}

func newTrend5EMAFromYAML(params *yaml.Node) (Strategy, error) {
	p := DefaultTrend5EMAParams()
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return NewTrend5EMA(p), nil
}

func (s *Trend5EMA) Name() string               { return NameTrend5EMA }
func (s *Trend5EMA) Timeframe() model.Timeframe { return model.Daily }

func (s *Trend5EMA) OnBar(bar model.Bar, book *Book) error {
	yclose, hadPrev := s.prevClose, s.hasPrev
	s.prevClose, s.hasPrev = bar.Close, true

	e5 := s.ema5.Push(bar.Close)
	e10 := s.ema10.Push(bar.Close)
	s.ema21.Push(bar.Close)
	e51 := s.ema51.Push(bar.Close)
	e150 := s.ema150.Push(bar.Close)
	e200 := s.ema200.Push(bar.Close)
	adx := s.adx.Push(bar.High, bar.Low, bar.Close).ADX

	if s.coolOff > 0 {
		s.coolOff--
		return nil
	}
	if !hadPrev || !e5.Ready || !e10.Ready || !e51.Ready || !e150.Ready || !e200.Ready || !adx.Ready {
		return nil
	}

	s.base.Push(bar.Date, bar.Close, e51.Value, e150.Value, e200.Value)

	if pos, ok := book.Position(model.LegPrimary); ok {
		return s.manage(bar, book, pos, e5.Value, e10.Value, e51.Value, e200.Value)
	}

	rangeOK := bar.Close >= bar.Low+s.p.RangeFraction*bar.Range() || bar.Close > yclose
	if yclose > e5.Value && bar.Low >= e5.Value && bar.Close > e5.Value &&
		adx.Value >= s.p.MinADX && rangeOK {
		if err := book.Open(model.LegPrimary, bar.Date, bar.Close); err != nil {
			return err
		}
		s.stop = bar.Close * (1 - s.p.StopLossPct/100)
		s.use51 = bar.Close >= e51.Value && e5.Value > e51.Value
		book.Log().Debug("base state at entry",
			slog.String("state", s.base.State().String()),
			slog.Int("base_count", s.base.BaseCount()),
			slog.Float64("three_month_high", s.base.ThreeMonthHigh()),
		)
	}
	return nil
}

func (s *Trend5EMA) manage(bar model.Bar, book *Book, pos Position, e5, e10, e51, e200 float64) error {
	if s.stop <= pos.EntryPrice && pos.ProfitPct(bar.Close) > s.p.BreakEvenPct {
		s.stop = pos.EntryPrice
	}
	if !s.use51 {
		s.use51 = bar.Close >= e51 && e5 > e51
	}

	x := trendExit{stop: s.stop, e10: e10, e51: e51, e200: e200, use51: s.use51}
	if s.p.UseBaseCount && s.base.IsCounting() {
		x.counting, x.baseCount = true, s.base.BaseCount()
	}
	exit, price, reason := x.check(bar)
	if !exit {
		return nil
	}
	if err := book.Close(model.LegPrimary, bar.Date, price, reason); err != nil {
		return err
	}

	// Cool-off is judged on the bar's close, not the fill.
	profit := pos.ProfitPct(bar.Close)
	holding := model.DaysBetween(pos.EntryDate, bar.Date)
	if s.coolDown(profit, holding) {
		book.Log().Debug("cool-off",
			slog.Int("bars", s.coolOff),
			slog.Float64("profit_pct", profit),
			slog.Int("holding_days", holding),
		)
	}
	return nil
}

// trendExit holds the exit levels for one bar. While counting, the base
// count rule replaces the 51/10 EMA choice.
type trendExit struct {
	stop, e10, e51, e200 float64
	use51, counting      bool
	baseCount            int
}

// check reports whether bar exits and at what price. The stop always wins.
func (x trendExit) check(bar model.Bar) (bool, float64, string) {
	switch {
	case bar.Low <= x.stop:
		return true, x.stop, ReasonStopLoss
	case x.counting && x.baseCount <= 2:
		return bar.Close < x.e200, bar.Close, ReasonBelowEMA200
	case x.counting, x.use51:
		return bar.Close < x.e51, bar.Close, ReasonBelowEMA51
	default:
		return bar.Close < x.e10, bar.Close, ReasonBelowEMA10
	}
}

// coolDown updates the small-result streak after an exit and reports
// whether a cool-off period started.
func (s *Trend5EMA) coolDown(profit float64, holding int) bool {
	if profit < s.p.SmallProfitPct {
		s.smallStreak++
		if s.smallStreak >= s.p.LossStreak {
			s.coolOff = s.p.CoolOffBars
		}
	} else {
		s.smallStreak = 0
		if profit > s.p.BigProfitPct || holding > s.p.LongHoldDays {
			s.coolOff = s.p.CoolOffBars
		}
	}
	return s.coolOff > 0
}
