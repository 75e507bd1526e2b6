package strategy

import (
	"log/slog"

	"gopkg.in/yaml.v3"

	"swing-backtest/internal/indicator"
	"swing-backtest/internal/model"
)

// NameMATrend is the registry name of MATrend.
const NameMATrend = "ma-trend"

// ReasonBelowSlow is the exit reason when the close drops under the slow MA.
const ReasonBelowSlow = "close below slow ema"

// MATrendParams configures MATrend.
type MATrendParams struct {
	Timeframe model.Timeframe `yaml:"timeframe" validate:"oneof=daily weekly"`
	Fast      int             `yaml:"fast" validate:"gte=1"`
	Slow      int             `yaml:"slow" validate:"gtfield=Fast"`

	// StartIndex is the first bar index rules are evaluated on.
	StartIndex int `yaml:"start_index" validate:"gte=0"`

	// Optional RSI filter: entries are skipped while RSI(RSIPeriod) is at
	// or above RSIOverbought. Zero period disables it.
	RSIPeriod     int     `yaml:"rsi_period" validate:"gte=0"`
	RSIOverbought float64 `yaml:"rsi_overbought" validate:"gte=0,lte=100"`
}

// DefaultMATrendParams returns 10/200 for daily and 2/40 for weekly bars.
func DefaultMATrendParams(tf model.Timeframe) MATrendParams {
	if tf == model.Weekly {
		return MATrendParams{Timeframe: tf, Fast: 2, Slow: 40, StartIndex: 40, RSIOverbought: indicator.Overbought}
	}
	return MATrendParams{Timeframe: model.Daily, Fast: 10, Slow: 200, StartIndex: 200, RSIOverbought: indicator.Overbought}
}

// MATrend is long while close > fast EMA > slow EMA and exits when the
// close drops below the slow EMA.
type MATrend struct {
	p    MATrendParams
	fast *indicator.EMA
	slow *indicator.EMA
	rsi  *indicator.RSI
	idx  int
}

// NewMATrend creates the strategy.
func NewMATrend(p MATrendParams) *MATrend {
	s := &MATrend{
		p:    p,
		fast: indicator.NewEMA(p.Fast),
		slow: indicator.NewEMA(p.Slow),
	}
	if p.RSIPeriod > 0 {
		s.rsi = indicator.NewRSI(p.RSIPeriod)
	}
	return s
}

func newMATrendFromYAML(params *yaml.Node) (Strategy, error) {
	tf, err := paramsTimeframe(params, model.Daily)
	if err != nil {
		return nil, err
	}
	p := DefaultMATrendParams(tf)
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return NewMATrend(p), nil
}

func (s *MATrend) Name() string               { return NameMATrend }
func (s *MATrend) Timeframe() model.Timeframe { return s.p.Timeframe }

func (s *MATrend) OnBar(bar model.Bar, book *Book) error {
	i := s.idx
	s.idx++

	fast := s.fast.Push(bar.Close)
	slow := s.slow.Push(bar.Close)
	if s.rsi != nil {
		s.rsi.Push(bar.Close)
	}
	if i < s.p.StartIndex || !fast.Ready || !slow.Ready {
		return nil
	}

	if book.State() != Flat {
		if bar.Close < slow.Value {
			return book.Close(model.LegPrimary, bar.Date, bar.Close, ReasonBelowSlow)
		}
		return nil
	}

	if bar.Close > fast.Value && bar.Close > slow.Value && fast.Value > slow.Value {
		if s.rsi != nil && s.rsi.IsOverbought(s.p.RSIOverbought) {
			book.Log().Debug("entry filtered by rsi",
				slog.String("date", bar.Date.Format("2006-01-02")),
				slog.Float64("rsi", s.rsi.Current().Value),
			)
			return nil
		}
		return book.Open(model.LegPrimary, bar.Date, bar.Close)
	}
	return nil
}
