package strategy

import (
	"gopkg.in/yaml.v3"

	"swing-backtest/internal/indicator"
	"swing-backtest/internal/model"
)

// NameAdaptiveMA is the registry name of AdaptiveMA.
const NameAdaptiveMA = "adaptive-ma"

// AdaptiveMAParams configures AdaptiveMA. Defaults are EMA 10/20/100.
type AdaptiveMAParams struct {
	Fast       int     `yaml:"fast" validate:"gte=1"`
	Mid        int     `yaml:"mid" validate:"gtfield=Fast"`
	Slow       int     `yaml:"slow" validate:"gtfield=Mid"`
	StartIndex int     `yaml:"start_index" validate:"gte=0"`
	TargetPct  float64 `yaml:"target_pct" validate:"gt=0"`
}

// DefaultAdaptiveMAParams returns the daily defaults.
func DefaultAdaptiveMAParams() AdaptiveMAParams {
	return AdaptiveMAParams{Fast: 10, Mid: 20, Slow: 100, StartIndex: 100, TargetPct: 10}
}

// AdaptiveMA trails with the mid EMA until the trade has gained TargetPct,
// then widens the exit to the slow EMA.
type AdaptiveMA struct {
	p               AdaptiveMAParams
	fast, mid, slow *indicator.EMA
	idx             int
	achieved        bool
}

// NewAdaptiveMA creates the strategy.
func NewAdaptiveMA(p AdaptiveMAParams) *AdaptiveMA {
	return &AdaptiveMA{
		p:    p,
		fast: indicator.NewEMA(p.Fast),
		mid:  indicator.NewEMA(p.Mid),
		slow: indicator.NewEMA(p.Slow),
	}
}

func newAdaptiveMAFromYAML(params *yaml.Node) (Strategy, error) {
	p := DefaultAdaptiveMAParams()
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return NewAdaptiveMA(p), nil
}

func (s *AdaptiveMA) Name() string               { return NameAdaptiveMA }
func (s *AdaptiveMA) Timeframe() model.Timeframe { return model.Daily }

func (s *AdaptiveMA) OnBar(bar model.Bar, book *Book) error {
	i := s.idx
	s.idx++

	fast := s.fast.Push(bar.Close)
	mid := s.mid.Push(bar.Close)
	slow := s.slow.Push(bar.Close)
	if i < s.p.StartIndex || !fast.Ready || !mid.Ready || !slow.Ready {
		return nil
	}

	if pos, ok := book.Position(model.LegPrimary); ok {
		if !s.achieved && pos.ProfitPct(bar.Close) >= s.p.TargetPct {
			s.achieved = true
		}
		if s.achieved {
			if bar.Close < slow.Value {
				return book.Close(model.LegPrimary, bar.Date, bar.Close, ReasonBelowTrend)
			}
		} else if bar.Close < mid.Value {
			return book.Close(model.LegPrimary, bar.Date, bar.Close, ReasonBelowMid)
		}
		return nil
	}

	if bar.Close > fast.Value && fast.Value > mid.Value {
		s.achieved = false
		return book.Open(model.LegPrimary, bar.Date, bar.Close)
	}
	return nil
}
