package strategy

import (
	"gopkg.in/yaml.v3"

	"swing-backtest/internal/indicator"
	"swing-backtest/internal/model"
)

// NameScaledMA is the registry name of ScaledMA.
const NameScaledMA = "scaled-ma"

// Exit reasons used by ScaledMA.
const (
	ReasonBelowMid      = "close below mid ema"
	ReasonBelowTrend    = "close below trend ema"
	ReasonScaledStopHit = "scaled stop loss"
)

// ScaledMAParams configures ScaledMA. Defaults are EMA 5/20/150.
type ScaledMAParams struct {
	Fast       int `yaml:"fast" validate:"gte=1"`
	Mid        int `yaml:"mid" validate:"gtfield=Fast"`
	Slow       int `yaml:"slow" validate:"gtfield=Mid"`
	StartIndex int `yaml:"start_index" validate:"gte=0"`

	ScaleAtPct float64 `yaml:"scale_at_pct" validate:"gt=0"`
	MaxLossPct float64 `yaml:"max_loss_pct" validate:"gt=0"`
	TestShare  float64 `yaml:"test_share" validate:"gt=0,lt=1"`
}

// DefaultScaledMAParams returns the daily defaults.
func DefaultScaledMAParams() ScaledMAParams {
	return ScaledMAParams{Fast: 5, Mid: 20, Slow: 150, StartIndex: 150, ScaleAtPct: 5, MaxLossPct: 5, TestShare: 0.10}
}

// ScaledMA runs a test trade on a short-term uptrend, scales in once it is
// up ScaleAtPct and exits both legs together.
type ScaledMA struct {
	p               ScaledMAParams
	fast, mid, slow *indicator.EMA
	idx             int
}

// NewScaledMA creates the strategy.
func NewScaledMA(p ScaledMAParams) *ScaledMA {
	return &ScaledMA{
		p:    p,
		fast: indicator.NewEMA(p.Fast),
		mid:  indicator.NewEMA(p.Mid),
		slow: indicator.NewEMA(p.Slow),
	}
}

func newScaledMAFromYAML(params *yaml.Node) (Strategy, error) {
	p := DefaultScaledMAParams()
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return NewScaledMA(p), nil
}

func (s *ScaledMA) Name() string               { return NameScaledMA }
func (s *ScaledMA) Timeframe() model.Timeframe { return model.Daily }

// Allocation implements Allocator.
func (s *ScaledMA) Allocation() map[model.Leg]float64 {
	return map[model.Leg]float64{model.LegPrimary: s.p.TestShare, model.LegScaled: 1 - s.p.TestShare}
}

func (s *ScaledMA) OnBar(bar model.Bar, book *Book) error {
	i := s.idx
	s.idx++

	fast := s.fast.Push(bar.Close)
	mid := s.mid.Push(bar.Close)
	slow := s.slow.Push(bar.Close)
	if i < s.p.StartIndex || !fast.Ready || !mid.Ready || !slow.Ready {
		return nil
	}

	var reason string
	switch book.State() {
	case Long:
		if bar.Close < mid.Value {
			reason = ReasonBelowMid
		} else if bar.Close < slow.Value {
			reason = ReasonBelowTrend
		}
	case ScaledIn:
		scaled, _ := book.Position(model.LegScaled)
		if bar.Close < slow.Value {
			reason = ReasonBelowTrend
		} else if scaled.ProfitPct(bar.Close) <= -s.p.MaxLossPct {
			reason = ReasonScaledStopHit
		}
	}
	if reason != "" {
		return book.CloseAll(bar.Date, bar.Close, reason)
	}

	if book.State() == Long {
		pos, _ := book.Position(model.LegPrimary)
		if pos.ProfitPct(bar.Close) >= s.p.ScaleAtPct {
			if err := book.Open(model.LegScaled, bar.Date, bar.Close); err != nil {
				return err
			}
		}
	}
	if book.State() == Flat && bar.Close > fast.Value && fast.Value > mid.Value {
		return book.Open(model.LegPrimary, bar.Date, bar.Close)
	}
	return nil
}
