package strategy

import (
	"gopkg.in/yaml.v3"

	"swing-backtest/internal/indicator"
	"swing-backtest/internal/model"
)

// NameScaledTrend is the registry name of ScaledTrend.
const NameScaledTrend = "scaled-trend"

// ScaledTrendParams configures ScaledTrend.
type ScaledTrendParams struct {
	Timeframe model.Timeframe `yaml:"timeframe" validate:"oneof=daily weekly"`
	Fast      int             `yaml:"fast" validate:"gte=1"`
	Slow      int             `yaml:"slow" validate:"gtfield=Fast"`

	// Guard, when non-zero, is an extra EMA that must be warmed up before
	// any rule fires. It takes no part in the rules themselves.
	Guard      int `yaml:"guard" validate:"gte=0"`
	StartIndex int `yaml:"start_index" validate:"gte=0"`

	// Strict requires close > fast > slow instead of close >= fast >= slow.
	Strict     bool    `yaml:"strict"`
	ScaleAtPct float64 `yaml:"scale_at_pct" validate:"gt=0"`
	TestShare  float64 `yaml:"test_share" validate:"gt=0,lt=1"`
}

// DefaultScaledTrendParams returns 10/200 (guard 150) for daily and a
// strict 2/40 for weekly bars.
func DefaultScaledTrendParams(tf model.Timeframe) ScaledTrendParams {
	if tf == model.Weekly {
		return ScaledTrendParams{Timeframe: tf, Fast: 2, Slow: 40, StartIndex: 40, Strict: true, ScaleAtPct: 10, TestShare: 0.10}
	}
	return ScaledTrendParams{Timeframe: model.Daily, Fast: 10, Slow: 200, Guard: 150, StartIndex: 200, ScaleAtPct: 10, TestShare: 0.10}
}

// ScaledTrend opens a small test position in an uptrend and adds the
// scaled position once the test trade is up ScaleAtPct. Both legs are
// closed when the close falls below the slow EMA.
type ScaledTrend struct {
	p     ScaledTrendParams
	fast  *indicator.EMA
	slow  *indicator.EMA
	guard *indicator.EMA
	idx   int
}

// NewScaledTrend creates the strategy.
func NewScaledTrend(p ScaledTrendParams) *ScaledTrend {
	s := &ScaledTrend{
		p:    p,
		fast: indicator.NewEMA(p.Fast),
		slow: indicator.NewEMA(p.Slow),
	}
	if p.Guard > 0 {
		s.guard = indicator.NewEMA(p.Guard)
	}
	return s
}

func newScaledTrendFromYAML(params *yaml.Node) (Strategy, error) {
	tf, err := paramsTimeframe(params, model.Daily)
	if err != nil {
		return nil, err
	}
	p := DefaultScaledTrendParams(tf)
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return NewScaledTrend(p), nil
}

func (s *ScaledTrend) Name() string               { return NameScaledTrend }
func (s *ScaledTrend) Timeframe() model.Timeframe { return s.p.Timeframe }

// Allocation implements Allocator.
func (s *ScaledTrend) Allocation() map[model.Leg]float64 {
	return map[model.Leg]float64{model.LegPrimary: s.p.TestShare, model.LegScaled: 1 - s.p.TestShare}
}

func (s *ScaledTrend) OnBar(bar model.Bar, book *Book) error {
	i := s.idx
	s.idx++

	fast := s.fast.Push(bar.Close)
	slow := s.slow.Push(bar.Close)
	guardReady := true
	if s.guard != nil {
		guardReady = s.guard.Push(bar.Close).Ready
	}
	if i < s.p.StartIndex || !fast.Ready || !slow.Ready || !guardReady {
		return nil
	}

	if book.State() != Flat && bar.Close < slow.Value {
		return book.CloseAll(bar.Date, bar.Close, ReasonBelowSlow)
	}

	switch book.State() {
	case Flat:
		var enter bool
		if s.p.Strict {
			enter = bar.Close > fast.Value && fast.Value > slow.Value
		} else {
			enter = bar.Close >= fast.Value && fast.Value >= slow.Value
		}
		if enter {
			return book.Open(model.LegPrimary, bar.Date, bar.Close)
		}
	case Long:
		pos, _ := book.Position(model.LegPrimary)
		if pos.ProfitPct(bar.Close) >= s.p.ScaleAtPct {
			return book.Open(model.LegScaled, bar.Date, bar.Close)
		}
	}
	return nil
}
