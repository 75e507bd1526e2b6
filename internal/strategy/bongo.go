package strategy

import (
	"gopkg.in/yaml.v3"

	"swing-backtest/internal/indicator"
	"swing-backtest/internal/model"
)

// NameBongo is the registry name of Bongo.
const NameBongo = "bongo"

// ReasonRedSignal is the exit reason for a Bongo red bar.
const ReasonRedSignal = "red signal"

// BongoParams configures Bongo. RSI periods must increase.
type BongoParams struct {
	Timeframe model.Timeframe `yaml:"timeframe" validate:"oneof=daily weekly"`
	RSIFast   int             `yaml:"rsi_fast" validate:"gte=1"`
	RSIMid    int             `yaml:"rsi_mid" validate:"gtfield=RSIFast"`
	RSISlow   int             `yaml:"rsi_slow" validate:"gtfield=RSIMid"`
	EMA       int             `yaml:"ema" validate:"gte=1"`
}

// DefaultBongoParams returns RSI 8/14/19 with EMA 9 on weekly bars.
func DefaultBongoParams() BongoParams {
	return BongoParams{Timeframe: model.Weekly, RSIFast: 8, RSIMid: 14, RSISlow: 19, EMA: 9}
}

// Bongo goes long on a "blue" bar (RSIs stacked fast > mid > slow and close
// above the EMA) and exits on a "red" bar (stacked the other way and close
// below the EMA).
type Bongo struct {
	p                        BongoParams
	rsiFast, rsiMid, rsiSlow *indicator.RSI
	ema                      *indicator.EMA
}

// NewBongo creates the strategy.
func NewBongo(p BongoParams) *Bongo {
	return &Bongo{
		p:       p,
		rsiFast: indicator.NewRSI(p.RSIFast),
		rsiMid:  indicator.NewRSI(p.RSIMid),
		rsiSlow: indicator.NewRSI(p.RSISlow),
		ema:     indicator.NewEMA(p.EMA),
	}
}

func newBongoFromYAML(params *yaml.Node) (Strategy, error) {
	p := DefaultBongoParams()
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return NewBongo(p), nil
}

func (s *Bongo) Name() string               { return NameBongo }
func (s *Bongo) Timeframe() model.Timeframe { return s.p.Timeframe }

func (s *Bongo) OnBar(bar model.Bar, book *Book) error {
	fast := s.rsiFast.Push(bar.Close)
	mid := s.rsiMid.Push(bar.Close)
	slow := s.rsiSlow.Push(bar.Close)
	ema := s.ema.Push(bar.Close)
	if !fast.Ready || !mid.Ready || !slow.Ready || !ema.Ready {
		return nil
	}

	blue := fast.Value > mid.Value && mid.Value > slow.Value && bar.Close > ema.Value
	red := fast.Value < mid.Value && mid.Value < slow.Value && bar.Close < ema.Value

	switch {
	case book.State() == Flat && blue:
		return book.Open(model.LegPrimary, bar.Date, bar.Close)
	case book.State() != Flat && red:
		return book.Close(model.LegPrimary, bar.Date, bar.Close, ReasonRedSignal)
	}
	return nil
}
