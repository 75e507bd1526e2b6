package strategy

import (
	"gopkg.in/yaml.v3"

	"swing-backtest/internal/indicator"
	"swing-backtest/internal/model"
)

// NameTrendEMA is the registry name of TrendEMA.
const NameTrendEMA = "trend-ema"

// Exit reasons used by TrendEMA.
const (
	ReasonBelowExitFast = "close below exit fast ema"
	ReasonBelowExitSlow = "close below exit slow ema"
)

// TrendEMAParams configures TrendEMA. Entry and exit use separate EMA pairs.
type TrendEMAParams struct {
	Timeframe  model.Timeframe `yaml:"timeframe" validate:"oneof=daily weekly"`
	EntryFast  int             `yaml:"entry_fast" validate:"gte=1"`
	EntrySlow  int             `yaml:"entry_slow" validate:"gtfield=EntryFast"`
	ExitFast   int             `yaml:"exit_fast" validate:"gte=1"`
	ExitSlow   int             `yaml:"exit_slow" validate:"gtfield=ExitFast"`
	StartIndex int             `yaml:"start_index" validate:"gte=0"`

	MaxLossPct float64 `yaml:"max_loss_pct" validate:"gt=0"`

	// CoolingBars blocks new entries for this many bars after a stop loss.
	CoolingBars int `yaml:"cooling_bars" validate:"gte=0"`
}

// DefaultTrendEMAParams returns 5/10 entry, 20/200 exit for daily bars and
// 2/4 entry, 4/40 exit for weekly bars.
func DefaultTrendEMAParams(tf model.Timeframe) TrendEMAParams {
	if tf == model.Weekly {
		return TrendEMAParams{Timeframe: tf, EntryFast: 2, EntrySlow: 4, ExitFast: 4, ExitSlow: 40, StartIndex: 40, MaxLossPct: 5}
	}
	return TrendEMAParams{Timeframe: model.Daily, EntryFast: 5, EntrySlow: 10, ExitFast: 20, ExitSlow: 200, StartIndex: 200, MaxLossPct: 5}
}

// TrendEMA enters when the whole bar clears a rising fast EMA and exits on
// whichever exit EMA is appropriate for the current trend, with a hard
// stop that takes priority.
type TrendEMA struct {
	p                    TrendEMAParams
	entryFast, entrySlow *indicator.EMA
	exitFast, exitSlow   *indicator.EMA

	idx       int
	prevClose float64
	prevFast  indicator.Reading
	coolUntil int
}

// NewTrendEMA creates the strategy.
func NewTrendEMA(p TrendEMAParams) *TrendEMA {
	return &TrendEMA{
		p:         p,
		entryFast: indicator.NewEMA(p.EntryFast),
		entrySlow: indicator.NewEMA(p.EntrySlow),
		exitFast:  indicator.NewEMA(p.ExitFast),
		exitSlow:  indicator.NewEMA(p.ExitSlow),
	}
}

func newTrendEMAFromYAML(params *yaml.Node) (Strategy, error) {
	tf, err := paramsTimeframe(params, model.Daily)
	if err != nil {
		return nil, err
	}
	p := DefaultTrendEMAParams(tf)
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return NewTrendEMA(p), nil
}

func (s *TrendEMA) Name() string               { return NameTrendEMA }
func (s *TrendEMA) Timeframe() model.Timeframe { return s.p.Timeframe }

func (s *TrendEMA) OnBar(bar model.Bar, book *Book) error {
	i := s.idx
	s.idx++
	yclose, yfast := s.prevClose, s.prevFast

	fast := s.entryFast.Push(bar.Close)
	slow := s.entrySlow.Push(bar.Close)
	xfast := s.exitFast.Push(bar.Close)
	xslow := s.exitSlow.Push(bar.Close)
	s.prevClose, s.prevFast = bar.Close, fast

	if i < s.p.StartIndex || i == 0 || !fast.Ready || !slow.Ready || !xfast.Ready || !xslow.Ready {
		return nil
	}

	if pos, ok := book.Position(model.LegPrimary); ok {
		switch {
		case pos.ProfitPct(bar.Close) <= -s.p.MaxLossPct:
			s.coolUntil = i + s.p.CoolingBars
			return book.Close(model.LegPrimary, bar.Date, bar.Close, ReasonStopLoss)
		case xfast.Value < xslow.Value:
			if bar.Close < xfast.Value {
				return book.Close(model.LegPrimary, bar.Date, bar.Close, ReasonBelowExitFast)
			}
		default:
			if bar.Close < xslow.Value {
				return book.Close(model.LegPrimary, bar.Date, bar.Close, ReasonBelowExitSlow)
			}
		}
		return nil
	}

	if i < s.coolUntil || !yfast.Ready {
		return nil
	}
	if bar.Low > fast.Value && fast.Value > slow.Value && yclose > yfast.Value {
		return book.Open(model.LegPrimary, bar.Date, bar.Close)
	}
	return nil
}
