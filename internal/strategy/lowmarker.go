package strategy

import (
	"log/slog"

	"gopkg.in/yaml.v3"

	"swing-backtest/internal/indicator"
	"swing-backtest/internal/model"
	"swing-backtest/internal/tracker"
)

// NameLowMarker is the registry name of LowMarker.
const NameLowMarker = "low-marker"

// Exit reasons used by LowMarker.
const (
	ReasonMaxLoss   = "max loss"
	ReasonLowMarker = "close below low marker"
)

// LowMarkerParams configures LowMarker.
type LowMarkerParams struct {
	Fast       int `yaml:"fast" validate:"gte=1"`
	Slow       int `yaml:"slow" validate:"gtfield=Fast"`
	Lookback   int `yaml:"lookback" validate:"gte=1"`
	Monthly    int `yaml:"monthly" validate:"gte=1"`
	CrossBars  int `yaml:"cross_bars" validate:"gte=1"`
	MarkerBars int `yaml:"marker_bars" validate:"gte=1"`
	StartIndex int `yaml:"start_index" validate:"gte=0"`

	MaxLossPct float64 `yaml:"max_loss_pct" validate:"gt=0"`

	// RequireBreakout adds close >= lookback high to the entry rule.
	RequireBreakout bool `yaml:"require_breakout"`
}

// DefaultLowMarkerParams returns the 5/10 EMA daily defaults.
func DefaultLowMarkerParams() LowMarkerParams {
	return LowMarkerParams{
		Fast:            5,
		Slow:            10,
		Lookback:        10,
		Monthly:         20,
		CrossBars:       10,
		MarkerBars:      2,
		StartIndex:      10,
		MaxLossPct:      5,
		RequireBreakout: true,
	}
}

// LowMarker buys a fresh lookback-high close above a rising 5/10 EMA pair.
// A close under the slow EMA sets a low marker; closing below the marker
// within MarkerBars bars exits, as does a loss beyond MaxLossPct.
type LowMarker struct {
	p          LowMarkerParams
	fast, slow *indicator.EMA
	lookback   *tracker.HighLow
	monthly    *tracker.HighLow

	// Counts of fresh dips of the low under each EMA over CrossBars bars.
	fastCross, slowCross *tracker.Lookback
	belowFast, belowSlow bool

	idx       int
	prevClose float64

	marker    float64
	markerIdx int
	hasMarker bool
}

// NewLowMarker creates the strategy.
func NewLowMarker(p LowMarkerParams) *LowMarker {
	return &LowMarker{
		p:         p,
		fast:      indicator.NewEMA(p.Fast),
		slow:      indicator.NewEMA(p.Slow),
		lookback:  tracker.NewHighLow(p.Lookback),
		monthly:   tracker.NewHighLow(p.Monthly),
		fastCross: tracker.NewLookback(p.CrossBars),
		slowCross: tracker.NewLookback(p.CrossBars),
	}
}

func newLowMarkerFromYAML(params *yaml.Node) (Strategy, error) {
	p := DefaultLowMarkerParams()
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return NewLowMarker(p), nil
}

func (s *LowMarker) Name() string               { return NameLowMarker }
func (s *LowMarker) Timeframe() model.Timeframe { return model.Daily }

// Crosses returns the current fast and slow EMA cross counts.
func (s *LowMarker) Crosses() (fast, slow int) {
	return s.fastCross.CountTrue(), s.slowCross.CountTrue()
}

func (s *LowMarker) OnBar(bar model.Bar, book *Book) error {
	i := s.idx
	s.idx++
	yclose := s.prevClose
	s.prevClose = bar.Close

	fast := s.fast.Push(bar.Close)
	slow := s.slow.Push(bar.Close)
	_, high := s.lookback.Push(bar.Close)
	_, monthHigh := s.monthly.Push(bar.Close)

	if i < s.p.StartIndex || i == 0 || !fast.Ready || !slow.Ready || !high.Ready || !monthHigh.Ready {
		return nil
	}

	s.fastCross.Push(s.dipped(bar.Low, fast.Value, &s.belowFast))
	s.slowCross.Push(s.dipped(bar.Low, slow.Value, &s.belowSlow))

	if pos, ok := book.Position(model.LegPrimary); ok {
		if reason, exit := s.exitSignal(i, bar.Close, pos, slow.Value); exit {
			return book.Close(model.LegPrimary, bar.Date, bar.Close, reason)
		}
		return nil
	}

	if bar.Low > fast.Value && fast.Value > slow.Value && yclose > fast.Value &&
		(!s.p.RequireBreakout || bar.Close >= high.Value) {
		if err := book.Open(model.LegPrimary, bar.Date, bar.Close); err != nil {
			return err
		}
		s.hasMarker = false
		fc, sc := s.Crosses()
		book.Log().Debug("entry crosses",
			slog.Int("fast_crosses", fc),
			slog.Int("slow_crosses", sc),
			slog.Float64("monthly_high", monthHigh.Value),
		)
	}
	return nil
}

// dipped reports whether low has just moved under ma after being above it.
func (s *LowMarker) dipped(low, ma float64, below *bool) bool {
	if low < ma {
		fresh := !*below
		*below = true
		return fresh
	}
	*below = false
	return false
}

func (s *LowMarker) exitSignal(i int, price float64, pos Position, slow float64) (string, bool) {
	if price >= slow {
		s.hasMarker = false
		return "", false
	}
	if pos.ProfitPct(price) < -s.p.MaxLossPct {
		return ReasonMaxLoss, true
	}
	if !s.hasMarker {
		s.marker, s.markerIdx, s.hasMarker = price, i, true
		return "", false
	}
	if price < s.marker {
		return ReasonLowMarker, true
	}
	if i-s.markerIdx >= s.p.MarkerBars {
		s.hasMarker = false
	}
	return "", false
}
