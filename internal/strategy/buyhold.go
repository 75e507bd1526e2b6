package strategy

import (
	"gopkg.in/yaml.v3"

	"swing-backtest/internal/model"
)

// NameBuyAndHold is the registry name of BuyAndHold.
const NameBuyAndHold = "buy-and-hold"

// BuyAndHoldParams configures BuyAndHold.
type BuyAndHoldParams struct {
	Timeframe model.Timeframe `yaml:"timeframe" validate:"oneof=daily weekly"`
}

// BuyAndHold buys the first bar's close. Run closes it on the last bar.
type BuyAndHold struct {
	p BuyAndHoldParams
}

// NewBuyAndHold creates the benchmark strategy.
func NewBuyAndHold(p BuyAndHoldParams) *BuyAndHold { return &BuyAndHold{p: p} }

func newBuyAndHoldFromYAML(params *yaml.Node) (Strategy, error) {
	p := BuyAndHoldParams{Timeframe: model.Daily}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return NewBuyAndHold(p), nil
}

func (s *BuyAndHold) Name() string               { return NameBuyAndHold }
func (s *BuyAndHold) Timeframe() model.Timeframe { return s.p.Timeframe }

func (s *BuyAndHold) OnBar(bar model.Bar, book *Book) error {
	if book.State() == Flat && len(book.trades) == 0 {
		return book.Open(model.LegPrimary, bar.Date, bar.Close)
	}
	return nil
}
