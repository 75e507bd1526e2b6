// Package execution turns strategy decisions into fills.
//
// Backtests never talk to a broker; a Filler decides the price an order is
// filled at. PaperFiller applies a fixed slippage in basis points and keeps
// a record of every fill for the run report.
package execution

import (
	"time"

	"swing-backtest/internal/model"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Order is a request to enter or exit one position leg at a reference price
// (a bar close or a stop level).
type Order struct {
	Date   time.Time `json:"date"`
	Side   Side      `json:"side"`
	Leg    model.Leg `json:"leg"`
	Price  float64   `json:"price"`
	Reason string    `json:"reason,omitempty"`
}

// Fill is the simulated execution of an Order.
type Fill struct {
	OrderID   string    `json:"order_id"`
	Order     Order     `json:"order"`
	FillPrice float64   `json:"fill_price"`
	Slippage  float64   `json:"slippage"` // absolute price difference
	FilledAt  time.Time `json:"filled_at"`
}

// Filler fills orders. Implementations used by a single strategy run need
// not be safe for concurrent use.
type Filler interface {
	Fill(o Order) Fill
}

// Exact fills every order at its reference price.
type Exact struct{}

// Fill implements Filler.
func (Exact) Fill(o Order) Fill {
	return Fill{Order: o, FillPrice: o.Price, FilledAt: o.Date}
}
