package strategy

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"swing-backtest/internal/execution"
	"swing-backtest/internal/model"
)

// Book misuse errors. They indicate a strategy bug, not a market condition.
var (
	ErrLegOpen    = errors.New("leg already open")
	ErrLegFlat    = errors.New("leg not open")
	ErrNoPrimary  = errors.New("scaled leg needs an open primary leg")
	ErrScaledOpen = errors.New("scaled leg still open")
	ErrUnknownLeg = errors.New("unknown leg")
)

// Exit reasons shared by strategies.
const (
	ReasonStopLoss    = "stop loss"
	ReasonEndOfSeries = "end of series"
)

// State is the position state of a Book.
type State int

const (
	Flat     State = iota // no open position
	Long                  // primary (test) leg open
	ScaledIn              // primary and scaled legs open
)

func (s State) String() string {
	switch s {
	case Flat:
		return "flat"
	case Long:
		return "long"
	case ScaledIn:
		return "scaled-in"
	}
	return "unknown"
}

// Position is an open leg.
type Position struct {
	Leg        model.Leg `json:"leg"`
	EntryDate  time.Time `json:"entry_date"`
	EntryPrice float64   `json:"entry_price"`
}

// ProfitPct returns the unrealised return at price, in percent.
func (p Position) ProfitPct(price float64) float64 {
	return (price - p.EntryPrice) / p.EntryPrice * 100
}

// Book is a strategy's position state machine: Flat → Long → (ScaledIn) →
// Flat. It holds at most one primary and one scaled position and appends a
// Trade for every closed leg. Prices pass through a Filler before they are
// recorded.
type Book struct {
	filler execution.Filler
	log    *slog.Logger

	primary *Position
	scaled  *Position
	trades  []model.Trade
}

// NewBook creates an empty book. A nil filler fills at the requested price;
// a nil logger uses slog.Default().
func NewBook(filler execution.Filler, logger *slog.Logger) *Book {
	if filler == nil {
		filler = execution.Exact{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Book{filler: filler, log: logger}
}

// Log returns the book's logger for strategy diagnostics.
func (b *Book) Log() *slog.Logger { return b.log }

func (b *Book) slot(leg model.Leg) (**Position, error) {
	switch leg {
	case model.LegPrimary:
		return &b.primary, nil
	case model.LegScaled:
		return &b.scaled, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownLeg, leg)
}

// Open enters leg at price on date.
func (b *Book) Open(leg model.Leg, date time.Time, price float64) error {
	slot, err := b.slot(leg)
	if err != nil {
		return err
	}
	if *slot != nil {
		return fmt.Errorf("open %s on %s: %w", leg, date.Format(time.DateOnly), ErrLegOpen)
	}
	if leg == model.LegScaled && b.primary == nil {
		return fmt.Errorf("open %s on %s: %w", leg, date.Format(time.DateOnly), ErrNoPrimary)
	}

	fill := b.filler.Fill(execution.Order{Date: date, Side: execution.Buy, Leg: leg, Price: price})
	*slot = &Position{Leg: leg, EntryDate: date, EntryPrice: fill.FillPrice}

	b.log.Debug("enter",
		slog.String("leg", string(leg)),
		slog.String("date", date.Format(time.DateOnly)),
		slog.Float64("price", fill.FillPrice),
	)
	return nil
}

// Close exits leg at price on date and records the trade. The primary leg
// cannot be closed while the scaled leg is still open; use CloseAll.
func (b *Book) Close(leg model.Leg, date time.Time, price float64, reason string) error {
	slot, err := b.slot(leg)
	if err != nil {
		return err
	}
	if *slot == nil {
		return fmt.Errorf("close %s on %s: %w", leg, date.Format(time.DateOnly), ErrLegFlat)
	}
	if leg == model.LegPrimary && b.scaled != nil {
		return fmt.Errorf("close %s on %s: %w", leg, date.Format(time.DateOnly), ErrScaledOpen)
	}

	pos := *slot
	fill := b.filler.Fill(execution.Order{Date: date, Side: execution.Sell, Leg: leg, Price: price, Reason: reason})
	t := model.Trade{
		EntryDate:  pos.EntryDate,
		EntryPrice: pos.EntryPrice,
		ExitDate:   date,
		ExitPrice:  fill.FillPrice,
		Leg:        leg,
		Reason:     reason,
	}
	b.trades = append(b.trades, t)
	*slot = nil

	b.log.Debug("exit",
		slog.String("leg", string(leg)),
		slog.String("date", date.Format(time.DateOnly)),
		slog.Float64("price", fill.FillPrice),
		slog.Float64("profit_pct", t.ProfitPct()),
		slog.Int("holding_days", t.HoldingDays()),
		slog.String("reason", reason),
	)
	return nil
}

// CloseAll exits every open leg (primary first) at the same price.
// It is a no-op on a flat book.
func (b *Book) CloseAll(date time.Time, price float64, reason string) error {
	open := make([]*Position, 0, 2)
	if b.primary != nil {
		open = append(open, b.primary)
	}
	if b.scaled != nil {
		open = append(open, b.scaled)
	}
	for _, pos := range open {
		fill := b.filler.Fill(execution.Order{Date: date, Side: execution.Sell, Leg: pos.Leg, Price: price, Reason: reason})
		t := model.Trade{
			EntryDate:  pos.EntryDate,
			EntryPrice: pos.EntryPrice,
			ExitDate:   date,
			ExitPrice:  fill.FillPrice,
			Leg:        pos.Leg,
			Reason:     reason,
		}
		b.trades = append(b.trades, t)
		b.log.Debug("exit",
			slog.String("leg", string(pos.Leg)),
			slog.String("date", date.Format(time.DateOnly)),
			slog.Float64("price", fill.FillPrice),
			slog.Float64("profit_pct", t.ProfitPct()),
			slog.String("reason", reason),
		)
	}
	b.primary, b.scaled = nil, nil
	return nil
}

// Position returns the open position for leg.
func (b *Book) Position(leg model.Leg) (Position, bool) {
	slot, err := b.slot(leg)
	if err != nil || *slot == nil {
		return Position{}, false
	}
	return **slot, true
}

// State returns the current position state.
func (b *Book) State() State {
	switch {
	case b.scaled != nil:
		return ScaledIn
	case b.primary != nil:
		return Long
	}
	return Flat
}

// Trades returns all closed trades in the order they were closed.
func (b *Book) Trades() []model.Trade {
	cp := make([]model.Trade, len(b.trades))
	copy(cp, b.trades)
	return cp
}

// LegTrades returns the closed trades of one leg.
func (b *Book) LegTrades(leg model.Leg) []model.Trade {
	var out []model.Trade
	for _, t := range b.trades {
		if t.Leg == leg {
			out = append(out, t)
		}
	}
	return out
}
