package execution

import (
	"fmt"
	"log/slog"
	"sync"
)

// PaperFiller simulates execution with a fixed slippage.
// Buys fill higher and sells fill lower by slippageBps basis points.
type PaperFiller struct {
	mu       sync.RWMutex
	fills    []Fill
	orderSeq int64

	prefix      string
	slippageBps float64 // e.g., 5 = 0.05%
	log         *slog.Logger
}

// NewPaperFiller creates a paper filler. prefix tags generated order IDs
// (typically the strategy name); a nil logger discards fill logs.
func NewPaperFiller(prefix string, slippageBps float64, logger *slog.Logger) *PaperFiller {
	if logger == nil {
		logger = slog.New(discardHandler{})
	}
	return &PaperFiller{
		fills:       make([]Fill, 0, 64),
		prefix:      prefix,
		slippageBps: slippageBps,
		log:         logger,
	}
}

// Fill implements Filler.
func (p *PaperFiller) Fill(o Order) Fill {
	p.mu.Lock()
	p.orderSeq++
	orderID := fmt.Sprintf("%s-%d", p.prefix, p.orderSeq)

	fillPrice := o.Price
	slippage := 0.0
	if fillPrice > 0 && p.slippageBps > 0 {
		slippage = fillPrice * p.slippageBps / 10000
		if o.Side == Buy {
			fillPrice += slippage
		} else {
			fillPrice -= slippage
		}
	}

	fill := Fill{
		OrderID:   orderID,
		Order:     o,
		FillPrice: fillPrice,
		Slippage:  slippage,
		FilledAt:  o.Date,
	}
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	p.log.Debug("paper fill",
		slog.String("order", orderID),
		slog.String("side", string(o.Side)),
		slog.String("leg", string(o.Leg)),
		slog.Float64("price", fillPrice),
		slog.Float64("slippage", slippage),
		slog.String("reason", o.Reason),
	)
	return fill
}

// Fills returns a snapshot of all fills.
func (p *PaperFiller) Fills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// TotalSlippage returns the summed absolute slippage over all fills.
func (p *PaperFiller) TotalSlippage() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := 0.0
	for _, f := range p.fills {
		total += f.Slippage
	}
	return total
}
