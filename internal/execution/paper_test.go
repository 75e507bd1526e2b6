package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swing-backtest/internal/model"
)

func TestPaperFiller_ZeroSlippage(t *testing.T) {
	p := NewPaperFiller("t", 0, nil)
	f := p.Fill(Order{Side: Buy, Price: 100, Leg: model.LegPrimary})
	assert.Equal(t, 100.0, f.FillPrice)
	assert.Zero(t, f.Slippage)
	assert.Equal(t, "t-1", f.OrderID)
}

func TestPaperFiller_SlippageDirection(t *testing.T) {
	p := NewPaperFiller("trend", 10, nil) // 0.10%
	d := model.Date(2024, time.March, 1)

	buy := p.Fill(Order{Date: d, Side: Buy, Price: 200})
	assert.InDelta(t, 200.2, buy.FillPrice, 1e-9)
	assert.Equal(t, d, buy.FilledAt)

	sell := p.Fill(Order{Date: d, Side: Sell, Price: 300})
	assert.InDelta(t, 299.7, sell.FillPrice, 1e-9)

	fills := p.Fills()
	require.Len(t, fills, 2)
	assert.Equal(t, "trend-2", fills[1].OrderID)
	assert.InDelta(t, 0.5, p.TotalSlippage(), 1e-9)
}

func TestExact(t *testing.T) {
	f := Exact{}.Fill(Order{Side: Sell, Price: 42})
	assert.Equal(t, 42.0, f.FillPrice)
}
