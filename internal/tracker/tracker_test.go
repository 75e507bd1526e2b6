package tracker

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHighLow_EmptyIsUnavailable(t *testing.T) {
	h := NewHighLow(3)
	lo, hi := h.Current()
	assert.False(t, lo.Ready)
	assert.False(t, hi.Ready)
}

func TestHighLow_SlidingWindow(t *testing.T) {
	h := NewHighLow(3)
	var lo, hi float64
	for _, p := range []float64{100, 105, 98, 102} {
		l, u := h.Push(p)
		require.True(t, l.Ready)
		require.True(t, u.Ready)
		lo, hi = l.Value, u.Value
	}
	// window is [105, 98, 102]
	assert.Equal(t, 98.0, lo)
	assert.Equal(t, 105.0, hi)

	// window becomes [98, 102, 97]
	l, u := h.Push(97)
	assert.Equal(t, 97.0, l.Value)
	assert.Equal(t, 102.0, u.Value)
	assert.Equal(t, 102.0, h.High().Value)
	assert.Equal(t, 97.0, h.Low().Value)

	h.Reset()
	assert.False(t, h.High().Ready)
}

func TestHighLow_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const n = 20
	h := NewHighLow(n)
	var all []float64
	for i := 0; i < 500; i++ {
		p := 100 + rng.Float64()*50
		all = append(all, p)
		lo, hi := h.Push(p)

		start := len(all) - n
		if start < 0 {
			start = 0
		}
		wantLo, wantHi := all[start], all[start]
		for _, v := range all[start:] {
			wantLo = min(wantLo, v)
			wantHi = max(wantHi, v)
		}
		require.Equal(t, wantLo, lo.Value, "push %d", i)
		require.Equal(t, wantHi, hi.Value, "push %d", i)
	}
}

func TestLookback_CountsAfterEviction(t *testing.T) {
	l := NewLookback(3)
	l.Push(true)
	l.Push(true)
	l.Push(false)
	assert.Equal(t, 2, l.CountTrue())
	assert.Equal(t, 1, l.CountFalse())

	l.Push(false) // evicts true
	assert.Equal(t, 1, l.CountTrue())
	assert.Equal(t, 2, l.CountFalse())

	l.Push(false) // evicts true
	l.Push(true)  // evicts false
	assert.Equal(t, 1, l.CountTrue())
	assert.Equal(t, 2, l.CountFalse())
	assert.Equal(t, 3, l.Period())
}

func TestLookback_SumIsMinOfPushesAndPeriod(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	l := NewLookback(10)
	for i := 1; i <= 50; i++ {
		l.Push(rng.Intn(2) == 1)
		assert.Equal(t, min(i, 10), l.CountTrue()+l.CountFalse(), "push %d", i)
	}
	l.Reset()
	assert.Zero(t, l.CountTrue())
	assert.Zero(t, l.Len())
}
