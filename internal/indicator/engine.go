package indicator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"swing-backtest/internal/model"
)

// IndicatorConfig specifies a single indicator to compute.
type IndicatorConfig struct {
	Type   string // "SMA", "EMA", "SMMA", "RSI", "ATR", "ADX"
	Period int
}

// Label returns "TYPE_PERIOD", e.g. "EMA_21".
func (c IndicatorConfig) Label() string {
	return c.Type + "_" + strconv.Itoa(c.Period)
}

// Result holds one computed indicator value for one bar.
type Result struct {
	Name  string    `json:"name"` // e.g. "EMA_9", "RSI_14", "PDI_14"
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
	Ready bool      `json:"ready"`
}

// ParseSpecs parses a comma separated list such as "EMA:5,RSI:14,ADX:14".
func ParseSpecs(s string) ([]IndicatorConfig, error) {
	var out []IndicatorConfig
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		typ, period, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("indicator spec %q: want TYPE:PERIOD", part)
		}
		typ = strings.ToUpper(strings.TrimSpace(typ))
		n, err := strconv.Atoi(strings.TrimSpace(period))
		if err != nil {
			return nil, fmt.Errorf("indicator spec %q: bad period: %w", part, err)
		}
		if n < 1 {
			return nil, fmt.Errorf("indicator spec %q: period must be >= 1", part)
		}
		switch typ {
		case "SMA", "EMA", "SMMA", "RSI", "ATR", "ADX":
		default:
			return nil, fmt.Errorf("indicator spec %q: unknown type %q", part, typ)
		}
		out = append(out, IndicatorConfig{Type: typ, Period: n})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("indicator spec %q: no indicators", s)
	}
	return out, nil
}

// Engine computes a fixed set of indicators over one bar series.
// Designed for single-goroutine usage — no locks needed.
type Engine struct {
	configs    []IndicatorConfig
	indicators []Indicator
}

// NewEngine creates an indicator engine. Configs must already be valid
// (see ParseSpecs).
func NewEngine(configs []IndicatorConfig) *Engine {
	inds := make([]Indicator, len(configs))
	for i, ic := range configs {
		inds[i] = newIndicator(ic)
	}
	return &Engine{configs: configs, indicators: inds}
}

// Columns returns the result names Process emits, in order.
func (e *Engine) Columns() []string {
	var cols []string
	for _, cfg := range e.configs {
		if cfg.Type == "ADX" {
			p := strconv.Itoa(cfg.Period)
			cols = append(cols, cfg.Label(), "PDI_"+p, "MDI_"+p)
			continue
		}
		cols = append(cols, cfg.Label())
	}
	return cols
}

// Process feeds one bar to every indicator and returns their values.
// ADX contributes three results: ADX, +DI (PDI) and -DI (MDI).
func (e *Engine) Process(bar model.Bar) []Result {
	results := make([]Result, 0, len(e.indicators)+2)
	for i, ind := range e.indicators {
		ind.Update(bar)
		cfg := e.configs[i]
		if adx, ok := ind.(*ADX); ok {
			d := adx.Directional()
			p := strconv.Itoa(cfg.Period)
			results = append(results,
				result(cfg.Label(), bar.Date, d.ADX),
				result("PDI_"+p, bar.Date, d.PlusDI),
				result("MDI_"+p, bar.Date, d.MinusDI),
			)
			continue
		}
		results = append(results, result(cfg.Label(), bar.Date, ind.Current()))
	}
	return results
}

// Run processes bars in order, handing each bar's results to emit.
// It stops at the first emit error or when ctx is cancelled.
func (e *Engine) Run(ctx context.Context, bars []model.Bar, emit func(model.Bar, []Result) error) error {
	for _, bar := range bars {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(bar, e.Process(bar)); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears every indicator.
func (e *Engine) Reset() {
	for _, ind := range e.indicators {
		ind.Reset()
	}
}

func result(name string, date time.Time, r Reading) Result {
	return Result{Name: name, Date: date, Value: r.Value, Ready: r.Ready}
}

func newIndicator(ic IndicatorConfig) Indicator {
	switch ic.Type {
	case "EMA":
		return NewEMA(ic.Period)
	case "SMMA":
		return NewSMMA(ic.Period)
	case "RSI":
		return NewRSI(ic.Period)
	case "ATR":
		return NewATR(ic.Period)
	case "ADX":
		return NewADX(ic.Period)
	default:
		return NewSMA(ic.Period) // fallback
	}
}
