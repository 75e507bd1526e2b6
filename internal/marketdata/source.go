package marketdata

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"swing-backtest/internal/model"
)

// Source supplies the daily series of a symbol.
type Source interface {
	Bars(ctx context.Context, symbol string) ([]model.Bar, error)
}

// FileSource reads one export file. The symbol is informational; the file
// format is chosen by extension (.xlsx or anything else as CSV).
type FileSource struct {
	Path string
}

// Bars implements Source.
func (s FileSource) Bars(ctx context.Context, _ string) ([]model.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(s.Path), ".xlsx") {
		return LoadXLSX(s.Path)
	}
	return LoadCSV(s.Path)
}

// StoreSource reads from a bar store such as the SQLite bars table.
type StoreSource struct {
	Reader model.BarReader
}

// Bars implements Source.
func (s StoreSource) Bars(ctx context.Context, symbol string) ([]model.Bar, error) {
	bars, err := s.Reader.ReadBars(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", symbol, err)
	}
	bars, err = finish(bars)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}
	return bars, nil
}

// Series holds the daily series of a symbol and its weekly resample.
type Series struct {
	Symbol string
	Daily  []model.Bar
	Weekly []model.Bar
}

// Load fetches symbol from src and builds the weekly series once.
func Load(ctx context.Context, src Source, symbol string) (Series, error) {
	daily, err := src.Bars(ctx, symbol)
	if err != nil {
		return Series{}, err
	}
	return Series{Symbol: symbol, Daily: daily, Weekly: Weekly(daily)}, nil
}

// For returns the series for tf.
func (s Series) For(tf model.Timeframe) []model.Bar {
	if tf == model.Weekly {
		return s.Weekly
	}
	return s.Daily
}
