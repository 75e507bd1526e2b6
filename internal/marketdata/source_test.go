package marketdata

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"swing-backtest/internal/model"
)

type memReader map[string][]model.Bar

func (m memReader) ReadBars(_ context.Context, symbol string) ([]model.Bar, error) {
	bars, ok := m[symbol]
	if !ok {
		return nil, errors.New("not found")
	}
	return bars, nil
}

func TestStoreSource(t *testing.T) {
	r := memReader{"NIFTY": {
		daily(model.Date(2024, time.January, 3), 1, 1, 1, 1, 0),
		daily(model.Date(2024, time.January, 2), 1, 1, 1, 1, 0),
	}}
	bars, err := StoreSource{Reader: r}.Bars(context.Background(), "NIFTY")
	require.NoError(t, err)
	assert.Equal(t, model.Date(2024, time.January, 2), bars[0].Date)

	_, err = StoreSource{Reader: r}.Bars(context.Background(), "BANK")
	assert.ErrorContains(t, err, "read BANK")
}

func TestLoad_BuildsWeekly(t *testing.T) {
	r := memReader{"NIFTY": {
		daily(model.Date(2024, time.January, 2), 1, 2, 1, 2, 0),
		daily(model.Date(2024, time.January, 9), 2, 3, 2, 3, 0),
	}}
	s, err := Load(context.Background(), StoreSource{Reader: r}, "NIFTY")
	require.NoError(t, err)
	assert.Len(t, s.For(model.Daily), 2)
	assert.Len(t, s.For(model.Weekly), 2)
	assert.Equal(t, "NIFTY", s.Symbol)
}

func TestFileSource_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "midcap.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Date", "Open", "High", "Low", "Close", "Shares Traded", "Turnover"},
		{"15-Jan-2019", "10", "12", "9", "11", "100", "5"},
		{"14-Jan-2019", "9", "10", "8", "10", "50", "2"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	bars, err := FileSource{Path: path}.Bars(context.Background(), "MIDCAP")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, model.Date(2019, time.January, 14), bars[0].Date)
	assert.Equal(t, 11.0, bars[1].Close)
	assert.Equal(t, 100.0, bars[1].Volume)
}

func TestFileSource_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FileSource{Path: "x.csv"}.Bars(ctx, "X")
	assert.ErrorIs(t, err, context.Canceled)
}
