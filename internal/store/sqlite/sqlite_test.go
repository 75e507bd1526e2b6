package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swing-backtest/internal/logger"
	"swing-backtest/internal/model"
	"swing-backtest/internal/stats"
)

func open(t *testing.T) (*Writer, *Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backtest.db")
	w, err := New(WriterConfig{DBPath: path})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	r, err := NewReader(path)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return w, r
}

func TestWriter_LogsThroughInjectedLogger(t *testing.T) {
	var logs bytes.Buffer
	w, err := New(WriterConfig{
		DBPath: filepath.Join(t.TempDir(), "backtest.db"),
		Logger: logger.New(&logs, "test", "json", slog.LevelInfo),
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.SaveBars(context.Background(), "NIFTY", []model.Bar{
		{Date: model.Date(2024, time.January, 2), Open: 1, High: 2, Low: 0.5, Close: 1.5},
	}))
	assert.Contains(t, logs.String(), `"msg":"database opened"`)
	assert.Contains(t, logs.String(), `"msg":"bars saved"`)
	assert.Contains(t, logs.String(), `"component":"sqlite"`)
}

func TestBars_RoundTrip(t *testing.T) {
	w, r := open(t)
	ctx := context.Background()

	bars := []model.Bar{
		{Date: model.Date(2024, time.January, 3), Open: 2, High: 3, Low: 1, Close: 2.5, Volume: 10, Turnover: 1},
		{Date: model.Date(2024, time.January, 2), Open: 1, High: 2, Low: 0.5, Close: 1.5},
	}
	require.NoError(t, w.SaveBars(ctx, "NIFTY", bars))

	// Same date replaces the row.
	require.NoError(t, w.SaveBars(ctx, "NIFTY", []model.Bar{
		{Date: model.Date(2024, time.January, 3), Open: 2, High: 4, Low: 1, Close: 3.5},
	}))

	got, err := r.ReadBars(ctx, "NIFTY")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.Date(2024, time.January, 2), got[0].Date)
	assert.Equal(t, 3.5, got[1].Close)

	none, err := r.ReadBars(ctx, "BANKNIFTY")
	require.NoError(t, err)
	assert.Empty(t, none)

	syms, err := r.Symbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"NIFTY"}, syms)
}

func TestPublish_Journal(t *testing.T) {
	w, r := open(t)
	ctx := context.Background()

	trades := []model.Trade{
		{EntryDate: model.Date(2020, time.March, 2), EntryPrice: 100, ExitDate: model.Date(2020, time.April, 1), ExitPrice: 110, Leg: model.LegPrimary, Reason: "close below slow ema"},
		{EntryDate: model.Date(2021, time.May, 3), EntryPrice: 100, ExitDate: model.Date(2021, time.June, 1), ExitPrice: 95, Leg: model.LegPrimary, Reason: "stop loss"},
	}
	st := stats.Compute(trades, 1000, stats.DefaultOptions())
	summary, err := json.Marshal(st.Summary())
	require.NoError(t, err)

	run := model.RunResult{RunID: "run-1", Symbol: "NIFTY", Strategy: "ma-trend", Trades: trades, Summary: summary}
	require.NoError(t, w.Publish(ctx, run))
	require.NoError(t, w.Publish(ctx, run), "re-publishing replaces rows")

	got, err := r.RunTrades(ctx, "run-1", "ma-trend")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, trades[0].EntryDate, got[0].EntryDate)
	assert.Equal(t, "stop loss", got[1].Reason)
	assert.Equal(t, model.LegPrimary, got[1].Leg)

	raw, err := r.RunSummary(ctx, "run-1", "ma-trend")
	require.NoError(t, err)
	assert.JSONEq(t, string(summary), string(raw))

	var years int
	require.NoError(t, w.DB().QueryRow(`SELECT COUNT(*) FROM yearly_stats WHERE run_id = 'run-1'`).Scan(&years))
	assert.Equal(t, 2, years)

	_, err = r.RunSummary(ctx, "run-2", "ma-trend")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestPublish_BadSummary(t *testing.T) {
	w, _ := open(t)
	err := w.Publish(context.Background(), model.RunResult{RunID: "x", Strategy: "s", Summary: []byte("{")})
	assert.ErrorContains(t, err, "decode summary")
}
