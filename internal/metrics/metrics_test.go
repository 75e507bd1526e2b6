package metrics

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swing-backtest/internal/model"
	"swing-backtest/internal/stats"
)

// ────────────────────────────────────────────────────────────
// Metrics
// ────────────────────────────────────────────────────────────

func TestObserveRun(t *testing.T) {
	m := NewMetrics()
	sum := stats.Summary{FinalCapital: 1200, NetProfit: 200, MaxDrawdownPct: 12.5, WinRate: 60}

	m.ObserveRun("ma-trend", 500, map[model.Leg]int{model.LegPrimary: 4}, 20*time.Millisecond, sum)
	m.ObserveRun("ma-trend", 500, map[model.Leg]int{model.LegPrimary: 1}, 20*time.Millisecond, sum)

	assert.Equal(t, 1000.0, testutil.ToFloat64(m.BarsProcessed.WithLabelValues("ma-trend")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.TradesTotal.WithLabelValues("ma-trend", "primary")))
	assert.Equal(t, 1200.0, testutil.ToFloat64(m.FinalEquity.WithLabelValues("ma-trend")))
	assert.Equal(t, 12.5, testutil.ToFloat64(m.MaxDrawdownPct.WithLabelValues("ma-trend")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunDuration))
}

func TestNewMetrics_Independent(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RunsFailed.WithLabelValues("x").Inc()
	assert.Equal(t, 0, testutil.CollectAndCount(b.RunsFailed))
}

func TestHandlerAndTextfile(t *testing.T) {
	m := NewMetrics()
	m.MarkRun(time.Unix(1700000000, 0))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "backtest_last_run_timestamp_seconds 1.7e+09")

	path := filepath.Join(t.TempDir(), "backtest.prom")
	require.NoError(t, m.WriteTextfile(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "backtest_redis_circuit_breaker_state 0"))
}

// ────────────────────────────────────────────────────────────
// Health
// ────────────────────────────────────────────────────────────

func TestHealth_NoDependencies(t *testing.T) {
	h := NewHealthStatus()
	r, code := h.Snapshot()
	assert.Equal(t, "healthy", r.Status)
	assert.Equal(t, http.StatusOK, code)
	assert.Nil(t, r.RedisConnected)
}

func TestHealth_FailedRunDegrades(t *testing.T) {
	h := NewHealthStatus()
	h.RecordRun("r1", time.Now(), errors.New("boom"))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"last_run_error":"boom"`)

	h.RecordRun("r2", time.Now(), nil)
	r, code := h.Snapshot()
	assert.Equal(t, "healthy", r.Status)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "r2", r.LastRunID)
}

func TestHealth_SQLite(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)

	h := NewHealthStatus()
	h.CheckSQLite(context.Background(), db)
	r, _ := h.Snapshot()
	require.NotNil(t, r.SQLiteOK)
	assert.True(t, *r.SQLiteOK)

	db.Close()
	h.CheckSQLite(context.Background(), db)
	r, code := h.Snapshot()
	assert.False(t, *r.SQLiteOK)
	assert.Equal(t, "degraded", r.Status)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}
