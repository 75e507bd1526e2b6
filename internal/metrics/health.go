package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// HealthStatus tracks the dependencies of a long-running backtester
// (scheduled or serving mode).
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled   bool
	RedisConnected bool
	SQLiteEnabled  bool
	SQLiteOK       bool

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time

	LastRunID  string
	LastRunAt  time.Time
	LastRunErr string
	StartedAt  time.Time
}

// NewHealthStatus returns a status with no dependencies enabled.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

// RecordRun notes the outcome of a backtest.
func (h *HealthStatus) RecordRun(runID string, at time.Time, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LastRunID = runID
	h.LastRunAt = at
	h.LastRunErr = ""
	if err != nil {
		h.LastRunErr = err.Error()
	}
}

// CheckRedis pings Redis and records latency and connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the journal database.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker probes the given dependencies every interval until
// ctx is cancelled. Nil dependencies are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}
	probe()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// Report is the JSON body served by ServeHTTP.
type Report struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	RedisConnected  *bool   `json:"redis_connected,omitempty"`
	RedisLatencyMs  float64 `json:"redis_latency_ms,omitempty"`
	SQLiteOK        *bool   `json:"sqlite_ok,omitempty"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms,omitempty"`
	LastRunID       string  `json:"last_run_id,omitempty"`
	LastRunAt       string  `json:"last_run_at,omitempty"`
	LastRunError    string  `json:"last_run_error,omitempty"`
	LastCheckAt     string  `json:"last_check_at,omitempty"`
}

// Snapshot builds the report and the matching HTTP status code.
// Any failing enabled dependency or a failed last run is "degraded";
// both stores down is "unhealthy".
func (h *HealthStatus) Snapshot() (Report, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r := Report{
		Status:       "healthy",
		Uptime:       time.Since(h.StartedAt).Round(time.Second).String(),
		LastRunID:    h.LastRunID,
		LastRunError: h.LastRunErr,
	}
	code := http.StatusOK

	redisDown := h.RedisEnabled && !h.RedisConnected
	sqliteDown := h.SQLiteEnabled && !h.SQLiteOK
	if redisDown || sqliteDown || h.LastRunErr != "" {
		r.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if redisDown && sqliteDown {
		r.Status = "unhealthy"
	}

	if h.RedisEnabled {
		ok := h.RedisConnected
		r.RedisConnected = &ok
		r.RedisLatencyMs = h.RedisLatencyMs
	}
	if h.SQLiteEnabled {
		ok := h.SQLiteOK
		r.SQLiteOK = &ok
		r.SQLiteLatencyMs = h.SQLiteLatencyMs
	}
	if !h.LastRunAt.IsZero() {
		r.LastRunAt = h.LastRunAt.Format(time.RFC3339)
	}
	if !h.LastCheckAt.IsZero() {
		r.LastCheckAt = h.LastCheckAt.Format(time.RFC3339)
	}
	return r, code
}

// ServeHTTP handles the health endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	report, code := h.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(report)
}
