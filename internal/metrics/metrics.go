package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"swing-backtest/internal/model"
	"swing-backtest/internal/stats"
)

// Metrics holds the Prometheus metrics of the backtester. They live on a
// private registry so repeated runs in one process (tests, scheduled
// mode) never collide with the global one.
type Metrics struct {
	Registry *prometheus.Registry

	BarsProcessed *prometheus.CounterVec   // labels: strategy
	TradesTotal   *prometheus.CounterVec   // labels: strategy, leg
	RunDuration   *prometheus.HistogramVec // labels: strategy
	RunsFailed    *prometheus.CounterVec   // labels: strategy

	FinalEquity    *prometheus.GaugeVec // labels: strategy
	NetProfit      *prometheus.GaugeVec // labels: strategy
	MaxDrawdownPct *prometheus.GaugeVec // labels: strategy
	WinRate        *prometheus.GaugeVec // labels: strategy

	// Result sinks
	SinkErrors   *prometheus.CounterVec // labels: sink
	BufferedRuns prometheus.Counter
	DroppedRuns  prometheus.Counter
	BreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open

	LastRunTimestamp prometheus.Gauge
}

// NewMetrics creates and registers all metrics on a new registry.
func NewMetrics() *Metrics {
	strategy := []string{"strategy"}
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		BarsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_bars_processed_total",
			Help: "Bars fed to strategies",
		}, strategy),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_trades_total",
			Help: "Completed trades by strategy and leg",
		}, []string{"strategy", "leg"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backtest_run_duration_seconds",
			Help:    "Wall time of one strategy run",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms → ~16s
		}, strategy),
		RunsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_runs_failed_total",
			Help: "Strategy runs that returned an error",
		}, strategy),
		FinalEquity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backtest_final_equity",
			Help: "Capital at the end of the last run",
		}, strategy),
		NetProfit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backtest_net_profit",
			Help: "Net profit of the last run",
		}, strategy),
		MaxDrawdownPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backtest_max_drawdown_pct",
			Help: "Maximum drawdown of the last run in percent",
		}, strategy),
		WinRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backtest_win_rate_pct",
			Help: "Winning trades of the last run in percent",
		}, strategy),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backtest_sink_errors_total",
			Help: "Failed result publications by sink",
		}, []string{"sink"}),
		BufferedRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_redis_buffered_runs_total",
			Help: "Runs buffered while the Redis circuit breaker was open",
		}),
		DroppedRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "backtest_redis_dropped_runs_total",
			Help: "Buffered runs dropped because the buffer was full",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtest_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "backtest_last_run_timestamp_seconds",
			Help: "Unix time of the last completed backtest",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		m.BarsProcessed,
		m.TradesTotal,
		m.RunDuration,
		m.RunsFailed,
		m.FinalEquity,
		m.NetProfit,
		m.MaxDrawdownPct,
		m.WinRate,
		m.SinkErrors,
		m.BufferedRuns,
		m.DroppedRuns,
		m.BreakerState,
		m.LastRunTimestamp,
	)
	return m
}

// ObserveRun records one finished strategy run.
func (m *Metrics) ObserveRun(strategy string, bars int, legTrades map[model.Leg]int, elapsed time.Duration, sum stats.Summary) {
	m.BarsProcessed.WithLabelValues(strategy).Add(float64(bars))
	for leg, n := range legTrades {
		m.TradesTotal.WithLabelValues(strategy, string(leg)).Add(float64(n))
	}
	m.RunDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
	m.FinalEquity.WithLabelValues(strategy).Set(sum.FinalCapital)
	m.NetProfit.WithLabelValues(strategy).Set(sum.NetProfit)
	m.MaxDrawdownPct.WithLabelValues(strategy).Set(sum.MaxDrawdownPct)
	m.WinRate.WithLabelValues(strategy).Set(sum.WinRate)
}

// MarkRun stamps the completion time of a whole backtest.
func (m *Metrics) MarkRun(t time.Time) {
	m.LastRunTimestamp.Set(float64(t.Unix()))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// WriteTextfile dumps the registry for the node_exporter textfile
// collector. The file is written atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
