// cmd/backtest runs swing-trading strategies over a daily index series and
// prints a performance report.
//
// Usage:
//
//	go run ./cmd/backtest -csv data/nifty.csv -symbol NIFTY
//	go run ./cmd/backtest -config backtest.yaml -strategy ma-trend,trend5ema
//	go run ./cmd/backtest -csv data/nifty.csv -db data/bars.db -symbol NIFTY -import
//	go run ./cmd/backtest -config backtest.yaml -schedule "30 18 * * 1-5" -http :8080
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"swing-backtest/config"
	"swing-backtest/internal/api"
	"swing-backtest/internal/backtest"
	"swing-backtest/internal/feed"
	"swing-backtest/internal/logger"
	"swing-backtest/internal/marketdata"
	"swing-backtest/internal/markethours"
	"swing-backtest/internal/metrics"
	"swing-backtest/internal/notification"
	"swing-backtest/internal/report"
	"swing-backtest/internal/scheduler"
	redisstore "swing-backtest/internal/store/redis"
	sqlitestore "swing-backtest/internal/store/sqlite"
	"swing-backtest/internal/strategy"
)

type flags struct {
	config     string
	importOnly bool
	list       bool
	strategies string
}

func main() {
	os.Exit(run())
}

func run() int {
	var f flags
	flag.StringVar(&f.config, "config", "", "YAML config file")
	flag.BoolVar(&f.importOnly, "import", false, "Import the -csv file into the -db bars table and exit")
	flag.BoolVar(&f.list, "list", false, "List strategy names and exit")
	flag.StringVar(&f.strategies, "strategy", "", "Comma-separated strategies to run (default: config, else all)")
	csvPath := flag.String("csv", "", "Daily bars file (.csv or .xlsx)")
	dbPath := flag.String("db", "", "SQLite database holding the bars table")
	symbol := flag.String("symbol", "", "Symbol to backtest")
	capital := flag.Float64("capital", 0, "Initial capital")
	slippage := flag.Float64("slippage-bps", 0, "Fill slippage in basis points")
	parallel := flag.Int("parallel", 0, "Strategies run concurrently (0 = GOMAXPROCS)")
	journal := flag.String("journal", "", "SQLite results journal path")
	redisAddr := flag.String("redis", "", "Redis address for publishing results")
	metricsFile := flag.String("metrics-file", "", "Write Prometheus metrics to this textfile")
	logLevel := flag.String("log-level", "", "debug|info|warn|error")
	logFormat := flag.String("log-format", "", "json|text")
	schedule := flag.String("schedule", "", "Cron spec; re-run on this schedule instead of once")
	httpAddr := flag.String("http", "", "Serve results on this address in scheduled mode")
	trades := flag.Bool("trades", false, "Include the trade log in the report")
	flag.Parse()

	reg := strategy.NewRegistry()
	if f.list {
		for _, n := range reg.Names() {
			fmt.Println(n)
		}
		return 0
	}

	cfg, err := config.Load(f.config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	// Flags override the file and the environment.
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "csv":
			cfg.Source.Kind, cfg.Source.Path = "file", *csvPath
		case "db":
			cfg.Source.DB = *dbPath
			if *csvPath == "" {
				cfg.Source.Kind = "db"
			}
		case "symbol":
			cfg.Symbol = *symbol
		case "capital":
			cfg.Run.Initial = *capital
		case "slippage-bps":
			cfg.Run.SlippageBps = *slippage
		case "parallel":
			cfg.Run.Parallelism = *parallel
		case "journal":
			cfg.Journal.Path = *journal
		case "redis":
			cfg.Redis.Addr = *redisAddr
		case "metrics-file":
			cfg.Metrics.Textfile = *metricsFile
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "log-format":
			cfg.Logging.Format = *logFormat
		case "schedule":
			cfg.Schedule.Cron = *schedule
		case "http":
			cfg.Schedule.HTTPAddr = *httpAddr
		case "trades":
			cfg.Report.Trades = *trades
		}
	})
	if f.strategies != "" {
		cfg.Strategies = nil
		for _, name := range strings.Split(f.strategies, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.Strategies = append(cfg.Strategies, config.StrategyConfig{Name: name})
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	level, _ := logger.ParseLevel(cfg.Logging.Level)
	log := logger.Init(os.Stderr, "backtest", cfg.Logging.Format, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if f.importOnly {
		if err := importBars(ctx, cfg, log); err != nil {
			log.Error("import failed", slog.Any("error", err))
			return 1
		}
		return 0
	}

	app, err := newApp(cfg, reg, log)
	if err != nil {
		log.Error("startup failed", slog.Any("error", err))
		return 1
	}
	defer app.close()

	if cfg.Schedule.Cron == "" {
		if err := app.runOnce(ctx); err != nil {
			log.Error("backtest failed", slog.Any("error", err))
			return 1
		}
		return 0
	}
	if err := app.serve(ctx); err != nil {
		log.Error("scheduled mode failed", slog.Any("error", err))
		return 1
	}
	return 0
}

// importBars copies the file source into the SQLite bars table.
func importBars(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if cfg.Source.Path == "" || cfg.Source.DB == "" {
		return errors.New("-import needs both -csv and -db")
	}
	bars, err := marketdata.FileSource{Path: cfg.Source.Path}.Bars(ctx, cfg.Symbol)
	if err != nil {
		return err
	}
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.Source.DB, Logger: log})
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.SaveBars(ctx, cfg.Symbol, bars); err != nil {
		return err
	}
	log.Info("bars imported",
		slog.String("symbol", cfg.Symbol),
		slog.Int("bars", len(bars)),
		slog.String("db", cfg.Source.DB),
	)
	return nil
}

type app struct {
	cfg     *config.Config
	reg     *strategy.Registry
	log     *slog.Logger
	source  marketdata.Source
	runner  *backtest.Runner
	specs   []backtest.StrategySpec
	metrics *metrics.Metrics
	health  *metrics.HealthStatus
	latest  *api.Latest
	cal     *markethours.Calendar
	alerts  notification.Notifier
	feed    *feed.Hub

	journal     *sqlitestore.Writer
	journalRead *sqlitestore.Reader
	redis       *redisstore.Writer
	closers     []func() error
}

func newApp(cfg *config.Config, reg *strategy.Registry, log *slog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		reg:     reg,
		log:     log,
		specs:   cfg.StrategySpecs(),
		metrics: metrics.NewMetrics(),
		health:  metrics.NewHealthStatus(),
		latest:  &api.Latest{},
		cal:     markethours.NSE(),
	}
	if a.specs == nil {
		for _, n := range reg.Names() {
			a.specs = append(a.specs, backtest.StrategySpec{Name: n})
		}
	}

	switch cfg.Source.Kind {
	case "db":
		r, err := sqlitestore.NewReader(cfg.Source.DB)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		a.source = marketdata.StoreSource{Reader: r}
	default:
		a.source = marketdata.FileSource{Path: cfg.Source.Path}
	}

	var sinks []backtest.Sink
	if cfg.Journal.Path != "" {
		w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.Journal.Path, Logger: log})
		if err != nil {
			a.close()
			return nil, err
		}
		a.journal = w
		a.closers = append(a.closers, w.Close)
		sinks = append(sinks, backtest.Sink{Name: "sqlite", ResultSink: w})

		r, err := sqlitestore.NewReader(cfg.Journal.Path)
		if err != nil {
			a.close()
			return nil, err
		}
		a.journalRead = r
		a.closers = append(a.closers, r.Close)
	}
	if cfg.Redis.Addr != "" {
		w, err := redisstore.New(redisstore.WriterConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			StreamMax: cfg.Redis.StreamMaxLen,
			LatestTTL: cfg.Redis.LatestTTL,
			Logger:    log,
		})
		if err != nil {
			a.close()
			return nil, err
		}
		a.redis = w

		cb := redisstore.NewCircuitBreaker(cfg.Redis.BreakerFailures, cfg.Redis.BreakerReset)
		cb.OnStateChange = func(from, to redisstore.State) {
			a.metrics.BreakerState.Set(float64(to))
			log.Warn("redis circuit breaker", slog.String("from", from.String()), slog.String("to", to.String()))
		}
		bs := redisstore.NewBufferedSink(w, cb, cfg.Redis.MaxBuffered, log)
		bs.OnBuffer = a.metrics.BufferedRuns.Inc
		bs.OnDrop = a.metrics.DroppedRuns.Inc
		a.closers = append(a.closers, bs.Close)
		sinks = append(sinks, backtest.Sink{Name: "redis", ResultSink: bs})
	}

	if n := cfg.Notify; n.Enabled() {
		var channels notification.Multi
		if n.WebhookURL != "" {
			channels = append(channels, notification.NewWebhookNotifier(n.WebhookURL))
		}
		if n.TelegramToken != "" {
			channels = append(channels, notification.NewTelegramNotifier(n.TelegramToken, n.TelegramChatID))
		}
		a.alerts = channels
		ns := notification.NewSink(channels)
		ns.LossOnly = n.LossOnly
		sinks = append(sinks, backtest.Sink{Name: "notify", ResultSink: ns})
	} else {
		a.alerts = notification.NewLogNotifier(log)
	}

	if cfg.Schedule.Cron != "" && cfg.Schedule.HTTPAddr != "" {
		a.feed = feed.NewHub(100, log)
		a.closers = append(a.closers, a.feed.Close)
		sinks = append(sinks, backtest.Sink{Name: "feed", ResultSink: a.feed})
	}

	a.runner = backtest.NewRunner(reg, a.metrics, sinks, log)
	a.runner.Calendar = a.cal
	return a, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", slog.Any("error", err))
		}
	}
	a.closers = nil
}

func (a *app) runOnce(ctx context.Context) error {
	rep, err := a.runner.Run(ctx, a.source, a.specs, a.cfg.Options())
	runID := ""
	if rep != nil {
		runID = rep.RunID
	}
	a.health.RecordRun(runID, time.Now(), err)
	if err != nil {
		if nerr := a.alerts.Send(ctx, notification.FailureAlert(a.cfg.Symbol, err)); nerr != nil {
			a.log.Warn("failure alert", slog.Any("error", nerr))
		}
		return err
	}
	a.latest.Set(rep)

	if err := report.Write(os.Stdout, rep, report.Options{
		Currency: a.cfg.Report.Currency,
		Yearly:   a.cfg.Report.Yearly,
		Trades:   a.cfg.Report.Trades,
	}); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			a.log.Warn("metrics textfile", slog.String("path", path), slog.Any("error", err))
		}
	}
	return nil
}

// serve runs the backtest once, then on every cron activation until ctx
// is cancelled, optionally serving results over HTTP.
func (a *app) serve(ctx context.Context) error {
	sched := scheduler.New(ctx, a.log)
	if err := sched.Add("backtest", a.cfg.Schedule.Cron, a.scheduledRun); err != nil {
		return err
	}

	var srv *http.Server
	if addr := a.cfg.Schedule.HTTPAddr; addr != "" {
		deps := api.Deps{
			Strategies: a.reg.Names(),
			Latest:     a.latest,
			Health:     a.health,
			Metrics:    a.metrics.Handler(),
			Logger:     a.log,
		}
		if a.journalRead != nil {
			deps.Journal = a.journalRead
		}
		if a.feed != nil {
			deps.Feed = a.feed
		}
		srv = &http.Server{
			Addr:              addr,
			Handler:           api.NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			a.log.Info("http listening", slog.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("http server", slog.Any("error", err))
			}
		}()

		a.health.StartLivenessChecker(ctx, a.redisClient(), a.journalDB(), 30*time.Second)
	}

	if err := sched.RunNow("backtest"); err != nil {
		a.log.Warn("initial run failed; waiting for the schedule", slog.Any("error", err))
	}
	sched.Start()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sched.Stop(shutdownCtx)
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Warn("http shutdown", slog.Any("error", err))
		}
	}
	return nil
}

// scheduledRun skips the run while the last report already holds the most
// recent closed session; the series cannot have changed.
func (a *app) scheduledRun(ctx context.Context) error {
	now := time.Now()
	if rep := a.latest.Get(); a.cfg.Schedule.SkipHolidays && rep != nil && a.cal.UpToDate(rep.Last, now) {
		a.log.Info("series up to date; run skipped",
			slog.String("last_bar", rep.Last.Format(time.DateOnly)),
			slog.String("latest_close", a.cal.LatestClose(now).Format(time.DateOnly)),
		)
		return nil
	}
	return a.runOnce(ctx)
}

func (a *app) redisClient() *goredis.Client {
	if a.redis == nil {
		return nil
	}
	return a.redis.Client()
}

func (a *app) journalDB() *sql.DB {
	if a.journal == nil {
		return nil
	}
	return a.journal.DB()
}
