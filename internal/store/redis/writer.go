package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"swing-backtest/internal/logger"
	"swing-backtest/internal/model"
)

const (
	// Trades kept per stream; older entries are trimmed approximately.
	defaultStreamMaxLen = 5000
	defaultLatestTTL    = 24 * time.Hour
)

// WriterConfig configures the Redis publisher.
type WriterConfig struct {
	Addr      string
	Password  string
	DB        int
	StreamMax int64
	LatestTTL time.Duration
	Logger    *slog.Logger // nil discards
}

// Writer publishes finished runs to Redis: every trade is appended to the
// run's stream, the summary is stored under a "latest" key and a
// notification goes out on the symbol's pubsub channel.
type Writer struct {
	client    *goredis.Client
	streamMax int64
	latestTTL time.Duration
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	l := cfg.Logger
	if l == nil {
		l = logger.Discard()
	}
	l.Info("redis connected", slog.String("component", "redis"), slog.String("addr", cfg.Addr))
	return newWriter(client, cfg), nil
}

func newWriter(client *goredis.Client, cfg WriterConfig) *Writer {
	w := &Writer{client: client, streamMax: cfg.StreamMax, latestTTL: cfg.LatestTTL}
	if w.streamMax <= 0 {
		w.streamMax = defaultStreamMaxLen
	}
	if w.latestTTL <= 0 {
		w.latestTTL = defaultLatestTTL
	}
	return w
}

// LatestKey is the key holding the most recent summary of a strategy.
func LatestKey(symbol, strategy string) string {
	return model.StreamKey(symbol, strategy) + ":latest"
}

// Channel is the pubsub channel announcing finished runs for a symbol.
func Channel(symbol string) string {
	return "pub:backtest:" + symbol
}

// Publish writes one run in a single pipeline (XADD per trade, SET, PUBLISH).
func (w *Writer) Publish(ctx context.Context, r model.RunResult) error {
	stream := model.StreamKey(r.Symbol, r.Strategy)

	pipe := w.client.Pipeline()
	for _, t := range r.Trades {
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: stream,
			MaxLen: w.streamMax,
			Approx: true,
			Values: map[string]interface{}{"run_id": r.RunID, "data": string(t.JSON())},
		})
	}
	if len(r.Summary) > 0 {
		pipe.Set(ctx, LatestKey(r.Symbol, r.Strategy), string(r.Summary), w.latestTTL)
	}
	pipe.Publish(ctx, Channel(r.Symbol), r.RunID+":"+r.Strategy)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", stream, err)
	}
	return nil
}

// Close closes the client.
func (w *Writer) Close() error {
	return w.client.Close()
}
