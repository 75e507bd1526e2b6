package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"swing-backtest/internal/logger"
	"swing-backtest/internal/model"
)

const defaultMaxBuffered = 1000

// BufferedSink wraps a ResultSink with a circuit breaker. While the
// breaker is open, runs are kept in memory (oldest dropped beyond the
// limit). The buffer is replayed ahead of the next publish the breaker
// lets through, or by Flush.
type BufferedSink struct {
	sink model.ResultSink
	cb   *CircuitBreaker
	log  *slog.Logger

	// sendMu serializes sends so replayed runs stay ahead of new ones.
	sendMu sync.Mutex

	mu     sync.Mutex
	buffer []model.RunResult
	maxBuf int

	// OnBuffer and OnDrop are optional metric hooks.
	OnBuffer func()
	OnDrop   func()
}

// NewBufferedSink wraps sink. maxBuffered <= 0 uses a default of 1000;
// a nil logger discards.
func NewBufferedSink(sink model.ResultSink, cb *CircuitBreaker, maxBuffered int, l *slog.Logger) *BufferedSink {
	if maxBuffered <= 0 {
		maxBuffered = defaultMaxBuffered
	}
	if l == nil {
		l = logger.Discard()
	}
	return &BufferedSink{
		sink:   sink,
		cb:     cb,
		log:    l.With(slog.String("component", "redis-buffer")),
		maxBuf: maxBuffered,
	}
}

// Publish drains any buffered runs and then sends r, both through the
// breaker. If the drain stops early r is buffered behind the remainder.
// A rejected call is buffered and reported as success; errors from the
// sink itself are returned.
func (b *BufferedSink) Publish(ctx context.Context, r model.RunResult) error {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	if err := b.flush(ctx); err != nil {
		b.push(r)
		if errors.Is(err, ErrCircuitOpen) {
			return nil
		}
		return err
	}
	err := b.cb.Execute(func() error { return b.sink.Publish(ctx, r) })
	if errors.Is(err, ErrCircuitOpen) {
		b.push(r)
		return nil
	}
	return err
}

func (b *BufferedSink) push(r model.RunResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buffer) >= b.maxBuf {
		b.buffer = b.buffer[1:]
		if b.OnDrop != nil {
			b.OnDrop()
		}
	}
	b.buffer = append(b.buffer, r)
	if b.OnBuffer != nil {
		b.OnBuffer()
	}
}

// Pending returns the number of buffered runs.
func (b *BufferedSink) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

// Flush replays buffered runs in order. It stops at the first failure and
// keeps the unsent runs.
func (b *BufferedSink) Flush(ctx context.Context) error {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	return b.flush(ctx)
}

func (b *BufferedSink) flush(ctx context.Context) error {
	b.mu.Lock()
	pending := b.buffer
	b.buffer = nil
	b.mu.Unlock()

	for i, r := range pending {
		err := b.cb.Execute(func() error { return b.sink.Publish(ctx, r) })
		if err != nil {
			b.mu.Lock()
			b.buffer = append(pending[i:len(pending):len(pending)], b.buffer...)
			b.mu.Unlock()
			b.log.Warn("flush stopped", slog.Int("pending", len(pending)-i), slog.String("error", err.Error()))
			return err
		}
	}
	if len(pending) > 0 {
		b.log.Info("flushed buffered runs", slog.Int("count", len(pending)))
	}
	return nil
}

// Close flushes what it can and closes the wrapped sink.
func (b *BufferedSink) Close() error {
	ferr := b.Flush(context.Background())
	return errors.Join(ferr, b.sink.Close())
}
