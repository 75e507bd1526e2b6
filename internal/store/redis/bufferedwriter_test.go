package redis

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swing-backtest/internal/logger"
	"swing-backtest/internal/model"
)

type fakeSink struct {
	err    error
	got    []string
	closed bool
}

func (f *fakeSink) Publish(_ context.Context, r model.RunResult) error {
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, r.RunID)
	return nil
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func run(id string) model.RunResult {
	return model.RunResult{RunID: id, Symbol: "NIFTY", Strategy: "ma-trend"}
}

func TestBufferedSink_PassThrough(t *testing.T) {
	sink := &fakeSink{}
	cb, _ := newTestBreaker(2)
	b := NewBufferedSink(sink, cb, 0, nil)

	require.NoError(t, b.Publish(context.Background(), run("a")))
	assert.Equal(t, []string{"a"}, sink.got)
	assert.Zero(t, b.Pending())
}

func TestBufferedSink_BuffersWhileOpenAndFlushes(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{err: errFail}
	cb, c := newTestBreaker(1)
	b := NewBufferedSink(sink, cb, 2, nil)
	drops := 0
	b.OnDrop = func() { drops++ }

	assert.ErrorIs(t, b.Publish(ctx, run("a")), errFail)
	require.Equal(t, StateOpen, cb.CurrentState())

	for _, id := range []string{"b", "c", "d"} {
		require.NoError(t, b.Publish(ctx, run(id)))
	}
	assert.Equal(t, 2, b.Pending())
	assert.Equal(t, 1, drops)

	// Still open: nothing is sent and the buffer is kept.
	assert.ErrorIs(t, b.Flush(ctx), ErrCircuitOpen)
	assert.Equal(t, 2, b.Pending())

	sink.err = nil
	c.advance(time.Second)
	require.NoError(t, b.Flush(ctx))
	assert.Equal(t, []string{"c", "d"}, sink.got)
	assert.Zero(t, b.Pending())

	require.NoError(t, b.Close())
	assert.True(t, sink.closed)
}

func TestBufferedSink_ReplaysBeforeNextPublish(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{err: errFail}
	cb, c := newTestBreaker(1)
	var logs bytes.Buffer
	b := NewBufferedSink(sink, cb, 0, logger.New(&logs, "test", "text", slog.LevelInfo))

	assert.ErrorIs(t, b.Publish(ctx, run("a")), errFail)
	require.Equal(t, StateOpen, cb.CurrentState())
	require.NoError(t, b.Publish(ctx, run("b")))
	require.Equal(t, 1, b.Pending())

	sink.err = nil
	c.advance(time.Second)
	require.NoError(t, b.Publish(ctx, run("c")))

	assert.Equal(t, []string{"b", "c"}, sink.got)
	assert.Zero(t, b.Pending())
	assert.Equal(t, StateClosed, cb.CurrentState())
	assert.Contains(t, logs.String(), "flushed buffered runs")
}

func TestBufferedSink_DrainFailureKeepsOrder(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{err: errFail}
	cb, c := newTestBreaker(1)
	b := NewBufferedSink(sink, cb, 0, nil)

	assert.ErrorIs(t, b.Publish(ctx, run("a")), errFail)
	require.NoError(t, b.Publish(ctx, run("b")))

	// Half-open replay of "b" fails: "c" queues behind it.
	c.advance(time.Second)
	assert.ErrorIs(t, b.Publish(ctx, run("c")), errFail)
	assert.Equal(t, StateOpen, cb.CurrentState())
	assert.Equal(t, 2, b.Pending())

	sink.err = nil
	c.advance(time.Second)
	require.NoError(t, b.Publish(ctx, run("d")))
	assert.Equal(t, []string{"b", "c", "d"}, sink.got)
	assert.Zero(t, b.Pending())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "backtest:NIFTY:ma-trend:latest", LatestKey("NIFTY", "ma-trend"))
	assert.Equal(t, "pub:backtest:NIFTY", Channel("NIFTY"))
}

func TestDecodeTrades(t *testing.T) {
	tr := model.Trade{
		EntryDate:  model.Date(2024, time.January, 2),
		EntryPrice: 100,
		ExitDate:   model.Date(2024, time.February, 1),
		ExitPrice:  110,
		Leg:        model.LegPrimary,
	}
	msgs := []goredis.XMessage{
		{ID: "1-0", Values: map[string]interface{}{"run_id": "r1", "data": string(tr.JSON())}},
		{ID: "2-0", Values: map[string]interface{}{"run_id": "r2", "data": string(tr.JSON())}},
	}

	got, err := decodeTrades(msgs, "r1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, tr.EntryDate.Equal(got[0].EntryDate))

	all, err := decodeTrades(msgs, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = decodeTrades([]goredis.XMessage{{ID: "3-0", Values: map[string]interface{}{"data": "{"}}}, "")
	assert.Error(t, err)
}
