package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"

	"swing-backtest/internal/model"
)

// ErrNotFound is returned when no run has been published for a key.
var ErrNotFound = errors.New("redis: no published run")

// Reader reads published runs back.
type Reader struct {
	client *goredis.Client
}

// NewReader wraps an existing client, usually Writer.Client().
func NewReader(client *goredis.Client) *Reader {
	return &Reader{client: client}
}

// LatestSummary returns the most recently published summary JSON.
func (r *Reader) LatestSummary(ctx context.Context, symbol, strategy string) ([]byte, error) {
	s, err := r.client.Get(ctx, LatestKey(symbol, strategy)).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis GET latest: %w", err)
	}
	return []byte(s), nil
}

// Trades returns the trades of runID from the strategy's stream in the
// order they were appended. An empty runID returns every retained trade.
func (r *Reader) Trades(ctx context.Context, symbol, strategy, runID string) ([]model.Trade, error) {
	msgs, err := r.client.XRange(ctx, model.StreamKey(symbol, strategy), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("redis XRANGE: %w", err)
	}
	return decodeTrades(msgs, runID)
}

func decodeTrades(msgs []goredis.XMessage, runID string) ([]model.Trade, error) {
	var trades []model.Trade
	for _, m := range msgs {
		if runID != "" && m.Values["run_id"] != runID {
			continue
		}
		data, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		var t model.Trade
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("redis decode trade %s: %w", m.ID, err)
		}
		trades = append(trades, t)
	}
	return trades, nil
}
