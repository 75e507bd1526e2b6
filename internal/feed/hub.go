// Package feed streams finished backtest runs to WebSocket clients.
//
// Every run is wrapped in an envelope carrying a monotonic sequence number.
// Clients that reconnect with ?since=N receive the buffered envelopes they
// missed before live ones.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"swing-backtest/internal/model"
)

// RunEvent is the data of a "run" envelope.
type RunEvent struct {
	RunID    string          `json:"run_id"`
	Symbol   string          `json:"symbol"`
	Strategy string          `json:"strategy"`
	Trades   int             `json:"trades"`
	Summary  json.RawMessage `json:"summary"`
}

// Hub fans envelopes out to connected clients. It implements
// model.ResultSink.
type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time

	mu      sync.RWMutex
	clients map[*client]bool
	seq     int64
	replay  *ReplayBuffer
}

// NewHub creates a hub keeping the last replay envelopes for reconnecting
// clients. A nil logger uses slog.Default().
func NewHub(replay int, l *slog.Logger) *Hub {
	if l == nil {
		l = slog.Default()
	}
	return &Hub{
		log: l,
		upgrader: websocket.Upgrader{
			CheckOrigin:       func(r *http.Request) bool { return true },
			EnableCompression: true,
		},
		now:     time.Now,
		clients: make(map[*client]bool),
		replay:  NewReplayBuffer(replay),
	}
}

// Publish broadcasts a finished run.
func (h *Hub) Publish(_ context.Context, r model.RunResult) error {
	data, err := json.Marshal(RunEvent{
		RunID:    r.RunID,
		Symbol:   r.Symbol,
		Strategy: r.Strategy,
		Trades:   len(r.Trades),
		Summary:  r.Summary,
	})
	if err != nil {
		return fmt.Errorf("feed: encode run: %w", err)
	}
	h.Broadcast("run", data)
	return nil
}

// Broadcast sends data to every client as an envelope of the given type.
// Slow clients drop messages rather than block the sender.
func (h *Hub) Broadcast(typ string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++

	buf := make([]byte, 0, len(typ)+len(data)+96)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, typ...)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, h.seq, 10)
	buf = append(buf, `,"ts":"`...)
	buf = h.now().UTC().AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, '}')
	h.replay.Push(h.seq, buf)

	for c := range h.clients {
		select {
		case c.send <- buf:
		default:
			h.log.Warn("[feed] client too slow; message dropped", slog.Int64("seq", h.seq))
		}
	}
}

// Seq returns the sequence number of the last envelope.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var since int64 = -1
	if s := r.URL.Query().Get("since"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			http.Error(w, "since must be an integer", http.StatusBadRequest)
			return
		}
		since = v
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("[feed] ws upgrade", slog.Any("error", err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 64), hub: h}

	// Replay and register under one lock; Broadcast holds the same lock.
	h.mu.Lock()
	if since >= 0 {
		for _, env := range h.replay.After(since) {
			select {
			case c.send <- env:
			default:
			}
		}
	}
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info("[feed] client connected", slog.Int("clients", count))
	go c.writePump()
	go c.readPump()
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}
