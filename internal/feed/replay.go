package feed

import (
	"sync"

	"swing-backtest/internal/ringbuf"
)

type replayEntry struct {
	seq  int64
	data []byte
}

// ReplayBuffer keeps the most recent envelopes for clients that reconnect
// with a known sequence number. Safe for concurrent use.
type ReplayBuffer struct {
	mu   sync.RWMutex
	ring *ringbuf.Ring[replayEntry]
}

// NewReplayBuffer keeps up to capacity envelopes; capacity <= 0 means 100.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 100
	}
	return &ReplayBuffer{ring: ringbuf.New[replayEntry](capacity)}
}

// Push stores an envelope, evicting the oldest when full. data must not be
// modified afterwards.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	rb.mu.Lock()
	rb.ring.Push(replayEntry{seq: seq, data: data})
	rb.mu.Unlock()
}

// After returns the envelopes with seq > since, oldest first.
func (rb *ReplayBuffer) After(since int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out [][]byte
	rb.ring.Each(func(e replayEntry) {
		if e.seq > since {
			out = append(out, e.data)
		}
	})
	return out
}

// Len returns the number of buffered envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.ring.Len()
}
