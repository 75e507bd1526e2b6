// Package ringbuf provides a fixed-capacity sliding window used by the
// indicators and trackers. Pushing into a full window evicts the oldest
// value, so the window always holds the most recent Cap() values.
package ringbuf

// Ring is a fixed-size FIFO window over values of type T.
// Capacity is rounded up to a power of two internally for fast bitwise
// modulo, but Cap() reports the requested size.
type Ring[T any] struct {
	buf  []T
	mask uint64
	size int // requested capacity

	head uint64 // next write position
	tail uint64 // oldest element
}

// New creates a window holding at most capacity values.
// It panics if capacity < 1.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		panic("ringbuf: capacity must be >= 1")
	}
	n := nextPow2(capacity)
	return &Ring[T]{
		buf:  make([]T, n),
		mask: uint64(n - 1),
		size: capacity,
	}
}

// Push appends v. When the window is already full the oldest value is
// removed and returned with evicted=true.
func (r *Ring[T]) Push(v T) (old T, evicted bool) {
	if r.Full() {
		old = r.buf[r.tail&r.mask]
		r.tail++
		evicted = true
	}
	r.buf[r.head&r.mask] = v
	r.head++
	return old, evicted
}

// At returns the i-th value, 0 being the oldest. It panics when i is out
// of range, like a slice index.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.Len() {
		panic("ringbuf: index out of range")
	}
	return r.buf[(r.tail+uint64(i))&r.mask]
}

// Each calls fn for every value from oldest to newest.
func (r *Ring[T]) Each(fn func(v T)) {
	for i := r.tail; i < r.head; i++ {
		fn(r.buf[i&r.mask])
	}
}

// Len returns the current number of values.
func (r *Ring[T]) Len() int {
	return int(r.head - r.tail)
}

// Cap returns the window capacity.
func (r *Ring[T]) Cap() int {
	return r.size
}

// Full reports whether Len() == Cap().
func (r *Ring[T]) Full() bool {
	return r.Len() >= r.size
}

// Reset empties the window.
func (r *Ring[T]) Reset() {
	clear(r.buf)
	r.head, r.tail = 0, 0
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
