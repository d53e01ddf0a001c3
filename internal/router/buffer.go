package router

import (
	"sync"

	"github.com/gammazero/deque"
)

// GrowableBuffer is an unbounded thread-safe FIFO. Senders never block;
// Receive blocks until an item arrives or the buffer is closed.
type GrowableBuffer[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  deque.Deque[T]
	closed bool

	// Stats
	initialCapacity int
	highWater       int
	totalReceived   int64
	totalSent       int64
}

// NewGrowableBuffer creates a buffer. initialCapacity is a sizing hint
// reported in Stats; the buffer grows as needed.
func NewGrowableBuffer[T any](initialCapacity int) *GrowableBuffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &GrowableBuffer[T]{
		initialCapacity: initialCapacity,
	}
	b.queue.SetMinCapacity(minCapacityExp(initialCapacity))
	b.cond = sync.NewCond(&b.mu)
	return b
}

// minCapacityExp returns the power-of-two exponent that covers n.
func minCapacityExp(n int) uint {
	var exp uint
	for (1 << exp) < n {
		exp++
	}
	return exp
}

// Send appends an item. Returns false if the buffer is closed.
func (b *GrowableBuffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	b.queue.PushBack(item)
	b.totalReceived++
	if n := b.queue.Len(); n > b.highWater {
		b.highWater = n
	}

	b.cond.Signal()
	return true
}

// Receive removes and returns the oldest item.
// Blocks until an item is available or the buffer is closed.
// Returns the item and true, or zero value and false if closed and empty.
func (b *GrowableBuffer[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.queue.Len() == 0 && !b.closed {
		b.cond.Wait()
	}

	if b.queue.Len() == 0 {
		var zero T
		return zero, false
	}

	b.totalSent++
	return b.queue.PopFront(), true
}

// TryReceive attempts to receive without blocking.
func (b *GrowableBuffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.queue.Len() == 0 {
		var zero T
		return zero, false
	}

	b.totalSent++
	return b.queue.PopFront(), true
}

// DrainTo removes up to max items (all items if max <= 0) without blocking.
func (b *GrowableBuffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.queue.Len()
	if n == 0 {
		return nil
	}
	if max > 0 && max < n {
		n = max
	}

	result := make([]T, n)
	for i := 0; i < n; i++ {
		result[i] = b.queue.PopFront()
	}
	b.totalSent += int64(n)

	return result
}

// Close closes the buffer. After closing, Send returns false.
// Receivers will get remaining items then receive closed signal.
func (b *GrowableBuffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (b *GrowableBuffer[T]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Len returns the current number of items in the buffer.
func (b *GrowableBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Len()
}

// Stats returns buffer statistics.
func (b *GrowableBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:           b.queue.Len(),
		InitialCapacity: b.initialCapacity,
		HighWater:       b.highWater,
		TotalReceived:   b.totalReceived,
		TotalSent:       b.totalSent,
	}
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count           int
	InitialCapacity int
	HighWater       int // largest Count observed
	TotalReceived   int64
	TotalSent       int64
}
