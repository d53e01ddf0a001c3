package router

import (
	"log/slog"
	"sync"
)

// Dispatcher fans decoded events out to named consumer buffers. Each
// consumer drains its own GrowableBuffer, so a slow consumer never blocks
// the session or other consumers.
type Dispatcher struct {
	logger *slog.Logger

	mu        sync.RWMutex
	subs      map[string]*GrowableBuffer[Event]
	published int64
	delivered int64
	closed    bool
}

// DispatcherStats contains runtime statistics.
type DispatcherStats struct {
	Published int64
	Delivered int64
	Buffers   map[string]BufferStats
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger: logger,
		subs:   make(map[string]*GrowableBuffer[Event]),
	}
}

// Subscribe registers a consumer and returns its buffer. Subscribing an
// existing name returns the existing buffer.
func (d *Dispatcher) Subscribe(name string, size int) *GrowableBuffer[Event] {
	d.mu.Lock()
	defer d.mu.Unlock()

	if buf, ok := d.subs[name]; ok {
		return buf
	}

	buf := NewGrowableBuffer[Event](size)
	if d.closed {
		buf.Close()
	}
	d.subs[name] = buf
	d.logger.Debug("dispatcher consumer added", "name", name, "buffer", size)
	return buf
}

// Unsubscribe removes a consumer and closes its buffer.
func (d *Dispatcher) Unsubscribe(name string) {
	d.mu.Lock()
	buf, ok := d.subs[name]
	delete(d.subs, name)
	d.mu.Unlock()

	if ok {
		buf.Close()
	}
}

// Publish copies ev into every consumer buffer and returns how many
// accepted it.
func (d *Dispatcher) Publish(ev Event) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.published++
	n := 0
	for _, buf := range d.subs {
		if buf.Send(ev) {
			n++
		}
	}
	d.delivered += int64(n)
	return n
}

// Handler adapts the dispatcher to a session message handler.
func (d *Dispatcher) Handler() func(Event) {
	return func(ev Event) {
		d.Publish(ev)
	}
}

// Close closes every consumer buffer. Consumers drain what remains.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	for _, buf := range d.subs {
		buf.Close()
	}
}

// Stats returns current statistics.
func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := DispatcherStats{
		Published: d.published,
		Delivered: d.delivered,
		Buffers:   make(map[string]BufferStats, len(d.subs)),
	}
	for name, buf := range d.subs {
		stats.Buffers[name] = buf.Stats()
	}
	return stats
}
