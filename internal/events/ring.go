package events

import "sync/atomic"

// Ring is a bounded channel-like buffer with drop-oldest semantics.
//
// It wraps an underlying buffered channel and ensures the producer never
// blocks: if the buffer is full, the oldest element is discarded and counted.
// Buffering without bound is deliberately impossible; the drop counter is the
// observability surface for overflow.
//
// Writers use Send. Readers can use C() for a normal <-chan T, or Receive()
// for delivery tracking.
type Ring[T any] struct {
	ch    chan T
	stats Stats // lock-free counters
}

// NewRing creates a Ring with the given capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("events: ring capacity must be > 0")
	}
	return &Ring[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
// Consumers can range over this until it's closed.
//
// Reads via C() bypass the Delivered counter; use Receive() when delivery
// accounting matters.
func (r *Ring[T]) C() <-chan T {
	return r.ch
}

// Send inserts an item without ever blocking. If the buffer is full the
// oldest element is discarded. Returns true when an element was dropped.
func (r *Ring[T]) Send(v T) bool {
	dropped := false

	select {
	case r.ch <- v:
		r.stats.addSent(1)
	default:
		select {
		case <-r.ch: // drop oldest
			r.stats.addDropped(1)
			dropped = true
		default:
		}
		r.ch <- v
		r.stats.addSent(1)
	}

	return dropped
}

// Receive blocks until a value is available or the channel is closed.
// The ok result is false if the channel is closed and drained.
func (r *Ring[T]) Receive() (v T, ok bool) {
	v, ok = <-r.ch
	if ok {
		r.stats.addDelivered(1)
	}
	return
}

// TryReceive attempts a non-blocking receive.
// Returns (zero, false) if no value is ready.
func (r *Ring[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-r.ch:
		if ok {
			r.stats.addDelivered(1)
		}
		return
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int {
	return len(r.ch)
}

// Cap returns the buffer capacity.
func (r *Ring[T]) Cap() int {
	return cap(r.ch)
}

// Close closes the underlying channel. After this, Send panics.
func (r *Ring[T]) Close() {
	close(r.ch)
}

// Stats returns a snapshot of the counters. All reads are atomic.
func (r *Ring[T]) Stats() Stats {
	return Stats{
		Sent:      atomic.LoadInt64(&r.stats.Sent),
		Dropped:   atomic.LoadInt64(&r.stats.Dropped),
		Delivered: atomic.LoadInt64(&r.stats.Delivered),
	}
}

// Stats provides lock-free counters for a Ring.
type Stats struct {
	Sent      int64
	Dropped   int64
	Delivered int64
}

func (s *Stats) addSent(n int) {
	atomic.AddInt64(&s.Sent, int64(n))
}

func (s *Stats) addDropped(n int) {
	atomic.AddInt64(&s.Dropped, int64(n))
}

func (s *Stats) addDelivered(n int) {
	atomic.AddInt64(&s.Delivered, int64(n))
}
