package camera

import "sync/atomic"

// SubscriberSink is a one-producer/one-consumer bounded delivery channel of
// EncodedFrame, capacity 1. Capacity must stay 1: it guarantees a
// slow peer is dropped rather than allowed to accumulate latency.
//
// Only the worker goroutine ever closes the underlying channel; the
// consumer side only ever sets the dead flag. This keeps "close a channel
// exactly once" a single-writer invariant instead of a race between the
// producer's send and the consumer's drop.
type SubscriberSink struct {
	ch        chan EncodedFrame
	dead      atomic.Bool // set by the consumer to request eviction
	closeOnce atomic.Bool // guards the single close(ch)
}

func newSink() *SubscriberSink {
	return &SubscriberSink{ch: make(chan EncodedFrame, 1)}
}

// send delivers frame to the sink without blocking. It reports false if the
// consumer asked to be dropped, or if the single slot is already full — the
// worker treats both as "evict this sink". A full slot
// is left as-is rather than drained: the next Recv by a live consumer still
// gets the frame that is there, and the failed send is what triggers
// eviction, not data loss.
func (s *SubscriberSink) send(frame EncodedFrame) bool {
	if s.dead.Load() {
		return false
	}
	select {
	case s.ch <- frame:
		return true
	default:
		return false
	}
}

// evict closes the channel, unblocking any pending Recv with ok=false.
// Called by the worker only, after a failed send or on shutdown. Safe to
// call more than once.
func (s *SubscriberSink) evict() {
	if s.closeOnce.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

// SubscriberConsumer is the consumer-facing handle returned by
// Registry.Subscribe. Dropping it (calling Close) is the only cancellation
// path from the async side into the blocking worker: the worker observes
// the dead flag on its next send attempt and evicts the sink.
type SubscriberConsumer struct {
	sink *SubscriberSink
}

// Recv returns the next frame, or ok=false once the sink has closed (the
// worker evicted it or the camera shut down).
func (c *SubscriberConsumer) Recv() (EncodedFrame, bool) {
	f, ok := <-c.sink.ch
	return f, ok
}

// Close drops this subscription. Idempotent. The sink is not evicted
// synchronously — the worker closes it on its next iteration once it
// observes the dead flag: dropping the consumer end of a sink causes the
// next producer send to fail.
func (c *SubscriberConsumer) Close() {
	c.sink.dead.Store(true)
}
