package match

import (
	"context"
	"runtime"
	"sync/atomic"
)

// ring is an MPSC ring buffer: any number of producers publish, a single
// consumer goroutine applies events in claim order. The Engine uses it to
// serialize concurrent intent submission into the single-threaded matcher.
type ring[T any] struct {
	// Cache line padding to avoid false sharing between the sequences.
	_           [56]byte
	producerSeq atomic.Int64
	_           [56]byte
	consumerSeq atomic.Int64
	_           [56]byte

	buffer     []T
	bufferMask int64
	capacity   int64

	// published marks slots whose write is visible to the consumer.
	published []int64

	handler func(T)

	isShutdown atomic.Bool
}

// newRing creates a ring buffer. capacity must be a power of two.
func newRing[T any](capacity int64, handler func(T)) *ring[T] {
	if capacity <= 0 || (capacity&(capacity-1)) != 0 {
		panic("ring capacity must be a power of 2")
	}

	r := &ring[T]{
		buffer:     make([]T, capacity),
		published:  make([]int64, capacity),
		capacity:   capacity,
		bufferMask: capacity - 1,
		handler:    handler,
	}

	r.producerSeq.Store(-1)
	r.consumerSeq.Store(-1)
	for i := range r.published {
		r.published[i] = -1
	}

	return r
}

// publish claims a slot, writes the event and marks it visible. Safe for
// concurrent producers; spins while the buffer is full. Events published
// after shutdown are dropped.
func (r *ring[T]) publish(event T) {
	if r.isShutdown.Load() {
		return
	}

	var nextSeq int64
	for {
		currentSeq := r.producerSeq.Load()
		nextSeq = currentSeq + 1

		// The producer may not lap the consumer.
		wrapPoint := nextSeq - r.capacity
		if wrapPoint > r.consumerSeq.Load() {
			runtime.Gosched()
			continue
		}

		if r.producerSeq.CompareAndSwap(currentSeq, nextSeq) {
			break
		}
		runtime.Gosched()
	}

	index := nextSeq & r.bufferMask
	r.buffer[index] = event
	atomic.StoreInt64(&r.published[index], nextSeq)
}

// start launches the consumer goroutine.
func (r *ring[T]) start() {
	go r.consumerLoop()
}

// shutdown stops accepting events and waits until the consumer has applied
// every claimed event, or the context expires.
func (r *ring[T]) shutdown(ctx context.Context) error {
	r.isShutdown.Store(true)

	for {
		select {
		case <-ctx.Done():
			return ErrTimeout
		default:
			if r.consumerSeq.Load() >= r.producerSeq.Load() {
				return nil
			}
			runtime.Gosched()
		}
	}
}

func (r *ring[T]) consumerLoop() {
	nextSeq := r.consumerSeq.Load() + 1

	for {
		availableSeq := r.producerSeq.Load()

		if r.isShutdown.Load() {
			r.drain(nextSeq)
			return
		}

		processed := false
		for nextSeq <= availableSeq {
			index := nextSeq & r.bufferMask

			// Wait for the claimed slot's write to become visible.
			for atomic.LoadInt64(&r.published[index]) != nextSeq {
				runtime.Gosched()
			}

			r.handler(r.buffer[index])
			r.consumerSeq.Store(nextSeq)
			nextSeq++
			processed = true
		}

		if !processed {
			runtime.Gosched()
		}
	}
}

// drain applies every remaining claimed event during shutdown.
func (r *ring[T]) drain(nextSeq int64) {
	availableSeq := r.producerSeq.Load()

	for nextSeq <= availableSeq {
		index := nextSeq & r.bufferMask
		for atomic.LoadInt64(&r.published[index]) != nextSeq {
			runtime.Gosched()
		}

		r.handler(r.buffer[index])
		r.consumerSeq.Store(nextSeq)
		nextSeq++
	}
}

// pending returns the number of claimed but not yet applied events.
func (r *ring[T]) pending() int64 {
	return r.producerSeq.Load() - r.consumerSeq.Load()
}
