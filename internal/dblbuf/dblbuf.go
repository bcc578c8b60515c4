// Package dblbuf hands objects from one producer goroutine to one consumer
// goroutine through two slots, without ever blocking either side.
package dblbuf

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Buffer is a two-slot exchange. Insert must only be called from the
// producer and Read only from the consumer.
//
// The producer drops an object instead of waiting when its slot is busy.
// The consumer never sees an object twice, and the stamps of the objects
// it reads are strictly increasing.
type Buffer[T any] struct {
	copyFn  func(T) T
	release func(T)

	locks   [2]sync.Mutex
	objects [2]T
	held    [2]bool
	stamps  [2]atomic.Int64

	writeCount atomic.Int64
	dropped    atomic.Int64

	// consumer only
	readCount int64
}

// New creates a buffer. copyFn produces the consumer's private copy of a
// slot object and is required. release is called on objects the buffer
// discards and may be nil.
func New[T any](copyFn func(T) T, release func(T)) (*Buffer[T], error) {
	if copyFn == nil {
		return nil, errors.New("dblbuf: copy function is required")
	}
	if release == nil {
		release = func(T) {}
	}

	b := &Buffer[T]{copyFn: copyFn, release: release}
	b.stamps[0].Store(-1)
	b.stamps[1].Store(-1)
	return b, nil
}

// Insert stores obj in the next slot. It reports false when the slot was
// being read, in which case obj is released and dropped.
func (b *Buffer[T]) Insert(obj T) bool {
	wc := b.writeCount.Load()
	idx := int(wc % 2)

	if !b.locks[idx].TryLock() {
		b.dropped.Add(1)
		b.release(obj)
		return false
	}

	if b.held[idx] {
		b.release(b.objects[idx])
	}
	b.objects[idx] = obj
	b.held[idx] = true
	b.stamps[idx].Store(wc)
	b.writeCount.Store(wc + 1)

	b.locks[idx].Unlock()
	return true
}

// Read returns a copy of an object newer than anything read before. The
// second result is false when nothing new is available or both slots are
// busy.
func (b *Buffer[T]) Read() (T, bool) {
	var zero T

	wc := b.writeCount.Load()
	if wc < 1 {
		return zero, false
	}

	idx := int(b.readCount % 2)
	if b.stamps[idx].Load() < b.readCount {
		idx = 1 - idx
	}

	if !b.locks[idx].TryLock() {
		if wc < 2 {
			return zero, false
		}
		idx = 1 - idx
		if b.stamps[idx].Load() < b.readCount {
			return zero, false
		}
		if !b.locks[idx].TryLock() {
			return zero, false
		}
	}
	defer b.locks[idx].Unlock()

	stamp := b.stamps[idx].Load()
	if !b.held[idx] || stamp < b.readCount {
		return zero, false
	}

	out := b.copyFn(b.objects[idx])
	b.readCount = stamp + 1
	return out, true
}

// Count returns the number of objects inserted so far.
func (b *Buffer[T]) Count() int64 { return b.writeCount.Load() }

// Dropped returns the number of objects Insert discarded.
func (b *Buffer[T]) Dropped() int64 { return b.dropped.Load() }

// Close releases any objects still held. Neither side may use the buffer
// afterwards.
func (b *Buffer[T]) Close() {
	for i := range b.objects {
		b.locks[i].Lock()
		if b.held[i] {
			b.release(b.objects[i])
			b.held[i] = false
		}
		b.locks[i].Unlock()
	}
}
