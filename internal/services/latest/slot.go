// Package latest implements the single-slot "latest value" primitive shared between
// the analysis context (single writer) and any number of readers.
//
// Readers never block writers: the current value is swapped atomically and readers
// receive an immutable snapshot. Subscribers get a coalescing notification (capacity 1),
// so a slow reader only ever observes the most recent value.
package latest

import (
	"sync"
	"sync/atomic"
)

type entry[T any] struct {
	seq   uint64
	value T
}

// Slot holds the most recently published value. The zero value is ready to use.
type Slot[T any] struct {
	current atomic.Pointer[entry[T]]
	closed  atomic.Bool

	mu     sync.Mutex
	subs   map[int]chan struct{}
	nextID int
}

// Publish replaces the current value when seq is newer than the current one.
// It returns false for stale sequence numbers and after Close.
func (s *Slot[T]) Publish(seq uint64, value T) bool {
	if s.closed.Load() {
		return false
	}

	next := &entry[T]{seq: seq, value: value}
	for {
		cur := s.current.Load()
		if cur != nil && cur.seq >= seq {
			return false
		}
		if s.current.CompareAndSwap(cur, next) {
			break
		}
	}

	s.notify()
	return true
}

// Load returns the current value, its sequence number, and whether anything was published.
func (s *Slot[T]) Load() (T, uint64, bool) {
	cur := s.current.Load()
	if cur == nil {
		var zero T
		return zero, 0, false
	}
	return cur.value, cur.seq, true
}

// Seq returns the sequence number of the current value (0 when empty).
func (s *Slot[T]) Seq() uint64 {
	if cur := s.current.Load(); cur != nil {
		return cur.seq
	}
	return 0
}

// Subscribe returns a channel signalled after every publish and a func that
// unsubscribes. Signals coalesce; the channel is closed by Close.
func (s *Slot[T]) Subscribe() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan struct{}, 1)
	if s.closed.Load() {
		close(ch)
		return ch, func() {}
	}
	if s.subs == nil {
		s.subs = make(map[int]chan struct{})
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	// A subscriber joining late still sees the current value once.
	if s.current.Load() != nil {
		ch <- struct{}{}
	}

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Close stops accepting publishes and closes every subscriber channel.
// The last value stays readable through Load.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Swap(true) {
		return
	}
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

func (s *Slot[T]) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return
	}
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
