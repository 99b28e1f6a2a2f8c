// Package hub implements the bounded fan-out channel between publisher
// sessions and consumer sessions.
//
// Events are written into a fixed-size ring and stamped with a sequence
// number. Each Receiver keeps its own cursor into the ring, so a slow consumer
// never holds back the publisher or other consumers: once it falls more than
// the ring capacity behind, its next read reports how many events it missed
// and it resumes from the oldest event still retained.
package hub

import (
	"errors"
	"fmt"
	"sync"

	"github.com/humanophone/humanophone/internal/metrics"
	"github.com/humanophone/humanophone/internal/protocol"
)

// DefaultCapacity is the ring size used when none is configured.
const DefaultCapacity = 64

var (
	// ErrNoSubscribers is returned by Publish when nobody is listening. The
	// event is dropped; callers treat this as a warning.
	ErrNoSubscribers = errors.New("hub: no subscribers")

	// ErrEmpty is returned by TryRecv when no event is pending.
	ErrEmpty = errors.New("hub: no pending event")

	// ErrClosed is returned once the hub or receiver is closed and drained.
	ErrClosed = errors.New("hub: closed")
)

// LaggedError reports events a receiver missed because it fell behind.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("hub: receiver lagged, %d events skipped", e.Skipped)
}

var closedCh = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

type Hub struct {
	mu     sync.Mutex
	buf    []protocol.Message
	head   uint64 // sequence number of the next event
	subs   map[*Receiver]struct{}
	wake   chan struct{}
	closed bool
}

// New creates a hub retaining the last capacity events. capacity <= 0 uses
// DefaultCapacity.
func New(capacity int) *Hub {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Hub{
		buf:  make([]protocol.Message, capacity),
		subs: make(map[*Receiver]struct{}),
		wake: make(chan struct{}),
	}
}

// Capacity returns the ring size.
func (h *Hub) Capacity() int { return len(h.buf) }

// SubscriberCount returns the number of open receivers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish appends msg to the ring and wakes every receiver. It never blocks.
func (h *Hub) Publish(msg protocol.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if len(h.subs) == 0 {
		metrics.HubEventsDropped.Inc()
		return ErrNoSubscribers
	}

	h.buf[h.head%uint64(len(h.buf))] = msg
	h.head++
	close(h.wake)
	h.wake = make(chan struct{})

	metrics.HubEventsPublished.WithLabelValues(string(msg.Type())).Inc()
	return nil
}

// Subscribe returns a receiver positioned at the current head: it sees every
// event published from now on.
func (h *Hub) Subscribe() *Receiver {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := &Receiver{hub: h, cursor: h.head}
	if h.closed {
		r.closed = true
		return r
	}
	h.subs[r] = struct{}{}
	metrics.HubSubscribers.Inc()
	return r
}

// Close wakes all receivers and rejects further publishes. Receivers may still
// drain events that were already published.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	close(h.wake)
}

// Receiver is one consumer's read position in the hub. It is meant to be used
// from a single goroutine.
type Receiver struct {
	hub    *Hub
	cursor uint64
	closed bool
}

// Ready returns a channel that is closed when TryRecv will not return ErrEmpty.
// Fetch a fresh channel after each TryRecv.
func (r *Receiver) Ready() <-chan struct{} {
	h := r.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if r.closed || h.closed || r.cursor < h.head {
		return closedCh
	}
	return h.wake
}

// TryRecv returns the next event without blocking. It returns a *LaggedError
// once if events were overwritten before being read, ErrEmpty when nothing is
// pending, and ErrClosed after the hub or receiver is closed and drained.
func (r *Receiver) TryRecv() (protocol.Message, error) {
	h := r.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if r.cursor < h.head {
		capacity := uint64(len(h.buf))
		var oldest uint64
		if h.head > capacity {
			oldest = h.head - capacity
		}
		if r.cursor < oldest {
			skipped := oldest - r.cursor
			r.cursor = oldest
			metrics.HubEventsSkipped.Add(float64(skipped))
			return nil, &LaggedError{Skipped: skipped}
		}
		msg := h.buf[r.cursor%capacity]
		r.cursor++
		return msg, nil
	}
	if h.closed {
		return nil, ErrClosed
	}
	return nil, ErrEmpty
}

// Close unsubscribes the receiver. It is safe to call more than once.
func (r *Receiver) Close() {
	h := r.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if _, ok := h.subs[r]; ok {
		delete(h.subs, r)
		metrics.HubSubscribers.Dec()
	}
}
