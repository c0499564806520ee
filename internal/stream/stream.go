// Package stream provides a single-writer, multi-reader incremental value
// channel with exactly-once terminal settlement.
//
// A Channel carries a stream of deltas followed by exactly one terminal
// event: either a final value (Done) or a failure (Fail). Readers attach at
// any time and observe, in emission order, every event published after
// attachment; a reader attaching after settlement observes the terminal
// event immediately.
package stream

import (
	"context"
	"errors"
	"sync"
)

// Sentinel errors for channel protocol violations. These indicate
// programmer error (a writer breaking the single-settlement contract),
// not recoverable runtime conditions.
var (
	// ErrClosed is returned by Update after the channel has settled.
	ErrClosed = errors.New("stream: update on settled channel")

	// ErrSettled is returned by Done or Fail after the channel has settled.
	ErrSettled = errors.New("stream: channel already settled")
)

// EventKind discriminates the events a reader observes.
type EventKind int

const (
	// Delta carries an incremental value.
	Delta EventKind = iota
	// Done carries the final value; always the last event on success.
	Done
	// Failed carries the terminal error; always the last event on failure.
	Failed
)

// Event is a single observation from a Channel.
type Event[T any] struct {
	Kind  EventKind
	Value T     // set for Delta and Done
	Err   error // set for Failed
}

// Channel is a write-once-settled value stream.
// The zero value is not usable; call New.
type Channel[T any] struct {
	mu      sync.Mutex
	events  []Event[T]
	settled bool
	wake    chan struct{}
}

// New creates an open channel.
func New[T any]() *Channel[T] {
	return &Channel[T]{wake: make(chan struct{})}
}

// Update publishes an incremental value.
// Returns ErrClosed if the channel has settled.
func (c *Channel[T]) Update(delta T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settled {
		return ErrClosed
	}
	c.publish(Event[T]{Kind: Delta, Value: delta})
	return nil
}

// Done settles the channel with a final value.
// Returns ErrSettled if a terminal event was already published.
func (c *Channel[T]) Done(final T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settled {
		return ErrSettled
	}
	c.settled = true
	c.publish(Event[T]{Kind: Done, Value: final})
	return nil
}

// Fail settles the channel with an error. Mutually exclusive with Done.
func (c *Channel[T]) Fail(cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.settled {
		return ErrSettled
	}
	c.settled = true
	c.publish(Event[T]{Kind: Failed, Err: cause})
	return nil
}

// Settled reports whether a terminal event has been published.
func (c *Channel[T]) Settled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settled
}

// publish appends an event and wakes all waiting readers.
// Caller must hold c.mu.
func (c *Channel[T]) publish(ev Event[T]) {
	c.events = append(c.events, ev)
	close(c.wake)
	c.wake = make(chan struct{})
}

// Reader observes events from a Channel in emission order.
// A Reader is not safe for concurrent use; create one per consumer.
type Reader[T any] struct {
	ch  *Channel[T]
	pos int
	eof bool
}

// Subscribe attaches a reader at the current position of the stream.
// Deltas published before attachment are not replayed; if the channel has
// already settled, the reader's position is set so that only the terminal
// event is observed.
func (c *Channel[T]) Subscribe() *Reader[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos := len(c.events)
	if c.settled {
		// Replay only the terminal event for late subscribers.
		pos = len(c.events) - 1
	}
	return &Reader[T]{ch: c, pos: pos}
}

// Next blocks until the next event is available or ctx is canceled.
// After the terminal event has been delivered, ok is false.
func (r *Reader[T]) Next(ctx context.Context) (ev Event[T], ok bool, err error) {
	if r.eof {
		return Event[T]{}, false, nil
	}
	for {
		r.ch.mu.Lock()
		if r.pos < len(r.ch.events) {
			ev = r.ch.events[r.pos]
			r.pos++
			r.ch.mu.Unlock()
			if ev.Kind != Delta {
				r.eof = true
			}
			return ev, true, nil
		}
		wake := r.ch.wake
		r.ch.mu.Unlock()

		select {
		case <-ctx.Done():
			return Event[T]{}, false, ctx.Err()
		case <-wake:
		}
	}
}

// Drain consumes the remainder of the stream, invoking onDelta for every
// delta, and returns the final value. It returns the terminal error if the
// channel failed. onDelta may be nil.
func (r *Reader[T]) Drain(ctx context.Context, onDelta func(T)) (T, error) {
	var zero T
	for {
		ev, ok, err := r.Next(ctx)
		if err != nil {
			return zero, err
		}
		if !ok {
			return zero, nil
		}
		switch ev.Kind {
		case Delta:
			if onDelta != nil {
				onDelta(ev.Value)
			}
		case Done:
			return ev.Value, nil
		case Failed:
			return zero, ev.Err
		}
	}
}
