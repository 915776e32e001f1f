// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package ffi

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrSubscriptionClosed is returned by Next and WaitFor after the
// subscription has been closed, once any already-queued events have
// been drained.
var ErrSubscriptionClosed = errors.New("ffi: subscription closed")

// Subscription is one subscriber's independent, strictly FIFO view of
// the client's event feed. Queues grow without bound; backpressure,
// where needed, lives a layer up (the room's acknowledged secondary
// broadcast).
//
// Subscribe BEFORE issuing a request whose result you intend to
// observe — the feed does not replay, and a result broadcast before
// the subscription exists is gone.
type Subscription struct {
	client *Client
	id     uint64

	mu     sync.Mutex
	queue  []*Event
	closed bool

	// ready carries a wake-up token. Capacity 1: publish does a
	// non-blocking send, Next re-checks the queue after every
	// receive, so a single token covers any number of pending
	// events.
	ready chan struct{}
}

// publish appends one event. No-op after Close. Called only by the
// client's pump goroutine.
func (s *Subscription) publish(event *Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, event)
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Next blocks until the next event is available, the context is
// cancelled, or the subscription is closed with an empty queue.
// Events already queued at Close time are still delivered.
func (s *Subscription) Next(ctx context.Context) (*Event, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			event := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return event, nil
		}
		if s.closed {
			s.mu.Unlock()
			return nil, ErrSubscriptionClosed
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("ffi: waiting for next event: %w", ctx.Err())
		case <-s.ready:
		}
	}
}

// WaitFor drains the queue, discarding events the predicate rejects,
// until a match arrives. This is the sole correlation mechanism for
// async results: there is no request table. Discarded events are gone
// from THIS subscription only; other subscribers have their own
// queues.
func (s *Subscription) WaitFor(ctx context.Context, predicate func(*Event) bool) (*Event, error) {
	for {
		event, err := s.Next(ctx)
		if err != nil {
			return nil, err
		}
		if predicate(event) {
			return event, nil
		}
	}
}

// Close detaches the subscription from the client and wakes any
// blocked Next. Idempotent; safe to call concurrently with delivery.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.client != nil {
		s.client.unsubscribe(s.id)
	}

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// ResultMatcher returns a WaitFor predicate matching the result event
// carrying the given correlation id.
func ResultMatcher(asyncID uint64) func(*Event) bool {
	return func(event *Event) bool {
		id, ok := event.AsyncID()
		return ok && id == asyncID
	}
}
