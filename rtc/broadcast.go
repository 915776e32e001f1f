// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/atrium-rtc/atrium/ffi"
)

// broadcast is the room's secondary, acknowledged fan-out of raw room
// events, downstream of mirror mutation. Unlike the ffi bus it has
// backpressure: publish delivers to every subscriber, and the
// dispatch loop then waits until every delivered event has been
// acknowledged before pulling the next primary event. One stuck
// subscriber stalls the session — bounded memory, at the cost of
// throughput.
type broadcast struct {
	mu   sync.Mutex
	cond *sync.Cond

	subs   map[uint64]*RoomSubscription
	nextID uint64

	// outstanding counts delivered-but-unacknowledged events across
	// all subscribers.
	outstanding int
}

func newBroadcast() *broadcast {
	b := &broadcast{subs: make(map[uint64]*RoomSubscription)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// RoomSubscription is one subscriber's view of a room's secondary
// broadcast. Consume with Next, then Ack each event once processed;
// the room's dispatch loop does not advance past events you have not
// acknowledged. Close when done — an abandoned unclosed subscription
// stalls the session.
type RoomSubscription struct {
	b  *broadcast
	id uint64

	queue   []*ffi.RoomEvent
	unacked int
	closed  bool

	// ready carries a wake-up token for Next, capacity 1.
	ready chan struct{}
}

func (b *broadcast) subscribe() *RoomSubscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &RoomSubscription{
		b:     b,
		id:    b.nextID,
		ready: make(chan struct{}, 1),
	}
	b.subs[sub.id] = sub
	return sub
}

// publish delivers one event to every subscriber. Called only by the
// dispatch loop.
func (b *broadcast) publish(event *ffi.RoomEvent) {
	b.mu.Lock()
	subs := make([]*RoomSubscription, 0, len(b.subs))
	for _, sub := range b.subs {
		sub.queue = append(sub.queue, event)
		sub.unacked++
		b.outstanding++
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ready <- struct{}{}:
		default:
		}
	}
}

// wait blocks until every delivered event has been acknowledged.
// Deliberately context-free: the stall is the flow-control contract.
func (b *broadcast) wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.outstanding > 0 {
		b.cond.Wait()
	}
}

// close tears down every subscriber, forgiving their unacknowledged
// events. Called when the dispatch loop ends.
func (b *broadcast) close() {
	b.mu.Lock()
	subs := make([]*RoomSubscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// Next blocks until the next event is available, the context is
// cancelled, or the subscription is closed.
func (s *RoomSubscription) Next(ctx context.Context) (*ffi.RoomEvent, error) {
	for {
		s.b.mu.Lock()
		if len(s.queue) > 0 {
			event := s.queue[0]
			s.queue = s.queue[1:]
			s.b.mu.Unlock()
			return event, nil
		}
		closed := s.closed
		s.b.mu.Unlock()
		if closed {
			return nil, ffi.ErrSubscriptionClosed
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rtc: waiting for room event: %w", ctx.Err())
		case <-s.ready:
		}
	}
}

// Ack acknowledges one consumed event, releasing the dispatch loop's
// backpressure hold for it. Acknowledging more events than were
// delivered is a defect.
func (s *RoomSubscription) Ack() {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	if s.unacked <= 0 {
		panic("rtc: RoomSubscription.Ack without a delivered event")
	}
	s.unacked--
	s.b.outstanding--
	if s.b.outstanding == 0 {
		s.b.cond.Broadcast()
	}
}

// Close removes the subscription, forgiving its unacknowledged
// events. Idempotent.
func (s *RoomSubscription) Close() {
	s.b.mu.Lock()
	if s.closed {
		s.b.mu.Unlock()
		return
	}
	s.closed = true
	s.b.outstanding -= s.unacked
	s.unacked = 0
	s.queue = nil
	delete(s.b.subs, s.id)
	if s.b.outstanding == 0 {
		s.b.cond.Broadcast()
	}
	s.b.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}
