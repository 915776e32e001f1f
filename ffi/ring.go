// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package ffi

import "sync"

// DefaultRingSize is the default diagnostic ring capacity. 256 recent
// event digests is enough to reconstruct the tail of a session when
// debugging a dispatch fault.
const DefaultRingSize = 256

// EventDigest is one ring entry: enough to identify an event without
// retaining its payload (payloads may pin owned buffers).
type EventDigest struct {
	// Sequence is the 1-based position of the event in the feed since
	// the client started.
	Sequence uint64

	// Kind is the top-level event kind.
	Kind EventKind

	// Detail refines Kind: the room event kind's name for room
	// events, the stream event's handle for stream events, empty
	// otherwise.
	Detail string

	// AsyncID is the correlation id for result events, zero otherwise.
	AsyncID uint64
}

// eventRing is a fixed-size circular buffer of event digests, written
// by the pump on every decoded event. Snapshot returns the retained
// tail oldest-first.
type eventRing struct {
	mu       sync.Mutex
	digests  []EventDigest
	capacity int
	next     int
	total    uint64
}

func newEventRing(capacity int) *eventRing {
	return &eventRing{
		digests:  make([]EventDigest, capacity),
		capacity: capacity,
	}
}

// record appends one digest, overwriting the oldest entry when full,
// and returns the event's sequence number.
func (r *eventRing) record(digest EventDigest) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	digest.Sequence = r.total
	r.digests[r.next] = digest
	r.next = (r.next + 1) % r.capacity
	return r.total
}

// snapshot returns the retained digests, oldest first.
func (r *eventRing) snapshot() []EventDigest {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := r.total
	if stored > uint64(r.capacity) {
		stored = uint64(r.capacity)
	}

	result := make([]EventDigest, 0, stored)
	start := (r.next - int(stored) + r.capacity) % r.capacity
	for i := 0; i < int(stored); i++ {
		result = append(result, r.digests[(start+i)%r.capacity])
	}
	return result
}
