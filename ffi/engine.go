// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package ffi

import "context"

// Engine is the native media engine as seen from Go: a synchronous
// request entry point, a drop entry point for resource handles, and a
// callback-driven event feed. Implementations must be safe for
// concurrent use.
//
// The feed is process-wide: events for every session arrive on the
// one sink, in the order the engine emitted them. Consumers filter by
// handle; nothing here assumes more than "one event at a time, FIFO,
// tagged by kind".
type Engine interface {
	// Request submits one serialized Request and returns the
	// serialized Ack. The engine processes the request asynchronously;
	// its eventual result arrives on the event feed carrying the
	// Ack's async id.
	Request(ctx context.Context, data []byte) ([]byte, error)

	// Drop releases one engine-side resource handle. Dropping an
	// unknown handle is a defect in the caller, not the engine.
	Drop(handle uint64)

	// Start begins event delivery. The sink is invoked serially, one
	// event at a time; the engine owns the payload memory only for
	// the duration of the call.
	Start(sink func(data []byte)) error

	// Close shuts the engine down. No sink calls happen after Close
	// returns.
	Close() error
}

// Dropper is the subset of Engine needed to release a handle. Handles
// and owned-buffer reads depend only on this.
type Dropper interface {
	Drop(handle uint64)
}
