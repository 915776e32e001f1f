// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

// Package record reads and writes session archives: the raw room
// event stream of a session, CBOR-encoded, batched into compressed
// and checksummed segments, optionally encrypted at rest.
//
// [Writer] appends events and flushes segments; [Reader] iterates
// them back in order, verifying every segment checksum. [Recorder]
// taps a live session through its acknowledged event subscription and
// archives everything the dispatch loop processes. A recording can be
// replayed into a fresh session by feeding it through a scripted
// engine.
package record
