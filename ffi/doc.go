// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

// Package ffi is Atrium's boundary to the native media engine.
//
// The engine is an external collaborator: it does the media capture,
// encoding, and transport, and this package only speaks its message
// contract. That contract is small:
//
//   - a synchronous request call: a serialized [Request] goes in, a
//     serialized [Ack] carrying an async correlation id comes back;
//   - a single FIFO event feed: serialized [Event] envelopes, tagged
//     by kind, shared across every session in the process;
//   - opaque numeric handles naming engine-side resources, released
//     with a single drop call.
//
// [Client] wraps an [Engine] with the pieces every caller needs: the
// request gateway, the decode-and-broadcast event pump, and
// per-subscriber FIFO queues ([Subscription]) whose
// [Subscription.WaitFor] is the sole mechanism for correlating an
// async result back to its request. [Handle] and [SharedHandle] give
// engine resources single-owner (or last-holder) release-exactly-once
// semantics.
//
// Two Engine implementations ship here: [MemoryEngine], a scripted
// in-process fake that round-trips every message through the CBOR
// codec, and [DlopenEngine], which binds a real engine shared library
// through purego.
package ffi
