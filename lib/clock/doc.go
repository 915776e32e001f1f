// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling
// time.Now, time.After, time.NewTicker, or time.Sleep directly. In
// production, Real() provides the standard library behavior. In tests,
// Fake() provides a deterministic clock that advances only when
// Advance is called.
//
// When a goroutine calls Sleep, After, or NewTicker on a FakeClock it
// registers a pending waiter. Use WaitForTimers to block until a
// specific number of waiters are registered before calling Advance;
// this eliminates the race between timer registration and time
// advancement that plagues tests synchronized with time.Sleep.
package clock
