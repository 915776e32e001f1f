// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

// Package rtc is Atrium's application-facing SDK surface: connected
// sessions ([Room]), the participants in them, and the tracks they
// publish.
//
// A Room is a mirror. The engine owns the authoritative session state
// and reports every change as an event on the shared feed; the Room's
// dispatch loop — one goroutine per session, the sole mutator of that
// session's graph — decodes each event in feed order, updates the
// local mirrors (participants, publications, tracks), and fans the
// result out to registered listeners via [On]. Listener emission for
// one event completes before the next event is fetched, so listeners
// observe a consistent, ordered view.
//
// After the mirrors are updated, each raw event is republished on the
// Room's acknowledged secondary broadcast ([Room.Subscribe]): the
// loop waits for every secondary subscriber to acknowledge before
// pulling the next event, giving downstream consumers (recorders,
// subscription gating) ordering plus flow control at the cost of
// session throughput.
//
// Actions (connect, publish, mute, data) are requests through the
// [ffi] gateway, correlated to their async results by predicate wait
// on an ephemeral subscription opened before the request is sent.
package rtc
