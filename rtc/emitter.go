// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package rtc

import "sync"

// ListenerID names one registered listener for removal.
type ListenerID uint64

// On registers fn for the event type E on the room. Listeners for a
// kind run in registration order, synchronously on the dispatch loop:
// a listener that blocks delays every subsequent event for the
// session. That is deliberate — it is what makes delivery ordered.
//
//	rtc.On(room, func(ev rtc.ParticipantConnected) { ... })
func On[E Event](room *Room, fn func(E)) ListenerID {
	var zero E
	return room.emitter.register(zero.Kind(), func(event Event) {
		fn(event.(E))
	})
}

// emitter is the per-room listener registry: typed callback lists
// keyed by event kind.
type emitter struct {
	mu        sync.Mutex
	nextID    ListenerID
	listeners map[EventKind][]listenerEntry
}

type listenerEntry struct {
	id ListenerID
	fn func(Event)
}

func newEmitter() *emitter {
	return &emitter{listeners: make(map[EventKind][]listenerEntry)}
}

func (e *emitter) register(kind EventKind, fn func(Event)) ListenerID {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	e.listeners[kind] = append(e.listeners[kind], listenerEntry{id: e.nextID, fn: fn})
	return e.nextID
}

func (e *emitter) remove(id ListenerID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for kind, entries := range e.listeners {
		for i, entry := range entries {
			if entry.id == id {
				e.listeners[kind] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// emit invokes every listener registered for the event's kind, in
// registration order. The listener slice is snapshotted under the
// lock so listeners may register or remove listeners reentrantly;
// such changes take effect from the next emission.
func (e *emitter) emit(event Event) {
	e.mu.Lock()
	entries := append([]listenerEntry(nil), e.listeners[event.Kind()]...)
	e.mu.Unlock()

	for _, entry := range entries {
		entry.fn(event)
	}
}
