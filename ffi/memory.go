// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package ffi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/atrium-rtc/atrium/lib/codec"
)

// Compile-time interface check.
var _ Engine = (*MemoryEngine)(nil)

// ErrEngineClosed is returned by MemoryEngine.Request after Close.
var ErrEngineClosed = errors.New("ffi: engine closed")

// Responder scripts the engine's reaction to one request: the events
// to emit after the acknowledgement. The engine is locked while the
// responder runs; use the engine's Mint* helpers, not its public
// methods, from inside one.
type Responder func(engine *MemoryEngine, asyncID uint64, request *Request) []*Event

// MemoryEngine is a scripted in-process Engine for tests and replay.
// Every request and event round-trips through the CBOR codec, so
// nothing non-serializable can sneak across the boundary.
//
// Behavior is scripted per request kind with Respond; kinds with no
// queued responder get a bare success result of the matching type.
// Events are injected with EmitEvent / EmitRoomEvent. Native buffers
// are emulated by pinning Go allocations and exposing them as
// pointer+length with an owning handle.
type MemoryEngine struct {
	mu         sync.Mutex
	sink       func([]byte)
	closed     bool
	nextAsync  uint64
	nextHandle uint64
	responders map[RequestKind][]Responder

	// drops counts Drop calls per handle. A count above one is a
	// release-exactly-once violation; tests assert on it.
	drops map[uint64]int

	// buffers pins emulated native allocations until dropped.
	buffers map[uint64][]byte

	// requests logs every decoded request in arrival order.
	requests []*Request
}

// NewMemoryEngine creates an idle scripted engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		responders: make(map[RequestKind][]Responder),
		drops:      make(map[uint64]int),
		buffers:    make(map[uint64][]byte),
	}
}

// Start begins event delivery. The sink must be set before any
// request arrives, matching the real engine's initialization order.
func (e *MemoryEngine) Start(sink func([]byte)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sink != nil {
		return fmt.Errorf("ffi: memory engine already started")
	}
	e.sink = sink
	return nil
}

// Respond queues a scripted responder for one request kind.
// Responders for a kind are consumed in FIFO order, one per request.
func (e *MemoryEngine) Respond(kind RequestKind, responder Responder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.responders[kind] = append(e.responders[kind], responder)
}

// Request decodes the request, mints an async id, and emits the
// scripted (or default) result events before returning the
// acknowledgement. Emission-before-ack is safe: results land in
// subscriber queues, and the contract requires subscribing before
// requesting anyway.
func (e *MemoryEngine) Request(_ context.Context, data []byte) ([]byte, error) {
	request := new(Request)
	if err := codec.Unmarshal(data, request); err != nil {
		return nil, fmt.Errorf("ffi: memory engine decoding request: %w", err)
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	e.requests = append(e.requests, request)
	e.nextAsync++
	asyncID := e.nextAsync

	var responder Responder
	if queue := e.responders[request.Kind]; len(queue) > 0 {
		responder = queue[0]
		e.responders[request.Kind] = queue[1:]
	}

	var events []*Event
	if responder != nil {
		events = responder(e, asyncID, request)
	} else {
		events = []*Event{defaultResult(request.Kind, asyncID)}
	}
	sink := e.sink
	e.mu.Unlock()

	for _, event := range events {
		if event == nil {
			continue
		}
		encoded, err := codec.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("ffi: memory engine encoding scripted event: %w", err)
		}
		if sink != nil {
			sink(encoded)
		}
	}

	return codec.Marshal(&Ack{AsyncID: asyncID})
}

// defaultResult builds the bare success result for a request kind.
func defaultResult(kind RequestKind, asyncID uint64) *Event {
	switch kind {
	case RequestConnect:
		return &Event{Kind: EventConnectResult, ConnectResult: &ConnectResult{AsyncID: asyncID}}
	case RequestDisconnect:
		return &Event{Kind: EventDisconnectResult, DisconnectResult: &DisconnectResult{AsyncID: asyncID}}
	case RequestPublishTrack:
		return &Event{Kind: EventPublishTrackResult, PublishTrackResult: &PublishTrackResult{AsyncID: asyncID}}
	case RequestUnpublishTrack:
		return &Event{Kind: EventUnpublishTrackResult, UnpublishTrackResult: &UnpublishTrackResult{AsyncID: asyncID}}
	case RequestCreateAudioTrack, RequestCreateVideoTrack:
		return &Event{Kind: EventCreateTrackResult, CreateTrackResult: &CreateTrackResult{AsyncID: asyncID}}
	case RequestNewVideoStream:
		return &Event{Kind: EventNewVideoStreamResult, NewVideoStreamResult: &NewVideoStreamResult{AsyncID: asyncID}}
	default:
		return &Event{Kind: EventRequestResult, RequestResult: &RequestResult{AsyncID: asyncID}}
	}
}

// EmitEvent injects one event into the feed, round-tripped through
// the codec like everything else.
func (e *MemoryEngine) EmitEvent(event *Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	encoded, err := codec.Marshal(event)
	if err != nil {
		return fmt.Errorf("ffi: memory engine encoding event: %w", err)
	}

	e.mu.Lock()
	sink := e.sink
	closed := e.closed
	e.mu.Unlock()

	if closed {
		return ErrEngineClosed
	}
	if sink == nil {
		return fmt.Errorf("ffi: memory engine not started")
	}
	sink(encoded)
	return nil
}

// EmitRoomEvent injects one session-scoped event.
func (e *MemoryEngine) EmitRoomEvent(event *RoomEvent) error {
	return e.EmitEvent(&Event{Kind: EventRoom, Room: event})
}

// Drop records a handle release and unpins any emulated buffer.
func (e *MemoryEngine) Drop(handle uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drops[handle]++
	delete(e.buffers, handle)
}

// Close stops the engine. Further requests fail; further emissions
// error.
func (e *MemoryEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// MintHandle allocates a fresh resource handle id. Safe inside
// responders (does not take the lock through the public path).
func (e *MemoryEngine) MintHandle() uint64 {
	e.nextHandle++
	return e.nextHandle
}

// NewHandle allocates a handle id from outside a responder.
func (e *MemoryEngine) NewHandle() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.MintHandle()
}

// PinBuffer copies data into a pinned allocation and returns it as an
// owned native buffer. The allocation stays reachable through the
// engine until its handle is dropped, so the pointer stays valid
// exactly as long as the ownership contract says it should.
func (e *MemoryEngine) PinBuffer(data []byte) OwnedBuffer {
	e.mu.Lock()
	defer e.mu.Unlock()

	pinned := make([]byte, len(data))
	copy(pinned, data)
	handle := e.MintHandle()
	e.buffers[handle] = pinned

	buffer := OwnedBuffer{Handle: handle, Length: uint32(len(pinned))}
	if len(pinned) > 0 {
		buffer.Pointer = uint64(uintptr(unsafe.Pointer(&pinned[0])))
	}
	return buffer
}

// DropCount returns how many times a handle has been dropped.
func (e *MemoryEngine) DropCount(handle uint64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drops[handle]
}

// DoubleDrops returns the handles dropped more than once. Tests
// assert this is empty.
func (e *MemoryEngine) DoubleDrops() []uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	var violations []uint64
	for handle, count := range e.drops {
		if count > 1 {
			violations = append(violations, handle)
		}
	}
	return violations
}

// Requests returns every decoded request in arrival order.
func (e *MemoryEngine) Requests() []*Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Request(nil), e.requests...)
}
