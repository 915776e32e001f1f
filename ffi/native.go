// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux || darwin

package ffi

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Compile-time interface check.
var _ Engine = (*DlopenEngine)(nil)

// Native entry point names. These are the engine shared library's
// exported ABI; changing them breaks binding against shipped engines.
const (
	symRequest     = "atrium_ffi_request"
	symDrop        = "atrium_ffi_drop_handle"
	symSetCallback = "atrium_ffi_set_event_callback"
	symFreeReply   = "atrium_ffi_free_reply"
)

// DlopenEngine binds a native engine shared library through purego.
//
// The native ABI is three calls plus one callback:
//
//	int  atrium_ffi_request(const uint8_t *data, size_t len,
//	                        const uint8_t **reply, size_t *reply_len);
//	void atrium_ffi_drop_handle(uint64_t handle);
//	void atrium_ffi_set_event_callback(void (*cb)(const uint8_t *, size_t));
//	void atrium_ffi_free_reply(const uint8_t *reply, size_t reply_len);
//
// Reply and event payloads are copied into Go memory before the
// native call returns; the native side keeps ownership of its own
// allocations.
type DlopenEngine struct {
	library uintptr

	request     func(data *byte, length uint64, reply *uintptr, replyLength *uint64) int32
	drop        func(handle uint64)
	setCallback func(callback uintptr)
	freeReply   func(reply uintptr, replyLength uint64)

	mu       sync.Mutex
	sink     func([]byte)
	callback uintptr
	closed   bool
}

// NewDlopenEngine loads the engine shared library at path and binds
// its entry points.
func NewDlopenEngine(path string) (*DlopenEngine, error) {
	library, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("ffi: loading engine library %q: %w", path, err)
	}

	engine := &DlopenEngine{library: library}
	purego.RegisterLibFunc(&engine.request, library, symRequest)
	purego.RegisterLibFunc(&engine.drop, library, symDrop)
	purego.RegisterLibFunc(&engine.setCallback, library, symSetCallback)
	purego.RegisterLibFunc(&engine.freeReply, library, symFreeReply)
	return engine, nil
}

// Start registers the event callback with the native library. The
// callback copies each payload out of native memory before returning;
// the native side may reuse or free its buffer immediately after.
func (e *DlopenEngine) Start(sink func(data []byte)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sink != nil {
		return fmt.Errorf("ffi: engine event feed already started")
	}
	e.sink = sink

	e.callback = purego.NewCallback(func(data uintptr, length uint64) uintptr {
		var payload []byte
		if data != 0 && length > 0 {
			native := unsafe.Slice((*byte)(unsafe.Pointer(data)), int(length))
			payload = make([]byte, len(native))
			copy(payload, native)
		}
		e.mu.Lock()
		deliver := e.sink
		closed := e.closed
		e.mu.Unlock()
		if !closed && deliver != nil {
			deliver(payload)
		}
		return 0
	})
	e.setCallback(e.callback)
	return nil
}

// Request submits one serialized request. The native call is
// synchronous and quick (it only enqueues engine work and mints the
// async id), so ctx is checked once up front rather than threaded
// through the C call.
func (e *DlopenEngine) Request(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	e.mu.Unlock()

	if len(data) == 0 {
		return nil, fmt.Errorf("ffi: empty request payload")
	}

	var reply uintptr
	var replyLength uint64
	status := e.request(&data[0], uint64(len(data)), &reply, &replyLength)
	if status != 0 {
		return nil, fmt.Errorf("ffi: engine request failed with status %d", status)
	}

	var ack []byte
	if reply != 0 && replyLength > 0 {
		native := unsafe.Slice((*byte)(unsafe.Pointer(reply)), int(replyLength))
		ack = make([]byte, len(native))
		copy(ack, native)
		e.freeReply(reply, replyLength)
	}
	return ack, nil
}

// Drop releases one engine resource handle.
func (e *DlopenEngine) Drop(handle uint64) {
	e.drop(handle)
}

// Close unregisters the event callback. The library itself stays
// loaded: purego has no dlclose on all platforms, and unloading a
// library with a live callback registered is how processes crash.
func (e *DlopenEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.setCallback(0)
	return nil
}
