// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package ffi

import (
	"sync"
	"sync/atomic"
	"unsafe"
)

// InvalidHandle is the zero handle id. It never names an engine
// resource and releasing it is a no-op.
const InvalidHandle uint64 = 0

// Handle owns one opaque engine resource id. Exactly one Drop call is
// issued across the handle's lifetime, on the first Release; further
// Release calls are no-ops. Copy the *Handle, never the struct — the
// pointer is the owner.
type Handle struct {
	id      uint64
	dropper Dropper
	release sync.Once
}

// NewHandle wraps an engine resource id. A zero id yields a handle
// whose Release does nothing.
func NewHandle(dropper Dropper, id uint64) *Handle {
	return &Handle{id: id, dropper: dropper}
}

// ID returns the numeric engine resource id.
func (h *Handle) ID() uint64 { return h.id }

// Release drops the engine resource. Idempotent; only the first call
// reaches the engine.
func (h *Handle) Release() {
	h.release.Do(func() {
		if h.id == InvalidHandle || h.dropper == nil {
			return
		}
		h.dropper.Drop(h.id)
	})
}

// SharedHandle is a reference-counted handle for the one place
// single-owner semantics do not fit: a track mirror and an
// application-cached reference to it must be able to outlive each
// other, and the last holder drops the engine resource.
//
// A SharedHandle starts with one reference. Retain before handing a
// second holder a reference; every holder calls Release exactly once.
type SharedHandle struct {
	handle *Handle
	refs   atomic.Int64
}

// NewSharedHandle wraps an engine resource id with one outstanding
// reference.
func NewSharedHandle(dropper Dropper, id uint64) *SharedHandle {
	shared := &SharedHandle{handle: NewHandle(dropper, id)}
	shared.refs.Store(1)
	return shared
}

// ID returns the numeric engine resource id.
func (s *SharedHandle) ID() uint64 { return s.handle.ID() }

// Retain adds a reference. The new holder must eventually Release.
func (s *SharedHandle) Retain() *SharedHandle {
	s.refs.Add(1)
	return s
}

// Release drops one reference; the last release drops the engine
// resource. Releasing more times than retained is a defect and
// panics rather than double-dropping.
func (s *SharedHandle) Release() {
	remaining := s.refs.Add(-1)
	switch {
	case remaining == 0:
		s.handle.Release()
	case remaining < 0:
		panic("ffi: SharedHandle released more times than retained")
	}
}

// OwnedBuffer names a region of engine-owned memory plus the handle
// that keeps it alive. The bytes are only valid until the handle is
// dropped; ReadOwnedBuffer is the one sanctioned way to consume one.
type OwnedBuffer struct {
	Handle  uint64 `cbor:"1,keyasint"`
	Pointer uint64 `cbor:"2,keyasint"`
	Length  uint32 `cbor:"3,keyasint"`
}

// ReadOwnedBuffer copies the buffer's bytes into Go memory and drops
// the owning handle. The copy-then-release order is mandatory: only
// the copy escapes, so use-after-free is structurally impossible for
// callers.
func ReadOwnedBuffer(dropper Dropper, buffer OwnedBuffer) []byte {
	var data []byte
	if buffer.Pointer != 0 && buffer.Length > 0 {
		native := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(buffer.Pointer))), int(buffer.Length))
		data = make([]byte, len(native))
		copy(data, native)
	}
	if buffer.Handle != InvalidHandle {
		dropper.Drop(buffer.Handle)
	}
	return data
}
