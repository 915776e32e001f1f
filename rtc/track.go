// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/atrium-rtc/atrium/ffi"
)

// Track is a media stream mirror, audio or video, local or remote.
// The mute flag mirrors the owning publication's; the engine-side
// resource is shared between the publication and any cached
// application reference, and the last holder's release drops it.
type Track interface {
	SID() string
	Name() string
	Kind() ffi.TrackKind
	IsMuted() bool

	// Close releases this holder's reference to the engine-side
	// track. Idempotent. The engine resource is dropped once every
	// holder (the publication's attachment included) has released.
	Close()

	shared() *ffi.SharedHandle
	setMuted(muted bool)
}

// LocalTrack is a track this process created and may publish.
type LocalTrack interface {
	Track
	localTrack()
}

// trackCore is the state shared by every track mirror.
type trackCore struct {
	handle *ffi.SharedHandle

	mu   sync.RWMutex
	info ffi.TrackInfo

	closeOnce sync.Once
}

func (t *trackCore) SID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info.SID
}

func (t *trackCore) Name() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info.Name
}

func (t *trackCore) Kind() ffi.TrackKind {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info.Kind
}

func (t *trackCore) IsMuted() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info.Muted
}

func (t *trackCore) Close() {
	t.closeOnce.Do(t.handle.Release)
}

func (t *trackCore) shared() *ffi.SharedHandle { return t.handle }

func (t *trackCore) setMuted(muted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.info.Muted = muted
}

// RemoteAudioTrack mirrors a subscribed remote audio track.
type RemoteAudioTrack struct{ trackCore }

// RemoteVideoTrack mirrors a subscribed remote video track. Feed it
// to NewVideoStream to receive frames.
type RemoteVideoTrack struct{ trackCore }

// LocalAudioTrack is a locally created audio track.
type LocalAudioTrack struct{ trackCore }

// LocalVideoTrack is a locally created video track.
type LocalVideoTrack struct{ trackCore }

func (*LocalAudioTrack) localTrack() {}
func (*LocalVideoTrack) localTrack() {}

// newRemoteTrack builds the kind-appropriate mirror for an owned
// engine track.
func newRemoteTrack(dropper ffi.Dropper, owned ffi.OwnedTrack) (Track, error) {
	core := trackCore{
		handle: ffi.NewSharedHandle(dropper, owned.Handle),
		info:   owned.Info,
	}
	switch owned.Info.Kind {
	case ffi.TrackAudio:
		return &RemoteAudioTrack{trackCore: core}, nil
	case ffi.TrackVideo:
		return &RemoteVideoTrack{trackCore: core}, nil
	default:
		// The handle must not leak even when the kind is garbage.
		core.handle.Release()
		return nil, fmt.Errorf("rtc: subscribed track %q has unknown kind %d", owned.Info.SID, owned.Info.Kind)
	}
}

// NewLocalAudioTrack creates a local audio track over an engine-side
// capture source handle. The source itself (device, file, synthetic)
// is the engine's business.
func NewLocalAudioTrack(ctx context.Context, client *ffi.Client, name string, sourceHandle uint64) (*LocalAudioTrack, error) {
	owned, err := createTrack(ctx, client, &ffi.Request{
		Kind:             ffi.RequestCreateAudioTrack,
		CreateAudioTrack: &ffi.CreateTrackRequest{Name: name, SourceHandle: sourceHandle},
	})
	if err != nil {
		return nil, err
	}
	return &LocalAudioTrack{trackCore: trackCore{
		handle: ffi.NewSharedHandle(client, owned.Handle),
		info:   owned.Info,
	}}, nil
}

// NewLocalVideoTrack creates a local video track over an engine-side
// capture source handle.
func NewLocalVideoTrack(ctx context.Context, client *ffi.Client, name string, sourceHandle uint64) (*LocalVideoTrack, error) {
	owned, err := createTrack(ctx, client, &ffi.Request{
		Kind:             ffi.RequestCreateVideoTrack,
		CreateVideoTrack: &ffi.CreateTrackRequest{Name: name, SourceHandle: sourceHandle},
	})
	if err != nil {
		return nil, err
	}
	return &LocalVideoTrack{trackCore: trackCore{
		handle: ffi.NewSharedHandle(client, owned.Handle),
		info:   owned.Info,
	}}, nil
}

// createTrack runs the subscribe-request-correlate cycle for a track
// creation request.
func createTrack(ctx context.Context, client *ffi.Client, request *ffi.Request) (ffi.OwnedTrack, error) {
	sub := client.Subscribe()
	defer sub.Close()

	asyncID, err := client.Request(ctx, request)
	if err != nil {
		return ffi.OwnedTrack{}, err
	}
	event, err := sub.WaitFor(ctx, ffi.ResultMatcher(asyncID))
	if err != nil {
		return ffi.OwnedTrack{}, err
	}

	result := event.CreateTrackResult
	if result == nil {
		return ffi.OwnedTrack{}, fmt.Errorf("rtc: %s answered with %s", request.Kind, event.Kind)
	}
	if result.Error != "" {
		return ffi.OwnedTrack{}, &RequestError{Op: request.Kind.String(), Message: result.Error}
	}
	return result.Track, nil
}
