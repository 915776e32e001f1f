// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/atrium-rtc/atrium/ffi"
)

// TrackPublication is a participant's announcement of an offered
// track. The mirror carries the mute and subscription flags and,
// while subscribed, a reference to the track itself. Unsubscribing
// clears the reference without destroying the track — a cached
// application reference stays valid.
type TrackPublication interface {
	SID() string
	Name() string
	Kind() ffi.TrackKind
	Source() ffi.TrackSource
	MimeType() string
	IsMuted() bool
	IsSubscribed() bool

	// Track returns the attached track, or nil while unsubscribed.
	Track() Track

	setMuted(muted bool)
	attachTrack(track Track)
	detachTrack() Track
}

// publicationCore is the state shared by local and remote
// publications.
type publicationCore struct {
	handle *ffi.Handle

	mu         sync.RWMutex
	info       ffi.PublicationInfo
	subscribed bool
	track      Track
}

func (p *publicationCore) SID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info.SID
}

func (p *publicationCore) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info.Name
}

func (p *publicationCore) Kind() ffi.TrackKind {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info.Kind
}

func (p *publicationCore) Source() ffi.TrackSource {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info.Source
}

func (p *publicationCore) MimeType() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info.MimeType
}

func (p *publicationCore) IsMuted() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info.Muted
}

func (p *publicationCore) IsSubscribed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.subscribed
}

func (p *publicationCore) Track() Track {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.track
}

// setMuted mirrors the engine-reported mute flag onto the
// publication and, if attached, its track.
func (p *publicationCore) setMuted(muted bool) {
	p.mu.Lock()
	p.info.Muted = muted
	track := p.track
	p.mu.Unlock()

	if track != nil {
		track.setMuted(muted)
	}
}

// attachTrack stores the track and marks the publication subscribed.
// The publication retains its own reference to the shared engine
// handle; the track keeps the original one for its holders.
func (p *publicationCore) attachTrack(track Track) {
	track.shared().Retain()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.track = track
	p.subscribed = true
}

// detachTrack clears the track reference and the subscribed flag,
// releasing the publication's handle reference. Returns the
// previously attached track so the unsubscribe notification can
// deliver it; nil if none was attached.
func (p *publicationCore) detachTrack() Track {
	p.mu.Lock()
	track := p.track
	p.track = nil
	p.subscribed = false
	p.mu.Unlock()

	if track != nil {
		track.shared().Release()
	}
	return track
}

// release drops the publication's engine handle. Called when the
// owning participant removes the mirror.
func (p *publicationCore) release() {
	p.handle.Release()
}

// RemoteTrackPublication mirrors a remote participant's publication.
// It is mutated exclusively by inbound engine events.
type RemoteTrackPublication struct {
	publicationCore
}

// LocalTrackPublication mirrors one of the local participant's own
// publications. It additionally carries a first-subscription future:
// WaitSubscribed resolves when the first remote endpoint subscribes.
type LocalTrackPublication struct {
	publicationCore

	subscribedOnce sync.Once
	firstSub       chan struct{}
}

func newRemoteTrackPublication(dropper ffi.Dropper, owned ffi.OwnedPublication) *RemoteTrackPublication {
	return &RemoteTrackPublication{
		publicationCore: publicationCore{
			handle: ffi.NewHandle(dropper, owned.Handle),
			info:   owned.Info,
		},
	}
}

func newLocalTrackPublication(dropper ffi.Dropper, owned ffi.OwnedPublication) *LocalTrackPublication {
	return &LocalTrackPublication{
		publicationCore: publicationCore{
			handle: ffi.NewHandle(dropper, owned.Handle),
			info:   owned.Info,
		},
		firstSub: make(chan struct{}),
	}
}

// WaitSubscribed blocks until the first remote subscription to this
// publication, or context cancellation. Returns immediately once
// resolved; the future resolves at most once for the publication's
// lifetime.
func (p *LocalTrackPublication) WaitSubscribed(ctx context.Context) error {
	select {
	case <-p.firstSub:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("rtc: waiting for first subscription to %s: %w", p.SID(), ctx.Err())
	}
}

// resolveFirstSubscription completes the WaitSubscribed future.
// Idempotent: later local_track_subscribed events for the same
// publication are no-ops here.
func (p *LocalTrackPublication) resolveFirstSubscription() {
	p.subscribedOnce.Do(func() { close(p.firstSub) })
}
