// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package rtc

import (
	"sync"

	"github.com/atrium-rtc/atrium/ffi"
)

// Participant is an endpoint in a session: the LocalParticipant this
// process controls, or a RemoteParticipant mirrored from engine
// events. Both share the read surface; only Local may initiate
// mutations, and those go through the engine — the mirror itself is
// updated by the echoed events, like every other mirror.
type Participant interface {
	SID() string
	Identity() string
	Name() string
	Metadata() string
	Kind() ffi.ParticipantKind

	// Attributes returns a copy of the attribute map (last-write-wins
	// per key, authoritative full set as last reported by the engine).
	Attributes() map[string]string

	// TrackPublications returns a copy of the publication set, keyed
	// by track sid.
	TrackPublications() map[string]TrackPublication

	publication(sid string) (TrackPublication, bool)
}

// participantCore is the mirror state shared by both variants.
type participantCore struct {
	handle *ffi.Handle

	mu           sync.RWMutex
	info         ffi.ParticipantInfo
	publications map[string]TrackPublication
}

func newParticipantCore(dropper ffi.Dropper, owned ffi.OwnedParticipant) participantCore {
	info := owned.Info
	// The mirror owns its attribute map; never alias the decoded one.
	attributes := make(map[string]string, len(info.Attributes))
	for key, value := range info.Attributes {
		attributes[key] = value
	}
	info.Attributes = attributes

	return participantCore{
		handle:       ffi.NewHandle(dropper, owned.Handle),
		info:         info,
		publications: make(map[string]TrackPublication),
	}
}

func (p *participantCore) SID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info.SID
}

func (p *participantCore) Identity() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info.Identity
}

func (p *participantCore) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info.Name
}

func (p *participantCore) Metadata() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info.Metadata
}

func (p *participantCore) Kind() ffi.ParticipantKind {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info.Kind
}

func (p *participantCore) Attributes() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	attributes := make(map[string]string, len(p.info.Attributes))
	for key, value := range p.info.Attributes {
		attributes[key] = value
	}
	return attributes
}

func (p *participantCore) TrackPublications() map[string]TrackPublication {
	p.mu.RLock()
	defer p.mu.RUnlock()

	publications := make(map[string]TrackPublication, len(p.publications))
	for sid, publication := range p.publications {
		publications[sid] = publication
	}
	return publications
}

func (p *participantCore) publication(sid string) (TrackPublication, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	publication, ok := p.publications[sid]
	return publication, ok
}

func (p *participantCore) addPublication(publication TrackPublication) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publications[publication.SID()] = publication
}

// removePublication deletes and returns the publication, clearing its
// track reference and releasing its engine handle.
func (p *participantCore) removePublication(sid string) (TrackPublication, bool) {
	p.mu.Lock()
	publication, ok := p.publications[sid]
	delete(p.publications, sid)
	p.mu.Unlock()

	if ok {
		publication.detachTrack()
		switch pub := publication.(type) {
		case *RemoteTrackPublication:
			pub.release()
		case *LocalTrackPublication:
			pub.release()
		}
	}
	return publication, ok
}

// setMetadata replaces the metadata, returning the old value.
func (p *participantCore) setMetadata(metadata string) (old string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	old = p.info.Metadata
	p.info.Metadata = metadata
	return old
}

// setName replaces the display name, returning the old value.
func (p *participantCore) setName(name string) (old string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	old = p.info.Name
	p.info.Name = name
	return old
}

// setAttributes replaces the attribute map wholesale with the
// engine's reported full set. The caller notifies with the reported
// delta; nothing is diffed locally.
func (p *participantCore) setAttributes(attributes map[string]string) {
	replacement := make(map[string]string, len(attributes))
	for key, value := range attributes {
		replacement[key] = value
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.info.Attributes = replacement
}

// release drops the participant's engine handle and every remaining
// publication's. Called when the session removes the mirror.
func (p *participantCore) release() {
	p.mu.Lock()
	publications := make([]TrackPublication, 0, len(p.publications))
	for _, publication := range p.publications {
		publications = append(publications, publication)
	}
	p.publications = make(map[string]TrackPublication)
	p.mu.Unlock()

	for _, publication := range publications {
		publication.detachTrack()
		switch pub := publication.(type) {
		case *RemoteTrackPublication:
			pub.release()
		case *LocalTrackPublication:
			pub.release()
		}
	}
	p.handle.Release()
}

// RemoteParticipant mirrors another endpoint in the session. All
// mutation comes from inbound engine events via the dispatch loop.
type RemoteParticipant struct {
	participantCore
}

func newRemoteParticipant(dropper ffi.Dropper, owned ffi.OwnedParticipant) *RemoteParticipant {
	return &RemoteParticipant{participantCore: newParticipantCore(dropper, owned)}
}

// remotePublication is the typed lookup used by track events.
func (p *RemoteParticipant) remotePublication(sid string) (*RemoteTrackPublication, bool) {
	publication, ok := p.publication(sid)
	if !ok {
		return nil, false
	}
	remote, ok := publication.(*RemoteTrackPublication)
	return remote, ok
}
