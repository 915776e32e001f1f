// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package rtc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/atrium-rtc/atrium/ffi"
)

// Room is a connected session: the mirrored object graph plus the
// dispatch goroutine that is its sole writer. Reads are safe from any
// goroutine.
type Room struct {
	client *ffi.Client
	logger *slog.Logger

	handle *ffi.Handle
	sub    *ffi.Subscription

	emitter *emitter
	bcast   *broadcast

	mu       sync.RWMutex
	sid      string
	sidReady chan struct{}
	name     string
	metadata string
	state    ffi.ConnectionState
	local    *LocalParticipant
	remotes  map[string]*RemoteParticipant

	// done closes when the dispatch loop exits.
	done chan struct{}
}

// Connect opens a session. On any failure — request, wait, or an
// engine-reported error — no state survives: both subscriptions are
// closed and the error carries the engine's message verbatim.
func Connect(ctx context.Context, client *ffi.Client, url, token string, options RoomOptions) (*Room, error) {
	wire, err := options.toWire()
	if err != nil {
		return nil, err
	}

	// The persistent subscription opens before the request so no event
	// emitted between the result and loop startup can be lost.
	persistent := client.Subscribe()
	eph := client.Subscribe()
	defer eph.Close()

	asyncID, err := client.Request(ctx, &ffi.Request{
		Kind: ffi.RequestConnect,
		Connect: &ffi.ConnectRequest{
			URL:     url,
			Token:   token,
			Options: wire,
		},
	})
	if err != nil {
		persistent.Close()
		return nil, err
	}
	event, err := eph.WaitFor(ctx, ffi.ResultMatcher(asyncID))
	if err != nil {
		persistent.Close()
		return nil, err
	}

	result := event.ConnectResult
	if result == nil {
		persistent.Close()
		return nil, fmt.Errorf("rtc: connect answered with %s", event.Kind)
	}
	if result.Error != "" {
		persistent.Close()
		return nil, &ConnectError{Message: result.Error}
	}

	logger := options.Logger
	if logger == nil {
		logger = client.Logger()
	}

	room := &Room{
		client:   client,
		logger:   logger.With("room", result.Room.Info.Name),
		handle:   ffi.NewHandle(client, result.Room.Handle),
		sub:      persistent,
		emitter:  newEmitter(),
		bcast:    newBroadcast(),
		sidReady: make(chan struct{}),
		name:     result.Room.Info.Name,
		metadata: result.Room.Info.Metadata,
		state:    ffi.ConnConnected,
		remotes:  make(map[string]*RemoteParticipant),
		done:     make(chan struct{}),
	}
	room.local = newLocalParticipant(client, result.Room.Handle, result.LocalParticipant)
	room.local.room = room
	if result.Room.Info.SID != "" {
		room.sid = result.Room.Info.SID
		close(room.sidReady)
	}

	// Replay the initial roster before the loop starts, so lifecycle
	// events never race their own subjects.
	for _, entry := range result.Participants {
		participant := newRemoteParticipant(client, entry.Participant)
		room.remotes[participant.Identity()] = participant
		for _, owned := range entry.Publications {
			participant.addPublication(newRemoteTrackPublication(client, owned))
		}
	}

	go room.dispatch()
	return room, nil
}

// Name returns the session name.
func (r *Room) Name() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.name
}

// Metadata returns the session metadata.
func (r *Room) Metadata() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metadata
}

// ConnectionState returns the current connection state.
func (r *Room) ConnectionState() ffi.ConnectionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// SID blocks until the engine assigns the session id, which may happen
// after connect resolves. It never polls.
func (r *Room) SID(ctx context.Context) (string, error) {
	select {
	case <-r.sidReady:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sid, nil
}

// LocalParticipant returns this session's own endpoint.
func (r *Room) LocalParticipant() *LocalParticipant {
	return r.local
}

// RemoteParticipants returns a copy of the remote roster keyed by
// identity.
func (r *Room) RemoteParticipants() map[string]*RemoteParticipant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	remotes := make(map[string]*RemoteParticipant, len(r.remotes))
	for identity, participant := range r.remotes {
		remotes[identity] = participant
	}
	return remotes
}

// RemoteParticipant returns the remote participant with the given
// identity, if present.
func (r *Room) RemoteParticipant(identity string) (*RemoteParticipant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	participant, ok := r.remotes[identity]
	return participant, ok
}

// RemoveListener detaches a listener registered with On.
func (r *Room) RemoveListener(id ListenerID) {
	r.emitter.remove(id)
}

// Subscribe opens an acknowledged view of this session's raw room
// events. Every event must be Acked; an unacknowledged backlog stalls
// the dispatch loop, which is the backpressure contract.
func (r *Room) Subscribe() *RoomSubscription {
	return r.bcast.subscribe()
}

// Disconnect ends the session. It is a no-op when already
// disconnected. On return the dispatch loop has terminated and no
// further events will be processed.
func (r *Room) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	if r.state == ffi.ConnDisconnected {
		r.mu.Unlock()
		return nil
	}
	r.state = ffi.ConnDisconnected
	r.mu.Unlock()

	eph := r.client.Subscribe()
	defer eph.Close()

	asyncID, err := r.client.Request(ctx, &ffi.Request{
		Kind:       ffi.RequestDisconnect,
		Disconnect: &ffi.DisconnectRequest{RoomHandle: r.handle.ID()},
	})
	if err != nil {
		return err
	}
	if _, err := eph.WaitFor(ctx, ffi.ResultMatcher(asyncID)); err != nil {
		return err
	}

	// The engine ends the room's feed after the result; the loop exit
	// releases the room handle and detaches the feed subscription.
	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Done closes when the dispatch loop has terminated, whether by
// Disconnect or an engine-side session end.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// dispatch is the session's event loop and the sole mutator of its
// mirror graph.
func (r *Room) dispatch() {
	defer close(r.done)
	defer r.bcast.close()
	defer r.handle.Release()
	// The feed is shared across sessions and delivers to every open
	// subscription; detach so a session that ends engine-side stops
	// queueing other sessions' events.
	defer r.sub.Close()

	for {
		event, err := r.sub.Next(context.Background())
		if err != nil {
			// Subscription closed under us (client shutdown).
			return
		}
		if event.Kind != ffi.EventRoom {
			continue
		}
		re := event.Room
		if re.RoomHandle != r.handle.ID() {
			continue
		}
		if re.Kind == ffi.RoomEOS {
			r.mu.Lock()
			r.state = ffi.ConnDisconnected
			r.mu.Unlock()
			return
		}

		r.applyGuarded(re)

		// Republish after processing, then block until every secondary
		// subscriber has drained its backlog.
		r.bcast.publish(re)
		r.bcast.wait()
	}
}

// applyGuarded applies one event, containing lookup faults and
// listener panics so the loop survives them.
func (r *Room) applyGuarded(re *ffi.RoomEvent) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("panic applying room event", "kind", re.Kind.String(), "panic", recovered)
		}
	}()
	if err := r.apply(re); err != nil {
		r.logger.Error("dropping room event", "kind", re.Kind.String(), "error", err)
	}
}

// apply is the event-effect table: one case per variant, mutation
// before notification. Lookup misses follow per-kind policy — most
// kinds treat a miss as an internal-consistency fault, active-speaker
// lists skip unresolved identities, and the advisory kinds (quality,
// e2ee, transcription, data sender) resolve to nil and notify anyway.
func (r *Room) apply(re *ffi.RoomEvent) error {
	switch re.Kind {
	case ffi.RoomParticipantConnected:
		ev := re.ParticipantConnected
		identity := ev.Participant.Info.Identity
		r.mu.Lock()
		if _, exists := r.remotes[identity]; exists {
			r.mu.Unlock()
			return &consistencyError{kind: re.Kind, subject: "duplicate participant " + identity}
		}
		participant := newRemoteParticipant(r.client, ev.Participant)
		r.remotes[identity] = participant
		r.mu.Unlock()
		r.emitter.emit(ParticipantConnected{Participant: participant})

	case ffi.RoomParticipantDisconnected:
		ev := re.ParticipantDisconnected
		r.mu.Lock()
		participant, ok := r.remotes[ev.Identity]
		delete(r.remotes, ev.Identity)
		r.mu.Unlock()
		if !ok {
			return &consistencyError{kind: re.Kind, subject: "participant " + ev.Identity}
		}
		participant.release()
		r.emitter.emit(ParticipantDisconnected{Participant: participant})

	case ffi.RoomLocalTrackPublished:
		ev := re.LocalTrackPublished
		publication, ok := r.local.publication(ev.TrackSID)
		if !ok {
			return &consistencyError{kind: re.Kind, subject: "local publication " + ev.TrackSID}
		}
		local := publication.(*LocalTrackPublication)
		track, _ := local.Track().(LocalTrack)
		r.emitter.emit(LocalTrackPublished{Publication: local, Track: track})

	case ffi.RoomLocalTrackUnpublished:
		ev := re.LocalTrackUnpublished
		publication, ok := r.local.removePublication(ev.PublicationSID)
		if !ok {
			return &consistencyError{kind: re.Kind, subject: "local publication " + ev.PublicationSID}
		}
		r.emitter.emit(LocalTrackUnpublished{Publication: publication.(*LocalTrackPublication)})

	case ffi.RoomLocalTrackSubscribed:
		ev := re.LocalTrackSubscribed
		publication, ok := r.local.publication(ev.TrackSID)
		if !ok {
			return &consistencyError{kind: re.Kind, subject: "local publication " + ev.TrackSID}
		}
		local := publication.(*LocalTrackPublication)
		local.resolveFirstSubscription()
		track, _ := local.Track().(LocalTrack)
		r.emitter.emit(LocalTrackSubscribed{Track: track})

	case ffi.RoomTrackPublished:
		ev := re.TrackPublished
		participant, ok := r.remoteParticipant(ev.Identity)
		if !ok {
			return &consistencyError{kind: re.Kind, subject: "participant " + ev.Identity}
		}
		sid := ev.Publication.Info.SID
		if _, exists := participant.publication(sid); exists {
			return &consistencyError{kind: re.Kind, subject: "duplicate publication " + sid}
		}
		publication := newRemoteTrackPublication(r.client, ev.Publication)
		participant.addPublication(publication)
		r.emitter.emit(TrackPublished{Publication: publication, Participant: participant})

	case ffi.RoomTrackUnpublished:
		ev := re.TrackUnpublished
		participant, ok := r.remoteParticipant(ev.Identity)
		if !ok {
			return &consistencyError{kind: re.Kind, subject: "participant " + ev.Identity}
		}
		publication, ok := participant.removePublication(ev.PublicationSID)
		if !ok {
			return &consistencyError{kind: re.Kind, subject: "publication " + ev.PublicationSID}
		}
		r.emitter.emit(TrackUnpublished{
			Publication: publication.(*RemoteTrackPublication),
			Participant: participant,
		})

	case ffi.RoomTrackSubscribed:
		ev := re.TrackSubscribed
		participant, ok := r.remoteParticipant(ev.Identity)
		if !ok {
			return &consistencyError{kind: re.Kind, subject: "participant " + ev.Identity}
		}
		publication, ok := participant.remotePublication(ev.Track.Info.SID)
		if !ok {
			return &consistencyError{kind: re.Kind, subject: "publication " + ev.Track.Info.SID}
		}
		track, err := newRemoteTrack(r.client, ev.Track)
		if err != nil {
			return err
		}
		publication.attachTrack(track)
		r.emitter.emit(TrackSubscribed{Track: track, Publication: publication, Participant: participant})

	case ffi.RoomTrackUnsubscribed:
		ev := re.TrackUnsubscribed
		participant, ok := r.remoteParticipant(ev.Identity)
		if !ok {
			return &consistencyError{kind: re.Kind, subject: "participant " + ev.Identity}
		}
		publication, ok := participant.remotePublication(ev.TrackSID)
		if !ok {
			return &consistencyError{kind: re.Kind, subject: "publication " + ev.TrackSID}
		}
		track := publication.detachTrack()
		r.emitter.emit(TrackUnsubscribed{Track: track, Publication: publication, Participant: participant})

	case ffi.RoomTrackSubscriptionFailed:
		ev := re.TrackSubscriptionFailed
		participant, ok := r.remoteParticipant(ev.Identity)
		if !ok {
			return &consistencyError{kind: re.Kind, subject: "participant " + ev.Identity}
		}
		r.emitter.emit(TrackSubscriptionFailed{
			Participant: participant,
			TrackSID:    ev.TrackSID,
			Error:       ev.Error,
		})

	case ffi.RoomTrackMuted, ffi.RoomTrackUnmuted:
		ev := re.TrackMuted
		if re.Kind == ffi.RoomTrackUnmuted {
			ev = re.TrackUnmuted
		}
		participant, publication, err := r.lookupPublication(re.Kind, ev.Identity, ev.TrackSID)
		if err != nil {
			return err
		}
		muted := re.Kind == ffi.RoomTrackMuted
		publication.setMuted(muted)
		if muted {
			r.emitter.emit(TrackMuted{Participant: participant, Publication: publication})
		} else {
			r.emitter.emit(TrackUnmuted{Participant: participant, Publication: publication})
		}

	case ffi.RoomActiveSpeakersChanged:
		ev := re.ActiveSpeakersChanged
		speakers := make([]Participant, 0, len(ev.Identities))
		for _, identity := range ev.Identities {
			// Unresolved identities are skipped, not faulted: speaker
			// lists race roster changes by nature.
			if participant, ok := r.participantByIdentity(identity); ok {
				speakers = append(speakers, participant)
			}
		}
		r.emitter.emit(ActiveSpeakersChanged{Speakers: speakers})

	case ffi.RoomMetadataChanged:
		ev := re.MetadataChanged
		r.mu.Lock()
		old := r.metadata
		r.metadata = ev.Metadata
		r.mu.Unlock()
		r.emitter.emit(RoomMetadataChanged{Old: old, New: ev.Metadata})

	case ffi.RoomSIDChanged:
		// Internal: resolves the sid future once, never forwarded.
		ev := re.SIDChanged
		r.mu.Lock()
		first := r.sid == ""
		r.sid = ev.SID
		r.mu.Unlock()
		if first && ev.SID != "" {
			close(r.sidReady)
		}

	case ffi.RoomParticipantMetadataChanged:
		ev := re.ParticipantMetadataChanged
		participant, ok := r.participantByIdentity(ev.Identity)
		if !ok {
			return &consistencyError{kind: re.Kind, subject: "participant " + ev.Identity}
		}
		old := r.mutateParticipant(participant, func(core *participantCore) string {
			return core.setMetadata(ev.Metadata)
		})
		r.emitter.emit(ParticipantMetadataChanged{Participant: participant, Old: old, New: ev.Metadata})

	case ffi.RoomParticipantNameChanged:
		ev := re.ParticipantNameChanged
		participant, ok := r.participantByIdentity(ev.Identity)
		if !ok {
			return &consistencyError{kind: re.Kind, subject: "participant " + ev.Identity}
		}
		old := r.mutateParticipant(participant, func(core *participantCore) string {
			return core.setName(ev.Name)
		})
		r.emitter.emit(ParticipantNameChanged{Participant: participant, Old: old, New: ev.Name})

	case ffi.RoomParticipantAttributesChanged:
		ev := re.ParticipantAttributesChanged
		participant, ok := r.participantByIdentity(ev.Identity)
		if !ok {
			return &consistencyError{kind: re.Kind, subject: "participant " + ev.Identity}
		}
		// Store the authoritative full map; notify with the engine's
		// delta. The delta is never derived locally.
		r.mutateParticipant(participant, func(core *participantCore) string {
			core.setAttributes(ev.Attributes)
			return ""
		})
		r.emitter.emit(ParticipantAttributesChanged{Participant: participant, Changed: ev.Changed})

	case ffi.RoomConnectionQualityChanged:
		ev := re.ConnectionQualityChanged
		// Advisory: a nil participant still notifies.
		participant, _ := r.participantByIdentity(ev.Identity)
		r.emitter.emit(ConnectionQualityChanged{Participant: participant, Quality: ev.Quality})

	case ffi.RoomTranscriptionReceived:
		ev := re.TranscriptionReceived
		participant, _ := r.participantByIdentity(ev.Identity)
		var publication TrackPublication
		if participant != nil {
			publication, _ = participant.publication(ev.TrackSID)
		}
		r.emitter.emit(TranscriptionReceived{
			Segments:    ev.Segments,
			Participant: participant,
			Publication: publication,
		})

	case ffi.RoomDataPacketReceived:
		ev := re.DataPacketReceived
		// Sender may be unknown (server SDKs publish without joining).
		sender, _ := r.remoteParticipant(ev.Identity)
		switch ev.PacketKind {
		case ffi.DataPacketUser:
			if ev.User == nil {
				return &consistencyError{kind: re.Kind, subject: "user packet payload"}
			}
			data := ffi.ReadOwnedBuffer(r.client, ev.User.Buffer)
			r.emitter.emit(DataReceived{Packet: DataPacket{
				Data:        data,
				Topic:       ev.User.Topic,
				Participant: sender,
			}})
		case ffi.DataPacketSIPDTMF:
			if ev.SIPDTMF == nil {
				return &consistencyError{kind: re.Kind, subject: "sip dtmf payload"}
			}
			r.emitter.emit(SIPDTMFReceived{DTMF: SIPDTMF{
				Code:        ev.SIPDTMF.Code,
				Digit:       ev.SIPDTMF.Digit,
				Participant: sender,
			}})
		default:
			return &consistencyError{kind: re.Kind, subject: fmt.Sprintf("packet kind %d", ev.PacketKind)}
		}

	case ffi.RoomE2EEStateChanged:
		ev := re.E2EEStateChanged
		participant, _ := r.participantByIdentity(ev.Identity)
		r.emitter.emit(E2EEStateChanged{Participant: participant, State: ev.State})

	case ffi.RoomConnectionStateChanged:
		ev := re.ConnectionStateChanged
		r.mu.Lock()
		r.state = ev.State
		r.mu.Unlock()
		r.emitter.emit(ConnectionStateChanged{State: ev.State})

	case ffi.RoomConnected:
		r.emitter.emit(Connected{})

	case ffi.RoomDisconnected:
		r.mu.Lock()
		r.state = ffi.ConnDisconnected
		r.mu.Unlock()
		r.emitter.emit(Disconnected{Reason: re.Disconnected.Reason})

	case ffi.RoomReconnecting:
		r.mu.Lock()
		r.state = ffi.ConnReconnecting
		r.mu.Unlock()
		r.emitter.emit(Reconnecting{})

	case ffi.RoomReconnected:
		r.mu.Lock()
		r.state = ffi.ConnConnected
		r.mu.Unlock()
		r.emitter.emit(Reconnected{})

	default:
		return fmt.Errorf("rtc: unhandled room event kind %s", re.Kind)
	}
	return nil
}

func (r *Room) remoteParticipant(identity string) (*RemoteParticipant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	participant, ok := r.remotes[identity]
	return participant, ok
}

// participantByIdentity resolves an identity against the whole roster,
// local included.
func (r *Room) participantByIdentity(identity string) (Participant, bool) {
	if identity == r.local.Identity() {
		return r.local, true
	}
	participant, ok := r.remoteParticipant(identity)
	if !ok {
		return nil, false
	}
	return participant, true
}

// lookupPublication resolves identity+sid to a publication under the
// required-miss policy.
func (r *Room) lookupPublication(kind ffi.RoomEventKind, identity, trackSID string) (Participant, TrackPublication, error) {
	participant, ok := r.participantByIdentity(identity)
	if !ok {
		return nil, nil, &consistencyError{kind: kind, subject: "participant " + identity}
	}
	publication, ok := participant.publication(trackSID)
	if !ok {
		return nil, nil, &consistencyError{kind: kind, subject: "publication " + trackSID}
	}
	return participant, publication, nil
}

// mutateParticipant applies a core mutation to either variant.
func (r *Room) mutateParticipant(participant Participant, mutate func(*participantCore) string) string {
	switch p := participant.(type) {
	case *LocalParticipant:
		return mutate(&p.participantCore)
	case *RemoteParticipant:
		return mutate(&p.participantCore)
	default:
		panic(fmt.Sprintf("rtc: unknown participant type %T", participant))
	}
}
