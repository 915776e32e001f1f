// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package rtc

import "github.com/atrium-rtc/atrium/ffi"

// EventKind discriminates application event types for listener
// registration. One value per public event struct; the engine's two
// internal room event variants (sid assignment, end-of-stream) have
// no application event and no kind here.
type EventKind uint8

const (
	KindParticipantConnected EventKind = iota + 1
	KindParticipantDisconnected
	KindLocalTrackPublished
	KindLocalTrackUnpublished
	KindLocalTrackSubscribed
	KindTrackPublished
	KindTrackUnpublished
	KindTrackSubscribed
	KindTrackUnsubscribed
	KindTrackSubscriptionFailed
	KindTrackMuted
	KindTrackUnmuted
	KindActiveSpeakersChanged
	KindRoomMetadataChanged
	KindParticipantMetadataChanged
	KindParticipantNameChanged
	KindParticipantAttributesChanged
	KindConnectionQualityChanged
	KindDataReceived
	KindSIPDTMFReceived
	KindTranscriptionReceived
	KindE2EEStateChanged
	KindConnectionStateChanged
	KindConnected
	KindDisconnected
	KindReconnecting
	KindReconnected
)

// Event is the closed sum of application events a Room emits. Each
// variant is a struct in this file; the sealed method keeps the set
// closed so the dispatch table stays exhaustive.
type Event interface {
	Kind() EventKind
	sealed()
}

// ParticipantConnected fires when a remote participant joins.
type ParticipantConnected struct {
	Participant *RemoteParticipant
}

// ParticipantDisconnected fires when a remote participant leaves,
// carrying the removed mirror.
type ParticipantDisconnected struct {
	Participant *RemoteParticipant
}

// LocalTrackPublished confirms a local publication went live.
type LocalTrackPublished struct {
	Publication *LocalTrackPublication
	Track       LocalTrack
}

// LocalTrackUnpublished confirms a local publication was withdrawn.
type LocalTrackUnpublished struct {
	Publication *LocalTrackPublication
}

// LocalTrackSubscribed fires when the first remote endpoint
// subscribes to a local publication.
type LocalTrackSubscribed struct {
	Track LocalTrack
}

// TrackPublished announces a remote publication.
type TrackPublished struct {
	Publication *RemoteTrackPublication
	Participant *RemoteParticipant
}

// TrackUnpublished withdraws a remote publication, carrying the
// removed mirror.
type TrackUnpublished struct {
	Publication *RemoteTrackPublication
	Participant *RemoteParticipant
}

// TrackSubscribed delivers a newly attached remote track.
type TrackSubscribed struct {
	Track       Track
	Publication *RemoteTrackPublication
	Participant *RemoteParticipant
}

// TrackUnsubscribed fires when a subscription ends. Track is the
// previously attached mirror — detached from its publication but
// still usable by holders of a cached reference.
type TrackUnsubscribed struct {
	Track       Track
	Publication *RemoteTrackPublication
	Participant *RemoteParticipant
}

// TrackSubscriptionFailed reports a failed subscription attempt. No
// mirror changed.
type TrackSubscriptionFailed struct {
	Participant *RemoteParticipant
	TrackSID    string
	Error       string
}

// TrackMuted fires when a publication is muted.
type TrackMuted struct {
	Participant Participant
	Publication TrackPublication
}

// TrackUnmuted fires when a publication is unmuted.
type TrackUnmuted struct {
	Participant Participant
	Publication TrackPublication
}

// ActiveSpeakersChanged lists the current speakers. Identities the
// mirrors cannot resolve are skipped, not nil entries.
type ActiveSpeakersChanged struct {
	Speakers []Participant
}

// RoomMetadataChanged reports a session metadata replacement.
type RoomMetadataChanged struct {
	Old string
	New string
}

// ParticipantMetadataChanged reports a participant metadata
// replacement.
type ParticipantMetadataChanged struct {
	Participant Participant
	Old         string
	New         string
}

// ParticipantNameChanged reports a display name change.
type ParticipantNameChanged struct {
	Participant Participant
	Old         string
	New         string
}

// ParticipantAttributesChanged reports an attribute update. Changed
// is the engine-reported delta, exactly as received — the
// participant's stored map is the authoritative full set.
type ParticipantAttributesChanged struct {
	Participant Participant
	Changed     map[string]string
}

// ConnectionQualityChanged grades a participant's connection.
// Participant is nil when the identity is unknown to the mirrors.
type ConnectionQualityChanged struct {
	Participant Participant
	Quality     ffi.ConnectionQuality
}

// DataPacket is an ephemeral user payload: delivered once, never
// stored. Participant is nil for server-originated packets.
type DataPacket struct {
	Data        []byte
	Topic       string
	Participant *RemoteParticipant
}

// DataReceived delivers one data packet.
type DataReceived struct {
	Packet DataPacket
}

// SIPDTMF is one received DTMF tone. Participant is nil for
// server-originated tones.
type SIPDTMF struct {
	Code        uint32
	Digit       string
	Participant *RemoteParticipant
}

// SIPDTMFReceived delivers one DTMF tone.
type SIPDTMFReceived struct {
	DTMF SIPDTMF
}

// TranscriptionReceived delivers transcription segments. Participant
// and Publication are nil when the references cannot be resolved.
type TranscriptionReceived struct {
	Segments    []ffi.TranscriptionSegment
	Participant Participant
	Publication TrackPublication
}

// E2EEStateChanged reports an encryption state transition.
// Participant is nil when the identity is unknown to the mirrors.
type E2EEStateChanged struct {
	Participant Participant
	State       ffi.E2EEState
}

// ConnectionStateChanged reports a session connection state
// transition.
type ConnectionStateChanged struct {
	State ffi.ConnectionState
}

// Connected marks the session-established lifecycle notification.
type Connected struct{}

// Disconnected marks session end, with the engine's reason.
type Disconnected struct {
	Reason ffi.DisconnectReason
}

// Reconnecting marks the start of an engine-driven reconnect.
type Reconnecting struct{}

// Reconnected marks a completed reconnect.
type Reconnected struct{}

func (ParticipantConnected) Kind() EventKind         { return KindParticipantConnected }
func (ParticipantDisconnected) Kind() EventKind      { return KindParticipantDisconnected }
func (LocalTrackPublished) Kind() EventKind          { return KindLocalTrackPublished }
func (LocalTrackUnpublished) Kind() EventKind        { return KindLocalTrackUnpublished }
func (LocalTrackSubscribed) Kind() EventKind         { return KindLocalTrackSubscribed }
func (TrackPublished) Kind() EventKind               { return KindTrackPublished }
func (TrackUnpublished) Kind() EventKind             { return KindTrackUnpublished }
func (TrackSubscribed) Kind() EventKind              { return KindTrackSubscribed }
func (TrackUnsubscribed) Kind() EventKind            { return KindTrackUnsubscribed }
func (TrackSubscriptionFailed) Kind() EventKind      { return KindTrackSubscriptionFailed }
func (TrackMuted) Kind() EventKind                   { return KindTrackMuted }
func (TrackUnmuted) Kind() EventKind                 { return KindTrackUnmuted }
func (ActiveSpeakersChanged) Kind() EventKind        { return KindActiveSpeakersChanged }
func (RoomMetadataChanged) Kind() EventKind          { return KindRoomMetadataChanged }
func (ParticipantMetadataChanged) Kind() EventKind   { return KindParticipantMetadataChanged }
func (ParticipantNameChanged) Kind() EventKind       { return KindParticipantNameChanged }
func (ParticipantAttributesChanged) Kind() EventKind { return KindParticipantAttributesChanged }
func (ConnectionQualityChanged) Kind() EventKind     { return KindConnectionQualityChanged }
func (DataReceived) Kind() EventKind                 { return KindDataReceived }
func (SIPDTMFReceived) Kind() EventKind              { return KindSIPDTMFReceived }
func (TranscriptionReceived) Kind() EventKind        { return KindTranscriptionReceived }
func (E2EEStateChanged) Kind() EventKind             { return KindE2EEStateChanged }
func (ConnectionStateChanged) Kind() EventKind       { return KindConnectionStateChanged }
func (Connected) Kind() EventKind                    { return KindConnected }
func (Disconnected) Kind() EventKind                 { return KindDisconnected }
func (Reconnecting) Kind() EventKind                 { return KindReconnecting }
func (Reconnected) Kind() EventKind                  { return KindReconnected }

func (ParticipantConnected) sealed()         {}
func (ParticipantDisconnected) sealed()      {}
func (LocalTrackPublished) sealed()          {}
func (LocalTrackUnpublished) sealed()        {}
func (LocalTrackSubscribed) sealed()         {}
func (TrackPublished) sealed()               {}
func (TrackUnpublished) sealed()             {}
func (TrackSubscribed) sealed()              {}
func (TrackUnsubscribed) sealed()            {}
func (TrackSubscriptionFailed) sealed()      {}
func (TrackMuted) sealed()                   {}
func (TrackUnmuted) sealed()                 {}
func (ActiveSpeakersChanged) sealed()        {}
func (RoomMetadataChanged) sealed()          {}
func (ParticipantMetadataChanged) sealed()   {}
func (ParticipantNameChanged) sealed()       {}
func (ParticipantAttributesChanged) sealed() {}
func (ConnectionQualityChanged) sealed()     {}
func (DataReceived) sealed()                 {}
func (SIPDTMFReceived) sealed()              {}
func (TranscriptionReceived) sealed()        {}
func (E2EEStateChanged) sealed()             {}
func (ConnectionStateChanged) sealed()       {}
func (Connected) sealed()                    {}
func (Disconnected) sealed()                 {}
func (Reconnecting) sealed()                 {}
func (Reconnected) sealed()                  {}
