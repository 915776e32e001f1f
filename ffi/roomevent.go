// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package ffi

import "fmt"

// RoomEventKind discriminates RoomEvent variants.
type RoomEventKind uint8

const (
	RoomParticipantConnected RoomEventKind = iota + 1
	RoomParticipantDisconnected
	RoomLocalTrackPublished
	RoomLocalTrackUnpublished
	RoomLocalTrackSubscribed
	RoomTrackPublished
	RoomTrackUnpublished
	RoomTrackSubscribed
	RoomTrackUnsubscribed
	RoomTrackSubscriptionFailed
	RoomTrackMuted
	RoomTrackUnmuted
	RoomActiveSpeakersChanged
	RoomMetadataChanged
	RoomSIDChanged
	RoomParticipantMetadataChanged
	RoomParticipantNameChanged
	RoomParticipantAttributesChanged
	RoomConnectionQualityChanged
	RoomTranscriptionReceived
	RoomDataPacketReceived
	RoomE2EEStateChanged
	RoomConnectionStateChanged
	RoomConnected
	RoomDisconnected
	RoomReconnecting
	RoomReconnected
	RoomEOS
)

// String returns the wire-stable name of a room event kind.
func (k RoomEventKind) String() string {
	switch k {
	case RoomParticipantConnected:
		return "participant_connected"
	case RoomParticipantDisconnected:
		return "participant_disconnected"
	case RoomLocalTrackPublished:
		return "local_track_published"
	case RoomLocalTrackUnpublished:
		return "local_track_unpublished"
	case RoomLocalTrackSubscribed:
		return "local_track_subscribed"
	case RoomTrackPublished:
		return "track_published"
	case RoomTrackUnpublished:
		return "track_unpublished"
	case RoomTrackSubscribed:
		return "track_subscribed"
	case RoomTrackUnsubscribed:
		return "track_unsubscribed"
	case RoomTrackSubscriptionFailed:
		return "track_subscription_failed"
	case RoomTrackMuted:
		return "track_muted"
	case RoomTrackUnmuted:
		return "track_unmuted"
	case RoomActiveSpeakersChanged:
		return "active_speakers_changed"
	case RoomMetadataChanged:
		return "room_metadata_changed"
	case RoomSIDChanged:
		return "room_sid_changed"
	case RoomParticipantMetadataChanged:
		return "participant_metadata_changed"
	case RoomParticipantNameChanged:
		return "participant_name_changed"
	case RoomParticipantAttributesChanged:
		return "participant_attributes_changed"
	case RoomConnectionQualityChanged:
		return "connection_quality_changed"
	case RoomTranscriptionReceived:
		return "transcription_received"
	case RoomDataPacketReceived:
		return "data_packet_received"
	case RoomE2EEStateChanged:
		return "e2ee_state_changed"
	case RoomConnectionStateChanged:
		return "connection_state_changed"
	case RoomConnected:
		return "connected"
	case RoomDisconnected:
		return "disconnected"
	case RoomReconnecting:
		return "reconnecting"
	case RoomReconnected:
		return "reconnected"
	case RoomEOS:
		return "eos"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// RoomEvent is one session-scoped event. RoomHandle scopes the event
// to a session: the feed is shared, and every dispatch loop filters
// by its own handle. Variants without a payload (connected,
// reconnecting, reconnected, eos) carry only the Kind.
type RoomEvent struct {
	RoomHandle uint64        `cbor:"1,keyasint"`
	Kind       RoomEventKind `cbor:"2,keyasint"`

	ParticipantConnected         *ParticipantConnectedEvent         `cbor:"3,keyasint,omitempty"`
	ParticipantDisconnected      *ParticipantDisconnectedEvent      `cbor:"4,keyasint,omitempty"`
	LocalTrackPublished          *LocalTrackPublishedEvent          `cbor:"5,keyasint,omitempty"`
	LocalTrackUnpublished        *LocalTrackUnpublishedEvent        `cbor:"6,keyasint,omitempty"`
	LocalTrackSubscribed         *LocalTrackSubscribedEvent         `cbor:"7,keyasint,omitempty"`
	TrackPublished               *TrackPublishedEvent               `cbor:"8,keyasint,omitempty"`
	TrackUnpublished             *TrackUnpublishedEvent             `cbor:"9,keyasint,omitempty"`
	TrackSubscribed              *TrackSubscribedEvent              `cbor:"10,keyasint,omitempty"`
	TrackUnsubscribed            *TrackUnsubscribedEvent            `cbor:"11,keyasint,omitempty"`
	TrackSubscriptionFailed      *TrackSubscriptionFailedEvent      `cbor:"12,keyasint,omitempty"`
	TrackMuted                   *TrackMuteEvent                    `cbor:"13,keyasint,omitempty"`
	TrackUnmuted                 *TrackMuteEvent                    `cbor:"14,keyasint,omitempty"`
	ActiveSpeakersChanged        *ActiveSpeakersChangedEvent        `cbor:"15,keyasint,omitempty"`
	MetadataChanged              *RoomMetadataChangedEvent          `cbor:"16,keyasint,omitempty"`
	SIDChanged                   *RoomSIDChangedEvent               `cbor:"17,keyasint,omitempty"`
	ParticipantMetadataChanged   *ParticipantMetadataChangedEvent   `cbor:"18,keyasint,omitempty"`
	ParticipantNameChanged       *ParticipantNameChangedEvent       `cbor:"19,keyasint,omitempty"`
	ParticipantAttributesChanged *ParticipantAttributesChangedEvent `cbor:"20,keyasint,omitempty"`
	ConnectionQualityChanged     *ConnectionQualityChangedEvent     `cbor:"21,keyasint,omitempty"`
	TranscriptionReceived        *TranscriptionReceivedEvent        `cbor:"22,keyasint,omitempty"`
	DataPacketReceived           *DataPacketReceivedEvent           `cbor:"23,keyasint,omitempty"`
	E2EEStateChanged             *E2EEStateChangedEvent             `cbor:"24,keyasint,omitempty"`
	ConnectionStateChanged       *ConnectionStateChangedEvent       `cbor:"25,keyasint,omitempty"`
	Disconnected                 *DisconnectedEvent                 `cbor:"26,keyasint,omitempty"`
}

// Validate checks that the variant named by Kind is present for kinds
// that carry a payload.
func (e *RoomEvent) Validate() error {
	var set bool
	switch e.Kind {
	case RoomParticipantConnected:
		set = e.ParticipantConnected != nil
	case RoomParticipantDisconnected:
		set = e.ParticipantDisconnected != nil
	case RoomLocalTrackPublished:
		set = e.LocalTrackPublished != nil
	case RoomLocalTrackUnpublished:
		set = e.LocalTrackUnpublished != nil
	case RoomLocalTrackSubscribed:
		set = e.LocalTrackSubscribed != nil
	case RoomTrackPublished:
		set = e.TrackPublished != nil
	case RoomTrackUnpublished:
		set = e.TrackUnpublished != nil
	case RoomTrackSubscribed:
		set = e.TrackSubscribed != nil
	case RoomTrackUnsubscribed:
		set = e.TrackUnsubscribed != nil
	case RoomTrackSubscriptionFailed:
		set = e.TrackSubscriptionFailed != nil
	case RoomTrackMuted:
		set = e.TrackMuted != nil
	case RoomTrackUnmuted:
		set = e.TrackUnmuted != nil
	case RoomActiveSpeakersChanged:
		set = e.ActiveSpeakersChanged != nil
	case RoomMetadataChanged:
		set = e.MetadataChanged != nil
	case RoomSIDChanged:
		set = e.SIDChanged != nil
	case RoomParticipantMetadataChanged:
		set = e.ParticipantMetadataChanged != nil
	case RoomParticipantNameChanged:
		set = e.ParticipantNameChanged != nil
	case RoomParticipantAttributesChanged:
		set = e.ParticipantAttributesChanged != nil
	case RoomConnectionQualityChanged:
		set = e.ConnectionQualityChanged != nil
	case RoomTranscriptionReceived:
		set = e.TranscriptionReceived != nil
	case RoomDataPacketReceived:
		set = e.DataPacketReceived != nil
	case RoomE2EEStateChanged:
		set = e.E2EEStateChanged != nil
	case RoomConnectionStateChanged:
		set = e.ConnectionStateChanged != nil
	case RoomDisconnected:
		set = e.Disconnected != nil
	case RoomConnected, RoomReconnecting, RoomReconnected, RoomEOS:
		return nil
	default:
		return fmt.Errorf("ffi: unknown room event kind %d", e.Kind)
	}
	if !set {
		return fmt.Errorf("ffi: room event kind %s missing its payload", e.Kind)
	}
	return nil
}

// ParticipantConnectedEvent announces a new remote participant.
type ParticipantConnectedEvent struct {
	Participant OwnedParticipant `cbor:"1,keyasint"`
}

// ParticipantDisconnectedEvent removes a remote participant.
type ParticipantDisconnectedEvent struct {
	Identity string `cbor:"1,keyasint"`
}

// LocalTrackPublishedEvent confirms a local publication went live.
type LocalTrackPublishedEvent struct {
	TrackSID string `cbor:"1,keyasint"`
}

// LocalTrackUnpublishedEvent confirms a local publication was
// withdrawn.
type LocalTrackUnpublishedEvent struct {
	PublicationSID string `cbor:"1,keyasint"`
}

// LocalTrackSubscribedEvent fires when the first remote endpoint
// subscribes to a local publication.
type LocalTrackSubscribedEvent struct {
	TrackSID string `cbor:"1,keyasint"`
}

// TrackPublishedEvent announces a remote publication.
type TrackPublishedEvent struct {
	Identity    string           `cbor:"1,keyasint"`
	Publication OwnedPublication `cbor:"2,keyasint"`
}

// TrackUnpublishedEvent withdraws a remote publication.
type TrackUnpublishedEvent struct {
	Identity       string `cbor:"1,keyasint"`
	PublicationSID string `cbor:"2,keyasint"`
}

// TrackSubscribedEvent delivers the owned track for a subscription.
type TrackSubscribedEvent struct {
	Identity string     `cbor:"1,keyasint"`
	Track    OwnedTrack `cbor:"2,keyasint"`
}

// TrackUnsubscribedEvent detaches a subscribed track.
type TrackUnsubscribedEvent struct {
	Identity string `cbor:"1,keyasint"`
	TrackSID string `cbor:"2,keyasint"`
}

// TrackSubscriptionFailedEvent reports a failed subscription attempt.
type TrackSubscriptionFailedEvent struct {
	Identity string `cbor:"1,keyasint"`
	TrackSID string `cbor:"2,keyasint"`
	Error    string `cbor:"3,keyasint"`
}

// TrackMuteEvent names the publication whose mute flag changed. The
// room event kind carries the direction.
type TrackMuteEvent struct {
	Identity string `cbor:"1,keyasint"`
	TrackSID string `cbor:"2,keyasint"`
}

// ActiveSpeakersChangedEvent lists current speakers by identity.
type ActiveSpeakersChangedEvent struct {
	Identities []string `cbor:"1,keyasint"`
}

// RoomMetadataChangedEvent replaces the session metadata.
type RoomMetadataChangedEvent struct {
	Metadata string `cbor:"1,keyasint"`
}

// RoomSIDChangedEvent assigns or updates the session id. Internal:
// never forwarded to application listeners.
type RoomSIDChangedEvent struct {
	SID string `cbor:"1,keyasint"`
}

// ParticipantMetadataChangedEvent replaces one participant's metadata.
type ParticipantMetadataChangedEvent struct {
	Identity string `cbor:"1,keyasint"`
	Metadata string `cbor:"2,keyasint"`
}

// ParticipantNameChangedEvent replaces one participant's display name.
type ParticipantNameChangedEvent struct {
	Identity string `cbor:"1,keyasint"`
	Name     string `cbor:"2,keyasint"`
}

// ParticipantAttributesChangedEvent carries both the authoritative
// full map and the engine-reported delta. Mirrors store Attributes
// wholesale and notify with Changed only — the delta is never derived
// locally.
type ParticipantAttributesChangedEvent struct {
	Identity   string            `cbor:"1,keyasint"`
	Attributes map[string]string `cbor:"2,keyasint"`
	Changed    map[string]string `cbor:"3,keyasint"`
}

// ConnectionQuality grades a participant's connection.
type ConnectionQuality uint8

const (
	QualityPoor ConnectionQuality = iota
	QualityGood
	QualityExcellent
	QualityLost
)

// String returns the wire-stable name of a connection quality grade.
func (q ConnectionQuality) String() string {
	switch q {
	case QualityPoor:
		return "poor"
	case QualityGood:
		return "good"
	case QualityExcellent:
		return "excellent"
	case QualityLost:
		return "lost"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(q))
	}
}

// ConnectionQualityChangedEvent grades one participant's connection.
type ConnectionQualityChangedEvent struct {
	Identity string            `cbor:"1,keyasint"`
	Quality  ConnectionQuality `cbor:"2,keyasint"`
}

// TranscriptionReceivedEvent delivers transcription segments for a
// track. Identity and TrackSID may reference unknown mirrors; the
// dispatch loop tolerates that.
type TranscriptionReceivedEvent struct {
	Identity string                 `cbor:"1,keyasint,omitempty"`
	TrackSID string                 `cbor:"2,keyasint,omitempty"`
	Segments []TranscriptionSegment `cbor:"3,keyasint"`
}

// DataPacketKind discriminates data packet payloads.
type DataPacketKind uint8

const (
	DataPacketUser DataPacketKind = iota + 1
	DataPacketSIPDTMF
)

// DataPacketReceivedEvent delivers an ephemeral payload. Identity is
// empty when a server SDK originated the packet. Exactly one of User
// and SIPDTMF is set, per PacketKind.
type DataPacketReceivedEvent struct {
	PacketKind DataPacketKind  `cbor:"1,keyasint"`
	Identity   string          `cbor:"2,keyasint,omitempty"`
	User       *UserDataPacket `cbor:"3,keyasint,omitempty"`
	SIPDTMF    *SIPDTMFPacket  `cbor:"4,keyasint,omitempty"`
}

// UserDataPacket carries payload bytes in an owned buffer. The
// dispatch loop copies then releases, never holding the native
// memory.
type UserDataPacket struct {
	Buffer   OwnedBuffer `cbor:"1,keyasint"`
	Topic    string      `cbor:"2,keyasint,omitempty"`
	Reliable bool        `cbor:"3,keyasint,omitempty"`
}

// SIPDTMFPacket carries one DTMF tone.
type SIPDTMFPacket struct {
	Code  uint32 `cbor:"1,keyasint"`
	Digit string `cbor:"2,keyasint"`
}

// E2EEState reports a participant's end-to-end encryption status.
type E2EEState uint8

const (
	E2EENew E2EEState = iota
	E2EEOK
	E2EEKeyRatcheted
	E2EEMissingKey
	E2EEEncryptionFailed
	E2EEDecryptionFailed
	E2EEInternalError
)

// E2EEStateChangedEvent reports an encryption state transition.
type E2EEStateChangedEvent struct {
	Identity string    `cbor:"1,keyasint"`
	State    E2EEState `cbor:"2,keyasint"`
}

// ConnectionState is the session connection state enum.
type ConnectionState uint8

const (
	ConnDisconnected ConnectionState = iota
	ConnConnecting
	ConnConnected
	ConnReconnecting
)

// String returns the wire-stable name of a connection state.
func (s ConnectionState) String() string {
	switch s {
	case ConnDisconnected:
		return "disconnected"
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ConnectionStateChangedEvent updates the session connection state.
type ConnectionStateChangedEvent struct {
	State ConnectionState `cbor:"1,keyasint"`
}

// DisconnectReason explains a session end.
type DisconnectReason uint8

const (
	ReasonUnknown DisconnectReason = iota
	ReasonClientInitiated
	ReasonDuplicateIdentity
	ReasonServerShutdown
	ReasonParticipantRemoved
	ReasonRoomDeleted
	ReasonSignalClose
)

// String returns the wire-stable name of a disconnect reason.
func (r DisconnectReason) String() string {
	switch r {
	case ReasonClientInitiated:
		return "client_initiated"
	case ReasonDuplicateIdentity:
		return "duplicate_identity"
	case ReasonServerShutdown:
		return "server_shutdown"
	case ReasonParticipantRemoved:
		return "participant_removed"
	case ReasonRoomDeleted:
		return "room_deleted"
	case ReasonSignalClose:
		return "signal_close"
	default:
		return "unknown"
	}
}

// DisconnectedEvent ends a session from the engine side.
type DisconnectedEvent struct {
	Reason DisconnectReason `cbor:"1,keyasint"`
}
