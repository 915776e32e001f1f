// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package ffi

import "fmt"

// This file defines the wire contract with the engine: tagged unions
// encoded as CBOR structs with a Kind discriminant and exactly one
// populated variant. Every consumer switches exhaustively on Kind;
// unknown kinds fail Validate rather than being silently dropped.

// RequestKind discriminates Request variants.
type RequestKind uint8

const (
	RequestConnect RequestKind = iota + 1
	RequestDisconnect
	RequestPublishTrack
	RequestUnpublishTrack
	RequestPublishData
	RequestPublishSIPDTMF
	RequestSetLocalMetadata
	RequestSetLocalName
	RequestSetLocalAttributes
	RequestCreateAudioTrack
	RequestCreateVideoTrack
	RequestNewVideoStream
)

// String returns the wire-stable name of a request kind.
func (k RequestKind) String() string {
	switch k {
	case RequestConnect:
		return "connect"
	case RequestDisconnect:
		return "disconnect"
	case RequestPublishTrack:
		return "publish_track"
	case RequestUnpublishTrack:
		return "unpublish_track"
	case RequestPublishData:
		return "publish_data"
	case RequestPublishSIPDTMF:
		return "publish_sip_dtmf"
	case RequestSetLocalMetadata:
		return "set_local_metadata"
	case RequestSetLocalName:
		return "set_local_name"
	case RequestSetLocalAttributes:
		return "set_local_attributes"
	case RequestCreateAudioTrack:
		return "create_audio_track"
	case RequestCreateVideoTrack:
		return "create_video_track"
	case RequestNewVideoStream:
		return "new_video_stream"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Request is the tagged union sent to the engine. Exactly one variant
// pointer matching Kind must be set.
type Request struct {
	Kind RequestKind `cbor:"1,keyasint"`

	Connect            *ConnectRequest            `cbor:"2,keyasint,omitempty"`
	Disconnect         *DisconnectRequest         `cbor:"3,keyasint,omitempty"`
	PublishTrack       *PublishTrackRequest       `cbor:"4,keyasint,omitempty"`
	UnpublishTrack     *UnpublishTrackRequest     `cbor:"5,keyasint,omitempty"`
	PublishData        *PublishDataRequest        `cbor:"6,keyasint,omitempty"`
	PublishSIPDTMF     *PublishSIPDTMFRequest     `cbor:"7,keyasint,omitempty"`
	SetLocalMetadata   *SetLocalMetadataRequest   `cbor:"8,keyasint,omitempty"`
	SetLocalName       *SetLocalNameRequest       `cbor:"9,keyasint,omitempty"`
	SetLocalAttributes *SetLocalAttributesRequest `cbor:"10,keyasint,omitempty"`
	CreateAudioTrack   *CreateTrackRequest        `cbor:"11,keyasint,omitempty"`
	CreateVideoTrack   *CreateTrackRequest        `cbor:"12,keyasint,omitempty"`
	NewVideoStream     *NewVideoStreamRequest     `cbor:"13,keyasint,omitempty"`
}

// Validate checks that exactly the variant named by Kind is present.
func (r *Request) Validate() error {
	var set bool
	switch r.Kind {
	case RequestConnect:
		set = r.Connect != nil
	case RequestDisconnect:
		set = r.Disconnect != nil
	case RequestPublishTrack:
		set = r.PublishTrack != nil
	case RequestUnpublishTrack:
		set = r.UnpublishTrack != nil
	case RequestPublishData:
		set = r.PublishData != nil
	case RequestPublishSIPDTMF:
		set = r.PublishSIPDTMF != nil
	case RequestSetLocalMetadata:
		set = r.SetLocalMetadata != nil
	case RequestSetLocalName:
		set = r.SetLocalName != nil
	case RequestSetLocalAttributes:
		set = r.SetLocalAttributes != nil
	case RequestCreateAudioTrack:
		set = r.CreateAudioTrack != nil
	case RequestCreateVideoTrack:
		set = r.CreateVideoTrack != nil
	case RequestNewVideoStream:
		set = r.NewVideoStream != nil
	default:
		return fmt.Errorf("ffi: unknown request kind %d", r.Kind)
	}
	if !set {
		return fmt.Errorf("ffi: request kind %s missing its payload", r.Kind)
	}
	return nil
}

// ConnectRequest opens a session against a signaling URL with an
// access token. Options are plain wire shapes; the rtc package
// converts its public option types into these.
type ConnectRequest struct {
	URL     string             `cbor:"1,keyasint"`
	Token   string             `cbor:"2,keyasint"`
	Options ConnectOptionsWire `cbor:"3,keyasint"`
}

// ConnectOptionsWire is the engine's view of session options.
type ConnectOptionsWire struct {
	AutoSubscribe  bool             `cbor:"1,keyasint"`
	Dynacast       bool             `cbor:"2,keyasint"`
	AdaptiveStream bool             `cbor:"3,keyasint"`
	RTC            *RTCConfigWire   `cbor:"4,keyasint,omitempty"`
	E2EE           *E2EEOptionsWire `cbor:"5,keyasint,omitempty"`
}

// RTCConfigWire carries ICE configuration to the engine.
type RTCConfigWire struct {
	ICETransportPolicy       uint8           `cbor:"1,keyasint"`
	ContinualGatheringPolicy uint8           `cbor:"2,keyasint"`
	ICEServers               []ICEServerWire `cbor:"3,keyasint,omitempty"`
}

// ICEServerWire is one STUN/TURN server entry.
type ICEServerWire struct {
	URLs       []string `cbor:"1,keyasint"`
	Username   string   `cbor:"2,keyasint,omitempty"`
	Credential string   `cbor:"3,keyasint,omitempty"`
}

// E2EEOptionsWire carries end-to-end encryption key material to the
// engine. The client never uses it locally.
type E2EEOptionsWire struct {
	SharedKey         []byte `cbor:"1,keyasint"`
	RatchetSalt       []byte `cbor:"2,keyasint,omitempty"`
	RatchetWindowSize uint32 `cbor:"3,keyasint,omitempty"`
}

// DisconnectRequest ends the session named by the room handle.
type DisconnectRequest struct {
	RoomHandle uint64 `cbor:"1,keyasint"`
}

// PublishTrackRequest announces a local track to the session.
type PublishTrackRequest struct {
	RoomHandle  uint64 `cbor:"1,keyasint"`
	TrackHandle uint64 `cbor:"2,keyasint"`
	Name        string `cbor:"3,keyasint,omitempty"`
	Source      uint8  `cbor:"4,keyasint,omitempty"`
	Simulcast   bool   `cbor:"5,keyasint,omitempty"`
}

// UnpublishTrackRequest withdraws a local publication.
type UnpublishTrackRequest struct {
	RoomHandle uint64 `cbor:"1,keyasint"`
	TrackSID   string `cbor:"2,keyasint"`
}

// PublishDataRequest sends an ephemeral payload to the session.
type PublishDataRequest struct {
	RoomHandle            uint64   `cbor:"1,keyasint"`
	Payload               []byte   `cbor:"2,keyasint"`
	Reliable              bool     `cbor:"3,keyasint,omitempty"`
	Topic                 string   `cbor:"4,keyasint,omitempty"`
	DestinationIdentities []string `cbor:"5,keyasint,omitempty"`
}

// PublishSIPDTMFRequest sends a DTMF tone to SIP participants.
type PublishSIPDTMFRequest struct {
	RoomHandle uint64 `cbor:"1,keyasint"`
	Code       uint32 `cbor:"2,keyasint"`
	Digit      string `cbor:"3,keyasint"`
}

// SetLocalMetadataRequest replaces the local participant's metadata.
type SetLocalMetadataRequest struct {
	RoomHandle uint64 `cbor:"1,keyasint"`
	Metadata   string `cbor:"2,keyasint"`
}

// SetLocalNameRequest replaces the local participant's display name.
type SetLocalNameRequest struct {
	RoomHandle uint64 `cbor:"1,keyasint"`
	Name       string `cbor:"2,keyasint"`
}

// SetLocalAttributesRequest merges attribute keys into the local
// participant's attribute map (last-write-wins per key, engine side).
type SetLocalAttributesRequest struct {
	RoomHandle uint64            `cbor:"1,keyasint"`
	Attributes map[string]string `cbor:"2,keyasint"`
}

// CreateTrackRequest creates a local track over an engine-side
// capture source handle. Used for both audio and video; the request
// kind discriminates.
type CreateTrackRequest struct {
	Name         string `cbor:"1,keyasint"`
	SourceHandle uint64 `cbor:"2,keyasint"`
}

// NewVideoStreamRequest opens a frame stream over a subscribed remote
// video track.
type NewVideoStreamRequest struct {
	TrackHandle uint64 `cbor:"1,keyasint"`
}

// Ack is the synchronous reply to every Request: the correlation id
// under which the async result will arrive on the event feed.
type Ack struct {
	AsyncID uint64 `cbor:"1,keyasint"`
}

// EventKind discriminates top-level Event variants.
type EventKind uint8

const (
	EventConnectResult EventKind = iota + 1
	EventDisconnectResult
	EventPublishTrackResult
	EventUnpublishTrackResult
	EventRequestResult
	EventCreateTrackResult
	EventNewVideoStreamResult
	EventRoom
	EventStream
)

// String returns the wire-stable name of an event kind.
func (k EventKind) String() string {
	switch k {
	case EventConnectResult:
		return "connect_result"
	case EventDisconnectResult:
		return "disconnect_result"
	case EventPublishTrackResult:
		return "publish_track_result"
	case EventUnpublishTrackResult:
		return "unpublish_track_result"
	case EventRequestResult:
		return "request_result"
	case EventCreateTrackResult:
		return "create_track_result"
	case EventNewVideoStreamResult:
		return "new_video_stream_result"
	case EventRoom:
		return "room_event"
	case EventStream:
		return "stream_event"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Event is the tagged union delivered on the engine's event feed.
type Event struct {
	Kind EventKind `cbor:"1,keyasint"`

	ConnectResult        *ConnectResult        `cbor:"2,keyasint,omitempty"`
	DisconnectResult     *DisconnectResult     `cbor:"3,keyasint,omitempty"`
	PublishTrackResult   *PublishTrackResult   `cbor:"4,keyasint,omitempty"`
	UnpublishTrackResult *UnpublishTrackResult `cbor:"5,keyasint,omitempty"`
	RequestResult        *RequestResult        `cbor:"6,keyasint,omitempty"`
	CreateTrackResult    *CreateTrackResult    `cbor:"7,keyasint,omitempty"`
	NewVideoStreamResult *NewVideoStreamResult `cbor:"8,keyasint,omitempty"`
	Room                 *RoomEvent            `cbor:"9,keyasint,omitempty"`
	Stream               *StreamEvent          `cbor:"10,keyasint,omitempty"`
}

// Validate checks that exactly the variant named by Kind is present.
func (e *Event) Validate() error {
	var set bool
	switch e.Kind {
	case EventConnectResult:
		set = e.ConnectResult != nil
	case EventDisconnectResult:
		set = e.DisconnectResult != nil
	case EventPublishTrackResult:
		set = e.PublishTrackResult != nil
	case EventUnpublishTrackResult:
		set = e.UnpublishTrackResult != nil
	case EventRequestResult:
		set = e.RequestResult != nil
	case EventCreateTrackResult:
		set = e.CreateTrackResult != nil
	case EventNewVideoStreamResult:
		set = e.NewVideoStreamResult != nil
	case EventRoom:
		if e.Room == nil {
			return fmt.Errorf("ffi: room event missing its payload")
		}
		return e.Room.Validate()
	case EventStream:
		set = e.Stream != nil
	default:
		return fmt.Errorf("ffi: unknown event kind %d", e.Kind)
	}
	if !set {
		return fmt.Errorf("ffi: event kind %s missing its payload", e.Kind)
	}
	return nil
}

// AsyncID returns the correlation id carried by a result event, or
// (0, false) for non-result events. WaitFor predicates use this to
// match a result to its request.
func (e *Event) AsyncID() (uint64, bool) {
	switch e.Kind {
	case EventConnectResult:
		return e.ConnectResult.AsyncID, true
	case EventDisconnectResult:
		return e.DisconnectResult.AsyncID, true
	case EventPublishTrackResult:
		return e.PublishTrackResult.AsyncID, true
	case EventUnpublishTrackResult:
		return e.UnpublishTrackResult.AsyncID, true
	case EventRequestResult:
		return e.RequestResult.AsyncID, true
	case EventCreateTrackResult:
		return e.CreateTrackResult.AsyncID, true
	case EventNewVideoStreamResult:
		return e.NewVideoStreamResult.AsyncID, true
	default:
		return 0, false
	}
}

// ConnectResult resolves a connect request: either a non-empty Error,
// or the owned room plus the initial roster.
type ConnectResult struct {
	AsyncID          uint64               `cbor:"1,keyasint"`
	Error            string               `cbor:"2,keyasint,omitempty"`
	Room             OwnedRoom            `cbor:"3,keyasint,omitempty"`
	LocalParticipant OwnedParticipant     `cbor:"4,keyasint,omitempty"`
	Participants     []ConnectParticipant `cbor:"5,keyasint,omitempty"`
}

// ConnectParticipant is one initial-roster entry: a remote
// participant and the publications it already offers.
type ConnectParticipant struct {
	Participant  OwnedParticipant   `cbor:"1,keyasint"`
	Publications []OwnedPublication `cbor:"2,keyasint,omitempty"`
}

// DisconnectResult resolves a disconnect request.
type DisconnectResult struct {
	AsyncID uint64 `cbor:"1,keyasint"`
}

// PublishTrackResult resolves a publish request with the minted
// publication.
type PublishTrackResult struct {
	AsyncID     uint64           `cbor:"1,keyasint"`
	Error       string           `cbor:"2,keyasint,omitempty"`
	Publication OwnedPublication `cbor:"3,keyasint,omitempty"`
}

// UnpublishTrackResult resolves an unpublish request.
type UnpublishTrackResult struct {
	AsyncID uint64 `cbor:"1,keyasint"`
	Error   string `cbor:"2,keyasint,omitempty"`
}

// RequestResult resolves the simple fire-and-confirm requests
// (data, DTMF, metadata, name, attributes).
type RequestResult struct {
	AsyncID uint64 `cbor:"1,keyasint"`
	Error   string `cbor:"2,keyasint,omitempty"`
}

// CreateTrackResult resolves a track creation request with the owned
// local track.
type CreateTrackResult struct {
	AsyncID uint64     `cbor:"1,keyasint"`
	Error   string     `cbor:"2,keyasint,omitempty"`
	Track   OwnedTrack `cbor:"3,keyasint,omitempty"`
}

// NewVideoStreamResult resolves a video stream request with the owned
// stream handle.
type NewVideoStreamResult struct {
	AsyncID      uint64 `cbor:"1,keyasint"`
	Error        string `cbor:"2,keyasint,omitempty"`
	StreamHandle uint64 `cbor:"3,keyasint,omitempty"`
}

// StreamEventKind discriminates per-video-stream events.
type StreamEventKind uint8

const (
	StreamFrameReceived StreamEventKind = iota + 1
	StreamEOS
)

// StreamEvent is one event on a video frame stream, scoped by the
// stream handle the result handed out.
type StreamEvent struct {
	StreamHandle uint64          `cbor:"1,keyasint"`
	Kind         StreamEventKind `cbor:"2,keyasint"`
	Frame        *FrameReceived  `cbor:"3,keyasint,omitempty"`
}

// FrameReceived carries one decoded video frame as an owned buffer
// plus geometry. The buffer must be consumed with ReadOwnedBuffer.
type FrameReceived struct {
	Buffer          OwnedBuffer     `cbor:"1,keyasint"`
	Info            VideoBufferInfo `cbor:"2,keyasint"`
	TimestampMicros int64           `cbor:"3,keyasint"`
	Rotation        uint16          `cbor:"4,keyasint,omitempty"`
}

// VideoBufferInfo describes frame geometry. Format values are engine
// pixel format tags, opaque to this client.
type VideoBufferInfo struct {
	Width  uint32 `cbor:"1,keyasint"`
	Height uint32 `cbor:"2,keyasint"`
	Stride uint32 `cbor:"3,keyasint"`
	Format uint8  `cbor:"4,keyasint"`
}

// RoomInfo is the engine's description of a session. SID may be empty
// at connect time; the engine assigns it later via a sid-changed
// event.
type RoomInfo struct {
	SID      string `cbor:"1,keyasint,omitempty"`
	Name     string `cbor:"2,keyasint,omitempty"`
	Metadata string `cbor:"3,keyasint,omitempty"`
}

// OwnedRoom pairs a room handle with its info.
type OwnedRoom struct {
	Handle uint64   `cbor:"1,keyasint"`
	Info   RoomInfo `cbor:"2,keyasint"`
}

// ParticipantKind is the engine's participant classification.
type ParticipantKind uint8

const (
	ParticipantStandard ParticipantKind = iota
	ParticipantIngress
	ParticipantEgress
	ParticipantSIP
	ParticipantAgent
)

// ParticipantInfo is the engine's description of a participant.
// Identity is the unique key within a session.
type ParticipantInfo struct {
	SID        string            `cbor:"1,keyasint,omitempty"`
	Identity   string            `cbor:"2,keyasint"`
	Name       string            `cbor:"3,keyasint,omitempty"`
	Metadata   string            `cbor:"4,keyasint,omitempty"`
	Attributes map[string]string `cbor:"5,keyasint,omitempty"`
	Kind       ParticipantKind   `cbor:"6,keyasint,omitempty"`
}

// OwnedParticipant pairs a participant handle with its info.
type OwnedParticipant struct {
	Handle uint64          `cbor:"1,keyasint"`
	Info   ParticipantInfo `cbor:"2,keyasint"`
}

// TrackKind discriminates audio from video tracks.
type TrackKind uint8

const (
	TrackUnknown TrackKind = iota
	TrackAudio
	TrackVideo
)

// String returns the wire-stable name of a track kind.
func (k TrackKind) String() string {
	switch k {
	case TrackAudio:
		return "audio"
	case TrackVideo:
		return "video"
	default:
		return "unknown"
	}
}

// TrackSource classifies where a track's media comes from.
type TrackSource uint8

const (
	SourceUnknown TrackSource = iota
	SourceCamera
	SourceMicrophone
	SourceScreenShare
	SourceScreenShareAudio
)

// TrackInfo is the engine's description of a track.
type TrackInfo struct {
	SID    string      `cbor:"1,keyasint"`
	Name   string      `cbor:"2,keyasint,omitempty"`
	Kind   TrackKind   `cbor:"3,keyasint"`
	Source TrackSource `cbor:"4,keyasint,omitempty"`
	Muted  bool        `cbor:"5,keyasint,omitempty"`
}

// OwnedTrack pairs a track handle with its info.
type OwnedTrack struct {
	Handle uint64    `cbor:"1,keyasint"`
	Info   TrackInfo `cbor:"2,keyasint"`
}

// PublicationInfo is the engine's description of a track publication.
type PublicationInfo struct {
	SID      string      `cbor:"1,keyasint"`
	Name     string      `cbor:"2,keyasint,omitempty"`
	Kind     TrackKind   `cbor:"3,keyasint"`
	Source   TrackSource `cbor:"4,keyasint,omitempty"`
	Muted    bool        `cbor:"5,keyasint,omitempty"`
	MimeType string      `cbor:"6,keyasint,omitempty"`
}

// OwnedPublication pairs a publication handle with its info.
type OwnedPublication struct {
	Handle uint64          `cbor:"1,keyasint"`
	Info   PublicationInfo `cbor:"2,keyasint"`
}

// TranscriptionSegment is one piece of received transcription.
type TranscriptionSegment struct {
	ID        string `cbor:"1,keyasint"`
	Text      string `cbor:"2,keyasint"`
	StartTime uint64 `cbor:"3,keyasint,omitempty"`
	EndTime   uint64 `cbor:"4,keyasint,omitempty"`
	Final     bool   `cbor:"5,keyasint,omitempty"`
	Language  string `cbor:"6,keyasint,omitempty"`
}
