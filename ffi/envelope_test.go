// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package ffi

import "testing"

func TestRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		request Request
		wantErr bool
	}{
		{
			name: "connect with payload",
			request: Request{
				Kind:    RequestConnect,
				Connect: &ConnectRequest{URL: "wss://x", Token: "t"},
			},
		},
		{
			name:    "connect without payload",
			request: Request{Kind: RequestConnect},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			request: Request{Kind: RequestKind(99)},
			wantErr: true,
		},
		{
			name: "create video track",
			request: Request{
				Kind:             RequestCreateVideoTrack,
				CreateVideoTrack: &CreateTrackRequest{Name: "cam", SourceHandle: 1},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRoomEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   RoomEvent
		wantErr bool
	}{
		{
			name:  "eos carries no payload",
			event: RoomEvent{RoomHandle: 1, Kind: RoomEOS},
		},
		{
			name:  "connected carries no payload",
			event: RoomEvent{RoomHandle: 1, Kind: RoomConnected},
		},
		{
			name:    "track subscribed without payload",
			event:   RoomEvent{RoomHandle: 1, Kind: RoomTrackSubscribed},
			wantErr: true,
		},
		{
			name: "track subscribed with payload",
			event: RoomEvent{
				RoomHandle: 1,
				Kind:       RoomTrackSubscribed,
				TrackSubscribed: &TrackSubscribedEvent{
					Identity: "alice",
					Track:    OwnedTrack{Handle: 2, Info: TrackInfo{SID: "TR_1", Kind: TrackAudio}},
				},
			},
		},
		{
			name:    "unknown kind",
			event:   RoomEvent{RoomHandle: 1, Kind: RoomEventKind(120)},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEventAsyncID(t *testing.T) {
	result := Event{
		Kind:               EventPublishTrackResult,
		PublishTrackResult: &PublishTrackResult{AsyncID: 17},
	}
	if id, ok := result.AsyncID(); !ok || id != 17 {
		t.Errorf("AsyncID() = %d, %v", id, ok)
	}

	room := Event{Kind: EventRoom, Room: &RoomEvent{RoomHandle: 1, Kind: RoomConnected}}
	if _, ok := room.AsyncID(); ok {
		t.Error("room event reported a correlation id")
	}
}

func TestKindStringsStable(t *testing.T) {
	// Digest details and archive tooling print these names; a rename
	// is a wire-visible change.
	if got := RoomParticipantAttributesChanged.String(); got != "participant_attributes_changed" {
		t.Errorf("room event kind name = %q", got)
	}
	if got := RequestPublishSIPDTMF.String(); got != "publish_sip_dtmf" {
		t.Errorf("request kind name = %q", got)
	}
	if got := EventNewVideoStreamResult.String(); got != "new_video_stream_result" {
		t.Errorf("event kind name = %q", got)
	}
}
