// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package rtc

import (
	"context"
	"fmt"

	"github.com/atrium-rtc/atrium/ffi"
)

// LocalParticipant is the endpoint this process controls. Its
// operations are gateway requests: each subscribes, sends, and awaits
// the correlated result. State changes land on the mirror through the
// echoed room events, with one exception — publish results carry the
// publication before its room event arrives, so PublishTrack installs
// the mirror itself.
type LocalParticipant struct {
	participantCore

	client     *ffi.Client
	roomHandle uint64

	// room is set by Connect once the session controller exists; its
	// connection state gates the gateway operations.
	room *Room
}

func newLocalParticipant(client *ffi.Client, roomHandle uint64, owned ffi.OwnedParticipant) *LocalParticipant {
	return &LocalParticipant{
		participantCore: newParticipantCore(client, owned),
		client:          client,
		roomHandle:      roomHandle,
	}
}

var _ Participant = (*LocalParticipant)(nil)
var _ Participant = (*RemoteParticipant)(nil)

// PublishTrack announces a local track to the session and returns its
// publication once the engine confirms it. The publication is
// installed on the mirror before the lifecycle notification fires.
func (p *LocalParticipant) PublishTrack(ctx context.Context, track LocalTrack, options TrackPublishOptions) (*LocalTrackPublication, error) {
	if err := p.requireConnected(); err != nil {
		return nil, err
	}
	sub := p.client.Subscribe()
	defer sub.Close()

	asyncID, err := p.client.Request(ctx, &ffi.Request{
		Kind: ffi.RequestPublishTrack,
		PublishTrack: &ffi.PublishTrackRequest{
			RoomHandle:  p.roomHandle,
			TrackHandle: track.shared().ID(),
			Name:        options.Name,
			Source:      uint8(options.Source),
			Simulcast:   options.Simulcast,
		},
	})
	if err != nil {
		return nil, err
	}
	event, err := sub.WaitFor(ctx, ffi.ResultMatcher(asyncID))
	if err != nil {
		return nil, err
	}

	result := event.PublishTrackResult
	if result == nil {
		return nil, fmt.Errorf("rtc: publish_track answered with %s", event.Kind)
	}
	if result.Error != "" {
		return nil, &RequestError{Op: "publish_track", Message: result.Error}
	}

	publication := newLocalTrackPublication(p.client, result.Publication)
	publication.attachTrack(track)
	p.addPublication(publication)
	return publication, nil
}

// UnpublishTrack withdraws the publication with the given track sid.
// The mirror is torn down by the lifecycle event, which the engine
// emits before the result.
func (p *LocalParticipant) UnpublishTrack(ctx context.Context, trackSID string) error {
	if err := p.requireConnected(); err != nil {
		return err
	}
	sub := p.client.Subscribe()
	defer sub.Close()

	asyncID, err := p.client.Request(ctx, &ffi.Request{
		Kind: ffi.RequestUnpublishTrack,
		UnpublishTrack: &ffi.UnpublishTrackRequest{
			RoomHandle: p.roomHandle,
			TrackSID:   trackSID,
		},
	})
	if err != nil {
		return err
	}
	event, err := sub.WaitFor(ctx, ffi.ResultMatcher(asyncID))
	if err != nil {
		return err
	}

	result := event.UnpublishTrackResult
	if result == nil {
		return fmt.Errorf("rtc: unpublish_track answered with %s", event.Kind)
	}
	if result.Error != "" {
		return &RequestError{Op: "unpublish_track", Message: result.Error}
	}
	return nil
}

// PublishData sends an ephemeral payload to the session. It is never
// mirrored; delivery to remote endpoints surfaces as DataReceived on
// their side.
func (p *LocalParticipant) PublishData(ctx context.Context, payload []byte, options DataPublishOptions) error {
	return p.confirm(ctx, "publish_data", &ffi.Request{
		Kind: ffi.RequestPublishData,
		PublishData: &ffi.PublishDataRequest{
			RoomHandle:            p.roomHandle,
			Payload:               payload,
			Reliable:              options.Reliable,
			Topic:                 options.Topic,
			DestinationIdentities: options.DestinationIdentities,
		},
	})
}

// PublishSIPDTMF sends a DTMF tone to SIP participants in the session.
func (p *LocalParticipant) PublishSIPDTMF(ctx context.Context, code uint32, digit string) error {
	return p.confirm(ctx, "publish_sip_dtmf", &ffi.Request{
		Kind: ffi.RequestPublishSIPDTMF,
		PublishSIPDTMF: &ffi.PublishSIPDTMFRequest{
			RoomHandle: p.roomHandle,
			Code:       code,
			Digit:      digit,
		},
	})
}

// SetMetadata asks the engine to replace this participant's metadata.
// The mirror updates when the change echoes back as a room event.
func (p *LocalParticipant) SetMetadata(ctx context.Context, metadata string) error {
	return p.confirm(ctx, "set_local_metadata", &ffi.Request{
		Kind: ffi.RequestSetLocalMetadata,
		SetLocalMetadata: &ffi.SetLocalMetadataRequest{
			RoomHandle: p.roomHandle,
			Metadata:   metadata,
		},
	})
}

// SetName asks the engine to replace this participant's display name.
func (p *LocalParticipant) SetName(ctx context.Context, name string) error {
	return p.confirm(ctx, "set_local_name", &ffi.Request{
		Kind: ffi.RequestSetLocalName,
		SetLocalName: &ffi.SetLocalNameRequest{
			RoomHandle: p.roomHandle,
			Name:       name,
		},
	})
}

// SetAttributes asks the engine to merge the given keys into this
// participant's attribute map. Last write wins per key; the echoed
// event carries both the resulting full map and the delta.
func (p *LocalParticipant) SetAttributes(ctx context.Context, attributes map[string]string) error {
	return p.confirm(ctx, "set_local_attributes", &ffi.Request{
		Kind: ffi.RequestSetLocalAttributes,
		SetLocalAttributes: &ffi.SetLocalAttributesRequest{
			RoomHandle: p.roomHandle,
			Attributes: attributes,
		},
	})
}

// requireConnected gates gateway operations on session liveness.
func (p *LocalParticipant) requireConnected() error {
	if p.room != nil && p.room.ConnectionState() == ffi.ConnDisconnected {
		return ErrNotConnected
	}
	return nil
}

// confirm runs the subscribe-request-correlate cycle for operations
// that resolve with a bare RequestResult.
func (p *LocalParticipant) confirm(ctx context.Context, op string, request *ffi.Request) error {
	if err := p.requireConnected(); err != nil {
		return err
	}
	sub := p.client.Subscribe()
	defer sub.Close()

	asyncID, err := p.client.Request(ctx, request)
	if err != nil {
		return err
	}
	event, err := sub.WaitFor(ctx, ffi.ResultMatcher(asyncID))
	if err != nil {
		return err
	}

	result := event.RequestResult
	if result == nil {
		return fmt.Errorf("rtc: %s answered with %s", op, event.Kind)
	}
	if result.Error != "" {
		return &RequestError{Op: op, Message: result.Error}
	}
	return nil
}
