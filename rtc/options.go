// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package rtc

import (
	"fmt"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/atrium-rtc/atrium/ffi"
)

// RoomOptions configures a session at connect time. The zero value is
// not useful; start from DefaultRoomOptions.
type RoomOptions struct {
	// AutoSubscribe makes the engine subscribe to every remote
	// publication as it appears. When false the application must
	// subscribe per publication.
	AutoSubscribe bool

	// Dynacast lets the engine pause simulcast layers nobody consumes.
	Dynacast bool

	// AdaptiveStream lets the engine pick simulcast layers from
	// consumer geometry.
	AdaptiveStream bool

	RTC  RTCConfiguration
	E2EE *E2EEOptions

	// Logger overrides the client's logger for this session. Nil uses
	// the client's.
	Logger *slog.Logger
}

// DefaultRoomOptions returns the options most sessions want.
func DefaultRoomOptions() RoomOptions {
	return RoomOptions{
		AutoSubscribe: true,
		RTC: RTCConfiguration{
			ICETransportPolicy:       webrtc.ICETransportPolicyAll,
			ContinualGatheringPolicy: GatherContinually,
		},
	}
}

// ContinualGatheringPolicy controls whether ICE candidate gathering
// keeps running after the initial burst.
type ContinualGatheringPolicy uint8

const (
	GatherOnce ContinualGatheringPolicy = iota
	GatherContinually
)

// RTCConfiguration carries ICE settings to the engine's peer
// connections.
type RTCConfiguration struct {
	ICETransportPolicy       webrtc.ICETransportPolicy
	ContinualGatheringPolicy ContinualGatheringPolicy
	ICEServers               []webrtc.ICEServer
}

// E2EEOptions enables end-to-end encryption with a shared key. The key
// material goes to the engine verbatim; this client never touches
// media.
type E2EEOptions struct {
	SharedKey         []byte
	RatchetSalt       []byte
	RatchetWindowSize uint32
}

// TrackPublishOptions configures a PublishTrack call.
type TrackPublishOptions struct {
	// Name overrides the track's own name in the publication.
	Name      string
	Source    ffi.TrackSource
	Simulcast bool
}

// DataPublishOptions configures a PublishData call. Zero value means
// lossy delivery to everyone, no topic.
type DataPublishOptions struct {
	Reliable bool
	Topic    string

	// DestinationIdentities restricts delivery to the named
	// participants. Empty means everyone.
	DestinationIdentities []string
}

func (o *RoomOptions) toWire() (ffi.ConnectOptionsWire, error) {
	wire := ffi.ConnectOptionsWire{
		AutoSubscribe:  o.AutoSubscribe,
		Dynacast:       o.Dynacast,
		AdaptiveStream: o.AdaptiveStream,
	}

	rtcWire, err := o.RTC.toWire()
	if err != nil {
		return ffi.ConnectOptionsWire{}, err
	}
	wire.RTC = rtcWire

	if o.E2EE != nil {
		if len(o.E2EE.SharedKey) == 0 {
			return ffi.ConnectOptionsWire{}, fmt.Errorf("rtc: e2ee enabled without a shared key")
		}
		wire.E2EE = &ffi.E2EEOptionsWire{
			SharedKey:         o.E2EE.SharedKey,
			RatchetSalt:       o.E2EE.RatchetSalt,
			RatchetWindowSize: o.E2EE.RatchetWindowSize,
		}
	}
	return wire, nil
}

func (c *RTCConfiguration) toWire() (*ffi.RTCConfigWire, error) {
	wire := &ffi.RTCConfigWire{
		ContinualGatheringPolicy: uint8(c.ContinualGatheringPolicy),
	}

	switch c.ICETransportPolicy {
	case webrtc.ICETransportPolicyAll:
		wire.ICETransportPolicy = 0
	case webrtc.ICETransportPolicyRelay:
		wire.ICETransportPolicy = 1
	default:
		return nil, fmt.Errorf("rtc: unsupported ice transport policy %q", c.ICETransportPolicy)
	}

	for _, server := range c.ICEServers {
		entry := ffi.ICEServerWire{
			URLs:     append([]string(nil), server.URLs...),
			Username: server.Username,
		}
		// pion models the credential as any; the engine only takes
		// password strings.
		switch credential := server.Credential.(type) {
		case nil:
		case string:
			entry.Credential = credential
		default:
			return nil, fmt.Errorf("rtc: ice server credential must be a string, got %T", server.Credential)
		}
		wire.ICEServers = append(wire.ICEServers, entry)
	}
	return wire, nil
}
