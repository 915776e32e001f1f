// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/atrium-rtc/atrium/ffi"
)

// Scenario describes a synthetic session: a roster plus a timeline of
// steps that each become one session event in the archive. Session ids
// and track ids are derived deterministically from the declared names,
// so the same scenario always produces a byte-identical archive.
type Scenario struct {
	// Room is the session name. Required.
	Room string `yaml:"room"`

	// SID is the session id announced at the start of the archive.
	// Defaults to "RM_" + Room.
	SID string `yaml:"sid,omitempty"`

	// Metadata is the initial session metadata, announced after the
	// session id when non-empty.
	Metadata string `yaml:"metadata,omitempty"`

	// Participants declares every identity the timeline may reference.
	Participants []ScenarioParticipant `yaml:"participants"`

	// Timeline is the ordered step list.
	Timeline []Step `yaml:"timeline"`
}

// ScenarioParticipant declares one remote identity.
type ScenarioParticipant struct {
	Identity   string            `yaml:"identity"`
	Name       string            `yaml:"name,omitempty"`
	Metadata   string            `yaml:"metadata,omitempty"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
}

// Step is one timeline entry. Action selects the variant; the other
// fields apply per action:
//
//	join, leave            identity
//	publish                identity, track, kind (audio|video), source
//	unpublish              identity, track
//	subscribe, unsubscribe identity, track
//	mute, unmute           identity, track
//	data                   identity, topic, size
//	metadata               value, plus identity for participant scope
//	name                   identity, value
//	speakers               identities
//
// Data payload bytes cross the engine boundary as borrowed native
// memory and are never archived, so a data step declares only the
// payload size; replay reconstructs a zero-filled buffer of that
// length.
type Step struct {
	Action     string   `yaml:"action"`
	Identity   string   `yaml:"identity,omitempty"`
	Track      string   `yaml:"track,omitempty"`
	Kind       string   `yaml:"kind,omitempty"`
	Source     string   `yaml:"source,omitempty"`
	Topic      string   `yaml:"topic,omitempty"`
	Size       int      `yaml:"size,omitempty"`
	Value      string   `yaml:"value,omitempty"`
	Identities []string `yaml:"identities,omitempty"`
}

// LoadScenario reads and validates a scenario file. There is no search
// path or fallback: the caller names exactly one file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}

	scenario := new(Scenario)
	if err := yaml.Unmarshal(data, scenario); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return scenario, nil
}

// Validate checks the roster and walks the timeline with a presence
// and publication state machine, collecting every problem before
// reporting. A step that references an identity not currently joined,
// or a track not currently published, is an error even when the
// declaration exists elsewhere in the file.
func (s *Scenario) Validate() error {
	var problems []error

	if s.Room == "" {
		problems = append(problems, errors.New("room is required"))
	}
	if len(s.Participants) == 0 {
		problems = append(problems, errors.New("at least one participant is required"))
	}

	declared := make(map[string]bool)
	for i, participant := range s.Participants {
		if participant.Identity == "" {
			problems = append(problems, fmt.Errorf("participants[%d]: identity is required", i))
			continue
		}
		if declared[participant.Identity] {
			problems = append(problems, fmt.Errorf("participants[%d]: duplicate identity %q", i, participant.Identity))
		}
		declared[participant.Identity] = true
	}

	joined := make(map[string]bool)
	published := make(map[string]bool) // identity + "/" + track
	subscribed := make(map[string]bool)

	requireJoined := func(i int, identity string) bool {
		switch {
		case identity == "":
			problems = append(problems, fmt.Errorf("timeline[%d]: identity is required", i))
		case !declared[identity]:
			problems = append(problems, fmt.Errorf("timeline[%d]: identity %q is not declared", i, identity))
		case !joined[identity]:
			problems = append(problems, fmt.Errorf("timeline[%d]: %q has not joined", i, identity))
		default:
			return true
		}
		return false
	}
	requirePublished := func(i int, identity, track string) (string, bool) {
		if !requireJoined(i, identity) {
			return "", false
		}
		if track == "" {
			problems = append(problems, fmt.Errorf("timeline[%d]: track is required", i))
			return "", false
		}
		key := identity + "/" + track
		if !published[key] {
			problems = append(problems, fmt.Errorf("timeline[%d]: track %q of %q is not published", i, track, identity))
			return "", false
		}
		return key, true
	}

	for i, step := range s.Timeline {
		switch step.Action {
		case "join":
			switch {
			case step.Identity == "":
				problems = append(problems, fmt.Errorf("timeline[%d]: identity is required", i))
			case !declared[step.Identity]:
				problems = append(problems, fmt.Errorf("timeline[%d]: identity %q is not declared", i, step.Identity))
			case joined[step.Identity]:
				problems = append(problems, fmt.Errorf("timeline[%d]: %q is already joined", i, step.Identity))
			default:
				joined[step.Identity] = true
			}
		case "leave":
			if requireJoined(i, step.Identity) {
				delete(joined, step.Identity)
				for key := range published {
					if strings.HasPrefix(key, step.Identity+"/") {
						delete(published, key)
						delete(subscribed, key)
					}
				}
			}
		case "publish":
			if !requireJoined(i, step.Identity) {
				break
			}
			if step.Track == "" {
				problems = append(problems, fmt.Errorf("timeline[%d]: track is required", i))
				break
			}
			if _, err := parseTrackKind(step.Kind); err != nil {
				problems = append(problems, fmt.Errorf("timeline[%d]: %w", i, err))
			}
			if _, err := parseTrackSource(step.Source); err != nil {
				problems = append(problems, fmt.Errorf("timeline[%d]: %w", i, err))
			}
			key := step.Identity + "/" + step.Track
			if published[key] {
				problems = append(problems, fmt.Errorf("timeline[%d]: track %q of %q is already published", i, step.Track, step.Identity))
				break
			}
			published[key] = true
		case "unpublish":
			if key, ok := requirePublished(i, step.Identity, step.Track); ok {
				delete(published, key)
				delete(subscribed, key)
			}
		case "subscribe":
			if key, ok := requirePublished(i, step.Identity, step.Track); ok {
				if subscribed[key] {
					problems = append(problems, fmt.Errorf("timeline[%d]: track %q of %q is already subscribed", i, step.Track, step.Identity))
				}
				subscribed[key] = true
			}
		case "unsubscribe":
			if key, ok := requirePublished(i, step.Identity, step.Track); ok {
				if !subscribed[key] {
					problems = append(problems, fmt.Errorf("timeline[%d]: track %q of %q is not subscribed", i, step.Track, step.Identity))
				}
				delete(subscribed, key)
			}
		case "mute", "unmute":
			requirePublished(i, step.Identity, step.Track)
		case "data":
			if requireJoined(i, step.Identity) && step.Size < 0 {
				problems = append(problems, fmt.Errorf("timeline[%d]: size must not be negative", i))
			}
		case "metadata":
			if step.Identity != "" {
				requireJoined(i, step.Identity)
			}
		case "name":
			if requireJoined(i, step.Identity) && step.Value == "" {
				problems = append(problems, fmt.Errorf("timeline[%d]: value is required", i))
			}
		case "speakers":
			for _, identity := range step.Identities {
				if !joined[identity] {
					problems = append(problems, fmt.Errorf("timeline[%d]: speaker %q has not joined", i, identity))
				}
			}
		case "":
			problems = append(problems, fmt.Errorf("timeline[%d]: action is required", i))
		default:
			problems = append(problems, fmt.Errorf("timeline[%d]: unknown action %q", i, step.Action))
		}
	}

	return errors.Join(problems...)
}

// Build turns a validated scenario into the archive's event sequence.
// Handles are left zero: the replayer mints fresh ones at emission
// time, exactly as it does for archives recorded from a live session.
func (s *Scenario) Build() []*ffi.RoomEvent {
	roster := make(map[string]ScenarioParticipant, len(s.Participants))
	for _, participant := range s.Participants {
		roster[participant.Identity] = participant
	}

	sid := s.SID
	if sid == "" {
		sid = "RM_" + s.Room
	}

	events := []*ffi.RoomEvent{
		{Kind: ffi.RoomSIDChanged, SIDChanged: &ffi.RoomSIDChangedEvent{SID: sid}},
		{Kind: ffi.RoomConnectionStateChanged, ConnectionStateChanged: &ffi.ConnectionStateChangedEvent{State: ffi.ConnConnected}},
	}
	if s.Metadata != "" {
		events = append(events, &ffi.RoomEvent{
			Kind:            ffi.RoomMetadataChanged,
			MetadataChanged: &ffi.RoomMetadataChangedEvent{Metadata: s.Metadata},
		})
	}

	for _, step := range s.Timeline {
		switch step.Action {
		case "join":
			declared := roster[step.Identity]
			events = append(events, &ffi.RoomEvent{
				Kind: ffi.RoomParticipantConnected,
				ParticipantConnected: &ffi.ParticipantConnectedEvent{
					Participant: ffi.OwnedParticipant{Info: ffi.ParticipantInfo{
						SID:        "PA_" + step.Identity,
						Identity:   step.Identity,
						Name:       declared.Name,
						Metadata:   declared.Metadata,
						Attributes: declared.Attributes,
					}},
				},
			})
		case "leave":
			events = append(events, &ffi.RoomEvent{
				Kind:                    ffi.RoomParticipantDisconnected,
				ParticipantDisconnected: &ffi.ParticipantDisconnectedEvent{Identity: step.Identity},
			})
		case "publish":
			kind, _ := parseTrackKind(step.Kind)
			source, _ := parseTrackSource(step.Source)
			events = append(events, &ffi.RoomEvent{
				Kind: ffi.RoomTrackPublished,
				TrackPublished: &ffi.TrackPublishedEvent{
					Identity: step.Identity,
					Publication: ffi.OwnedPublication{Info: ffi.PublicationInfo{
						SID:    trackSID(step.Identity, step.Track),
						Name:   step.Track,
						Kind:   kind,
						Source: source,
					}},
				},
			})
		case "unpublish":
			events = append(events, &ffi.RoomEvent{
				Kind: ffi.RoomTrackUnpublished,
				TrackUnpublished: &ffi.TrackUnpublishedEvent{
					Identity:       step.Identity,
					PublicationSID: trackSID(step.Identity, step.Track),
				},
			})
		case "subscribe":
			sid := trackSID(step.Identity, step.Track)
			events = append(events, &ffi.RoomEvent{
				Kind: ffi.RoomTrackSubscribed,
				TrackSubscribed: &ffi.TrackSubscribedEvent{
					Identity: step.Identity,
					Track: ffi.OwnedTrack{Info: ffi.TrackInfo{
						SID:  sid,
						Name: step.Track,
						Kind: publishedKind(s.Timeline, step.Identity, step.Track),
					}},
				},
			})
		case "unsubscribe":
			events = append(events, &ffi.RoomEvent{
				Kind: ffi.RoomTrackUnsubscribed,
				TrackUnsubscribed: &ffi.TrackUnsubscribedEvent{
					Identity: step.Identity,
					TrackSID: trackSID(step.Identity, step.Track),
				},
			})
		case "mute":
			events = append(events, &ffi.RoomEvent{
				Kind:       ffi.RoomTrackMuted,
				TrackMuted: &ffi.TrackMuteEvent{Identity: step.Identity, TrackSID: trackSID(step.Identity, step.Track)},
			})
		case "unmute":
			events = append(events, &ffi.RoomEvent{
				Kind:         ffi.RoomTrackUnmuted,
				TrackUnmuted: &ffi.TrackMuteEvent{Identity: step.Identity, TrackSID: trackSID(step.Identity, step.Track)},
			})
		case "data":
			events = append(events, &ffi.RoomEvent{
				Kind: ffi.RoomDataPacketReceived,
				DataPacketReceived: &ffi.DataPacketReceivedEvent{
					PacketKind: ffi.DataPacketUser,
					Identity:   step.Identity,
					User: &ffi.UserDataPacket{
						Buffer:   ffi.OwnedBuffer{Length: uint32(step.Size)},
						Topic:    step.Topic,
						Reliable: true,
					},
				},
			})
		case "metadata":
			if step.Identity == "" {
				events = append(events, &ffi.RoomEvent{
					Kind:            ffi.RoomMetadataChanged,
					MetadataChanged: &ffi.RoomMetadataChangedEvent{Metadata: step.Value},
				})
				break
			}
			events = append(events, &ffi.RoomEvent{
				Kind: ffi.RoomParticipantMetadataChanged,
				ParticipantMetadataChanged: &ffi.ParticipantMetadataChangedEvent{
					Identity: step.Identity,
					Metadata: step.Value,
				},
			})
		case "name":
			events = append(events, &ffi.RoomEvent{
				Kind: ffi.RoomParticipantNameChanged,
				ParticipantNameChanged: &ffi.ParticipantNameChangedEvent{
					Identity: step.Identity,
					Name:     step.Value,
				},
			})
		case "speakers":
			events = append(events, &ffi.RoomEvent{
				Kind:                  ffi.RoomActiveSpeakersChanged,
				ActiveSpeakersChanged: &ffi.ActiveSpeakersChangedEvent{Identities: step.Identities},
			})
		}
	}

	return events
}

func trackSID(identity, track string) string {
	return "TR_" + identity + "_" + track
}

// publishedKind finds the track kind a subscribe step inherits from
// the matching publish step earlier in the timeline.
func publishedKind(timeline []Step, identity, track string) ffi.TrackKind {
	kind := ffi.TrackUnknown
	for _, step := range timeline {
		if step.Action == "publish" && step.Identity == identity && step.Track == track {
			kind, _ = parseTrackKind(step.Kind)
		}
	}
	return kind
}

func parseTrackKind(name string) (ffi.TrackKind, error) {
	switch name {
	case "audio":
		return ffi.TrackAudio, nil
	case "video":
		return ffi.TrackVideo, nil
	default:
		return ffi.TrackUnknown, fmt.Errorf("unknown track kind %q (want audio or video)", name)
	}
}

func parseTrackSource(name string) (ffi.TrackSource, error) {
	switch name {
	case "", "unknown":
		return ffi.SourceUnknown, nil
	case "camera":
		return ffi.SourceCamera, nil
	case "microphone":
		return ffi.SourceMicrophone, nil
	case "screenshare":
		return ffi.SourceScreenShare, nil
	case "screenshare_audio":
		return ffi.SourceScreenShareAudio, nil
	default:
		return ffi.SourceUnknown, fmt.Errorf("unknown track source %q", name)
	}
}
