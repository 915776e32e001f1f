// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package rtc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/atrium-rtc/atrium/ffi"
	"github.com/atrium-rtc/atrium/lib/testutil"
)

const (
	waitTimeout = 5 * time.Second
	quietWindow = 50 * time.Millisecond
)

type roomEnv struct {
	engine      *ffi.MemoryEngine
	client      *ffi.Client
	room        *Room
	roomHandle  uint64
	localHandle uint64
}

// newTestRoom connects a room against a scripted engine. The connect
// responder mints the room and local participant handles and, when
// roster entries are given, includes them in the result.
func newTestRoom(t *testing.T, roster ...ffi.ConnectParticipant) *roomEnv {
	t.Helper()

	env := &roomEnv{engine: ffi.NewMemoryEngine()}
	env.engine.Respond(ffi.RequestConnect, func(e *ffi.MemoryEngine, asyncID uint64, _ *ffi.Request) []*ffi.Event {
		env.roomHandle = e.MintHandle()
		env.localHandle = e.MintHandle()
		return []*ffi.Event{{Kind: ffi.EventConnectResult, ConnectResult: &ffi.ConnectResult{
			AsyncID: asyncID,
			Room:    ffi.OwnedRoom{Handle: env.roomHandle, Info: ffi.RoomInfo{Name: "conference"}},
			LocalParticipant: ffi.OwnedParticipant{
				Handle: e.MintHandle(),
				Info:   ffi.ParticipantInfo{SID: "PA_local", Identity: "local"},
			},
			Participants: roster,
		}}}
	})

	client, err := ffi.NewClient(ffi.ClientConfig{Engine: env.engine, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	room, err := Connect(context.Background(), client, "wss://engine.test", "token", DefaultRoomOptions())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	env.client = client
	env.room = room
	return env
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// listen registers a buffered channel listener for one event type.
func listen[E Event](t *testing.T, room *Room) <-chan E {
	t.Helper()
	ch := make(chan E, 16)
	On(room, func(e E) { ch <- e })
	return ch
}

// joinRemote announces a remote participant and waits for its mirror.
func (env *roomEnv) joinRemote(t *testing.T, identity string) *RemoteParticipant {
	t.Helper()
	connected := listen[ParticipantConnected](t, env.room)
	env.emitRoom(t, &ffi.RoomEvent{
		Kind: ffi.RoomParticipantConnected,
		ParticipantConnected: &ffi.ParticipantConnectedEvent{
			Participant: ffi.OwnedParticipant{
				Handle: env.engine.NewHandle(),
				Info:   ffi.ParticipantInfo{SID: "PA_" + identity, Identity: identity},
			},
		},
	})
	return testutil.RequireReceive(t, connected, waitTimeout, "participant %s joining", identity).Participant
}

// publishRemote announces a publication on a remote participant.
func (env *roomEnv) publishRemote(t *testing.T, identity, trackSID string, kind ffi.TrackKind) *RemoteTrackPublication {
	t.Helper()
	published := listen[TrackPublished](t, env.room)
	env.emitRoom(t, &ffi.RoomEvent{
		Kind: ffi.RoomTrackPublished,
		TrackPublished: &ffi.TrackPublishedEvent{
			Identity: identity,
			Publication: ffi.OwnedPublication{
				Handle: env.engine.NewHandle(),
				Info:   ffi.PublicationInfo{SID: trackSID, Kind: kind},
			},
		},
	})
	return testutil.RequireReceive(t, published, waitTimeout, "publication %s", trackSID).Publication
}

func (env *roomEnv) emitRoom(t *testing.T, event *ffi.RoomEvent) {
	t.Helper()
	if event.RoomHandle == 0 {
		event.RoomHandle = env.roomHandle
	}
	if err := env.engine.EmitRoomEvent(event); err != nil {
		t.Fatalf("EmitRoomEvent(%s): %v", event.Kind, err)
	}
}

func TestConnect(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		env := newTestRoom(t)
		if got := env.room.Name(); got != "conference" {
			t.Fatalf("Name() = %q, want %q", got, "conference")
		}
		if got := env.room.ConnectionState(); got != ffi.ConnConnected {
			t.Fatalf("ConnectionState() = %v, want connected", got)
		}
		if got := env.room.LocalParticipant().Identity(); got != "local" {
			t.Fatalf("local identity = %q, want %q", got, "local")
		}
	})

	t.Run("engine error is verbatim", func(t *testing.T) {
		engine := ffi.NewMemoryEngine()
		engine.Respond(ffi.RequestConnect, func(_ *ffi.MemoryEngine, asyncID uint64, _ *ffi.Request) []*ffi.Event {
			return []*ffi.Event{{Kind: ffi.EventConnectResult, ConnectResult: &ffi.ConnectResult{
				AsyncID: asyncID,
				Error:   "invalid token",
			}}}
		})
		client, err := ffi.NewClient(ffi.ClientConfig{Engine: engine, Logger: discardLogger()})
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}
		t.Cleanup(func() { client.Close() })

		_, err = Connect(context.Background(), client, "wss://engine.test", "bad", DefaultRoomOptions())
		if !IsConnectError(err) {
			t.Fatalf("Connect error = %v, want *ConnectError", err)
		}
		if got := err.(*ConnectError).Message; got != "invalid token" {
			t.Fatalf("ConnectError.Message = %q, want the engine's exact message", got)
		}
	})

	t.Run("roster replay", func(t *testing.T) {
		env := newTestRoom(t, ffi.ConnectParticipant{
			Participant: ffi.OwnedParticipant{
				Handle: 100,
				Info:   ffi.ParticipantInfo{SID: "PA_alice", Identity: "alice"},
			},
			Publications: []ffi.OwnedPublication{{
				Handle: 101,
				Info:   ffi.PublicationInfo{SID: "TR_mic", Kind: ffi.TrackAudio},
			}},
		})

		alice, ok := env.room.RemoteParticipant("alice")
		if !ok {
			t.Fatal("roster participant missing after connect")
		}
		publication, ok := alice.publication("TR_mic")
		if !ok {
			t.Fatal("roster publication missing after connect")
		}
		if publication.Kind() != ffi.TrackAudio {
			t.Fatalf("publication kind = %v, want audio", publication.Kind())
		}
	})
}

func TestRoomSID(t *testing.T) {
	env := newTestRoom(t)

	// Not assigned yet: SID must block, never poll.
	resolved := make(chan string, 1)
	go func() {
		sid, err := env.room.SID(context.Background())
		if err == nil {
			resolved <- sid
		}
	}()
	testutil.RequireNoReceive(t, resolved, quietWindow, "sid resolved before assignment")

	env.emitRoom(t, &ffi.RoomEvent{
		Kind:       ffi.RoomSIDChanged,
		SIDChanged: &ffi.RoomSIDChangedEvent{SID: "RM_first"},
	})
	if got := testutil.RequireReceive(t, resolved, waitTimeout, "sid assignment"); got != "RM_first" {
		t.Fatalf("SID = %q, want %q", got, "RM_first")
	}

	// A later value updates the stored sid without re-resolving.
	metadata := listen[RoomMetadataChanged](t, env.room)
	env.emitRoom(t, &ffi.RoomEvent{
		Kind:       ffi.RoomSIDChanged,
		SIDChanged: &ffi.RoomSIDChangedEvent{SID: "RM_second"},
	})
	env.emitRoom(t, &ffi.RoomEvent{
		Kind:            ffi.RoomMetadataChanged,
		MetadataChanged: &ffi.RoomMetadataChangedEvent{Metadata: "fence"},
	})
	testutil.RequireReceive(t, metadata, waitTimeout, "fence event")

	sid, err := env.room.SID(context.Background())
	if err != nil {
		t.Fatalf("SID: %v", err)
	}
	if sid != "RM_second" {
		t.Fatalf("SID = %q, want %q", sid, "RM_second")
	}

	// Cancelled context before assignment.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	other := newTestRoom(t)
	if _, err := other.room.SID(ctx); err == nil {
		t.Fatal("SID with cancelled context returned nil error")
	}
}

func TestDispatchFiltersOtherSessions(t *testing.T) {
	env := newTestRoom(t)
	connected := listen[ParticipantConnected](t, env.room)

	env.emitRoom(t, &ffi.RoomEvent{
		RoomHandle: env.roomHandle + 1000,
		Kind:       ffi.RoomParticipantConnected,
		ParticipantConnected: &ffi.ParticipantConnectedEvent{
			Participant: ffi.OwnedParticipant{Handle: 999, Info: ffi.ParticipantInfo{Identity: "stranger"}},
		},
	})
	testutil.RequireNoReceive(t, connected, quietWindow, "event for another session leaked through")
	if _, ok := env.room.RemoteParticipant("stranger"); ok {
		t.Fatal("another session's participant entered the roster")
	}
}

func TestDispatchOrdering(t *testing.T) {
	// Three causally ordered events must notify in emission order:
	// join, publish, metadata.
	env := newTestRoom(t)

	order := make(chan string, 3)
	On(env.room, func(ParticipantConnected) { order <- "connected" })
	On(env.room, func(TrackPublished) { order <- "published" })
	On(env.room, func(ParticipantMetadataChanged) { order <- "metadata" })

	env.emitRoom(t, &ffi.RoomEvent{
		Kind: ffi.RoomParticipantConnected,
		ParticipantConnected: &ffi.ParticipantConnectedEvent{
			Participant: ffi.OwnedParticipant{Handle: env.engine.NewHandle(), Info: ffi.ParticipantInfo{Identity: "alice"}},
		},
	})
	env.emitRoom(t, &ffi.RoomEvent{
		Kind: ffi.RoomTrackPublished,
		TrackPublished: &ffi.TrackPublishedEvent{
			Identity:    "alice",
			Publication: ffi.OwnedPublication{Handle: env.engine.NewHandle(), Info: ffi.PublicationInfo{SID: "TR_cam", Kind: ffi.TrackVideo}},
		},
	})
	env.emitRoom(t, &ffi.RoomEvent{
		Kind:                       ffi.RoomParticipantMetadataChanged,
		ParticipantMetadataChanged: &ffi.ParticipantMetadataChangedEvent{Identity: "alice", Metadata: "m"},
	})

	for _, want := range []string{"connected", "published", "metadata"} {
		if got := testutil.RequireReceive(t, order, waitTimeout, "ordered notification"); got != want {
			t.Fatalf("notification order: got %q, want %q", got, want)
		}
	}
}

func TestDispatchLookupMissPolicy(t *testing.T) {
	t.Run("required miss drops event", func(t *testing.T) {
		env := newTestRoom(t)
		muted := listen[TrackMuted](t, env.room)
		env.emitRoom(t, &ffi.RoomEvent{
			Kind:       ffi.RoomTrackMuted,
			TrackMuted: &ffi.TrackMuteEvent{Identity: "ghost", TrackSID: "TR_none"},
		})
		testutil.RequireNoReceive(t, muted, quietWindow, "mute for unknown participant notified")
	})

	t.Run("miss does not stop the loop", func(t *testing.T) {
		env := newTestRoom(t)
		connected := listen[ParticipantConnected](t, env.room)
		env.emitRoom(t, &ffi.RoomEvent{
			Kind:                    ffi.RoomParticipantDisconnected,
			ParticipantDisconnected: &ffi.ParticipantDisconnectedEvent{Identity: "ghost"},
		})
		env.joinRemote(t, "alice")
		testutil.RequireReceive(t, connected, waitTimeout, "loop survived a lookup fault")
	})

	t.Run("active speakers skip unresolved", func(t *testing.T) {
		env := newTestRoom(t)
		env.joinRemote(t, "alice")
		speakers := listen[ActiveSpeakersChanged](t, env.room)
		env.emitRoom(t, &ffi.RoomEvent{
			Kind:                  ffi.RoomActiveSpeakersChanged,
			ActiveSpeakersChanged: &ffi.ActiveSpeakersChangedEvent{Identities: []string{"alice", "ghost", "local"}},
		})
		got := testutil.RequireReceive(t, speakers, waitTimeout, "speakers")
		if len(got.Speakers) != 2 {
			t.Fatalf("resolved %d speakers, want 2 (ghost skipped)", len(got.Speakers))
		}
	})

	t.Run("quality tolerates unknown participant", func(t *testing.T) {
		env := newTestRoom(t)
		quality := listen[ConnectionQualityChanged](t, env.room)
		env.emitRoom(t, &ffi.RoomEvent{
			Kind:                     ffi.RoomConnectionQualityChanged,
			ConnectionQualityChanged: &ffi.ConnectionQualityChangedEvent{Identity: "ghost", Quality: ffi.QualityPoor},
		})
		got := testutil.RequireReceive(t, quality, waitTimeout, "quality")
		if got.Participant != nil {
			t.Fatalf("unknown identity resolved to %v, want nil", got.Participant)
		}
	})

	t.Run("duplicate join is a fault", func(t *testing.T) {
		env := newTestRoom(t)
		env.joinRemote(t, "alice")
		connected := listen[ParticipantConnected](t, env.room)
		env.emitRoom(t, &ffi.RoomEvent{
			Kind: ffi.RoomParticipantConnected,
			ParticipantConnected: &ffi.ParticipantConnectedEvent{
				Participant: ffi.OwnedParticipant{Handle: env.engine.NewHandle(), Info: ffi.ParticipantInfo{Identity: "alice"}},
			},
		})
		testutil.RequireNoReceive(t, connected, quietWindow, "duplicate join notified")
	})
}

func TestTrackSubscriptionLifecycle(t *testing.T) {
	env := newTestRoom(t)
	alice := env.joinRemote(t, "alice")
	publication := env.publishRemote(t, "alice", "TR_cam", ffi.TrackVideo)

	subscribed := listen[TrackSubscribed](t, env.room)
	env.emitRoom(t, &ffi.RoomEvent{
		Kind: ffi.RoomTrackSubscribed,
		TrackSubscribed: &ffi.TrackSubscribedEvent{
			Identity: "alice",
			Track: ffi.OwnedTrack{
				Handle: env.engine.NewHandle(),
				Info:   ffi.TrackInfo{SID: "TR_cam", Kind: ffi.TrackVideo},
			},
		},
	})
	sub := testutil.RequireReceive(t, subscribed, waitTimeout, "subscription")
	if sub.Publication != publication {
		t.Fatal("subscription notified with a different publication")
	}
	if !publication.IsSubscribed() {
		t.Fatal("publication not marked subscribed")
	}
	if publication.Track() != sub.Track {
		t.Fatal("publication track reference not attached")
	}
	if _, ok := sub.Track.(*RemoteVideoTrack); !ok {
		t.Fatalf("track type = %T, want *RemoteVideoTrack", sub.Track)
	}

	// Unsubscribe clears the reference but never destroys the track.
	unsubscribed := listen[TrackUnsubscribed](t, env.room)
	env.emitRoom(t, &ffi.RoomEvent{
		Kind:              ffi.RoomTrackUnsubscribed,
		TrackUnsubscribed: &ffi.TrackUnsubscribedEvent{Identity: "alice", TrackSID: "TR_cam"},
	})
	unsub := testutil.RequireReceive(t, unsubscribed, waitTimeout, "unsubscription")
	if unsub.Track != sub.Track {
		t.Fatal("unsubscription notified with a different track")
	}
	if publication.IsSubscribed() {
		t.Fatal("publication still marked subscribed")
	}
	if publication.Track() != nil {
		t.Fatal("publication track reference not cleared")
	}
	if _, ok := alice.publication("TR_cam"); !ok {
		t.Fatal("publication removed by unsubscribe")
	}
}

func TestTrackMuteIsIdempotent(t *testing.T) {
	env := newTestRoom(t)
	env.joinRemote(t, "alice")
	publication := env.publishRemote(t, "alice", "TR_mic", ffi.TrackAudio)

	muted := listen[TrackMuted](t, env.room)
	for i := 0; i < 2; i++ {
		env.emitRoom(t, &ffi.RoomEvent{
			Kind:       ffi.RoomTrackMuted,
			TrackMuted: &ffi.TrackMuteEvent{Identity: "alice", TrackSID: "TR_mic"},
		})
		got := testutil.RequireReceive(t, muted, waitTimeout, "mute notification %d", i)
		if got.Publication != publication {
			t.Fatal("mute notified with a different publication")
		}
		if !publication.IsMuted() {
			t.Fatal("publication not muted")
		}
	}

	unmuted := listen[TrackUnmuted](t, env.room)
	env.emitRoom(t, &ffi.RoomEvent{
		Kind:         ffi.RoomTrackUnmuted,
		TrackUnmuted: &ffi.TrackMuteEvent{Identity: "alice", TrackSID: "TR_mic"},
	})
	testutil.RequireReceive(t, unmuted, waitTimeout, "unmute notification")
	if publication.IsMuted() {
		t.Fatal("publication still muted")
	}
}

func TestParticipantAttributes(t *testing.T) {
	env := newTestRoom(t)
	alice := env.joinRemote(t, "alice")

	changed := listen[ParticipantAttributesChanged](t, env.room)
	env.emitRoom(t, &ffi.RoomEvent{
		Kind: ffi.RoomParticipantAttributesChanged,
		ParticipantAttributesChanged: &ffi.ParticipantAttributesChangedEvent{
			Identity:   "alice",
			Attributes: map[string]string{"a": "1", "b": "2"},
			Changed:    map[string]string{"b": "2"},
		},
	})
	got := testutil.RequireReceive(t, changed, waitTimeout, "attributes")

	// The notification carries the engine's delta, not the full map.
	if len(got.Changed) != 1 || got.Changed["b"] != "2" {
		t.Fatalf("Changed = %v, want the reported delta only", got.Changed)
	}
	// The mirror stores the authoritative full map.
	attributes := alice.Attributes()
	if len(attributes) != 2 || attributes["a"] != "1" || attributes["b"] != "2" {
		t.Fatalf("Attributes() = %v, want the full reported map", attributes)
	}
}

func TestDataPackets(t *testing.T) {
	t.Run("user payload is copied then released", func(t *testing.T) {
		env := newTestRoom(t)
		env.joinRemote(t, "alice")

		payload := []byte("hello")
		buffer := env.engine.PinBuffer(payload)
		received := listen[DataReceived](t, env.room)
		env.emitRoom(t, &ffi.RoomEvent{
			Kind: ffi.RoomDataPacketReceived,
			DataPacketReceived: &ffi.DataPacketReceivedEvent{
				PacketKind: ffi.DataPacketUser,
				Identity:   "alice",
				User:       &ffi.UserDataPacket{Buffer: buffer, Topic: "chat"},
			},
		})

		got := testutil.RequireReceive(t, received, waitTimeout, "data packet")
		if string(got.Packet.Data) != "hello" {
			t.Fatalf("payload = %q, want %q", got.Packet.Data, "hello")
		}
		if got.Packet.Topic != "chat" {
			t.Fatalf("topic = %q, want %q", got.Packet.Topic, "chat")
		}
		if got.Packet.Participant == nil || got.Packet.Participant.Identity() != "alice" {
			t.Fatal("sender not resolved")
		}
		if got := env.engine.DropCount(buffer.Handle); got != 1 {
			t.Fatalf("buffer dropped %d times, want exactly once", got)
		}
	})

	t.Run("unknown sender resolves to nil", func(t *testing.T) {
		env := newTestRoom(t)
		received := listen[DataReceived](t, env.room)
		env.emitRoom(t, &ffi.RoomEvent{
			Kind: ffi.RoomDataPacketReceived,
			DataPacketReceived: &ffi.DataPacketReceivedEvent{
				PacketKind: ffi.DataPacketUser,
				User:       &ffi.UserDataPacket{Buffer: env.engine.PinBuffer([]byte("x"))},
			},
		})
		got := testutil.RequireReceive(t, received, waitTimeout, "server-originated packet")
		if got.Packet.Participant != nil {
			t.Fatal("server-originated packet resolved a sender")
		}
	})

	t.Run("sip dtmf", func(t *testing.T) {
		env := newTestRoom(t)
		received := listen[SIPDTMFReceived](t, env.room)
		env.emitRoom(t, &ffi.RoomEvent{
			Kind: ffi.RoomDataPacketReceived,
			DataPacketReceived: &ffi.DataPacketReceivedEvent{
				PacketKind: ffi.DataPacketSIPDTMF,
				SIPDTMF:    &ffi.SIPDTMFPacket{Code: 5, Digit: "5"},
			},
		})
		got := testutil.RequireReceive(t, received, waitTimeout, "dtmf")
		if got.DTMF.Code != 5 || got.DTMF.Digit != "5" {
			t.Fatalf("DTMF = %+v, want code 5 digit 5", got.DTMF)
		}
	})
}

func TestListenerPanicDoesNotStopLoop(t *testing.T) {
	env := newTestRoom(t)
	On(env.room, func(ParticipantConnected) { panic("listener bug") })

	env.joinRemote(t, "alice") // would not return if the loop died
	env.joinRemote(t, "bob")
	if _, ok := env.room.RemoteParticipant("bob"); !ok {
		t.Fatal("loop did not survive a listener panic")
	}
}

func TestRemoveListener(t *testing.T) {
	env := newTestRoom(t)
	ch := make(chan ParticipantConnected, 1)
	id := On(env.room, func(e ParticipantConnected) { ch <- e })
	env.room.RemoveListener(id)

	env.joinRemote(t, "alice")
	testutil.RequireNoReceive(t, ch, quietWindow, "removed listener notified")
}

func TestRoomBroadcastBackpressure(t *testing.T) {
	env := newTestRoom(t)
	sub := env.room.Subscribe()
	defer sub.Close()

	env.joinRemote(t, "alice")
	connected := listen[ParticipantConnected](t, env.room)

	// The loop republished alice's event and is now blocked until it
	// is acknowledged; the next event must not be processed.
	env.emitRoom(t, &ffi.RoomEvent{
		Kind: ffi.RoomParticipantConnected,
		ParticipantConnected: &ffi.ParticipantConnectedEvent{
			Participant: ffi.OwnedParticipant{Handle: env.engine.NewHandle(), Info: ffi.ParticipantInfo{Identity: "bob"}},
		},
	})
	testutil.RequireNoReceive(t, connected, quietWindow, "loop advanced past an unacknowledged event")

	event, err := sub.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if event.Kind != ffi.RoomParticipantConnected {
		t.Fatalf("republished kind = %s, want participant_connected", event.Kind)
	}
	sub.Ack()

	testutil.RequireReceive(t, connected, waitTimeout, "loop resumed after acknowledgement")
}

func TestRoomBroadcastCloseReleasesLoop(t *testing.T) {
	env := newTestRoom(t)
	sub := env.room.Subscribe()

	env.joinRemote(t, "alice")
	connected := listen[ParticipantConnected](t, env.room)
	env.emitRoom(t, &ffi.RoomEvent{
		Kind: ffi.RoomParticipantConnected,
		ParticipantConnected: &ffi.ParticipantConnectedEvent{
			Participant: ffi.OwnedParticipant{Handle: env.engine.NewHandle(), Info: ffi.ParticipantInfo{Identity: "bob"}},
		},
	})
	testutil.RequireNoReceive(t, connected, quietWindow, "loop advanced past an unacknowledged event")

	// Closing forgives the backlog.
	sub.Close()
	testutil.RequireReceive(t, connected, waitTimeout, "loop resumed after subscriber close")
}

func TestDisconnect(t *testing.T) {
	env := newTestRoom(t)
	env.engine.Respond(ffi.RequestDisconnect, func(_ *ffi.MemoryEngine, asyncID uint64, request *ffi.Request) []*ffi.Event {
		return []*ffi.Event{
			{Kind: ffi.EventDisconnectResult, DisconnectResult: &ffi.DisconnectResult{AsyncID: asyncID}},
			{Kind: ffi.EventRoom, Room: &ffi.RoomEvent{
				RoomHandle: request.Disconnect.RoomHandle,
				Kind:       ffi.RoomEOS,
			}},
		}
	})

	if err := env.room.Disconnect(context.Background()); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if got := env.room.ConnectionState(); got != ffi.ConnDisconnected {
		t.Fatalf("ConnectionState() = %v, want disconnected", got)
	}
	testutil.RequireClosed(t, env.room.Done(), waitTimeout, "dispatch loop termination")

	if got := env.engine.DropCount(env.roomHandle); got != 1 {
		t.Fatalf("room handle dropped %d times, want exactly once", got)
	}

	// Second disconnect is a no-op, not a second request.
	before := len(env.engine.Requests())
	if err := env.room.Disconnect(context.Background()); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
	if got := len(env.engine.Requests()); got != before {
		t.Fatal("second Disconnect sent a request")
	}
	if violations := env.engine.DoubleDrops(); len(violations) != 0 {
		t.Fatalf("handles dropped more than once: %v", violations)
	}
}

func TestEngineSideDisconnect(t *testing.T) {
	env := newTestRoom(t)
	disconnected := listen[Disconnected](t, env.room)

	env.emitRoom(t, &ffi.RoomEvent{
		Kind:         ffi.RoomDisconnected,
		Disconnected: &ffi.DisconnectedEvent{Reason: ffi.ReasonServerShutdown},
	})
	got := testutil.RequireReceive(t, disconnected, waitTimeout, "disconnect notification")
	if got.Reason != ffi.ReasonServerShutdown {
		t.Fatalf("Reason = %v, want server_shutdown", got.Reason)
	}

	env.emitRoom(t, &ffi.RoomEvent{Kind: ffi.RoomEOS})
	testutil.RequireClosed(t, env.room.Done(), waitTimeout, "loop exit on end of stream")
}

func TestSessionEndDetachesFromFeed(t *testing.T) {
	env := newTestRoom(t)

	env.emitRoom(t, &ffi.RoomEvent{Kind: ffi.RoomEOS})
	testutil.RequireClosed(t, env.room.Done(), waitTimeout, "loop exit on end of stream")

	// The feed outlives the session. Traffic for other sessions must
	// not accumulate in the dead session's subscription queue.
	for i := 0; i < 3; i++ {
		err := env.engine.EmitRoomEvent(&ffi.RoomEvent{
			RoomHandle: env.roomHandle + 100,
			Kind:       ffi.RoomConnected,
		})
		if err != nil {
			t.Fatalf("EmitRoomEvent: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if _, err := env.room.sub.Next(ctx); !errors.Is(err, ffi.ErrSubscriptionClosed) {
		t.Fatalf("Next on the session's subscription = %v, want ErrSubscriptionClosed", err)
	}
}

func TestConnectionStateTransitions(t *testing.T) {
	env := newTestRoom(t)
	reconnecting := listen[Reconnecting](t, env.room)
	reconnected := listen[Reconnected](t, env.room)

	env.emitRoom(t, &ffi.RoomEvent{Kind: ffi.RoomReconnecting})
	testutil.RequireReceive(t, reconnecting, waitTimeout, "reconnecting")
	if got := env.room.ConnectionState(); got != ffi.ConnReconnecting {
		t.Fatalf("state = %v, want reconnecting", got)
	}

	env.emitRoom(t, &ffi.RoomEvent{Kind: ffi.RoomReconnected})
	testutil.RequireReceive(t, reconnected, waitTimeout, "reconnected")
	if got := env.room.ConnectionState(); got != ffi.ConnConnected {
		t.Fatalf("state = %v, want connected", got)
	}
}
