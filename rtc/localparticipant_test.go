// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package rtc

import (
	"context"
	"errors"
	"testing"

	"github.com/atrium-rtc/atrium/ffi"
	"github.com/atrium-rtc/atrium/lib/testutil"
)

// newLocalAudioTrackForTest scripts track creation and returns a
// ready local track.
func newLocalAudioTrackForTest(t *testing.T, env *roomEnv, name string) *LocalAudioTrack {
	t.Helper()
	env.engine.Respond(ffi.RequestCreateAudioTrack, func(e *ffi.MemoryEngine, asyncID uint64, request *ffi.Request) []*ffi.Event {
		return []*ffi.Event{{Kind: ffi.EventCreateTrackResult, CreateTrackResult: &ffi.CreateTrackResult{
			AsyncID: asyncID,
			Track: ffi.OwnedTrack{
				Handle: e.MintHandle(),
				Info:   ffi.TrackInfo{SID: "TR_" + request.CreateAudioTrack.Name, Name: request.CreateAudioTrack.Name, Kind: ffi.TrackAudio},
			},
		}}}
	})
	track, err := NewLocalAudioTrack(context.Background(), env.client, name, 7)
	if err != nil {
		t.Fatalf("NewLocalAudioTrack: %v", err)
	}
	return track
}

// respondPublish scripts a successful publish result. The lifecycle
// event follows the result per the ordering contract; tests emit it
// once the result has resolved.
func respondPublish(env *roomEnv, trackSID string) {
	env.engine.Respond(ffi.RequestPublishTrack, func(e *ffi.MemoryEngine, asyncID uint64, request *ffi.Request) []*ffi.Event {
		return []*ffi.Event{{Kind: ffi.EventPublishTrackResult, PublishTrackResult: &ffi.PublishTrackResult{
			AsyncID: asyncID,
			Publication: ffi.OwnedPublication{
				Handle: e.MintHandle(),
				Info:   ffi.PublicationInfo{SID: trackSID, Name: request.PublishTrack.Name, Kind: ffi.TrackAudio},
			},
		}}}
	})
}

func TestPublishTrack(t *testing.T) {
	env := newTestRoom(t)
	track := newLocalAudioTrackForTest(t, env, "mic")
	respondPublish(env, "TR_pub")

	published := listen[LocalTrackPublished](t, env.room)
	publication, err := env.room.LocalParticipant().PublishTrack(context.Background(), track, TrackPublishOptions{
		Name:   "mic",
		Source: ffi.SourceMicrophone,
	})
	if err != nil {
		t.Fatalf("PublishTrack: %v", err)
	}
	if publication.SID() != "TR_pub" {
		t.Fatalf("publication sid = %q, want %q", publication.SID(), "TR_pub")
	}
	if publication.Track() != track {
		t.Fatal("publication does not reference the published track")
	}
	if _, ok := env.room.LocalParticipant().publication("TR_pub"); !ok {
		t.Fatal("publication not installed on the local participant")
	}

	env.emitRoom(t, &ffi.RoomEvent{
		Kind:                ffi.RoomLocalTrackPublished,
		LocalTrackPublished: &ffi.LocalTrackPublishedEvent{TrackSID: "TR_pub"},
	})
	got := testutil.RequireReceive(t, published, waitTimeout, "lifecycle notification")
	if got.Publication != publication {
		t.Fatal("lifecycle notification carries a different publication")
	}
	if got.Track != track {
		t.Fatal("lifecycle notification carries a different track")
	}
}

func TestPublishTrackError(t *testing.T) {
	env := newTestRoom(t)
	track := newLocalAudioTrackForTest(t, env, "mic")
	env.engine.Respond(ffi.RequestPublishTrack, func(_ *ffi.MemoryEngine, asyncID uint64, _ *ffi.Request) []*ffi.Event {
		return []*ffi.Event{{Kind: ffi.EventPublishTrackResult, PublishTrackResult: &ffi.PublishTrackResult{
			AsyncID: asyncID,
			Error:   "permission denied",
		}}}
	})

	_, err := env.room.LocalParticipant().PublishTrack(context.Background(), track, TrackPublishOptions{})
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("PublishTrack error = %v, want *RequestError", err)
	}
	if reqErr.Message != "permission denied" {
		t.Fatalf("Message = %q, want the engine's exact message", reqErr.Message)
	}
	if len(env.room.LocalParticipant().TrackPublications()) != 0 {
		t.Fatal("failed publish left a publication behind")
	}
}

func TestUnpublishTrack(t *testing.T) {
	env := newTestRoom(t)
	track := newLocalAudioTrackForTest(t, env, "mic")
	respondPublish(env, "TR_pub")
	local := env.room.LocalParticipant()
	if _, err := local.PublishTrack(context.Background(), track, TrackPublishOptions{}); err != nil {
		t.Fatalf("PublishTrack: %v", err)
	}

	// The lifecycle event precedes the result, the reverse of publish.
	env.engine.Respond(ffi.RequestUnpublishTrack, func(_ *ffi.MemoryEngine, asyncID uint64, request *ffi.Request) []*ffi.Event {
		return []*ffi.Event{
			{Kind: ffi.EventRoom, Room: &ffi.RoomEvent{
				RoomHandle:            request.UnpublishTrack.RoomHandle,
				Kind:                  ffi.RoomLocalTrackUnpublished,
				LocalTrackUnpublished: &ffi.LocalTrackUnpublishedEvent{PublicationSID: request.UnpublishTrack.TrackSID},
			}},
			{Kind: ffi.EventUnpublishTrackResult, UnpublishTrackResult: &ffi.UnpublishTrackResult{AsyncID: asyncID}},
		}
	})

	unpublished := listen[LocalTrackUnpublished](t, env.room)
	if err := local.UnpublishTrack(context.Background(), "TR_pub"); err != nil {
		t.Fatalf("UnpublishTrack: %v", err)
	}
	got := testutil.RequireReceive(t, unpublished, waitTimeout, "unpublish notification")
	if got.Publication.SID() != "TR_pub" {
		t.Fatalf("notified publication sid = %q, want %q", got.Publication.SID(), "TR_pub")
	}
	if _, ok := local.publication("TR_pub"); ok {
		t.Fatal("publication still on the local participant")
	}
	if got.Publication.Track() != nil {
		t.Fatal("unpublished publication still references its track")
	}
}

func TestWaitSubscribed(t *testing.T) {
	env := newTestRoom(t)
	track := newLocalAudioTrackForTest(t, env, "mic")
	respondPublish(env, "TR_pub")
	publication, err := env.room.LocalParticipant().PublishTrack(context.Background(), track, TrackPublishOptions{})
	if err != nil {
		t.Fatalf("PublishTrack: %v", err)
	}

	resolved := make(chan struct{})
	go func() {
		if err := publication.WaitSubscribed(context.Background()); err == nil {
			close(resolved)
		}
	}()
	testutil.RequireNoReceive(t, resolved, quietWindow, "resolved before first subscriber")

	subscribed := listen[LocalTrackSubscribed](t, env.room)
	env.emitRoom(t, &ffi.RoomEvent{
		Kind:                 ffi.RoomLocalTrackSubscribed,
		LocalTrackSubscribed: &ffi.LocalTrackSubscribedEvent{TrackSID: "TR_pub"},
	})
	testutil.RequireClosed(t, resolved, waitTimeout, "first subscription")
	got := testutil.RequireReceive(t, subscribed, waitTimeout, "subscription notification")
	if got.Track != track {
		t.Fatal("notification carries a different track")
	}

	// Resolved at most once; an immediate second wait returns at once.
	if err := publication.WaitSubscribed(context.Background()); err != nil {
		t.Fatalf("second WaitSubscribed: %v", err)
	}
}

func TestPublishData(t *testing.T) {
	env := newTestRoom(t)
	err := env.room.LocalParticipant().PublishData(context.Background(), []byte("payload"), DataPublishOptions{
		Reliable:              true,
		Topic:                 "chat",
		DestinationIdentities: []string{"alice"},
	})
	if err != nil {
		t.Fatalf("PublishData: %v", err)
	}

	requests := env.engine.Requests()
	last := requests[len(requests)-1]
	if last.Kind != ffi.RequestPublishData {
		t.Fatalf("last request kind = %s, want publish_data", last.Kind)
	}
	sent := last.PublishData
	if string(sent.Payload) != "payload" || !sent.Reliable || sent.Topic != "chat" {
		t.Fatalf("request = %+v, want payload/reliable/topic preserved", sent)
	}
	if sent.RoomHandle != env.roomHandle {
		t.Fatalf("request room handle = %d, want %d", sent.RoomHandle, env.roomHandle)
	}
}

func TestPublishSIPDTMF(t *testing.T) {
	env := newTestRoom(t)
	if err := env.room.LocalParticipant().PublishSIPDTMF(context.Background(), 3, "3"); err != nil {
		t.Fatalf("PublishSIPDTMF: %v", err)
	}
	requests := env.engine.Requests()
	last := requests[len(requests)-1]
	if last.Kind != ffi.RequestPublishSIPDTMF || last.PublishSIPDTMF.Digit != "3" {
		t.Fatalf("last request = %+v, want sip dtmf digit 3", last)
	}
}

func TestOperationsAfterSessionEnd(t *testing.T) {
	env := newTestRoom(t)
	env.emitRoom(t, &ffi.RoomEvent{Kind: ffi.RoomEOS})
	testutil.RequireClosed(t, env.room.Done(), waitTimeout, "session end")

	err := env.room.LocalParticipant().PublishData(context.Background(), []byte("x"), DataPublishOptions{})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("PublishData after session end = %v, want ErrNotConnected", err)
	}
}

func TestSetLocalState(t *testing.T) {
	t.Run("metadata echoes back", func(t *testing.T) {
		env := newTestRoom(t)
		local := env.room.LocalParticipant()
		if err := local.SetMetadata(context.Background(), "role=presenter"); err != nil {
			t.Fatalf("SetMetadata: %v", err)
		}
		// The mirror updates only when the engine echoes the change.
		if got := local.Metadata(); got != "" {
			t.Fatalf("Metadata() = %q before the echo, want empty", got)
		}

		changed := listen[ParticipantMetadataChanged](t, env.room)
		env.emitRoom(t, &ffi.RoomEvent{
			Kind: ffi.RoomParticipantMetadataChanged,
			ParticipantMetadataChanged: &ffi.ParticipantMetadataChangedEvent{
				Identity: "local",
				Metadata: "role=presenter",
			},
		})
		got := testutil.RequireReceive(t, changed, waitTimeout, "echo")
		if got.Participant != Participant(local) {
			t.Fatal("echo resolved a different participant")
		}
		if local.Metadata() != "role=presenter" {
			t.Fatalf("Metadata() = %q after the echo", local.Metadata())
		}
	})

	t.Run("name", func(t *testing.T) {
		env := newTestRoom(t)
		if err := env.room.LocalParticipant().SetName(context.Background(), "Presenter"); err != nil {
			t.Fatalf("SetName: %v", err)
		}
		changed := listen[ParticipantNameChanged](t, env.room)
		env.emitRoom(t, &ffi.RoomEvent{
			Kind:                   ffi.RoomParticipantNameChanged,
			ParticipantNameChanged: &ffi.ParticipantNameChangedEvent{Identity: "local", Name: "Presenter"},
		})
		testutil.RequireReceive(t, changed, waitTimeout, "echo")
		if got := env.room.LocalParticipant().Name(); got != "Presenter" {
			t.Fatalf("Name() = %q", got)
		}
	})

	t.Run("attributes", func(t *testing.T) {
		env := newTestRoom(t)
		if err := env.room.LocalParticipant().SetAttributes(context.Background(), map[string]string{"b": "2"}); err != nil {
			t.Fatalf("SetAttributes: %v", err)
		}
		changed := listen[ParticipantAttributesChanged](t, env.room)
		env.emitRoom(t, &ffi.RoomEvent{
			Kind: ffi.RoomParticipantAttributesChanged,
			ParticipantAttributesChanged: &ffi.ParticipantAttributesChangedEvent{
				Identity:   "local",
				Attributes: map[string]string{"a": "1", "b": "2"},
				Changed:    map[string]string{"b": "2"},
			},
		})
		got := testutil.RequireReceive(t, changed, waitTimeout, "echo")
		if len(got.Changed) != 1 {
			t.Fatalf("Changed = %v, want the delta only", got.Changed)
		}
		if attrs := env.room.LocalParticipant().Attributes(); len(attrs) != 2 {
			t.Fatalf("Attributes() = %v, want the full map", attrs)
		}
	})

	t.Run("engine error", func(t *testing.T) {
		env := newTestRoom(t)
		env.engine.Respond(ffi.RequestSetLocalName, func(_ *ffi.MemoryEngine, asyncID uint64, _ *ffi.Request) []*ffi.Event {
			return []*ffi.Event{{Kind: ffi.EventRequestResult, RequestResult: &ffi.RequestResult{
				AsyncID: asyncID,
				Error:   "not allowed",
			}}}
		})
		err := env.room.LocalParticipant().SetName(context.Background(), "x")
		var reqErr *RequestError
		if !errors.As(err, &reqErr) || reqErr.Message != "not allowed" {
			t.Fatalf("SetName error = %v, want RequestError %q", err, "not allowed")
		}
	})
}
