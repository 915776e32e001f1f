// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/atrium-rtc/atrium/ffi"
	"github.com/atrium-rtc/atrium/record"
	"github.com/atrium-rtc/atrium/rtc"
)

// replaySession connects a fresh session against a scripted in-memory
// engine, feeds it every archived event, and waits for the loop to
// drain. Application events are printed as the dispatch loop fires
// them, so the output order is exactly the delivery order a live
// client would have observed.
func replaySession(ctx context.Context, reader *record.Reader, printer *eventPrinter, roomName string, logger *slog.Logger) error {
	engine := ffi.NewMemoryEngine()

	var roomHandle uint64
	engine.Respond(ffi.RequestConnect, func(e *ffi.MemoryEngine, asyncID uint64, _ *ffi.Request) []*ffi.Event {
		roomHandle = e.MintHandle()
		return []*ffi.Event{{Kind: ffi.EventConnectResult, ConnectResult: &ffi.ConnectResult{
			AsyncID:          asyncID,
			Room:             ffi.OwnedRoom{Handle: roomHandle, Info: ffi.RoomInfo{Name: roomName}},
			LocalParticipant: ffi.OwnedParticipant{Handle: e.MintHandle(), Info: ffi.ParticipantInfo{Identity: "replay-observer"}},
		}}}
	})

	client, err := ffi.NewClient(ffi.ClientConfig{Engine: engine, Logger: logger})
	if err != nil {
		return err
	}
	defer client.Close()

	options := rtc.DefaultRoomOptions()
	options.Logger = logger
	room, err := rtc.Connect(ctx, client, "memory://replay", "", options)
	if err != nil {
		return err
	}
	printer.watch(room)

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive after %d events: %w", count, err)
		}
		remapHandles(engine, event, roomHandle)
		if err := engine.EmitRoomEvent(event); err != nil {
			return fmt.Errorf("emitting archived event %d: %w", count, err)
		}
		count++
	}

	// End the feed and wait for the loop to process the backlog.
	if err := engine.EmitRoomEvent(&ffi.RoomEvent{RoomHandle: roomHandle, Kind: ffi.RoomEOS}); err != nil {
		return err
	}
	select {
	case <-room.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	printer.summary(room, count)
	return nil
}

// remapHandles rewrites an archived event against the replay engine.
// Recorded handle and pointer values belong to the session that was
// recorded; fresh ones are minted so the mirror graph's ownership
// bookkeeping works exactly as it would live. Data payload bytes are
// not archived, so a payload buffer is reconstructed zero-filled at
// its recorded length.
func remapHandles(engine *ffi.MemoryEngine, event *ffi.RoomEvent, roomHandle uint64) {
	event.RoomHandle = roomHandle
	switch event.Kind {
	case ffi.RoomParticipantConnected:
		event.ParticipantConnected.Participant.Handle = engine.NewHandle()
	case ffi.RoomTrackPublished:
		event.TrackPublished.Publication.Handle = engine.NewHandle()
	case ffi.RoomTrackSubscribed:
		event.TrackSubscribed.Track.Handle = engine.NewHandle()
	case ffi.RoomDataPacketReceived:
		if user := event.DataPacketReceived.User; user != nil {
			user.Buffer = engine.PinBuffer(make([]byte, user.Buffer.Length))
		}
	}
}

// eventPrinter renders application events to one line each: aligned
// key=value text for terminals, JSON objects otherwise.
type eventPrinter struct {
	out     io.Writer
	json    bool
	started time.Time
}

func newEventPrinter(out io.Writer, asJSON bool) *eventPrinter {
	return &eventPrinter{out: out, json: asJSON, started: time.Now()}
}

// watch registers a printing listener for every application event
// type. Listeners run synchronously on the session's dispatch loop, so
// lines come out in delivery order without further locking.
func (p *eventPrinter) watch(room *rtc.Room) {
	rtc.On(room, func(ev rtc.ParticipantConnected) {
		p.print("participant_connected", "identity", ev.Participant.Identity(), "name", ev.Participant.Name())
	})
	rtc.On(room, func(ev rtc.ParticipantDisconnected) {
		p.print("participant_disconnected", "identity", ev.Participant.Identity())
	})
	rtc.On(room, func(ev rtc.LocalTrackPublished) {
		p.print("local_track_published", "sid", ev.Publication.SID())
	})
	rtc.On(room, func(ev rtc.LocalTrackUnpublished) {
		p.print("local_track_unpublished", "sid", ev.Publication.SID())
	})
	rtc.On(room, func(ev rtc.LocalTrackSubscribed) {
		p.print("local_track_subscribed", "sid", ev.Track.SID())
	})
	rtc.On(room, func(ev rtc.TrackPublished) {
		p.print("track_published",
			"identity", ev.Participant.Identity(),
			"sid", ev.Publication.SID(),
			"name", ev.Publication.Name(),
			"kind", trackKindName(ev.Publication.Kind()))
	})
	rtc.On(room, func(ev rtc.TrackUnpublished) {
		p.print("track_unpublished", "identity", ev.Participant.Identity(), "sid", ev.Publication.SID())
	})
	rtc.On(room, func(ev rtc.TrackSubscribed) {
		p.print("track_subscribed", "identity", ev.Participant.Identity(), "sid", ev.Track.SID())
	})
	rtc.On(room, func(ev rtc.TrackUnsubscribed) {
		p.print("track_unsubscribed", "identity", ev.Participant.Identity(), "sid", ev.Track.SID())
	})
	rtc.On(room, func(ev rtc.TrackSubscriptionFailed) {
		p.print("track_subscription_failed", "identity", ev.Participant.Identity(), "sid", ev.TrackSID, "error", ev.Error)
	})
	rtc.On(room, func(ev rtc.TrackMuted) {
		p.print("track_muted", "identity", ev.Participant.Identity(), "sid", ev.Publication.SID())
	})
	rtc.On(room, func(ev rtc.TrackUnmuted) {
		p.print("track_unmuted", "identity", ev.Participant.Identity(), "sid", ev.Publication.SID())
	})
	rtc.On(room, func(ev rtc.ActiveSpeakersChanged) {
		identities := make([]string, len(ev.Speakers))
		for i, speaker := range ev.Speakers {
			identities[i] = speaker.Identity()
		}
		p.print("active_speakers_changed", "speakers", strings.Join(identities, ","))
	})
	rtc.On(room, func(ev rtc.RoomMetadataChanged) {
		p.print("room_metadata_changed", "metadata", ev.New)
	})
	rtc.On(room, func(ev rtc.ParticipantMetadataChanged) {
		p.print("participant_metadata_changed", "identity", ev.Participant.Identity(), "metadata", ev.New)
	})
	rtc.On(room, func(ev rtc.ParticipantNameChanged) {
		p.print("participant_name_changed", "identity", ev.Participant.Identity(), "name", ev.New)
	})
	rtc.On(room, func(ev rtc.ParticipantAttributesChanged) {
		p.print("participant_attributes_changed", "identity", ev.Participant.Identity(), "changed", len(ev.Changed))
	})
	rtc.On(room, func(ev rtc.ConnectionQualityChanged) {
		identity := ""
		if ev.Participant != nil {
			identity = ev.Participant.Identity()
		}
		p.print("connection_quality_changed", "identity", identity, "quality", ev.Quality.String())
	})
	rtc.On(room, func(ev rtc.DataReceived) {
		identity := ""
		if ev.Packet.Participant != nil {
			identity = ev.Packet.Participant.Identity()
		}
		p.print("data_received", "identity", identity, "topic", ev.Packet.Topic, "bytes", len(ev.Packet.Data))
	})
	rtc.On(room, func(ev rtc.SIPDTMFReceived) {
		identity := ""
		if ev.DTMF.Participant != nil {
			identity = ev.DTMF.Participant.Identity()
		}
		p.print("sip_dtmf_received", "identity", identity, "digit", ev.DTMF.Digit)
	})
	rtc.On(room, func(ev rtc.TranscriptionReceived) {
		p.print("transcription_received", "segments", len(ev.Segments))
	})
	rtc.On(room, func(ev rtc.E2EEStateChanged) {
		identity := ""
		if ev.Participant != nil {
			identity = ev.Participant.Identity()
		}
		p.print("e2ee_state_changed", "identity", identity, "state", int(ev.State))
	})
	rtc.On(room, func(ev rtc.ConnectionStateChanged) {
		p.print("connection_state_changed", "state", ev.State.String())
	})
	rtc.On(room, func(rtc.Connected) { p.print("connected") })
	rtc.On(room, func(ev rtc.Disconnected) { p.print("disconnected", "reason", ev.Reason.String()) })
	rtc.On(room, func(rtc.Reconnecting) { p.print("reconnecting") })
	rtc.On(room, func(rtc.Reconnected) { p.print("reconnected") })
}

// print renders one event line from alternating key/value fields.
func (p *eventPrinter) print(event string, fields ...any) {
	if p.json {
		object := map[string]any{"event": event, "elapsed_ms": time.Since(p.started).Milliseconds()}
		for i := 0; i+1 < len(fields); i += 2 {
			object[fields[i].(string)] = fields[i+1]
		}
		line, err := json.Marshal(object)
		if err != nil {
			fmt.Fprintf(p.out, `{"event":%q}`+"\n", event)
			return
		}
		fmt.Fprintf(p.out, "%s\n", line)
		return
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "%-32s", event)
	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Fprintf(&builder, " %s=%v", fields[i], fields[i+1])
	}
	fmt.Fprintln(p.out, builder.String())
}

// summary prints the final mirror state: the roster and each
// participant's publications as the session left them.
func (p *eventPrinter) summary(room *rtc.Room, eventCount int) {
	remotes := room.RemoteParticipants()
	identities := make([]string, 0, len(remotes))
	for identity := range remotes {
		identities = append(identities, identity)
	}
	sort.Strings(identities)

	if p.json {
		roster := make([]map[string]any, 0, len(identities))
		for _, identity := range identities {
			participant := remotes[identity]
			tracks := make([]map[string]any, 0)
			for _, publication := range sortedPublications(participant) {
				tracks = append(tracks, map[string]any{
					"sid":        publication.SID(),
					"name":       publication.Name(),
					"kind":       trackKindName(publication.Kind()),
					"muted":      publication.IsMuted(),
					"subscribed": publication.IsSubscribed(),
				})
			}
			roster = append(roster, map[string]any{
				"identity": identity,
				"name":     participant.Name(),
				"tracks":   tracks,
			})
		}
		line, _ := json.Marshal(map[string]any{
			"event":  "summary",
			"room":   room.Name(),
			"events": eventCount,
			"roster": roster,
		})
		fmt.Fprintf(p.out, "%s\n", line)
		return
	}

	fmt.Fprintf(p.out, "\nroom %q: %d events, %d participants remaining\n", room.Name(), eventCount, len(identities))
	for _, identity := range identities {
		participant := remotes[identity]
		fmt.Fprintf(p.out, "  %s", identity)
		if name := participant.Name(); name != "" {
			fmt.Fprintf(p.out, " (%s)", name)
		}
		fmt.Fprintln(p.out)
		for _, publication := range sortedPublications(participant) {
			state := "unsubscribed"
			if publication.IsSubscribed() {
				state = "subscribed"
			}
			if publication.IsMuted() {
				state += ", muted"
			}
			fmt.Fprintf(p.out, "    %s %s %q (%s)\n", publication.SID(), trackKindName(publication.Kind()), publication.Name(), state)
		}
	}
}

func sortedPublications(participant rtc.Participant) []rtc.TrackPublication {
	publications := participant.TrackPublications()
	sids := make([]string, 0, len(publications))
	for sid := range publications {
		sids = append(sids, sid)
	}
	sort.Strings(sids)

	ordered := make([]rtc.TrackPublication, len(sids))
	for i, sid := range sids {
		ordered[i] = publications[sid]
	}
	return ordered
}

func trackKindName(kind ffi.TrackKind) string {
	switch kind {
	case ffi.TrackAudio:
		return "audio"
	case ffi.TrackVideo:
		return "video"
	default:
		return "unknown"
	}
}
