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

// subscribeRemoteVideo walks a remote video track through publish and
// subscribe, returning the attached track mirror.
func subscribeRemoteVideo(t *testing.T, env *roomEnv) *RemoteVideoTrack {
	t.Helper()
	env.joinRemote(t, "alice")
	env.publishRemote(t, "alice", "TR_cam", ffi.TrackVideo)

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
	got := testutil.RequireReceive(t, subscribed, waitTimeout, "subscription")
	video, ok := got.Track.(*RemoteVideoTrack)
	if !ok {
		t.Fatalf("track type = %T, want *RemoteVideoTrack", got.Track)
	}
	return video
}

func TestVideoStream(t *testing.T) {
	env := newTestRoom(t)
	video := subscribeRemoteVideo(t, env)

	var streamHandle uint64
	env.engine.Respond(ffi.RequestNewVideoStream, func(e *ffi.MemoryEngine, asyncID uint64, _ *ffi.Request) []*ffi.Event {
		streamHandle = e.MintHandle()
		return []*ffi.Event{{Kind: ffi.EventNewVideoStreamResult, NewVideoStreamResult: &ffi.NewVideoStreamResult{
			AsyncID:      asyncID,
			StreamHandle: streamHandle,
		}}}
	})

	stream, err := NewVideoStream(context.Background(), env.client, video)
	if err != nil {
		t.Fatalf("NewVideoStream: %v", err)
	}
	defer stream.Close()

	pixels := []byte{1, 2, 3, 4}
	buffer := env.engine.PinBuffer(pixels)
	err = env.engine.EmitEvent(&ffi.Event{Kind: ffi.EventStream, Stream: &ffi.StreamEvent{
		StreamHandle: streamHandle,
		Kind:         ffi.StreamFrameReceived,
		Frame: &ffi.FrameReceived{
			Buffer:          buffer,
			Info:            ffi.VideoBufferInfo{Width: 2, Height: 2, Stride: 2, Format: 1},
			TimestampMicros: 42,
			Rotation:        90,
		},
	}})
	if err != nil {
		t.Fatalf("EmitEvent: %v", err)
	}

	frame := testutil.RequireReceive(t, stream.Frames(), waitTimeout, "frame delivery")
	if string(frame.Data) != string(pixels) {
		t.Fatalf("frame data = %v, want %v", frame.Data, pixels)
	}
	if frame.Width != 2 || frame.Height != 2 || frame.Stride != 2 || frame.Format != 1 {
		t.Fatalf("frame geometry = %+v", frame)
	}
	if frame.TimestampMicros != 42 || frame.Rotation != 90 {
		t.Fatalf("frame timing = %+v", frame)
	}
	// The native buffer was copied then released.
	if got := env.engine.DropCount(buffer.Handle); got != 1 {
		t.Fatalf("frame buffer dropped %d times, want exactly once", got)
	}

	// Frames for other streams are discarded.
	err = env.engine.EmitEvent(&ffi.Event{Kind: ffi.EventStream, Stream: &ffi.StreamEvent{
		StreamHandle: streamHandle + 1000,
		Kind:         ffi.StreamFrameReceived,
		Frame: &ffi.FrameReceived{
			Buffer: env.engine.PinBuffer([]byte{9}),
			Info:   ffi.VideoBufferInfo{Width: 1, Height: 1, Stride: 1},
		},
	}})
	if err != nil {
		t.Fatalf("EmitEvent: %v", err)
	}
	testutil.RequireNoReceive(t, stream.Frames(), quietWindow, "frame for another stream delivered")
}

func TestVideoStreamEOS(t *testing.T) {
	env := newTestRoom(t)
	video := subscribeRemoteVideo(t, env)

	var streamHandle uint64
	env.engine.Respond(ffi.RequestNewVideoStream, func(e *ffi.MemoryEngine, asyncID uint64, _ *ffi.Request) []*ffi.Event {
		streamHandle = e.MintHandle()
		return []*ffi.Event{{Kind: ffi.EventNewVideoStreamResult, NewVideoStreamResult: &ffi.NewVideoStreamResult{
			AsyncID:      asyncID,
			StreamHandle: streamHandle,
		}}}
	})
	stream, err := NewVideoStream(context.Background(), env.client, video)
	if err != nil {
		t.Fatalf("NewVideoStream: %v", err)
	}

	err = env.engine.EmitEvent(&ffi.Event{Kind: ffi.EventStream, Stream: &ffi.StreamEvent{
		StreamHandle: streamHandle,
		Kind:         ffi.StreamEOS,
	}})
	if err != nil {
		t.Fatalf("EmitEvent: %v", err)
	}

	if _, ok := <-stream.Frames(); ok {
		t.Fatal("frame channel still open after end of stream")
	}

	// The pump detaches from the shared feed on its own; feed traffic
	// after end of stream must not accumulate for an unclosed stream.
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	if _, err := stream.sub.Next(ctx); !errors.Is(err, ffi.ErrSubscriptionClosed) {
		t.Fatalf("Next on the stream's subscription = %v, want ErrSubscriptionClosed", err)
	}

	stream.Close()
	if got := env.engine.DropCount(streamHandle); got != 1 {
		t.Fatalf("stream handle dropped %d times, want exactly once", got)
	}
}

func TestVideoStreamError(t *testing.T) {
	env := newTestRoom(t)
	video := subscribeRemoteVideo(t, env)

	env.engine.Respond(ffi.RequestNewVideoStream, func(_ *ffi.MemoryEngine, asyncID uint64, _ *ffi.Request) []*ffi.Event {
		return []*ffi.Event{{Kind: ffi.EventNewVideoStreamResult, NewVideoStreamResult: &ffi.NewVideoStreamResult{
			AsyncID: asyncID,
			Error:   "track not subscribed",
		}}}
	})

	if _, err := NewVideoStream(context.Background(), env.client, video); err == nil {
		t.Fatal("NewVideoStream returned nil error")
	}
}
