// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/atrium-rtc/atrium/ffi"
)

// VideoFrame is one decoded frame, copied out of engine memory. Data
// is owned by the receiver; Format is the engine's pixel format tag.
type VideoFrame struct {
	Data            []byte
	Width           uint32
	Height          uint32
	Stride          uint32
	Format          uint8
	Rotation        uint16
	TimestampMicros int64
}

// VideoStream delivers decoded frames from a subscribed remote video
// track. Frames are opaque copied bytes plus geometry; pixel
// transforms are the application's business.
type VideoStream struct {
	client *ffi.Client
	handle *ffi.Handle
	sub    *ffi.Subscription
	frames chan *VideoFrame

	closeOnce sync.Once
	closed    chan struct{}
}

// NewVideoStream opens a frame stream over a subscribed remote video
// track.
func NewVideoStream(ctx context.Context, client *ffi.Client, track *RemoteVideoTrack) (*VideoStream, error) {
	sub := client.Subscribe()

	asyncID, err := client.Request(ctx, &ffi.Request{
		Kind:           ffi.RequestNewVideoStream,
		NewVideoStream: &ffi.NewVideoStreamRequest{TrackHandle: track.shared().ID()},
	})
	if err != nil {
		sub.Close()
		return nil, err
	}
	event, err := sub.WaitFor(ctx, ffi.ResultMatcher(asyncID))
	if err != nil {
		sub.Close()
		return nil, err
	}

	result := event.NewVideoStreamResult
	if result == nil {
		sub.Close()
		return nil, fmt.Errorf("rtc: new_video_stream answered with %s", event.Kind)
	}
	if result.Error != "" {
		sub.Close()
		return nil, &RequestError{Op: "new_video_stream", Message: result.Error}
	}

	stream := &VideoStream{
		client: client,
		handle: ffi.NewHandle(client, result.StreamHandle),
		sub:    sub,
		frames: make(chan *VideoFrame),
		closed: make(chan struct{}),
	}
	go stream.pump()
	return stream, nil
}

// Frames returns the frame channel. It closes when the stream ends,
// from either side.
func (s *VideoStream) Frames() <-chan *VideoFrame {
	return s.frames
}

// Close releases the stream handle and stops frame delivery. Safe to
// call more than once; the handle release is a no-op after the first.
func (s *VideoStream) Close() {
	s.handle.Release()
	s.sub.Close()
	s.closeOnce.Do(func() { close(s.closed) })
}

// pump consumes the stream's own subscription, filtered by stream
// handle. The WaitFor predicate discards everything else on the feed.
func (s *VideoStream) pump() {
	defer close(s.frames)
	// Detach from the shared feed on any exit path, not just Close:
	// an engine-side end of stream must not leave the subscription
	// queueing the rest of the feed.
	defer s.sub.Close()
	for {
		event, err := s.sub.WaitFor(context.Background(), func(event *ffi.Event) bool {
			return event.Kind == ffi.EventStream && event.Stream.StreamHandle == s.handle.ID()
		})
		if err != nil {
			return
		}
		switch event.Stream.Kind {
		case ffi.StreamFrameReceived:
			frame := event.Stream.Frame
			if frame == nil {
				continue
			}
			out := &VideoFrame{
				Data:            ffi.ReadOwnedBuffer(s.client, frame.Buffer),
				Width:           frame.Info.Width,
				Height:          frame.Info.Height,
				Stride:          frame.Info.Stride,
				Format:          frame.Info.Format,
				Rotation:        frame.Rotation,
				TimestampMicros: frame.TimestampMicros,
			}
			select {
			case s.frames <- out:
			case <-s.closed:
				return
			}
		case ffi.StreamEOS:
			return
		}
	}
}
