// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"context"
	"log/slog"
	"time"

	"github.com/atrium-rtc/atrium/ffi"
	"github.com/atrium-rtc/atrium/lib/clock"
	"github.com/atrium-rtc/atrium/rtc"
)

// DefaultFlushInterval is the recorder's idle flush period.
const DefaultFlushInterval = 5 * time.Second

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	// FlushInterval bounds how long an undersized segment can sit in
	// memory while the session is quiet. Zero means
	// DefaultFlushInterval.
	FlushInterval time.Duration

	// Clock drives the flush interval. Nil means the real clock;
	// tests inject clock.Fake().
	Clock clock.Clock

	// Logger records archive write failures. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Recorder archives a live session. It consumes the room's
// acknowledged event subscription: every event is written to the
// archive before it is acknowledged, so the dispatch loop never runs
// ahead of durability by more than the subscription's backlog.
type Recorder struct {
	writer *Writer
	sub    *rtc.RoomSubscription
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRecorder attaches a recorder to a room and starts archiving.
// The writer must not be used elsewhere while the recorder runs.
func NewRecorder(room *rtc.Room, writer *Writer, options RecorderOptions) *Recorder {
	if options.FlushInterval <= 0 {
		options.FlushInterval = DefaultFlushInterval
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Recorder{
		writer: writer,
		sub:    room.Subscribe(),
		logger: options.Logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go r.run(ctx, options.Clock, options.FlushInterval)
	return r
}

// Close stops the recorder, flushes, and finalizes the archive. The
// subscription is closed first so a blocked dispatch loop is
// released.
func (r *Recorder) Close() error {
	r.sub.Close()
	r.cancel()
	<-r.done
	return r.writer.Close()
}

// Done closes when the recorder has stopped, whether by Close or by
// the session ending.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

func (r *Recorder) run(ctx context.Context, clk clock.Clock, interval time.Duration) {
	defer close(r.done)

	events := make(chan *ffi.RoomEvent)
	go func() {
		defer close(events)
		for {
			event, err := r.sub.Next(ctx)
			if err != nil {
				return
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := clk.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				// Session ended or recorder closed; the final flush
				// happens in Close via Writer.Close.
				return
			}
			if err := r.writer.Append(event); err != nil {
				r.logger.Error("archiving room event", "kind", event.Kind.String(), "error", err)
			}
			r.sub.Ack()
		case <-ticker.C:
			if err := r.writer.Flush(); err != nil {
				r.logger.Error("flushing archive segment", "error", err)
			}
		}
	}
}
