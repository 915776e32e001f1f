// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"filippo.io/age"
	"github.com/zeebo/blake3"

	"github.com/atrium-rtc/atrium/ffi"
	"github.com/atrium-rtc/atrium/lib/codec"
)

// DefaultSegmentEvents is the event count at which a Writer flushes a
// segment on its own.
const DefaultSegmentEvents = 64

// WriterOptions configures a Writer. The zero value means zstd
// compression, DefaultSegmentEvents per segment, no encryption.
type WriterOptions struct {
	// Compression selects the segment algorithm. Segments that do
	// not shrink under it are stored uncompressed.
	Compression CompressionTag

	// SegmentEvents is the flush threshold in events. Zero means
	// DefaultSegmentEvents.
	SegmentEvents int

	// Recipients, when non-empty, wraps the whole archive in an age
	// encryption stream.
	Recipients []age.Recipient
}

// Writer writes a session archive. Not safe for concurrent use; the
// Recorder serializes access for the live-session case.
type Writer struct {
	destination io.Writer
	encrypted   io.WriteCloser
	options     WriterOptions

	pending []byte
	count   int
	closed  bool
}

// NewWriter writes the archive header to destination and returns a
// Writer appending to it.
func NewWriter(destination io.Writer, options WriterOptions) (*Writer, error) {
	if options.SegmentEvents <= 0 {
		options.SegmentEvents = DefaultSegmentEvents
	}

	w := &Writer{destination: destination, options: options}
	if len(options.Recipients) > 0 {
		encrypted, err := age.Encrypt(destination, options.Recipients...)
		if err != nil {
			return nil, fmt.Errorf("record: opening encryption stream: %w", err)
		}
		w.encrypted = encrypted
		w.destination = encrypted
	}

	header := append(append([]byte(nil), archiveMagic...), ArchiveVersion)
	if _, err := w.destination.Write(header); err != nil {
		return nil, fmt.Errorf("record: writing archive header: %w", err)
	}
	return w, nil
}

// Append encodes one room event into the pending segment, flushing
// when the segment reaches the event threshold.
func (w *Writer) Append(event *ffi.RoomEvent) error {
	if w.closed {
		return fmt.Errorf("record: append to closed writer")
	}

	encoded, err := codec.Marshal(event)
	if err != nil {
		return fmt.Errorf("record: encoding room event: %w", err)
	}
	if len(encoded) > math.MaxUint32 {
		return fmt.Errorf("record: room event of %d bytes exceeds frame limit", len(encoded))
	}

	w.pending = binary.BigEndian.AppendUint32(w.pending, uint32(len(encoded)))
	w.pending = append(w.pending, encoded...)
	w.count++

	if w.count >= w.options.SegmentEvents {
		return w.Flush()
	}
	return nil
}

// Flush writes the pending segment, if any. Called automatically at
// the event threshold; the Recorder also calls it on its interval so
// an idle session's tail is not held in memory indefinitely.
func (w *Writer) Flush() error {
	if w.closed {
		return fmt.Errorf("record: flush of closed writer")
	}
	if w.count == 0 {
		return nil
	}

	tag := w.options.Compression
	payload, err := compressSegment(w.pending, tag)
	if err == errIncompressible {
		tag = CompressionNone
		payload = w.pending
	} else if err != nil {
		return err
	}

	checksum := blake3.Sum256(payload)

	header := make([]byte, 0, 1+4+4+len(checksum))
	header = append(header, byte(tag))
	header = binary.BigEndian.AppendUint32(header, uint32(len(w.pending)))
	header = binary.BigEndian.AppendUint32(header, uint32(len(payload)))
	header = append(header, checksum[:]...)

	if _, err := w.destination.Write(header); err != nil {
		return fmt.Errorf("record: writing segment header: %w", err)
	}
	if _, err := w.destination.Write(payload); err != nil {
		return fmt.Errorf("record: writing segment payload: %w", err)
	}

	w.pending = w.pending[:0]
	w.count = 0
	return nil
}

// Close flushes the pending segment and finalizes the encryption
// stream when one is open. It does not close the underlying
// destination.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	if err := w.Flush(); err != nil {
		return err
	}
	w.closed = true
	if w.encrypted != nil {
		if err := w.encrypted.Close(); err != nil {
			return fmt.Errorf("record: finalizing encryption stream: %w", err)
		}
	}
	return nil
}
