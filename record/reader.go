// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"bufio"
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"github.com/zeebo/blake3"

	"github.com/atrium-rtc/atrium/ffi"
	"github.com/atrium-rtc/atrium/lib/codec"
)

// ErrChecksum is returned by Next when a segment's stored BLAKE3
// checksum does not match its payload.
var ErrChecksum = errors.New("record: segment checksum mismatch")

// ageIntro is the first line of an age encryption stream; its
// presence decides whether the archive needs identities.
const ageIntro = "age-encryption.org/"

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	// Identities decrypt an encrypted archive. Ignored for plain
	// archives; required when the archive is encrypted.
	Identities []age.Identity
}

// Reader iterates the events of a session archive in order, verifying
// each segment checksum as the segment is read.
type Reader struct {
	source *bufio.Reader

	// segment holds the decoded events of the current segment not yet
	// handed out.
	segment [][]byte
}

// NewReader validates the archive header of source and returns a
// Reader positioned at the first event.
func NewReader(source io.Reader, options ReaderOptions) (*Reader, error) {
	buffered := bufio.NewReader(source)

	intro, err := buffered.Peek(len(ageIntro))
	if err == nil && bytes.Equal(intro, []byte(ageIntro)) {
		if len(options.Identities) == 0 {
			return nil, fmt.Errorf("record: archive is encrypted and no identities were given")
		}
		decrypted, err := age.Decrypt(buffered, options.Identities...)
		if err != nil {
			return nil, fmt.Errorf("record: opening encrypted archive: %w", err)
		}
		buffered = bufio.NewReader(decrypted)
	}

	header := make([]byte, len(archiveMagic)+1)
	if _, err := io.ReadFull(buffered, header); err != nil {
		return nil, fmt.Errorf("record: reading archive header: %w", err)
	}
	if !bytes.Equal(header[:len(archiveMagic)], archiveMagic) {
		return nil, fmt.Errorf("record: not a session archive (bad magic)")
	}
	if version := header[len(archiveMagic)]; version != ArchiveVersion {
		return nil, fmt.Errorf("record: unsupported archive version %d", version)
	}

	return &Reader{source: buffered}, nil
}

// Next returns the next event, or io.EOF at a clean end of the
// archive. Framing damage and checksum mismatches are errors;
// iteration cannot continue past them.
func (r *Reader) Next() (*ffi.RoomEvent, error) {
	for len(r.segment) == 0 {
		if err := r.readSegment(); err != nil {
			return nil, err
		}
	}

	encoded := r.segment[0]
	r.segment = r.segment[1:]

	event := new(ffi.RoomEvent)
	if err := codec.Unmarshal(encoded, event); err != nil {
		return nil, fmt.Errorf("record: decoding archived event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("record: archived event is malformed: %w", err)
	}
	return event, nil
}

// readSegment reads and verifies one segment into r.segment. Returns
// io.EOF at a clean archive end.
func (r *Reader) readSegment() error {
	header := make([]byte, 1+4+4+32)
	if _, err := io.ReadFull(r.source, header); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("record: reading segment header: %w", err)
	}

	tag := CompressionTag(header[0])
	uncompressedSize := int(binary.BigEndian.Uint32(header[1:5]))
	payloadSize := int(binary.BigEndian.Uint32(header[5:9]))
	stored := header[9:]

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(r.source, payload); err != nil {
		return fmt.Errorf("record: reading segment payload: %w", err)
	}

	checksum := blake3.Sum256(payload)
	if subtle.ConstantTimeCompare(checksum[:], stored) != 1 {
		return ErrChecksum
	}

	data, err := decompressSegment(payload, tag, uncompressedSize)
	if err != nil {
		return err
	}

	var events [][]byte
	for len(data) > 0 {
		if len(data) < 4 {
			return fmt.Errorf("record: truncated event frame in segment")
		}
		length := int(binary.BigEndian.Uint32(data[:4]))
		data = data[4:]
		if length > len(data) {
			return fmt.Errorf("record: event frame of %d bytes overruns its segment", length)
		}
		events = append(events, data[:length])
		data = data[length:]
	}
	if len(events) == 0 {
		return fmt.Errorf("record: empty segment")
	}
	r.segment = events
	return nil
}
