// Copyright 2026 The Atrium Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Archive layout:
//
//	[magic "ATRC"] [version: 1 byte]
//	segment*
//
// Each segment:
//
//	[tag: 1 byte] [uncompressed length: 4 bytes BE]
//	[payload length: 4 bytes BE] [BLAKE3-256 of payload: 32 bytes]
//	[payload]
//
// The segment payload is a concatenation of length-prefixed CBOR
// room events (4-byte BE length each). When the archive is encrypted
// the whole layout, magic included, sits inside an age stream.

var archiveMagic = []byte("ATRC")

// ArchiveVersion is the format version byte following the magic.
// Changing the segment or event framing bumps it.
const ArchiveVersion byte = 0x01

// CompressionTag identifies the compression algorithm of one
// segment. Tags are stored in segment headers (1 byte each); the
// values are format constants.
type CompressionTag uint8

const (
	// CompressionNone stores the payload as-is. Writers fall back to
	// it when a segment does not shrink under its configured
	// algorithm.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 is LZ4 block compression: cheap, fast decode,
	// moderate ratio.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd is zstd at the default level. The default for
	// event streams, which are highly repetitive.
	CompressionZstd CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseCompressionTag parses a compression tag from its string
// representation.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("record: unknown compression tag %q", name)
	}
}

// errIncompressible signals that compression would not shrink the
// payload; the writer stores the segment uncompressed instead.
var errIncompressible = errors.New("record: segment is incompressible")

// compressSegment compresses a segment payload under the given tag.
func compressSegment(data []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionLZ4:
		return compressLZ4(data)
	case CompressionZstd:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("record: unsupported compression tag %d", tag)
	}
}

// decompressSegment reverses compressSegment. uncompressedSize must
// match the original length exactly.
func decompressSegment(compressed []byte, tag CompressionTag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case CompressionNone:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("record: stored segment is %d bytes, header says %d", len(compressed), uncompressedSize)
		}
		return compressed, nil
	case CompressionLZ4:
		return decompressLZ4(compressed, uncompressedSize)
	case CompressionZstd:
		return decompressZstd(compressed, uncompressedSize)
	default:
		return nil, fmt.Errorf("record: unsupported compression tag %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(data))
	destination := make([]byte, bound)

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("record: lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input; a result no
	// smaller than the input is not worth the tag either.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("record: lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("record: lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}

// zstdEncoder and zstdDecoder are reused across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("record: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("record: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("record: zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("record: zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}
