// Package wal implements the per-shard write-ahead log: record framing with
// per-record checksums, segment file management, a mutex-serialized writer,
// and a forward-scanning restorer with corruption resync and opportunistic
// payload migration.
package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Record wire format (§3):
//
//	Signature (4B) | Sver (1B) | Reserved (1B) | MsgType (1B) | Pad (1B) | Cksum (4B)
//	Version (8B)   | Len (4B)
//	Cont (Len bytes)
//
// Multi-byte header fields are written in the host's native order (little-
// endian here); the WAL is not portable across endianness, matching spec.
const (
	// Signature is the fixed 4-byte sentinel identifying a header candidate.
	Signature uint32 = 0x57414c46 // "WALF"

	// HeaderSize is the encoded size, in bytes, of a Header: 4 (signature)
	// + 1 (sver) + 1 (reserved) + 1 (msgType) + 1 (padding, keeps the
	// following fields 4-byte aligned) + 4 (cksum) + 8 (version) + 4 (len).
	HeaderSize = 24

	// MaxSize is the compile-time cap on a single record's total wire size
	// (WAL_MAX_SIZE). MaxPayloadSize is the largest payload that fits.
	MaxSize        = 32 * 1024 * 1024
	MaxPayloadSize = MaxSize - HeaderSize
)

// Sver identifies the record's checksum/payload-layout format.
type Sver uint8

const (
	// SverLegacy records carry a header-only checksum; payload is
	// unprotected and, for Submit records, uses the pre-migration row
	// layout (§4.4).
	SverLegacy Sver = 0
	// SverChecksum records carry a whole-record checksum.
	SverChecksum Sver = 1
	// SverChecksumMigrated is SverChecksum plus the new (tagged-row)
	// payload layout used by migration. The writer always emits this.
	SverChecksumMigrated Sver = 2
)

func (s Sver) valid() bool {
	return s == SverLegacy || s == SverChecksum || s == SverChecksumMigrated
}

// MsgType is opaque to the WAL except for the equality check against
// MsgSubmit performed during payload migration (§4.4).
type MsgType uint8

const (
	// MsgSubmit marks a record whose payload is a SubmitMsg of data-row
	// blocks, the only payload shape the WAL ever interprets.
	MsgSubmit MsgType = 1
	// MsgCheckpoint marks an informational checkpoint marker; callers may
	// define further opaque types above this range.
	MsgCheckpoint MsgType = 2
)

// Header is the fixed portion of a record, preceding Len bytes of payload.
type Header struct {
	Signature uint32
	Sver      Sver
	Reserved  uint8
	MsgType   MsgType
	Cksum     uint32
	Version   uint64
	Len       uint32
}

// Encode serializes a record with version, msgType and payload, computing
// the current writer's checksum (sver=2, whole-record) per §4.1 Encode.
// It returns the full wire bytes: header followed by payload.
func Encode(version uint64, msgType MsgType, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload %d exceeds max %d", ErrIO, len(payload), MaxPayloadSize)
	}

	h := Header{
		Signature: Signature,
		Sver:      SverChecksumMigrated,
		MsgType:   msgType,
		Version:   version,
		Len:       uint32(len(payload)),
	}

	buf := make([]byte, HeaderSize+len(payload))
	putHeader(buf, h)
	copy(buf[HeaderSize:], payload)

	h.Cksum = crc32.ChecksumIEEE(buf)
	binary.LittleEndian.PutUint32(buf[8:12], h.Cksum)

	return buf, nil
}

// putHeader writes h's fields into buf[:HeaderSize], with Cksum zeroed
// regardless of h.Cksum (checksum computation always zeroes this field).
func putHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Signature)
	buf[4] = byte(h.Sver)
	buf[5] = h.Reserved
	buf[6] = byte(h.MsgType)
	// buf[7] is padding to keep Cksum 4-byte aligned in the layout.
	binary.LittleEndian.PutUint32(buf[8:12], 0) // Cksum, zeroed for checksum computation
	binary.LittleEndian.PutUint64(buf[12:20], h.Version)
	binary.LittleEndian.PutUint32(buf[20:24], h.Len)
}

// ParseHeader decodes the fixed header fields from buf (which must be at
// least HeaderSize bytes) without validating the checksum. It rejects a bad
// signature, an out-of-range sver, or a length outside [0, MaxPayloadSize] —
// the three structural checks from §4.1 decode/validate that don't require
// the payload to be in hand yet.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: short header: %d < %d", ErrCorrupted, len(buf), HeaderSize)
	}

	h := Header{
		Signature: binary.LittleEndian.Uint32(buf[0:4]),
		Sver:      Sver(buf[4]),
		Reserved:  buf[5],
		MsgType:   MsgType(buf[6]),
		Cksum:     binary.LittleEndian.Uint32(buf[8:12]),
		Version:   binary.LittleEndian.Uint64(buf[12:20]),
		Len:       binary.LittleEndian.Uint32(buf[20:24]),
	}

	if h.Signature != Signature {
		return Header{}, fmt.Errorf("%w: bad signature 0x%x", ErrCorrupted, h.Signature)
	}
	if !h.Sver.valid() {
		return Header{}, fmt.Errorf("%w: bad sver %d", ErrCorrupted, h.Sver)
	}
	if h.Len > MaxPayloadSize {
		return Header{}, fmt.Errorf("%w: len %d exceeds max %d", ErrCorrupted, h.Len, MaxPayloadSize)
	}

	return h, nil
}

// VerifyChecksum validates h's checksum against payload, per §4.1: for
// Sver==SverLegacy the checksum covers the header alone (with Cksum
// zeroed); for Sver>=SverChecksum it covers header+payload.
func VerifyChecksum(h Header, payload []byte) error {
	headerBuf := make([]byte, HeaderSize)
	putHeader(headerBuf, h)

	var sum uint32
	if h.Sver == SverLegacy {
		sum = crc32.ChecksumIEEE(headerBuf)
	} else {
		sum = crc32.Update(crc32.ChecksumIEEE(headerBuf), crc32.IEEETable, payload)
	}

	if sum != h.Cksum {
		return fmt.Errorf("%w: checksum mismatch: expected 0x%x, got 0x%x", ErrCorrupted, sum, h.Cksum)
	}
	return nil
}
