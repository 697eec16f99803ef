// Package wire defines the fixed on-wire frame header shared by every
// protocol family: total length, protocol id, message URI, a reserved
// checksum, and an opaque trace id.
package wire

import "encoding/binary"

// ProtocolType identifies which Protocol a frame's payload belongs to.
type ProtocolType uint8

const (
	ProtocolSchema ProtocolType = 0 // schema-described
	ProtocolBinary ProtocolType = 1 // reflection-free binary
)

const TraceIDSize = 32

// HeaderSize is the fixed on-wire size: 4 (length) + 1 (protocol_type) +
// 4 (protocol_uri) + 4 (checksum) + 32 (trace_id) = 45 bytes.
const HeaderSize = 4 + 1 + 4 + 4 + TraceIDSize

// Header is the fixed frame header. Fields serialize in declaration order,
// big-endian, with no padding.
type Header struct {
	Length       uint32
	ProtocolType ProtocolType
	ProtocolURI  uint32
	Checksum     uint32 // reserved; zero on send, never validated on receive
	TraceID      [TraceIDSize]byte
}

// Pack serializes h into buf, which must be at least HeaderSize bytes.
func (h *Header) Pack(buf []byte) bool {
	if len(buf) < HeaderSize {
		return false
	}
	binary.BigEndian.PutUint32(buf[0:4], h.Length)
	buf[4] = byte(h.ProtocolType)
	binary.BigEndian.PutUint32(buf[5:9], h.ProtocolURI)
	binary.BigEndian.PutUint32(buf[9:13], h.Checksum)
	copy(buf[13:13+TraceIDSize], h.TraceID[:])
	return true
}

// Unpack parses h from buf, which must be at least HeaderSize bytes.
func (h *Header) Unpack(buf []byte) bool {
	if len(buf) < HeaderSize {
		return false
	}
	h.Length = binary.BigEndian.Uint32(buf[0:4])
	h.ProtocolType = ProtocolType(buf[4])
	h.ProtocolURI = binary.BigEndian.Uint32(buf[5:9])
	h.Checksum = binary.BigEndian.Uint32(buf[9:13])
	copy(h.TraceID[:], buf[13:13+TraceIDSize])
	return true
}

// LengthStatus is the result of inspecting a prospective frame's length
// field against the bytes currently available.
type LengthStatus int

const (
	LengthOK LengthStatus = iota
	LengthErr
	LengthNotComplete
)

// PackageSize inspects buf (the front of a Connection's receive buffer,
// which may hold less than one full header) and reports whether a
// complete frame's length is known and, if so, what it is.
func PackageSize(buf []byte) (status LengthStatus, packageSize uint32) {
	if len(buf) <= HeaderSize {
		return LengthNotComplete, 0
	}
	msgLen := binary.BigEndian.Uint32(buf[0:4])
	if msgLen < HeaderSize {
		return LengthErr, 0
	}
	if int(msgLen) > len(buf) {
		return LengthNotComplete, 0
	}
	return LengthOK, msgLen
}
