// Package binaryproto implements the reflection-free binary message
// family (wire.ProtocolBinary): a hand-rolled big-endian serialization
// grammar over a buffer.Buffer, with no schema registry and no
// generated code — every message type writes and reads its own fields.
//
// Grounded on the original's cc::Payload (dispatcher_cc/serialize.h):
// fixed-width integers are appended/read network-byte-order, strings are
// length-prefixed, and containers are a uint32 count followed by that
// many encoded elements. C++ operator overloading (`<<`/`>>`) becomes
// explicit encode/decode function parameters here since Go has neither
// operator overloading nor templates with the same shape; composite
// containers (list-of-map, list-of-vector) become a generic helper
// parameterized on the element encode/decode function instead of nested
// template instantiations.
package binaryproto

import (
	"encoding/binary"
	"fmt"

	"github.com/ccqqhhzy/tinyrpc/pkg/buffer"
)

// Payload wraps a Buffer with the append/takeout grammar. A Payload
// constructed with NewPayload owns a growable Buffer for serialization;
// one constructed with Wrap is a non-owning, single-use view over an
// already-received frame's body for parsing. Never retain or reuse a
// Wrap'd Payload beyond the one dispatch call it was built for — see
// buffer.Buffer.Peek's doc comment for why.
type Payload struct {
	buf *buffer.Buffer
}

// NewPayload allocates a Payload ready for serialization.
func NewPayload(size uint32) *Payload {
	return &Payload{buf: buffer.New(size)}
}

// Wrap builds a non-owning, parse-only Payload over data.
func Wrap(data []byte) *Payload {
	return &Payload{buf: buffer.Wrap(data)}
}

// Bytes returns the live serialized bytes (valid only on an owning,
// not-yet-consumed Payload).
func (p *Payload) Bytes() []byte {
	return p.buf.Bytes()
}

func (p *Payload) Append(b []byte) *Payload {
	p.buf.In(b)
	return p
}

func (p *Payload) AppendUint16(v uint16) *Payload {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return p.Append(b[:])
}

func (p *Payload) AppendUint32(v uint32) *Payload {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return p.Append(b[:])
}

func (p *Payload) AppendUint64(v uint64) *Payload {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return p.Append(b[:])
}

func (p *Payload) AppendString(s string) *Payload {
	p.AppendUint32(uint32(len(s)))
	return p.Append([]byte(s))
}

func (p *Payload) AppendBool(v bool) *Payload {
	if v {
		return p.AppendUint16(1)
	}
	return p.AppendUint16(0)
}

// TakeoutUint16 peeks (and so, per the aliased cursor, consumes) the next
// 2 bytes. Returns 0 if fewer bytes remain, matching the original's
// peek-failure-returns-zero behavior.
func (p *Payload) TakeoutUint16() uint16 {
	var b [2]byte
	if !p.buf.Peek(b[:]) {
		return 0
	}
	return binary.BigEndian.Uint16(b[:])
}

func (p *Payload) TakeoutUint32() uint32 {
	var b [4]byte
	if !p.buf.Peek(b[:]) {
		return 0
	}
	return binary.BigEndian.Uint32(b[:])
}

func (p *Payload) TakeoutUint64() uint64 {
	var b [8]byte
	if !p.buf.Peek(b[:]) {
		return 0
	}
	return binary.BigEndian.Uint64(b[:])
}

func (p *Payload) TakeoutString() string {
	n := p.TakeoutUint32()
	if n == 0 {
		return ""
	}
	b := make([]byte, n)
	if !p.buf.Peek(b) {
		return ""
	}
	return string(b)
}

func (p *Payload) TakeoutBool() bool {
	return p.TakeoutUint16() != 0
}

// AppendContainer writes a homogeneous container: a uint32 count followed
// by enc(item) for each item, mirroring Payload::serializeContainer.
func AppendContainer[T any](p *Payload, items []T, enc func(*Payload, T)) *Payload {
	p.AppendUint32(uint32(len(items)))
	for _, it := range items {
		enc(p, it)
	}
	return p
}

// TakeoutContainer reads what AppendContainer wrote.
func TakeoutContainer[T any](p *Payload, dec func(*Payload) T) []T {
	n := p.TakeoutUint32()
	out := make([]T, 0, n)
	for i := uint32(0); i < n; i++ {
		out = append(out, dec(p))
	}
	return out
}

// AppendCompositeContainer writes a container-of-containers (e.g. a list
// of maps, or a list of vectors, flattened to a slice-of-slice shape
// here): a uint32 outer count, then each inner container via
// AppendContainer, mirroring serializeCompositeContainer.
func AppendCompositeContainer[T any](p *Payload, items [][]T, enc func(*Payload, T)) *Payload {
	p.AppendUint32(uint32(len(items)))
	for _, inner := range items {
		AppendContainer(p, inner, enc)
	}
	return p
}

// TakeoutCompositeContainer reads what AppendCompositeContainer wrote.
func TakeoutCompositeContainer[T any](p *Payload, dec func(*Payload) T) [][]T {
	n := p.TakeoutUint32()
	out := make([][]T, 0, n)
	for i := uint32(0); i < n; i++ {
		out = append(out, TakeoutContainer(p, dec))
	}
	return out
}

// AppendPair writes a two-element pair, mirroring operator<<(pair<T1,T2>).
func AppendPair[A, B any](p *Payload, a A, b B, encA func(*Payload, A), encB func(*Payload, B)) *Payload {
	encA(p, a)
	encB(p, b)
	return p
}

// TakeoutPair reads what AppendPair wrote.
func TakeoutPair[A, B any](p *Payload, decA func(*Payload) A, decB func(*Payload) B) (A, B) {
	a := decA(p)
	b := decB(p)
	return a, b
}

// Codec is implemented by every reflection-free binary message type.
type Codec interface {
	EncodeBinary(p *Payload)
	DecodeBinary(p *Payload)
}

// Serialize encodes msg into a fresh byte slice.
func Serialize(msg Codec) ([]byte, error) {
	p := NewPayload(buffer.DefaultSize)
	msg.EncodeBinary(p)
	return p.Bytes(), nil
}

// Parse decodes body into msg. body must be the exact, already
// length-validated frame body; msg's DecodeBinary reads sequentially from
// the front and must not be called twice against the same body.
func Parse(body []byte, msg Codec) error {
	if msg == nil {
		return fmt.Errorf("binaryproto: nil message")
	}
	p := Wrap(body)
	msg.DecodeBinary(p)
	return nil
}
