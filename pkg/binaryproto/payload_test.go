package binaryproto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScalarAppendTakeoutRoundTrip(t *testing.T) {
	p := NewPayload(64)
	p.AppendUint16(7).AppendUint32(1234).AppendUint64(99999999).AppendString("hi").AppendBool(true)

	r := Wrap(p.Bytes())
	require.Equal(t, uint16(7), r.TakeoutUint16())
	require.Equal(t, uint32(1234), r.TakeoutUint32())
	require.Equal(t, uint64(99999999), r.TakeoutUint64())
	require.Equal(t, "hi", r.TakeoutString())
	require.True(t, r.TakeoutBool())
}

func TestTakeoutStringEmpty(t *testing.T) {
	p := NewPayload(16)
	p.AppendString("")
	r := Wrap(p.Bytes())
	require.Equal(t, "", r.TakeoutString())
}

func TestTakeoutPastEndReturnsZeroValue(t *testing.T) {
	r := Wrap(nil)
	require.Equal(t, uint16(0), r.TakeoutUint16())
	require.Equal(t, uint32(0), r.TakeoutUint32())
	require.Equal(t, "", r.TakeoutString())
}

func TestContainerRoundTrip(t *testing.T) {
	p := NewPayload(64)
	AppendContainer(p, []string{"a", "b", "c"}, func(p *Payload, s string) { p.AppendString(s) })

	r := Wrap(p.Bytes())
	got := TakeoutContainer(r, func(p *Payload) string { return p.TakeoutString() })
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestContainerRoundTripEmpty(t *testing.T) {
	p := NewPayload(16)
	AppendContainer(p, []uint32{}, func(p *Payload, v uint32) { p.AppendUint32(v) })

	r := Wrap(p.Bytes())
	got := TakeoutContainer(r, func(p *Payload) uint32 { return p.TakeoutUint32() })
	require.Empty(t, got)
}

func TestCompositeContainerRoundTrip(t *testing.T) {
	p := NewPayload(64)
	items := [][]string{{"a", "b"}, {"c"}, {}}
	AppendCompositeContainer(p, items, func(p *Payload, s string) { p.AppendString(s) })

	r := Wrap(p.Bytes())
	got := TakeoutCompositeContainer(r, func(p *Payload) string { return p.TakeoutString() })
	require.Equal(t, items, got)
}

func TestPairRoundTrip(t *testing.T) {
	p := NewPayload(32)
	AppendPair(p, "key", uint32(42),
		func(p *Payload, s string) { p.AppendString(s) },
		func(p *Payload, v uint32) { p.AppendUint32(v) })

	r := Wrap(p.Bytes())
	a, b := TakeoutPair(r,
		func(p *Payload) string { return p.TakeoutString() },
		func(p *Payload) uint32 { return p.TakeoutUint32() })
	require.Equal(t, "key", a)
	require.Equal(t, uint32(42), b)
}

type echoCodec struct {
	Value string
}

func (e *echoCodec) EncodeBinary(p *Payload) { p.AppendString(e.Value) }
func (e *echoCodec) DecodeBinary(p *Payload) { e.Value = p.TakeoutString() }

func TestSerializeParseRoundTrip(t *testing.T) {
	msg := &echoCodec{Value: "round trip"}
	body, err := Serialize(msg)
	require.NoError(t, err)

	got := &echoCodec{}
	require.NoError(t, Parse(body, got))
	require.Equal(t, msg.Value, got.Value)
}

func TestParseRejectsNilMessage(t *testing.T) {
	require.Error(t, Parse([]byte("x"), nil))
}
