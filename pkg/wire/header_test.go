package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderPackUnpackRoundTrip(t *testing.T) {
	h := Header{
		Length:       HeaderSize + 10,
		ProtocolType: ProtocolBinary,
		ProtocolURI:  200<<8 | 101,
		Checksum:     0,
	}
	h.TraceID[0] = 0xAB
	h.TraceID[31] = 0xCD

	buf := make([]byte, HeaderSize)
	require.True(t, h.Pack(buf))

	var got Header
	require.True(t, got.Unpack(buf))
	require.Equal(t, h, got)
}

func TestHeaderPackUnpackRejectShortBuffer(t *testing.T) {
	var h Header
	short := make([]byte, HeaderSize-1)
	require.False(t, h.Pack(short))
	require.False(t, h.Unpack(short))
}

func TestPackageSizeNotCompleteAtHeaderSize(t *testing.T) {
	status, size := PackageSize(make([]byte, HeaderSize))
	require.Equal(t, LengthNotComplete, status)
	require.Zero(t, size)
}

func TestPackageSizeErrOnLengthBelowHeaderSize(t *testing.T) {
	buf := make([]byte, HeaderSize+5)
	var h Header
	h.Length = HeaderSize - 1
	require.True(t, h.Pack(buf))

	status, _ := PackageSize(buf)
	require.Equal(t, LengthErr, status)
}

func TestPackageSizeNotCompleteWhenFrameLongerThanBuffer(t *testing.T) {
	buf := make([]byte, HeaderSize+5)
	var h Header
	h.Length = HeaderSize + 100
	require.True(t, h.Pack(buf))

	status, _ := PackageSize(buf)
	require.Equal(t, LengthNotComplete, status)
}

func TestPackageSizeOKWhenFrameFullyPresent(t *testing.T) {
	body := 10
	buf := make([]byte, HeaderSize+body)
	var h Header
	h.Length = uint32(HeaderSize + body)
	require.True(t, h.Pack(buf))

	status, size := PackageSize(buf)
	require.Equal(t, LengthOK, status)
	require.Equal(t, h.Length, size)
}
