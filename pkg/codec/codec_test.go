package codec_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ccqqhhzy/tinyrpc/pkg/binaryproto"
	"github.com/ccqqhhzy/tinyrpc/pkg/bookproto"
	"github.com/ccqqhhzy/tinyrpc/pkg/buffer"
	"github.com/ccqqhhzy/tinyrpc/pkg/codec"
	"github.com/ccqqhhzy/tinyrpc/pkg/message"
	"github.com/ccqqhhzy/tinyrpc/pkg/rpcconn"
	"github.com/ccqqhhzy/tinyrpc/pkg/wire"
)

// buildFrame packs one length-prefixed binary-protocol frame carrying req,
// mirroring what codec.SendMessage produces.
func buildFrame(t *testing.T, req *bookproto.BinaryBookReq) []byte {
	t.Helper()
	payload, err := binaryproto.Serialize(req)
	require.NoError(t, err)

	hdr := wire.Header{
		Length:       uint32(wire.HeaderSize + len(payload)),
		ProtocolType: wire.ProtocolBinary,
		ProtocolURI:  uint32(req.URI()),
	}
	frame := make([]byte, wire.HeaderSize+len(payload))
	require.True(t, hdr.Pack(frame))
	copy(frame[wire.HeaderSize:], payload)
	return frame
}

// TestProcessMessageStreamsAcrossChunkBoundaries feeds two concatenated
// frames into a connection a handful of bytes at a time, proving
// ProcessMessage only dispatches once a frame is wholly present and
// correctly resumes across partial reads rather than needing a frame to
// arrive in one TCPRecv call.
func TestProcessMessageStreamsAcrossChunkBoundaries(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	var received []string
	d := message.NewDispatcher()
	message.RegisterHandler(d, bookproto.NewBinaryBookReq, bookproto.NewBinaryBookRsp,
		func(req *bookproto.BinaryBookReq, rsp *bookproto.BinaryBookRsp) {
			received = append(received, req.Name)
			rsp.Result = req.Age
		})

	reg := codec.NewRegistry()
	reg.Register(wire.ProtocolBinary, binaryproto.New(d))

	frame1 := buildFrame(t, &bookproto.BinaryBookReq{Name: "first", Age: 1})
	frame2 := buildFrame(t, &bookproto.BinaryBookReq{Name: "second", Age: 2})
	all := append(append([]byte{}, frame1...), frame2...)

	conn := rpcconn.New(fds[0], buffer.DefaultSize)
	conn.SetStatus(rpcconn.StatusOK)

	const chunkSize = 3
	for off := 0; off < len(all); off += chunkSize {
		end := off + chunkSize
		if end > len(all) {
			end = len(all)
		}
		_, err := unix.Write(fds[1], all[off:end])
		require.NoError(t, err)

		require.True(t, conn.TCPRecv())
		require.True(t, reg.ProcessMessage(conn))

		if end < len(frame1) {
			require.Empty(t, received, "handler must not fire before the first frame is complete")
		}
	}

	require.Equal(t, []string{"first", "second"}, received)
}

// TestProcessMessageTearsDownOnLengthError feeds a frame whose length
// field is corrupted and checks ProcessMessage reports failure.
func TestProcessMessageTearsDownOnLengthError(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	reg := codec.NewRegistry()
	reg.Register(wire.ProtocolBinary, binaryproto.New(message.NewDispatcher()))

	bad := make([]byte, wire.HeaderSize+1)
	var hdr wire.Header
	hdr.Length = 0 // shorter than HeaderSize: a framing error, not "incomplete"
	require.True(t, hdr.Pack(bad))

	_, err = unix.Write(fds[1], bad)
	require.NoError(t, err)

	conn := rpcconn.New(fds[0], buffer.DefaultSize)
	conn.SetStatus(rpcconn.StatusOK)
	require.True(t, conn.TCPRecv())
	require.False(t, reg.ProcessMessage(conn))
}

// TestProcessMessageInvokesDispatchRecorderOnSuccess checks the optional
// SetDispatchRecorder hook fires with the dispatched frame's URI after a
// successful dispatch.
func TestProcessMessageInvokesDispatchRecorderOnSuccess(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	d := message.NewDispatcher()
	message.RegisterHandler(d, bookproto.NewBinaryBookReq, bookproto.NewBinaryBookRsp,
		func(req *bookproto.BinaryBookReq, rsp *bookproto.BinaryBookRsp) {})

	reg := codec.NewRegistry()
	reg.Register(wire.ProtocolBinary, binaryproto.New(d))

	var recordedURI uint32
	calls := 0
	reg.SetDispatchRecorder(func(uri uint32, elapsed time.Duration) {
		calls++
		recordedURI = uri
	})

	frame := buildFrame(t, &bookproto.BinaryBookReq{Name: "recorded"})
	_, err = unix.Write(fds[1], frame)
	require.NoError(t, err)

	conn := rpcconn.New(fds[0], buffer.DefaultSize)
	conn.SetStatus(rpcconn.StatusOK)
	require.True(t, conn.TCPRecv())
	require.True(t, reg.ProcessMessage(conn))

	require.Equal(t, 1, calls)
	require.Equal(t, uint32(bookproto.BookReqURI), recordedURI)
}

// TestProcessMessageUnregisteredProtocolType checks a frame for a
// protocol_type with no registered Protocol fails cleanly.
func TestProcessMessageUnregisteredProtocolType(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	reg := codec.NewRegistry() // nothing registered

	frame := buildFrame(t, &bookproto.BinaryBookReq{Name: "orphan"})
	_, err = unix.Write(fds[1], frame)
	require.NoError(t, err)

	conn := rpcconn.New(fds[0], buffer.DefaultSize)
	conn.SetStatus(rpcconn.StatusOK)
	require.True(t, conn.TCPRecv())
	require.False(t, reg.ProcessMessage(conn))
}
