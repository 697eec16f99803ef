package rpcconn

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ccqqhhzy/tinyrpc/pkg/buffer"
)

func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.SetNonblock(fds[0], true))
	require.NoError(t, unix.SetNonblock(fds[1], true))
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestTCPRecvReadsWhatWasWritten(t *testing.T) {
	a, b := socketpair(t)
	conn := New(a, buffer.DefaultSize)
	conn.SetStatus(StatusOK)

	_, err := unix.Write(b, []byte("hello"))
	require.NoError(t, err)

	require.True(t, conn.TCPRecv())
	out := make([]byte, 5)
	require.True(t, conn.OutRecvBuf(out))
	require.Equal(t, "hello", string(out))
}

func TestTCPRecvNoDataIsNotAnError(t *testing.T) {
	a, _ := socketpair(t)
	conn := New(a, buffer.DefaultSize)
	conn.SetStatus(StatusOK)

	require.True(t, conn.TCPRecv())
	require.Zero(t, conn.RecvBuf().Size())
	require.True(t, conn.IsOK())
}

func TestTCPRecvPeerCloseMarksBroken(t *testing.T) {
	a, b := socketpair(t)
	conn := New(a, buffer.DefaultSize)
	conn.SetStatus(StatusOK)

	require.NoError(t, unix.Close(b))

	require.False(t, conn.TCPRecv())
	require.Equal(t, StatusBroken, conn.Status())
}

func TestTCPSendFlushesToPeer(t *testing.T) {
	a, b := socketpair(t)
	conn := New(a, buffer.DefaultSize)
	conn.SetStatus(StatusOK)

	require.True(t, conn.IntoSendBuf([]byte("world")))
	require.True(t, conn.TCPSend())
	require.Zero(t, conn.SendBuf().Size())

	got := make([]byte, 5)
	n, err := unix.Read(b, got)
	require.NoError(t, err)
	require.Equal(t, "world", string(got[:n]))
}

func TestTCPSendEmptyBufferIsNoop(t *testing.T) {
	a, _ := socketpair(t)
	conn := New(a, buffer.DefaultSize)
	conn.SetStatus(StatusOK)
	require.True(t, conn.TCPSend())
}

func TestHasPendingRsp(t *testing.T) {
	a, _ := socketpair(t)
	conn := New(a, buffer.DefaultSize)
	require.False(t, conn.HasPendingRsp())
	require.True(t, conn.IntoSendBuf([]byte("x")))
	require.True(t, conn.HasPendingRsp())
}

func TestResetClearsStateForPoolReuse(t *testing.T) {
	a, _ := socketpair(t)
	conn := New(a, buffer.DefaultSize)
	conn.SetStatus(StatusOK)
	require.True(t, conn.IntoSendBuf([]byte("pending")))

	conn.Reset()

	require.Equal(t, -1, conn.FD())
	require.Equal(t, StatusNone, conn.Status())
	require.Zero(t, conn.SendBuf().Size())
	require.Zero(t, conn.RecvBuf().Size())
}

func TestBuildSockaddrIPv4(t *testing.T) {
	sa, err := BuildSockaddr("127.0.0.1", 8080, false)
	require.NoError(t, err)
	v4, ok := sa.(*unix.SockaddrInet4)
	require.True(t, ok)
	require.Equal(t, 8080, v4.Port)
	require.Equal(t, [4]byte{127, 0, 0, 1}, v4.Addr)
}

func TestBuildSockaddrIPv6(t *testing.T) {
	sa, err := BuildSockaddr("::1", 9090, true)
	require.NoError(t, err)
	_, ok := sa.(*unix.SockaddrInet6)
	require.True(t, ok)
}

func TestBuildSockaddrRejectsGarbage(t *testing.T) {
	_, err := BuildSockaddr("not-an-ip", 80, false)
	require.Error(t, err)
}

func TestBuildSockaddrRejectsIPv6ForIPv4Family(t *testing.T) {
	_, err := BuildSockaddr("::1", 80, false)
	require.Error(t, err)
}

func TestFillRemoteAddrIPv4(t *testing.T) {
	var addr AddrInfo
	FillRemoteAddr(&addr, &unix.SockaddrInet4{Port: 1234, Addr: [4]byte{10, 0, 0, 1}})
	require.Equal(t, "10.0.0.1", addr.IP)
	require.Equal(t, uint32(1234), addr.Port)
}
