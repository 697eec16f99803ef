// Package rpcconn implements Connection: a socket fd paired with a
// receive Buffer and a send Buffer, non-blocking recv/send with
// EINTR/EAGAIN handling, and the liveness timestamp the idle reaper reads.
package rpcconn

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ccqqhhzy/tinyrpc/pkg/buffer"
)

type Status int

const (
	StatusNone Status = iota
	StatusOK
	StatusBroken
)

// AddrInfo is a minimal IPv4/IPv6 endpoint description, filled in on
// accept or connect.
type AddrInfo struct {
	IP   string
	Port uint32
}

// Connection owns one socket fd plus its two buffers. It is never touched
// from more than one goroutine: the worker's event-loop goroutine for
// server-side connections, the calling goroutine (then the shared async
// read-loop) for client-side ones.
type Connection struct {
	fd             int
	status         Status
	family         int
	recvBuf        *buffer.Buffer
	sendBuf        *buffer.Buffer
	remoteAddr     AddrInfo
	localAddr      AddrInfo
	lastActiveTime time.Time
}

// New allocates a Connection with fresh recv/send buffers of bufSize
// capacity (clamped to buffer.DefaultSize if invalid). fd may be -1 for a
// pool-manufactured instance awaiting Reset+reinitialization on accept.
func New(fd int, bufSize uint32) *Connection {
	return &Connection{
		fd:      fd,
		status:  StatusNone,
		family:  unix.AF_INET,
		recvBuf: buffer.New(bufSize),
		sendBuf: buffer.New(bufSize),
	}
}

func (c *Connection) FD() int            { return c.fd }
func (c *Connection) SetFD(fd int)       { c.fd = fd }
func (c *Connection) Status() Status     { return c.status }
func (c *Connection) SetStatus(s Status) { c.status = s }
func (c *Connection) IsOK() bool         { return c.status == StatusOK }
func (c *Connection) Family() int        { return c.family }
func (c *Connection) SetFamily(f int)    { c.family = f }

func (c *Connection) LastActiveTime() time.Time     { return c.lastActiveTime }
func (c *Connection) TouchActive(t time.Time)       { c.lastActiveTime = t }
func (c *Connection) RemoteAddr() *AddrInfo         { return &c.remoteAddr }
func (c *Connection) LocalAddr() *AddrInfo          { return &c.localAddr }
func (c *Connection) RecvBuf() *buffer.Buffer       { return c.recvBuf }
func (c *Connection) SendBuf() *buffer.Buffer       { return c.sendBuf }
func (c *Connection) HasPendingRsp() bool           { return c.sendBuf.Size() > 0 }

// TCPRecv drains as much as the recv buffer's current free space allows
// (it does not grow the buffer first, matching the spec's "advance
// recv_buf size by total bytes read" contract). Space is freed only when
// the codec consumes whole frames, and nothing grows the recv buffer, so a
// frame larger than its capacity is never completed. Returns false on a
// fatal error (status becomes StatusBroken) or when there was literally no
// free space to read into.
func (c *Connection) TCPRecv() bool {
	free := c.recvBuf.FreeSize()
	if free == 0 {
		return false
	}
	dst := c.recvBuf.WritableSlice()

	var total uint32
	for total < free {
		n, err := unix.Read(c.fd, dst[total:])
		if n == 0 && err == nil {
			c.status = StatusBroken
			return false
		}
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				break
			}
			c.status = StatusBroken
			return false
		}
		total += uint32(n)
	}

	c.recvBuf.CommitWrite(total)
	return true
}

// TCPSend flushes as much of the send buffer as the kernel will accept
// without blocking.
func (c *Connection) TCPSend() bool {
	size := c.sendBuf.Size()
	if size == 0 {
		return true
	}
	data := c.sendBuf.ReadSlice()

	var total uint32
	for total < size {
		n, err := unix.Write(c.fd, data[total:])
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				break
			}
			c.status = StatusBroken
			return false
		}
		total += uint32(n)
	}

	c.sendBuf.Discard(total)
	return true
}

// IntoSendBuf appends bytes to the send buffer for the next TCPSend.
func (c *Connection) IntoSendBuf(b []byte) bool {
	return c.sendBuf.In(b)
}

// OutRecvBuf drains bytes from the recv buffer into dst.
func (c *Connection) OutRecvBuf(dst []byte) bool {
	return c.recvBuf.Out(dst)
}

// SetReusePort sets SO_REUSEPORT best-effort; logged by the caller on
// failure since some platforms/kernels may lack support.
func SetReusePort(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

// BuildSockaddr parses ip into the syscall sockaddr shape the server's
// listener and the client's connect both need, shared here so neither
// package duplicates address-family plumbing.
func BuildSockaddr(ip string, port uint16, isIPv6 bool) (unix.Sockaddr, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("rpcconn: invalid address %q", ip)
	}
	if isIPv6 {
		var a16 [16]byte
		copy(a16[:], parsed.To16())
		return &unix.SockaddrInet6{Port: int(port), Addr: a16}, nil
	}
	v4 := parsed.To4()
	if v4 == nil {
		return nil, fmt.Errorf("rpcconn: %q is not an IPv4 address", ip)
	}
	var a4 [4]byte
	copy(a4[:], v4)
	return &unix.SockaddrInet4{Port: int(port), Addr: a4}, nil
}

// FillRemoteAddr populates addr's IP/Port from a socket's accepted peer
// sockaddr.
func FillRemoteAddr(addr *AddrInfo, sa unix.Sockaddr) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		addr.IP = net.IP(a.Addr[:]).String()
		addr.Port = uint32(a.Port)
	case *unix.SockaddrInet6:
		addr.IP = net.IP(a.Addr[:]).String()
		addr.Port = uint32(a.Port)
	}
}

// Reset drops fd ownership (the caller must already have closed it) and
// clears buffers/status so the Connection can be returned to its pool.
func (c *Connection) Reset() {
	c.fd = -1
	c.status = StatusNone
	c.recvBuf.Reset()
	c.sendBuf.Reset()
	c.lastActiveTime = time.Time{}
}
