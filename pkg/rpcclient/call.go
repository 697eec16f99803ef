package rpcclient

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ccqqhhzy/tinyrpc/pkg/binaryproto"
	"github.com/ccqqhhzy/tinyrpc/pkg/codec"
	"github.com/ccqqhhzy/tinyrpc/pkg/message"
	"github.com/ccqqhhzy/tinyrpc/pkg/rpcerrors"
	"github.com/ccqqhhzy/tinyrpc/pkg/schemaproto"
	"github.com/ccqqhhzy/tinyrpc/pkg/wire"
)

// SyncCall sends req over the reflection-free binary protocol and blocks
// until the matching response arrives, ctx is done, or the connection
// breaks. Only one SyncCall may be in flight per Client at a time.
//
// Grounded on test/client_cc_test.cpp's CcClient::synCall: serialize,
// send, then poll/recv/deframe in a loop that recomputes the remaining
// timeout on every iteration.
func SyncCall[REQ binaryproto.Message, RSP binaryproto.Message](ctx context.Context, c *Client, req REQ, rsp RSP) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := binaryproto.Serialize(req)
	if err != nil {
		return fmt.Errorf("rpcclient: serialize request: %w", err)
	}
	if err := codec.SendMessage(c.conn, wire.ProtocolBinary, uint32(req.URI()), newTraceID(), payload); err != nil {
		return fmt.Errorf("rpcclient: send request: %w", err)
	}

	return c.awaitResponse(ctx, wire.ProtocolBinary, rsp.URI(), func(body []byte) error {
		return binaryproto.Parse(body, rsp)
	})
}

// SyncCallSchema is SyncCall's schema-described (gob) protocol family
// equivalent.
func SyncCallSchema[REQ message.Message, RSP message.Message](ctx context.Context, c *Client, req REQ, rsp RSP) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := schemaproto.Serialize(req)
	if err != nil {
		return fmt.Errorf("rpcclient: serialize request: %w", err)
	}
	if err := codec.SendMessage(c.conn, wire.ProtocolSchema, uint32(req.URI()), newTraceID(), payload); err != nil {
		return fmt.Errorf("rpcclient: send request: %w", err)
	}

	return c.awaitResponse(ctx, wire.ProtocolSchema, rsp.URI(), func(body []byte) error {
		return schemaproto.Parse(body, rsp)
	})
}

// awaitResponse implements the poll/tcp_recv/deframe loop shared by both
// protocol families' synchronous call path: wait for readability with
// the remaining deadline, recv, attempt to deframe, and on a complete
// frame require its protocol_type/protocol_uri match what the caller
// asked for before handing the body to parse.
func (c *Client) awaitResponse(ctx context.Context, wantProtocol wire.ProtocolType, wantURI message.URI, parse func([]byte) error) error {
	for {
		ms, expired := remainingMillis(ctx, 0)
		if expired {
			return fmt.Errorf("rpcclient: await response: %w", rpcerrors.ErrTimeout)
		}

		pfd := []unix.PollFd{{Fd: int32(c.conn.FD()), Events: unix.POLLIN}}
		n, err := unix.Poll(pfd, ms)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("rpcclient: poll: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("rpcclient: await response: %w", rpcerrors.ErrTimeout)
		}

		if !c.conn.TCPRecv() {
			return fmt.Errorf("rpcclient: receive: %w", rpcerrors.ErrBroken)
		}

		recv := c.conn.RecvBuf()
		status, size := wire.PackageSize(recv.Bytes())
		switch status {
		case wire.LengthNotComplete:
			continue
		case wire.LengthErr:
			return fmt.Errorf("rpcclient: malformed frame length: %w", rpcerrors.ErrBroken)
		}

		full := recv.Bytes()[:size]
		var hdr wire.Header
		hdr.Unpack(full)
		body := full[wire.HeaderSize:size]

		if hdr.ProtocolType != wantProtocol || message.URI(hdr.ProtocolURI) != wantURI {
			recv.Discard(size)
			return fmt.Errorf("rpcclient: unexpected response protocol=%d uri=%d: %w", hdr.ProtocolType, hdr.ProtocolURI, rpcerrors.ErrUnregisteredURI)
		}

		err = parse(body)
		recv.Discard(size)
		return err
	}
}
