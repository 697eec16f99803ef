// Package codec implements the streaming deframe/dispatch loop shared by
// every connection: peel complete frames off the front of a Connection's
// receive buffer, hand each one to the protocol registered for its
// protocol_type, and pack+flush outbound frames the same way in reverse.
//
// Grounded on original_source/codec.h + codec.cpp's process_message,
// which peeks the length field, waits for more bytes on NotComplete,
// tears the connection down on a length error, and otherwise consumes
// the whole frame before dispatching — the consumed bytes must stay
// stable through dispatch since the protocol layer parses synchronously
// from them before the loop's next iteration.
package codec

import (
	"fmt"
	"time"

	"github.com/ccqqhhzy/tinyrpc/pkg/rpcconn"
	"github.com/ccqqhhzy/tinyrpc/pkg/rpcerrors"
	"github.com/ccqqhhzy/tinyrpc/pkg/wire"
)

// Protocol is implemented by each message family (schemaproto, binaryproto)
// and registered against its wire.ProtocolType.
type Protocol interface {
	// Dispatch decodes body (the frame's payload, excluding the header)
	// per protocol_uri and routes it via the protocol's Dispatcher,
	// sending any response through conn's send buffer.
	Dispatch(body []byte, protocolURI uint32, traceID [wire.TraceIDSize]byte, conn *rpcconn.Connection) error
}

// Registry maps a wire.ProtocolType to its Protocol implementation. One
// Registry is shared by every Connection a worker owns.
type Registry struct {
	protocols  map[wire.ProtocolType]Protocol
	onDispatch func(uri uint32, elapsed time.Duration)
}

func NewRegistry() *Registry {
	return &Registry{protocols: make(map[wire.ProtocolType]Protocol)}
}

func (r *Registry) Register(t wire.ProtocolType, p Protocol) {
	r.protocols[t] = p
}

// SetDispatchRecorder installs a callback ProcessMessage invokes after
// every successfully dispatched frame, timing the Dispatch call. The codec
// package has no opinion on how that timing is recorded; worker wires this
// to pkg/metrics.
func (r *Registry) SetDispatchRecorder(f func(uri uint32, elapsed time.Duration)) {
	r.onDispatch = f
}

// ProcessMessage consumes every complete frame currently sitting at the
// front of conn's receive buffer, dispatching each in turn. It returns
// false (and the caller should tear the connection down) on a framing
// error or a protocol/dispatch failure; true otherwise, including the
// ordinary "no complete frame yet" case.
func (r *Registry) ProcessMessage(conn *rpcconn.Connection) bool {
	for {
		recv := conn.RecvBuf()
		status, size := wire.PackageSize(recv.Bytes())
		switch status {
		case wire.LengthNotComplete:
			return true
		case wire.LengthErr:
			return false
		}

		full := recv.Bytes()[:size]
		var hdr wire.Header
		if !hdr.Unpack(full) {
			return false
		}
		body := full[wire.HeaderSize:size]

		proto, ok := r.protocols[hdr.ProtocolType]
		if !ok {
			return false
		}
		start := time.Now()
		if err := proto.Dispatch(body, hdr.ProtocolURI, hdr.TraceID, conn); err != nil {
			recv.Discard(size)
			return false
		}
		if r.onDispatch != nil {
			r.onDispatch(hdr.ProtocolURI, time.Since(start))
		}

		recv.Discard(size)
	}
}

// SendMessage packs protocolType/uri/traceID/payload into a frame and
// appends it to conn's send buffer, then opportunistically flushes via
// TCPSend. The caller (the read/write event callbacks) is responsible for
// toggling WRITE interest based on conn.HasPendingRsp() afterward.
func SendMessage(conn *rpcconn.Connection, protocolType wire.ProtocolType, uri uint32, traceID [wire.TraceIDSize]byte, payload []byte) error {
	hdr := wire.Header{
		Length:       uint32(wire.HeaderSize + len(payload)),
		ProtocolType: protocolType,
		ProtocolURI:  uri,
		TraceID:      traceID,
	}
	frame := make([]byte, wire.HeaderSize+len(payload))
	if !hdr.Pack(frame) {
		return fmt.Errorf("codec: pack header: %w", rpcerrors.ErrBufferFull)
	}
	copy(frame[wire.HeaderSize:], payload)

	if !conn.IntoSendBuf(frame) {
		return fmt.Errorf("codec: append frame to send buffer: %w", rpcerrors.ErrBufferFull)
	}
	if !conn.TCPSend() {
		return fmt.Errorf("codec: flush send buffer: %w", rpcerrors.ErrBroken)
	}
	return nil
}
