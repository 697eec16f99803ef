// Package rpcerrors defines the sentinel errors each layer wraps with
// fmt.Errorf("...: %w", err) so a caller can recover the failure class
// with errors.Is no matter how deep the call chain that produced it.
//
// Grounded on the teacher's pkg/adapter.ProtocolError: there a protocol
// adapter wraps a domain error (e.g. metadata.ErrNoEntity) behind a
// wire-code-carrying interface that still satisfies errors.Is via
// Unwrap. This framework has no per-protocol status code to carry, so
// plain wrapped sentinels are enough, but the wrap-and-unwrap discipline
// is the same one.
package rpcerrors

import "errors"

var (
	// ErrBroken marks a connection that failed at the socket layer
	// (EOF, a non-EAGAIN/EINTR errno, or an explicit peer reset).
	ErrBroken = errors.New("rpcerrors: connection broken")

	// ErrUnknownProtocol names the failure of a frame whose protocol_type
	// has no registered Protocol. codec.Registry.ProcessMessage reports that
	// case as a plain false and does not return this value.
	ErrUnknownProtocol = errors.New("rpcerrors: unknown protocol type")

	// ErrUnregisteredURI is returned when a frame's protocol_uri has no
	// registered handler or async callback.
	ErrUnregisteredURI = errors.New("rpcerrors: unregistered uri")

	// ErrBufferFull is returned when a buffer cannot grow to satisfy a
	// write (it already sits at MaxSize).
	ErrBufferFull = errors.New("rpcerrors: buffer at max size")

	// ErrTimeout is returned when a blocking operation (connect, a
	// synchronous call, a poll wait) exceeds its deadline.
	ErrTimeout = errors.New("rpcerrors: timed out")

	// ErrShuttingDown names an operation attempted against a server or
	// worker already past TERM. No function in this module returns it.
	ErrShuttingDown = errors.New("rpcerrors: shutting down")
)
