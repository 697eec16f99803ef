// Package message defines the minimal interface every wire message
// implements and the generic Dispatcher both protocol families embed.
//
// This is the Go realization of the original's GenericDispatcher<PROTOCOL,
// DISPATCHER> template: instead of a CRTP base parameterized over a
// protocol trait, registration is a pair of generic functions parameterized
// over the request/response Go types, each constrained to Message. No
// runtime reflection or type-erased descriptor objects are needed because
// the factory closures are instantiated per call site by the compiler.
package message

import (
	"fmt"

	"github.com/ccqqhhzy/tinyrpc/pkg/rpcerrors"
)

// URI is the 32-bit wire identifier of a message type. Zero is reserved as
// the "no registration" sentinel.
type URI uint32

// Message is implemented by every request/response type registered with a
// Dispatcher.
type Message interface {
	URI() URI
}

// ServerHandler processes a decoded request and fills in rsp in place.
type ServerHandler[REQ, RSP Message] func(req REQ, rsp RSP)

// AsyncHandler processes a decoded async response.
type AsyncHandler[RSP Message] func(rsp RSP)

// callback is the type-erased entry stored per-URI, mirroring ICallback.
type callback struct {
	onServerRequest func(req, rsp Message)
	onAsyncResponse func(rsp Message)
}

// Dispatcher holds the three URI-keyed maps the spec's DispatcherState
// describes: handlers, req_to_rsp, and descriptors (factories).
type Dispatcher struct {
	callbacks  map[URI]*callback
	req2rsp    map[URI]URI
	factories  map[URI]func() Message
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		callbacks: make(map[URI]*callback),
		req2rsp:   make(map[URI]URI),
		factories: make(map[URI]func() Message),
	}
}

// RegisterHandler installs a server-side handler: stores it under REQ's
// URI, records REQ.URI -> RSP.URI, and installs factories for both URIs.
// Panics if REQ and RSP share a URI, matching the original's assert.
func RegisterHandler[REQ, RSP Message](d *Dispatcher, newReq func() REQ, newRsp func() RSP, fn ServerHandler[REQ, RSP]) {
	var reqZero REQ
	var rspZero RSP
	reqURI, rspURI := reqZero.URI(), rspZero.URI()
	if reqURI == rspURI {
		panic(fmt.Sprintf("message: request and response URI must differ (both 0x%x)", reqURI))
	}

	d.callbacks[reqURI] = &callback{
		onServerRequest: func(req, rsp Message) {
			fn(req.(REQ), rsp.(RSP))
		},
	}
	d.req2rsp[reqURI] = rspURI
	d.factories[reqURI] = func() Message { return newReq() }
	d.factories[rspURI] = func() Message { return newRsp() }
}

// RegisterAsync installs a client-side async response callback: stores it
// under RSP's URI and maps RSP.URI -> RSP.URI so the dispatch algorithm's
// `uri == rsp_uri` test selects the async-delivery branch.
func RegisterAsync[RSP Message](d *Dispatcher, newRsp func() RSP, fn AsyncHandler[RSP]) {
	var rspZero RSP
	rspURI := rspZero.URI()

	d.callbacks[rspURI] = &callback{
		onAsyncResponse: func(rsp Message) {
			fn(rsp.(RSP))
		},
	}
	d.req2rsp[rspURI] = rspURI
	d.factories[rspURI] = func() Message { return newRsp() }
}

// RegisterDescriptor installs just a factory for uri, used when a type
// needs to be materializable without a handler (rarely needed directly by
// callers; RegisterHandler/RegisterAsync cover the common paths).
func RegisterDescriptor[T Message](d *Dispatcher, uri URI, newT func() T) {
	if _, ok := d.factories[uri]; !ok {
		d.factories[uri] = func() Message { return newT() }
	}
}

// GetRspURI returns the response URI paired with reqURI, or 0 if reqURI is
// unregistered.
func (d *Dispatcher) GetRspURI(reqURI URI) URI {
	return d.req2rsp[reqURI]
}

// NewMessage materializes a fresh, empty Message for uri via its
// registered factory, or (nil, false) if none is registered.
func (d *Dispatcher) NewMessage(uri URI) (Message, bool) {
	f, ok := d.factories[uri]
	if !ok {
		return nil, false
	}
	return f(), true
}

// OnServerRequest invokes the handler registered under reqURI.
func (d *Dispatcher) OnServerRequest(reqURI URI, req, rsp Message) bool {
	cb, ok := d.callbacks[reqURI]
	if !ok || cb.onServerRequest == nil {
		return false
	}
	cb.onServerRequest(req, rsp)
	return true
}

// OnAsyncResponse invokes the async callback registered under rspURI.
func (d *Dispatcher) OnAsyncResponse(rspURI URI, rsp Message) bool {
	cb, ok := d.callbacks[rspURI]
	if !ok || cb.onAsyncResponse == nil {
		return false
	}
	cb.onAsyncResponse(rsp)
	return true
}

// Parser decodes body into the already-materialized msg.
type Parser func(body []byte, msg Message) error

// Serializer encodes msg into a fresh byte slice.
type Serializer func(msg Message) ([]byte, error)

// SendFrame transmits a fully-serialized response payload under rspURI.
// The codec layer supplies this, closing over the destination Connection
// and the wire framing.
type SendFrame func(rspURI URI, payload []byte) error

// Dispatch runs the protocol-independent routing algorithm each protocol
// family shares: given an inbound frame's uri and body, decide whether
// this is a server-side request (decode, invoke the handler, encode and
// send the response) or a client-side async response (decode, invoke the
// async callback), using parse/serialize supplied by the caller's wire
// format (gob for schemaproto, the hand-rolled grammar for binaryproto).
func (d *Dispatcher) Dispatch(uri URI, body []byte, parse Parser, serialize Serializer, send SendFrame) error {
	rspURI := d.GetRspURI(uri)
	if rspURI == 0 {
		return fmt.Errorf("message: dispatch uri 0x%x: %w", uri, rpcerrors.ErrUnregisteredURI)
	}

	if uri != rspURI {
		req, ok := d.NewMessage(uri)
		if !ok {
			return fmt.Errorf("message: no factory for request uri 0x%x: %w", uri, rpcerrors.ErrUnregisteredURI)
		}
		if err := parse(body, req); err != nil {
			return fmt.Errorf("message: parse request uri 0x%x: %w", uri, err)
		}
		rsp, ok := d.NewMessage(rspURI)
		if !ok {
			return fmt.Errorf("message: no factory for response uri 0x%x: %w", rspURI, rpcerrors.ErrUnregisteredURI)
		}
		if !d.OnServerRequest(uri, req, rsp) {
			return fmt.Errorf("message: no handler for request uri 0x%x: %w", uri, rpcerrors.ErrUnregisteredURI)
		}
		out, err := serialize(rsp)
		if err != nil {
			return fmt.Errorf("message: serialize response uri 0x%x: %w", rspURI, err)
		}
		return send(rspURI, out)
	}

	rsp, ok := d.NewMessage(uri)
	if !ok {
		return fmt.Errorf("message: no factory for async uri 0x%x: %w", uri, rpcerrors.ErrUnregisteredURI)
	}
	if err := parse(body, rsp); err != nil {
		return fmt.Errorf("message: parse async response uri 0x%x: %w", uri, err)
	}
	if !d.OnAsyncResponse(uri, rsp) {
		return fmt.Errorf("message: no async callback for uri 0x%x: %w", uri, rpcerrors.ErrUnregisteredURI)
	}
	return nil
}
