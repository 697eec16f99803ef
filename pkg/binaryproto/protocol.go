package binaryproto

import (
	"context"

	"github.com/ccqqhhzy/tinyrpc/internal/telemetry"
	"github.com/ccqqhhzy/tinyrpc/pkg/codec"
	"github.com/ccqqhhzy/tinyrpc/pkg/message"
	"github.com/ccqqhhzy/tinyrpc/pkg/rpcconn"
	"github.com/ccqqhhzy/tinyrpc/pkg/wire"
)

// Message is implemented by every reflection-free binary request/response
// type: message.Message for URI routing, Codec for the wire grammar.
type Message interface {
	message.Message
	Codec
}

// Protocol adapts a message.Dispatcher to codec.Protocol for
// wire.ProtocolBinary frames. Grounded on original_source/dispatcher_cc's
// CcProtocol, which wires cc::Dispatcher's parse/serialize/dispatch
// through the shared GenericDispatcher base.
type Protocol struct {
	Dispatcher *message.Dispatcher
}

func New(d *message.Dispatcher) *Protocol {
	return &Protocol{Dispatcher: d}
}

func (p *Protocol) Dispatch(body []byte, protocolURI uint32, traceID [wire.TraceIDSize]byte, conn *rpcconn.Connection) error {
	ctx, span := telemetry.StartFrameSpan(context.Background(), "dispatch", traceID)
	defer span.End()

	parse := func(body []byte, msg message.Message) error {
		return Parse(body, msg.(Codec))
	}
	serialize := func(msg message.Message) ([]byte, error) {
		return Serialize(msg.(Codec))
	}
	send := func(rspURI message.URI, payload []byte) error {
		return codec.SendMessage(conn, wire.ProtocolBinary, uint32(rspURI), traceID, payload)
	}

	err := p.Dispatcher.Dispatch(message.URI(protocolURI), body, parse, serialize, send)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return err
}
