package schemaproto

import (
	"context"

	"github.com/ccqqhhzy/tinyrpc/internal/telemetry"
	"github.com/ccqqhhzy/tinyrpc/pkg/codec"
	"github.com/ccqqhhzy/tinyrpc/pkg/message"
	"github.com/ccqqhhzy/tinyrpc/pkg/rpcconn"
	"github.com/ccqqhhzy/tinyrpc/pkg/wire"
)

// Protocol adapts a message.Dispatcher to codec.Protocol for
// wire.ProtocolSchema frames, mirroring dispatcher_pb's wiring of
// pb::Dispatcher through the same GenericDispatcher base binaryproto's
// Protocol uses, but with gob in place of generated protobuf code.
type Protocol struct {
	Dispatcher *message.Dispatcher
}

func New(d *message.Dispatcher) *Protocol {
	return &Protocol{Dispatcher: d}
}

func (p *Protocol) Dispatch(body []byte, protocolURI uint32, traceID [wire.TraceIDSize]byte, conn *rpcconn.Connection) error {
	ctx, span := telemetry.StartFrameSpan(context.Background(), "dispatch", traceID)
	defer span.End()

	send := func(rspURI message.URI, payload []byte) error {
		return codec.SendMessage(conn, wire.ProtocolSchema, uint32(rspURI), traceID, payload)
	}

	err := p.Dispatcher.Dispatch(message.URI(protocolURI), body, Parse, Serialize, send)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return err
}
