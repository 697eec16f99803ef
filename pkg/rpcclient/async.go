package rpcclient

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/ccqqhhzy/tinyrpc/pkg/binaryproto"
	"github.com/ccqqhhzy/tinyrpc/pkg/codec"
	"github.com/ccqqhhzy/tinyrpc/pkg/message"
	"github.com/ccqqhhzy/tinyrpc/pkg/poller"
	"github.com/ccqqhhzy/tinyrpc/pkg/rpcconn"
	"github.com/ccqqhhzy/tinyrpc/pkg/schemaproto"
	"github.com/ccqqhhzy/tinyrpc/pkg/wire"
)

// asyncPoller is the process-wide shared read loop every async Client
// connection joins, grounded on test/client_cc_test.cpp's
// AsynCallPoller::getInstance()/.init()/.start(): one background loop
// shared by every async connection in the process, rather than one loop
// per client.
type asyncPoller struct {
	mu sync.Mutex
	p  *poller.Poller
}

var (
	sharedPollerOnce sync.Once
	sharedPoller     *asyncPoller
	sharedPollerErr  error
)

func getSharedAsyncPoller() (*asyncPoller, error) {
	sharedPollerOnce.Do(func() {
		p, err := poller.New(poller.MaxFD)
		if err != nil {
			sharedPollerErr = fmt.Errorf("rpcclient: create shared async poller: %w", err)
			return
		}
		sharedPoller = &asyncPoller{p: p}
		go func() {
			runtime.LockOSThread()
			sharedPoller.p.RunLoop()
		}()
	})
	return sharedPoller, sharedPollerErr
}

// joinAsyncLoop transfers c's fd into the shared async read loop under
// READ interest, idempotently. The loop invokes the codec registry on
// readiness, which routes responses to whichever dispatcher (binary or
// schema) the caller registered a callback against via
// message.RegisterAsync(c.BinaryDispatcher, ...) /
// message.RegisterAsync(c.SchemaDispatcher, ...).
func (c *Client) joinAsyncLoop() error {
	ap, err := getSharedAsyncPoller()
	if err != nil {
		return err
	}

	ap.mu.Lock()
	defer ap.mu.Unlock()
	if c.asyncJoined {
		return nil
	}
	ap.p.SetFDReadCallback(c.conn.FD(), c.onAsyncReadable, nil)
	if err := ap.p.AddFD(c.conn.FD(), poller.EventRead); err != nil {
		return fmt.Errorf("rpcclient: register fd with async loop: %w", err)
	}
	c.asyncJoined = true
	return nil
}

// onAsyncReadable runs on the shared async loop's goroutine, never the
// caller's: TCPRecv then ProcessMessage, tearing the connection down on
// BROKEN status or a framing/dispatch failure exactly as the worker's
// read callback does.
func (c *Client) onAsyncReadable(fd int, events poller.Event, arg any) {
	if !c.conn.TCPRecv() {
		c.teardownAsync()
		return
	}
	if !c.registry.ProcessMessage(c.conn) {
		c.teardownAsync()
		return
	}
	if !c.conn.IsOK() {
		c.teardownAsync()
	}
}

func (c *Client) teardownAsync() {
	if sharedPoller != nil {
		sharedPoller.p.DelFD(c.conn.FD())
	}
	unix.Close(c.conn.FD())
	c.conn.SetStatus(rpcconn.StatusBroken)
	c.conn.SetFD(-1)
}

// AsyncCall sends req over the binary protocol without waiting for a
// response; a matching reply is routed to whatever callback the caller
// registered via message.RegisterAsync(c.BinaryDispatcher, ...) before
// calling AsyncCall. The first AsyncCall/AsyncCallSchema on a Client joins
// it to the shared background read loop; message.RegisterAsync alone does
// not.
func AsyncCall[REQ binaryproto.Message](c *Client, req REQ) error {
	if err := c.joinAsyncLoop(); err != nil {
		return err
	}
	payload, err := binaryproto.Serialize(req)
	if err != nil {
		return fmt.Errorf("rpcclient: serialize request: %w", err)
	}
	if err := codec.SendMessage(c.conn, wire.ProtocolBinary, uint32(req.URI()), newTraceID(), payload); err != nil {
		return fmt.Errorf("rpcclient: send request: %w", err)
	}
	return nil
}

// AsyncCallSchema is AsyncCall's schema-described (gob) protocol family
// equivalent.
func AsyncCallSchema[REQ message.Message](c *Client, req REQ) error {
	if err := c.joinAsyncLoop(); err != nil {
		return err
	}
	payload, err := schemaproto.Serialize(req)
	if err != nil {
		return fmt.Errorf("rpcclient: serialize request: %w", err)
	}
	if err := codec.SendMessage(c.conn, wire.ProtocolSchema, uint32(req.URI()), newTraceID(), payload); err != nil {
		return fmt.Errorf("rpcclient: send request: %w", err)
	}
	return nil
}
