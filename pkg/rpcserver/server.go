// Package rpcserver implements the pre-forked server: a watcher process
// that supervises N worker processes, each owning its own SO_REUSEPORT
// listener and epoll event loop.
//
// Grounded on original_source/server.h + server.cpp's Server class. The
// C original calls fork(2) directly from one process image; the Go
// runtime is multi-threaded, so doing the same here would be unsafe past
// the first exec. The watcher instead re-execs its own binary
// (os.Args[0]) once per worker via os/exec, marking each child with the
// TINYRPC_WORKER_INDEX environment variable and handing it one end of a
// unix.Socketpair (via cmd.ExtraFiles) that replaces the original's
// signal self-pipe: the worker writes one byte on clean shutdown so the
// watcher can tell a graceful exit from a crash, on top of the ordinary
// os/exec child-reaping Go already does for it.
package rpcserver

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ccqqhhzy/tinyrpc/internal/logger"
	"github.com/ccqqhhzy/tinyrpc/pkg/binaryproto"
	"github.com/ccqqhhzy/tinyrpc/pkg/codec"
	"github.com/ccqqhhzy/tinyrpc/pkg/message"
	"github.com/ccqqhhzy/tinyrpc/pkg/metrics"
	"github.com/ccqqhhzy/tinyrpc/pkg/schemaproto"
	"github.com/ccqqhhzy/tinyrpc/pkg/wire"
)

// workerIndexEnv carries which worker index a re-exec'd child is; its
// absence means "this process is the watcher."
const workerIndexEnv = "TINYRPC_WORKER_INDEX"

// Options mirrors the ServerConfig fields §4.6/§6 name.
type Options struct {
	IP                  string
	Port                uint16
	IsIPv6              bool
	WorkerNum           int
	IdleTimeoutSeconds  int
	MaxConnectionNum    int
	PoolInitialCapacity int
	MaxFDCapacity       int
}

// Server owns the two message dispatchers callers register handlers on
// before Run, one per protocol family.
type Server struct {
	opt              Options
	BinaryDispatcher *message.Dispatcher
	SchemaDispatcher *message.Dispatcher
	registerer       prometheus.Registerer
}

// New builds a Server with fresh, empty dispatchers ready for
// RegisterHandler calls.
func New(opt Options) *Server {
	return &Server{
		opt:              opt,
		BinaryDispatcher: message.NewDispatcher(),
		SchemaDispatcher: message.NewDispatcher(),
		registerer:       prometheus.NewRegistry(),
	}
}

// Registerer exposes the worker-local Prometheus registerer so a caller
// can expose /metrics for this process.
func (s *Server) Registerer() prometheus.Registerer { return s.registerer }

// Run dispatches to watcherRun or workerRun depending on whether this
// process was re-exec'd as a worker.
func (s *Server) Run(ctx context.Context) error {
	if idx, isWorker := workerIndexFromEnv(); isWorker {
		return s.workerRun(ctx, idx)
	}
	return s.watcherRun(ctx)
}

func workerIndexFromEnv() (int, bool) {
	v := os.Getenv(workerIndexEnv)
	if v == "" {
		return 0, false
	}
	idx, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return idx, true
}

func (s *Server) registry() *codec.Registry {
	r := codec.NewRegistry()
	r.Register(wire.ProtocolBinary, binaryproto.New(s.BinaryDispatcher))
	r.Register(wire.ProtocolSchema, schemaproto.New(s.SchemaDispatcher))
	return r
}

func logWorkerID(idx int) {
	logger.Info(fmt.Sprintf("worker %d starting", idx), "worker_id", idx)
}

// metricsRecorderFor builds a per-worker Recorder. Each worker process
// has its own prometheus.Registry (never the global DefaultRegisterer),
// since multiple worker processes never share a scrape endpoint.
func metricsRecorderFor(s *Server) *metrics.Recorder {
	return metrics.New(s.registerer)
}
