package rpcserver

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ccqqhhzy/tinyrpc/internal/logger"
	"github.com/ccqqhhzy/tinyrpc/pkg/buffer"
	"github.com/ccqqhhzy/tinyrpc/pkg/codec"
	"github.com/ccqqhhzy/tinyrpc/pkg/metrics"
	"github.com/ccqqhhzy/tinyrpc/pkg/objectpool"
	"github.com/ccqqhhzy/tinyrpc/pkg/poller"
	"github.com/ccqqhhzy/tinyrpc/pkg/rpcconn"
)

// watcherIPCFD is the fd a re-exec'd worker inherits its socketpair end on:
// cmd.ExtraFiles places it right after the three standard descriptors.
const watcherIPCFD = 3

// worker owns everything scoped to one worker process: its listener, its
// epoll loop, its connection table, and the pool connections are recycled
// through. Unlike Server (shared scaffolding, touched before Run), worker
// state is built fresh inside workerRun and never touched outside the
// loop goroutine.
type worker struct {
	srv       *Server
	idx       int
	listenFD  int
	p         *poller.Poller
	registry  *codec.Registry
	pool      *objectpool.Pool[rpcconn.Connection]
	conns     map[int]*rpcconn.Connection
	rec       *metrics.Recorder
	selfPipeR int
	selfPipeW int
}

// workerRun brings up this worker's listener and epoll loop, runs it
// until a signal or ctx cancellation asks it to stop, then notifies the
// watcher and returns. Grounded on server.cpp's Server::workerRun, which
// listens, builds its connection pool/poller, registers the accept
// callback, and calls poller_->run().
func (s *Server) workerRun(ctx context.Context, idx int) error {
	logWorkerID(idx)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	listenFD, err := createListener(s.opt)
	if err != nil {
		return fmt.Errorf("rpcserver: worker %d listen: %w", idx, err)
	}
	defer unix.Close(listenFD)

	capacity := s.opt.MaxFDCapacity
	p, err := poller.New(capacity)
	if err != nil {
		return fmt.Errorf("rpcserver: worker %d create poller: %w", idx, err)
	}
	defer p.Close()

	selfPipeFDs := make([]int, 2)
	if err := unix.Pipe2(selfPipeFDs, unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return fmt.Errorf("rpcserver: worker %d self-pipe: %w", idx, err)
	}

	w := &worker{
		srv:       s,
		idx:       idx,
		listenFD:  listenFD,
		p:         p,
		registry:  s.registry(),
		pool:      objectpool.New(s.opt.PoolInitialCapacity, func() *rpcconn.Connection { return rpcconn.New(-1, buffer.DefaultSize) }),
		conns:     make(map[int]*rpcconn.Connection),
		rec:       metricsRecorderFor(s),
		selfPipeR: selfPipeFDs[0],
		selfPipeW: selfPipeFDs[1],
	}
	w.registry.SetDispatchRecorder(func(uri uint32, elapsed time.Duration) {
		w.rec.RecordDispatch(uri, elapsed.Seconds())
	})

	p.SetFDReadCallback(listenFD, w.onAccept, nil)
	if err := p.AddFD(listenFD, poller.EventRead); err != nil {
		return fmt.Errorf("rpcserver: worker %d register listener: %w", idx, err)
	}

	p.SetFDReadCallback(w.selfPipeR, w.onSelfPipe, nil)
	if err := p.AddFD(w.selfPipeR, poller.EventRead); err != nil {
		return fmt.Errorf("rpcserver: worker %d register self-pipe: %w", idx, err)
	}

	osSig := make(chan os.Signal, 2)
	signal.Notify(osSig, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		select {
		case <-osSig:
		case <-ctx.Done():
		}
		signal.Stop(osSig)
		w.wakeSelfPipe()
	}()

	// Fires on a fixed 5 s cadence regardless of the configured idle
	// timeout; idle_timeout is only the staleness comparison onIdleCheck
	// makes against each connection's last-active time.
	p.AddTimer(5000, true, w.onIdleCheck, nil)

	logger.Info("worker event loop starting", "worker_id", idx)
	p.RunLoop()
	logger.Info("worker event loop stopped", "worker_id", idx)

	w.notifyWatcherExit()
	return nil
}

// wakeSelfPipe turns a SIGTERM/SIGINT or ctx cancellation into a byte on
// the self-pipe, so the epoll loop learns about shutdown through the same
// readiness path it learns about socket I/O, rather than racing loop state
// from a second goroutine.
func (w *worker) wakeSelfPipe() {
	unix.Write(w.selfPipeW, []byte{1})
}

func (w *worker) onSelfPipe(fd int, events poller.Event, arg any) {
	buf := make([]byte, 64)
	for {
		n, err := unix.Read(w.selfPipeR, buf)
		if n <= 0 || err != nil {
			break
		}
	}
	logger.Info("worker received shutdown signal", "worker_id", w.idx)
	w.p.Stop()
}

func (w *worker) notifyWatcherExit() {
	unix.Write(watcherIPCFD, []byte{1})
}

func createListener(opt Options) (int, error) {
	domain := unix.AF_INET
	if opt.IsIPv6 {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set nonblock: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt reuseaddr: %w", err)
	}
	if err := rpcconn.SetReusePort(fd); err != nil {
		logger.Warn("SO_REUSEPORT unavailable, continuing without it", "error", err.Error())
	}

	sa, err := rpcconn.BuildSockaddr(opt.IP, opt.Port, opt.IsIPv6)
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

// onAccept drains the listen backlog, rejecting connections once either
// the fd table or the configured connection cap is exhausted.
func (w *worker) onAccept(listenFD int, events poller.Event, arg any) {
	for {
		nfd, sa, err := unix.Accept(w.listenFD)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				return
			}
			logger.Warn("accept failed", "worker_id", w.idx, "error", err.Error())
			return
		}

		if nfd >= w.srv.opt.MaxFDCapacity || (w.srv.opt.MaxConnectionNum > 0 && len(w.conns) >= w.srv.opt.MaxConnectionNum) {
			unix.Close(nfd)
			continue
		}
		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			continue
		}

		conn := w.pool.Get()
		conn.SetFD(nfd)
		conn.SetStatus(rpcconn.StatusOK)
		conn.SetFamily(unix.AF_INET)
		if w.srv.opt.IsIPv6 {
			conn.SetFamily(unix.AF_INET6)
		}
		conn.TouchActive(time.Now())
		rpcconn.FillRemoteAddr(conn.RemoteAddr(), sa)
		w.conns[nfd] = conn

		w.rec.RecordAccept()
		w.p.SetFDReadCallback(nfd, w.onRead, nil)
		w.p.SetFDWriteCallback(nfd, w.onWrite, nil)
		if err := w.p.AddFD(nfd, poller.EventRead); err != nil {
			logger.Warn("register accepted fd failed", "worker_id", w.idx, "fd", nfd, "error", err.Error())
			w.teardown(nfd)
		}
	}
}

func (w *worker) onRead(fd int, events poller.Event, arg any) {
	conn, ok := w.conns[fd]
	if !ok {
		return
	}
	if !conn.TCPRecv() {
		w.teardown(fd)
		return
	}
	conn.TouchActive(time.Now())

	if !w.registry.ProcessMessage(conn) {
		w.rec.RecordDispatchError("process_message")
		w.teardown(fd)
		return
	}
	if !conn.IsOK() {
		w.teardown(fd)
		return
	}
	if conn.HasPendingRsp() {
		w.p.AddEvent(fd, poller.EventWrite)
	}
}

func (w *worker) onWrite(fd int, events poller.Event, arg any) {
	conn, ok := w.conns[fd]
	if !ok {
		return
	}
	if !conn.TCPSend() {
		w.teardown(fd)
		return
	}
	if !conn.HasPendingRsp() {
		w.p.DelEvent(fd, poller.EventWrite)
	}
}

// onIdleCheck closes connections that have been silent past the
// configured idle timeout, draining any still-pending response first
// rather than dropping it — mirroring server.cpp's checkIdleConnections,
// which shuts the write side down gracefully instead of hard-closing.
func (w *worker) onIdleCheck(fd int, events poller.Event, arg any) {
	idleTimeout := time.Duration(w.srv.opt.IdleTimeoutSeconds) * time.Second
	if idleTimeout <= 0 {
		return
	}
	now := time.Now()

	stale := make([]int, 0)
	for cfd, conn := range w.conns {
		if now.Sub(conn.LastActiveTime()) <= idleTimeout {
			continue
		}
		if conn.HasPendingRsp() {
			conn.TCPSend()
			if conn.HasPendingRsp() {
				conn.TouchActive(now)
				continue
			}
		}
		stale = append(stale, cfd)
	}

	for _, cfd := range stale {
		unix.Shutdown(cfd, unix.SHUT_WR)
		w.teardown(cfd)
		w.rec.RecordIdleEviction()
	}
}

func (w *worker) teardown(fd int) {
	conn, ok := w.conns[fd]
	if !ok {
		return
	}
	w.p.DelFD(fd)
	unix.Close(fd)
	delete(w.conns, fd)
	conn.Reset()
	w.pool.Put(conn)
	w.rec.RecordTeardown()
}
