package rpcserver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/ccqqhhzy/tinyrpc/internal/logger"
)

// workerHandle tracks one re-exec'd child and the watcher's end of its
// IPC socketpair.
type workerHandle struct {
	index int
	cmd   *exec.Cmd
	ipc   *os.File
}

// watcherRun spawns opt.WorkerNum workers, forwards SIGTERM/SIGINT to all
// of them, and returns once every worker has exited — mirroring the
// original watcher, which owns no listener of its own and exists purely
// to supervise.
func (s *Server) watcherRun(ctx context.Context) error {
	logger.Info(fmt.Sprintf("watcher starting %d workers", s.opt.WorkerNum))

	workers := make([]*workerHandle, 0, s.opt.WorkerNum)
	for i := 0; i < s.opt.WorkerNum; i++ {
		wh, err := spawnWorker(i)
		if err != nil {
			for _, prior := range workers {
				_ = prior.cmd.Process.Kill()
			}
			return fmt.Errorf("rpcserver: spawn worker %d: %w", i, err)
		}
		workers = append(workers, wh)
	}

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	type exitNotice struct {
		index    int
		err      error
		graceful bool
	}
	exitCh := make(chan exitNotice, len(workers))
	for _, wh := range workers {
		wh := wh
		go func() {
			err := wh.cmd.Wait()
			// The child is gone, so this read returns its clean-shutdown
			// byte if it wrote one, or EOF otherwise.
			var b [1]byte
			n, _ := wh.ipc.Read(b[:])
			_ = wh.ipc.Close()
			exitCh <- exitNotice{index: wh.index, err: err, graceful: n == 1}
		}()
	}

	terminated := false
	remaining := len(workers)
	for remaining > 0 {
		select {
		case <-sigCh:
			if !terminated {
				terminated = true
				logger.Info("watcher forwarding shutdown to workers")
				for _, wh := range workers {
					if wh.cmd.Process != nil {
						_ = wh.cmd.Process.Signal(syscall.SIGTERM)
					}
				}
			}
		case <-ctx.Done():
			if !terminated {
				terminated = true
				for _, wh := range workers {
					if wh.cmd.Process != nil {
						_ = wh.cmd.Process.Signal(syscall.SIGTERM)
					}
				}
			}
		case notice := <-exitCh:
			if notice.err != nil {
				logger.Warn("worker exited", "worker_id", notice.index, "graceful", notice.graceful, "error", notice.err.Error())
			} else {
				logger.Info("worker exited", "worker_id", notice.index, "graceful", notice.graceful)
			}
			remaining--
		}
	}

	logger.Info("all workers exited, watcher stopping")
	return nil
}

func spawnWorker(index int) (*workerHandle, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("socketpair: %w", err)
	}
	watcherEnd := os.NewFile(uintptr(fds[0]), fmt.Sprintf("worker-%d-watcher-ipc", index))
	workerEnd := os.NewFile(uintptr(fds[1]), fmt.Sprintf("worker-%d-ipc", index))

	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%d", workerIndexEnv, index))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{workerEnd}

	if err := cmd.Start(); err != nil {
		watcherEnd.Close()
		workerEnd.Close()
		return nil, err
	}
	workerEnd.Close()

	return &workerHandle{index: index, cmd: cmd, ipc: watcherEnd}, nil
}
