package commands

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccqqhhzy/tinyrpc/internal/config"
	"github.com/ccqqhhzy/tinyrpc/pkg/bookproto"
	"github.com/ccqqhhzy/tinyrpc/pkg/message"
	"github.com/ccqqhhzy/tinyrpc/pkg/rpcclient"
)

var benchCmd = &cobra.Command{
	Use:   "bench <ip> <port> <count>",
	Short: "Fire a concurrent async fan-in scenario and report completion counts",
	Args:  cobra.ExactArgs(3),
	RunE:  runBench,
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	port, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return fmt.Errorf("port: %w", err)
	}
	count, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Client.ConnectTimeoutMS)*time.Millisecond)
	defer cancel()

	client, err := rpcclient.Connect(ctx, rpcclient.Options{
		IP:             args[0],
		Port:           uint16(port),
		ConnectTimeout: time.Duration(cfg.Client.ConnectTimeoutMS) * time.Millisecond,
		Async:          true,
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	var completed int64
	var wg sync.WaitGroup
	wg.Add(count)
	message.RegisterAsync(client.BinaryDispatcher, bookproto.NewBinaryBookRsp, func(rsp *bookproto.BinaryBookRsp) {
		atomic.AddInt64(&completed, 1)
		wg.Done()
	})

	start := time.Now()
	for i := 0; i < count; i++ {
		req := &bookproto.BinaryBookReq{Name: fmt.Sprintf("bench-%d", i), Age: uint32(i)}
		if err := rpcclient.AsyncCall(client, req); err != nil {
			return fmt.Errorf("async call %d: %w", i, err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(cfg.Client.CallTimeout):
	}

	elapsed := time.Since(start)
	fmt.Printf("issued=%d completed=%d elapsed=%s\n", count, atomic.LoadInt64(&completed), elapsed)
	return nil
}
