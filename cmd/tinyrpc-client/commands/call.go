package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ccqqhhzy/tinyrpc/internal/config"
	"github.com/ccqqhhzy/tinyrpc/pkg/bookproto"
	"github.com/ccqqhhzy/tinyrpc/pkg/rpcclient"
)

var callCmd = &cobra.Command{
	Use:   "call <ip> <port> <name>",
	Short: "Issue one synchronous echo call",
	Args:  cobra.ExactArgs(3),
	RunE:  runCall,
}

func runCall(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	port, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return fmt.Errorf("port: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Client.ConnectTimeoutMS)*time.Millisecond)
	defer cancel()

	client, err := rpcclient.Connect(ctx, rpcclient.Options{
		IP:             args[0],
		Port:           uint16(port),
		ConnectTimeout: time.Duration(cfg.Client.ConnectTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer client.Close()

	req := &bookproto.BinaryBookReq{Name: args[2], Age: 1, Book: []string{"tinyrpc"}}
	rsp := &bookproto.BinaryBookRsp{}

	callCtx, callCancel := context.WithTimeout(context.Background(), cfg.Client.CallTimeout)
	defer callCancel()
	if err := rpcclient.SyncCall(callCtx, client, req, rsp); err != nil {
		return fmt.Errorf("call: %w", err)
	}

	fmt.Printf("result=%d extend=%v\n", rsp.Result, rsp.Extend)
	return nil
}
