package commands

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ccqqhhzy/tinyrpc/internal/config"
	"github.com/ccqqhhzy/tinyrpc/internal/logger"
	"github.com/ccqqhhzy/tinyrpc/internal/telemetry"
	"github.com/ccqqhhzy/tinyrpc/pkg/bookproto"
	"github.com/ccqqhhzy/tinyrpc/pkg/message"
	"github.com/ccqqhhzy/tinyrpc/pkg/rpcserver"
)

// workerIndexEnv mirrors rpcserver's own environment contract: its
// presence marks this process as a re-exec'd worker rather than the
// watcher, which this command needs to know to avoid every worker binding
// the same metrics address.
const workerIndexEnv = "TINYRPC_WORKER_INDEX"

var startCmd = &cobra.Command{
	Use:   "start [worker-count] [ip] [port]",
	Short: "Start the tinyrpc server",
	Long: `Start the tinyrpc server, a watcher process supervising worker-count
worker processes listening on ip:port.

Positional arguments override the corresponding config values; omit all
three to run entirely from --config/environment/defaults.`,
	Args: cobra.MaximumNArgs(3),
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applyStartArgs(cfg, args); err != nil {
		return err
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "tinyrpc-server",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	srv := rpcserver.New(rpcserver.Options{
		IP:                  cfg.Server.IP,
		Port:                cfg.Server.Port,
		IsIPv6:              cfg.Server.IsIPv6,
		WorkerNum:           cfg.Server.WorkerNum,
		IdleTimeoutSeconds:  cfg.Server.IdleTimeoutSeconds,
		MaxConnectionNum:    cfg.Server.MaxConnectionNum,
		PoolInitialCapacity: cfg.Server.PoolInitialCapacity,
		MaxFDCapacity:       cfg.Server.MaxFDCapacity,
	})
	registerBookHandlers(srv)

	if cfg.Metrics.Enabled {
		if idx, isWorker := os.LookupEnv(workerIndexEnv); isWorker {
			i, _ := strconv.Atoi(idx)
			addr, err := metricsAddrForWorker(cfg.Metrics.Addr, i)
			if err != nil {
				logger.Warn("metrics address invalid, skipping metrics server", "error", err.Error())
			} else if gatherer, ok := srv.Registerer().(prometheus.Gatherer); ok {
				startMetricsServer(addr, gatherer)
			}
		}
	}

	logger.Info("tinyrpc-server starting", "ip", cfg.Server.IP, "port", cfg.Server.Port, "workers", cfg.Server.WorkerNum)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	serverDone := make(chan error, 1)
	go func() { serverDone <- srv.Run(ctx) }()

	select {
	case <-sigCh:
		signal.Stop(sigCh)
		logger.Info("shutdown signal received")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("server stopped with error", "error", err)
			return err
		}
	case err := <-serverDone:
		signal.Stop(sigCh)
		if err != nil {
			logger.Error("server stopped with error", "error", err)
			return err
		}
	}

	logger.Info("tinyrpc-server stopped")
	return nil
}

func applyStartArgs(cfg *config.Config, args []string) error {
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("worker-count: %w", err)
		}
		cfg.Server.WorkerNum = n
	}
	if len(args) > 1 {
		cfg.Server.IP = args[1]
	}
	if len(args) > 2 {
		p, err := strconv.ParseUint(args[2], 10, 16)
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		cfg.Server.Port = uint16(p)
	}
	return nil
}

// metricsAddrForWorker offsets addr's port by idx so sibling worker
// processes, which each own an independent prometheus.Registry, don't
// fight over one listening socket.
func metricsAddrForWorker(addr string, idx int) (string, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(host, strconv.Itoa(port+idx)), nil
}

func startMetricsServer(addr string, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", "error", err.Error())
		}
	}()
	logger.Info("metrics server listening", "addr", addr)
}

// registerBookHandlers wires the book-catalog echo handler this CLI's
// `tinyrpc-client call`/`bench` subcommands exercise, on both protocol
// families.
func registerBookHandlers(srv *rpcserver.Server) {
	message.RegisterHandler(srv.BinaryDispatcher, bookproto.NewBinaryBookReq, bookproto.NewBinaryBookRsp, handleBookReq)
	message.RegisterHandler(srv.SchemaDispatcher, bookproto.NewSchemaBookReq, bookproto.NewSchemaBookRsp, handleSchemaBookReq)
}

func handleBookReq(req *bookproto.BinaryBookReq, rsp *bookproto.BinaryBookRsp) {
	rsp.Result = 0
	rsp.Extend = map[string]string{"name": req.Name, "age": strconv.FormatUint(uint64(req.Age), 10)}
}

func handleSchemaBookReq(req *bookproto.SchemaBookReq, rsp *bookproto.SchemaBookRsp) {
	rsp.Result = 0
	rsp.Extend = map[string]string{"name": req.Name, "age": strconv.FormatUint(uint64(req.Age), 10)}
}
