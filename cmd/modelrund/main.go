package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ocx/modelrun/internal/config"
	"github.com/ocx/modelrun/internal/edge"
	"github.com/ocx/modelrun/internal/system"
)

// Exit codes: 0 clean shutdown, 1 configuration/startup failure, 2 forced
// shutdown after the drain deadline elapsed.
const (
	exitOK     = 0
	exitInit   = 1
	exitForced = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the daemon's YAML config file")
	addr := flag.String("addr", "", "HTTP listen address, overrides config/env")
	memCeilingMB := flag.Int64("memory-ceiling-mb", 0, "total worker memory budget in MB, overrides config/env")
	requestTimeout := flag.Int64("request-timeout", 0, "per-request timeout in seconds, overrides config/env")
	logLevel := flag.String("log-level", "", "debug, info, warn, or error, overrides config/env")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("modelrund: no .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("modelrund: failed to load config", "error", err)
		return exitInit
	}
	applyFlagOverrides(cfg, *addr, *memCeilingMB, *requestTimeout, *logLevel)
	configureLogging(cfg.Logging.Level)

	sys, err := system.Init(cfg)
	if err != nil {
		slog.Error("modelrund: failed to initialize", "error", err)
		return exitInit
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      sys.Edge.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	grpcSrv := edge.NewGRPCTransport(sys.Dispatcher)
	grpcLis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		slog.Error("modelrund: failed to bind grpc listener", "addr", cfg.Server.GRPCAddr, "error", err)
		return exitInit
	}

	serveErrs := make(chan error, 2)
	go func() {
		slog.Info("modelrund: listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrs <- err
		}
	}()
	go func() {
		slog.Info("modelrund: grpc listening", "addr", cfg.Server.GRPCAddr)
		if err := grpcSrv.Serve(grpcLis); err != nil {
			serveErrs <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErrs:
		slog.Error("modelrund: server failed", "error", err)
		return exitInit
	case sig := <-sigCh:
		slog.Info("modelrund: received signal, shutting down", "signal", sig)
	}

	deadline := time.Duration(cfg.ShutdownDeadlineSecs) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	grpcSrv.GracefulStop()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Warn("modelrund: forced shutdown after deadline", "error", err)
		sys.Shutdown()
		return exitForced
	}
	sys.Shutdown()
	slog.Info("modelrund: shutdown complete")
	return exitOK
}

func applyFlagOverrides(cfg *config.Config, addr string, memCeilingMB, requestTimeout int64, logLevel string) {
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if memCeilingMB > 0 {
		cfg.MemoryCeilingMB = memCeilingMB
	}
	if requestTimeout > 0 {
		cfg.RequestTimeoutSecs = requestTimeout
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}

func configureLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}
