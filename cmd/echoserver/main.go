package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/tkjaer/latgraph/internal/config"
	"github.com/tkjaer/latgraph/internal/echo"
)

func main() {
	args, err := config.ParseEchoArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logFile, err := config.SetupEchoLogging(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logging: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	srv, err := echo.Listen(echo.Config{
		Address:    net.JoinHostPort(args.BindAddress, strconv.FormatUint(uint64(args.Port), 10)),
		AvgLatency: config.Duration(args.AvgLatency),
		Jitter:     config.Duration(args.Jitter),
		MinLatency: config.Duration(args.MinLatency),
		MaxLatency: config.Duration(args.MaxLatency),
		LossChance: args.LossChance,
		Logger:     slog.Default(),
	})
	if err != nil {
		slog.Error("Couldn't start echo server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx); err != nil {
		slog.Error("Echo server error", "error", err)
		os.Exit(1)
	}
	slog.Debug("Echo server stopped")
}
