package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/tkjaer/latgraph/internal/config"
	"github.com/tkjaer/latgraph/internal/output"
	"github.com/tkjaer/latgraph/internal/probe"
	"github.com/tkjaer/latgraph/internal/server"
	"github.com/tkjaer/latgraph/internal/shared"
)

func main() {
	args, err := config.ParseArgs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// No TUI without a terminal
	if !args.Json && !term.IsTerminal(int(os.Stdout.Fd())) {
		args.Json = true
	}

	// Setup logging
	logFile, err := config.SetupLogging(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logging: %v\n", err)
		os.Exit(1)
	}

	err = run(args)
	if err != nil {
		slog.Error("latgraph failed", "error", err)
	}
	if logFile != nil {
		logFile.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args config.Args) error {
	loaded, err := config.LoadSettings(args.Config)
	if err != nil {
		slog.Error("Couldn't load settings file, using defaults", "path", args.Config, "error", err)
	}
	settings := args.Settings(loaded)
	settings.Remote = probe.NormalizeAddress(settings.Remote)
	if err := settings.Validate(); err != nil {
		return err
	}

	savePath := args.Config
	if args.NoConfigSave {
		savePath = ""
	}
	if err := config.SaveSettings(savePath, settings); err != nil {
		slog.Error("Couldn't save settings", "path", savePath, "error", err)
	}

	engine, err := probe.New(probe.Config{
		Capacity: int(args.Capacity),
		Logger:   slog.Default(),
	})
	if err != nil {
		return err
	}
	controller := config.NewController(engine, settings, savePath, slog.Default())

	slog.Debug("Starting latgraph",
		"session", engine.Session(),
		"remote", settings.Remote,
		"running", settings.Running,
		"interval", settings.PollingInterval(),
	)

	om, tui, srv, err := createOutputs(args, engine, controller)
	if err != nil {
		engine.Close()
		return err
	}
	defer func() {
		if err := om.Close(); err != nil {
			slog.Warn("Couldn't close outputs", "error", err)
		}
	}()

	tracker := output.NewTracker(om, output.TrackerConfig{
		Session:     engine.Session().String(),
		Capacity:    int(args.Capacity),
		LossTimeout: args.LossTimeout,
		Logger:      slog.Default(),
		OnFatal: func(data *probe.EventDataFatal) {
			controller.Stopped(data.Remote)
		},
		OnConnected: func(data *probe.EventDataConnected) {
			slog.Info("Connected", "remote", data.Remote, "address", data.Addr)
		},
	})

	if err := controller.Publish(); err != nil {
		engine.Close()
		return err
	}

	// Set up signal handling for Ctrl+C
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The engine ending for any reason ends the session
		defer cancel()
		return engine.Run(gctx)
	})
	g.Go(func() error {
		return tracker.Run(gctx, engine.Events())
	})
	if srv != nil {
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}
	if tui != nil {
		g.Go(func() error {
			select {
			case <-tui.QuitChan():
				slog.Debug("User quit TUI, stopping engine")
				engine.Close()
			case <-gctx.Done():
			}
			return nil
		})
	}

	err = g.Wait()
	slog.Debug("latgraph stopped")
	return err
}

// createOutputs registers the outputs selected on the command line and
// builds the HTTP server when --listen is given
func createOutputs(args config.Args, engine *probe.Engine, controller *config.Controller) (*output.OutputManager, *output.TUIOutput, *server.Server, error) {
	om := &output.OutputManager{}
	info := shared.OutputInfo{
		Remote:   controller.Current().Remote,
		Session:  engine.Session().String(),
		Interval: controller.Current().PollingInterval(),
		Capacity: int(args.Capacity),
	}

	var tui *output.TUIOutput

	// If JSON output is enabled, output to stdout and disable TUI
	if args.Json {
		jsonOut, err := output.NewJSONOutput("") // empty string = stdout
		if err != nil {
			return nil, nil, nil, err
		}
		om.Register(jsonOut)
	} else {
		tui = output.NewTUIOutput(info, controller)
		tui.Start()
		om.Register(tui)
	}

	// If JSON file output is enabled, write to file alongside the TUI
	if args.JsonFile != "" {
		jsonOut, err := output.NewJSONOutput(args.JsonFile)
		if err != nil {
			slog.Warn("Failed to create JSON file output", "error", err)
		} else {
			om.Register(jsonOut)
		}
	}

	if args.Listen == "" {
		return om, tui, nil, nil
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := output.NewMetricsOutput(registry)
	if err != nil {
		om.Close()
		return nil, nil, nil, err
	}
	om.Register(metrics)

	stream := output.NewWebsocketOutput(slog.Default())
	om.Register(stream)

	srv := server.New(server.Config{Addr: args.Listen}, server.Dependencies{
		Logger:   slog.Default(),
		Gatherer: registry,
		Stream:   stream,
		Settings: controller,
		History:  engine,
	})
	return om, tui, srv, nil
}
