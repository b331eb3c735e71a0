package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/tkjaer/latgraph/internal/history"
	"github.com/tkjaer/latgraph/internal/probe"
	"github.com/tkjaer/latgraph/internal/version"
)

// maxCapacity bounds the sample history allocated at startup
const maxCapacity = 1_000_000

type Args struct {
	Remote  string
	Rate    time.Duration
	Paused  bool
	Running bool

	// Set when the flag was given on the command line, so the settings file
	// value only loses to an explicit choice
	RemoteSet bool
	RateSet   bool

	// Measurement
	Capacity    uint
	LossTimeout time.Duration

	// Settings file
	Config       string // empty disables the settings file
	NoConfigSave bool

	// Output
	Json     bool   // output json to stdout
	JsonFile string // output json to file while showing TUI
	Listen   string // HTTP listen address for metrics, stream and settings API

	// Logging
	Log      string // log file path, empty means no logging
	LogLevel string // log level: debug, info, warn, error
}

func ParseArgs() (Args, error) {
	var args Args
	var showVersion bool

	// Set custom usage message
	flag.Usage = func() {
		println("latgraph - real-time network latency graph")
		println()
		println("Measures round-trip latency to a UDP echo server (port 7 unless given).")
		println()
		println("Usage:")
		println("  latgraph [OPTIONS] [REMOTE]")
		println()
		println("Examples:")
		println("  latgraph -r example.org                 # Probe example.org:7 every 100ms")
		println("  latgraph -r 192.0.2.1:4207 -t 20ms      # Faster polling on a custom port")
		println("  latgraph -r example.org -J              # JSON samples to stdout, no TUI")
		println("  latgraph -r example.org --listen :9108  # Also serve /metrics and /ws")
		println()
		println("Options:")
		flag.PrintDefaults()
	}

	flag.BoolVarP(&showVersion, "version", "v", false, "Show version information")
	flag.StringVarP(&args.Remote, "remote", "r", "", "Remote UDP echo server, host[:port] (port defaults to 7)")
	flag.DurationVarP(&args.Rate, "rate", "t", probe.DefaultInterval, "Polling rate, as the delay between probes")
	flag.BoolVarP(&args.Paused, "paused", "p", false, "Don't immediately start polling the server")
	flag.BoolVarP(&args.Running, "running", "P", false, "Immediately start polling the server")
	flag.UintVarP(&args.Capacity, "capacity", "n", history.DefaultCapacity, "Number of samples kept in memory")
	flag.DurationVar(&args.LossTimeout, "loss-timeout", time.Second, "Time after which an unanswered probe is shown as lost")
	flag.StringVarP(&args.Config, "config", "c", DefaultSettingsPath(), "Settings file to load/save (empty = no settings file)")
	flag.BoolVarP(&args.NoConfigSave, "no-config-save", "C", false, "Only read the settings file on startup, never write it")
	flag.StringVarP(&args.JsonFile, "json-file", "j", "", "Write JSON output to file (keeps TUI)")
	flag.BoolVarP(&args.Json, "json", "J", false, "Write JSON output to stdout (disables TUI)")
	flag.StringVar(&args.Listen, "listen", "", "Serve metrics, sample stream and settings API on this address")
	flag.StringVarP(&args.Log, "log", "l", "", "Diagnostic log file (empty = no logging)")
	flag.StringVar(&args.LogLevel, "log-level", "error", "Log level: debug, info, warn, error")
	flag.Parse()

	// Handle version flag
	if showVersion {
		fmt.Println(version.FullVersion())
		os.Exit(0)
	}

	if args.Remote == "" && flag.NArg() > 0 {
		args.Remote = flag.Arg(0)
		args.RemoteSet = true
	}
	args.RemoteSet = args.RemoteSet || flag.CommandLine.Changed("remote")
	args.RateSet = flag.CommandLine.Changed("rate")

	switch {
	case flag.NArg() > 1:
		return args, errors.New("at most one remote may be given")
	case args.Json && args.JsonFile != "":
		return args, errors.New("cannot use both --json and --json-file")
	case args.Paused && args.Running:
		return args, errors.New("cannot use both --paused and --running")
	case args.Rate < probe.MinInterval:
		return args, errors.New("rate must be at least 1ms")
	case args.Capacity == 0:
		return args, errors.New("capacity must be at least 1")
	case args.Capacity > maxCapacity:
		return args, fmt.Errorf("capacity must be at most %d", maxCapacity)
	case args.LossTimeout <= 0:
		return args, errors.New("loss timeout must be positive")
	}

	return args, nil
}

// Settings applies the command line on top of the settings loaded from the
// settings file. Probing never starts without a remote.
func (a Args) Settings(base probe.Settings) probe.Settings {
	s := base
	if a.RemoteSet {
		s.Remote = a.Remote
	}
	if a.RateSet || s.Interval <= 0 {
		s.Interval = a.Rate
	}
	if a.Paused || a.Running {
		s.Running = a.Running
	}
	s.Running = s.Running && s.Remote != ""
	return s
}
