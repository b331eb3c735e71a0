package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/tkjaer/latgraph/internal/version"
)

// EchoArgs configures the test echo server
type EchoArgs struct {
	BindAddress string
	Port        uint
	AvgLatency  uint // milliseconds
	Jitter      uint // milliseconds, standard deviation
	MinLatency  uint // milliseconds
	MaxLatency  uint // milliseconds
	LossChance  float64

	Log      string
	LogLevel string
}

// Duration converts a millisecond flag value
func Duration(ms uint) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func ParseEchoArgs() (EchoArgs, error) {
	var args EchoArgs
	var showVersion bool

	flag.Usage = func() {
		println("echoserver - UDP echo server with simulated latency and loss")
		println()
		println("Usage:")
		println("  echoserver [OPTIONS]")
		println()
		println("Options:")
		flag.PrintDefaults()
	}

	flag.BoolVarP(&showVersion, "version", "v", false, "Show version information")
	flag.StringVarP(&args.BindAddress, "bind-address", "b", "127.0.0.1", "Address to listen on")
	flag.UintVarP(&args.Port, "port", "p", 4207, "UDP port to listen on")
	flag.UintVarP(&args.AvgLatency, "avg-lat", "a", 20, "Average simulated latency in milliseconds")
	flag.UintVarP(&args.Jitter, "jitter", "j", 3, "Standard deviation of the simulated latency in milliseconds")
	flag.UintVarP(&args.MinLatency, "min-lat", "m", 1, "Minimum simulated latency in milliseconds")
	flag.UintVarP(&args.MaxLatency, "max-lat", "M", 100, "Maximum simulated latency in milliseconds")
	flag.Float64VarP(&args.LossChance, "loss-chance", "l", 0.1, "Probability of dropping a packet, between 0 and 1")
	flag.StringVar(&args.Log, "log", "", "Diagnostic log file (empty = stderr)")
	flag.StringVar(&args.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	if showVersion {
		fmt.Println(version.FullVersion())
		os.Exit(0)
	}

	switch {
	case args.Port > 65535:
		return args, errors.New("port must be between 0 and 65535")
	case args.MinLatency > args.MaxLatency:
		return args, errors.New("minimum latency must not exceed maximum latency")
	case args.LossChance < 0 || args.LossChance > 1:
		return args, errors.New("loss chance must be between 0 and 1")
	}

	return args, nil
}
