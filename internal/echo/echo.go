// Package echo implements a UDP echo server that delays replies by a
// normally distributed latency and drops a share of the packets. It is the
// counterpart used to exercise latgraph without a real echo service.
package echo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"sync"
	"time"
)

const maxPacketSize = 64

type Config struct {
	Address    string // host:port to listen on
	AvgLatency time.Duration
	Jitter     time.Duration // standard deviation of the latency
	MinLatency time.Duration
	MaxLatency time.Duration
	LossChance float64 // clamped to [0, 1]
	Logger     *slog.Logger
	// Rand drives latency and loss, seeded randomly when nil
	Rand *rand.Rand
}

// Server echoes every datagram back to its sender after a simulated delay
type Server struct {
	conn   *net.UDPConn
	cfg    Config
	logger *slog.Logger

	mu  sync.Mutex // guards rng
	rng *rand.Rand

	pending sync.WaitGroup
}

// Listen binds the server socket
func Listen(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if cfg.MaxLatency < cfg.MinLatency {
		return nil, errors.New("maximum latency is below minimum latency")
	}
	cfg.LossChance = min(max(cfg.LossChance, 0), 1)

	addr, err := net.ResolveUDPAddr("udp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("resolve bind address %q: %w", cfg.Address, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind %q: %w", cfg.Address, err)
	}
	return &Server{
		conn:   conn,
		cfg:    cfg,
		logger: cfg.Logger,
		rng:    cfg.Rand,
	}, nil
}

// Addr returns the bound address
func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Serve echoes packets until ctx is done or the server is closed
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("Starting listen", "address", s.conn.LocalAddr())

	stop := context.AfterFunc(ctx, func() { s.conn.Close() })
	defer stop()
	defer s.pending.Wait()

	buf := make([]byte, maxPacketSize)
	for {
		n, from, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("Got network error", "error", err)
			continue
		}

		drop, delay := s.decide()
		if drop {
			s.logger.Debug("Dropping packet", "bytes", n, "from", from)
			continue
		}
		s.logger.Debug("Delaying packet", "bytes", n, "from", from, "delay", delay)

		payload := append([]byte(nil), buf[:n]...)
		s.pending.Add(1)
		time.AfterFunc(delay, func() {
			defer s.pending.Done()
			if _, err := s.conn.WriteToUDPAddrPort(payload, from); err != nil && !errors.Is(err, net.ErrClosed) {
				s.logger.Warn("Couldn't send reply", "to", from, "error", err)
			}
		})
	}
}

// Close stops Serve
func (s *Server) Close() error {
	return s.conn.Close()
}

// decide draws the fate of one packet
func (s *Server) decide() (drop bool, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.LossChance > s.rng.Float64() {
		return true, 0
	}
	return false, s.nextLatency()
}

// nextLatency samples the normal distribution, clamped to the configured
// bounds. Caller holds mu.
func (s *Server) nextLatency() time.Duration {
	sample := s.rng.NormFloat64()*float64(s.cfg.Jitter) + float64(s.cfg.AvgLatency)
	return min(max(time.Duration(sample), s.cfg.MinLatency), s.cfg.MaxLatency)
}
