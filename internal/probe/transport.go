package probe

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync/atomic"
)

var (
	// ErrNotConnected is returned by Send before any remote was set
	ErrNotConnected = errors.New("transport has no remote address")
	// ErrResolve wraps address resolution failures
	ErrResolve = errors.New("could not resolve remote address")
)

// Transport moves probe payloads to and from a single remote. Send and
// Receive are each driven by exactly one goroutine.
type Transport interface {
	// Connect resolves address and makes it the destination of Send and the
	// only accepted source for Receive.
	Connect(address string) (net.Addr, error)
	Send(payload []byte) error
	// Receive blocks for the next payload from the remote. It returns an
	// error wrapping net.ErrClosed once Close was called.
	Receive(buf []byte) (int, error)
	Close() error
}

// UDPTransport is a Transport over one UDP socket bound at startup
type UDPTransport struct {
	conn   *net.UDPConn
	remote atomic.Pointer[net.UDPAddr]
	logger *slog.Logger
}

// ListenUDP binds the local socket. An empty localAddr picks an ephemeral
// port on all interfaces.
func ListenUDP(localAddr string, logger *slog.Logger) (*UDPTransport, error) {
	if localAddr == "" {
		localAddr = ":0"
	}
	if logger == nil {
		logger = slog.Default()
	}
	laddr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve local address %q: %w", localAddr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("bind network socket: %w", err)
	}
	logger.Debug("Bound probe socket", "local", conn.LocalAddr())
	return &UDPTransport{conn: conn, logger: logger}, nil
}

// LocalAddr returns the bound socket address
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

func (t *UDPTransport) Connect(address string) (net.Addr, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrResolve, address, err)
	}
	if addr.IP == nil {
		return nil, fmt.Errorf("%w %q: no host", ErrResolve, address)
	}
	t.remote.Store(addr)
	return addr, nil
}

func (t *UDPTransport) Send(payload []byte) error {
	addr := t.remote.Load()
	if addr == nil {
		return ErrNotConnected
	}
	_, err := t.conn.WriteToUDP(payload, addr)
	return err
}

func (t *UDPTransport) Receive(buf []byte) (int, error) {
	for {
		n, from, err := t.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			return 0, err
		}
		remote := t.remote.Load()
		if remote == nil || !samePeer(remote.AddrPort(), from) {
			t.logger.Debug("Dropping packet from unexpected peer", "peer", from)
			continue
		}
		return n, nil
	}
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}

// samePeer compares addresses ignoring IPv4-mapped IPv6 encoding
func samePeer(a, b netip.AddrPort) bool {
	return a.Port() == b.Port() && a.Addr().Unmap() == b.Addr().Unmap()
}
