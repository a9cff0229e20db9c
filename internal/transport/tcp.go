package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPDialer establishes plain TCP connections, optionally from a
// specific source address.
type TCPDialer struct {
	Timeout    time.Duration
	SourceAddr string // optional source IP (empty = kernel's choice)
}

// Dial connects to address over TCP.  Keep-alives are disabled: a
// probe connection is closed as soon as the handshake completes.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout, KeepAlive: -1}

	if d.SourceAddr != "" {
		a, err := net.ResolveTCPAddr(network, net.JoinHostPort(d.SourceAddr, "0"))
		if err != nil {
			return nil, fmt.Errorf("resolve source addr: %w", err)
		}
		dialer.LocalAddr = a
	}

	return dialer.DialContext(ctx, network, address)
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }
