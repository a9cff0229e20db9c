package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// UDPDialer creates connected UDP sockets.  Connecting the socket is
// what lets an ICMP port-unreachable come back as ECONNREFUSED on the
// next read.
type UDPDialer struct {
	Timeout    time.Duration
	SourceAddr string // optional source IP (empty = kernel's choice)
}

// Dial resolves address and connects a UDP socket to it.
func (d *UDPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}

	if d.SourceAddr != "" {
		a, err := net.ResolveUDPAddr(network, net.JoinHostPort(d.SourceAddr, "0"))
		if err != nil {
			return nil, fmt.Errorf("resolve source addr: %w", err)
		}
		dialer.LocalAddr = a
	}

	return dialer.DialContext(ctx, network, address)
}

// Close is a no-op for stateless UDP dialers.
func (d *UDPDialer) Close() error { return nil }
