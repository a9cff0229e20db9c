// Package transport provides the dialers that acquire a probe's
// socket.  A Dialer hands back one connection per call; the probe owns
// it and closes it.  Transports know how to reach an address (direct
// TCP, direct UDP, or TCP forwarded by an SSH gateway) but nothing
// about what a probe does with the connection.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound network connections.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	// For "udp" this creates a connected datagram socket; no packet
	// is sent until the caller writes.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}
