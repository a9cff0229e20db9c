// Package tunnel connects to an SSH gateway whose network position is
// used for stream probes.  Backed by golang.org/x/crypto/ssh.
package tunnel

import (
	"context"
	"fmt"
	"net"
)

// Gateway abstracts a jump host through which TCP connections can be
// opened.
type Gateway interface {
	fmt.Stringer

	// Connect establishes the session to the gateway.
	Connect(ctx context.Context) error

	// Dial opens a TCP connection to address from the gateway.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close tears down the session and frees resources.
	Close() error

	// IsAlive reports whether the underlying session is still up.
	IsAlive() bool
}
