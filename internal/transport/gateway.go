package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	ncerr "pscan/internal/errors"
	"pscan/tunnel"
	"pscan/util"
)

// GatewayDialer forwards stream connections through an SSH gateway, so
// the target sees probes coming from the gateway.  SSH forwards TCP
// only; datagram dials fail with ErrUnsupported.
type GatewayDialer struct {
	gateway   tunnel.Gateway
	logger    *util.Logger
	mu        sync.Mutex
	connected bool
}

// NewGatewayDialer wraps gw.  The gateway is not connected until
// [GatewayDialer.Connect] or the first Dial.
func NewGatewayDialer(gw tunnel.Gateway, logger *util.Logger) *GatewayDialer {
	return &GatewayDialer{gateway: gw, logger: logger}
}

// Connect establishes the SSH session if not already connected.  Call
// it before scanning so an auth failure aborts the run instead of
// turning every port negative.
func (d *GatewayDialer) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected && d.gateway.IsAlive() {
		return nil
	}

	d.logger.Verbose("establishing SSH session to %s", d.gateway)

	if err := d.gateway.Connect(ctx); err != nil {
		return fmt.Errorf("gateway: %w: %w", ncerr.ErrNotConnected, err)
	}

	d.connected = true
	d.logger.Verbose("SSH session established")
	return nil
}

// Dial opens a forwarded TCP connection to address.
func (d *GatewayDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" && network != "tcp4" && network != "tcp6" {
		return nil, fmt.Errorf("%s via ssh gateway: %w", network, ncerr.ErrUnsupported)
	}
	if err := d.Connect(ctx); err != nil {
		return nil, err
	}
	return d.gateway.Dial(ctx, network, address)
}

// Close tears down the SSH session.
func (d *GatewayDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		d.connected = false
		return d.gateway.Close()
	}
	return nil
}
