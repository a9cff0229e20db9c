package tunnel

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "pscan/internal/errors"
	"pscan/util"
)

// SSHConfig holds everything needed to log in to an SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// Prompt reads a secret (password or key passphrase) from the
	// user.  Nil means the controlling terminal.
	Prompt PromptFunc
}

func (c *SSHConfig) addr() string {
	return util.FormatAddr(c.Host, c.Port)
}

// SSHGateway implements [Gateway] with an ssh.Client; each Dial opens a
// direct-tcpip channel.
type SSHGateway struct {
	config *SSHConfig
	client *ssh.Client
	logger *util.Logger
	mu     sync.RWMutex
	alive  bool
}

// NewSSHGateway creates a gateway that is ready to [SSHGateway.Connect].
func NewSSHGateway(cfg *SSHConfig, logger *util.Logger) *SSHGateway {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	return &SSHGateway{config: cfg, logger: logger}
}

// String returns user@host:port.
func (g *SSHGateway) String() string {
	if g.config.User == "" {
		return g.config.addr()
	}
	return g.config.User + "@" + g.config.addr()
}

// Connect dials the gateway and completes the handshake.
func (g *SSHGateway) Connect(ctx context.Context) error {
	authMethods, err := buildAuthMethods(g.config)
	if err != nil {
		return ncerr.WrapSSH("auth", g.config.Host, g.config.Port, err)
	}

	hkCallback, err := hostKeyCallback(g.config)
	if err != nil {
		return ncerr.WrapSSH("hostkey", g.config.Host, g.config.Port, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            g.config.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         g.config.ConnTimeout,
	}

	addr := g.config.addr()
	g.logger.Debug("ssh: dialing %s as %q", addr, g.config.User)

	dialCtx, cancel := context.WithTimeout(ctx, g.config.ConnTimeout)
	defer cancel()

	var dialer net.Dialer
	tcpConn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return ncerr.Wrap("dial", addr, err)
	}

	// NewClientConn honours neither sshCfg.Timeout nor ctx.
	if dl, ok := dialCtx.Deadline(); ok {
		tcpConn.SetDeadline(dl) //nolint:errcheck
	}
	stop := context.AfterFunc(ctx, func() { tcpConn.Close() })

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	interrupted := !stop()
	if err != nil {
		tcpConn.Close()
		switch {
		case interrupted:
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		case isAuthFailure(err):
			err = fmt.Errorf("%w: %w", ncerr.ErrAuthFailed, err)
		}
		return ncerr.WrapSSH("handshake", g.config.Host, g.config.Port, err)
	}
	if interrupted {
		sshConn.Close()
		return ncerr.WrapSSH("handshake", g.config.Host, g.config.Port, ctx.Err())
	}
	tcpConn.SetDeadline(time.Time{}) //nolint:errcheck

	client := ssh.NewClient(sshConn, chans, reqs)

	g.mu.Lock()
	g.client = client
	g.alive = true
	g.mu.Unlock()

	go g.monitor(client)

	return nil
}

// Dial opens a direct-tcpip channel to address.  A target that refuses
// the gateway's connection surfaces as *ssh.OpenChannelError.
func (g *SSHGateway) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	g.mu.RLock()
	client := g.client
	alive := g.alive
	g.mu.RUnlock()

	if !alive || client == nil {
		return nil, ncerr.ErrNotConnected
	}

	g.logger.Debug("ssh: forwarding %s %s", network, address)
	conn, err := client.DialContext(ctx, network, address)
	if err != nil {
		return nil, ncerr.Wrap("dial", address, err)
	}
	return conn, nil
}

// Close shuts down the SSH connection.
func (g *SSHGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.alive = false
	if g.client != nil {
		err := g.client.Close()
		g.client = nil
		return err
	}
	return nil
}

// IsAlive reports whether the session is still connected.
func (g *SSHGateway) IsAlive() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.alive
}

// monitor blocks until client's connection closes and flips the alive
// flag.
func (g *SSHGateway) monitor(client *ssh.Client) {
	err := client.Wait()

	g.mu.Lock()
	if g.client == client {
		g.alive = false
	}
	g.mu.Unlock()

	if err != nil {
		g.logger.Debug("ssh: session to %s closed: %v", g, err)
	} else {
		g.logger.Debug("ssh: session to %s closed", g)
	}
}

// isAuthFailure reports whether the server rejected every auth method.
// x/crypto/ssh has no typed error for it.
func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

var _ Gateway = (*SSHGateway)(nil)
