// Package errors provides domain-specific error types for pscan.
//
// Probe failures come in two flavours.  Expected network failures
// (refused, timed out, unreachable) never leave the probe: they are
// classified into a Status and folded into a "not reachable" result.
// Anomalies (the local host could not even allocate a socket) are
// returned as *ProbeError so the coordinator can report them and move
// on.
package errors

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrNotConnected = errors.New("not connected")
	ErrUnsupported  = errors.New("operation not supported by transport")
	ErrEmptyHost    = errors.New("host is empty")
	ErrAuthFailed   = errors.New("authentication failed")
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op   string // operation: "dial", "write", "read", "deadline"
	Addr string // network address involved
	Err  error  // underlying error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProbeError is an anomalous failure of a single probe task.  The
// affected port is dropped from the scan output.
type ProbeError struct {
	Protocol string // "TCP" or "UDP"
	Port     int
	Err      error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("%s probe of port %d: %v", e.Protocol, e.Port, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// SSHError represents a gateway failure with host context.
type SSHError struct {
	Op   string // "auth", "hostkey", "handshake"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{Op: op, Addr: addr, Err: err}
}

// WrapProbe creates a ProbeError.
func WrapProbe(protocol string, port int, err error) *ProbeError {
	return &ProbeError{Protocol: protocol, Port: port, Err: err}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsResourceExhausted reports whether err means the local host ran out
// of sockets, file descriptors, or buffer space.
func IsResourceExhausted(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EMFILE) ||
		errors.Is(err, syscall.ENFILE) ||
		errors.Is(err, syscall.ENOBUFS) ||
		errors.Is(err, syscall.ENOMEM)
}

// IsTimeout reports whether err is a deadline or timeout failure.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ETIMEDOUT)
}

// IsRefused reports whether the remote actively rejected the attempt.
// For datagram sockets this is how an ICMP port-unreachable surfaces.
func IsRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// IsUnreachable reports whether no route to the target exists or its
// name could not be resolved.
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTDOWN)
}

// ── Re-exports ───────────────────────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }
