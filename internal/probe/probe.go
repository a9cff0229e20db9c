// Package probe performs single reachability checks.
//
// A probe owns exactly one socket for its duration and releases it on
// every exit path.  Expected network failures are never returned as
// errors: they are folded into a negative Status.  Only anomalies,
// where the local host could not run the check at all, come back as
// *errors.ProbeError.
package probe

import (
	"context"
	"fmt"
	"time"

	"pscan/config"
	ncerr "pscan/internal/errors"
	"pscan/internal/payload"
	"pscan/internal/transport"
	"pscan/util"
)

// Prober runs stream and datagram probes.  The zero value probes
// directly with the default timeout and marker payload.
type Prober struct {
	Stream   transport.Dialer // nil = direct TCP
	Datagram transport.Dialer // nil = direct UDP
	Timeout  time.Duration    // per probe; 0 = config.DefaultProbeTimeout
	Payload  payload.Func     // nil = payload.Marker(payload.DefaultMarker)
	Logger   *util.Logger     // nil = silent
}

// Probe reports whether addr is reachable over mode.  A false result
// with a nil error covers refused, filtered, timed-out and unreachable
// targets alike.
func (p *Prober) Probe(ctx context.Context, mode Mode, addr Address) (bool, error) {
	st, err := p.Check(ctx, mode, addr)
	if err != nil {
		return false, err
	}
	return st == StatusOpen, nil
}

// Check is Probe with the negative outcomes told apart.  An empty host
// is an anomaly: the dialer would silently probe the local system.
func (p *Prober) Check(ctx context.Context, mode Mode, addr Address) (Status, error) {
	if addr.Host == "" {
		return StatusFiltered, ncerr.WrapProbe(mode.String(), addr.Port, ncerr.ErrEmptyHost)
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = config.DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch mode {
	case Stream:
		return p.stream(ctx, addr)
	case Datagram:
		return p.datagram(ctx, addr)
	default:
		return StatusFiltered, ncerr.WrapProbe(mode.String(), addr.Port,
			fmt.Errorf("mode %d: %w", int(mode), ncerr.ErrUnsupported))
	}
}

func (p *Prober) stream(ctx context.Context, addr Address) (Status, error) {
	conn, err := p.dialer(Stream).Dial(ctx, Stream.Network(), addr.String())
	if err != nil {
		return p.fold(Stream, addr, ncerr.Wrap("dial", addr.String(), err))
	}
	conn.Close()
	return StatusOpen, nil
}

// datagram sends the payload on a connected socket and waits for any
// reply.  Silence until the deadline is a timeout; an ICMP
// port-unreachable comes back from Read as ECONNREFUSED.
func (p *Prober) datagram(ctx context.Context, addr Address) (Status, error) {
	msg, err := p.payload()(addr.Port)
	if err != nil {
		return StatusFiltered, ncerr.WrapProbe(Datagram.String(), addr.Port, err)
	}

	conn, err := p.dialer(Datagram).Dial(ctx, Datagram.Network(), addr.String())
	if err != nil {
		return p.fold(Datagram, addr, ncerr.Wrap("dial", addr.String(), err))
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(dl); err != nil {
			return p.fold(Datagram, addr, ncerr.Wrap("deadline", addr.String(), err))
		}
	}
	// Unblock Read early if the scan is cancelled.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now()) //nolint:errcheck
	})
	defer stop()

	if _, err := conn.Write(msg); err != nil {
		return p.fold(Datagram, addr, ncerr.Wrap("write", addr.String(), err))
	}

	buf := util.GetReplyBuf()
	defer util.PutReplyBuf(buf)

	if _, err := conn.Read(*buf); err != nil {
		return p.fold(Datagram, addr, ncerr.Wrap("read", addr.String(), err))
	}
	return StatusOpen, nil
}

// fold turns err into a negative Status, or into a *ProbeError when the
// failure says nothing about the target.
func (p *Prober) fold(mode Mode, addr Address, err error) (Status, error) {
	if isAnomaly(err) {
		return StatusFiltered, ncerr.WrapProbe(mode.String(), addr.Port, err)
	}
	st := Classify(err)
	if p.Logger != nil {
		p.Logger.Debug("%s %s %s: %v", mode, addr, st, err)
	}
	return st, nil
}

func isAnomaly(err error) bool {
	return ncerr.IsResourceExhausted(err) ||
		ncerr.Is(err, ncerr.ErrNotConnected) ||
		ncerr.Is(err, ncerr.ErrUnsupported)
}

func (p *Prober) dialer(mode Mode) transport.Dialer {
	switch {
	case mode == Stream && p.Stream != nil:
		return p.Stream
	case mode == Datagram && p.Datagram != nil:
		return p.Datagram
	case mode == Datagram:
		return &transport.UDPDialer{Timeout: p.Timeout}
	default:
		return &transport.TCPDialer{Timeout: p.Timeout}
	}
}

func (p *Prober) payload() payload.Func {
	if p.Payload != nil {
		return p.Payload
	}
	return payload.Marker(payload.DefaultMarker)
}
