package probe

import (
	"fmt"

	"pscan/util"
)

// Mode selects the transport a probe uses.
type Mode int

const (
	// Stream is connection-oriented transport (TCP).
	Stream Mode = iota
	// Datagram is connectionless transport (UDP).
	Datagram
)

// Modes returns every transport mode in scan order: Stream, then
// Datagram.
func Modes() []Mode {
	return []Mode{Stream, Datagram}
}

// String returns the protocol label, "TCP" or "UDP".
func (m Mode) String() string {
	switch m {
	case Stream:
		return "TCP"
	case Datagram:
		return "UDP"
	default:
		return "UNKNOWN"
	}
}

// Network returns the net package network name for m.
func (m Mode) Network() string {
	switch m {
	case Stream:
		return "tcp"
	case Datagram:
		return "udp"
	default:
		return ""
	}
}

// MarshalText renders the protocol label.
func (m Mode) MarshalText() ([]byte, error) {
	switch m {
	case Stream, Datagram:
		return []byte(m.String()), nil
	default:
		return nil, fmt.Errorf("unknown mode %d", int(m))
	}
}

// UnmarshalText parses a protocol label.
func (m *Mode) UnmarshalText(b []byte) error {
	for _, cand := range Modes() {
		if string(b) == cand.String() {
			*m = cand
			return nil
		}
	}
	return fmt.Errorf("unknown protocol %q", b)
}

// Address is a probe target.
type Address struct {
	Host string
	Port int
}

func (a Address) String() string { return util.FormatAddr(a.Host, a.Port) }

// Result is the outcome of one completed (mode, port) check.
type Result struct {
	Mode      Mode   `json:"protocol"`
	Port      int    `json:"port"`
	Reachable bool   `json:"reachable"`
	Status    Status `json:"status"`
}

// NewResult builds a Result, deriving Reachable from status.
func NewResult(mode Mode, port int, status Status) Result {
	return Result{
		Mode:      mode,
		Port:      port,
		Reachable: status == StatusOpen,
		Status:    status,
	}
}
