package probe

import (
	"fmt"

	ncerr "pscan/internal/errors"
)

// Status refines the boolean reachability of a probe.  Only
// StatusOpen counts as reachable; the others are the ways a probe can
// come back negative.
type Status int

const (
	StatusOpen Status = iota
	StatusClosed
	StatusFiltered
	StatusTimeout
	StatusUnreachable
)

var statusNames = [...]string{
	StatusOpen:        "open",
	StatusClosed:      "closed",
	StatusFiltered:    "filtered",
	StatusTimeout:     "timeout",
	StatusUnreachable: "unreachable",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

// MarshalText renders the status name.
func (s Status) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("unknown status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *Status) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if string(b) == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", b)
}

// Classify maps an expected network failure to a Status.  A nil error
// is StatusOpen.
//
// For datagram probes a silent port and a firewalled one look the
// same, so most UDP negatives land in StatusTimeout.
func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusOpen
	case ncerr.IsRefused(err):
		return StatusClosed
	case ncerr.IsTimeout(err):
		return StatusTimeout
	case ncerr.IsUnreachable(err):
		return StatusUnreachable
	default:
		return StatusFiltered
	}
}
