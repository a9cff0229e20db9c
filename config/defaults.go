package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultWorkers caps concurrent probes per transport mode.  Large
	// ranges would otherwise run out of local ephemeral ports or file
	// descriptors.
	DefaultWorkers = 5

	// DefaultProbeTimeout bounds a single probe: the dial and, for
	// datagram probes, the wait for a reply.
	DefaultProbeTimeout = 3 * time.Second

	// DefaultPayload is the marker sent by datagram probes.
	DefaultPayload = "query"

	// DefaultOutput is the result format.
	DefaultOutput = "plain"

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultGatewayTimeout is the SSH gateway connection timeout.
	DefaultGatewayTimeout = 30 * time.Second

	// MaxPort is the highest valid port number.  The range end is
	// exclusive, so End may be MaxPort+1.
	MaxPort = 65535
)
