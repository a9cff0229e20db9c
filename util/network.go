package util

import (
	"fmt"
	"net"
	"strconv"
)

// CheckNumericHost rejects host unless it is a literal IP address.
// Used when DNS resolution is disabled with -n.
func CheckNumericHost(host string) error {
	if net.ParseIP(host) == nil {
		return fmt.Errorf("cannot parse %q as an IP address (DNS disabled with -n)", host)
	}
	return nil
}

// FormatAddr returns "host:port", bracketing IPv6 literals.
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// FindFreePort returns a TCP port on 127.0.0.1 that had no listener a
// moment ago.  Tests use it to get a port that is known to be closed.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
