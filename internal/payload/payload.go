// Package payload builds the bytes a datagram probe sends.
//
// The default is a fixed marker.  Most UDP services ignore it, which
// is why datagram probing is approximate.  With service payloads
// enabled, well-known ports get a request their service will answer.
// Replies are never parsed.
package payload

import (
	"fmt"
	"math/rand"

	"github.com/gosnmp/gosnmp"
	"github.com/miekg/dns"
)

// DefaultMarker is the payload sent to ports without a service payload.
const DefaultMarker = "query"

const (
	dnsPort  = 53
	snmpPort = 161

	// sysDescr.0, present on every SNMP agent.
	sysDescrOID = ".1.3.6.1.2.1.1.1.0"

	defaultCommunity = "public"
)

// Func returns the datagram payload for port.
type Func func(port int) ([]byte, error)

// Marker returns a Func that always sends marker.  An empty marker
// falls back to [DefaultMarker]: an empty datagram is a valid send but
// many stacks drop it.
func Marker(marker string) Func {
	if marker == "" {
		marker = DefaultMarker
	}
	b := []byte(marker)
	return func(int) ([]byte, error) {
		return b, nil
	}
}

// WithServices returns a Func that sends a DNS query to port 53 and an
// SNMP get to port 161, deferring to fallback everywhere else.
func WithServices(fallback Func) Func {
	if fallback == nil {
		fallback = Marker(DefaultMarker)
	}
	return func(port int) ([]byte, error) {
		switch port {
		case dnsPort:
			return DNSQuery()
		case snmpPort:
			return SNMPGet(defaultCommunity)
		default:
			return fallback(port)
		}
	}
}

// DNSQuery packs a non-recursive query for the root NS set.  Any
// resolver or authoritative server answers it, if only with REFUSED.
func DNSQuery() ([]byte, error) {
	m := new(dns.Msg)
	m.SetQuestion(".", dns.TypeNS)
	m.RecursionDesired = false
	b, err := m.Pack()
	if err != nil {
		return nil, fmt.Errorf("packing dns query: %w", err)
	}
	return b, nil
}

// SNMPGet encodes an SNMPv2c GetRequest for sysDescr.0.
func SNMPGet(community string) ([]byte, error) {
	pkt := &gosnmp.SnmpPacket{
		Version:   gosnmp.Version2c,
		Community: community,
		PDUType:   gosnmp.GetRequest,
		RequestID: rand.Uint32(), //nolint:gosec // request IDs only pair replies
		Variables: []gosnmp.SnmpPDU{
			{Name: sysDescrOID, Type: gosnmp.Null},
		},
	}
	b, err := pkt.MarshalMsg()
	if err != nil {
		return nil, fmt.Errorf("encoding snmp get: %w", err)
	}
	return b, nil
}
