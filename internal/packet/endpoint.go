// Package packet builds UDP datagrams carrying real-address options.
package packet

import (
	"fmt"
	"net/netip"
	"strings"

	"firestige.xyz/uoaprobe/internal/core"
	"firestige.xyz/uoaprobe/internal/uoa"
)

// Endpoint is a destination or source under test.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

// ParseEndpoint parses "ip:port" for IPv4 or "[ip]:port" for IPv6. Link-local IPv6
// addresses may carry a zone ("[fe80::1%eth0]:8082").
func ParseEndpoint(s string) (Endpoint, error) {
	ap, err := netip.ParseAddrPort(strings.TrimSpace(s))
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: endpoint %q: %v", core.ErrMalformedAddress, s, err)
	}
	return Endpoint{Addr: ap.Addr().Unmap(), Port: ap.Port()}, nil
}

// ParseEndpointFamily parses s and requires it to be of family.
func ParseEndpointFamily(s string, family uoa.Family) (Endpoint, error) {
	ep, err := ParseEndpoint(s)
	if err != nil {
		return Endpoint{}, err
	}
	if ep.Family() != family {
		return Endpoint{}, fmt.Errorf("%w: endpoint %q is not %s", core.ErrMalformedAddress, s, family)
	}
	return ep, nil
}

// Family returns the address family of the endpoint.
func (e Endpoint) Family() uoa.Family { return uoa.FamilyOf(e.Addr) }

// IsValid reports whether the endpoint has an address.
func (e Endpoint) IsValid() bool { return e.Addr.IsValid() }

// AddrPort returns the endpoint as netip.AddrPort.
func (e Endpoint) AddrPort() netip.AddrPort { return netip.AddrPortFrom(e.Addr, e.Port) }

func (e Endpoint) String() string { return e.AddrPort().String() }
