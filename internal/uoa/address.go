// Package uoa implements the real-address option payload carried by UOA packets.
package uoa

import (
	"fmt"
	"net/netip"

	"firestige.xyz/uoaprobe/internal/core"
)

// Family is the address family of a real address.
type Family uint8

const (
	V4 Family = 4
	V6 Family = 6
)

// Width returns the address width in bytes, 0 for an unknown family.
func (f Family) Width() int {
	switch f {
	case V4:
		return 4
	case V6:
		return 16
	default:
		return 0
	}
}

func (f Family) String() string {
	switch f {
	case V4:
		return "ipv4"
	case V6:
		return "ipv6"
	default:
		return fmt.Sprintf("family(%d)", uint8(f))
	}
}

// FamilyOf returns the family of addr. IPv4-mapped IPv6 addresses count as V6.
func FamilyOf(addr netip.Addr) Family {
	if addr.Is4() {
		return V4
	}
	return V6
}

// RealAddress is the client address an intermediary is expected to report.
type RealAddress struct {
	family Family
	ip     [16]byte
	port   uint16
}

// NewRealAddress validates ip against family and builds a RealAddress.
// The ip slice is copied.
func NewRealAddress(family Family, ip []byte, port uint16) (RealAddress, error) {
	width := family.Width()
	if width == 0 {
		return RealAddress{}, fmt.Errorf("%w: unknown family %d", core.ErrMalformedAddress, uint8(family))
	}
	if len(ip) != width {
		return RealAddress{}, fmt.Errorf("%w: %s address needs %d bytes, got %d",
			core.ErrMalformedAddress, family, width, len(ip))
	}
	ra := RealAddress{family: family, port: port}
	copy(ra.ip[:], ip)
	return ra, nil
}

// RealAddressFrom builds a RealAddress from ap, dropping any zone.
func RealAddressFrom(ap netip.AddrPort) (RealAddress, error) {
	addr := ap.Addr()
	if !addr.IsValid() {
		return RealAddress{}, fmt.Errorf("%w: invalid address", core.ErrMalformedAddress)
	}
	addr = addr.WithZone("")
	return NewRealAddress(FamilyOf(addr), addr.AsSlice(), ap.Port())
}

// MustParse parses "ip:port" or "[ip]:port" and panics on error. Intended for constants and tests.
func MustParse(s string) RealAddress {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		panic(err)
	}
	ra, err := RealAddressFrom(ap)
	if err != nil {
		panic(err)
	}
	return ra
}

func (r RealAddress) Family() Family { return r.family }
func (r RealAddress) Port() uint16   { return r.port }

// IP returns a copy of the address bytes.
func (r RealAddress) IP() []byte {
	out := make([]byte, r.family.Width())
	copy(out, r.ip[:])
	return out
}

// Addr returns the address as netip.Addr.
func (r RealAddress) Addr() netip.Addr {
	if r.family == V4 {
		return netip.AddrFrom4([4]byte(r.ip[:4]))
	}
	return netip.AddrFrom16(r.ip)
}

// IsZero reports whether r was never constructed.
func (r RealAddress) IsZero() bool { return r.family == 0 }

// String renders the address the way the echo service prints it: "ip:port",
// without brackets for IPv6.
func (r RealAddress) String() string {
	if r.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s:%d", r.Addr(), r.port)
}
