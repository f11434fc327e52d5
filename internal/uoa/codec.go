package uoa

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/uoaprobe/internal/core"
)

// Option type codes.
const (
	TypeUOA     uint8 = 0x1f
	TypeUnknown uint8 = 0x2f
)

const portLen = 2

// Placement selects where the option is carried, which changes what its length byte counts.
type Placement uint8

const (
	// PlacementIPv4 is an IPv4 header option; the length byte includes type and length.
	PlacementIPv4 Placement = iota
	// PlacementIPv6 is a destination-options TLV; the length byte counts data only.
	PlacementIPv6
)

// BodyLen is the encoded body length for family: 6 for V4, 18 for V6.
func BodyLen(family Family) int {
	return portLen + family.Width()
}

// OptionLength returns the value of the option length byte for a real address of family
// carried with placement.
func OptionLength(family Family, placement Placement) uint8 {
	n := BodyLen(family)
	if placement == PlacementIPv4 {
		n += 2
	}
	return uint8(n)
}

// Encode returns the option body: port in network byte order followed by the address.
func Encode(addr RealAddress) []byte {
	body := make([]byte, BodyLen(addr.family))
	binary.BigEndian.PutUint16(body, addr.port)
	copy(body[portLen:], addr.ip[:addr.family.Width()])
	return body
}

// Decode is the inverse of Encode.
func Decode(family Family, body []byte) (RealAddress, error) {
	if family.Width() == 0 {
		return RealAddress{}, fmt.Errorf("%w: unknown family %d", core.ErrMalformedAddress, uint8(family))
	}
	if len(body) != BodyLen(family) {
		return RealAddress{}, fmt.Errorf("%w: %s option body needs %d bytes, got %d",
			core.ErrMalformedAddress, family, BodyLen(family), len(body))
	}
	return NewRealAddress(family, body[portLen:], binary.BigEndian.Uint16(body))
}

// DecodeBody infers the family from the body length.
func DecodeBody(body []byte) (RealAddress, error) {
	switch len(body) {
	case BodyLen(V4):
		return Decode(V4, body)
	case BodyLen(V6):
		return Decode(V6, body)
	default:
		return RealAddress{}, fmt.Errorf("%w: option body of %d bytes", core.ErrMalformedAddress, len(body))
	}
}
