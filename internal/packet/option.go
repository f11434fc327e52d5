package packet

import (
	"bytes"
	"fmt"

	"github.com/google/gopacket/layers"

	"firestige.xyz/uoaprobe/internal/core"
	"firestige.xyz/uoaprobe/internal/uoa"
)

const (
	// ipv4OptionSpace is the IPv4 header option ceiling (IHL 15).
	ipv4OptionSpace = 40
	// tlvDataMax is the largest data field a single IPv6 TLV option can carry.
	tlvDataMax = 255

	ipv4OptionEnd = 0
	ipv4OptionNop = 1
	ipv6Pad1      = 0
	ipv6PadN      = 1

	// DefaultFullFiller fills FullOption data.
	DefaultFullFiller byte = 0xee
)

var (
	// DefaultUnknownData4 is the foreign option body used on IPv4 (option length 8).
	DefaultUnknownData4 = []byte("123456")
	// DefaultUnknownData6 is the foreign option body used on IPv6 (option length 18).
	DefaultUnknownData6 = []byte("123456789012345678")
)

// Option is the content of a packet's option slot. A nil Option is the control case.
type Option interface {
	// Name identifies the variant in logs and reports.
	Name() string

	ipv4Options() ([]layers.IPv4Option, error)
	ipv6Options() ([]tlvOption, error)
}

// RealAddressOption carries a real address.
type RealAddressOption struct {
	Addr uoa.RealAddress
}

func (o RealAddressOption) Name() string {
	if o.Addr.Family() == uoa.V4 {
		return "uoa4"
	}
	return "uoa6"
}

func (o RealAddressOption) ipv4Options() ([]layers.IPv4Option, error) {
	if o.Addr.IsZero() {
		return nil, fmt.Errorf("%w: empty real address option", core.ErrMalformedAddress)
	}
	return []layers.IPv4Option{{
		OptionType:   uoa.TypeUOA,
		OptionLength: uoa.OptionLength(o.Addr.Family(), uoa.PlacementIPv4),
		OptionData:   uoa.Encode(o.Addr),
	}}, nil
}

func (o RealAddressOption) ipv6Options() ([]tlvOption, error) {
	if o.Addr.IsZero() {
		return nil, fmt.Errorf("%w: empty real address option", core.ErrMalformedAddress)
	}
	return []tlvOption{{Type: uoa.TypeUOA, Data: uoa.Encode(o.Addr)}}, nil
}

// UnknownOption is an option type the receiver is not expected to understand.
// A zero Type means uoa.TypeUnknown.
type UnknownOption struct {
	Type uint8
	Data []byte
}

func (o UnknownOption) Name() string { return "unknown" }

func (o UnknownOption) typeCode() uint8 {
	if o.Type == 0 {
		return uoa.TypeUnknown
	}
	return o.Type
}

func (o UnknownOption) ipv4Options() ([]layers.IPv4Option, error) {
	if o.typeCode() == ipv4OptionNop {
		return nil, fmt.Errorf("%w: type %#x is a single-byte ipv4 option", core.ErrUnsupportedOption, o.typeCode())
	}
	if 2+len(o.Data) > ipv4OptionSpace {
		return nil, fmt.Errorf("%w: ipv4 option of %d bytes", core.ErrOptionOverflow, 2+len(o.Data))
	}
	return []layers.IPv4Option{{
		OptionType:   o.typeCode(),
		OptionLength: uint8(2 + len(o.Data)),
		OptionData:   o.Data,
	}}, nil
}

func (o UnknownOption) ipv6Options() ([]tlvOption, error) {
	if o.typeCode() == ipv6PadN {
		return nil, fmt.Errorf("%w: type %#x is reserved for padding", core.ErrUnsupportedOption, o.typeCode())
	}
	if len(o.Data) > tlvDataMax {
		return nil, fmt.Errorf("%w: tlv data of %d bytes", core.ErrOptionOverflow, len(o.Data))
	}
	return []tlvOption{{Type: o.typeCode(), Data: o.Data}}, nil
}

// OptionListEnd appends the IPv4 end-of-options marker after another option.
// After may be nil for a bare marker.
type OptionListEnd struct {
	After Option
}

func (o OptionListEnd) Name() string {
	if o.After == nil {
		return "end"
	}
	return o.After.Name() + "+end"
}

func (o OptionListEnd) ipv4Options() ([]layers.IPv4Option, error) {
	var opts []layers.IPv4Option
	if o.After != nil {
		if _, nested := o.After.(OptionListEnd); nested {
			return nil, fmt.Errorf("%w: nested end of options", core.ErrUnsupportedOption)
		}
		inner, err := o.After.ipv4Options()
		if err != nil {
			return nil, err
		}
		opts = inner
	}
	return append(opts, layers.IPv4Option{OptionType: ipv4OptionEnd, OptionLength: 1}), nil
}

func (o OptionListEnd) ipv6Options() ([]tlvOption, error) {
	return nil, fmt.Errorf("%w: end of options marker on ipv6", core.ErrUnsupportedOption)
}

// FullOption saturates the option space with one foreign option.
// A zero Type means uoa.TypeUnknown.
type FullOption struct {
	Type   uint8
	Filler byte
}

func (o FullOption) Name() string { return "full" }

func (o FullOption) typeCode() uint8 {
	if o.Type == 0 {
		return uoa.TypeUnknown
	}
	return o.Type
}

func (o FullOption) ipv4Options() ([]layers.IPv4Option, error) {
	return UnknownOption{Type: o.typeCode(), Data: bytes.Repeat([]byte{o.Filler}, ipv4OptionSpace-2)}.ipv4Options()
}

func (o FullOption) ipv6Options() ([]tlvOption, error) {
	return UnknownOption{Type: o.typeCode(), Data: bytes.Repeat([]byte{o.Filler}, tlvDataMax)}.ipv6Options()
}

// OptionName returns the variant name of opt, "none" for the control case.
func OptionName(opt Option) string {
	if opt == nil {
		return "none"
	}
	return opt.Name()
}

// ipv4OptionsLen returns the encoded length of opts before word padding.
func ipv4OptionsLen(opts []layers.IPv4Option) int {
	n := 0
	for _, o := range opts {
		switch o.OptionType {
		case ipv4OptionEnd, ipv4OptionNop:
			n++
		default:
			n += int(o.OptionLength)
		}
	}
	return n
}

// padIPv4Options pads opts with zero bytes to a 4-byte boundary and checks the ceiling.
func padIPv4Options(opts []layers.IPv4Option) ([]layers.IPv4Option, error) {
	length := ipv4OptionsLen(opts)
	for length%4 != 0 {
		opts = append(opts, layers.IPv4Option{OptionType: ipv4OptionEnd, OptionLength: 1})
		length++
	}
	if length > ipv4OptionSpace {
		return nil, fmt.Errorf("%w: ipv4 options need %d bytes, at most %d available",
			core.ErrOptionOverflow, length, ipv4OptionSpace)
	}
	return opts, nil
}
