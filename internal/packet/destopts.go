package packet

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/uoaprobe/internal/core"
)

// destOptsMaxLen is the largest Destination Options header: (255+1)*8 bytes.
const destOptsMaxLen = 2048

type tlvOption struct {
	Type uint8
	Data []byte
}

// destinationOptions serializes an IPv6 Destination Options extension header.
// Options are written in order and the header is padded with Pad1/PadN to a
// multiple of 8 octets.
type destinationOptions struct {
	NextHeader layers.IPProtocol
	Options    []tlvOption
}

func (d *destinationOptions) LayerType() gopacket.LayerType {
	return layers.LayerTypeIPv6Destination
}

func (d *destinationOptions) unpaddedLen() int {
	n := 2
	for _, o := range d.Options {
		n += 2 + len(o.Data)
	}
	return n
}

// Len returns the encoded header length including padding.
func (d *destinationOptions) Len() int {
	return (d.unpaddedLen() + 7) &^ 7
}

func (d *destinationOptions) SerializeTo(b gopacket.SerializeBuffer, _ gopacket.SerializeOptions) error {
	for _, o := range d.Options {
		if len(o.Data) > tlvDataMax {
			return fmt.Errorf("%w: tlv data of %d bytes", core.ErrOptionOverflow, len(o.Data))
		}
	}
	length := d.Len()
	if length > destOptsMaxLen {
		return fmt.Errorf("%w: destination options header of %d bytes", core.ErrOptionOverflow, length)
	}

	bytes, err := b.PrependBytes(length)
	if err != nil {
		return err
	}
	bytes[0] = uint8(d.NextHeader)
	bytes[1] = uint8(length/8 - 1)

	off := 2
	for _, o := range d.Options {
		bytes[off] = o.Type
		bytes[off+1] = uint8(len(o.Data))
		copy(bytes[off+2:], o.Data)
		off += 2 + len(o.Data)
	}
	writePadding(bytes[off:])
	return nil
}

// writePadding fills b with a single Pad1 or PadN option.
func writePadding(b []byte) {
	switch len(b) {
	case 0:
	case 1:
		b[0] = ipv6Pad1
	default:
		b[0] = ipv6PadN
		b[1] = uint8(len(b) - 2)
		clear(b[2:])
	}
}

// walkTLV checks that options exactly fill an extension header body and calls fn
// for every non-padding option.
func walkTLV(body []byte, fn func(t uint8, data []byte)) error {
	for off := 0; off < len(body); {
		t := body[off]
		if t == ipv6Pad1 {
			off++
			continue
		}
		if off+2 > len(body) {
			return fmt.Errorf("truncated option header at offset %d", off)
		}
		end := off + 2 + int(body[off+1])
		if end > len(body) {
			return fmt.Errorf("option %#x at offset %d overruns header by %d bytes", t, off, end-len(body))
		}
		if t == ipv6PadN {
			for _, p := range body[off+2 : end] {
				if p != 0 {
					return fmt.Errorf("non-zero padding at offset %d", off)
				}
			}
		} else if fn != nil {
			fn(t, body[off+2:end])
		}
		off = end
	}
	return nil
}
