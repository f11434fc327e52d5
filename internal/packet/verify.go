package packet

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/uoaprobe/internal/uoa"
)

// Decoded is a structurally valid datagram produced by Verify.
type Decoded struct {
	Src, Dst Endpoint
	// Options holds the raw IPv4 option area or the IPv6 Destination Options
	// header body, nil when the datagram carries no option.
	Options []byte
	Payload []byte
}

// Verify decodes an IP datagram produced by Builder and checks what a receiver
// would check: header lengths, option TLV structure, the IPv4 header checksum
// and the UDP checksum.
func Verify(pkt []byte) (*Decoded, error) {
	if len(pkt) == 0 {
		return nil, fmt.Errorf("empty packet")
	}
	switch pkt[0] >> 4 {
	case 4:
		return verifyIPv4(pkt)
	case 6:
		return verifyIPv6(pkt)
	default:
		return nil, fmt.Errorf("unknown ip version %d", pkt[0]>>4)
	}
}

func decode(pkt []byte, first gopacket.LayerType) (gopacket.Packet, *layers.UDP, error) {
	p := gopacket.NewPacket(pkt, first, gopacket.DecodeOptions{NoCopy: true})
	if el := p.ErrorLayer(); el != nil {
		return nil, nil, fmt.Errorf("decode: %w", el.Error())
	}
	if md := p.Metadata(); md != nil && md.Truncated {
		return nil, nil, fmt.Errorf("truncated packet")
	}
	udp, ok := p.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if !ok {
		return nil, nil, fmt.Errorf("no udp layer")
	}
	if int(udp.Length) != len(udp.LayerContents())+len(udp.LayerPayload()) {
		return nil, nil, fmt.Errorf("udp length %d does not match segment of %d bytes",
			udp.Length, len(udp.LayerContents())+len(udp.LayerPayload()))
	}
	return p, udp, nil
}

func verifyIPv4(pkt []byte) (*Decoded, error) {
	p, udp, err := decode(pkt, layers.LayerTypeIPv4)
	if err != nil {
		return nil, err
	}
	ip := p.NetworkLayer().(*layers.IPv4)
	hdr := ip.LayerContents()
	if onesComplementSum(0, hdr) != 0xffff {
		return nil, fmt.Errorf("bad ipv4 header checksum %#04x", ip.Checksum)
	}
	if err := checkUDPSum(ip, udp); err != nil {
		return nil, err
	}

	d := newDecoded(ip.SrcIP, ip.DstIP, udp)
	if len(hdr) > 20 {
		d.Options = hdr[20:]
	}
	return d, nil
}

func verifyIPv6(pkt []byte) (*Decoded, error) {
	p, udp, err := decode(pkt, layers.LayerTypeIPv6)
	if err != nil {
		return nil, err
	}
	ip := p.NetworkLayer().(*layers.IPv6)
	if int(ip.Length) != len(ip.LayerPayload()) {
		return nil, fmt.Errorf("ipv6 payload length %d does not match %d bytes", ip.Length, len(ip.LayerPayload()))
	}
	if err := checkUDPSum(ip, udp); err != nil {
		return nil, err
	}

	d := newDecoded(ip.SrcIP, ip.DstIP, udp)
	if dst, ok := p.Layer(layers.LayerTypeIPv6Destination).(*layers.IPv6Destination); ok {
		body := dst.LayerContents()[2:]
		if err := walkTLV(body, nil); err != nil {
			return nil, fmt.Errorf("destination options: %w", err)
		}
		d.Options = body
	}
	return d, nil
}

func checkUDPSum(ip gopacket.NetworkLayer, udp *layers.UDP) error {
	if udp.Checksum == 0 {
		return fmt.Errorf("udp checksum missing")
	}
	src, dst := ip.NetworkFlow().Endpoints()
	pseudo := make([]byte, 0, 40)
	pseudo = append(pseudo, src.Raw()...)
	pseudo = append(pseudo, dst.Raw()...)
	if _, v6 := ip.(*layers.IPv6); v6 {
		pseudo = append(pseudo, 0, 0, byte(udp.Length>>8), byte(udp.Length), 0, 0, 0, byte(layers.IPProtocolUDP))
	} else {
		pseudo = append(pseudo, 0, byte(layers.IPProtocolUDP), byte(udp.Length>>8), byte(udp.Length))
	}
	sum := onesComplementSum(0, pseudo)
	sum = onesComplementSum(sum, udp.LayerContents())
	sum = onesComplementSum(sum, udp.LayerPayload())
	if sum != 0xffff {
		return fmt.Errorf("bad udp checksum %#04x", udp.Checksum)
	}
	return nil
}

func newDecoded(src, dst []byte, udp *layers.UDP) *Decoded {
	return &Decoded{
		Src:     Endpoint{Addr: addrFromSlice(src), Port: uint16(udp.SrcPort)},
		Dst:     Endpoint{Addr: addrFromSlice(dst), Port: uint16(udp.DstPort)},
		Payload: udp.LayerPayload(),
	}
}

// RealAddress returns the first real-address option carried by the datagram.
func (d *Decoded) RealAddress() (uoa.RealAddress, bool) {
	var body []byte
	found := false
	visit := func(t uint8, data []byte) {
		if t == uoa.TypeUOA && !found {
			body, found = data, true
		}
	}
	if d.Dst.Family() == uoa.V4 {
		walkIPv4Options(d.Options, visit)
	} else {
		_ = walkTLV(d.Options, visit)
	}
	if !found {
		return uoa.RealAddress{}, false
	}
	addr, err := uoa.DecodeBody(body)
	return addr, err == nil
}

// walkIPv4Options calls fn for every option up to the end-of-options marker.
func walkIPv4Options(b []byte, fn func(t uint8, data []byte)) {
	for off := 0; off < len(b); {
		switch t := b[off]; t {
		case ipv4OptionEnd:
			return
		case ipv4OptionNop:
			off++
		default:
			if off+2 > len(b) {
				return
			}
			l := int(b[off+1])
			if l < 2 || off+l > len(b) {
				return
			}
			fn(t, b[off+2:off+l])
			off += l
		}
	}
}
