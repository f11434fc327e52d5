package packet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// sealUDPChecksum computes the UDP checksum of a serialized IPv6 packet in place.
// The packet is decoded first so the checksum lands after any extension headers.
func sealUDPChecksum(pkt []byte) error {
	p := gopacket.NewPacket(pkt, layers.LayerTypeIPv6, gopacket.DecodeOptions{NoCopy: true})
	if el := p.ErrorLayer(); el != nil {
		return el.Error()
	}
	ip, ok := p.NetworkLayer().(*layers.IPv6)
	if !ok {
		return errors.New("no ipv6 layer")
	}
	udp, ok := p.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if !ok {
		return errors.New("no udp layer")
	}

	sum, err := udpChecksum(ip, udp)
	if err != nil {
		return err
	}
	off := len(pkt) - len(udp.LayerContents()) - len(udp.LayerPayload())
	binary.BigEndian.PutUint16(pkt[off+6:], sum)
	return nil
}

// udpChecksum serializes a copy of udp against the pseudo-header of ip and
// returns the resulting checksum. A computed zero is sent as 0xffff.
func udpChecksum(ip gopacket.NetworkLayer, udp *layers.UDP) (uint16, error) {
	c := &layers.UDP{SrcPort: udp.SrcPort, DstPort: udp.DstPort}
	if err := c.SetNetworkLayerForChecksum(ip); err != nil {
		return 0, err
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, c, gopacket.Payload(udp.Payload)); err != nil {
		return 0, fmt.Errorf("serialize udp: %w", err)
	}
	if c.Checksum == 0 {
		return 0xffff, nil
	}
	return c.Checksum, nil
}

// onesComplementSum folds b into a 16-bit ones' complement sum, starting from initial.
func onesComplementSum(initial uint32, b []byte) uint32 {
	sum := initial
	for len(b) >= 2 {
		sum += uint32(b[0])<<8 | uint32(b[1])
		b = b[2:]
	}
	if len(b) == 1 {
		sum += uint32(b[0]) << 8
	}
	for sum > 0xffff {
		sum = sum>>16 + sum&0xffff
	}
	return sum
}
