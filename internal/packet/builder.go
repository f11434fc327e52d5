package packet

import (
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/uoaprobe/internal/core"
	"firestige.xyz/uoaprobe/internal/uoa"
)

const defaultTTL = 64

// Builder composes IP datagrams from a Spec. It is safe for concurrent use.
type Builder struct {
	ttl uint8
	id  atomic.Uint32
}

// NewBuilder returns a Builder using the default TTL/hop limit.
func NewBuilder() *Builder {
	return &Builder{ttl: defaultTTL}
}

// Build returns the IP-layer bytes for spec sent from src. No field is left as
// a placeholder: lengths, the IPv4 header checksum and the UDP checksum are final.
func (b *Builder) Build(spec Spec, src netip.Addr) ([]byte, error) {
	dst := spec.Destination.Addr
	if !src.IsValid() || !dst.IsValid() {
		return nil, fmt.Errorf("%w: source %v destination %v", core.ErrMalformedAddress, src, dst)
	}
	src = src.Unmap()
	if uoa.FamilyOf(src) != spec.Destination.Family() {
		return nil, fmt.Errorf("%w: ip version mismatch: src=%v dst=%v", core.ErrMalformedAddress, src, dst)
	}

	udp := &layers.UDP{
		SrcPort: layers.UDPPort(spec.SourcePort),
		DstPort: layers.UDPPort(spec.Destination.Port),
	}

	if spec.Destination.Family() == uoa.V4 {
		return b.buildIPv4(spec, src, udp)
	}
	return b.buildIPv6(spec, src, udp)
}

func (b *Builder) buildIPv4(spec Spec, src netip.Addr, udp *layers.UDP) ([]byte, error) {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		Id:       uint16(b.id.Add(1)),
		TTL:      b.ttl,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP(src.AsSlice()),
		DstIP:    net.IP(spec.Destination.Addr.AsSlice()),
	}
	if spec.Option != nil {
		opts, err := spec.Option.ipv4Options()
		if err != nil {
			return nil, fmt.Errorf("build %s option: %w", spec.Option.Name(), err)
		}
		if ip.Options, err = padIPv4Options(opts); err != nil {
			return nil, fmt.Errorf("build %s option: %w", spec.Option.Name(), err)
		}
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, udp, gopacket.Payload(spec.Payload)); err != nil {
		return nil, fmt.Errorf("serialize ipv4 packet: %w", err)
	}
	return buf.Bytes(), nil
}

func (b *Builder) buildIPv6(spec Spec, src netip.Addr, udp *layers.UDP) ([]byte, error) {
	ip := &layers.IPv6{
		Version:    6,
		NextHeader: layers.IPProtocolUDP,
		HopLimit:   b.ttl,
		SrcIP:      net.IP(src.AsSlice()),
		DstIP:      net.IP(spec.Destination.Addr.AsSlice()),
	}

	stack := []gopacket.SerializableLayer{ip}
	if spec.Option != nil {
		tlvs, err := spec.Option.ipv6Options()
		if err != nil {
			return nil, fmt.Errorf("build %s option: %w", spec.Option.Name(), err)
		}
		ip.NextHeader = layers.IPProtocolIPv6Destination
		stack = append(stack, &destinationOptions{NextHeader: layers.IPProtocolUDP, Options: tlvs})
	}
	stack = append(stack, udp, gopacket.Payload(spec.Payload))

	// The UDP checksum is left zero here and sealed once the extension
	// header chain is final.
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		return nil, fmt.Errorf("serialize ipv6 packet: %w", err)
	}

	pkt := buf.Bytes()
	if err := sealUDPChecksum(pkt); err != nil {
		return nil, fmt.Errorf("seal ipv6 udp checksum: %w", err)
	}
	return pkt, nil
}
