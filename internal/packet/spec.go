package packet

import (
	"net/netip"

	"firestige.xyz/uoaprobe/internal/uoa"
)

// DefaultPayload is the UDP payload used by every catalog scenario.
var DefaultPayload = []byte("Hello, UOA!")

// Spec describes one datagram to build.
type Spec struct {
	Destination Endpoint
	SourcePort  uint16
	Payload     []byte
	// Option is nil for a control datagram without options.
	Option Option
}

// Variant names the option carried by the datagram.
func (s Spec) Variant() string { return OptionName(s.Option) }

// Generator produces the option variants for one destination and flow.
type Generator struct {
	Destination Endpoint
	SourcePort  uint16
	Payload     []byte
}

func (g Generator) spec(opt Option) Spec {
	payload := g.Payload
	if payload == nil {
		payload = DefaultPayload
	}
	return Spec{Destination: g.Destination, SourcePort: g.SourcePort, Payload: payload, Option: opt}
}

// UDP is the control datagram: same flow and payload, no option.
func (g Generator) UDP() Spec { return g.spec(nil) }

// UOA carries addr in a real-address option.
func (g Generator) UOA(addr uoa.RealAddress) Spec {
	return g.spec(RealAddressOption{Addr: addr})
}

// Unknown carries a foreign option sized for the destination family.
func (g Generator) Unknown() Spec {
	data := DefaultUnknownData4
	if g.Destination.Family() == uoa.V6 {
		data = DefaultUnknownData6
	}
	return g.spec(UnknownOption{Data: data})
}

// OptEnd carries a foreign option followed by the end-of-options marker.
func (g Generator) OptEnd() Spec {
	return g.spec(OptionListEnd{After: UnknownOption{Data: DefaultUnknownData4}})
}

// Full saturates the option space.
func (g Generator) Full() Spec {
	return g.spec(FullOption{Filler: DefaultFullFiller})
}

func addrFromSlice(b []byte) netip.Addr {
	a, _ := netip.AddrFromSlice(b)
	return a.Unmap()
}
