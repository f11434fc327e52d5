package scenario

import (
	"fmt"
	"math/rand/v2"
	"net/netip"
	"strings"

	"firestige.xyz/uoaprobe/internal/core"
	"firestige.xyz/uoaprobe/internal/packet"
	"firestige.xyz/uoaprobe/internal/uoa"
)

// DefaultPrimingRounds is how many address-bearing rounds a clustered load
// balancer gets before the cache is tested.
const DefaultPrimingRounds = 3

// Mocked real addresses carried by direct server and clustered scenarios.
var (
	MockRealIPv4 = uoa.MustParse("10.2.3.3:23333")
	MockRealIPv6 = uoa.MustParse("[fe80::2333]:23333")
)

// Targets are the endpoints under test as given on the command line. Empty
// fields skip the scenarios that need them.
type Targets struct {
	ServIPv4    string `mapstructure:"serv_ipv4"`
	ServIPv6    string `mapstructure:"serv_ipv6"`
	LBIPv4      string `mapstructure:"lb_ipv4"`
	LBIPv6      string `mapstructure:"lb_ipv6"`
	SelfIPv4    string `mapstructure:"self_ipv4"`
	SelfIPv6    string `mapstructure:"self_ipv6"`
	Nat46LBIPv4 string `mapstructure:"nat46_lb_ipv4"`
	Nat64LBIPv6 string `mapstructure:"nat64_lb_ipv6"`
}

// PortPicker returns a candidate source port for a new scenario. Catalog
// redraws ports already handed to another scenario.
type PortPicker func() uint16

// maxPortDraws bounds redraws of a picker that keeps returning used ports.
const maxPortDraws = 64

// RandomPort picks a port in [10000, 60000].
func RandomPort() uint16 {
	return uint16(10000 + rand.IntN(50001))
}

type CatalogOptions struct {
	PrimingRounds int
	Payload       []byte
	Ports         PortPicker
}

func (o CatalogOptions) withDefaults() CatalogOptions {
	if o.PrimingRounds <= 0 {
		o.PrimingRounds = DefaultPrimingRounds
	}
	if o.Ports == nil {
		o.Ports = RandomPort
	}
	return o
}

// Catalog builds every scenario in a stable order. Scenarios whose targets
// are missing are returned with a SkipReason; malformed targets are an error.
func Catalog(t Targets, opts CatalogOptions) ([]Scenario, error) {
	opts = opts.withDefaults()
	b := &catalogBuilder{opts: opts, used: make(map[uint16]struct{})}

	servV4 := b.target("serv-ipv4", "--serv-ipv4", t.ServIPv4, uoa.V4)
	servV6 := b.target("serv-ipv6", "--serv-ipv6", t.ServIPv6, uoa.V6)
	lbV4 := b.target("lb-ipv4", "--lb-ipv4", t.LBIPv4, uoa.V4)
	lbV6 := b.target("lb-ipv6", "--lb-ipv6", t.LBIPv6, uoa.V6)
	nat46 := b.target("nat46-lb", "--nat46-lb-ipv4", t.Nat46LBIPv4, uoa.V4)
	nat64 := b.target("nat64-lb", "--nat64-lb-ipv6", t.Nat64LBIPv6, uoa.V6)
	self4 := b.self("--self-ipv4", t.SelfIPv4, uoa.V4)
	self6 := b.self("--self-ipv6", t.SelfIPv6, uoa.V6)
	if b.err != nil {
		return nil, b.err
	}

	var out []Scenario
	out = append(out,
		b.server("serv-ipv4/uoa4-opt", servV4, MockRealIPv4, RequestReply),
		b.server("serv-ipv4/uoa6-opt", servV4, MockRealIPv6, RequestReply),
		b.server("serv-ipv6/ext-hdr-uoa4-opt", servV6, MockRealIPv4, CaptureSniff),
		b.server("serv-ipv6/ext-hdr-uoa6-opt", servV6, MockRealIPv6, CaptureSniff),

		b.loadBalancer("lb-ipv4/udp4", lbV4, self4, RequestReply, packet.Generator.UDP),
		b.loadBalancer("lb-ipv4/unknown-opt", lbV4, self4, RequestReply, packet.Generator.Unknown),
		b.loadBalancer("lb-ipv4/opt-end", lbV4, self4, RequestReply, packet.Generator.OptEnd),
		b.loadBalancer("lb-ipv4/full-opt", lbV4, self4, RequestReply, packet.Generator.Full),
		b.loadBalancer("lb-ipv6/udp6", lbV6, self6, RequestReply, packet.Generator.UDP),
		b.loadBalancer("lb-ipv6/ext-hdr-unknown-opt", lbV6, self6, CaptureSniff, packet.Generator.Unknown),
		b.loadBalancer("nat46-lb/udp4", nat46, self4, RequestReply, packet.Generator.UDP),
		b.loadBalancer("nat64-lb/udp6", nat64, self6, RequestReply, packet.Generator.UDP),

		b.primed("mul-lb-ipv4/uoa-then-bare", lbV4, MockRealIPv4, RequestReply, nil, packet.Generator.UDP),
		b.primed("mul-lb-ipv4/standalone-uoa-full-opt", lbV4, MockRealIPv4, RequestReply, packet.Generator.Full, packet.Generator.Full),
		b.primed("mul-lb-ipv6/uoa-then-bare", lbV6, MockRealIPv6, CaptureSniff, nil, packet.Generator.UDP),
		b.primed("mul-lb-ipv6/standalone-uoa-unknown-opt", lbV6, MockRealIPv6, CaptureSniff, packet.Generator.Unknown, packet.Generator.Unknown),
	)
	if b.err != nil {
		return nil, b.err
	}
	return out, nil
}

// targetArg is a parsed target or the reason it is unavailable.
type targetArg struct {
	ep     packet.Endpoint
	reason string
}

type selfArg struct {
	addr   netip.Addr
	reason string
}

type catalogBuilder struct {
	opts CatalogOptions
	used map[uint16]struct{}
	err  error
}

func (b *catalogBuilder) target(group, flag, value string, family uoa.Family) targetArg {
	if strings.TrimSpace(value) == "" {
		return targetArg{reason: flag + " not set"}
	}
	ep, err := packet.ParseEndpointFamily(value, family)
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("%s target %s: %w", group, flag, err)
	}
	return targetArg{ep: ep}
}

func (b *catalogBuilder) self(flag, value string, family uoa.Family) selfArg {
	if strings.TrimSpace(value) == "" {
		return selfArg{reason: flag + " not set"}
	}
	addr, err := ParseSelf(value)
	if err == nil && uoa.FamilyOf(addr) != family {
		err = fmt.Errorf("%w: %q is not %s", core.ErrMalformedAddress, value, family)
	}
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("self address %s: %w", flag, err)
	}
	return selfArg{addr: addr}
}

func (b *catalogBuilder) generator(t targetArg) packet.Generator {
	return packet.Generator{Destination: t.ep, SourcePort: b.port(), Payload: b.opts.Payload}
}

// port draws a source port no other scenario of this catalog owns.
func (b *catalogBuilder) port() uint16 {
	for i := 0; i < maxPortDraws; i++ {
		p := b.opts.Ports()
		if _, taken := b.used[p]; p == 0 || taken {
			continue
		}
		b.used[p] = struct{}{}
		return p
	}
	if b.err == nil {
		b.err = fmt.Errorf("%w: no unused source port after %d draws", core.ErrConfigInvalid, maxPortDraws)
	}
	return 0
}

// server sends one packet carrying a mocked real address.
func (b *catalogBuilder) server(name string, t targetArg, mock uoa.RealAddress, mode Mode) Scenario {
	if t.reason != "" {
		return Scenario{Name: name, Mode: mode, SkipReason: t.reason}
	}
	g := b.generator(t)
	return Scenario{
		Name:     name,
		Target:   t.ep,
		Expected: mock,
		Mode:     mode,
		Attempts: []Attempt{{Phase: PhaseVerifying, Spec: g.UOA(mock)}},
	}
}

// loadBalancer sends one packet without a real address; the balancer must
// report the prober's own address and source port.
func (b *catalogBuilder) loadBalancer(name string, t targetArg, self selfArg, mode Mode, variant func(packet.Generator) packet.Spec) Scenario {
	switch {
	case t.reason != "":
		return Scenario{Name: name, Mode: mode, SkipReason: t.reason}
	case self.reason != "":
		return Scenario{Name: name, Mode: mode, SkipReason: self.reason}
	}
	g := b.generator(t)
	expected, _ := uoa.RealAddressFrom(netip.AddrPortFrom(self.addr, g.SourcePort))
	return Scenario{
		Name:     name,
		Target:   t.ep,
		Self:     self.addr,
		Expected: expected,
		Mode:     mode,
		Attempts: []Attempt{{Phase: PhaseVerifying, Spec: variant(g)}},
	}
}

// primed sends the address-bearing packet for every priming round, followed by
// interleave when set, then one final packet that must be answered from the
// balancer's learned mapping.
func (b *catalogBuilder) primed(name string, t targetArg, mock uoa.RealAddress, mode Mode,
	interleave, final func(packet.Generator) packet.Spec) Scenario {
	if t.reason != "" {
		return Scenario{Name: name, Mode: mode, SkipReason: t.reason}
	}
	g := b.generator(t)
	attempts := make([]Attempt, 0, 2*b.opts.PrimingRounds+1)
	for i := 0; i < b.opts.PrimingRounds; i++ {
		attempts = append(attempts, Attempt{Phase: PhasePriming, Spec: g.UOA(mock)})
		if interleave != nil {
			attempts = append(attempts, Attempt{Phase: PhasePriming, Spec: interleave(g)})
		}
	}
	attempts = append(attempts, Attempt{Phase: PhaseVerifying, Spec: final(g)})
	return Scenario{
		Name:     name,
		Target:   t.ep,
		Expected: mock,
		Mode:     mode,
		Attempts: attempts,
	}
}

// ParseSelf parses a self address given as a bare IP or in brackets.
func ParseSelf(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: self address %q: %v", core.ErrMalformedAddress, s, err)
	}
	return addr.WithZone("").Unmap(), nil
}
