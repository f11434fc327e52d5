// Package transport sends built datagrams and collects what comes back.
package transport

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"firestige.xyz/uoaprobe/internal/capture"
	"firestige.xyz/uoaprobe/internal/packet"
)

const (
	DefaultTimeout = 500 * time.Millisecond
	DefaultSettle  = 100 * time.Millisecond
)

// ExtraPackets decides what CaptureSniff does when more than one reply is captured.
type ExtraPackets string

const (
	ExtraFail  ExtraPackets = "fail"
	ExtraFirst ExtraPackets = "first"
)

func (e *ExtraPackets) UnmarshalText(text []byte) error {
	switch v := ExtraPackets(strings.ToLower(strings.TrimSpace(string(text)))); v {
	case ExtraFail, ExtraFirst:
		*e = v
		return nil
	case "":
		*e = ExtraFail
		return nil
	default:
		return fmt.Errorf("unknown extra packets policy %q", text)
	}
}

type Config struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	Settle       time.Duration `mapstructure:"settle"`
	ExtraPackets ExtraPackets  `mapstructure:"extra_packets"`
}

// Injector writes a complete IP datagram onto the network.
type Injector interface {
	Inject(ctx context.Context, pkt []byte, dst netip.Addr) error
}

// SourceFunc picks the local address used to reach dst.
type SourceFunc func(dst netip.Addr) (netip.Addr, error)

// CapturedPacket is one sniffed reply.
type CapturedPacket struct {
	Source     netip.AddrPort
	Payload    []byte
	ObservedAt time.Time
}

// Transport performs request/reply and capture attempts. Sockets and capture
// handles live for a single attempt.
type Transport struct {
	cfg      Config
	builder  *packet.Builder
	injector Injector
	source   SourceFunc
	captures capture.Factory
}

type Option func(*Transport)

// WithInjector replaces the raw socket injector.
func WithInjector(i Injector) Option {
	return func(t *Transport) { t.injector = i }
}

// WithSource replaces route-based source address selection.
func WithSource(fn SourceFunc) Option {
	return func(t *Transport) { t.source = fn }
}

// WithCaptureFactory sets where CaptureSniff gets its handles.
func WithCaptureFactory(f capture.Factory) Option {
	return func(t *Transport) { t.captures = f }
}

func New(cfg Config, opts ...Option) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	if cfg.ExtraPackets == "" {
		cfg.ExtraPackets = ExtraFail
	}
	t := &Transport{
		cfg:      cfg,
		builder:  packet.NewBuilder(),
		injector: RawInjector{},
		source:   CachedSource(RouteSource, defaultSourceTTL),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// send builds spec from the selected source address and injects it.
func (t *Transport) send(ctx context.Context, spec packet.Spec) error {
	src, err := t.source(spec.Destination.Addr)
	if err != nil {
		return fmt.Errorf("select source for %s: %w", spec.Destination, err)
	}
	pkt, err := t.builder.Build(spec, src)
	if err != nil {
		return err
	}
	if err := t.injector.Inject(ctx, pkt, spec.Destination.Addr); err != nil {
		return fmt.Errorf("inject %s datagram to %s: %w", spec.Variant(), spec.Destination, err)
	}
	return nil
}
