package transport

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"

	"firestige.xyz/uoaprobe/internal/capture"
	"firestige.xyz/uoaprobe/internal/core"
	"firestige.xyz/uoaprobe/internal/log"
	"firestige.xyz/uoaprobe/internal/packet"
)

type collected struct {
	packets []CapturedPacket
	err     error
}

// CaptureSniff observes replies on the wire instead of through a socket. The
// capture starts before the datagram is sent and stays open for the timeout.
func (t *Transport) CaptureSniff(ctx context.Context, spec packet.Spec) (*CapturedPacket, error) {
	if t.captures == nil {
		return nil, fmt.Errorf("%w: no capture factory configured", core.ErrCaptureUnsupported)
	}
	h, err := t.captures.New()
	if err != nil {
		return nil, err
	}
	if err := h.Open(capture.ReplyFilter(spec.SourcePort)); err != nil {
		return nil, fmt.Errorf("open %s capture: %w", h.Type(), err)
	}
	defer h.Close()

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Settle+t.cfg.Timeout)
	defer cancel()

	done := make(chan collected, 1)
	go func() {
		pkts, err := collect(ctx, h, spec.SourcePort)
		done <- collected{packets: pkts, err: err}
	}()

	select {
	case <-time.After(t.cfg.Settle):
	case <-ctx.Done():
	}
	if err := t.send(ctx, spec); err != nil {
		cancel()
		<-done
		return nil, err
	}

	res := <-done
	if res.err != nil {
		return nil, res.err
	}

	log.GetLogger().WithFields(logrus.Fields{
		"dst":      spec.Destination.String(),
		"variant":  spec.Variant(),
		"captured": len(res.packets),
	}).Debug("capture finished")

	switch {
	case len(res.packets) == 0:
		return nil, fmt.Errorf("%w: nothing captured for port %d within %s", core.ErrNoResponse, spec.SourcePort, t.cfg.Timeout)
	case len(res.packets) > 1 && t.cfg.ExtraPackets != ExtraFirst:
		return nil, fmt.Errorf("%w: captured %d replies for port %d", core.ErrUnexpectedPackets, len(res.packets), spec.SourcePort)
	}
	return &res.packets[0], nil
}

// collect reads from h until ctx is done and keeps UDP datagrams sent to port.
// A reply observed more than once (outgoing and incoming on loopback, or once per
// bridge/veth hop) is kept once.
func collect(ctx context.Context, h capture.Handle, port uint16) ([]CapturedPacket, error) {
	var (
		out  []CapturedPacket
		seen = make(map[string]struct{})
		dups int
	)
	for ctx.Err() == nil {
		data, ci, err := h.ReadPacket()
		if err != nil {
			if capture.IsTimeout(err) {
				continue
			}
			return nil, fmt.Errorf("read capture: %w", err)
		}
		cp, key, ok := parseCaptured(data, h.LinkType(), port)
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			dups++
			continue
		}
		seen[key] = struct{}{}
		cp.ObservedAt = ci.Timestamp
		out = append(out, cp)
	}
	if dups > 0 {
		log.GetLogger().WithFields(logrus.Fields{"port": port, "duplicates": dups}).
			Debug("dropped repeated observations")
	}
	return out, nil
}

// parseCaptured extracts the reply sent to port. key identifies the datagram
// across observations: source, IPv4 id, UDP checksum and payload.
func parseCaptured(data []byte, linkType layers.LinkType, port uint16) (CapturedPacket, string, bool) {
	p := gopacket.NewPacket(data, linkType, gopacket.Default)
	udp, ok := p.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if !ok || uint16(udp.DstPort) != port {
		return CapturedPacket{}, "", false
	}
	var (
		src netip.Addr
		id  uint16
	)
	if nl := p.NetworkLayer(); nl != nil {
		s, _ := nl.NetworkFlow().Endpoints()
		src, _ = netip.AddrFromSlice(s.Raw())
		if ip4, ok := nl.(*layers.IPv4); ok {
			id = ip4.Id
		}
	}
	cp := CapturedPacket{
		Source:  netip.AddrPortFrom(src.Unmap(), uint16(udp.SrcPort)),
		Payload: udp.Payload,
	}
	key := fmt.Sprintf("%s/%d/%d/%x", cp.Source, id, udp.Checksum, udp.Payload)
	return cp, key, true
}
