package capture

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"firestige.xyz/uoaprobe/internal/log"
)

const pcapAnyDevice = "any"

type pcapHandle struct {
	handle  *pcap.Handle
	options Options
}

func newPCAPHandle(options Options) *pcapHandle {
	return &pcapHandle{options: options}
}

func (h *pcapHandle) Open(filter string) error {
	device := h.options.Interface
	if device == "" {
		device = pcapAnyDevice
	}
	log.GetLogger().WithField("device", device).WithField("filter", filter).Debug("opening pcap handle")

	handle, err := pcap.OpenLive(device, int32(h.options.SnapLen.Bytes()), false, h.options.PollTimeout)
	if err != nil {
		return fmt.Errorf("failed to open pcap on %s: %w", device, err)
	}
	if filter != "" {
		if err := handle.SetBPFFilter(filter); err != nil {
			handle.Close()
			return fmt.Errorf("failed to set BPF filter: %w", err)
		}
	}
	h.handle = handle
	return nil
}

func (h *pcapHandle) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if h.handle == nil {
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("handle not opened")
	}
	return h.handle.ReadPacketData()
}

func (h *pcapHandle) LinkType() layers.LinkType {
	if h.handle == nil {
		return layers.LinkTypeLinuxSLL
	}
	return h.handle.LinkType()
}

func (h *pcapHandle) Close() error {
	if h.handle != nil {
		h.handle.Close()
		h.handle = nil
	}
	return nil
}

func (h *pcapHandle) Type() Type { return TypePCAP }
