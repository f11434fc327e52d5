package capture

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"
)

// dltRaw is libpcap's DLT_RAW on Linux. gopacket's LinkTypeRaw carries the
// file-format value (101), which pcap_compile does not accept.
const dltRaw layers.LinkType = 12

// ReplyFilter matches datagrams addressed to the probe's source port.
func ReplyFilter(port uint16) string {
	return fmt.Sprintf("udp and dst port %d", port)
}

// compileBPF compiles a libpcap expression for linkType into raw instructions.
func compileBPF(linkType layers.LinkType, filter string, snapLen int) ([]bpf.RawInstruction, error) {
	pcapBpf, err := pcap.CompileBPFFilter(linkType, snapLen, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to compile BPF filter: %w", err)
	}

	rawBpf := make([]bpf.RawInstruction, len(pcapBpf))
	for i, ins := range pcapBpf {
		rawBpf[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return rawBpf, nil
}
