package capture

import (
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"

	"firestige.xyz/uoaprobe/internal/log"
)

// afpacketHandle captures with a TPACKET_V3 ring. The socket is cooked
// (SOCK_DGRAM) so packets start at the network header on every interface.
type afpacketHandle struct {
	tpacket *afpacket.TPacket
	options Options
}

func newAFPacketHandle(options Options) *afpacketHandle {
	return &afpacketHandle{options: options}
}

func (h *afpacketHandle) Open(filter string) error {
	frameSize, blockSize, numBlocks, err := computeFrameSizeAndBlocks(h.options)
	if err != nil {
		return fmt.Errorf("failed to compute frame size and blocks: %w", err)
	}

	log.GetLogger().WithFields(logrus.Fields{
		"interface":  h.options.Interface,
		"frame_size": frameSize,
		"block_size": blockSize,
		"num_blocks": numBlocks,
		"filter":     filter,
	}).Debug("opening afpacket handle")

	opts := []interface{}{
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(h.options.PollTimeout),
		afpacket.SocketDgram,
		afpacket.TPacketVersion3,
	}
	if h.options.Interface != "" {
		opts = append(opts, afpacket.OptInterface(h.options.Interface))
	}

	tpacket, err := afpacket.NewTPacket(opts...)
	if err != nil {
		return fmt.Errorf("failed to create TPacket: %w", err)
	}

	if filter != "" {
		rawBpf, err := compileBPF(dltRaw, filter, int(h.options.SnapLen.Bytes()))
		if err != nil {
			tpacket.Close()
			return err
		}
		if err := tpacket.SetBPF(rawBpf); err != nil {
			tpacket.Close()
			return fmt.Errorf("failed to set BPF filter: %w", err)
		}
	}

	h.tpacket = tpacket
	return nil
}

func computeFrameSizeAndBlocks(options Options) (frameSize int, blockSize int, numBlocks int, err error) {
	snapLen := int(options.SnapLen.Bytes())
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("invalid snap length %d", snapLen)
	}
	pageSize := os.Getpagesize()
	if snapLen < pageSize {
		frameSize = pageSize / (pageSize / snapLen)
	} else {
		frameSize = (snapLen/pageSize + 1) * pageSize
	}
	blockSize = frameSize * 128
	numBlocks = int(options.BufferSize.Bytes()) / blockSize

	if numBlocks < 1 {
		return 0, 0, 0, fmt.Errorf("buffer size too small for frame size %d", frameSize)
	}
	return frameSize, blockSize, numBlocks, nil
}

func (h *afpacketHandle) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if h.tpacket == nil {
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("handle not opened")
	}
	return h.tpacket.ReadPacketData()
}

func (h *afpacketHandle) LinkType() layers.LinkType { return layers.LinkTypeRaw }

func (h *afpacketHandle) Close() error {
	if h.tpacket != nil {
		h.tpacket.Close()
		h.tpacket = nil
	}
	return nil
}

func (h *afpacketHandle) Type() Type { return TypeAFPacket }
