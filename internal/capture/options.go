package capture

import (
	"fmt"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
)

type Options struct {
	Type        Type              `mapstructure:"type"`
	Interface   string            `mapstructure:"interface"` // empty captures on every interface
	SnapLen     datasize.ByteSize `mapstructure:"snap_len"`
	BufferSize  datasize.ByteSize `mapstructure:"buffer_size"`
	PollTimeout time.Duration     `mapstructure:"poll_timeout"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Type:        TypeAFPacket,
		SnapLen:     2 * datasize.KB,
		BufferSize:  2 * datasize.MB,
		PollTimeout: 50 * time.Millisecond,
	}
}

// ParseType converts s to a Type, case insensitive.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "afpacket", "af_packet", "af-packet":
		return TypeAFPacket, nil
	case "pcap", "libpcap":
		return TypePCAP, nil
	default:
		return "", fmt.Errorf("unknown capture type: %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler for mapstructure and yaml decoding.
func (t *Type) UnmarshalText(text []byte) error {
	v, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Type == "" {
		o.Type = def.Type
	}
	if o.SnapLen == 0 {
		o.SnapLen = def.SnapLen
	}
	if o.BufferSize == 0 {
		o.BufferSize = def.BufferSize
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = def.PollTimeout
	}
	return o
}
